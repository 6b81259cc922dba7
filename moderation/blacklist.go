package moderation

import (
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const blacklistPrefix = "blacklist:"

// SeedBlacklist stores words as bare keys, the value is unused.
func SeedBlacklist(db *badger.DB, words []string) error {
	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		if err := wb.Set([]byte(blacklistPrefix+word), nil); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// LoadBlacklist reads every stored word. Only keys are read.
func LoadBlacklist(db *badger.DB) ([]string, error) {
	var words []string
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(blacklistPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			words = append(words, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return words, err
}
