package cache

import (
	"chat-relay/errors"
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "cache:"

// BadgerStore keeps entries in BadgerDB using its native TTL.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log}
}

func (b *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrCacheMiss
	}
	return value, err
}

func (b *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
}

// SetIfAbsent relies on badger's optimistic conflict detection: the read of
// the key joins the transaction's read set, so when two transactions race on
// the same absent key only the first commit succeeds and the second fails
// with badger.ErrConflict.
func (b *BadgerStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(badgerPrefix + key))
		switch {
		case err == nil:
			return errAlreadyPresent
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errAlreadyPresent):
		return false, nil
	case errors.Is(err, badger.ErrConflict):
		b.log.Debug("Concurrent set-if-absent lost the race", "key", key)
		return false, nil
	default:
		return false, err
	}
}

func (b *BadgerStore) Del(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerPrefix + key))
	})
}

var errAlreadyPresent = errors.New("key already present")

func newEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(badgerPrefix+key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}
