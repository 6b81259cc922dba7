//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_receipt_store.go -package=mocks
package receipts

import (
	"chat-relay/errors"
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type ReceiptStore interface {
	InsertChannelRead(ctx context.Context, r ChannelRead) error
	UpsertConversationRead(ctx context.Context, r ConversationRead) error
}

var _ ReceiptStore = (*SQLStore)(nil)

// SQLStore keeps read markers in SQLite. Timestamps are unix nanoseconds.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path. ":memory:" is pinned to a single
// connection, otherwise every pooled connection would see its own database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate read receipts: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS channel_reads (
		member_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		last_read_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS channel_reads_member ON channel_reads (member_id, channel_id);
	CREATE TABLE IF NOT EXISTS conversation_reads (
		member_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		last_read_at INTEGER NOT NULL,
		PRIMARY KEY (member_id, conversation_id)
	);`)
	return err
}

func (s *SQLStore) InsertChannelRead(ctx context.Context, r ChannelRead) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_reads (member_id, channel_id, last_read_at) VALUES (?, ?, ?)`,
		r.MemberID, r.ChannelID, r.LastReadAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert channel read: %w", err)
	}
	return nil
}

// UpsertConversationRead is last-write-wins: an older timestamp processed
// later still replaces a newer one.
func (s *SQLStore) UpsertConversationRead(ctx context.Context, r ConversationRead) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_reads (member_id, conversation_id, last_read_at) VALUES (?, ?, ?)
		ON CONFLICT (member_id, conversation_id) DO UPDATE SET last_read_at = excluded.last_read_at`,
		r.MemberID, r.ConversationID, r.LastReadAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert conversation read: %w", err)
	}
	return nil
}

// ChannelReads lists every marker recorded for the member, oldest first.
func (s *SQLStore) ChannelReads(ctx context.Context, memberID, channelID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT last_read_at FROM channel_reads WHERE member_id = ? AND channel_id = ? ORDER BY rowid`,
		memberID, channelID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reads []time.Time
	for rows.Next() {
		var nanos int64
		if err := rows.Scan(&nanos); err != nil {
			return nil, err
		}
		reads = append(reads, time.Unix(0, nanos).UTC())
	}
	return reads, rows.Err()
}

func (s *SQLStore) ConversationRead(ctx context.Context, memberID, conversationID string) (time.Time, error) {
	var nanos int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_read_at FROM conversation_reads WHERE member_id = ? AND conversation_id = ?`,
		memberID, conversationID).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: read receipt", errors.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}
