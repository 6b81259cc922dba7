package storage

import (
	"chat-relay/errors"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	pendingPrefix    = "jobs:pending:"
	processingPrefix = "jobs:processing:"
	deadPrefix       = "jobs:dead:"
)

// Task is one unit of background work. Payload is opaque to the queue.
type Task struct {
	ID        string
	Kind      string
	Payload   []byte
	Attempts  int
	NotBefore time.Time
	CreatedAt time.Time
	LastError string
}

type QueueConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// JobQueue is a durable queue in BadgerDB. Pending keys sort by the time a
// task becomes due, so a forward scan always meets the next due task first.
// A claim moves the task to processing in one transaction; competing
// claimers lose on badger's conflict detection and try the next key.
type JobQueue struct {
	db  *badger.DB
	log *slog.Logger
	cfg QueueConfig
	now func() time.Time
}

func NewJobQueue(db *badger.DB, log *slog.Logger, cfg QueueConfig) *JobQueue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return &JobQueue{db: db, log: log, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (q *JobQueue) WithClock(now func() time.Time) *JobQueue {
	q.now = now
	return q
}

func pendingKey(t Task) []byte {
	return fmt.Appendf(nil, "%s%019d:%s", pendingPrefix, t.NotBefore.UnixNano(), t.ID)
}

func (q *JobQueue) Enqueue(_ context.Context, kind string, payload []byte) (Task, error) {
	now := q.now().UTC()
	t := Task{ID: uuid.NewString(), Kind: kind, Payload: payload, NotBefore: now, CreatedAt: now}
	value, err := encodeTask(t)
	if err != nil {
		return Task{}, err
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(t), value)
	})
	return t, err
}

// Claim takes the oldest due task. It returns errors.ErrQueueEmpty when
// nothing is due.
func (q *JobQueue) Claim(ctx context.Context) (Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}
		key, task, err := q.nextDue()
		if err != nil {
			return Task{}, err
		}

		err = q.db.Update(func(txn *badger.Txn) error {
			if _, err := txn.Get(key); err != nil {
				return err
			}
			value, err := encodeTask(task)
			if err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			return txn.Set([]byte(processingPrefix+task.ID), value)
		})
		switch {
		case err == nil:
			return task, nil
		case errors.Is(err, badger.ErrConflict), errors.Is(err, badger.ErrKeyNotFound):
			// Another worker got it first
			continue
		default:
			return Task{}, err
		}
	}
}

func (q *JobQueue) nextDue() ([]byte, Task, error) {
	var key []byte
	var task Task
	now := q.now()
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(pendingPrefix)
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return errors.ErrQueueEmpty
		}
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		task, err = decodeTask(value)
		if err != nil {
			return err
		}
		if task.NotBefore.After(now) {
			return errors.ErrQueueEmpty
		}
		key = item.KeyCopy(nil)
		return nil
	})
	return key, task, err
}

// Ack drops a finished task.
func (q *JobQueue) Ack(_ context.Context, t Task) error {
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(processingPrefix + t.ID))
	})
}

// Nack schedules a failed task again with exponential backoff, or moves it to
// the dead letters once MaxAttempts is reached.
func (q *JobQueue) Nack(_ context.Context, t Task, cause error) error {
	t.Attempts++
	if cause != nil {
		t.LastError = cause.Error()
	}

	var key []byte
	if t.Attempts >= q.cfg.MaxAttempts {
		key = []byte(deadPrefix + t.ID)
		q.log.Warn("Job dead-lettered", "job_id", t.ID, "kind", t.Kind, "attempts", t.Attempts, "error", t.LastError)
	} else {
		t.NotBefore = q.now().Add(q.backoff(t.Attempts)).UTC()
		key = pendingKey(t)
	}

	value, err := encodeTask(t)
	if err != nil {
		return err
	}
	return q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(processingPrefix + t.ID)); err != nil {
			return err
		}
		return txn.Set(key, value)
	})
}

func (q *JobQueue) backoff(attempts int) time.Duration {
	d := q.cfg.BaseBackoff
	for i := 1; i < attempts && d < q.cfg.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, q.cfg.MaxBackoff)
}

// Recover puts back tasks left in processing by a previous run.
func (q *JobQueue) Recover(ctx context.Context) (int, error) {
	stuck, err := q.scan(processingPrefix)
	if err != nil {
		return 0, err
	}
	for _, t := range stuck {
		if err := q.Nack(ctx, t, fmt.Errorf("recovered after restart")); err != nil {
			return 0, err
		}
	}
	return len(stuck), nil
}

// Dead lists dead-lettered tasks.
func (q *JobQueue) Dead(_ context.Context) ([]Task, error) {
	return q.scan(deadPrefix)
}

// Pending counts tasks waiting, due or not.
func (q *JobQueue) Pending(_ context.Context) (int, error) {
	tasks, err := q.scan(pendingPrefix)
	return len(tasks), err
}

func (q *JobQueue) scan(prefix string) ([]Task, error) {
	var tasks []Task
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			t, err := decodeTask(value)
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return nil
	})
	return tasks, err
}

func encodeTask(t Task) ([]byte, error) {
	return encodeRecord(map[string]any{
		"id":        t.ID,
		"kind":      t.Kind,
		"payload":   base64.StdEncoding.EncodeToString(t.Payload),
		"attempts":  t.Attempts,
		"notBefore": formatTime(t.NotBefore),
		"createdAt": formatTime(t.CreatedAt),
		"lastError": t.LastError,
	})
}

func decodeTask(b []byte) (Task, error) {
	r, err := decodeRecord(b)
	if err != nil {
		return Task{}, err
	}
	payload, err := base64.StdEncoding.DecodeString(r.str("payload"))
	if err != nil {
		return Task{}, fmt.Errorf("task payload: %w", err)
	}
	return Task{
		ID:        r.str("id"),
		Kind:      r.str("kind"),
		Payload:   payload,
		Attempts:  r.num("attempts"),
		NotBefore: r.timestamp("notBefore"),
		CreatedAt: r.timestamp("createdAt"),
		LastError: r.str("lastError"),
	}, nil
}
