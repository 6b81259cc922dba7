package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/receipts"
	"chat-relay/storage"
	"context"
	"log/slog"
	"time"
)

// Ensure *PoolUnitWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*PoolUnitWorker)(nil)

const DefaultPoolSize = 5

type JobProcessor interface {
	Process(ctx context.Context, task storage.Task) error
}

// PoolUnitWorker is one member of the read-receipt pool: it claims a job,
// processes it, then acks or nacks. Retries belong to the queue.
type PoolUnitWorker struct {
	id        int
	queue     receipts.Queue
	processor JobProcessor
	idle      time.Duration
	log       *slog.Logger
}

func NewPoolUnitWorker(id int, queue receipts.Queue, processor JobProcessor, idle time.Duration, log *slog.Logger) *PoolUnitWorker {
	if idle <= 0 {
		idle = 500 * time.Millisecond
	}
	return &PoolUnitWorker{id: id, queue: queue, processor: processor, idle: idle, log: log}
}

// NewPool builds size workers sharing the same queue, DefaultPoolSize when
// size is not positive.
func NewPool(size int, queue receipts.Queue, processor JobProcessor, idle time.Duration, log *slog.Logger) []contract.Worker {
	if size <= 0 {
		size = DefaultPoolSize
	}
	pool := make([]contract.Worker, 0, size)
	for i := range size {
		pool = append(pool, NewPoolUnitWorker(i, queue, processor, idle, log))
	}
	return pool
}

func (w *PoolUnitWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			w.log.Debug("Stopping worker", "worker", w.id)
			return ctx.Err()
		}

		task, err := w.queue.Claim(ctx)
		if errors.Is(err, errors.ErrQueueEmpty) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.idle):
			}
			continue
		}
		if err != nil {
			return err
		}

		if err := w.processor.Process(ctx, task); err != nil {
			if nackErr := w.queue.Nack(ctx, task, err); nackErr != nil {
				w.log.Error("Unable to return job to the queue", "job_id", task.ID, "error", nackErr)
			}
			continue
		}
		if err := w.queue.Ack(ctx, task); err != nil {
			w.log.Error("Unable to ack job", "job_id", task.ID, "error", err)
		}
	}
}
