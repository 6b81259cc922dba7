package receipts

import (
	"chat-relay/errors"
	"chat-relay/storage"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Processor applies one read-receipt job. It never retries: a failure is
// logged and handed back to the queue, whose policy decides what comes next.
type Processor struct {
	log   *slog.Logger
	store ReceiptStore
}

func NewProcessor(log *slog.Logger, store ReceiptStore) *Processor {
	return &Processor{log: log, store: store}
}

func (p *Processor) Process(ctx context.Context, task storage.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
		if err != nil {
			p.log.Error("Read receipt job failed",
				"job_id", task.ID, "kind", task.Kind, "attempts", task.Attempts,
				"error", err, "stack", string(debug.Stack()))
		}
	}()

	job, err := Decode(task.Kind, task.Payload)
	if err != nil {
		return err
	}
	switch j := job.(type) {
	case ChannelRead:
		err = p.store.InsertChannelRead(ctx, j)
	case ConversationRead:
		err = p.store.UpsertConversationRead(ctx, j)
	}
	if err == nil {
		p.log.Debug("Read receipt recorded", "job_id", task.ID, "kind", task.Kind)
	}
	return err
}
