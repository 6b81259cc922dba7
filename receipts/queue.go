//go:generate go run go.uber.org/mock/mockgen -source=queue.go -destination=../mocks/mock_receipt_queue.go -package=mocks
package receipts

import (
	"chat-relay/storage"
	"context"
)

// Queue is the job infrastructure the processor relies on. storage.JobQueue
// is the badger implementation.
type Queue interface {
	Enqueue(ctx context.Context, kind string, payload []byte) (storage.Task, error)
	Claim(ctx context.Context) (storage.Task, error)
	Ack(ctx context.Context, t storage.Task) error
	Nack(ctx context.Context, t storage.Task, cause error) error
}

var _ Queue = (*storage.JobQueue)(nil)

// Enqueue schedules a read-receipt job.
func Enqueue(ctx context.Context, q Queue, job Job) (storage.Task, error) {
	payload, err := Encode(job)
	if err != nil {
		return storage.Task{}, err
	}
	return q.Enqueue(ctx, job.Kind(), payload)
}
