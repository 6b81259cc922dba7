package signaling

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*Sweeper)(nil)

// Sweeper periodically reclaims consumers whose negotiation never completed.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(log *slog.Logger, registry *Registry, interval time.Duration) *Sweeper {
	return &Sweeper{registry: registry, interval: interval, log: log}
}

func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.registry.Sweep(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				w.log.Info("Expired pending consumers", "count", n)
			}
		}
	}
}
