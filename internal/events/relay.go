// Package events publishes follow-graph changes recorded in the store's
// outbox.
//
// Every graph mutation writes its EdgeEvent row in the same transaction as
// the change itself. The Relay polls those rows, hands each one to a Sink
// and marks it published once the sink accepted it. Delivery is therefore
// at-least-once: a crash between publish and mark repeats the event.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/botnet/internal/metrics"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultBatchSize    = 50
)

// Sink is where outbox rows end up.
type Sink interface {
	Publish(ctx context.Context, entry model.OutboxEntry) error
	Close() error
}

// Relay moves outbox rows to a Sink.
type Relay struct {
	outbox   repository.OutboxRepository
	sink     Sink
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewRelay(outbox repository.OutboxRepository, sink Sink, interval time.Duration, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Relay{
		outbox:   outbox,
		sink:     sink,
		interval: interval,
		batch:    DefaultBatchSize,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("edge event relay started", slog.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("edge event relay stopped")
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush publishes one batch and returns how many rows were published. A row
// the sink rejects stays unpublished and is retried on the next call; rows
// after it are still attempted.
func (r *Relay) Flush(ctx context.Context) int {
	rows, err := r.outbox.FetchUnpublished(ctx, r.batch)
	if err != nil {
		r.logger.Error("outbox fetch failed", slog.String("error", err.Error()))
		return 0
	}

	published := 0
	for _, row := range rows {
		if err := r.sink.Publish(ctx, row); err != nil {
			metrics.OutboxPublishedTotal.WithLabelValues("error").Inc()
			r.logger.Error("edge event publish failed",
				slog.String("eventID", row.ID),
				slog.String("topic", row.Topic),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := r.outbox.MarkPublished(ctx, row.ID); err != nil {
			// The sink has it; it will be sent again next tick.
			r.logger.Error("outbox mark published failed",
				slog.String("eventID", row.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.OutboxPublishedTotal.WithLabelValues("ok").Inc()
		published++
	}
	return published
}
