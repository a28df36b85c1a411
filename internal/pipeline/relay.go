package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/observability"
)

// Outbox hands unpublished tasks to publish and marks them published when
// publish succeeds.
type Outbox interface {
	RelayOutbox(ctx context.Context, limit int, publish func(context.Context, []domain.OutboxEntry) error) (int, error)
}

// TaskPublisher writes tasks to the work queue.
type TaskPublisher interface {
	Publish(ctx context.Context, entries []domain.OutboxEntry) error
}

// Relay moves committed enrichment tasks from the outbox to the work queue.
type Relay struct {
	outbox    Outbox
	publisher TaskPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
	interval  time.Duration
}

// NewRelay creates a Relay polling every interval for up to batchSize tasks.
func NewRelay(o Outbox, p TaskPublisher, logger *slog.Logger, metrics *observability.Metrics, batchSize int, interval time.Duration) *Relay {
	return &Relay{
		outbox:    o,
		publisher: p,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
		interval:  interval,
	}
}

// Run relays until the context is cancelled. A full batch is followed
// immediately by the next one; otherwise the relay waits one interval.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started", "batch_size", r.batchSize, "interval", r.interval)
	running := r.metrics.PipelineRunning.WithLabelValues("relay")
	running.Set(1)
	defer running.Set(0)

	backoff := initialBackoff
	for {
		n, err := r.RelayOnce(ctx)
		switch {
		case ctx.Err() != nil:
			r.logger.Info("outbox relay stopping", "reason", ctx.Err())
			return nil
		case err != nil:
			r.logger.Error("relay outbox failed", "error", err)
			if !backoffOrStop(ctx, &backoff) {
				return nil
			}
			continue
		}
		backoff = initialBackoff
		if n < r.batchSize && !sleepWithContext(ctx, r.interval) {
			return nil
		}
	}
}

// RelayOnce publishes one batch and returns its size.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	n, err := r.outbox.RelayOutbox(ctx, r.batchSize, r.publisher.Publish)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.metrics.OutboxPublished.Add(float64(n))
		r.logger.Debug("outbox relayed", "count", n)
	}
	return n, nil
}
