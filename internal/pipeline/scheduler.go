package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/alerthub-service/internal/observability"
)

// Requeuer schedules enrichment again for incomplete reports.
type Requeuer interface {
	RequeueIncomplete(ctx context.Context, limit int) (int, error)
}

// Scheduler periodically requeues reports whose enrichment is incomplete.
type Scheduler struct {
	requeuer Requeuer
	clock    clockwork.Clock
	interval time.Duration
	limit    int
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewScheduler creates a Scheduler firing every interval on clock.
func NewScheduler(rq Requeuer, clock clockwork.Clock, interval time.Duration, limit int, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		requeuer: rq,
		clock:    clock,
		interval: interval,
		limit:    limit,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run requeues on every tick until the context is cancelled. A failed tick is
// logged and retried on the next one.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("re-enrichment scheduler started", "interval", s.interval, "limit", s.limit)
	running := s.metrics.PipelineRunning.WithLabelValues("scheduler")
	running.Set(1)
	defer running.Set(0)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("re-enrichment scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if _, err := s.requeuer.RequeueIncomplete(ctx, s.limit); err != nil && ctx.Err() == nil {
				s.logger.Error("re-enrichment failed", "error", err)
			}
		}
	}
}
