package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/enrichment"
	"github.com/couchcryptid/alerthub-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// TaskFetcher reads up to batchSize queued task messages.
type TaskFetcher interface {
	FetchBatch(ctx context.Context, batchSize int) ([]domain.TaskMessage, error)
}

// Enricher runs one enrichment task.
type Enricher interface {
	Run(ctx context.Context, task domain.EnrichmentTask) (enrichment.Result, error)
}

// Worker consumes enrichment tasks from the work queue and runs them with
// bounded concurrency. Offsets are committed once the task has run, so a task
// interrupted by shutdown is redelivered.
type Worker struct {
	fetcher     TaskFetcher
	job         Enricher
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	concurrency int
}

// NewWorker creates a Worker.
func NewWorker(f TaskFetcher, job Enricher, logger *slog.Logger, metrics *observability.Metrics, batchSize, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		fetcher:     f,
		job:         job,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// CheckReadiness returns nil while the worker is running and its last fetch
// succeeded.
func (w *Worker) CheckReadiness(_ context.Context) error {
	if !w.ready.Load() {
		return errors.New("enrichment worker is not consuming")
	}
	return nil
}

// Run executes the consume loop until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("enrichment worker started", "batch_size", w.batchSize, "concurrency", w.concurrency)
	running := w.metrics.PipelineRunning.WithLabelValues("worker")
	running.Set(1)
	defer running.Set(0)
	w.ready.Store(true)
	defer w.ready.Store(false)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("enrichment worker stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !w.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch fetches and runs one batch. Returns false if the worker should stop.
func (w *Worker) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := w.fetcher.FetchBatch(ctx, w.batchSize)
	if err != nil && len(batch) == 0 {
		if ctx.Err() != nil {
			return false
		}
		w.ready.Store(false)
		w.logger.Error("fetch batch failed", "error", err)
		return backoffOrStop(ctx, backoff)
	}
	w.ready.Store(true)
	*backoff = initialBackoff

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	w.metrics.MessagesConsumed.Add(float64(len(batch)))
	w.metrics.BatchSize.Observe(float64(len(batch)))

	if !w.runBatch(ctx, batch) {
		return false
	}
	w.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	return true
}

// runBatch decodes and runs every message, then commits offsets in order.
// Undecodable messages are committed and dropped. Returns false when the
// context ended before every task ran; nothing is committed in that case.
func (w *Worker) runBatch(ctx context.Context, batch []domain.TaskMessage) bool {
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	var interrupted atomic.Bool

	for _, msg := range batch {
		task, err := domain.ParseEnrichmentTask(msg.Value)
		if err != nil {
			w.logger.Warn("undecodable task, skipping message",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			w.metrics.DecodeErrors.Inc()
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			interrupted.Store(true)
		}
		if interrupted.Load() {
			break
		}

		wg.Add(1)
		go func(task domain.EnrichmentTask) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := w.job.Run(ctx, task); err != nil {
				interrupted.Store(true)
			}
		}(task)
	}
	wg.Wait()

	if interrupted.Load() {
		return false
	}
	for _, msg := range batch {
		w.commitOffset(ctx, msg)
	}
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (w *Worker) commitOffset(ctx context.Context, msg domain.TaskMessage) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		w.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the context ended.
func backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
