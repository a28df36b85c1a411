// Package lifecycle owns the write side of reports: creation together with the
// scheduling of enrichment, and batch triage into the archive. Every operation
// runs in one storage transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/observability"
)

var (
	// ErrCreateFailed is returned when a valid submission could not be stored.
	// The cause is wrapped for logging but must not reach clients.
	ErrCreateFailed = errors.New("report could not be created")
	// ErrTriageFailed is returned when a triage batch was rolled back.
	ErrTriageFailed = errors.New("reports could not be triaged")
)

// ImageStore persists uploaded photos.
type ImageStore interface {
	Store(ctx context.Context, name string, r io.Reader) error
	Delete(ctx context.Context, name string) error
}

// EnrichmentBacklog finds reports whose enrichment is incomplete and schedules
// them again.
type EnrichmentBacklog interface {
	// ReportsMissingPlaceNames returns up to limit reports lacking a place name
	// in any of locales, with no pending task and fewer than maxEnqueues tasks
	// ever queued, least recently queued first.
	ReportsMissingPlaceNames(ctx context.Context, locales []string, maxEnqueues, limit int) ([]domain.Report, error)
	EnqueueEnrichment(ctx context.Context, tasks []domain.EnrichmentTask) error
}

// Coordinator creates and triages reports.
type Coordinator struct {
	uow         domain.UnitOfWork
	backlog     EnrichmentBacklog
	images      ImageStore
	locales     []string
	maxEnqueues int
	validator   *validator.Validate
	newName     func() string
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New returns a Coordinator. locales are the enrichment locales used to detect
// incomplete reports; maxEnqueues caps how often one report is queued.
func New(uow domain.UnitOfWork, backlog EnrichmentBacklog, images ImageStore, locales []string, maxEnqueues int, metrics *observability.Metrics, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		uow:         uow,
		backlog:     backlog,
		images:      images,
		locales:     locales,
		maxEnqueues: maxEnqueues,
		validator:   newValidator(),
		newName:     uuid.NewString,
		metrics:     metrics,
		logger:      logger,
	}
}

// Create validates req and stores a Pending report with its enrichment task.
// An attached image is uploaded concurrently and must be stored before the
// transaction commits. Returns the new report id, a *domain.ValidationError,
// or an error wrapping ErrCreateFailed.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (int64, error) {
	if err := c.Validate(req); err != nil {
		return 0, err
	}
	disaster, _ := domain.ParseDisasterType(req.DisasterType)
	culture, _ := domain.NormalizeCulture(req.Culture)

	r := domain.Report{
		DisasterType: disaster,
		Longitude:    req.Longitude,
		Latitude:     req.Latitude,
		CreatedAt:    domain.Now(),
		ImageName:    domain.PlaceholderImage,
		Description:  req.Description,
		Status:       domain.StatusPending,
		Culture:      culture,
		UserID:       req.UserID,
	}

	var upload *pendingUpload
	if req.Image != nil {
		r.ImageName = c.newName() + "." + imageExtension(req.Image.ContentType)
		upload = c.startUpload(ctx, r.ImageName, req.Image.Body)
	}

	err := c.uow.InTx(ctx, func(ctx context.Context, tx domain.ReportTx) error {
		id, err := tx.InsertReport(ctx, r)
		if err != nil {
			return err
		}
		r.ID = id
		if err := tx.EnqueueEnrichment(ctx, domain.NewEnrichmentTask(r)); err != nil {
			return err
		}
		if upload != nil {
			if err := upload.wait(); err != nil {
				return fmt.Errorf("upload image: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if upload != nil {
			c.discardUpload(upload)
		}
		c.metrics.CreateFailures.Inc()
		c.logger.Error("create report failed", "error", err, "user_id", req.UserID)
		return 0, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	c.metrics.ReportsCreated.Inc()
	c.logger.Info("report created",
		"report_id", r.ID,
		"disaster_type", r.DisasterType.String(),
		"culture", r.Culture,
		"image", r.ImageName,
	)
	return r.ID, nil
}

type pendingUpload struct {
	name string
	done chan struct{}
	err  error
}

func (u *pendingUpload) wait() error {
	<-u.done
	return u.err
}

func (c *Coordinator) startUpload(ctx context.Context, name string, body io.Reader) *pendingUpload {
	u := &pendingUpload{name: name, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		u.err = c.images.Store(ctx, name, body)
	}()
	return u
}

// discardUpload removes an image whose report was rolled back.
func (c *Coordinator) discardUpload(u *pendingUpload) {
	if u.wait() != nil {
		return
	}
	// The request context may already be cancelled.
	if err := c.images.Delete(context.Background(), u.name); err != nil {
		c.logger.Warn("delete orphaned image failed", "image", u.name, "error", err)
	}
}

// Triage moves every active report of the given disaster index whose place
// name (in any locale) equals municipality to outcome, all or nothing.
// Reports already archived are not matched. Returns the number of reports
// transitioned; zero matches is not an error.
func (c *Coordinator) Triage(ctx context.Context, disasterIndex int, municipality string, outcome domain.Status) (int, error) {
	ve := domain.NewValidationError()
	disaster, err := domain.DisasterTypeFromIndex(disasterIndex)
	if err != nil {
		ve.Add("disasterIndex", "unknown disaster type")
	}
	if municipality == "" {
		ve.Add("municipality", "is required")
	}
	if !outcome.IsTerminal() {
		ve.Add("outcome", "must be approved or rejected")
	}
	if err := ve.OrNil(); err != nil {
		return 0, err
	}

	at := domain.Now()
	var transitioned int
	err = c.uow.InTx(ctx, func(ctx context.Context, tx domain.ReportTx) error {
		transitioned = 0
		ids, err := tx.LockActiveReports(ctx, disaster, municipality)
		if err != nil {
			return err
		}
		for _, id := range ids {
			ok, err := tx.ArchiveReport(ctx, id, outcome, at)
			if err != nil {
				return err
			}
			if ok {
				transitioned++
			}
		}
		return nil
	})
	if err != nil {
		c.metrics.TriageBatches.WithLabelValues(string(outcome), "error").Inc()
		c.logger.Error("triage failed",
			"error", err,
			"disaster_type", disaster.String(),
			"municipality", municipality,
			"outcome", string(outcome),
		)
		return 0, fmt.Errorf("%w: %w", ErrTriageFailed, err)
	}

	c.metrics.TriageBatches.WithLabelValues(string(outcome), "success").Inc()
	c.metrics.ReportsTransitioned.WithLabelValues(string(outcome)).Add(float64(transitioned))
	c.logger.Info("reports triaged",
		"disaster_type", disaster.String(),
		"municipality", municipality,
		"outcome", string(outcome),
		"count", transitioned,
	)
	return transitioned, nil
}

// Approve is Triage with outcome Approved.
func (c *Coordinator) Approve(ctx context.Context, disasterIndex int, municipality string) (int, error) {
	return c.Triage(ctx, disasterIndex, municipality, domain.StatusApproved)
}

// Reject is Triage with outcome Rejected.
func (c *Coordinator) Reject(ctx context.Context, disasterIndex int, municipality string) (int, error) {
	return c.Triage(ctx, disasterIndex, municipality, domain.StatusRejected)
}

// RequeueIncomplete schedules enrichment again for up to limit reports missing
// a place name in any configured locale. Reports that were already queued
// maxEnqueues times are given up on. Returns the number of reports queued.
func (c *Coordinator) RequeueIncomplete(ctx context.Context, limit int) (int, error) {
	reports, err := c.backlog.ReportsMissingPlaceNames(ctx, c.locales, c.maxEnqueues, limit)
	if err != nil {
		return 0, fmt.Errorf("find incomplete reports: %w", err)
	}
	if len(reports) == 0 {
		return 0, nil
	}

	tasks := make([]domain.EnrichmentTask, len(reports))
	for i, r := range reports {
		tasks[i] = domain.NewEnrichmentTask(r)
	}
	if err := c.backlog.EnqueueEnrichment(ctx, tasks); err != nil {
		return 0, fmt.Errorf("requeue enrichment: %w", err)
	}

	c.metrics.ReportsRequeued.Add(float64(len(tasks)))
	c.logger.Info("incomplete reports requeued", "count", len(tasks))
	return len(tasks), nil
}
