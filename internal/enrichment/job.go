// Package enrichment resolves place names for stored reports, one locale at a
// time, and persists each result as soon as it is known.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/observability"
)

// PlaceNameWriter persists one enrichment record, overwriting an earlier one
// for the same (report, locale).
type PlaceNameWriter interface {
	UpsertPlaceName(ctx context.Context, p domain.PlaceName) error
}

// Result lists the locales a run resolved and the ones left for a later retry.
type Result struct {
	Resolved []string
	Failed   []string
}

// Complete reports whether every locale was resolved.
func (r Result) Complete() bool { return len(r.Failed) == 0 }

// Job runs enrichment tasks.
type Job struct {
	geocoder    domain.Geocoder
	store       PlaceNameWriter
	locales     []string
	maxAttempts int
	newBackOff  func() backoff.BackOff
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewJob returns a job resolving locales in the given order, trying each
// locale up to maxAttempts times.
func NewJob(g domain.Geocoder, store PlaceNameWriter, locales []string, maxAttempts int, metrics *observability.Metrics, logger *slog.Logger) *Job {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Job{
		geocoder:    g,
		store:       store,
		locales:     locales,
		maxAttempts: maxAttempts,
		newBackOff:  defaultBackOff,
		metrics:     metrics,
		logger:      logger,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Run resolves and stores place names for every configured locale. A failing
// locale never stops the others. The only error returned is the context's,
// when it ends before all locales were attempted.
func (j *Job) Run(ctx context.Context, task domain.EnrichmentTask) (Result, error) {
	var res Result
	for _, locale := range j.locales {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := j.enrichLocale(ctx, task, locale); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			j.metrics.EnrichmentAttempts.WithLabelValues(locale, "error").Inc()
			j.logFailure(task, locale, err)
			res.Failed = append(res.Failed, locale)
			continue
		}
		j.metrics.EnrichmentAttempts.WithLabelValues(locale, "success").Inc()
		res.Resolved = append(res.Resolved, locale)
	}

	j.logger.Info("report enriched",
		"report_id", task.ReportID,
		"resolved", res.Resolved,
		"failed", res.Failed,
	)
	return res, nil
}

func (j *Job) enrichLocale(ctx context.Context, task domain.EnrichmentTask, locale string) error {
	place, err := j.resolve(ctx, task, locale)
	if err != nil {
		return err
	}
	err = j.store.UpsertPlaceName(ctx, domain.PlaceName{
		ReportID:     task.ReportID,
		Locale:       locale,
		Country:      clip(place.Country, domain.MaxPlaceNameLen),
		Municipality: clip(place.Municipality, domain.MaxPlaceNameLen),
	})
	if err != nil {
		return fmt.Errorf("store place name: %w", err)
	}
	return nil
}

// clip shortens s to at most n characters.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// resolve geocodes one locale, retrying transient upstream failures.
func (j *Job) resolve(ctx context.Context, task domain.EnrichmentTask, locale string) (domain.Place, error) {
	var place domain.Place
	attempt := 0
	op := func() error {
		attempt++
		p, err := j.geocoder.ReverseGeocode(ctx, task.Longitude, task.Latitude, locale)
		if err == nil {
			place = p
			return nil
		}
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) && !upstream.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		j.logger.Debug("geocoding attempt failed",
			"report_id", task.ReportID, "locale", locale, "attempt", attempt, "error", err)
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(j.newBackOff(), uint64(j.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return domain.Place{}, err
	}
	return place, nil
}

func (j *Job) logFailure(task domain.EnrichmentTask, locale string, err error) {
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		j.logger.Warn("geocoding failed, locale left for re-enrichment",
			"report_id", task.ReportID, "locale", locale, "status", upstream.StatusCode, "error", err)
		return
	}
	j.logger.Error("enrichment failed, locale left for re-enrichment",
		"report_id", task.ReportID, "locale", locale, "error", err)
}
