package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/sqlscan"

	"github.com/couchcryptid/alerthub-service/internal/domain"
)

// reportTx implements domain.ReportTx on an open transaction.
type reportTx struct {
	tx *sql.Tx
}

func (t *reportTx) InsertReport(ctx context.Context, r domain.Report) (int64, error) {
	query, args, err := psql.
		Insert("reports").
		Columns("disaster_type", "longitude", "latitude", "created_at", "image_name",
			"description", "status", "culture", "user_id").
		Values(int(r.DisasterType), r.Longitude, r.Latitude, r.CreatedAt, r.ImageName,
			r.Description, string(r.Status), r.Culture, r.UserID).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert report: %w", err)
	}

	var id int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

func (t *reportTx) EnqueueEnrichment(ctx context.Context, task domain.EnrichmentTask) error {
	return enqueue(ctx, t.tx, task)
}

func (t *reportTx) LockActiveReports(ctx context.Context, d domain.DisasterType, municipality string) ([]int64, error) {
	query, args, err := activeByDisasterAndMunicipality(psql.Select("r.id"), d, municipality).
		OrderBy("r.id").
		Suffix("FOR UPDATE OF r").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build triage candidates: %w", err)
	}

	var ids []int64
	if err := sqlscan.Select(ctx, t.tx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("lock triage candidates: %w", err)
	}
	return ids, nil
}

func (t *reportTx) ArchiveReport(ctx context.Context, id int64, outcome domain.Status, at time.Time) (bool, error) {
	if !domain.StatusPending.CanTransitionTo(outcome) {
		return false, fmt.Errorf("archive report %d: invalid outcome %q", id, outcome)
	}
	query, args, err := psql.
		Update("reports").
		Set("status", string(outcome)).
		Set("archived_at", at).
		Where(sq.Eq{"id": id, "status": string(domain.StatusPending)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build archive report: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("archive report %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive report %d: %w", id, err)
	}
	return n == 1, nil
}

// activeByDisasterAndMunicipality restricts a select over "reports r" to
// active reports of type d with a place name (any locale) equal to municipality.
func activeByDisasterAndMunicipality(b sq.SelectBuilder, d domain.DisasterType, municipality string) sq.SelectBuilder {
	return b.
		From("reports r").
		Where(sq.Eq{"r.status": string(domain.StatusPending), "r.disaster_type": int(d)}).
		Where("EXISTS (SELECT 1 FROM place_names p WHERE p.report_id = r.id AND p.municipality = ?)", municipality)
}

func enqueue(ctx context.Context, db DBTX, task domain.EnrichmentTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("serialize enrichment task: %w", err)
	}
	query, args, err := psql.
		Insert("enrichment_outbox").
		Columns("report_id", "payload", "created_at").
		Values(task.ReportID, string(payload), task.EnqueuedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enqueue enrichment: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("enqueue enrichment for report %d: %w", task.ReportID, err)
	}
	return nil
}

// UpsertPlaceName stores the place name of one (report, locale) pair,
// overwriting any earlier result for the same pair.
func (s *Store) UpsertPlaceName(ctx context.Context, p domain.PlaceName) error {
	query, args, err := psql.
		Insert("place_names").
		Columns("report_id", "locale", "country", "municipality", "updated_at").
		Values(p.ReportID, p.Locale, p.Country, p.Municipality, domain.Now()).
		Suffix("ON CONFLICT (report_id, locale) DO UPDATE SET " +
			"country = EXCLUDED.country, municipality = EXCLUDED.municipality, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert place name: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert place name %d/%s: %w", p.ReportID, p.Locale, err)
	}
	return nil
}

// EnqueueEnrichment schedules tasks outside a report transaction, e.g. for
// re-enrichment. All tasks are enqueued atomically.
func (s *Store) EnqueueEnrichment(ctx context.Context, tasks []domain.EnrichmentTask) error {
	return execTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, task := range tasks {
			if err := enqueue(ctx, tx, task); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReportsMissingPlaceNames returns up to limit reports lacking a place name for
// at least one of locales, with no enrichment task still waiting in the outbox
// and fewer than maxEnqueues tasks ever queued. Reports never queued come
// first, then the least recently queued, so a report that keeps failing does
// not starve newer ones.
func (s *Store) ReportsMissingPlaceNames(ctx context.Context, locales []string, maxEnqueues, limit int) ([]domain.Report, error) {
	if len(locales) == 0 {
		return nil, nil
	}
	// Built with "?" placeholders; the outer psql builder renumbers them.
	covered := sq.
		Select("count(*)").
		From("place_names p").
		Where("p.report_id = r.id").
		Where(sq.Eq{"p.locale": locales})
	coveredSQL, coveredArgs, err := covered.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build covered locales: %w", err)
	}

	query, args, err := psql.
		Select(reportColumns...).
		From("reports r").
		Where(sq.Expr("("+coveredSQL+") < ?", append(coveredArgs, len(locales))...)).
		Where("NOT EXISTS (SELECT 1 FROM enrichment_outbox o WHERE o.report_id = r.id AND o.published_at IS NULL)").
		Where("(SELECT count(*) FROM enrichment_outbox o WHERE o.report_id = r.id) < ?", maxEnqueues).
		OrderBy("(SELECT max(o.created_at) FROM enrichment_outbox o WHERE o.report_id = r.id) NULLS FIRST", "r.id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build missing place names: %w", err)
	}

	var reports []domain.Report
	if err := sqlscan.Select(ctx, s.db, &reports, query, args...); err != nil {
		return nil, fmt.Errorf("list reports missing place names: %w", err)
	}
	return reports, nil
}
