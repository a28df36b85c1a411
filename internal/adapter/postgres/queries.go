package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/sqlscan"

	"github.com/couchcryptid/alerthub-service/internal/domain"
)

var reportColumns = []string{
	"r.id", "r.disaster_type", "r.longitude", "r.latitude", "r.created_at", "r.image_name",
	"r.description", "r.status", "r.archived_at", "r.culture", "r.user_id",
}

// located selects report columns plus the place name for culture, empty when
// enrichment has not produced it.
func located(from, culture string) sq.SelectBuilder {
	cols := append(append([]string{}, reportColumns...),
		"COALESCE(p.country, '') AS country",
		"COALESCE(p.municipality, '') AS municipality",
	)
	return psql.
		Select(cols...).
		From(from+" r").
		LeftJoin("place_names p ON p.report_id = r.id AND p.locale = ?", culture)
}

// GetReport returns the report with id or domain.ErrNotFound.
func (s *Store) GetReport(ctx context.Context, id int64) (domain.Report, error) {
	query, args, err := psql.Select(reportColumns...).From("reports r").Where(sq.Eq{"r.id": id}).ToSql()
	if err != nil {
		return domain.Report{}, fmt.Errorf("build get report: %w", err)
	}

	var r domain.Report
	if err := sqlscan.Get(ctx, s.db, &r, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return domain.Report{}, domain.ErrNotFound
		}
		return domain.Report{}, fmt.Errorf("get report %d: %w", id, err)
	}
	return r, nil
}

// PlaceName returns the place name of a report in locale or domain.ErrNotFound.
func (s *Store) PlaceName(ctx context.Context, reportID int64, locale string) (domain.PlaceName, error) {
	query, args, err := psql.
		Select("report_id", "locale", "country", "municipality").
		From("place_names").
		Where(sq.Eq{"report_id": reportID, "locale": locale}).
		ToSql()
	if err != nil {
		return domain.PlaceName{}, fmt.Errorf("build get place name: %w", err)
	}

	var p domain.PlaceName
	if err := sqlscan.Get(ctx, s.db, &p, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return domain.PlaceName{}, domain.ErrNotFound
		}
		return domain.PlaceName{}, fmt.Errorf("get place name %d/%s: %w", reportID, locale, err)
	}
	return p, nil
}

// ListActive returns one page of active reports, newest first, and the total
// number of active reports.
func (s *Store) ListActive(ctx context.Context, culture string, offset, limit int) ([]domain.LocatedReport, int, error) {
	total, err := s.count(ctx, psql.Select("count(*)").From("active_reports"))
	if err != nil {
		return nil, 0, fmt.Errorf("count active reports: %w", err)
	}

	q := located("active_reports", culture).
		OrderBy("r.created_at DESC", "r.id DESC").
		Offset(uint64(offset)).
		Limit(uint64(limit))

	reports, err := s.selectLocated(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list active reports: %w", err)
	}
	return reports, total, nil
}

// ListArchived returns one page of archived reports with status, newest first,
// and the total number of matches.
func (s *Store) ListArchived(ctx context.Context, status domain.Status, culture string, offset, limit int) ([]domain.LocatedReport, int, error) {
	if !status.IsTerminal() {
		return nil, 0, fmt.Errorf("list archived reports: %q is not an archived status", status)
	}

	total, err := s.count(ctx, psql.Select("count(*)").From("archived_reports").Where(sq.Eq{"status": string(status)}))
	if err != nil {
		return nil, 0, fmt.Errorf("count archived reports: %w", err)
	}

	q := located("archived_reports", culture).
		Where(sq.Eq{"r.status": string(status)}).
		OrderBy("r.created_at DESC", "r.id DESC").
		Offset(uint64(offset)).
		Limit(uint64(limit))

	reports, err := s.selectLocated(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list archived reports: %w", err)
	}
	return reports, total, nil
}

// ImportanceRanking groups active reports with a place name in culture by
// (country, municipality, disaster type), largest cluster first. Ties keep
// the order of the cluster's oldest report.
func (s *Store) ImportanceRanking(ctx context.Context, culture string, offset, limit int) ([]domain.ImportanceGroup, int, error) {
	groups := psql.
		Select("p.country", "p.municipality", "r.disaster_type", "count(*) AS importance").
		From("place_names p").
		Join("active_reports r ON r.id = p.report_id").
		Where(sq.Eq{"p.locale": culture}).
		GroupBy("p.country", "p.municipality", "r.disaster_type")

	total, err := s.count(ctx, psql.Select("count(*)").FromSelect(groups, "g"))
	if err != nil {
		return nil, 0, fmt.Errorf("count importance groups: %w", err)
	}

	query, args, err := groups.
		OrderBy("importance DESC", "min(r.id)").
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build importance ranking: %w", err)
	}

	var out []domain.ImportanceGroup
	if err := sqlscan.Select(ctx, s.db, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("importance ranking: %w", err)
	}
	return out, total, nil
}

// ListActiveFiltered returns active reports of type d whose place name in any
// locale equals municipality exactly.
func (s *Store) ListActiveFiltered(ctx context.Context, d domain.DisasterType, municipality string) ([]domain.Report, error) {
	query, args, err := activeByDisasterAndMunicipality(psql.Select(reportColumns...), d, municipality).
		OrderBy("r.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build filtered active reports: %w", err)
	}

	var out []domain.Report
	if err := sqlscan.Select(ctx, s.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list filtered active reports: %w", err)
	}
	return out, nil
}

func (s *Store) selectLocated(ctx context.Context, q sq.SelectBuilder) ([]domain.LocatedReport, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var out []domain.LocatedReport
	if err := sqlscan.Select(ctx, s.db, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) count(ctx context.Context, q sq.SelectBuilder) (int, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := sqlscan.Get(ctx, s.db, &n, query, args...); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative count")
	}
	return n, nil
}
