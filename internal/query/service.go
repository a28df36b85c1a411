// Package query builds the read-side projections of reports: the single
// report view, the active feed, the archives and the operator listings.
// Projections read outside transactions and tolerate enrichment in flight.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/alerthub-service/internal/domain"
)

// Unknown is displayed for place names enrichment has not produced yet.
const Unknown = "unknown"

// ReportReader is the read side of the report store.
type ReportReader interface {
	GetReport(ctx context.Context, id int64) (domain.Report, error)
	PlaceName(ctx context.Context, reportID int64, locale string) (domain.PlaceName, error)
	ListActive(ctx context.Context, culture string, offset, limit int) ([]domain.LocatedReport, int, error)
	ListArchived(ctx context.Context, status domain.Status, culture string, offset, limit int) ([]domain.LocatedReport, int, error)
	ImportanceRanking(ctx context.Context, culture string, offset, limit int) ([]domain.ImportanceGroup, int, error)
	ListActiveFiltered(ctx context.Context, d domain.DisasterType, municipality string) ([]domain.Report, error)
}

// Translator renders enum values in a display culture.
type Translator interface {
	Disaster(d domain.DisasterType, culture string) string
	Status(s domain.Status, culture string) string
}

// ImageURLs derives public image URLs from stored names.
type ImageURLs interface {
	ImageURL(name string) string
}

// Service answers report queries.
type Service struct {
	store       ReportReader
	translator  Translator
	images      ImageURLs
	maxPageSize int
}

// NewService returns a query service. Pages larger than maxPageSize are rejected.
func NewService(store ReportReader, tr Translator, images ImageURLs, maxPageSize int) *Service {
	return &Service{store: store, translator: tr, images: images, maxPageSize: maxPageSize}
}

// Get returns one report with type and status always translated to culture
// and the place name recorded for culture.
func (s *Service) Get(ctx context.Context, id int64, culture string) (ReportView, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return ReportView{}, err
	}

	country, municipality := Unknown, Unknown
	p, err := s.store.PlaceName(ctx, id, placeLocale(culture))
	switch {
	case err == nil:
		country, municipality = orUnknown(p.Country), orUnknown(p.Municipality)
	case !errors.Is(err, domain.ErrNotFound):
		return ReportView{}, fmt.Errorf("place name for report %d: %w", id, err)
	}

	return ReportView{
		ID:           r.ID,
		DisasterType: s.translator.Disaster(r.DisasterType, culture),
		Longitude:    r.Longitude,
		Latitude:     r.Latitude,
		CreatedAt:    r.CreatedAt,
		ImageURL:     s.images.ImageURL(r.ImageName),
		Description:  r.Description,
		Status:       s.translator.Status(r.Status, culture),
		Culture:      r.Culture,
		Country:      country,
		Municipality: municipality,
		UserID:       r.UserID,
	}, nil
}

// Active returns the active feed, newest first.
func (s *Service) Active(ctx context.Context, page Page, culture string) (Paged[ReportView], error) {
	if err := page.Validate(s.maxPageSize); err != nil {
		return Paged[ReportView]{}, err
	}
	reports, total, err := s.store.ListActive(ctx, placeLocale(culture), page.Offset(), page.Size)
	if err != nil {
		return Paged[ReportView]{}, err
	}

	items := make([]ReportView, len(reports))
	for i, r := range reports {
		items[i] = ReportView{
			ID:           r.ID,
			DisasterType: s.disaster(r.DisasterType, culture),
			Longitude:    r.Longitude,
			Latitude:     r.Latitude,
			CreatedAt:    r.CreatedAt,
			ImageURL:     s.images.ImageURL(r.ImageName),
			Description:  r.Description,
			Status:       s.status(r.Status, culture),
			Culture:      r.Culture,
			Country:      orUnknown(r.Country),
			Municipality: orUnknown(r.Municipality),
			UserID:       r.UserID,
		}
	}
	return Paged[ReportView]{TotalPages: TotalPages(total, page.Size), DangerReports: items}, nil
}

// Approved returns approved reports, newest first.
func (s *Service) Approved(ctx context.Context, page Page, culture string) (Paged[ArchivedView], error) {
	return s.archived(ctx, domain.StatusApproved, page, culture)
}

// Rejected returns rejected reports, newest first.
func (s *Service) Rejected(ctx context.Context, page Page, culture string) (Paged[ArchivedView], error) {
	return s.archived(ctx, domain.StatusRejected, page, culture)
}

func (s *Service) archived(ctx context.Context, status domain.Status, page Page, culture string) (Paged[ArchivedView], error) {
	if err := page.Validate(s.maxPageSize); err != nil {
		return Paged[ArchivedView]{}, err
	}
	reports, total, err := s.store.ListArchived(ctx, status, placeLocale(culture), page.Offset(), page.Size)
	if err != nil {
		return Paged[ArchivedView]{}, err
	}

	items := make([]ArchivedView, len(reports))
	for i, r := range reports {
		items[i] = ArchivedView{
			ID:           r.ID,
			DisasterType: s.disaster(r.DisasterType, culture),
			Longitude:    r.Longitude,
			Latitude:     r.Latitude,
			CreatedAt:    r.CreatedAt,
			Country:      orUnknown(r.Country),
			Municipality: orUnknown(r.Municipality),
		}
	}
	return Paged[ArchivedView]{TotalPages: TotalPages(total, page.Size), DangerReports: items}, nil
}

// Importance ranks clusters of active reports whose place name was recorded
// in culture, largest first.
func (s *Service) Importance(ctx context.Context, page Page, culture string) (Paged[ImportanceView], error) {
	if err := page.Validate(s.maxPageSize); err != nil {
		return Paged[ImportanceView]{}, err
	}
	groups, total, err := s.store.ImportanceRanking(ctx, placeLocale(culture), page.Offset(), page.Size)
	if err != nil {
		return Paged[ImportanceView]{}, err
	}

	items := make([]ImportanceView, len(groups))
	for i, g := range groups {
		items[i] = ImportanceView{
			DisasterType:      s.disaster(g.DisasterType, culture),
			DisasterTypeIndex: g.DisasterType.Index(),
			Country:           g.Country,
			Municipality:      g.Municipality,
			Importance:        g.Importance,
		}
	}
	return Paged[ImportanceView]{TotalPages: TotalPages(total, page.Size), DangerReports: items}, nil
}

// FilteredActive lists active reports of one disaster type whose place name
// in any locale equals municipality exactly.
func (s *Service) FilteredActive(ctx context.Context, disasterIndex int, municipality, culture string) ([]OperatorView, error) {
	d, err := domain.DisasterTypeFromIndex(disasterIndex)
	if err != nil {
		ve := domain.NewValidationError()
		ve.Add("disasterIndex", "unknown disaster type")
		return nil, ve
	}
	reports, err := s.store.ListActiveFiltered(ctx, d, municipality)
	if err != nil {
		return nil, err
	}

	items := make([]OperatorView, len(reports))
	for i, r := range reports {
		items[i] = OperatorView{
			ID:           r.ID,
			DisasterType: s.disaster(r.DisasterType, culture),
			Longitude:    r.Longitude,
			Latitude:     r.Latitude,
			CreatedAt:    r.CreatedAt,
			ImageURL:     s.images.ImageURL(r.ImageName),
			Description:  r.Description,
		}
	}
	return items, nil
}

// disaster renders d for a feed: the enum name in the default culture, the
// translation otherwise.
func (s *Service) disaster(d domain.DisasterType, culture string) string {
	if domain.IsDefaultCulture(culture) {
		return d.String()
	}
	return s.translator.Disaster(d, culture)
}

func (s *Service) status(st domain.Status, culture string) string {
	if domain.IsDefaultCulture(culture) {
		return st.Name()
	}
	return s.translator.Status(st, culture)
}

// placeLocale maps a requested culture onto the casing place names are
// stored under. Unrecognized cultures are passed through and match nothing.
func placeLocale(culture string) string {
	if c, ok := domain.NormalizeCulture(culture); ok {
		return c
	}
	return strings.TrimSpace(culture)
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
