package domain

import "context"

// Place is the human-readable location of a coordinate pair in one locale.
type Place struct {
	Country      string `json:"country"`
	Municipality string `json:"municipality"`
}

// Geocoder resolves coordinates to place names.
type Geocoder interface {
	// ReverseGeocode resolves lon/lat in the given culture (e.g. "el-GR").
	// Implementations do not retry; failures are *UpstreamError.
	ReverseGeocode(ctx context.Context, lon, lat float64, culture string) (Place, error)
}

// PlaceName is the enrichment record for one (report, locale) pair.
type PlaceName struct {
	ReportID     int64  `json:"reportId" db:"report_id"`
	Locale       string `json:"locale" db:"locale"`
	Country      string `json:"country" db:"country"`
	Municipality string `json:"municipality" db:"municipality"`
}
