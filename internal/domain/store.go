package domain

import (
	"context"
	"time"
)

// ReportTx is the set of writes available inside one storage transaction.
type ReportTx interface {
	// InsertReport stores a new report and returns its id.
	InsertReport(ctx context.Context, r Report) (int64, error)
	// EnqueueEnrichment durably schedules a task; it is published only if the
	// surrounding transaction commits.
	EnqueueEnrichment(ctx context.Context, task EnrichmentTask) error
	// LockActiveReports returns the ids of active reports of type d with a
	// place name in municipality, locking them until the transaction ends.
	LockActiveReports(ctx context.Context, d DisasterType, municipality string) ([]int64, error)
	// ArchiveReport moves one active report to outcome. It returns false when
	// the report was no longer active.
	ArchiveReport(ctx context.Context, id int64, outcome Status, at time.Time) (bool, error)
}

// UnitOfWork runs fn inside a single transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx ReportTx) error) error
}

// LocatedReport is a report joined with its place name in one culture. Empty
// Country/Municipality mean enrichment has not produced that culture yet.
type LocatedReport struct {
	Report
	Country      string `json:"country" db:"country"`
	Municipality string `json:"municipality" db:"municipality"`
}

// ImportanceGroup is a cluster of active reports sharing place and type.
type ImportanceGroup struct {
	Country      string       `db:"country"`
	Municipality string       `db:"municipality"`
	DisasterType DisasterType `db:"disaster_type"`
	Importance   int          `db:"importance"`
}
