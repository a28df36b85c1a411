package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EnrichmentTask asks the worker pool to resolve place names for one report.
// Tasks are idempotent per (report, locale) so redelivery is harmless.
type EnrichmentTask struct {
	ReportID   int64     `json:"reportId"`
	Longitude  float64   `json:"longitude"`
	Latitude   float64   `json:"latitude"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewEnrichmentTask builds the task scheduled for a freshly stored report.
func NewEnrichmentTask(r Report) EnrichmentTask {
	return EnrichmentTask{
		ReportID:   r.ID,
		Longitude:  r.Longitude,
		Latitude:   r.Latitude,
		EnqueuedAt: Now(),
	}
}

// ParseEnrichmentTask decodes a queued task payload.
func ParseEnrichmentTask(data []byte) (EnrichmentTask, error) {
	var t EnrichmentTask
	if err := json.Unmarshal(data, &t); err != nil {
		return EnrichmentTask{}, fmt.Errorf("parse enrichment task: %w", err)
	}
	if t.ReportID <= 0 {
		return EnrichmentTask{}, fmt.Errorf("parse enrichment task: missing report id")
	}
	if !ValidCoordinates(t.Longitude, t.Latitude) {
		return EnrichmentTask{}, fmt.Errorf("parse enrichment task: invalid coordinates %f,%f", t.Longitude, t.Latitude)
	}
	return t, nil
}

// TaskMessage is an undecoded message read from the work queue.
type TaskMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutboxEntry is a task persisted alongside its report, awaiting publication.
type OutboxEntry struct {
	ID       int64
	ReportID int64
	Payload  []byte
}

// Key is the partitioning key used on the work queue, so every task of one
// report lands on the same partition.
func (e OutboxEntry) Key() string {
	return strconv.FormatInt(e.ReportID, 10)
}
