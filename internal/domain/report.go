package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PlaceholderImage is stored as the image name of reports submitted without a photo.
const PlaceholderImage = "no-image.png"

// Field limits matching the schema column sizes.
const (
	MaxDescriptionLen = 2000
	MaxImageNameLen   = 200
	MaxUserIDLen      = 450
	MaxPlaceNameLen   = 450
)

// DisasterType is the hazard category of a report. The integer value is the
// stable index exposed to operator tooling and persisted in the store.
type DisasterType int

const (
	Earthquake DisasterType = iota
	Flood
	Fire
	Landslide
	Storm
	Tornado
	Tsunami
	Other
)

var disasterNames = [...]string{
	Earthquake: "Earthquake",
	Flood:      "Flood",
	Fire:       "Fire",
	Landslide:  "Landslide",
	Storm:      "Storm",
	Tornado:    "Tornado",
	Tsunami:    "Tsunami",
	Other:      "Other",
}

// DisasterTypes returns every known category in index order.
func DisasterTypes() []DisasterType {
	out := make([]DisasterType, len(disasterNames))
	for i := range disasterNames {
		out[i] = DisasterType(i)
	}
	return out
}

func (d DisasterType) String() string {
	if !d.Valid() {
		return "DisasterType(" + strconv.Itoa(int(d)) + ")"
	}
	return disasterNames[d]
}

// Valid reports whether d is one of the known categories.
func (d DisasterType) Valid() bool {
	return d >= 0 && int(d) < len(disasterNames)
}

// Index returns the stable integer index of the category.
func (d DisasterType) Index() int { return int(d) }

// ParseDisasterType accepts a category name (case-insensitive) or its index.
func ParseDisasterType(s string) (DisasterType, error) {
	s = strings.TrimSpace(s)
	for i, name := range disasterNames {
		if strings.EqualFold(name, s) {
			return DisasterType(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return DisasterTypeFromIndex(n)
	}
	return 0, fmt.Errorf("unknown disaster type %q", s)
}

// DisasterTypeFromIndex converts an operator-supplied index into a category.
func DisasterTypeFromIndex(i int) (DisasterType, error) {
	d := DisasterType(i)
	if !d.Valid() {
		return 0, fmt.Errorf("unknown disaster type index %d", i)
	}
	return d, nil
}

// Status is the triage state of a report.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus converts a stored status value.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Name is the enum-derived display name, e.g. "Pending".
func (s Status) Name() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo enforces the monotone lifecycle: only Pending may move, and
// only into a terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// Lifecycle reports where a report with this status is visible.
func (s Status) Lifecycle() Lifecycle {
	if s == StatusPending {
		return LifecycleActive
	}
	return LifecycleArchived
}

// Lifecycle partitions reports into the active feed and the archive.
type Lifecycle int

const (
	LifecycleActive Lifecycle = iota
	LifecycleArchived
)

func (l Lifecycle) String() string {
	if l == LifecycleActive {
		return "active"
	}
	return "archived"
}

// Report is a single citizen-submitted hazard observation.
type Report struct {
	ID           int64        `json:"id" db:"id"`
	DisasterType DisasterType `json:"disasterType" db:"disaster_type"`
	Longitude    float64      `json:"longitude" db:"longitude"`
	Latitude     float64      `json:"latitude" db:"latitude"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
	ImageName    string       `json:"imageName" db:"image_name"`
	Description  string       `json:"description" db:"description"`
	Status       Status       `json:"status" db:"status"`
	ArchivedAt   *time.Time   `json:"archivedAt,omitempty" db:"archived_at"`
	Culture      string       `json:"culture" db:"culture"`
	UserID       string       `json:"userId" db:"user_id"`
}

// Lifecycle returns whether the report is still awaiting triage.
func (r Report) Lifecycle() Lifecycle { return r.Status.Lifecycle() }

// IsActive reports whether the report belongs in the active feed.
func (r Report) IsActive() bool { return r.Lifecycle() == LifecycleActive }

// ValidCoordinates reports whether lon/lat form a valid geodetic point.
func ValidCoordinates(lon, lat float64) bool {
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
