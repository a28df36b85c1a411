package query

import "time"

// ReportView is the full projection of one report.
type ReportView struct {
	ID           int64     `json:"id"`
	DisasterType string    `json:"disasterType"`
	Longitude    float64   `json:"longitude"`
	Latitude     float64   `json:"latitude"`
	CreatedAt    time.Time `json:"createdAt"`
	ImageURL     string    `json:"imageUrl"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Culture      string    `json:"culture"`
	Country      string    `json:"country"`
	Municipality string    `json:"municipality"`
	UserID       string    `json:"userId"`
}

// ArchivedView is an entry of the approved or rejected archive.
type ArchivedView struct {
	ID           int64     `json:"id"`
	DisasterType string    `json:"disasterType"`
	Longitude    float64   `json:"longitude"`
	Latitude     float64   `json:"latitude"`
	CreatedAt    time.Time `json:"createdAt"`
	Country      string    `json:"country"`
	Municipality string    `json:"municipality"`
}

// ImportanceView is one (country, municipality, disaster type) cluster.
type ImportanceView struct {
	DisasterType      string `json:"disasterType"`
	DisasterTypeIndex int    `json:"disasterTypeIndex"`
	Country           string `json:"country"`
	Municipality      string `json:"municipality"`
	Importance        int    `json:"importance"`
}

// OperatorView is an entry of the filtered active list.
type OperatorView struct {
	ID           int64     `json:"id"`
	DisasterType string    `json:"disasterType"`
	Longitude    float64   `json:"longitude"`
	Latitude     float64   `json:"latitude"`
	CreatedAt    time.Time `json:"createdAt"`
	ImageURL     string    `json:"imageUrl"`
	Description  string    `json:"description"`
}

// Paged wraps one page of items with the total page count.
type Paged[T any] struct {
	TotalPages    int `json:"totalPages"`
	DangerReports []T `json:"dangerReports"`
}
