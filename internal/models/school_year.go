package models

import "time"

// SchoolYear models one academic year, e.g. "2024/2025". At most one
// year is active at a time.
type SchoolYear struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SchoolYearFilter defines filters supported by list endpoints.
type SchoolYearFilter struct {
	IsActive  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
