package models

import "time"

// SchoolClass models a class group within a school year, e.g. "5A".
type SchoolClass struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Grade        int        `db:"grade" json:"grade"`
	SchoolYearID string     `db:"school_year_id" json:"school_year_id"`
	ClassTeacher *string    `db:"class_teacher" json:"class_teacher,omitempty"`
	MusicTeacher *string    `db:"music_teacher" json:"music_teacher,omitempty"`
	LoanDate     *time.Time `db:"loan_date" json:"loan_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// SchoolClassFilter defines filters supported by list endpoints.
type SchoolClassFilter struct {
	SchoolYearID string
	Grade        int
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// ClassSummary carries per-class counters for the class overview.
type ClassSummary struct {
	SchoolClass
	StudentCount  int `db:"student_count" json:"student_count"`
	LoanCount     int `db:"loan_count" json:"loan_count"`
	PaidCount     int `db:"paid_count" json:"paid_count"`
	ReturnedCount int `db:"returned_count" json:"returned_count"`
}
