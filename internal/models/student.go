package models

import "time"

// Student represents a learner enrolled in a class.
type Student struct {
	ID                 string    `db:"id" json:"id"`
	LastName           string    `db:"last_name" json:"last_name"`
	FirstName          string    `db:"first_name" json:"first_name"`
	ClassID            string    `db:"class_id" json:"class_id"`
	ParticipatesInLoan bool      `db:"participates_in_loan" json:"participates_in_loan"`
	FeePrepaid         bool      `db:"fee_prepaid" json:"fee_prepaid"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// FullName returns the roster display form "Last, First".
func (s Student) FullName() string {
	return s.LastName + ", " + s.FirstName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search       string
	ClassID      string
	Participates *bool
	WithoutLoan  bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// StudentDetail contains student information with class and loan context.
type StudentDetail struct {
	Student
	ClassName       string  `db:"class_name" json:"class_name"`
	ActiveLoanID    *string `db:"active_loan_id" json:"active_loan_id,omitempty"`
	InventoryNumber *string `db:"inventory_number" json:"inventory_number,omitempty"`
}
