package models

import "time"

// Loan records one hand-out of a keyboard to a student. An open loan has
// a NULL returned_at.
type Loan struct {
	ID              string     `db:"id" json:"id"`
	KeyboardID      string     `db:"keyboard_id" json:"keyboard_id"`
	StudentID       string     `db:"student_id" json:"student_id"`
	LoanedAt        time.Time  `db:"loaned_at" json:"loaned_at"`
	ReturnedAt      *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	ReturnCondition *string    `db:"return_condition" json:"return_condition,omitempty"`
	ReturnNotes     *string    `db:"return_notes" json:"return_notes,omitempty"`
	FeePaid         bool       `db:"fee_paid" json:"fee_paid"`
	FeeAmount       float64    `db:"fee_amount" json:"fee_amount"`
	CreatedBy       *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// IsActive reports whether the loan is still open.
func (l Loan) IsActive() bool {
	return l.ReturnedAt == nil
}

// LoanFilter defines filters supported by list endpoints.
type LoanFilter struct {
	StudentID  string
	KeyboardID string
	ClassID    string
	Active     *bool
	FeePaid    *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// LoanDetail joins the loan with student, class and keyboard context for
// list views and exports.
type LoanDetail struct {
	Loan
	StudentLastName  string `db:"student_last_name" json:"student_last_name"`
	StudentFirstName string `db:"student_first_name" json:"student_first_name"`
	ClassID          string `db:"class_id" json:"class_id"`
	ClassName        string `db:"class_name" json:"class_name"`
	InventoryNumber  string `db:"inventory_number" json:"inventory_number"`
}
