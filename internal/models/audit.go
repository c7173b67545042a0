package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLoanCreate     = "loan_create"
	AuditActionLoanReturn     = "loan_return"
	AuditActionLoanUndoReturn = "loan_undo_return"
	AuditActionLoanToggleFee  = "loan_toggle_fee"
	AuditActionYearRollover   = "school_year_transition"
	AuditActionImportMerge    = "import_data"
	AuditActionStudentImport  = "student_import"
	AuditActionKeyboardCreate = "keyboard_create"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   *string   `db:"entity_id" json:"entity_id,omitempty"`
	Details    *string   `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter defines filters supported by the audit listing.
type AuditFilter struct {
	Action     string
	EntityType string
	UserID     string
	Page       int
	PageSize   int
}
