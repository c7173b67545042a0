package dto

// DashboardResponse aggregates the landing-page statistics.
type DashboardResponse struct {
	SchoolYear string             `json:"school_year"`
	Keyboards  KeyboardSection    `json:"keyboards"`
	Loans      LoanSection        `json:"loans"`
	Classes    []ClassLoanSummary `json:"classes"`
}

// KeyboardSection breaks the inventory down by status.
type KeyboardSection struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Loaned    int `json:"loaned"`
	InRepair  int `json:"in_repair"`
	Missing   int `json:"missing"`
}

// LoanSection summarises the ledger for the active year.
type LoanSection struct {
	Active   int `json:"active"`
	Returned int `json:"returned"`
	FeePaid  int `json:"fee_paid"`
	FeeOpen  int `json:"fee_open"`
}

// ClassLoanSummary shows per-class loan progress.
type ClassLoanSummary struct {
	ClassID      string `json:"class_id"`
	ClassName    string `json:"class_name"`
	Grade        int    `json:"grade"`
	StudentCount int    `json:"student_count"`
	LoanCount    int    `json:"loan_count"`
	PaidCount    int    `json:"paid_count"`
}
