package dto

import (
	"encoding/json"
	"fmt"
)

// SnapshotVersionLegacy and SnapshotVersionCurrent identify the two
// supported backup formats.
const (
	SnapshotVersionLegacy  = "1.0"
	SnapshotVersionCurrent = "2.0"
)

// Snapshot is the JSON backup document. Version 2.0 nests students in
// their classes and carries loans by natural keys; the legacy 1.0 format
// lists students at the top level with an optional keyboard number.
type Snapshot struct {
	ExportVersion string                  `json:"export_version"`
	ExportedAt    string                  `json:"exported_at,omitempty"`
	SchoolYear    SnapshotSchoolYear      `json:"school_year"`
	Keyboards     []SnapshotKeyboard      `json:"keyboards,omitempty"`
	Classes       []SnapshotClass         `json:"classes,omitempty"`
	Loans         []SnapshotLoan          `json:"loans,omitempty"`
	Students      []SnapshotLegacyStudent `json:"students,omitempty"`
}

// Version returns the declared export version, defaulting to legacy.
func (s Snapshot) Version() string {
	if s.ExportVersion == "" {
		return SnapshotVersionLegacy
	}
	return s.ExportVersion
}

// SnapshotSchoolYear accepts both formats: a bare name string (1.0) or
// an object with dates and the active flag (2.0).
type SnapshotSchoolYear struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	IsActive  bool   `json:"is_active,omitempty"`
}

// UnmarshalJSON decodes either a plain string or the full object.
func (y *SnapshotSchoolYear) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*y = SnapshotSchoolYear{Name: name}
		return nil
	}
	type alias SnapshotSchoolYear
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("school_year must be a string or an object: %w", err)
	}
	*y = SnapshotSchoolYear(obj)
	return nil
}

// SnapshotKeyboard identifies an instrument by its inventory number.
type SnapshotKeyboard struct {
	InventoryNumber string  `json:"inventory_number"`
	InternalNumber  *int    `json:"internal_number,omitempty"`
	Condition       string  `json:"condition,omitempty"`
	Status          string  `json:"status,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

// SnapshotClass identifies a class by name within the snapshot year.
type SnapshotClass struct {
	Name         string            `json:"name"`
	Grade        int               `json:"grade"`
	ClassTeacher *string           `json:"class_teacher,omitempty"`
	MusicTeacher *string           `json:"music_teacher,omitempty"`
	Students     []SnapshotStudent `json:"students,omitempty"`
}

// SnapshotStudent is a student nested inside a class (2.0 format).
type SnapshotStudent struct {
	LastName           string  `json:"last_name"`
	FirstName          string  `json:"first_name"`
	Notes              *string `json:"notes,omitempty"`
	ParticipatesInLoan bool    `json:"participates_in_loan,omitempty"`
	FeePrepaid         bool    `json:"fee_prepaid,omitempty"`
}

// SnapshotLoan references student and keyboard by natural keys.
type SnapshotLoan struct {
	StudentClass            string  `json:"student_class"`
	StudentLastName         string  `json:"student_last_name"`
	StudentFirstName        string  `json:"student_first_name"`
	KeyboardInventoryNumber string  `json:"keyboard_inventory_number"`
	LoanedAt                *string `json:"loaned_at,omitempty"`
	FeePaid                 bool    `json:"fee_paid,omitempty"`
	FeeAmount               float64 `json:"fee_amount,omitempty"`
}

// SnapshotLegacyStudent is the 1.0 top-level student record. A non-empty
// keyboard number requests an open loan for that student.
type SnapshotLegacyStudent struct {
	ClassName    string `json:"class_name"`
	LastName     string `json:"last_name"`
	FirstName    string `json:"first_name"`
	Participates bool   `json:"participates,omitempty"`
	KeyboardNr   string `json:"keyboard_nr,omitempty"`
}

// ImportSummary counts the records a merge import created. Records that
// already existed or could not be resolved are not counted.
type ImportSummary struct {
	Keyboards int `json:"keyboards"`
	Classes   int `json:"classes"`
	Students  int `json:"students"`
	Loans     int `json:"loans"`
}

// String renders the summary the way the import report displays it.
func (s ImportSummary) String() string {
	return fmt.Sprintf("%d keyboards, %d classes, %d students, %d loans",
		s.Keyboards, s.Classes, s.Students, s.Loans)
}
