package models

import "time"

// KeyboardCondition describes the physical state of an instrument.
type KeyboardCondition string

const (
	ConditionOK        KeyboardCondition = "ok"
	ConditionDefective KeyboardCondition = "defective"
	ConditionInRepair  KeyboardCondition = "in_repair"
)

// KeyboardStatus describes where an instrument currently is.
type KeyboardStatus string

const (
	StatusInStorage KeyboardStatus = "in_storage"
	StatusLoaned    KeyboardStatus = "loaned"
	StatusInRepair  KeyboardStatus = "in_repair"
	StatusMissing   KeyboardStatus = "missing"
)

// Keyboard models one physical instrument in the inventory.
type Keyboard struct {
	ID              string            `db:"id" json:"id"`
	InventoryNumber string            `db:"inventory_number" json:"inventory_number"`
	InternalNumber  *int              `db:"internal_number" json:"internal_number,omitempty"`
	Condition       KeyboardCondition `db:"condition" json:"condition"`
	Status          KeyboardStatus    `db:"status" json:"status"`
	Notes           *string           `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// IsAvailable reports whether the keyboard can be handed out.
func (k Keyboard) IsAvailable() bool {
	return k.Status == StatusInStorage && k.Condition == ConditionOK
}

// KeyboardFilter defines filters supported by list endpoints.
type KeyboardFilter struct {
	Search    string
	Condition KeyboardCondition
	Status    KeyboardStatus
	Available *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
