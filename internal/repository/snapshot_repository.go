package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/feldbach-gym/keyboard-loan-api/internal/dto"
	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

// SnapshotRepository runs the merge import as one transaction.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs a SnapshotRepository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// MergeSnapshot merges a backup snapshot into the existing dataset.
// Records are matched by natural keys and only created when missing, so
// re-importing the same snapshot is a no-op. Unresolvable references
// are skipped, not failed. Everything commits or nothing does.
func (r *SnapshotRepository) MergeSnapshot(ctx context.Context, snap dto.Snapshot, defaultFee float64) (*dto.ImportSummary, *models.SchoolYear, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	summary := &dto.ImportSummary{}
	now := time.Now().UTC()

	year, err := r.findOrCreateYear(ctx, tx, snap, now)
	if err != nil {
		return nil, nil, err
	}

	keyboardIDs := map[string]string{}
	for _, kb := range snap.Keyboards {
		if kb.InventoryNumber == "" {
			continue
		}
		var id string
		getErr := tx.GetContext(ctx, &id, `SELECT id FROM keyboards WHERE inventory_number = $1`, kb.InventoryNumber)
		switch {
		case getErr == nil:
		case getErr == sql.ErrNoRows:
			id = uuid.NewString()
			keyboard := models.Keyboard{
				ID:              id,
				InventoryNumber: kb.InventoryNumber,
				InternalNumber:  kb.InternalNumber,
				Condition:       normalizeCondition(kb.Condition),
				Status:          normalizeStatus(kb.Status),
				Notes:           kb.Notes,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			const insert = `INSERT INTO keyboards (id, inventory_number, internal_number, condition, status, notes, created_at, updated_at)
                VALUES (:id, :inventory_number, :internal_number, :condition, :status, :notes, :created_at, :updated_at)`
			if _, err = tx.NamedExecContext(ctx, insert, keyboard); err != nil {
				return nil, nil, fmt.Errorf("import keyboard %s: %w", kb.InventoryNumber, err)
			}
			summary.Keyboards++
		default:
			err = fmt.Errorf("look up keyboard %s: %w", kb.InventoryNumber, getErr)
			return nil, nil, err
		}
		keyboardIDs[kb.InventoryNumber] = id
	}

	classIDs := map[string]string{}
	for _, cls := range snap.Classes {
		var id string
		getErr := tx.GetContext(ctx, &id, `SELECT id FROM school_classes WHERE name = $1 AND school_year_id = $2`, cls.Name, year.ID)
		switch {
		case getErr == nil:
		case getErr == sql.ErrNoRows:
			id = uuid.NewString()
			class := models.SchoolClass{
				ID:           id,
				Name:         cls.Name,
				Grade:        cls.Grade,
				SchoolYearID: year.ID,
				ClassTeacher: cls.ClassTeacher,
				MusicTeacher: cls.MusicTeacher,
				CreatedAt:    now,
			}
			const insert = `INSERT INTO school_classes (id, name, grade, school_year_id, class_teacher, music_teacher, created_at)
                VALUES (:id, :name, :grade, :school_year_id, :class_teacher, :music_teacher, :created_at)`
			if _, err = tx.NamedExecContext(ctx, insert, class); err != nil {
				return nil, nil, fmt.Errorf("import class %s: %w", cls.Name, err)
			}
			summary.Classes++
		default:
			err = fmt.Errorf("look up class %s: %w", cls.Name, getErr)
			return nil, nil, err
		}
		classIDs[cls.Name] = id

		for _, st := range cls.Students {
			created, stErr := r.findOrCreateStudent(ctx, tx, models.Student{
				LastName:           st.LastName,
				FirstName:          st.FirstName,
				ClassID:            id,
				ParticipatesInLoan: st.ParticipatesInLoan,
				FeePrepaid:         st.FeePrepaid,
				Notes:              st.Notes,
				CreatedAt:          now,
			})
			if stErr != nil {
				err = stErr
				return nil, nil, err
			}
			if created {
				summary.Students++
			}
		}
	}

	for _, loan := range snap.Loans {
		classID, ok := classIDs[loan.StudentClass]
		if !ok {
			continue
		}
		var studentID string
		getErr := tx.GetContext(ctx, &studentID,
			`SELECT id FROM students WHERE last_name = $1 AND first_name = $2 AND class_id = $3`,
			loan.StudentLastName, loan.StudentFirstName, classID)
		if getErr == sql.ErrNoRows {
			continue
		}
		if getErr != nil {
			err = fmt.Errorf("look up student %s %s: %w", loan.StudentFirstName, loan.StudentLastName, getErr)
			return nil, nil, err
		}
		keyboardID, ok := keyboardIDs[loan.KeyboardInventoryNumber]
		if !ok {
			continue
		}
		fee := loan.FeeAmount
		if fee == 0 {
			fee = defaultFee
		}
		created, loanErr := r.createLoanIfFree(ctx, tx, studentID, keyboardID, loan.FeePaid, fee, now)
		if loanErr != nil {
			err = loanErr
			return nil, nil, err
		}
		if created {
			summary.Loans++
		}
	}

	// Legacy flat student list with an inline keyboard assignment.
	for _, st := range snap.Students {
		classID, ok := classIDs[st.ClassName]
		if !ok {
			continue
		}
		student := models.Student{
			LastName:           st.LastName,
			FirstName:          st.FirstName,
			ClassID:            classID,
			ParticipatesInLoan: st.Participates,
			CreatedAt:          now,
		}
		created, stErr := r.findOrCreateStudent(ctx, tx, student)
		if stErr != nil {
			err = stErr
			return nil, nil, err
		}
		if created {
			summary.Students++
		}
		if st.KeyboardNr == "" {
			continue
		}
		keyboardID, ok := keyboardIDs[st.KeyboardNr]
		if !ok {
			continue
		}
		var studentID string
		if err = tx.GetContext(ctx, &studentID,
			`SELECT id FROM students WHERE last_name = $1 AND first_name = $2 AND class_id = $3`,
			st.LastName, st.FirstName, classID); err != nil {
			return nil, nil, fmt.Errorf("look up student %s %s: %w", st.FirstName, st.LastName, err)
		}
		madeLoan, loanErr := r.createLoanIfFree(ctx, tx, studentID, keyboardID, false, defaultFee, now)
		if loanErr != nil {
			err = loanErr
			return nil, nil, err
		}
		if madeLoan {
			summary.Loans++
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit import tx: %w", err)
	}
	return summary, year, nil
}

func (r *SnapshotRepository) findOrCreateYear(ctx context.Context, tx *sqlx.Tx, snap dto.Snapshot, now time.Time) (*models.SchoolYear, error) {
	name := snap.SchoolYear.Name
	if name == "" {
		name = "2024/2025"
	}
	start := parseDateOr(snap.SchoolYear.StartDate, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
	end := parseDateOr(snap.SchoolYear.EndDate, time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC))

	var year models.SchoolYear
	err := tx.GetContext(ctx, &year,
		`SELECT id, name, start_date, end_date, is_active, created_at FROM school_years WHERE name = $1`, name)
	if err == nil {
		return &year, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("look up school year %s: %w", name, err)
	}

	// A snapshot for a new year becomes the active one.
	if _, err := tx.ExecContext(ctx, `UPDATE school_years SET is_active = FALSE WHERE is_active = TRUE`); err != nil {
		return nil, fmt.Errorf("deactivate years: %w", err)
	}
	year = models.SchoolYear{
		ID:        uuid.NewString(),
		Name:      name,
		StartDate: start,
		EndDate:   end,
		IsActive:  true,
		CreatedAt: now,
	}
	const insert = `INSERT INTO school_years (id, name, start_date, end_date, is_active, created_at)
        VALUES (:id, :name, :start_date, :end_date, :is_active, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, year); err != nil {
		return nil, fmt.Errorf("create school year %s: %w", name, err)
	}
	return &year, nil
}

func (r *SnapshotRepository) findOrCreateStudent(ctx context.Context, tx *sqlx.Tx, student models.Student) (bool, error) {
	var existing string
	err := tx.GetContext(ctx, &existing,
		`SELECT id FROM students WHERE last_name = $1 AND first_name = $2 AND class_id = $3`,
		student.LastName, student.FirstName, student.ClassID)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("look up student %s %s: %w", student.FirstName, student.LastName, err)
	}
	student.ID = uuid.NewString()
	const insert = `INSERT INTO students (id, last_name, first_name, class_id, participates_in_loan, fee_prepaid, notes, created_at)
        VALUES (:id, :last_name, :first_name, :class_id, :participates_in_loan, :fee_prepaid, :notes, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, student); err != nil {
		return false, fmt.Errorf("import student %s %s: %w", student.FirstName, student.LastName, err)
	}
	return true, nil
}

// createLoanIfFree opens a loan only when the student has no open loan
// yet, marking the keyboard loaned.
func (r *SnapshotRepository) createLoanIfFree(ctx context.Context, tx *sqlx.Tx, studentID, keyboardID string, feePaid bool, feeAmount float64, now time.Time) (bool, error) {
	var existing string
	err := tx.GetContext(ctx, &existing, `SELECT id FROM loans WHERE student_id = $1 AND returned_at IS NULL`, studentID)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("look up open loan: %w", err)
	}
	var keyboardBusy string
	err = tx.GetContext(ctx, &keyboardBusy, `SELECT id FROM loans WHERE keyboard_id = $1 AND returned_at IS NULL`, keyboardID)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("look up keyboard loan: %w", err)
	}

	loan := models.Loan{
		ID:         uuid.NewString(),
		KeyboardID: keyboardID,
		StudentID:  studentID,
		LoanedAt:   now,
		FeePaid:    feePaid,
		FeeAmount:  feeAmount,
		CreatedAt:  now,
	}
	const insert = `INSERT INTO loans (id, keyboard_id, student_id, loaned_at, fee_paid, fee_amount, created_at)
        VALUES (:id, :keyboard_id, :student_id, :loaned_at, :fee_paid, :fee_amount, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, loan); err != nil {
		return false, fmt.Errorf("import loan: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE keyboards SET status = 'loaned', updated_at = $2 WHERE id = $1`, keyboardID, now); err != nil {
		return false, fmt.Errorf("mark keyboard loaned: %w", err)
	}
	return true, nil
}

// normalizeCondition maps snapshot tokens, including the German ones of
// older backups, onto the condition enum.
func normalizeCondition(raw string) models.KeyboardCondition {
	switch raw {
	case string(models.ConditionDefective), "defekt":
		return models.ConditionDefective
	case string(models.ConditionInRepair), "in_reparatur":
		return models.ConditionInRepair
	default:
		return models.ConditionOK
	}
}

// normalizeStatus maps snapshot tokens, including the German ones of
// older backups, onto the status enum.
func normalizeStatus(raw string) models.KeyboardStatus {
	switch raw {
	case string(models.StatusLoaned), "ausgeliehen":
		return models.StatusLoaned
	case string(models.StatusInRepair), "in_reparatur":
		return models.StatusInRepair
	case string(models.StatusMissing), "verschollen":
		return models.StatusMissing
	default:
		return models.StatusInStorage
	}
}

func parseDateOr(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return fallback
}
