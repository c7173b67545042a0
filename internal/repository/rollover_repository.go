package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

// RolloverResult reports what the year promotion changed.
type RolloverResult struct {
	ClassesCreated int
	StudentsMoved  int
	LoansMoved     int
}

// RolloverRepository runs the school year promotion as one transaction.
type RolloverRepository struct {
	db *sqlx.DB
}

// NewRolloverRepository constructs a RolloverRepository.
func NewRolloverRepository(db *sqlx.DB) *RolloverRepository {
	return &RolloverRepository{db: db}
}

// PromoteYear creates the new school year, carries each grade-5 class
// forward as a grade-6 class (moving its students, open loans follow
// their students), creates empty grade-5 classes and flips the active
// year. Everything commits or nothing does.
func (r *RolloverRepository) PromoteYear(ctx context.Context, currentYearID string, newYear *models.SchoolYear) (*RolloverResult, error) {
	if newYear.ID == "" {
		newYear.ID = uuid.NewString()
	}
	if newYear.CreatedAt.IsZero() {
		newYear.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rollover tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertYear = `INSERT INTO school_years (id, name, start_date, end_date, is_active, created_at)
        VALUES (:id, :name, :start_date, :end_date, FALSE, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertYear, newYear); err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("school year %q already exists", newYear.Name)
			return nil, err
		}
		return nil, fmt.Errorf("insert new year: %w", err)
	}

	var fifthGrade []models.SchoolClass
	const selectFifth = `SELECT id, name, grade, school_year_id, class_teacher, music_teacher, loan_date, created_at
        FROM school_classes WHERE school_year_id = $1 AND grade = 5 ORDER BY name`
	if err = tx.SelectContext(ctx, &fifthGrade, selectFifth, currentYearID); err != nil {
		return nil, fmt.Errorf("load grade-5 classes: %w", err)
	}

	result := &RolloverResult{}
	now := time.Now().UTC()

	for _, old := range fifthGrade {
		letter := old.Name[len(old.Name)-1:]
		next := models.SchoolClass{
			ID:           uuid.NewString(),
			Name:         "6" + letter,
			Grade:        6,
			SchoolYearID: newYear.ID,
			ClassTeacher: old.ClassTeacher,
			MusicTeacher: old.MusicTeacher,
			CreatedAt:    now,
		}
		const insertClass = `INSERT INTO school_classes (id, name, grade, school_year_id, class_teacher, music_teacher, created_at)
            VALUES (:id, :name, :grade, :school_year_id, :class_teacher, :music_teacher, :created_at)`
		if _, err = tx.NamedExecContext(ctx, insertClass, next); err != nil {
			return nil, fmt.Errorf("create class %s: %w", next.Name, err)
		}
		result.ClassesCreated++

		var loansFollowing int
		const countLoans = `SELECT COUNT(*) FROM loans l JOIN students s ON s.id = l.student_id
            WHERE s.class_id = $1 AND l.returned_at IS NULL`
		if err = tx.GetContext(ctx, &loansFollowing, countLoans, old.ID); err != nil {
			return nil, fmt.Errorf("count open loans of %s: %w", old.Name, err)
		}
		result.LoansMoved += loansFollowing

		var moved int64
		res, execErr := tx.ExecContext(ctx, `UPDATE students SET class_id = $2 WHERE class_id = $1`, old.ID, next.ID)
		if execErr != nil {
			err = fmt.Errorf("move students of %s: %w", old.Name, execErr)
			return nil, err
		}
		if moved, err = res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("count moved students: %w", err)
		}
		result.StudentsMoved += int(moved)
	}

	for _, letter := range []string{"A", "B", "C", "D"} {
		empty := models.SchoolClass{
			ID:           uuid.NewString(),
			Name:         "5" + letter,
			Grade:        5,
			SchoolYearID: newYear.ID,
			CreatedAt:    now,
		}
		const insertClass = `INSERT INTO school_classes (id, name, grade, school_year_id, created_at)
            VALUES (:id, :name, :grade, :school_year_id, :created_at)`
		if _, err = tx.NamedExecContext(ctx, insertClass, empty); err != nil {
			return nil, fmt.Errorf("create class %s: %w", empty.Name, err)
		}
		result.ClassesCreated++
	}

	if _, err = tx.ExecContext(ctx, `UPDATE school_years SET is_active = FALSE WHERE id = $1`, currentYearID); err != nil {
		return nil, fmt.Errorf("deactivate old year: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE school_years SET is_active = TRUE WHERE id = $1`, newYear.ID); err != nil {
		return nil, fmt.Errorf("activate new year: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rollover tx: %w", err)
	}
	newYear.IsActive = true
	return result, nil
}
