package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

// SchoolClassRepository manages persistence for class groups.
type SchoolClassRepository struct {
	db *sqlx.DB
}

// NewSchoolClassRepository constructs a SchoolClassRepository.
func NewSchoolClassRepository(db *sqlx.DB) *SchoolClassRepository {
	return &SchoolClassRepository{db: db}
}

// List returns classes with per-class roster and loan counters.
func (r *SchoolClassRepository) List(ctx context.Context, filter models.SchoolClassFilter) ([]models.ClassSummary, int, error) {
	base := "FROM school_classes c"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.SchoolYearID != "" {
		conditions = append(conditions, fmt.Sprintf("c.school_year_id = $%d", len(args)+1))
		args = append(args, filter.SchoolYearID)
	}
	if filter.Grade > 0 {
		conditions = append(conditions, fmt.Sprintf("c.grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":  "c.name",
		"grade": "c.grade, c.name",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "c.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.name, c.grade, c.school_year_id, c.class_teacher, c.music_teacher, c.loan_date, c.created_at,
        (SELECT COUNT(*) FROM students s WHERE s.class_id = c.id) AS student_count,
        (SELECT COUNT(*) FROM loans l JOIN students s ON s.id = l.student_id WHERE s.class_id = c.id AND l.returned_at IS NULL) AS loan_count,
        (SELECT COUNT(*) FROM loans l JOIN students s ON s.id = l.student_id WHERE s.class_id = c.id AND l.returned_at IS NULL AND l.fee_paid) AS paid_count,
        (SELECT COUNT(*) FROM loans l JOIN students s ON s.id = l.student_id WHERE s.class_id = c.id AND l.returned_at IS NOT NULL) AS returned_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var classes []models.ClassSummary
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID fetches a class by ID.
func (r *SchoolClassRepository) FindByID(ctx context.Context, id string) (*models.SchoolClass, error) {
	const query = `SELECT id, name, grade, school_year_id, class_teacher, music_teacher, loan_date, created_at
        FROM school_classes WHERE id = $1`
	var class models.SchoolClass
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByNameAndYear fetches a class by its natural key.
func (r *SchoolClassRepository) FindByNameAndYear(ctx context.Context, name, schoolYearID string) (*models.SchoolClass, error) {
	const query = `SELECT id, name, grade, school_year_id, class_teacher, music_teacher, loan_date, created_at
        FROM school_classes WHERE name = $1 AND school_year_id = $2`
	var class models.SchoolClass
	if err := r.db.GetContext(ctx, &class, query, name, schoolYearID); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByNameAndYear checks the natural-key uniqueness, optionally
// excluding an ID for updates.
func (r *SchoolClassRepository) ExistsByNameAndYear(ctx context.Context, name, schoolYearID, excludeID string) (bool, error) {
	query := "SELECT 1 FROM school_classes WHERE name = $1 AND school_year_id = $2"
	args := []interface{}{name, schoolYearID}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// Create inserts a new class.
func (r *SchoolClassRepository) Create(ctx context.Context, class *models.SchoolClass) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO school_classes (id, name, grade, school_year_id, class_teacher, music_teacher, loan_date, created_at)
        VALUES (:id, :name, :grade, :school_year_id, :class_teacher, :music_teacher, :loan_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies an existing class.
func (r *SchoolClassRepository) Update(ctx context.Context, class *models.SchoolClass) error {
	const query = `UPDATE school_classes SET name = :name, grade = :grade, class_teacher = :class_teacher,
        music_teacher = :music_teacher, loan_date = :loan_date WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// CountStudents returns the roster size of a class.
func (r *SchoolClassRepository) CountStudents(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM students WHERE class_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// Delete removes a class permanently.
func (r *SchoolClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM school_classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}
