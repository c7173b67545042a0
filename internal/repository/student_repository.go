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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s
        JOIN school_classes c ON c.id = s.class_id
        LEFT JOIN loans l ON l.student_id = s.id AND l.returned_at IS NULL
        LEFT JOIN keyboards k ON k.id = l.keyboard_id`
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Participates != nil {
		conditions = append(conditions, fmt.Sprintf("s.participates_in_loan = $%d", len(args)+1))
		args = append(args, *filter.Participates)
	}
	if filter.WithoutLoan {
		conditions = append(conditions, "l.id IS NULL")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.last_name) LIKE $%d OR LOWER(s.first_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"last_name":  "s.last_name, s.first_name",
		"class":      "c.name, s.last_name",
		"created_at": "s.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.last_name, s.first_name"
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
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.last_name, s.first_name, s.class_id, s.participates_in_loan, s.fee_prepaid, s.notes, s.created_at,
        c.name AS class_name, l.id AS active_loan_id, k.inventory_number
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT s.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.last_name, s.first_name, s.class_id, s.participates_in_loan, s.fee_prepaid, s.notes, s.created_at,
        c.name AS class_name, l.id AS active_loan_id, k.inventory_number
        FROM students s
        JOIN school_classes c ON c.id = s.class_id
        LEFT JOIN loans l ON l.student_id = s.id AND l.returned_at IS NULL
        LEFT JOIN keyboards k ON k.id = l.keyboard_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByNaturalKey fetches a student by name within a class.
func (r *StudentRepository) FindByNaturalKey(ctx context.Context, lastName, firstName, classID string) (*models.Student, error) {
	const query = `SELECT id, last_name, first_name, class_id, participates_in_loan, fee_prepaid, notes, created_at
        FROM students WHERE last_name = $1 AND first_name = $2 AND class_id = $3`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, lastName, firstName, classID); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO students (id, last_name, first_name, class_id, participates_in_loan, fee_prepaid, notes, created_at)
        VALUES (:id, :last_name, :first_name, :class_id, :participates_in_loan, :fee_prepaid, :notes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET last_name = :last_name, first_name = :first_name, class_id = :class_id,
        participates_in_loan = :participates_in_loan, fee_prepaid = :fee_prepaid, notes = :notes WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// HasLoans reports whether any loan rows reference the student.
func (r *StudentRepository) HasLoans(ctx context.Context, id string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM loans WHERE student_id = $1 LIMIT 1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student loans: %w", err)
	}
	return true, nil
}

// Delete removes a student permanently.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}
