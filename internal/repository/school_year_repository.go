package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

// SchoolYearRepository manages persistence for school years.
type SchoolYearRepository struct {
	db *sqlx.DB
}

// NewSchoolYearRepository constructs a SchoolYearRepository.
func NewSchoolYearRepository(db *sqlx.DB) *SchoolYearRepository {
	return &SchoolYearRepository{db: db}
}

// List returns school years matching the provided filters.
func (r *SchoolYearRepository) List(ctx context.Context, filter models.SchoolYearFilter) ([]models.SchoolYear, int, error) {
	base := "FROM school_years"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":       "name",
		"start_date": "start_date",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, start_date, end_date, is_active, created_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var years []models.SchoolYear
	if err := r.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list school years: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count school years: %w", err)
	}
	return years, total, nil
}

// FindByID fetches a school year by ID.
func (r *SchoolYearRepository) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, created_at FROM school_years WHERE id = $1`
	var year models.SchoolYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindByName fetches a school year by its unique name.
func (r *SchoolYearRepository) FindByName(ctx context.Context, name string) (*models.SchoolYear, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, created_at FROM school_years WHERE name = $1`
	var year models.SchoolYear
	if err := r.db.GetContext(ctx, &year, query, name); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindActive returns the currently active school year.
func (r *SchoolYearRepository) FindActive(ctx context.Context) (*models.SchoolYear, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, created_at FROM school_years WHERE is_active = TRUE LIMIT 1`
	var year models.SchoolYear
	if err := r.db.GetContext(ctx, &year, query); err != nil {
		return nil, err
	}
	return &year, nil
}

// Create inserts a new school year.
func (r *SchoolYearRepository) Create(ctx context.Context, year *models.SchoolYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	if year.CreatedAt.IsZero() {
		year.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO school_years (id, name, start_date, end_date, is_active, created_at)
        VALUES (:id, :name, :start_date, :end_date, :is_active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create school year: %w", err)
	}
	return nil
}

// Update modifies an existing school year.
func (r *SchoolYearRepository) Update(ctx context.Context, year *models.SchoolYear) error {
	const query = `UPDATE school_years SET name = :name, start_date = :start_date, end_date = :end_date WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("update school year: %w", err)
	}
	return nil
}

// SetActive marks one year active and deactivates all others.
func (r *SchoolYearRepository) SetActive(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE school_years SET is_active = FALSE WHERE is_active = TRUE AND id <> $1`, id); err != nil {
		return fmt.Errorf("deactivate other years: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE school_years SET is_active = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("activate year: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set active tx: %w", err)
	}
	return nil
}
