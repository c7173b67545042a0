package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

// ErrDuplicateInventoryNumber reports a unique violation on the
// keyboard inventory number.
var ErrDuplicateInventoryNumber = fmt.Errorf("inventory number already exists")

// KeyboardRepository manages persistence for the instrument inventory.
type KeyboardRepository struct {
	db *sqlx.DB
}

// NewKeyboardRepository constructs a KeyboardRepository.
func NewKeyboardRepository(db *sqlx.DB) *KeyboardRepository {
	return &KeyboardRepository{db: db}
}

// List returns keyboards matching the provided filters.
func (r *KeyboardRepository) List(ctx context.Context, filter models.KeyboardFilter) ([]models.Keyboard, int, error) {
	base := "FROM keyboards"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Condition != "" {
		conditions = append(conditions, fmt.Sprintf("condition = $%d", len(args)+1))
		args = append(args, filter.Condition)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Available != nil && *filter.Available {
		conditions = append(conditions, "status = 'in_storage' AND condition = 'ok'")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(inventory_number) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"inventory_number": "inventory_number",
		"internal_number":  "internal_number NULLS LAST, inventory_number",
		"status":           "status, inventory_number",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "internal_number NULLS LAST, inventory_number"
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

	query := fmt.Sprintf(`SELECT id, inventory_number, internal_number, condition, status, notes, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var keyboards []models.Keyboard
	if err := r.db.SelectContext(ctx, &keyboards, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list keyboards: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count keyboards: %w", err)
	}
	return keyboards, total, nil
}

// FindByID fetches a keyboard by ID.
func (r *KeyboardRepository) FindByID(ctx context.Context, id string) (*models.Keyboard, error) {
	const query = `SELECT id, inventory_number, internal_number, condition, status, notes, created_at, updated_at
        FROM keyboards WHERE id = $1`
	var keyboard models.Keyboard
	if err := r.db.GetContext(ctx, &keyboard, query, id); err != nil {
		return nil, err
	}
	return &keyboard, nil
}

// FindByInventoryNumber fetches a keyboard by its natural key.
func (r *KeyboardRepository) FindByInventoryNumber(ctx context.Context, inventoryNumber string) (*models.Keyboard, error) {
	const query = `SELECT id, inventory_number, internal_number, condition, status, notes, created_at, updated_at
        FROM keyboards WHERE inventory_number = $1`
	var keyboard models.Keyboard
	if err := r.db.GetContext(ctx, &keyboard, query, inventoryNumber); err != nil {
		return nil, err
	}
	return &keyboard, nil
}

// Create inserts a new keyboard.
func (r *KeyboardRepository) Create(ctx context.Context, keyboard *models.Keyboard) error {
	if keyboard.ID == "" {
		keyboard.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if keyboard.CreatedAt.IsZero() {
		keyboard.CreatedAt = now
	}
	keyboard.UpdatedAt = now
	const query = `INSERT INTO keyboards (id, inventory_number, internal_number, condition, status, notes, created_at, updated_at)
        VALUES (:id, :inventory_number, :internal_number, :condition, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, keyboard); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInventoryNumber
		}
		return fmt.Errorf("create keyboard: %w", err)
	}
	return nil
}

// Update modifies an existing keyboard.
func (r *KeyboardRepository) Update(ctx context.Context, keyboard *models.Keyboard) error {
	keyboard.UpdatedAt = time.Now().UTC()
	const query = `UPDATE keyboards SET inventory_number = :inventory_number, internal_number = :internal_number,
        condition = :condition, status = :status, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, keyboard); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInventoryNumber
		}
		return fmt.Errorf("update keyboard: %w", err)
	}
	return nil
}

// HasLoans reports whether any loan rows reference the keyboard.
func (r *KeyboardRepository) HasLoans(ctx context.Context, id string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM loans WHERE keyboard_id = $1 LIMIT 1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check keyboard loans: %w", err)
	}
	return true, nil
}

// Delete removes a keyboard permanently.
func (r *KeyboardRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM keyboards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete keyboard: %w", err)
	}
	return nil
}

// CountByStatus aggregates the inventory by status.
func (r *KeyboardRepository) CountByStatus(ctx context.Context) (map[models.KeyboardStatus]int, error) {
	rows := []struct {
		Status models.KeyboardStatus `db:"status"`
		Count  int                   `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM keyboards GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count keyboards by status: %w", err)
	}
	counts := make(map[models.KeyboardStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountAvailable counts instruments that can be handed out.
func (r *KeyboardRepository) CountAvailable(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM keyboards WHERE status = 'in_storage' AND condition = 'ok'`); err != nil {
		return 0, fmt.Errorf("count available keyboards: %w", err)
	}
	return count, nil
}

// isUniqueViolation detects PostgreSQL unique constraint errors.
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
