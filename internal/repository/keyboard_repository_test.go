package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

func TestKeyboardRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewKeyboardRepository(db)

	mock.ExpectExec("INSERT INTO keyboards").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "keyboards_inventory_number_key"})

	err := repo.Create(context.Background(), &models.Keyboard{
		InventoryNumber: "KB01",
		Condition:       models.ConditionOK,
		Status:          models.StatusInStorage,
	})
	assert.ErrorIs(t, err, ErrDuplicateInventoryNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyboardRepositoryListAvailableOnly(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewKeyboardRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "inventory_number", "internal_number", "condition", "status", "notes", "created_at", "updated_at"}).
		AddRow("kb-1", "KB01", 1, "ok", "in_storage", nil, now, now)
	mock.ExpectQuery("SELECT id, inventory_number").WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM keyboards")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	available := true
	list, total, err := repo.List(context.Background(), models.KeyboardFilter{Available: &available})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.True(t, list[0].IsAvailable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyboardRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewKeyboardRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("in_storage", 12).
		AddRow("loaned", 30)
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) AS count FROM keyboards GROUP BY status").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, counts[models.StatusInStorage])
	assert.Equal(t, 30, counts[models.StatusLoaned])
	assert.NoError(t, mock.ExpectationsWereMet())
}
