package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

func duplicateKeyErr() error {
	return &pq.Error{Code: "23505", Constraint: "school_years_name_key"}
}

func TestRolloverRepositoryPromoteYear(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewRolloverRepository(db)

	teacher := "Frau Berger"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO school_years").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id, name, grade, school_year_id").
		WithArgs("year-old").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "grade", "school_year_id", "class_teacher", "music_teacher", "loan_date", "created_at"}).
			AddRow("cls-5a", "5A", 5, "year-old", teacher, nil, nil, time.Now()))

	// 5A becomes 6A, students move with it.
	mock.ExpectExec("INSERT INTO school_classes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM loans l JOIN students s").
		WithArgs("cls-5a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectExec("UPDATE students SET class_id").
		WillReturnResult(sqlmock.NewResult(0, 21))

	// Four fresh grade-5 classes.
	for range []string{"A", "B", "C", "D"} {
		mock.ExpectExec("INSERT INTO school_classes").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	mock.ExpectExec("UPDATE school_years SET is_active = FALSE").
		WithArgs("year-old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE school_years SET is_active = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newYear := &models.SchoolYear{
		Name:      "2025/26",
		StartDate: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
	}
	result, err := repo.PromoteYear(context.Background(), "year-old", newYear)
	require.NoError(t, err)
	assert.Equal(t, 5, result.ClassesCreated)
	assert.Equal(t, 21, result.StudentsMoved)
	assert.Equal(t, 7, result.LoansMoved)
	assert.True(t, newYear.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRolloverRepositoryPromoteYearDuplicateName(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewRolloverRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO school_years").
		WillReturnError(duplicateKeyErr())
	mock.ExpectRollback()

	_, err := repo.PromoteYear(context.Background(), "year-old", &models.SchoolYear{Name: "2025/26"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}
