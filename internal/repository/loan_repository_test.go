package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

func newLoanRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLoanRepositoryCreateActive(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loans").
		WithArgs(sqlmock.AnyArg(), "kb-1", "st-1", sqlmock.AnyArg(), true, 10.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE keyboards SET status = 'loaned'").
		WithArgs("kb-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	loan := &models.Loan{KeyboardID: "kb-1", StudentID: "st-1", FeePaid: true, FeeAmount: 10.0}
	require.NoError(t, repo.CreateActive(context.Background(), loan))
	assert.NotEmpty(t, loan.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryCreateActiveStudentConflict(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loans").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_loans_active_student"})
	mock.ExpectRollback()

	loan := &models.Loan{KeyboardID: "kb-1", StudentID: "st-1", FeeAmount: 10.0}
	err := repo.CreateActive(context.Background(), loan)
	assert.ErrorIs(t, err, ErrStudentHasActiveLoan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryCreateActiveKeyboardConflict(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loans").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_loans_active_keyboard"})
	mock.ExpectRollback()

	err := repo.CreateActive(context.Background(), &models.Loan{KeyboardID: "kb-1", StudentID: "st-1"})
	assert.ErrorIs(t, err, ErrKeyboardOnLoan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryMarkReturned(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE loans SET returned_at").
		WithArgs("loan-1", sqlmock.AnyArg(), string(models.ConditionDefective), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"keyboard_id"}).AddRow("kb-1"))
	mock.ExpectExec("UPDATE keyboards SET condition").
		WithArgs("kb-1", string(models.ConditionDefective), string(models.StatusInStorage), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.MarkReturned(context.Background(), "loan-1", time.Now().UTC(),
		models.ConditionDefective, nil, models.StatusInStorage)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryMarkReturnedAlreadyClosed(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE loans SET returned_at").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.MarkReturned(context.Background(), "loan-1", time.Now().UTC(),
		models.ConditionOK, nil, models.StatusInStorage)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryReopen(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE loans SET returned_at = NULL").
		WithArgs("loan-1").
		WillReturnRows(sqlmock.NewRows([]string{"keyboard_id"}).AddRow("kb-1"))
	mock.ExpectExec("UPDATE keyboards SET status = 'loaned', condition = 'ok'").
		WithArgs("kb-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Reopen(context.Background(), "loan-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryReopenConflict(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE loans SET returned_at = NULL").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_loans_active_keyboard"})
	mock.ExpectRollback()

	err := repo.Reopen(context.Background(), "loan-1")
	assert.ErrorIs(t, err, ErrKeyboardOnLoan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryToggleFeePaid(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE loans SET fee_paid = NOT fee_paid WHERE id = $1 RETURNING fee_paid")).
		WithArgs("loan-1").
		WillReturnRows(sqlmock.NewRows([]string{"fee_paid"}).AddRow(true))

	paid, err := repo.ToggleFeePaid(context.Background(), "loan-1")
	require.NoError(t, err)
	assert.True(t, paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryList(t *testing.T) {
	db, mock, cleanup := newLoanRepoMock(t)
	defer cleanup()
	repo := NewLoanRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "keyboard_id", "student_id", "loaned_at", "returned_at", "return_condition", "return_notes",
		"fee_paid", "fee_amount", "created_by", "created_at",
		"student_last_name", "student_first_name", "class_id", "class_name", "inventory_number",
	}).AddRow("loan-1", "kb-1", "st-1", now, nil, nil, nil, false, 10.0, nil, now, "Muster", "Max", "cls-1", "5A", "KB01")

	mock.ExpectQuery("SELECT l.id, l.keyboard_id").WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM loans l")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	active := true
	list, total, err := repo.List(context.Background(), models.LoanFilter{Active: &active})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "KB01", list[0].InventoryNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}
