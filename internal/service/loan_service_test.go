package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	"github.com/feldbach-gym/keyboard-loan-api/internal/repository"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type mockLoanRepo struct {
	loans     map[string]models.LoanDetail
	createErr error
	reopenErr error

	returned struct {
		loanID    string
		condition models.KeyboardCondition
		status    models.KeyboardStatus
	}
	reopened   []string
	violations struct {
		students  int
		keyboards int
	}
}

func (m *mockLoanRepo) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error) {
	details := make([]models.LoanDetail, 0, len(m.loans))
	for _, l := range m.loans {
		details = append(details, l)
	}
	return details, len(details), nil
}

func (m *mockLoanRepo) FindByID(ctx context.Context, id string) (*models.LoanDetail, error) {
	if l, ok := m.loans[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLoanRepo) FindActiveByKeyboard(ctx context.Context, keyboardID string) (*models.Loan, error) {
	for _, l := range m.loans {
		if l.KeyboardID == keyboardID && l.ReturnedAt == nil {
			loan := l.Loan
			return &loan, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockLoanRepo) FindActiveByStudent(ctx context.Context, studentID string) (*models.Loan, error) {
	for _, l := range m.loans {
		if l.StudentID == studentID && l.ReturnedAt == nil {
			loan := l.Loan
			return &loan, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockLoanRepo) CreateActive(ctx context.Context, loan *models.Loan) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.loans == nil {
		m.loans = make(map[string]models.LoanDetail)
	}
	if loan.ID == "" {
		loan.ID = "generated"
	}
	loan.LoanedAt = time.Now()
	m.loans[loan.ID] = models.LoanDetail{Loan: *loan}
	return nil
}

func (m *mockLoanRepo) MarkReturned(ctx context.Context, loanID string, returnedAt time.Time, returnCondition models.KeyboardCondition, returnNotes *string, keyboardStatus models.KeyboardStatus) error {
	l, ok := m.loans[loanID]
	if !ok || l.ReturnedAt != nil {
		return sql.ErrNoRows
	}
	l.ReturnedAt = &returnedAt
	condition := string(returnCondition)
	l.ReturnCondition = &condition
	l.ReturnNotes = returnNotes
	m.loans[loanID] = l
	m.returned.loanID = loanID
	m.returned.condition = returnCondition
	m.returned.status = keyboardStatus
	return nil
}

func (m *mockLoanRepo) Reopen(ctx context.Context, loanID string) error {
	if m.reopenErr != nil {
		return m.reopenErr
	}
	l, ok := m.loans[loanID]
	if !ok || l.ReturnedAt == nil {
		return sql.ErrNoRows
	}
	l.ReturnedAt = nil
	l.ReturnCondition = nil
	l.ReturnNotes = nil
	m.loans[loanID] = l
	m.reopened = append(m.reopened, loanID)
	return nil
}

func (m *mockLoanRepo) ToggleFeePaid(ctx context.Context, loanID string) (bool, error) {
	l, ok := m.loans[loanID]
	if !ok {
		return false, sql.ErrNoRows
	}
	l.FeePaid = !l.FeePaid
	m.loans[loanID] = l
	return l.FeePaid, nil
}

func (m *mockLoanRepo) LedgerViolations(ctx context.Context) (int, int, error) {
	return m.violations.students, m.violations.keyboards, nil
}

type mockStudentReader struct {
	students map[string]models.StudentDetail
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockKeyboardReader struct {
	keyboards map[string]models.Keyboard
}

func (m *mockKeyboardReader) FindByID(ctx context.Context, id string) (*models.Keyboard, error) {
	if k, ok := m.keyboards[id]; ok {
		return &k, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditWriter struct {
	entries []models.AuditLog
}

func (m *mockAuditWriter) Create(ctx context.Context, entry *models.AuditLog) error {
	m.entries = append(m.entries, *entry)
	return nil
}

type mockOverviewCache struct {
	invalidations int
}

func (m *mockOverviewCache) Invalidate(ctx context.Context) {
	m.invalidations++
}

func newLoanServiceFixture() (*LoanService, *mockLoanRepo, *mockAuditWriter) {
	loans := &mockLoanRepo{loans: make(map[string]models.LoanDetail)}
	students := &mockStudentReader{students: map[string]models.StudentDetail{
		"st-1": {Student: models.Student{ID: "st-1", LastName: "Muster", FirstName: "Max", ClassID: "cl-1", FeePrepaid: true}},
		"st-2": {Student: models.Student{ID: "st-2", LastName: "Beispiel", FirstName: "Eva", ClassID: "cl-1"}},
	}}
	keyboards := &mockKeyboardReader{keyboards: map[string]models.Keyboard{
		"kb-1": {ID: "kb-1", InventoryNumber: "KB001", Condition: models.ConditionOK, Status: models.StatusInStorage},
		"kb-2": {ID: "kb-2", InventoryNumber: "KB002", Condition: models.ConditionOK, Status: models.StatusLoaned},
	}}
	audit := &mockAuditWriter{}
	svc := NewLoanService(loans, students, keyboards, audit, nil, 10.0, validator.New(), zap.NewNop())
	return svc, loans, audit
}

func TestLoanServiceCreateCopiesPrepaidFlag(t *testing.T) {
	svc, loans, audit := newLoanServiceFixture()

	loan, err := svc.Create(context.Background(), CreateLoanRequest{StudentID: "st-1", KeyboardID: "kb-1"}, Actor{UserID: "teacher"})
	require.NoError(t, err)
	assert.True(t, loan.FeePaid)
	assert.Equal(t, 10.0, loan.FeeAmount)
	assert.Len(t, loans.loans, 1)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionLoanCreate, audit.entries[0].Action)
}

func TestLoanServiceCreateExplicitFeeWins(t *testing.T) {
	svc, _, _ := newLoanServiceFixture()

	paid := false
	loan, err := svc.Create(context.Background(), CreateLoanRequest{StudentID: "st-1", KeyboardID: "kb-1", FeePaid: &paid}, Actor{})
	require.NoError(t, err)
	assert.False(t, loan.FeePaid)
}

func TestLoanServiceCreateKeyboardUnavailable(t *testing.T) {
	svc, _, _ := newLoanServiceFixture()

	_, err := svc.Create(context.Background(), CreateLoanRequest{StudentID: "st-1", KeyboardID: "kb-2"}, Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestLoanServiceCreateStudentConflict(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	loans.createErr = repository.ErrStudentHasActiveLoan

	_, err := svc.Create(context.Background(), CreateLoanRequest{StudentID: "st-1", KeyboardID: "kb-1"}, Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestLoanServiceCreateUnknownStudent(t *testing.T) {
	svc, _, _ := newLoanServiceFixture()

	_, err := svc.Create(context.Background(), CreateLoanRequest{StudentID: "nope", KeyboardID: "kb-1"}, Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestLoanServiceReturnRoutesKeyboardByCondition(t *testing.T) {
	cases := []struct {
		condition models.KeyboardCondition
		status    models.KeyboardStatus
	}{
		{models.ConditionOK, models.StatusInStorage},
		{models.ConditionDefective, models.StatusInStorage},
		{models.ConditionInRepair, models.StatusInRepair},
	}
	for _, tc := range cases {
		svc, loans, _ := newLoanServiceFixture()
		loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1"}}

		returned, err := svc.Return(context.Background(), "ln-1", ReturnLoanRequest{ReturnCondition: tc.condition}, Actor{})
		require.NoError(t, err)
		assert.False(t, returned.IsActive())
		assert.Equal(t, tc.condition, loans.returned.condition)
		assert.Equal(t, tc.status, loans.returned.status)
	}
}

func TestLoanServiceReturnDefaultsToOK(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1"}}

	_, err := svc.Return(context.Background(), "ln-1", ReturnLoanRequest{}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, models.ConditionOK, loans.returned.condition)
	assert.Equal(t, models.StatusInStorage, loans.returned.status)
}

func TestLoanServiceReturnUnknownCondition(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1"}}

	_, err := svc.Return(context.Background(), "ln-1", ReturnLoanRequest{ReturnCondition: "broken"}, Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestLoanServiceReturnTwice(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	returnedAt := time.Now().Add(-time.Hour)
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1", ReturnedAt: &returnedAt}}

	_, err := svc.Return(context.Background(), "ln-1", ReturnLoanRequest{}, Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrAlreadyReturned.Code, appErr.Code)
}

func TestLoanServiceUndoReturn(t *testing.T) {
	svc, loans, audit := newLoanServiceFixture()
	returnedAt := time.Now().Add(-time.Hour)
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1", ReturnedAt: &returnedAt}}

	loan, err := svc.UndoReturn(context.Background(), "ln-1", Actor{UserID: "teacher"})
	require.NoError(t, err)
	assert.True(t, loan.IsActive())
	assert.Contains(t, loans.reopened, "ln-1")
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionLoanUndoReturn, audit.entries[0].Action)
}

func TestLoanServiceUndoReturnKeyboardReassigned(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	returnedAt := time.Now().Add(-time.Hour)
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1", ReturnedAt: &returnedAt}}
	loans.loans["ln-2"] = models.LoanDetail{Loan: models.Loan{ID: "ln-2", KeyboardID: "kb-1", StudentID: "st-2"}}

	_, err := svc.UndoReturn(context.Background(), "ln-1", Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrKeyboardReassigned.Code, appErr.Code)
}

func TestLoanServiceUndoReturnStudentBusy(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	returnedAt := time.Now().Add(-time.Hour)
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1", ReturnedAt: &returnedAt}}
	// Same student meanwhile borrowed a different keyboard.
	loans.loans["ln-2"] = models.LoanDetail{Loan: models.Loan{ID: "ln-2", KeyboardID: "kb-2", StudentID: "st-1"}}

	_, err := svc.UndoReturn(context.Background(), "ln-1", Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestLoanServiceUndoReturnStillActive(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1"}}

	_, err := svc.UndoReturn(context.Background(), "ln-1", Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotReturned.Code, appErr.Code)
}

func TestLoanServiceUndoReturnRaceMapsConflict(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	returnedAt := time.Now().Add(-time.Hour)
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1", ReturnedAt: &returnedAt}}
	loans.reopenErr = repository.ErrKeyboardOnLoan

	_, err := svc.UndoReturn(context.Background(), "ln-1", Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrKeyboardReassigned.Code, appErr.Code)
}

func TestLoanServiceToggleFeePaid(t *testing.T) {
	svc, loans, audit := newLoanServiceFixture()
	loans.loans["ln-1"] = models.LoanDetail{Loan: models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1"}}

	paid, err := svc.ToggleFeePaid(context.Background(), "ln-1", Actor{UserID: "teacher"})
	require.NoError(t, err)
	assert.True(t, paid)

	paid, err = svc.ToggleFeePaid(context.Background(), "ln-1", Actor{UserID: "teacher"})
	require.NoError(t, err)
	assert.False(t, paid)

	require.Len(t, audit.entries, 2)
	assert.Equal(t, models.AuditActionLoanToggleFee, audit.entries[0].Action)
	assert.Contains(t, *audit.entries[0].Details, "paid")
	assert.Contains(t, *audit.entries[1].Details, "open")
}

func TestLoanServiceToggleFeePaidNotFound(t *testing.T) {
	svc, _, _ := newLoanServiceFixture()

	_, err := svc.ToggleFeePaid(context.Background(), "missing", Actor{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestLoanServiceWritesDropOverviewCache(t *testing.T) {
	loans := &mockLoanRepo{loans: make(map[string]models.LoanDetail)}
	students := &mockStudentReader{students: map[string]models.StudentDetail{
		"st-1": {Student: models.Student{ID: "st-1", LastName: "Muster", FirstName: "Max", ClassID: "cl-1"}},
	}}
	keyboards := &mockKeyboardReader{keyboards: map[string]models.Keyboard{
		"kb-1": {ID: "kb-1", InventoryNumber: "KB001", Condition: models.ConditionOK, Status: models.StatusInStorage},
	}}
	cache := &mockOverviewCache{}
	svc := NewLoanService(loans, students, keyboards, &mockAuditWriter{}, cache, 10.0, validator.New(), zap.NewNop())

	loan, err := svc.Create(context.Background(), CreateLoanRequest{StudentID: "st-1", KeyboardID: "kb-1"}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)

	_, err = svc.Return(context.Background(), loan.ID, ReturnLoanRequest{}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.invalidations)

	_, err = svc.UndoReturn(context.Background(), loan.ID, Actor{})
	require.NoError(t, err)
	assert.Equal(t, 3, cache.invalidations)

	_, err = svc.ToggleFeePaid(context.Background(), loan.ID, Actor{})
	require.NoError(t, err)
	assert.Equal(t, 4, cache.invalidations)
}

func TestLoanServiceLedgerCheckClean(t *testing.T) {
	svc, _, _ := newLoanServiceFixture()

	report, err := svc.LedgerCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Zero(t, report.StudentsWithMultipleLoans)
	assert.Zero(t, report.KeyboardsWithMultipleLoans)
}

func TestLoanServiceLedgerCheckReportsViolations(t *testing.T) {
	svc, loans, _ := newLoanServiceFixture()
	loans.violations.students = 1
	loans.violations.keyboards = 2

	report, err := svc.LedgerCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Equal(t, 1, report.StudentsWithMultipleLoans)
	assert.Equal(t, 2, report.KeyboardsWithMultipleLoans)
}
