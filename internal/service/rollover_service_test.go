package service

import (
	"context"
	"database/sql"
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

type mockYearReader struct {
	active *models.SchoolYear
}

func (m *mockYearReader) FindActive(ctx context.Context) (*models.SchoolYear, error) {
	if m.active == nil {
		return nil, sql.ErrNoRows
	}
	return m.active, nil
}

type mockClassReader struct {
	byGrade map[int]int
}

func (m *mockClassReader) List(ctx context.Context, filter models.SchoolClassFilter) ([]models.ClassSummary, int, error) {
	return nil, m.byGrade[filter.Grade], nil
}

type mockLoanCounter struct {
	byGrade map[int]int
}

func (m *mockLoanCounter) CountActiveByYearAndGrade(ctx context.Context, schoolYearID string, grade int) (int, error) {
	return m.byGrade[grade], nil
}

type mockRolloverRunner struct {
	result  *repository.RolloverResult
	err     error
	newYear *models.SchoolYear
}

func (m *mockRolloverRunner) PromoteYear(ctx context.Context, currentYearID string, newYear *models.SchoolYear) (*repository.RolloverResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	newYear.ID = "sy-new"
	newYear.IsActive = true
	m.newYear = newYear
	return m.result, nil
}

func newRolloverFixture(openGrade6 int) (*RolloverService, *mockRolloverRunner, *mockAuditWriter) {
	years := &mockYearReader{active: &models.SchoolYear{ID: "sy-1", Name: "2024/2025", IsActive: true}}
	classes := &mockClassReader{byGrade: map[int]int{5: 4, 6: 4}}
	loans := &mockLoanCounter{byGrade: map[int]int{5: 12, 6: openGrade6}}
	runner := &mockRolloverRunner{result: &repository.RolloverResult{ClassesCreated: 8, StudentsMoved: 21, LoansMoved: 12}}
	audit := &mockAuditWriter{}
	svc := NewRolloverService(years, classes, loans, runner, audit, nil, validator.New(), zap.NewNop())
	return svc, runner, audit
}

func promoteRequest() PromoteYearRequest {
	return PromoteYearRequest{
		Name:      "2025/26",
		StartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestRolloverServicePreview(t *testing.T) {
	svc, _, _ := newRolloverFixture(3)

	preview, err := svc.Preview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025/26", preview.SuggestedName)
	assert.Equal(t, 4, preview.ClassesGrade5)
	assert.Equal(t, 12, preview.OpenLoansGrade5)
	assert.Equal(t, 3, preview.OpenLoansGrade6)
}

func TestRolloverServicePromote(t *testing.T) {
	svc, runner, audit := newRolloverFixture(0)

	report, err := svc.Promote(context.Background(), promoteRequest(), Actor{UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "2025/26", report.NewYear.Name)
	assert.True(t, report.NewYear.IsActive)
	assert.Equal(t, 21, report.StudentsMoved)
	assert.Equal(t, 12, report.LoansMoved)
	require.NotNil(t, runner.newYear)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionYearRollover, audit.entries[0].Action)
}

func TestRolloverServicePromoteRefusesOpenGrade6Loans(t *testing.T) {
	svc, runner, _ := newRolloverFixture(2)

	_, err := svc.Promote(context.Background(), promoteRequest(), Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Nil(t, runner.newYear)
}

func TestRolloverServicePromoteConfirmedOverridesOpenLoans(t *testing.T) {
	svc, _, _ := newRolloverFixture(2)

	req := promoteRequest()
	req.ConfirmOpenLoans = true
	_, err := svc.Promote(context.Background(), req, Actor{})
	require.NoError(t, err)
}

func TestRolloverServicePromoteDuplicateName(t *testing.T) {
	svc, runner, _ := newRolloverFixture(0)
	runner.err = sqlDuplicateYearErr{}

	_, err := svc.Promote(context.Background(), promoteRequest(), Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

type sqlDuplicateYearErr struct{}

func (sqlDuplicateYearErr) Error() string { return `school year "2025/26" already exists` }

func TestRolloverServicePromoteNoActiveYear(t *testing.T) {
	svc, _, _ := newRolloverFixture(0)
	svc.years = &mockYearReader{}

	_, err := svc.Promote(context.Background(), promoteRequest(), Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestRolloverServicePromoteRejectsDateOrder(t *testing.T) {
	svc, _, _ := newRolloverFixture(0)

	req := promoteRequest()
	req.StartDate, req.EndDate = req.EndDate, req.StartDate
	_, err := svc.Promote(context.Background(), req, Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSuggestNextYearName(t *testing.T) {
	cases := map[string]string{
		"2024/2025":            "2025/26",
		"2025/26":              "2026/27",
		"Schuljahr 2019/20":    "2020/21",
		"no year here":         "",
		"1999/2000 (imported)": "2000/01",
	}
	for input, want := range cases {
		assert.Equal(t, want, SuggestNextYearName(input), "input %q", input)
	}
}
