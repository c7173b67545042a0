package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type mockStudentRepo struct {
	students      map[string]models.Student
	hasLoans      map[string]bool
	activeLoanIDs map[string]string
	deleted       []string
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	details := make([]models.StudentDetail, 0, len(m.students))
	for _, s := range m.students {
		details = append(details, models.StudentDetail{Student: s})
	}
	return details, len(details), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		detail := models.StudentDetail{Student: s}
		if loanID, ok := m.activeLoanIDs[id]; ok {
			detail.ActiveLoanID = &loanID
		}
		return &detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByNaturalKey(ctx context.Context, lastName, firstName, classID string) (*models.Student, error) {
	for _, s := range m.students {
		if s.LastName == lastName && s.FirstName == firstName && s.ClassID == classID {
			student := s
			return &student, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "st-" + student.LastName
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) HasLoans(ctx context.Context, id string) (bool, error) {
	return m.hasLoans[id], nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockClassRepo struct {
	classes map[string]models.SchoolClass
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.SchoolClass, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type mockFeeToggler struct {
	paid    map[string]bool
	toggled []string
}

func (m *mockFeeToggler) ToggleFeePaid(ctx context.Context, loanID string) (bool, error) {
	if m.paid == nil {
		m.paid = make(map[string]bool)
	}
	m.paid[loanID] = !m.paid[loanID]
	m.toggled = append(m.toggled, loanID)
	return m.paid[loanID], nil
}

func newStudentServiceFixture() (*StudentService, *mockStudentRepo, *mockFeeToggler, *mockAuditWriter) {
	repo := &mockStudentRepo{
		students:      make(map[string]models.Student),
		hasLoans:      make(map[string]bool),
		activeLoanIDs: make(map[string]string),
	}
	classes := &mockClassRepo{classes: map[string]models.SchoolClass{
		"cl-1": {ID: "cl-1", Name: "5A", Grade: 5, SchoolYearID: "sy-1"},
	}}
	toggler := &mockFeeToggler{}
	audit := &mockAuditWriter{}
	svc := NewStudentService(repo, classes, toggler, audit, validator.New(), zap.NewNop())
	return svc, repo, toggler, audit
}

func TestStudentServiceCreate(t *testing.T) {
	svc, repo, _, _ := newStudentServiceFixture()

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		LastName:  "Muster",
		FirstName: "Max",
		ClassID:   "cl-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Len(t, repo.students, 1)
}

func TestStudentServiceCreateDuplicate(t *testing.T) {
	svc, repo, _, _ := newStudentServiceFixture()
	repo.students["st-1"] = models.Student{ID: "st-1", LastName: "Muster", FirstName: "Max", ClassID: "cl-1"}

	_, err := svc.Create(context.Background(), CreateStudentRequest{LastName: "Muster", FirstName: "Max", ClassID: "cl-1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestStudentServiceDeleteGuardsLoanHistory(t *testing.T) {
	svc, repo, _, _ := newStudentServiceFixture()
	repo.students["st-1"] = models.Student{ID: "st-1", LastName: "Muster", FirstName: "Max", ClassID: "cl-1"}
	repo.hasLoans["st-1"] = true

	err := svc.Delete(context.Background(), "st-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}

func TestStudentServiceToggleParticipation(t *testing.T) {
	svc, repo, _, _ := newStudentServiceFixture()
	repo.students["st-1"] = models.Student{ID: "st-1", LastName: "Muster", FirstName: "Max", ClassID: "cl-1", ParticipatesInLoan: true}

	participates, err := svc.ToggleParticipation(context.Background(), "st-1")
	require.NoError(t, err)
	assert.False(t, participates)
}

func TestStudentServiceToggleFeeRoutesToActiveLoan(t *testing.T) {
	svc, repo, toggler, _ := newStudentServiceFixture()
	repo.students["st-1"] = models.Student{ID: "st-1", LastName: "Muster", FirstName: "Max", ClassID: "cl-1"}
	repo.activeLoanIDs["st-1"] = "ln-1"

	paid, err := svc.ToggleFeePrepaid(context.Background(), "st-1")
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, []string{"ln-1"}, toggler.toggled)
	assert.False(t, repo.students["st-1"].FeePrepaid)
}

func TestStudentServiceToggleFeeWithoutLoanFlipsPrepaid(t *testing.T) {
	svc, repo, toggler, _ := newStudentServiceFixture()
	repo.students["st-1"] = models.Student{ID: "st-1", LastName: "Muster", FirstName: "Max", ClassID: "cl-1"}

	paid, err := svc.ToggleFeePrepaid(context.Background(), "st-1")
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Empty(t, toggler.toggled)
	assert.True(t, repo.students["st-1"].FeePrepaid)
}

func TestStudentServiceImportRoster(t *testing.T) {
	svc, repo, _, audit := newStudentServiceFixture()
	repo.students["st-1"] = models.Student{ID: "st-1", LastName: "Beispiel", FirstName: "Eva", ClassID: "cl-1"}

	roster := strings.Join([]string{
		"Nachname;Vorname;Bemerkung",
		"Muster;Max;",
		"Beispiel;Eva;already here",
		"Unvollständig;;missing first name",
		"Neu;Nina;",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), "cl-1", strings.NewReader(roster), Actor{UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, report.Errors)
	assert.Len(t, repo.students, 3)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionStudentImport, audit.entries[0].Action)
}

func TestStudentServiceImportRosterFlexibleHeaders(t *testing.T) {
	svc, repo, _, _ := newStudentServiceFixture()

	roster := "\uFEFFName;Vorname\nMuster;Max\n"
	report, err := svc.ImportRoster(context.Background(), "cl-1", strings.NewReader(roster), Actor{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Len(t, repo.students, 1)
}

func TestStudentServiceImportRosterMissingColumns(t *testing.T) {
	svc, _, _, _ := newStudentServiceFixture()

	_, err := svc.ImportRoster(context.Background(), "cl-1", strings.NewReader("a;b\n1;2\n"), Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestStudentServiceImportRosterUnknownClass(t *testing.T) {
	svc, _, _, _ := newStudentServiceFixture()

	_, err := svc.ImportRoster(context.Background(), "missing", strings.NewReader("Name;Vorname\n"), Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
