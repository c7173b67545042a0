package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/dto"
	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/export"
)

type mockExportYearReader struct {
	years map[string]models.SchoolYear

	// failAfter makes lookups error once this many succeeded; 0 never fails.
	failAfter int
	calls     int
}

func (m *mockExportYearReader) lookupErr() error {
	m.calls++
	if m.failAfter > 0 && m.calls > m.failAfter {
		return errors.New("connection reset")
	}
	return nil
}

func (m *mockExportYearReader) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	if err := m.lookupErr(); err != nil {
		return nil, err
	}
	if y, ok := m.years[id]; ok {
		return &y, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExportYearReader) FindActive(ctx context.Context) (*models.SchoolYear, error) {
	if err := m.lookupErr(); err != nil {
		return nil, err
	}
	for _, y := range m.years {
		if y.IsActive {
			year := y
			return &year, nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockExportClassReader struct {
	classes []models.ClassSummary
}

func (m *mockExportClassReader) List(ctx context.Context, filter models.SchoolClassFilter) ([]models.ClassSummary, int, error) {
	return m.classes, len(m.classes), nil
}

func (m *mockExportClassReader) FindByID(ctx context.Context, id string) (*models.SchoolClass, error) {
	for _, c := range m.classes {
		if c.ID == id {
			class := c.SchoolClass
			return &class, nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockExportStudentReader struct {
	students []models.StudentDetail
}

func (m *mockExportStudentReader) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	out := make([]models.StudentDetail, 0, len(m.students))
	for _, s := range m.students {
		if filter.ClassID == "" || s.ClassID == filter.ClassID {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

type mockExportKeyboardReader struct {
	keyboards []models.Keyboard
}

func (m *mockExportKeyboardReader) List(ctx context.Context, filter models.KeyboardFilter) ([]models.Keyboard, int, error) {
	return m.keyboards, len(m.keyboards), nil
}

type mockExportLoanReader struct {
	active   []models.LoanDetail
	returned []models.LoanDetail
}

func (m *mockExportLoanReader) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error) {
	return m.active, len(m.active), nil
}

func (m *mockExportLoanReader) ListActiveByYear(ctx context.Context, schoolYearID string) ([]models.LoanDetail, error) {
	return m.active, nil
}

func (m *mockExportLoanReader) ListReturnedByYear(ctx context.Context, schoolYearID string) ([]models.LoanDetail, error) {
	return m.returned, nil
}

func (m *mockExportLoanReader) LedgerCounts(ctx context.Context, schoolYearID string) (int, int, int, error) {
	paid := 0
	for _, l := range m.active {
		if l.FeePaid {
			paid++
		}
	}
	return len(m.active), len(m.returned), paid, nil
}

func newExportServiceFixture() *ExportService {
	teacher := "Ms. Huber"
	years := &mockExportYearReader{years: map[string]models.SchoolYear{
		"sy-1": {
			ID:        "sy-1",
			Name:      "2024/2025",
			StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
			IsActive:  true,
		},
	}}
	classes := &mockExportClassReader{classes: []models.ClassSummary{
		{SchoolClass: models.SchoolClass{ID: "cl-1", Name: "5A", Grade: 5, SchoolYearID: "sy-1", ClassTeacher: &teacher}},
	}}
	students := &mockExportStudentReader{students: []models.StudentDetail{
		{Student: models.Student{ID: "st-1", LastName: "Muster", FirstName: "Max", ClassID: "cl-1", FeePrepaid: true}},
		{Student: models.Student{ID: "st-2", LastName: "Beispiel", FirstName: "Eva", ClassID: "cl-1"}},
	}}
	internal := 1
	keyboards := &mockExportKeyboardReader{keyboards: []models.Keyboard{
		{ID: "kb-1", InventoryNumber: "KB001", InternalNumber: &internal, Condition: models.ConditionOK, Status: models.StatusLoaned},
	}}
	loans := &mockExportLoanReader{active: []models.LoanDetail{
		{
			Loan:             models.Loan{ID: "ln-1", KeyboardID: "kb-1", StudentID: "st-1", FeePaid: true, FeeAmount: 10.0, LoanedAt: time.Now()},
			StudentLastName:  "Muster",
			StudentFirstName: "Max",
			ClassID:          "cl-1",
			ClassName:        "5A",
			InventoryNumber:  "KB001",
		},
	}}
	return NewExportService(years, classes, students, keyboards, loans, export.NewCSVExporter(), export.NewPDFExporter(), 10.0, zap.NewNop())
}

func TestExportServiceJSONBackupRoundTrips(t *testing.T) {
	svc := newExportServiceFixture()

	file, err := svc.JSONBackup(context.Background(), "sy-1")
	require.NoError(t, err)
	assert.Equal(t, "application/json", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".json"))

	var snap dto.Snapshot
	require.NoError(t, json.Unmarshal(file.Payload, &snap))
	assert.Equal(t, dto.SnapshotVersionCurrent, snap.Version())
	assert.Equal(t, "2024/2025", snap.SchoolYear.Name)
	require.Len(t, snap.Classes, 1)
	assert.Len(t, snap.Classes[0].Students, 2)
	require.Len(t, snap.Loans, 1)
	assert.Equal(t, "KB001", snap.Loans[0].KeyboardInventoryNumber)
	assert.True(t, snap.Loans[0].FeePaid)
}

func TestExportServiceWorkbookBackup(t *testing.T) {
	svc := newExportServiceFixture()

	file, err := svc.WorkbookBackup(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, file.Payload)
	assert.Contains(t, file.Filename, "2024-2025")
	assert.True(t, strings.HasSuffix(file.Filename, ".xlsx"))
}

func TestExportServiceBundleZipContainsBothFiles(t *testing.T) {
	svc := newExportServiceFixture()

	file, err := svc.BundleZip(context.Background(), "sy-1")
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(file.Payload), int64(len(file.Payload)))
	require.NoError(t, err)
	require.Len(t, reader.File, 2)
	names := []string{reader.File[0].Name, reader.File[1].Name}
	assert.True(t, strings.HasSuffix(names[0], ".xlsx"))
	assert.True(t, strings.HasSuffix(names[1], ".json"))
}

func TestExportServiceBundleZipSurfacesYearLookupError(t *testing.T) {
	years := &mockExportYearReader{
		years: map[string]models.SchoolYear{
			"sy-1": {ID: "sy-1", Name: "2024/2025", IsActive: true},
		},
		failAfter: 2,
	}
	svc := NewExportService(years, &mockExportClassReader{}, &mockExportStudentReader{}, &mockExportKeyboardReader{},
		&mockExportLoanReader{}, export.NewCSVExporter(), export.NewPDFExporter(), 10.0, zap.NewNop())

	_, err := svc.BundleZip(context.Background(), "sy-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

func TestExportServicePaymentList(t *testing.T) {
	svc := newExportServiceFixture()

	file, err := svc.PaymentList(context.Background(), "sy-1")
	require.NoError(t, err)
	assert.NotEmpty(t, file.Payload)
	assert.Equal(t, "fees_2024-2025.xlsx", file.Filename)
}

func TestExportServiceClassListFormats(t *testing.T) {
	svc := newExportServiceFixture()

	csvFile, err := svc.ClassList(context.Background(), "cl-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", csvFile.ContentType)
	assert.Contains(t, string(csvFile.Payload), "Muster")

	pdfFile, err := svc.ClassList(context.Background(), "cl-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdfFile.ContentType)
	assert.NotEmpty(t, pdfFile.Payload)

	xlsxFile, err := svc.ClassList(context.Background(), "cl-1", "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(xlsxFile.Filename, ".xlsx"))

	_, err = svc.ClassList(context.Background(), "cl-1", "docx")
	require.Error(t, err)
}
