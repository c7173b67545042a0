package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/dto"
	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type mockSnapshotMerger struct {
	summary  dto.ImportSummary
	lastSnap dto.Snapshot
	lastFee  float64
	calls    int
}

func (m *mockSnapshotMerger) MergeSnapshot(ctx context.Context, snap dto.Snapshot, defaultFee float64) (*dto.ImportSummary, *models.SchoolYear, error) {
	m.lastSnap = snap
	m.lastFee = defaultFee
	m.calls++
	summary := m.summary
	return &summary, &models.SchoolYear{ID: "sy-1", Name: snap.SchoolYear.Name, IsActive: true}, nil
}

func TestImportServiceMergeJSON(t *testing.T) {
	merger := &mockSnapshotMerger{summary: dto.ImportSummary{Keyboards: 2, Classes: 1, Students: 3, Loans: 2}}
	audit := &mockAuditWriter{}
	svc := NewImportService(merger, audit, nil, 10.0, zap.NewNop())

	raw := []byte(`{
        "export_version": "2.0",
        "school_year": {"name": "2024/2025", "is_active": true},
        "keyboards": [{"inventory_number": "KB01"}],
        "classes": [{"name": "5A", "grade": 5, "students": [{"last_name": "Muster", "first_name": "Max"}]}],
        "loans": [{"student_class": "5A", "student_last_name": "Muster", "student_first_name": "Max", "keyboard_inventory_number": "KB01", "fee_paid": true}]
    }`)

	report, err := svc.MergeJSON(context.Background(), raw, Actor{UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "2024/2025", report.SchoolYear)
	assert.Equal(t, dto.SnapshotVersionCurrent, report.Version)
	assert.Equal(t, 3, report.Created.Students)
	assert.Equal(t, 10.0, merger.lastFee)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionImportMerge, audit.entries[0].Action)
	require.NotNil(t, audit.entries[0].Details)
	assert.Contains(t, *audit.entries[0].Details, "2 keyboards")
}

func TestImportServiceLegacySnapshotDefaultsVersion(t *testing.T) {
	merger := &mockSnapshotMerger{}
	svc := NewImportService(merger, &mockAuditWriter{}, nil, 10.0, zap.NewNop())

	raw := []byte(`{
        "school_year": "2019/20",
        "students": [{"class_name": "5A", "last_name": "Muster", "first_name": "Max", "keyboard_nr": "KB01"}]
    }`)

	report, err := svc.MergeJSON(context.Background(), raw, Actor{})
	require.NoError(t, err)
	assert.Equal(t, dto.SnapshotVersionLegacy, report.Version)
	assert.Equal(t, "2019/20", merger.lastSnap.SchoolYear.Name)
	require.Len(t, merger.lastSnap.Students, 1)
	assert.Equal(t, "KB01", merger.lastSnap.Students[0].KeyboardNr)
}

func TestImportServiceRejectsUnknownVersion(t *testing.T) {
	merger := &mockSnapshotMerger{}
	svc := NewImportService(merger, &mockAuditWriter{}, nil, 10.0, zap.NewNop())

	_, err := svc.Merge(context.Background(), dto.Snapshot{ExportVersion: "3.0"}, Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, 0, merger.calls)
}

func TestImportServiceRejectsMalformedJSON(t *testing.T) {
	svc := NewImportService(&mockSnapshotMerger{}, &mockAuditWriter{}, nil, 10.0, zap.NewNop())

	_, err := svc.MergeJSON(context.Background(), []byte(`{"school_year":`), Actor{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
