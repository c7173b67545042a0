package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/dto"
	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type snapshotMerger interface {
	MergeSnapshot(ctx context.Context, snap dto.Snapshot, defaultFee float64) (*dto.ImportSummary, *models.SchoolYear, error)
}

// ImportReport is the outcome of a merge import.
type ImportReport struct {
	SchoolYear string            `json:"school_year"`
	Version    string            `json:"version"`
	Created    dto.ImportSummary `json:"created"`
}

// ImportService merges backup snapshots into the live dataset.
type ImportService struct {
	merger    snapshotMerger
	audit     auditWriter
	cache     overviewCache
	feeAmount float64
	logger    *zap.Logger
}

// NewImportService creates a new import service instance.
func NewImportService(merger snapshotMerger, audit auditWriter, cache overviewCache, feeAmount float64, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{merger: merger, audit: audit, cache: cache, feeAmount: feeAmount, logger: logger}
}

// MergeJSON parses a snapshot document and merges it. Matching is by
// natural keys, so importing the same document twice creates nothing
// on the second run.
func (s *ImportService) MergeJSON(ctx context.Context, raw []byte, actor Actor) (*ImportReport, error) {
	var snap dto.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed snapshot document")
	}
	return s.Merge(ctx, snap, actor)
}

// Merge runs the snapshot merge within one transaction.
func (s *ImportService) Merge(ctx context.Context, snap dto.Snapshot, actor Actor) (*ImportReport, error) {
	version := snap.Version()
	if version != dto.SnapshotVersionLegacy && version != dto.SnapshotVersionCurrent {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export_version %q", version))
	}

	summary, year, err := s.merger.MergeSnapshot(ctx, snap, s.feeAmount)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to merge snapshot")
	}

	details := fmt.Sprintf("import into %s: %s", year.Name, summary)
	entry := &models.AuditLog{
		Action:     models.AuditActionImportMerge,
		EntityType: "school_year",
		EntityID:   &year.ID,
		Details:    &details,
		IPAddress:  actor.IPAddress,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if auditErr := s.audit.Create(ctx, entry); auditErr != nil {
		s.logger.Warn("audit write failed", zap.Error(auditErr))
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	s.logger.Info("snapshot merged",
		zap.String("school_year", year.Name),
		zap.String("version", version),
		zap.Int("keyboards", summary.Keyboards),
		zap.Int("classes", summary.Classes),
		zap.Int("students", summary.Students),
		zap.Int("loans", summary.Loans))

	return &ImportReport{SchoolYear: year.Name, Version: version, Created: *summary}, nil
}
