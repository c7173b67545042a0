package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type auditReader interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditService exposes the activity trail.
type AuditService struct {
	repo   auditReader
	logger *zap.Logger
}

// NewAuditService creates a new audit service instance.
func NewAuditService(repo auditReader, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// List returns audit entries newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
