package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	"github.com/feldbach-gym/keyboard-loan-api/internal/repository"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type keyboardRepository interface {
	List(ctx context.Context, filter models.KeyboardFilter) ([]models.Keyboard, int, error)
	FindByID(ctx context.Context, id string) (*models.Keyboard, error)
	FindByInventoryNumber(ctx context.Context, inventoryNumber string) (*models.Keyboard, error)
	Create(ctx context.Context, keyboard *models.Keyboard) error
	Update(ctx context.Context, keyboard *models.Keyboard) error
	HasLoans(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type keyboardLoanReader interface {
	FindActiveByKeyboard(ctx context.Context, keyboardID string) (*models.Loan, error)
}

// CreateKeyboardRequest describes payload for adding an instrument.
type CreateKeyboardRequest struct {
	InventoryNumber string                   `json:"inventory_number" validate:"required"`
	InternalNumber  *int                     `json:"internal_number"`
	Condition       models.KeyboardCondition `json:"condition"`
	Status          models.KeyboardStatus    `json:"status"`
	Notes           *string                  `json:"notes"`
}

// UpdateKeyboardRequest updates mutable fields on an instrument.
type UpdateKeyboardRequest struct {
	InventoryNumber string                   `json:"inventory_number" validate:"required"`
	InternalNumber  *int                     `json:"internal_number"`
	Condition       models.KeyboardCondition `json:"condition" validate:"required"`
	Status          models.KeyboardStatus    `json:"status" validate:"required"`
	Notes           *string                  `json:"notes"`
}

// BulkCreateKeyboardsRequest creates a numbered series like KB001..KB040.
type BulkCreateKeyboardsRequest struct {
	Prefix string `json:"prefix"`
	Start  int    `json:"start" validate:"min=0"`
	Count  int    `json:"count" validate:"required,min=1,max=500"`
}

// KeyboardService manages the instrument inventory.
type KeyboardService struct {
	repo      keyboardRepository
	loans     keyboardLoanReader
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewKeyboardService creates a new keyboard service instance.
func NewKeyboardService(repo keyboardRepository, loans keyboardLoanReader, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *KeyboardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyboardService{repo: repo, loans: loans, audit: audit, validator: validate, logger: logger}
}

// List returns paginated keyboards.
func (s *KeyboardService) List(ctx context.Context, filter models.KeyboardFilter) ([]models.Keyboard, *models.Pagination, error) {
	keyboards, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list keyboards")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return keyboards, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one keyboard.
func (s *KeyboardService) Get(ctx context.Context, id string) (*models.Keyboard, error) {
	keyboard, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "keyboard not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load keyboard")
	}
	return keyboard, nil
}

// Create adds one keyboard to the inventory.
func (s *KeyboardService) Create(ctx context.Context, req CreateKeyboardRequest, actor Actor) (*models.Keyboard, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid keyboard payload")
	}

	keyboard := &models.Keyboard{
		InventoryNumber: strings.TrimSpace(req.InventoryNumber),
		InternalNumber:  req.InternalNumber,
		Condition:       req.Condition,
		Status:          req.Status,
		Notes:           req.Notes,
	}
	if keyboard.Condition == "" {
		keyboard.Condition = models.ConditionOK
	}
	if keyboard.Status == "" {
		keyboard.Status = models.StatusInStorage
	}

	if err := s.repo.Create(ctx, keyboard); err != nil {
		if errors.Is(err, repository.ErrDuplicateInventoryNumber) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "inventory number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create keyboard")
	}

	details := fmt.Sprintf("keyboard %s added", keyboard.InventoryNumber)
	entry := &models.AuditLog{
		Action:     models.AuditActionKeyboardCreate,
		EntityType: "keyboard",
		EntityID:   &keyboard.ID,
		Details:    &details,
		IPAddress:  actor.IPAddress,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if auditErr := s.audit.Create(ctx, entry); auditErr != nil {
		s.logger.Warn("audit write failed", zap.Error(auditErr))
	}

	return keyboard, nil
}

// BulkCreate adds a numbered series, skipping numbers that already
// exist.
func (s *KeyboardService) BulkCreate(ctx context.Context, req BulkCreateKeyboardsRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		prefix = "KB"
	}
	start := req.Start
	if start < 1 {
		start = 1
	}

	created := 0
	for i := start; i < start+req.Count; i++ {
		internal := i
		keyboard := &models.Keyboard{
			InventoryNumber: fmt.Sprintf("%s%03d", prefix, i),
			InternalNumber:  &internal,
			Condition:       models.ConditionOK,
			Status:          models.StatusInStorage,
		}
		if err := s.repo.Create(ctx, keyboard); err != nil {
			if errors.Is(err, repository.ErrDuplicateInventoryNumber) {
				continue
			}
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create keyboards")
		}
		created++
	}
	s.logger.Info("keyboards bulk created", zap.String("prefix", prefix), zap.Int("created", created))
	return created, nil
}

// Update modifies a keyboard.
func (s *KeyboardService) Update(ctx context.Context, id string, req UpdateKeyboardRequest) (*models.Keyboard, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid keyboard payload")
	}
	keyboard, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	keyboard.InventoryNumber = strings.TrimSpace(req.InventoryNumber)
	keyboard.InternalNumber = req.InternalNumber
	keyboard.Condition = req.Condition
	keyboard.Status = req.Status
	keyboard.Notes = req.Notes
	if err := s.repo.Update(ctx, keyboard); err != nil {
		if errors.Is(err, repository.ErrDuplicateInventoryNumber) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "inventory number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update keyboard")
	}
	return keyboard, nil
}

// Delete removes a keyboard that is not currently out on loan.
func (s *KeyboardService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.loans.FindActiveByKeyboard(ctx, id); err == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "keyboard is currently on loan")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check keyboard loan")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete keyboard")
	}
	return nil
}
