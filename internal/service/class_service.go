package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.SchoolClassFilter) ([]models.ClassSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.SchoolClass, error)
	ExistsByNameAndYear(ctx context.Context, name, schoolYearID, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.SchoolClass) error
	Update(ctx context.Context, class *models.SchoolClass) error
	CountStudents(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

// CreateClassRequest describes payload for creating a class.
type CreateClassRequest struct {
	Name         string     `json:"name" validate:"required"`
	Grade        int        `json:"grade" validate:"required,min=1,max=13"`
	SchoolYearID string     `json:"school_year_id" validate:"required"`
	ClassTeacher *string    `json:"class_teacher"`
	MusicTeacher *string    `json:"music_teacher"`
	LoanDate     *time.Time `json:"loan_date"`
}

// UpdateClassRequest updates mutable fields on a class.
type UpdateClassRequest struct {
	Name         string     `json:"name" validate:"required"`
	Grade        int        `json:"grade" validate:"required,min=1,max=13"`
	ClassTeacher *string    `json:"class_teacher"`
	MusicTeacher *string    `json:"music_teacher"`
	LoanDate     *time.Time `json:"loan_date"`
}

// ClassService manages class groups.
type ClassService struct {
	repo      classRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService creates a new class service instance.
func NewClassService(repo classRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, validator: validate, logger: logger}
}

// List returns classes with their loan counters.
func (s *ClassService) List(ctx context.Context, filter models.SchoolClassFilter) ([]models.ClassSummary, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.SchoolClass, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create adds a class to a school year.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.SchoolClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.ExistsByNameAndYear(ctx, name, req.SchoolYearID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class already exists in this school year")
	}

	class := &models.SchoolClass{
		Name:         name,
		Grade:        req.Grade,
		SchoolYearID: req.SchoolYearID,
		ClassTeacher: req.ClassTeacher,
		MusicTeacher: req.MusicTeacher,
		LoanDate:     req.LoanDate,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update modifies a class.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.SchoolClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.ExistsByNameAndYear(ctx, name, class.SchoolYearID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class already exists in this school year")
	}

	class.Name = name
	class.Grade = req.Grade
	class.ClassTeacher = req.ClassTeacher
	class.MusicTeacher = req.MusicTeacher
	class.LoanDate = req.LoanDate
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete removes an empty class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountStudents(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class roster")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "class still has students")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}
