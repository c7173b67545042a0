package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type yearRepository interface {
	List(ctx context.Context, filter models.SchoolYearFilter) ([]models.SchoolYear, int, error)
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
	FindByName(ctx context.Context, name string) (*models.SchoolYear, error)
	FindActive(ctx context.Context) (*models.SchoolYear, error)
	Create(ctx context.Context, year *models.SchoolYear) error
	Update(ctx context.Context, year *models.SchoolYear) error
	SetActive(ctx context.Context, id string) error
}

type yearClassWriter interface {
	Create(ctx context.Context, class *models.SchoolClass) error
}

// CreateYearRequest describes payload for creating a school year. When
// WithDefaultClasses is set, empty 5A-5D and 6A-6D classes are created
// alongside.
type CreateYearRequest struct {
	Name               string    `json:"name" validate:"required"`
	StartDate          time.Time `json:"start_date" validate:"required"`
	EndDate            time.Time `json:"end_date" validate:"required"`
	SetActive          bool      `json:"set_active"`
	WithDefaultClasses bool      `json:"with_default_classes"`
}

// UpdateYearRequest updates mutable fields on a school year.
type UpdateYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// YearService manages school years.
type YearService struct {
	repo      yearRepository
	classes   yearClassWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewYearService creates a new year service instance.
func NewYearService(repo yearRepository, classes yearClassWriter, validate *validator.Validate, logger *zap.Logger) *YearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YearService{repo: repo, classes: classes, validator: validate, logger: logger}
}

// List returns paginated school years.
func (s *YearService) List(ctx context.Context, filter models.SchoolYearFilter) ([]models.SchoolYear, *models.Pagination, error) {
	years, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list school years")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return years, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one school year.
func (s *YearService) Get(ctx context.Context, id string) (*models.SchoolYear, error) {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}
	return year, nil
}

// GetActive loads the active school year.
func (s *YearService) GetActive(ctx context.Context) (*models.SchoolYear, error) {
	year, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active year")
	}
	return year, nil
}

// Create adds a school year, optionally with the default class set.
func (s *YearService) Create(ctx context.Context, req CreateYearRequest) (*models.SchoolYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school year payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	name := strings.TrimSpace(req.Name)
	if _, err := s.repo.FindByName(ctx, name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a school year with that name already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year name")
	}

	year := &models.SchoolYear{Name: name, StartDate: req.StartDate, EndDate: req.EndDate}
	if err := s.repo.Create(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school year")
	}

	if req.WithDefaultClasses {
		for _, grade := range []int{5, 6} {
			for _, letter := range []string{"A", "B", "C", "D"} {
				class := &models.SchoolClass{
					Name:         fmt.Sprintf("%d%s", grade, letter),
					Grade:        grade,
					SchoolYearID: year.ID,
				}
				if err := s.classes.Create(ctx, class); err != nil {
					return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create default classes")
				}
			}
		}
	}

	if req.SetActive {
		if err := s.repo.SetActive(ctx, year.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate school year")
		}
		year.IsActive = true
	}

	s.logger.Info("school year created", zap.String("name", year.Name), zap.Bool("active", year.IsActive))
	return year, nil
}

// Update modifies a school year.
func (s *YearService) Update(ctx context.Context, id string, req UpdateYearRequest) (*models.SchoolYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school year payload")
	}
	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	year.Name = strings.TrimSpace(req.Name)
	year.StartDate = req.StartDate
	year.EndDate = req.EndDate
	if err := s.repo.Update(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update school year")
	}
	return year, nil
}

// Activate switches the active school year.
func (s *YearService) Activate(ctx context.Context, id string) (*models.SchoolYear, error) {
	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate school year")
	}
	year.IsActive = true
	s.logger.Info("school year activated", zap.String("name", year.Name))
	return year, nil
}
