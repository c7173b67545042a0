package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	"github.com/feldbach-gym/keyboard-loan-api/internal/repository"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type rolloverYearReader interface {
	FindActive(ctx context.Context) (*models.SchoolYear, error)
}

type rolloverClassReader interface {
	List(ctx context.Context, filter models.SchoolClassFilter) ([]models.ClassSummary, int, error)
}

type rolloverLoanCounter interface {
	CountActiveByYearAndGrade(ctx context.Context, schoolYearID string, grade int) (int, error)
}

type rolloverRunner interface {
	PromoteYear(ctx context.Context, currentYearID string, newYear *models.SchoolYear) (*repository.RolloverResult, error)
}

// RolloverPreview shows what a promotion would touch before it runs.
type RolloverPreview struct {
	CurrentYear     models.SchoolYear `json:"current_year"`
	SuggestedName   string            `json:"suggested_name"`
	ClassesGrade5   int               `json:"classes_grade_5"`
	ClassesGrade6   int               `json:"classes_grade_6"`
	OpenLoansGrade5 int               `json:"open_loans_grade_5"`
	OpenLoansGrade6 int               `json:"open_loans_grade_6"`
}

// PromoteYearRequest describes payload for the annual transition.
type PromoteYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	// ConfirmOpenLoans acknowledges grade-6 keyboards that were never
	// returned; without it the promotion refuses to run while any exist.
	ConfirmOpenLoans bool `json:"confirm_open_loans"`
}

// RolloverReport is the outcome of a promotion.
type RolloverReport struct {
	NewYear        models.SchoolYear `json:"new_year"`
	ClassesCreated int               `json:"classes_created"`
	StudentsMoved  int               `json:"students_moved"`
	LoansMoved     int               `json:"loans_moved"`
}

// RolloverService runs the annual grade promotion.
type RolloverService struct {
	years     rolloverYearReader
	classes   rolloverClassReader
	loans     rolloverLoanCounter
	runner    rolloverRunner
	audit     auditWriter
	cache     overviewCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRolloverService creates a new rollover service instance.
func NewRolloverService(years rolloverYearReader, classes rolloverClassReader, loans rolloverLoanCounter, runner rolloverRunner, audit auditWriter, cache overviewCache, validate *validator.Validate, logger *zap.Logger) *RolloverService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolloverService{
		years:     years,
		classes:   classes,
		loans:     loans,
		runner:    runner,
		audit:     audit,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Preview reports the state the promotion would operate on.
func (s *RolloverService) Preview(ctx context.Context) (*RolloverPreview, error) {
	year, err := s.activeYear(ctx)
	if err != nil {
		return nil, err
	}

	preview := &RolloverPreview{
		CurrentYear:   *year,
		SuggestedName: SuggestNextYearName(year.Name),
	}

	for _, grade := range []int{5, 6} {
		_, total, err := s.classes.List(ctx, models.SchoolClassFilter{SchoolYearID: year.ID, Grade: grade})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classes")
		}
		open, err := s.loans.CountActiveByYearAndGrade(ctx, year.ID, grade)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count open loans")
		}
		if grade == 5 {
			preview.ClassesGrade5, preview.OpenLoansGrade5 = total, open
		} else {
			preview.ClassesGrade6, preview.OpenLoansGrade6 = total, open
		}
	}
	return preview, nil
}

// Promote runs the annual transition: grade-5 classes become grade-6
// classes in the new year (students and their open loans move with
// them), fresh empty grade-5 classes are created and the new year is
// activated.
func (s *RolloverService) Promote(ctx context.Context, req PromoteYearRequest, actor Actor) (*RolloverReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	year, err := s.activeYear(ctx)
	if err != nil {
		return nil, err
	}

	openGrade6, err := s.loans.CountActiveByYearAndGrade(ctx, year.ID, 6)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count open loans")
	}
	if openGrade6 > 0 && !req.ConfirmOpenLoans {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("%d grade-6 keyboards are still out; confirm or collect them first", openGrade6))
	}

	newYear := &models.SchoolYear{
		Name:      strings.TrimSpace(req.Name),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	result, err := s.runner.PromoteYear(ctx, year.ID, newYear)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a school year with that name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote school year")
	}

	details := fmt.Sprintf("transition %s to %s: %d students moved to grade 6, %d open loans carried over",
		year.Name, newYear.Name, result.StudentsMoved, result.LoansMoved)
	entry := &models.AuditLog{
		Action:     models.AuditActionYearRollover,
		EntityType: "school_year",
		EntityID:   &newYear.ID,
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

	s.logger.Info("school year promoted",
		zap.String("from", year.Name),
		zap.String("to", newYear.Name),
		zap.Int("students_moved", result.StudentsMoved),
		zap.Int("loans_moved", result.LoansMoved))

	return &RolloverReport{
		NewYear:        *newYear,
		ClassesCreated: result.ClassesCreated,
		StudentsMoved:  result.StudentsMoved,
		LoansMoved:     result.LoansMoved,
	}, nil
}

func (s *RolloverService) activeYear(ctx context.Context) (*models.SchoolYear, error) {
	year, err := s.years.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active school year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active year")
	}
	return year, nil
}

var yearNamePattern = regexp.MustCompile(`(\d{4})/(\d{2,4})`)

// SuggestNextYearName derives the follow-up year name: "2024/2025"
// becomes "2025/26". Unrecognised names yield an empty suggestion.
func SuggestNextYearName(current string) string {
	match := yearNamePattern.FindStringSubmatch(current)
	if match == nil {
		return ""
	}
	first, err := strconv.Atoi(match[1])
	if err != nil {
		return ""
	}
	next := strconv.Itoa(first + 2)
	return fmt.Sprintf("%d/%s", first+1, next[len(next)-2:])
}
