package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByNaturalKey(ctx context.Context, lastName, firstName, classID string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	HasLoans(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type studentClassReader interface {
	FindByID(ctx context.Context, id string) (*models.SchoolClass, error)
}

type studentLoanToggler interface {
	ToggleFeePaid(ctx context.Context, loanID string) (bool, error)
}

// CreateStudentRequest describes payload for adding a student.
type CreateStudentRequest struct {
	LastName           string  `json:"last_name" validate:"required"`
	FirstName          string  `json:"first_name" validate:"required"`
	ClassID            string  `json:"class_id" validate:"required"`
	ParticipatesInLoan bool    `json:"participates_in_loan"`
	FeePrepaid         bool    `json:"fee_prepaid"`
	Notes              *string `json:"notes"`
}

// UpdateStudentRequest updates mutable fields on a student.
type UpdateStudentRequest struct {
	LastName           string  `json:"last_name" validate:"required"`
	FirstName          string  `json:"first_name" validate:"required"`
	ClassID            string  `json:"class_id" validate:"required"`
	ParticipatesInLoan bool    `json:"participates_in_loan"`
	FeePrepaid         bool    `json:"fee_prepaid"`
	Notes              *string `json:"notes"`
}

// RosterImportReport is the outcome of a CSV roster import.
type RosterImportReport struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// StudentService manages the roster.
type StudentService struct {
	repo      studentRepository
	classes   studentClassReader
	loans     studentLoanToggler
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService creates a new student service instance.
func NewStudentService(repo studentRepository, classes studentClassReader, loans studentLoanToggler, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, classes: classes, loans: loans, audit: audit, validator: validate, logger: logger}
}

// List returns paginated students.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one student with class and loan context.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create adds a student to a class.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	lastName := strings.TrimSpace(req.LastName)
	firstName := strings.TrimSpace(req.FirstName)
	if _, err := s.repo.FindByNaturalKey(ctx, lastName, firstName, req.ClassID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already exists in this class")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}

	student := &models.Student{
		LastName:           lastName,
		FirstName:          firstName,
		ClassID:            req.ClassID,
		ParticipatesInLoan: req.ParticipatesInLoan,
		FeePrepaid:         req.FeePrepaid,
		Notes:              req.Notes,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return s.Get(ctx, student.ID)
}

// Update modifies a student.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	student := detail.Student
	student.LastName = strings.TrimSpace(req.LastName)
	student.FirstName = strings.TrimSpace(req.FirstName)
	student.ClassID = req.ClassID
	student.ParticipatesInLoan = req.ParticipatesInLoan
	student.FeePrepaid = req.FeePrepaid
	student.Notes = req.Notes
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return s.Get(ctx, id)
}

// ToggleParticipation flips whether the student takes part in the loan
// program and returns the new value.
func (s *StudentService) ToggleParticipation(ctx context.Context, id string) (bool, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	student := detail.Student
	student.ParticipatesInLoan = !student.ParticipatesInLoan
	if err := s.repo.Update(ctx, &student); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle participation")
	}
	return student.ParticipatesInLoan, nil
}

// ToggleFeePrepaid flips the student's fee flag. While the student
// holds a keyboard the open loan carries the flag that counts, so the
// toggle is routed to the loan; otherwise the prepaid flag on the
// student record is flipped.
func (s *StudentService) ToggleFeePrepaid(ctx context.Context, id string) (bool, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if detail.ActiveLoanID != nil && s.loans != nil {
		paid, err := s.loans.ToggleFeePaid(ctx, *detail.ActiveLoanID)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle loan fee")
		}
		return paid, nil
	}
	student := detail.Student
	student.FeePrepaid = !student.FeePrepaid
	if err := s.repo.Update(ctx, &student); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle prepaid flag")
	}
	return student.FeePrepaid, nil
}

// Delete removes a student with no loan history.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	has, err := s.repo.HasLoans(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check loan history")
	}
	if has {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "student has loan history")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// ImportRoster reads a semicolon separated class roster. Column names
// are matched loosely (Name/Nachname for last name, Vorname for first
// name); rows that are incomplete or already present are skipped.
func (s *StudentService) ImportRoster(ctx context.Context, classID string, r io.Reader, actor Actor) (*RosterImportReport, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable roster file")
	}
	lastIdx, firstIdx := rosterColumns(header)
	if lastIdx < 0 || firstIdx < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster needs Name/Nachname and Vorname columns")
	}

	report := &RosterImportReport{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		lastName := fieldAt(record, lastIdx)
		firstName := fieldAt(record, firstIdx)
		if lastName == "" || firstName == "" {
			report.Skipped++
			continue
		}

		if _, err := s.repo.FindByNaturalKey(ctx, lastName, firstName, classID); err == nil {
			report.Skipped++
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
		}

		student := &models.Student{LastName: lastName, FirstName: firstName, ClassID: classID}
		if err := s.repo.Create(ctx, student); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		report.Imported++
	}

	details := fmt.Sprintf("roster import: %d added, %d skipped", report.Imported, report.Skipped)
	entry := &models.AuditLog{
		Action:     models.AuditActionStudentImport,
		EntityType: "school_class",
		EntityID:   &classID,
		Details:    &details,
		IPAddress:  actor.IPAddress,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if auditErr := s.audit.Create(ctx, entry); auditErr != nil {
		s.logger.Warn("audit write failed", zap.Error(auditErr))
	}

	return report, nil
}

// rosterColumns finds the name columns, tolerating the header variants
// the school office files use.
func rosterColumns(header []string) (lastIdx, firstIdx int) {
	lastIdx, firstIdx = -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF"))) {
		case "name", "nachname", "last_name":
			if lastIdx < 0 {
				lastIdx = i
			}
		case "vorname", "first_name":
			if firstIdx < 0 {
				firstIdx = i
			}
		}
	}
	return lastIdx, firstIdx
}

func fieldAt(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
