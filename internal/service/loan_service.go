package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	"github.com/feldbach-gym/keyboard-loan-api/internal/repository"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

type loanRepository interface {
	List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.LoanDetail, error)
	FindActiveByStudent(ctx context.Context, studentID string) (*models.Loan, error)
	FindActiveByKeyboard(ctx context.Context, keyboardID string) (*models.Loan, error)
	CreateActive(ctx context.Context, loan *models.Loan) error
	MarkReturned(ctx context.Context, loanID string, returnedAt time.Time, returnCondition models.KeyboardCondition, returnNotes *string, keyboardStatus models.KeyboardStatus) error
	Reopen(ctx context.Context, loanID string) error
	ToggleFeePaid(ctx context.Context, loanID string) (bool, error)
	LedgerViolations(ctx context.Context) (students, keyboards int, err error)
}

type loanStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type loanKeyboardReader interface {
	FindByID(ctx context.Context, id string) (*models.Keyboard, error)
}

type auditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// overviewCache lets write paths drop the cached dashboard overview so
// the counters never lag a mutation by the cache TTL.
type overviewCache interface {
	Invalidate(ctx context.Context)
}

// Actor identifies who triggered an operation, for the audit trail.
type Actor struct {
	UserID    string
	IPAddress string
}

// CreateLoanRequest describes payload for handing out a keyboard. When
// FeePaid is omitted the student's prepaid flag is carried over.
type CreateLoanRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	KeyboardID string `json:"keyboard_id" validate:"required"`
	FeePaid    *bool  `json:"fee_paid"`
}

// ReturnLoanRequest describes payload for taking a keyboard back.
type ReturnLoanRequest struct {
	ReturnCondition models.KeyboardCondition `json:"return_condition"`
	ReturnNotes     string                   `json:"return_notes"`
}

// LoanService orchestrates the loan ledger.
type LoanService struct {
	loans     loanRepository
	students  loanStudentReader
	keyboards loanKeyboardReader
	audit     auditWriter
	cache     overviewCache
	feeAmount float64
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLoanService creates a new loan service instance.
func NewLoanService(loans loanRepository, students loanStudentReader, keyboards loanKeyboardReader, audit auditWriter, cache overviewCache, feeAmount float64, validate *validator.Validate, logger *zap.Logger) *LoanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		loans:     loans,
		students:  students,
		keyboards: keyboards,
		audit:     audit,
		cache:     cache,
		feeAmount: feeAmount,
		validator: validate,
		logger:    logger,
	}
}

// List returns paginated loans.
func (s *LoanService) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	loans, total, err := s.loans.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loans")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}

	return loans, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one loan with its context.
func (s *LoanService) Get(ctx context.Context, id string) (*models.LoanDetail, error) {
	loan, err := s.loans.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	return loan, nil
}

// Create hands a keyboard out to a student.
func (s *LoanService) Create(ctx context.Context, req CreateLoanRequest, actor Actor) (*models.LoanDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid loan payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	keyboard, err := s.keyboards.FindByID(ctx, req.KeyboardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "keyboard not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load keyboard")
	}
	if !keyboard.IsAvailable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "keyboard is not available")
	}

	feePaid := student.FeePrepaid
	if req.FeePaid != nil {
		feePaid = *req.FeePaid
	}

	loan := &models.Loan{
		StudentID:  student.ID,
		KeyboardID: keyboard.ID,
		FeePaid:    feePaid,
		FeeAmount:  s.feeAmount,
	}
	if actor.UserID != "" {
		loan.CreatedBy = &actor.UserID
	}

	if err := s.loans.CreateActive(ctx, loan); err != nil {
		switch {
		case errors.Is(err, repository.ErrStudentHasActiveLoan):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has a keyboard on loan")
		case errors.Is(err, repository.ErrKeyboardOnLoan):
			return nil, appErrors.Clone(appErrors.ErrConflict, "keyboard is already on loan")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan")
	}

	s.writeAudit(ctx, actor, models.AuditActionLoanCreate, loan.ID,
		fmt.Sprintf("keyboard %s loaned to %s", keyboard.InventoryNumber, student.FullName()))
	s.invalidateOverview(ctx)

	s.logger.Info("loan created",
		zap.String("loan_id", loan.ID),
		zap.String("student_id", student.ID),
		zap.String("keyboard", keyboard.InventoryNumber))

	return s.Get(ctx, loan.ID)
}

// Return closes an open loan and routes the keyboard by the reported
// condition.
func (s *LoanService) Return(ctx context.Context, id string, req ReturnLoanRequest, actor Actor) (*models.LoanDetail, error) {
	loan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !loan.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyReturned, "keyboard was already returned")
	}

	condition := req.ReturnCondition
	if condition == "" {
		condition = models.ConditionOK
	}
	status, err := keyboardStatusAfterReturn(condition)
	if err != nil {
		return nil, err
	}

	var notes *string
	if req.ReturnNotes != "" {
		notes = &req.ReturnNotes
	}

	if err := s.loans.MarkReturned(ctx, id, time.Now().UTC(), condition, notes, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyReturned, "keyboard was already returned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return loan")
	}

	s.writeAudit(ctx, actor, models.AuditActionLoanReturn, id,
		fmt.Sprintf("keyboard %s returned by %s, %s (%s)", loan.InventoryNumber, loan.StudentLastName, loan.StudentFirstName, condition))
	s.invalidateOverview(ctx)

	return s.Get(ctx, id)
}

// UndoReturn restores a closed loan to active, provided the keyboard
// was not handed to someone else in the meantime. The keyboard comes
// back as loaned with condition reset to ok.
func (s *LoanService) UndoReturn(ctx context.Context, id string, actor Actor) (*models.LoanDetail, error) {
	loan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrNotReturned, "loan is still active")
	}

	current, err := s.loans.FindActiveByKeyboard(ctx, loan.KeyboardID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check keyboard assignment")
	}
	if current != nil && current.ID != loan.ID {
		return nil, appErrors.Clone(appErrors.ErrKeyboardReassigned, "keyboard is already loaned to someone else")
	}

	held, err := s.loans.FindActiveByStudent(ctx, loan.StudentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student loans")
	}
	if held != nil && held.ID != loan.ID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has another keyboard on loan")
	}

	if err := s.loans.Reopen(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotReturned, "loan is still active")
		case errors.Is(err, repository.ErrKeyboardOnLoan):
			return nil, appErrors.Clone(appErrors.ErrKeyboardReassigned, "keyboard is already loaned to someone else")
		case errors.Is(err, repository.ErrStudentHasActiveLoan):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has another keyboard on loan")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to undo return")
	}

	details := fmt.Sprintf("return undone: keyboard %s back with %s, %s", loan.InventoryNumber, loan.StudentLastName, loan.StudentFirstName)
	if loan.ReturnedAt != nil {
		details = fmt.Sprintf("%s (was returned %s)", details, loan.ReturnedAt.Format("2006-01-02 15:04"))
	}
	s.writeAudit(ctx, actor, models.AuditActionLoanUndoReturn, id, details)
	s.invalidateOverview(ctx)

	return s.Get(ctx, id)
}

// ToggleFeePaid flips the fee flag of a loan and returns the new value.
func (s *LoanService) ToggleFeePaid(ctx context.Context, id string, actor Actor) (bool, error) {
	paid, err := s.loans.ToggleFeePaid(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle fee")
	}

	state := "open"
	if paid {
		state = "paid"
	}
	s.writeAudit(ctx, actor, models.AuditActionLoanToggleFee, id, "fee marked "+state)
	s.invalidateOverview(ctx)

	return paid, nil
}

// LedgerCheckReport states whether the one-open-loan rule holds.
type LedgerCheckReport struct {
	Consistent                 bool `json:"consistent"`
	StudentsWithMultipleLoans  int  `json:"students_with_multiple_loans"`
	KeyboardsWithMultipleLoans int  `json:"keyboards_with_multiple_loans"`
}

// LedgerCheck cross-checks the ledger against the one-open-loan rule.
// Both counts are always zero unless the database was modified behind
// the application's back.
func (s *LoanService) LedgerCheck(ctx context.Context) (*LedgerCheckReport, error) {
	students, keyboards, err := s.loans.LedgerViolations(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ledger")
	}
	report := &LedgerCheckReport{
		Consistent:                 students == 0 && keyboards == 0,
		StudentsWithMultipleLoans:  students,
		KeyboardsWithMultipleLoans: keyboards,
	}
	if !report.Consistent {
		s.logger.Error("ledger inconsistency detected",
			zap.Int("students", students),
			zap.Int("keyboards", keyboards))
	}
	return report, nil
}

func (s *LoanService) invalidateOverview(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *LoanService) writeAudit(ctx context.Context, actor Actor, action, loanID, details string) {
	entry := &models.AuditLog{
		Action:     action,
		EntityType: "loan",
		EntityID:   &loanID,
		Details:    &details,
		IPAddress:  actor.IPAddress,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

// keyboardStatusAfterReturn routes the keyboard by the reported
// condition: in_repair goes to the workshop, everything else to storage.
func keyboardStatusAfterReturn(condition models.KeyboardCondition) (models.KeyboardStatus, error) {
	switch condition {
	case models.ConditionOK, models.ConditionDefective:
		return models.StatusInStorage, nil
	case models.ConditionInRepair:
		return models.StatusInRepair, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown return condition")
	}
}
