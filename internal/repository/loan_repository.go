package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
)

// Sentinel errors surfaced by the transactional ledger mutators. The
// partial unique indexes on open loans are the source of truth; these
// errors translate their violations for the service layer.
var (
	ErrStudentHasActiveLoan = fmt.Errorf("student already has an open loan")
	ErrKeyboardOnLoan       = fmt.Errorf("keyboard is already on loan")
)

// LoanRepository manages persistence for the loan ledger.
type LoanRepository struct {
	db *sqlx.DB
}

// NewLoanRepository constructs a LoanRepository.
func NewLoanRepository(db *sqlx.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanDetailColumns = `l.id, l.keyboard_id, l.student_id, l.loaned_at, l.returned_at, l.return_condition, l.return_notes,
        l.fee_paid, l.fee_amount, l.created_by, l.created_at,
        s.last_name AS student_last_name, s.first_name AS student_first_name, s.class_id,
        c.name AS class_name, k.inventory_number`

const loanDetailJoins = `FROM loans l
        JOIN students s ON s.id = l.student_id
        JOIN school_classes c ON c.id = s.class_id
        JOIN keyboards k ON k.id = l.keyboard_id`

// List returns loans with student, class and keyboard context.
func (r *LoanRepository) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error) {
	base := loanDetailJoins
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("l.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.KeyboardID != "" {
		conditions = append(conditions, fmt.Sprintf("l.keyboard_id = $%d", len(args)+1))
		args = append(args, filter.KeyboardID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Active != nil {
		if *filter.Active {
			conditions = append(conditions, "l.returned_at IS NULL")
		} else {
			conditions = append(conditions, "l.returned_at IS NOT NULL")
		}
	}
	if filter.FeePaid != nil {
		conditions = append(conditions, fmt.Sprintf("l.fee_paid = $%d", len(args)+1))
		args = append(args, *filter.FeePaid)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"loaned_at": "l.loaned_at",
		"student":   "s.last_name, s.first_name",
		"class":     "c.name, s.last_name",
		"keyboard":  "k.inventory_number",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "l.loaned_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		loanDetailColumns, base, column, order, size, offset)

	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}
	return loans, total, nil
}

// FindByID fetches a loan detail by ID.
func (r *LoanRepository) FindByID(ctx context.Context, id string) (*models.LoanDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE l.id = $1", loanDetailColumns, loanDetailJoins)
	var loan models.LoanDetail
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindActiveByStudent returns the student's open loan, if any.
func (r *LoanRepository) FindActiveByStudent(ctx context.Context, studentID string) (*models.Loan, error) {
	const query = `SELECT id, keyboard_id, student_id, loaned_at, returned_at, return_condition, return_notes,
        fee_paid, fee_amount, created_by, created_at
        FROM loans WHERE student_id = $1 AND returned_at IS NULL`
	var loan models.Loan
	if err := r.db.GetContext(ctx, &loan, query, studentID); err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindActiveByKeyboard returns the keyboard's open loan, if any.
func (r *LoanRepository) FindActiveByKeyboard(ctx context.Context, keyboardID string) (*models.Loan, error) {
	const query = `SELECT id, keyboard_id, student_id, loaned_at, returned_at, return_condition, return_notes,
        fee_paid, fee_amount, created_by, created_at
        FROM loans WHERE keyboard_id = $1 AND returned_at IS NULL`
	var loan models.Loan
	if err := r.db.GetContext(ctx, &loan, query, keyboardID); err != nil {
		return nil, err
	}
	return &loan, nil
}

// CreateActive opens a loan and flips the keyboard to loaned in one
// transaction. The partial unique indexes back the one-open-loan rule.
func (r *LoanRepository) CreateActive(ctx context.Context, loan *models.Loan) error {
	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if loan.LoanedAt.IsZero() {
		loan.LoanedAt = now
	}
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create loan tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO loans (id, keyboard_id, student_id, loaned_at, fee_paid, fee_amount, created_by, created_at)
        VALUES (:id, :keyboard_id, :student_id, :loaned_at, :fee_paid, :fee_amount, :created_by, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, loan); err != nil {
		if mapped := mapActiveLoanConflict(err); mapped != nil {
			err = mapped
			return err
		}
		return fmt.Errorf("insert loan: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE keyboards SET status = 'loaned', updated_at = $2 WHERE id = $1`,
		loan.KeyboardID, now); err != nil {
		return fmt.Errorf("mark keyboard loaned: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create loan tx: %w", err)
	}
	return nil
}

// MarkReturned closes an open loan and routes the keyboard by the
// reported condition in one transaction. Returns sql.ErrNoRows via the
// zero-row update when the loan is already closed.
func (r *LoanRepository) MarkReturned(ctx context.Context, loanID string, returnedAt time.Time,
	returnCondition models.KeyboardCondition, returnNotes *string,
	keyboardStatus models.KeyboardStatus) error {

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin return tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var keyboardID string
	const closeLoan = `UPDATE loans SET returned_at = $2, return_condition = $3, return_notes = $4
        WHERE id = $1 AND returned_at IS NULL RETURNING keyboard_id`
	if err = tx.GetContext(ctx, &keyboardID, closeLoan, loanID, returnedAt, returnCondition, returnNotes); err != nil {
		return err
	}

	const park = `UPDATE keyboards SET condition = $2, status = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, park, keyboardID, returnCondition, keyboardStatus, time.Now().UTC()); err != nil {
		return fmt.Errorf("park keyboard: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit return tx: %w", err)
	}
	return nil
}

// Reopen clears the return fields of a closed loan and hands the
// keyboard back out. The open-loan indexes reject the reopen when the
// student or the keyboard has acquired another open loan meanwhile.
func (r *LoanRepository) Reopen(ctx context.Context, loanID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reopen tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var keyboardID string
	const reopen = `UPDATE loans SET returned_at = NULL, return_condition = NULL, return_notes = NULL
        WHERE id = $1 AND returned_at IS NOT NULL RETURNING keyboard_id`
	if err = tx.GetContext(ctx, &keyboardID, reopen, loanID); err != nil {
		if mapped := mapActiveLoanConflict(err); mapped != nil {
			err = mapped
			return err
		}
		return err
	}

	const handOut = `UPDATE keyboards SET status = 'loaned', condition = 'ok', updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, handOut, keyboardID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark keyboard loaned: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reopen tx: %w", err)
	}
	return nil
}

// ToggleFeePaid flips the fee flag and returns the new value.
func (r *LoanRepository) ToggleFeePaid(ctx context.Context, loanID string) (bool, error) {
	const query = `UPDATE loans SET fee_paid = NOT fee_paid WHERE id = $1 RETURNING fee_paid`
	var paid bool
	if err := r.db.GetContext(ctx, &paid, query, loanID); err != nil {
		return false, err
	}
	return paid, nil
}

// CountActiveByYearAndGrade counts open loans held by students of the
// given grade within a school year.
func (r *LoanRepository) CountActiveByYearAndGrade(ctx context.Context, schoolYearID string, grade int) (int, error) {
	const query = `SELECT COUNT(*) FROM loans l
        JOIN students s ON s.id = l.student_id
        JOIN school_classes c ON c.id = s.class_id
        WHERE c.school_year_id = $1 AND c.grade = $2 AND l.returned_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, schoolYearID, grade); err != nil {
		return 0, fmt.Errorf("count open loans by grade: %w", err)
	}
	return count, nil
}

// ListActiveByYear returns all open loans of a school year ordered by
// class and student name, the order the exports use.
func (r *LoanRepository) ListActiveByYear(ctx context.Context, schoolYearID string) ([]models.LoanDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE c.school_year_id = $1 AND l.returned_at IS NULL
        ORDER BY c.name, s.last_name, s.first_name`, loanDetailColumns, loanDetailJoins)
	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, schoolYearID); err != nil {
		return nil, fmt.Errorf("list open loans: %w", err)
	}
	return loans, nil
}

// ListReturnedByYear returns all closed loans of a school year ordered
// by return time, newest first.
func (r *LoanRepository) ListReturnedByYear(ctx context.Context, schoolYearID string) ([]models.LoanDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE c.school_year_id = $1 AND l.returned_at IS NOT NULL
        ORDER BY l.returned_at DESC`, loanDetailColumns, loanDetailJoins)
	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, schoolYearID); err != nil {
		return nil, fmt.Errorf("list returned loans: %w", err)
	}
	return loans, nil
}

// LedgerViolations counts students and keyboards that hold more than
// one open loan. The partial unique indexes make both counts zero; the
// query is the cross-check the consistency endpoint reports from.
func (r *LoanRepository) LedgerViolations(ctx context.Context) (students, keyboards int, err error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM (SELECT student_id FROM loans WHERE returned_at IS NULL
            GROUP BY student_id HAVING COUNT(*) > 1) sv) AS students,
        (SELECT COUNT(*) FROM (SELECT keyboard_id FROM loans WHERE returned_at IS NULL
            GROUP BY keyboard_id HAVING COUNT(*) > 1) kv) AS keyboards`
	row := struct {
		Students  int `db:"students"`
		Keyboards int `db:"keyboards"`
	}{}
	if err = r.db.GetContext(ctx, &row, query); err != nil {
		return 0, 0, fmt.Errorf("check ledger consistency: %w", err)
	}
	return row.Students, row.Keyboards, nil
}

// LedgerCounts aggregates the loan counters of a school year.
func (r *LoanRepository) LedgerCounts(ctx context.Context, schoolYearID string) (active, returned, feePaid int, err error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE l.returned_at IS NULL) AS active,
        COUNT(*) FILTER (WHERE l.returned_at IS NOT NULL) AS returned,
        COUNT(*) FILTER (WHERE l.returned_at IS NULL AND l.fee_paid) AS fee_paid
        FROM loans l
        JOIN students s ON s.id = l.student_id
        JOIN school_classes c ON c.id = s.class_id
        WHERE c.school_year_id = $1`
	row := struct {
		Active   int `db:"active"`
		Returned int `db:"returned"`
		FeePaid  int `db:"fee_paid"`
	}{}
	if err = r.db.GetContext(ctx, &row, query, schoolYearID); err != nil {
		return 0, 0, 0, fmt.Errorf("count ledger: %w", err)
	}
	return row.Active, row.Returned, row.FeePaid, nil
}

// mapActiveLoanConflict translates violations of the open-loan unique
// indexes into sentinel errors.
func mapActiveLoanConflict(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return nil
	}
	switch pqErr.Constraint {
	case "uq_loans_active_student":
		return ErrStudentHasActiveLoan
	case "uq_loans_active_keyboard":
		return ErrKeyboardOnLoan
	}
	return nil
}
