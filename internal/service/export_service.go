package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/dto"
	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/export"
)

type exportYearReader interface {
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
	FindActive(ctx context.Context) (*models.SchoolYear, error)
}

type exportClassReader interface {
	List(ctx context.Context, filter models.SchoolClassFilter) ([]models.ClassSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.SchoolClass, error)
}

type exportStudentReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

type exportKeyboardReader interface {
	List(ctx context.Context, filter models.KeyboardFilter) ([]models.Keyboard, int, error)
}

type exportLoanReader interface {
	List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error)
	ListActiveByYear(ctx context.Context, schoolYearID string) ([]models.LoanDetail, error)
	ListReturnedByYear(ctx context.Context, schoolYearID string) ([]models.LoanDetail, error)
	LedgerCounts(ctx context.Context, schoolYearID string) (active, returned, feePaid int, err error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeJSON = "application/json"
	contentTypeZIP  = "application/zip"
	contentTypeCSV  = "text/csv"
	contentTypePDF  = "application/pdf"

	fillPaid = "C8E6C9"
	fillOpen = "FFCDD2"
)

// ExportService renders workbook, JSON and archive exports.
type ExportService struct {
	years     exportYearReader
	classes   exportClassReader
	students  exportStudentReader
	keyboards exportKeyboardReader
	loans     exportLoanReader
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	feeAmount float64
	logger    *zap.Logger
}

// NewExportService creates a new export service instance.
func NewExportService(years exportYearReader, classes exportClassReader, students exportStudentReader, keyboards exportKeyboardReader, loans exportLoanReader, csv *export.CSVExporter, pdf *export.PDFExporter, feeAmount float64, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		years:     years,
		classes:   classes,
		students:  students,
		keyboards: keyboards,
		loans:     loans,
		csv:       csv,
		pdf:       pdf,
		feeAmount: feeAmount,
		logger:    logger,
	}
}

// WorkbookBackup renders the full multi-sheet workbook for a year:
// overview, active loans, one sheet per class, inventory and return
// history.
func (s *ExportService) WorkbookBackup(ctx context.Context, yearID string) (*ExportFile, error) {
	year, err := s.resolveYear(ctx, yearID)
	if err != nil {
		return nil, err
	}

	sheets, err := s.backupSheets(ctx, year)
	if err != nil {
		return nil, err
	}

	wb, err := export.NewWorkbook(sheets)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build workbook")
	}
	payload, err := wb.Bytes()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render workbook")
	}

	return &ExportFile{
		Filename:    backupFilename(year.Name, "xlsx"),
		ContentType: contentTypeXLSX,
		Payload:     payload,
	}, nil
}

// JSONBackup renders the v2.0 snapshot document for a year. The output
// round-trips through the merge import.
func (s *ExportService) JSONBackup(ctx context.Context, yearID string) (*ExportFile, error) {
	year, err := s.resolveYear(ctx, yearID)
	if err != nil {
		return nil, err
	}
	snap, err := s.buildSnapshot(ctx, year)
	if err != nil {
		return nil, err
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode snapshot")
	}
	return &ExportFile{
		Filename:    backupFilename(year.Name, "json"),
		ContentType: contentTypeJSON,
		Payload:     payload,
	}, nil
}

// BundleZip packs the workbook and the JSON snapshot into one archive.
func (s *ExportService) BundleZip(ctx context.Context, yearID string) (*ExportFile, error) {
	year, err := s.resolveYear(ctx, yearID)
	if err != nil {
		return nil, err
	}
	workbook, err := s.WorkbookBackup(ctx, year.ID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.JSONBackup(ctx, year.ID)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, file := range []*ExportFile{workbook, snapshot} {
		w, err := zw.Create(file.Filename)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build archive")
		}
		if _, err := w.Write(file.Payload); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write archive entry")
		}
	}
	if err := zw.Close(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close archive")
	}

	return &ExportFile{
		Filename:    backupFilename(year.Name, "zip"),
		ContentType: contentTypeZIP,
		Payload:     buf.Bytes(),
	}, nil
}

// PaymentList renders the bookkeeping sheet: one row per open loan,
// green for paid, red for open, with sums below.
func (s *ExportService) PaymentList(ctx context.Context, yearID string) (*ExportFile, error) {
	year, err := s.resolveYear(ctx, yearID)
	if err != nil {
		return nil, err
	}
	loans, err := s.loans.ListActiveByYear(ctx, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loans")
	}

	rows := make([][]string, 0, len(loans))
	fills := make([]string, 0, len(loans))
	var totalPaid, totalOpen float64
	for _, loan := range loans {
		status := "open"
		fill := fillOpen
		if loan.FeePaid {
			status = "paid"
			fill = fillPaid
			totalPaid += loan.FeeAmount
		} else {
			totalOpen += loan.FeeAmount
		}
		rows = append(rows, []string{
			loan.ClassName, loan.StudentLastName, loan.StudentFirstName,
			formatEuro(loan.FeeAmount), status, loan.InventoryNumber,
		})
		fills = append(fills, fill)
	}

	sheet := export.Sheet{
		Title: "Fees",
		Preamble: []string{
			"Keyboard loan fees",
			"School year: " + year.Name,
			"As of: " + time.Now().Format("02.01.2006"),
		},
		Header:   []string{"Class", "Last name", "First name", "Amount", "Status", "Keyboard"},
		Rows:     rows,
		RowFills: fills,
		Footer: [][]string{
			{"", "", "Total paid:", formatEuro(totalPaid)},
			{"", "", "Total open:", formatEuro(totalOpen)},
			{"", "", "Total:", formatEuro(totalPaid + totalOpen)},
		},
	}

	wb, err := export.NewWorkbook([]export.Sheet{sheet})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build payment list")
	}
	payload, err := wb.Bytes()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render payment list")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("fees_%s.xlsx", yearSlug(year.Name)),
		ContentType: contentTypeXLSX,
		Payload:     payload,
	}, nil
}

// ClassList renders a single class roster in the requested format:
// xlsx, csv or pdf.
func (s *ExportService) ClassList(ctx context.Context, classID, format string) (*ExportFile, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	year, err := s.years.FindByID(ctx, class.SchoolYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}

	students, _, err := s.students.List(ctx, models.StudentFilter{ClassID: classID, PageSize: 200, SortBy: "last_name"})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	active := true
	loans, _, err := s.loans.List(ctx, models.LoanFilter{ClassID: classID, Active: &active, PageSize: 200})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loans")
	}
	loanByStudent := make(map[string]models.LoanDetail, len(loans))
	for _, loan := range loans {
		loanByStudent[loan.StudentID] = loan
	}

	headers := []string{"No.", "Last name", "First name", "Keyboard", "Fee paid", "Notes"}
	rows := make([][]string, 0, len(students))
	for i, student := range students {
		keyboard, fee := "", ""
		if loan, ok := loanByStudent[student.ID]; ok {
			keyboard = loan.InventoryNumber
			if loan.FeePaid {
				fee = "yes"
			} else {
				fee = "no"
			}
		}
		notes := ""
		if student.Notes != nil {
			notes = *student.Notes
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), student.LastName, student.FirstName, keyboard, fee, notes})
	}

	base := fmt.Sprintf("class_%s_%s", class.Name, yearSlug(year.Name))
	switch format {
	case "csv":
		dataset := export.Dataset{Headers: headers, Rows: mapRows(headers, rows)}
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: contentTypeCSV, Payload: payload}, nil
	case "pdf":
		dataset := export.Dataset{Headers: headers, Rows: mapRows(headers, rows)}
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Class %s (%s)", class.Name, year.Name))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: contentTypePDF, Payload: payload}, nil
	case "", "xlsx":
		preamble := []string{
			"Class list " + class.Name,
			"School year: " + year.Name,
		}
		if class.ClassTeacher != nil {
			preamble = append(preamble, "Class teacher: "+*class.ClassTeacher)
		}
		sheet := export.Sheet{Title: "Class " + class.Name, Preamble: preamble, Header: headers, Rows: rows}
		wb, err := export.NewWorkbook([]export.Sheet{sheet})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build class list")
		}
		payload, err := wb.Bytes()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render class list")
		}
		return &ExportFile{Filename: base + ".xlsx", ContentType: contentTypeXLSX, Payload: payload}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *ExportService) backupSheets(ctx context.Context, year *models.SchoolYear) ([]export.Sheet, error) {
	activeCount, returnedCount, paidCount, err := s.loans.LedgerCounts(ctx, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count ledger")
	}
	keyboards, keyboardTotal, err := s.keyboards.List(ctx, models.KeyboardFilter{PageSize: 200})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load keyboards")
	}
	openCount := activeCount - paidCount

	overview := export.Sheet{
		Title: "Overview",
		Preamble: []string{
			"Keyboard loan backup",
			"School year: " + year.Name,
			"Exported: " + time.Now().Format("02.01.2006 15:04"),
		},
		Header: []string{"Statistic", "Value"},
		Rows: [][]string{
			{"Keyboards total", strconv.Itoa(keyboardTotal)},
			{"Active loans", strconv.Itoa(activeCount)},
			{"Returned loans", strconv.Itoa(returnedCount)},
			{"Fees paid", strconv.Itoa(paidCount)},
			{"Fees open", strconv.Itoa(openCount)},
			{"Income (paid)", formatEuro(float64(paidCount) * s.feeAmount)},
			{"Income (open)", formatEuro(float64(openCount) * s.feeAmount)},
		},
	}

	activeLoans, err := s.loans.ListActiveByYear(ctx, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loans")
	}
	loanRows := make([][]string, 0, len(activeLoans))
	loanByStudent := make(map[string]models.LoanDetail, len(activeLoans))
	for _, loan := range activeLoans {
		loanByStudent[loan.StudentID] = loan
		loanRows = append(loanRows, []string{
			loan.ClassName, loan.StudentLastName, loan.StudentFirstName,
			loan.InventoryNumber, loan.LoanedAt.Format("02.01.2006"), yesNo(loan.FeePaid),
		})
	}
	loansSheet := export.Sheet{
		Title:  "Active Loans",
		Header: []string{"Class", "Last name", "First name", "Keyboard", "Loaned on", "Fee paid"},
		Rows:   loanRows,
	}

	sheets := []export.Sheet{overview, loansSheet}

	classes, _, err := s.classes.List(ctx, models.SchoolClassFilter{SchoolYearID: year.ID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}
	for _, class := range classes {
		students, _, err := s.students.List(ctx, models.StudentFilter{ClassID: class.ID, PageSize: 200, SortBy: "last_name"})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
		}
		rows := make([][]string, 0, len(students))
		for i, student := range students {
			keyboard, fee := "", ""
			if loan, ok := loanByStudent[student.ID]; ok {
				keyboard = loan.InventoryNumber
				if loan.FeePaid {
					fee = "paid"
				} else {
					fee = "open"
				}
			}
			notes := ""
			if student.Notes != nil {
				notes = *student.Notes
			}
			rows = append(rows, []string{strconv.Itoa(i + 1), student.LastName, student.FirstName, keyboard, fee, notes})
		}
		preamble := []string{"Class " + class.Name}
		if class.ClassTeacher != nil {
			preamble = append(preamble, "Class teacher: "+*class.ClassTeacher)
		}
		sheets = append(sheets, export.Sheet{
			Title:    "Class " + class.Name,
			Preamble: preamble,
			Header:   []string{"No.", "Last name", "First name", "Keyboard", "Fee", "Notes"},
			Rows:     rows,
		})
	}

	inventoryRows := make([][]string, 0, len(keyboards))
	activeByKeyboard := make(map[string]models.LoanDetail, len(activeLoans))
	for _, loan := range activeLoans {
		activeByKeyboard[loan.KeyboardID] = loan
	}
	for _, kb := range keyboards {
		internal := ""
		if kb.InternalNumber != nil {
			internal = strconv.Itoa(*kb.InternalNumber)
		}
		holder, holderClass := "", ""
		if loan, ok := activeByKeyboard[kb.ID]; ok {
			holder = loan.StudentLastName + ", " + loan.StudentFirstName
			holderClass = loan.ClassName
		}
		notes := ""
		if kb.Notes != nil {
			notes = *kb.Notes
		}
		inventoryRows = append(inventoryRows, []string{
			internal, kb.InventoryNumber, string(kb.Status), string(kb.Condition), holder, holderClass, notes,
		})
	}
	sheets = append(sheets, export.Sheet{
		Title:  "Inventory",
		Header: []string{"No.", "Inventory number", "Status", "Condition", "Current holder", "Class", "Notes"},
		Rows:   inventoryRows,
	})

	returned, err := s.loans.ListReturnedByYear(ctx, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load return history")
	}
	returnedRows := make([][]string, 0, len(returned))
	for _, loan := range returned {
		returnedAt, condition, notes := "", "", ""
		if loan.ReturnedAt != nil {
			returnedAt = loan.ReturnedAt.Format("02.01.2006")
		}
		if loan.ReturnCondition != nil {
			condition = *loan.ReturnCondition
		}
		if loan.ReturnNotes != nil {
			notes = *loan.ReturnNotes
		}
		returnedRows = append(returnedRows, []string{
			loan.ClassName, loan.StudentLastName, loan.StudentFirstName, loan.InventoryNumber,
			loan.LoanedAt.Format("02.01.2006"), returnedAt, condition, notes,
		})
	}
	sheets = append(sheets, export.Sheet{
		Title:  "Returns",
		Header: []string{"Class", "Last name", "First name", "Keyboard", "Loaned", "Returned", "Condition", "Notes"},
		Rows:   returnedRows,
	})

	return sheets, nil
}

func (s *ExportService) buildSnapshot(ctx context.Context, year *models.SchoolYear) (*dto.Snapshot, error) {
	snap := &dto.Snapshot{
		ExportVersion: dto.SnapshotVersionCurrent,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		SchoolYear: dto.SnapshotSchoolYear{
			Name:      year.Name,
			StartDate: year.StartDate.Format("2006-01-02"),
			EndDate:   year.EndDate.Format("2006-01-02"),
			IsActive:  year.IsActive,
		},
	}

	keyboards, _, err := s.keyboards.List(ctx, models.KeyboardFilter{PageSize: 200, SortBy: "internal_number"})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load keyboards")
	}
	for _, kb := range keyboards {
		snap.Keyboards = append(snap.Keyboards, dto.SnapshotKeyboard{
			InventoryNumber: kb.InventoryNumber,
			InternalNumber:  kb.InternalNumber,
			Condition:       string(kb.Condition),
			Status:          string(kb.Status),
			Notes:           kb.Notes,
		})
	}

	classes, _, err := s.classes.List(ctx, models.SchoolClassFilter{SchoolYearID: year.ID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}
	for _, class := range classes {
		entry := dto.SnapshotClass{
			Name:         class.Name,
			Grade:        class.Grade,
			ClassTeacher: class.ClassTeacher,
			MusicTeacher: class.MusicTeacher,
		}
		students, _, err := s.students.List(ctx, models.StudentFilter{ClassID: class.ID, PageSize: 200, SortBy: "last_name"})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
		}
		for _, student := range students {
			entry.Students = append(entry.Students, dto.SnapshotStudent{
				LastName:           student.LastName,
				FirstName:          student.FirstName,
				Notes:              student.Notes,
				ParticipatesInLoan: student.ParticipatesInLoan,
				FeePrepaid:         student.FeePrepaid,
			})
		}
		snap.Classes = append(snap.Classes, entry)
	}

	activeLoans, err := s.loans.ListActiveByYear(ctx, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loans")
	}
	for _, loan := range activeLoans {
		loanedAt := loan.LoanedAt.UTC().Format(time.RFC3339)
		snap.Loans = append(snap.Loans, dto.SnapshotLoan{
			StudentClass:            loan.ClassName,
			StudentLastName:         loan.StudentLastName,
			StudentFirstName:        loan.StudentFirstName,
			KeyboardInventoryNumber: loan.InventoryNumber,
			LoanedAt:                &loanedAt,
			FeePaid:                 loan.FeePaid,
			FeeAmount:               loan.FeeAmount,
		})
	}

	return snap, nil
}

func (s *ExportService) resolveYear(ctx context.Context, yearID string) (*models.SchoolYear, error) {
	var (
		year *models.SchoolYear
		err  error
	)
	if yearID == "" {
		year, err = s.years.FindActive(ctx)
	} else {
		year, err = s.years.FindByID(ctx, yearID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}
	return year, nil
}

func mapRows(headers []string, rows [][]string) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(row) {
				record[header] = row[i]
			}
		}
		out = append(out, record)
	}
	return out
}

func backupFilename(yearName, ext string) string {
	return fmt.Sprintf("keyboard_backup_%s_%s.%s", yearSlug(yearName), time.Now().Format("20060102"), ext)
}

func yearSlug(name string) string {
	return strings.ReplaceAll(name, "/", "-")
}

func formatEuro(amount float64) string {
	return strings.ReplaceAll(strconv.FormatFloat(amount, 'f', 2, 64), ".", ",") + " €"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
