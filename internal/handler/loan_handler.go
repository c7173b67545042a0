package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/response"
)

// LoanHandler exposes the loan ledger endpoints.
type LoanHandler struct {
	service *service.LoanService
}

// NewLoanHandler constructs a loan handler.
func NewLoanHandler(svc *service.LoanService) *LoanHandler {
	return &LoanHandler{service: svc}
}

// List godoc
// @Summary List loans
// @Tags Loans
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param keyboard_id query string false "Filter by keyboard"
// @Param class_id query string false "Filter by class"
// @Param active query bool false "Only open or only closed loans"
// @Param fee_paid query bool false "Filter by fee flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /loans [get]
func (h *LoanHandler) List(c *gin.Context) {
	var filter models.LoanFilter
	filter.StudentID = c.Query("student_id")
	filter.KeyboardID = c.Query("keyboard_id")
	filter.ClassID = c.Query("class_id")
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}
	if raw := c.Query("fee_paid"); raw != "" {
		if paid, err := strconv.ParseBool(raw); err == nil {
			filter.FeePaid = &paid
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	loans, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination)
}

// Get godoc
// @Summary Get loan detail
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Router /loans/{id} [get]
func (h *LoanHandler) Get(c *gin.Context) {
	loan, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// Create godoc
// @Summary Hand a keyboard out to a student
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body service.CreateLoanRequest true "Loan payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /loans [post]
func (h *LoanHandler) Create(c *gin.Context) {
	var req service.CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	loan, err := h.service.Create(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// Return godoc
// @Summary Take a keyboard back
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.ReturnLoanRequest true "Return payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /loans/{id}/return [post]
func (h *LoanHandler) Return(c *gin.Context) {
	// An empty body means a plain return in good condition.
	var req service.ReturnLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	loan, err := h.service.Return(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// UndoReturn godoc
// @Summary Undo a keyboard return
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /loans/{id}/undo-return [post]
func (h *LoanHandler) UndoReturn(c *gin.Context) {
	loan, err := h.service.UndoReturn(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// LedgerCheck godoc
// @Summary Check ledger consistency
// @Description Counts students and keyboards holding more than one open loan; both must be zero
// @Tags Loans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /loans/ledger-check [get]
func (h *LoanHandler) LedgerCheck(c *gin.Context) {
	report, err := h.service.LedgerCheck(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ToggleFee godoc
// @Summary Toggle the fee flag on a loan
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Router /loans/{id}/toggle-fee [post]
func (h *LoanHandler) ToggleFee(c *gin.Context) {
	paid, err := h.service.ToggleFeePaid(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"fee_paid": paid}, nil)
}
