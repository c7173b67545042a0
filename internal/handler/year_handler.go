package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/response"
)

// YearHandler exposes school year endpoints.
type YearHandler struct {
	service *service.YearService
}

// NewYearHandler constructs a year handler.
func NewYearHandler(svc *service.YearService) *YearHandler {
	return &YearHandler{service: svc}
}

// List godoc
// @Summary List school years
// @Tags SchoolYears
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /school-years [get]
func (h *YearHandler) List(c *gin.Context) {
	var filter models.SchoolYearFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	years, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, pagination)
}

// GetActive godoc
// @Summary Get the active school year
// @Tags SchoolYears
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /school-years/active [get]
func (h *YearHandler) GetActive(c *gin.Context) {
	year, err := h.service.GetActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// Get godoc
// @Summary Get school year detail
// @Tags SchoolYears
// @Produce json
// @Param id path string true "School year ID"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id} [get]
func (h *YearHandler) Get(c *gin.Context) {
	year, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// Create godoc
// @Summary Create school year
// @Tags SchoolYears
// @Accept json
// @Produce json
// @Param payload body service.CreateYearRequest true "School year payload"
// @Success 201 {object} response.Envelope
// @Router /school-years [post]
func (h *YearHandler) Create(c *gin.Context) {
	var req service.CreateYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// Update godoc
// @Summary Update school year
// @Tags SchoolYears
// @Accept json
// @Produce json
// @Param id path string true "School year ID"
// @Param payload body service.UpdateYearRequest true "School year payload"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id} [put]
func (h *YearHandler) Update(c *gin.Context) {
	var req service.UpdateYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// Activate godoc
// @Summary Activate a school year
// @Tags SchoolYears
// @Produce json
// @Param id path string true "School year ID"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id}/activate [post]
func (h *YearHandler) Activate(c *gin.Context) {
	year, err := h.service.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}
