package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/response"
)

// KeyboardHandler exposes inventory endpoints.
type KeyboardHandler struct {
	service *service.KeyboardService
}

// NewKeyboardHandler constructs a keyboard handler.
func NewKeyboardHandler(svc *service.KeyboardService) *KeyboardHandler {
	return &KeyboardHandler{service: svc}
}

// List godoc
// @Summary List keyboards
// @Tags Keyboards
// @Produce json
// @Param status query string false "Filter by status"
// @Param condition query string false "Filter by condition"
// @Param available query bool false "Only instruments ready to hand out"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /keyboards [get]
func (h *KeyboardHandler) List(c *gin.Context) {
	var filter models.KeyboardFilter
	filter.Status = models.KeyboardStatus(c.Query("status"))
	filter.Condition = models.KeyboardCondition(c.Query("condition"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if raw := c.Query("available"); raw != "" {
		if available, err := strconv.ParseBool(raw); err == nil {
			filter.Available = &available
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

	keyboards, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, keyboards, pagination)
}

// Get godoc
// @Summary Get keyboard detail
// @Tags Keyboards
// @Produce json
// @Param id path string true "Keyboard ID"
// @Success 200 {object} response.Envelope
// @Router /keyboards/{id} [get]
func (h *KeyboardHandler) Get(c *gin.Context) {
	keyboard, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, keyboard, nil)
}

// Create godoc
// @Summary Add a keyboard to the inventory
// @Tags Keyboards
// @Accept json
// @Produce json
// @Param payload body service.CreateKeyboardRequest true "Keyboard payload"
// @Success 201 {object} response.Envelope
// @Router /keyboards [post]
func (h *KeyboardHandler) Create(c *gin.Context) {
	var req service.CreateKeyboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	keyboard, err := h.service.Create(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, keyboard)
}

// BulkCreate godoc
// @Summary Create a numbered keyboard series
// @Tags Keyboards
// @Accept json
// @Produce json
// @Param payload body service.BulkCreateKeyboardsRequest true "Series payload"
// @Success 201 {object} response.Envelope
// @Router /keyboards/bulk [post]
func (h *KeyboardHandler) BulkCreate(c *gin.Context) {
	var req service.BulkCreateKeyboardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	created, err := h.service.BulkCreate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{"created": created}, nil)
}

// Update godoc
// @Summary Update keyboard
// @Tags Keyboards
// @Accept json
// @Produce json
// @Param id path string true "Keyboard ID"
// @Param payload body service.UpdateKeyboardRequest true "Keyboard payload"
// @Success 200 {object} response.Envelope
// @Router /keyboards/{id} [put]
func (h *KeyboardHandler) Update(c *gin.Context) {
	var req service.UpdateKeyboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	keyboard, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, keyboard, nil)
}

// Delete godoc
// @Summary Delete a keyboard that is not on loan
// @Tags Keyboards
// @Produce json
// @Param id path string true "Keyboard ID"
// @Success 204
// @Router /keyboards/{id} [delete]
func (h *KeyboardHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
