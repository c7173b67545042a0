package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/response"
)

// RolloverHandler exposes the annual transition endpoints.
type RolloverHandler struct {
	service *service.RolloverService
}

// NewRolloverHandler constructs a rollover handler.
func NewRolloverHandler(svc *service.RolloverService) *RolloverHandler {
	return &RolloverHandler{service: svc}
}

// Preview godoc
// @Summary Preview the annual grade promotion
// @Tags Rollover
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rollover/preview [get]
func (h *RolloverHandler) Preview(c *gin.Context) {
	preview, err := h.service.Preview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Promote godoc
// @Summary Run the annual grade promotion
// @Tags Rollover
// @Accept json
// @Produce json
// @Param payload body service.PromoteYearRequest true "Promotion payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /rollover/promote [post]
func (h *RolloverHandler) Promote(c *gin.Context) {
	var req service.PromoteYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	report, err := h.service.Promote(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
