package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/response"
)

// AuditHandler exposes the activity trail.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit entries
// @Tags Audit
// @Produce json
// @Param action query string false "Filter by action"
// @Param entity_type query string false "Filter by entity type"
// @Param user_id query string false "Filter by user"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	var filter models.AuditFilter
	filter.Action = c.Query("action")
	filter.EntityType = c.Query("entity_type")
	filter.UserID = c.Query("user_id")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	entries, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
