package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/response"
)

// DashboardHandler exposes the aggregated overview.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler constructs a dashboard handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Overview godoc
// @Summary Landing-page statistics for the active school year
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Overview(c *gin.Context) {
	overview, err := h.service.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}
