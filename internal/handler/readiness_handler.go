package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colegio-gt/unidades-api/internal/middleware"
	"github.com/colegio-gt/unidades-api/internal/service"
	"github.com/colegio-gt/unidades-api/pkg/response"
)

// ReadinessHandler exposes course readiness endpoints.
type ReadinessHandler struct {
	readiness *service.ReadinessService
}

// NewReadinessHandler constructs handler.
func NewReadinessHandler(readiness *service.ReadinessService) *ReadinessHandler {
	return &ReadinessHandler{readiness: readiness}
}

// Get godoc
// @Summary Get the cached readiness of a unit's course
// @Tags Readiness
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/readiness [get]
func (h *ReadinessHandler) Get(c *gin.Context) {
	readiness, err := h.readiness.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, readiness)
}

// Evaluate godoc
// @Summary Recompute the readiness of a unit's course
// @Tags Readiness
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/readiness/evaluate [post]
func (h *ReadinessHandler) Evaluate(c *gin.Context) {
	readiness, err := h.readiness.Evaluate(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, readiness)
}
