package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colegio-gt/unidades-api/internal/middleware"
	"github.com/colegio-gt/unidades-api/internal/service"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
	"github.com/colegio-gt/unidades-api/pkg/response"
)

// ReopeningHandler exposes the reopening request workflow.
type ReopeningHandler struct {
	reopenings *service.ReopeningService
}

// NewReopeningHandler constructs handler.
func NewReopeningHandler(reopenings *service.ReopeningService) *ReopeningHandler {
	return &ReopeningHandler{reopenings: reopenings}
}

// Create godoc
// @Summary Request reopening of a closed unit
// @Tags Reopenings
// @Accept json
// @Produce json
// @Param payload body service.CreateReopeningRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /reopenings [post]
func (h *ReopeningHandler) Create(c *gin.Context) {
	var req service.CreateReopeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.reopenings.Request(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Process godoc
// @Summary Approve or reject a reopening request
// @Tags Reopenings
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.ProcessReopeningRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /reopenings/{id}/process [post]
func (h *ReopeningHandler) Process(c *gin.Context) {
	var req service.ProcessReopeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.reopenings.Process(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request)
}

// ListMine godoc
// @Summary List the caller's reopening requests
// @Tags Reopenings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reopenings/mine [get]
func (h *ReopeningHandler) ListMine(c *gin.Context) {
	requests, err := h.reopenings.ListMine(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests)
}

// ListPending godoc
// @Summary List pending reopening requests
// @Tags Reopenings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reopenings/pending [get]
func (h *ReopeningHandler) ListPending(c *gin.Context) {
	requests, err := h.reopenings.ListPending(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests)
}
