package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colegio-gt/unidades-api/internal/middleware"
	"github.com/colegio-gt/unidades-api/internal/service"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
	"github.com/colegio-gt/unidades-api/pkg/response"
)

// GradeHandler exposes score entry endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Upsert godoc
// @Summary Record or replace a student's score
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.UpsertScoreRequest true "Score payload"
// @Success 200 {object} response.Envelope
// @Router /grades [put]
func (h *GradeHandler) Upsert(c *gin.Context) {
	var req service.UpsertScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.UpsertScore(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade)
}

// Get godoc
// @Summary Get a student's score on an activity
// @Tags Grades
// @Produce json
// @Param id path string true "Activity ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/grades/{studentId} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	grade, err := h.grades.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade)
}

// SeedTransfer godoc
// @Summary Seed grade rows for a transferred student
// @Tags Grades
// @Produce json
// @Param id path string true "Unit ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /units/{id}/students/{studentId}/seed [post]
func (h *GradeHandler) SeedTransfer(c *gin.Context) {
	if err := h.grades.SeedTransfer(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
