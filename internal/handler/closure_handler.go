package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colegio-gt/unidades-api/internal/middleware"
	"github.com/colegio-gt/unidades-api/internal/service"
	"github.com/colegio-gt/unidades-api/pkg/response"
)

// ClosureHandler exposes closure, recompute and roll-forward endpoints.
type ClosureHandler struct {
	closures *service.ClosureService
}

// NewClosureHandler constructs handler.
func NewClosureHandler(closures *service.ClosureService) *ClosureHandler {
	return &ClosureHandler{closures: closures}
}

// Close godoc
// @Summary Close a unit and consolidate grades
// @Tags Closure
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /units/{id}/close [post]
func (h *ClosureHandler) Close(c *gin.Context) {
	result, err := h.closures.Close(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Recompute godoc
// @Summary Recompute the consolidated grades of a unit
// @Tags Closure
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/recompute [post]
func (h *ClosureHandler) Recompute(c *gin.Context) {
	result, err := h.closures.Recompute(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Advance godoc
// @Summary Close the active unit and activate the next sequence
// @Tags Closure
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/advance [post]
func (h *ClosureHandler) Advance(c *gin.Context) {
	result, err := h.closures.Advance(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// UnitGrades godoc
// @Summary List the consolidated grades of a unit
// @Tags Closure
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/grades [get]
func (h *ClosureHandler) UnitGrades(c *gin.Context) {
	grades, err := h.closures.ListUnitGrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades)
}

// UnitGrade godoc
// @Summary Get one student's consolidated grade for a unit
// @Tags Closure
// @Produce json
// @Param id path string true "Unit ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/grades/{studentId} [get]
func (h *ClosureHandler) UnitGrade(c *gin.Context) {
	grade, err := h.closures.GetUnitGrade(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade)
}

// StudentGrades godoc
// @Summary List a student's consolidated grades across units
// @Tags Closure
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/grades [get]
func (h *ClosureHandler) StudentGrades(c *gin.Context) {
	grades, err := h.closures.ListStudentGrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades)
}
