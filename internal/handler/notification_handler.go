package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/colegio-gt/unidades-api/internal/middleware"
	"github.com/colegio-gt/unidades-api/internal/service"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
	"github.com/colegio-gt/unidades-api/pkg/response"
)

// NotificationHandler exposes teacher notification endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs handler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type generateNotificationsRequest struct {
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Generate godoc
// @Summary Generate readiness notifications for a unit
// @Tags Notifications
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/notifications [post]
func (h *NotificationHandler) Generate(c *gin.Context) {
	var req generateNotificationsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	created, err := h.notifications.GenerateForUnit(c.Request.Context(), c.Param("id"), req.Deadline)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"created": created})
}

// List godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.notifications.ListForTeacher(c.Request.Context(), middleware.CurrentUser(c), unreadOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), middleware.CurrentUser(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteRead godoc
// @Summary Delete the caller's read notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/read [delete]
func (h *NotificationHandler) DeleteRead(c *gin.Context) {
	deleted, err := h.notifications.DeleteRead(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted})
}
