package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cmsconsole/internal/models"
	"github.com/charlesng35/cmsconsole/internal/services"
	"github.com/charlesng35/cmsconsole/pkg/response"
)

// NotificationHandler exposes the caller's notification inbox.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type notificationListPayload struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Unread        int64                 `json:"unread"`
}

// List returns a page of the caller's notifications, newest first.
// GET /api/notifications?page&limit&type&read&startDate&endDate
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	pagination, err := parsePagination(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	read, err := parseBoolQuery(c, "read")
	if err != nil {
		response.Error(c, err)
		return
	}
	dates, err := parseDateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	list, err := h.service.List(requestContext(c), services.NotificationFilter{
		RecipientID: userID,
		Type:        models.NotificationType(strings.TrimSpace(c.Query("type"))),
		Read:        read,
		Dates:       dates,
		Pagination:  pagination,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, notificationListPayload{
		Notifications: list.Items,
		Total:         list.Total,
		Unread:        list.Unread,
	}, response.NewMeta(list.Page.Page, list.Limit, list.Total))
}

// UnreadCount returns the caller's unread total.
// GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// MarkRead marks one of the caller's notifications as read.
// PATCH /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, err := parseIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	notification, err := h.service.MarkRead(requestContext(c), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, notification)
}

// MarkAllRead marks every unread notification of the caller as read.
// PATCH /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updatedCount": updated})
}

// Delete removes one of the caller's notifications. Unknown ids succeed silently.
// DELETE /api/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, err := parseIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.Delete(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// DeleteAll clears the caller's inbox.
// DELETE /api/notifications
func (h *NotificationHandler) DeleteAll(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteAll(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deletedCount": deleted})
}

// Create issues a notification to any recipient.
// POST /api/notifications
func (h *NotificationHandler) Create(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	var payload services.CreateNotificationInput
	if !bindAndValidate(c, &payload) {
		return
	}

	notification, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, notification)
}
