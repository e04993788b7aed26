package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/util"
)

// ListNotifications returns the caller's notifications, newest first
// GET /api/v1/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)
	unreadOnly := c.Query("unread") == "true"

	query := database.DB.Preload("Actor").
		Where("recipient_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&notifications).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"limit":         limit,
		"offset":        offset,
	})
}

// GetUnreadNotificationCount returns how many notifications are unread
// GET /api/v1/notifications/unread
func (h *Handlers) GetUnreadNotificationCount(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var unread int64
	err := database.DB.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&unread).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to count notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": unread})
}

// MarkNotificationRead marks one notification read
// POST /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var notification models.Notification
	err := database.DB.Where("id = ? AND recipient_id = ?", c.Param("id"), userID).
		First(&notification).Error
	if util.HandleDBError(c, err, "notification") {
		return
	}

	if !notification.IsRead {
		if err := database.DB.Model(&notification).Update("is_read", true).Error; err != nil {
			util.RespondInternalError(c, "Failed to mark notification read")
			return
		}
		h.pushUnreadCount(userID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// MarkAllNotificationsRead marks every unread notification read
// POST /api/v1/notifications/read
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	res := database.DB.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to mark notifications read")
		return
	}

	if res.RowsAffected > 0 {
		h.pushUnreadCount(userID)
	}

	c.JSON(http.StatusOK, gin.H{"marked": res.RowsAffected})
}

// DeleteNotification removes one of the caller's notifications
// DELETE /api/v1/notifications/:id
func (h *Handlers) DeleteNotification(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	res := database.DB.Where("id = ? AND recipient_id = ?", c.Param("id"), userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to delete notification")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "notification")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
