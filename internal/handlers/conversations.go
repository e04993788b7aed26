package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/util"
)

// loadConversation fetches the :id route param and verifies the caller is a
// participant. Responds on error.
func (h *Handlers) loadConversation(c *gin.Context, userID string) (*models.Conversation, bool) {
	var conv models.Conversation
	err := database.DB.First(&conv, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "conversation") {
		return nil, false
	}
	if conv.UserAID != userID && conv.UserBID != userID {
		util.RespondForbidden(c, "not a participant of this conversation")
		return nil, false
	}
	return &conv, true
}

// conversationView shapes a conversation for the caller's perspective
func conversationView(conv *models.Conversation, userID string) gin.H {
	peer := conv.UserA
	if conv.UserAID == userID {
		peer = conv.UserB
	}
	return gin.H{
		"id":              conv.ID,
		"peer":            publicProfile(&peer),
		"unread_count":    conv.UnreadFor(userID),
		"archived":        conv.ArchivedBy.Contains(userID),
		"muted":           conv.MutedBy.Contains(userID),
		"last_message_id": conv.LastMessageID,
		"last_message_at": conv.LastMessageAt,
		"created_at":      conv.CreatedAt,
	}
}

// ListConversations returns the caller's conversations, most recent first.
// Archived conversations are excluded unless ?archived=true.
// GET /api/v1/conversations
func (h *Handlers) ListConversations(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)
	wantArchived := c.Query("archived") == "true"

	var convs []models.Conversation
	err := database.DB.Preload("UserA").Preload("UserB").
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Limit(limit).Offset(offset).
		Find(&convs).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch conversations")
		return
	}

	views := make([]gin.H, 0, len(convs))
	for i := range convs {
		if convs[i].ArchivedBy.Contains(userID) != wantArchived {
			continue
		}
		views = append(views, conversationView(&convs[i], userID))
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": views,
		"limit":         limit,
		"offset":        offset,
	})
}

// GetUnreadCounts returns per-conversation and total unread message counts
// GET /api/v1/conversations/unread
func (h *Handlers) GetUnreadCounts(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var convs []models.Conversation
	err := database.DB.
		Where("(user_a_id = ? AND unread_a > 0) OR (user_b_id = ? AND unread_b > 0)", userID, userID).
		Find(&convs).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch unread counts")
		return
	}

	total := 0
	perConversation := make(map[string]int, len(convs))
	for i := range convs {
		n := convs[i].UnreadFor(userID)
		perConversation[convs[i].ID] = n
		total += n
	}

	c.JSON(http.StatusOK, gin.H{
		"total":         total,
		"conversations": perConversation,
	})
}

// ArchiveConversation hides a conversation from the caller's default list
// POST /api/v1/conversations/:id/archive
func (h *Handlers) ArchiveConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	conv, ok := h.loadConversation(c, userID)
	if !ok {
		return
	}

	if conv.ArchivedBy.Contains(userID) {
		c.JSON(http.StatusOK, gin.H{"status": "archived"})
		return
	}
	archivedBy := append(conv.ArchivedBy, userID)
	if err := database.DB.Model(conv).Update("archived_by", archivedBy).Error; err != nil {
		util.RespondInternalError(c, "Failed to archive conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}

// UnarchiveConversation restores a conversation to the caller's list
// DELETE /api/v1/conversations/:id/archive
func (h *Handlers) UnarchiveConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	conv, ok := h.loadConversation(c, userID)
	if !ok {
		return
	}

	if !conv.ArchivedBy.Contains(userID) {
		util.RespondNotFound(c, "archive")
		return
	}
	if err := database.DB.Model(conv).Update("archived_by", conv.ArchivedBy.Remove(userID)).Error; err != nil {
		util.RespondInternalError(c, "Failed to unarchive conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unarchived"})
}

// MuteConversation silences notification pushes for a conversation
// POST /api/v1/conversations/:id/mute
func (h *Handlers) MuteConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	conv, ok := h.loadConversation(c, userID)
	if !ok {
		return
	}

	if conv.MutedBy.Contains(userID) {
		c.JSON(http.StatusOK, gin.H{"status": "muted"})
		return
	}
	mutedBy := append(conv.MutedBy, userID)
	if err := database.DB.Model(conv).Update("muted_by", mutedBy).Error; err != nil {
		util.RespondInternalError(c, "Failed to mute conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "muted"})
}

// UnmuteConversation re-enables notification pushes for a conversation
// DELETE /api/v1/conversations/:id/mute
func (h *Handlers) UnmuteConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	conv, ok := h.loadConversation(c, userID)
	if !ok {
		return
	}

	if !conv.MutedBy.Contains(userID) {
		util.RespondNotFound(c, "mute")
		return
	}
	if err := database.DB.Model(conv).Update("muted_by", conv.MutedBy.Remove(userID)).Error; err != nil {
		util.RespondInternalError(c, "Failed to unmute conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unmuted"})
}
