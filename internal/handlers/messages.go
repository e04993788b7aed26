package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/chat"
	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/util"
)

// SendMessage sends a direct message over REST. Shares the validation and
// dedup path with the socket transport, so a retry that raced a socket send
// resolves to the same message.
// POST /api/v1/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		RecipientID   string `json:"recipient_id"`
		Content       string `json:"content"`
		AttachmentURL string `json:"attachment_url"`
		TempID        string `json:"temp_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if req.RecipientID == "" {
		util.RespondValidationError(c, "recipient_id", "recipient_id is required")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), user, chat.SendInput{
		RecipientID:   req.RecipientID,
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
		TempID:        req.TempID,
	}, "rest")
	if err != nil {
		respondChatError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{"message": result.Message, "duplicate": true})
		return
	}

	if h.wsHandler != nil {
		h.wsHandler.NotifyDirectMessage(result.Message)
	}

	c.JSON(http.StatusCreated, gin.H{"message": result.Message})
}

// respondChatError maps chat service errors onto the REST error taxonomy
func respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		util.RespondValidationError(c, "content", "content or attachment required")
	case errors.Is(err, chat.ErrSelfMessage):
		util.RespondValidationError(c, "recipient_id", "cannot message yourself")
	case errors.Is(err, chat.ErrRecipientNotFound):
		util.RespondNotFound(c, "recipient")
	case errors.Is(err, chat.ErrBlocked):
		util.RespondForbidden(c, "messaging is blocked between these users")
	case errors.Is(err, chat.ErrNotParticipant):
		util.RespondForbidden(c, "not a participant of this conversation")
	default:
		util.RespondInternalError(c, "Failed to send message")
	}
}

// GetMessages returns a conversation's history, newest first. Messages the
// caller deleted for themselves are filtered out.
// GET /api/v1/conversations/:id/messages
func (h *Handlers) GetMessages(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	conv, ok := h.loadConversation(c, userID)
	if !ok {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 50, 200)

	var messages []models.Message
	err := database.DB.Preload("Sender").Preload("Reactions").
		Where("conversation_id = ?", conv.ID).
		Where("deleted_for IS NULL OR NOT (? = ANY(deleted_for))", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&messages).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"limit":    limit,
		"offset":   offset,
	})
}

// MarkConversationRead marks all of the peer's messages read
// POST /api/v1/conversations/:id/read
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	marked, peerID, err := h.chatService.MarkConversationRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, chat.ErrNotParticipant) {
			util.RespondForbidden(c, "not a participant of this conversation")
			return
		}
		if util.HandleDBError(c, err, "conversation") {
			return
		}
		util.RespondInternalError(c, "Failed to mark conversation read")
		return
	}

	if marked > 0 && h.wsHandler != nil {
		h.wsHandler.NotifyConversationRead(c.Param("id"), userID, peerID)
	}

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// DeleteMessageForMe hides a message from the caller without affecting the
// other participant's copy
// DELETE /api/v1/messages/:id
func (h *Handlers) DeleteMessageForMe(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var msg models.Message
	err := database.DB.First(&msg, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "message") {
		return
	}
	if msg.SenderID != userID && msg.RecipientID != userID {
		util.RespondForbidden(c, "not a participant of this conversation")
		return
	}
	if msg.DeletedFor.Contains(userID) {
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		return
	}

	deletedFor := append(msg.DeletedFor, userID)
	if err := database.DB.Model(&msg).Update("deleted_for", deletedFor).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ReactToMessage sets the caller's reaction on a message. A repeat with a
// different emoji replaces the previous one.
// PUT /api/v1/messages/:id/reaction
func (h *Handlers) ReactToMessage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var msg models.Message
	err := database.DB.First(&msg, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "message") {
		return
	}
	if msg.SenderID != userID && msg.RecipientID != userID {
		util.RespondForbidden(c, "not a participant of this conversation")
		return
	}

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if req.Emoji == "" {
		util.RespondValidationError(c, "emoji", "emoji is required")
		return
	}

	var reaction models.MessageReaction
	err = database.DB.Where("message_id = ? AND user_id = ?", msg.ID, userID).
		First(&reaction).Error
	switch {
	case err == nil:
		if err := database.DB.Model(&reaction).Update("emoji", req.Emoji).Error; err != nil {
			util.RespondInternalError(c, "Failed to update reaction")
			return
		}
		reaction.Emoji = req.Emoji
		c.JSON(http.StatusOK, reaction)
	case errors.Is(err, gorm.ErrRecordNotFound):
		reaction = models.MessageReaction{
			MessageID: msg.ID,
			UserID:    userID,
			Emoji:     req.Emoji,
		}
		if err := database.DB.Create(&reaction).Error; err != nil {
			util.RespondInternalError(c, "Failed to create reaction")
			return
		}
		c.JSON(http.StatusCreated, reaction)
	default:
		util.RespondInternalError(c, "Failed to react to message")
	}
}

// RemoveReaction removes the caller's reaction from a message
// DELETE /api/v1/messages/:id/reaction
func (h *Handlers) RemoveReaction(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	res := database.DB.Where("message_id = ? AND user_id = ?", c.Param("id"), userID).
		Delete(&models.MessageReaction{})
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to remove reaction")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "reaction")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
