package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/metrics"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/util"
	"github.com/driftline/backend/internal/websocket"
)

const (
	maxCommentLength = 2000

	// commentEditWindow is how long after posting a comment may be edited
	commentEditWindow = 15 * time.Minute
)

// CreateComment adds a comment to a post. Threading is one level deep:
// replying to a reply attaches the comment to the reply's parent.
// POST /api/v1/posts/:id/comments
func (h *Handlers) CreateComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var post models.Post
	err := database.DB.First(&post, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "post") {
		return
	}

	var req struct {
		Content  string  `json:"content"`
		ParentID *string `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		util.RespondValidationError(c, "content", "comment content is required")
		return
	}
	if len(content) > maxCommentLength {
		util.RespondValidationError(c, "content", fmt.Sprintf("comment is too long (max %d characters)", maxCommentLength))
		return
	}

	parentID := req.ParentID
	if parentID != nil {
		var parent models.Comment
		err := database.DB.First(&parent, "id = ?", *parentID).Error
		if util.HandleDBError(c, err, "parent comment") {
			return
		}
		if parent.PostID != post.ID {
			util.RespondValidationError(c, "parent_id", "parent comment belongs to another post")
			return
		}
		// Flatten to one level of nesting
		if parent.ParentID != nil {
			parentID = parent.ParentID
		}
	}

	comment := models.Comment{
		PostID:   post.ID,
		UserID:   user.ID,
		Content:  content,
		ParentID: parentID,
	}
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error; err != nil {
			return err
		}
		if post.UserID == user.ID {
			return nil
		}
		notification := models.Notification{
			RecipientID: post.UserID,
			ActorID:     &user.ID,
			Type:        models.NotificationTypeComment,
			Message:     fmt.Sprintf("%s commented on your post", user.DisplayName),
			TargetID:    comment.ID,
		}
		return tx.Create(&notification).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to create comment")
		return
	}

	metrics.App().CommentsTotal.WithLabelValues().Inc()

	if h.wsHandler != nil && post.UserID != user.ID {
		h.wsHandler.NotifyComment(post.UserID, &websocket.CommentPayload{
			CommentID:   comment.ID,
			PostID:      post.ID,
			UserID:      user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			Content:     content,
			CreatedAt:   comment.CreatedAt.UnixMilli(),
		})
		h.pushUnreadCount(post.UserID)
	}

	comment.User = *user
	c.JSON(http.StatusCreated, comment)
}

// ListComments returns a post's top-level comments with their replies
// GET /api/v1/posts/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	if _, ok := util.GetUserIDFromContext(c); !ok {
		return
	}

	var post models.Post
	err := database.DB.First(&post, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "post") {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	var comments []models.Comment
	err = database.DB.Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Replies.User").
		Where("post_id = ? AND parent_id IS NULL", post.ID).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&comments).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch comments")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comments": comments,
		"total":    post.CommentCount,
		"limit":    limit,
		"offset":   offset,
	})
}

// ListReplies returns the replies of one comment
// GET /api/v1/comments/:id/replies
func (h *Handlers) ListReplies(c *gin.Context) {
	if _, ok := util.GetUserIDFromContext(c); !ok {
		return
	}

	var comment models.Comment
	err := database.DB.First(&comment, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "comment") {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 50, 200)

	var replies []models.Comment
	err = database.DB.Preload("User").
		Where("parent_id = ?", comment.ID).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&replies).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch replies")
		return
	}

	c.JSON(http.StatusOK, gin.H{"replies": replies, "limit": limit, "offset": offset})
}

// UpdateComment edits the caller's own comment within the edit window
// PATCH /api/v1/comments/:id
func (h *Handlers) UpdateComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var comment models.Comment
	err := database.DB.First(&comment, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "comment") {
		return
	}
	if comment.UserID != userID {
		util.RespondForbidden(c, "not your comment")
		return
	}
	if comment.IsDeleted {
		util.RespondNotFound(c, "comment")
		return
	}
	if time.Since(comment.CreatedAt) > commentEditWindow {
		util.RespondForbidden(c, "edit window has passed")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		util.RespondValidationError(c, "content", "comment content is required")
		return
	}
	if len(content) > maxCommentLength {
		util.RespondValidationError(c, "content", fmt.Sprintf("comment is too long (max %d characters)", maxCommentLength))
		return
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"content":   content,
		"is_edited": true,
		"edited_at": &now,
	}
	if err := database.DB.Model(&comment).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "Failed to update comment")
		return
	}

	c.JSON(http.StatusOK, comment)
}

// DeleteComment deletes the caller's own comment. A comment that still has
// replies keeps its row with blanked content so the thread stays readable;
// a leafless comment is removed outright.
// DELETE /api/v1/comments/:id
func (h *Handlers) DeleteComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var comment models.Comment
	err := database.DB.First(&comment, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "comment") {
		return
	}
	if comment.UserID != userID {
		util.RespondForbidden(c, "not your comment")
		return
	}

	var replyCount int64
	if err := database.DB.Model(&models.Comment{}).
		Where("parent_id = ?", comment.ID).
		Count(&replyCount).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete comment")
		return
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if replyCount > 0 {
			return tx.Model(&comment).Updates(map[string]interface{}{
				"content":    "",
				"is_deleted": true,
			}).Error
		}
		if err := tx.Unscoped().Delete(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).
			Where("id = ? AND comment_count > 0", comment.PostID).
			UpdateColumn("comment_count", gorm.Expr("comment_count - 1")).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to delete comment")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "removed": replyCount == 0})
}

// ReportComment files a moderation report against a comment
// POST /api/v1/comments/:id/report
func (h *Handlers) ReportComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var comment models.Comment
	err := database.DB.First(&comment, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "comment") {
		return
	}

	var req struct {
		Reason      string `json:"reason"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if !models.ValidReportReason(req.Reason) {
		util.RespondValidationError(c, "reason", "invalid report reason")
		return
	}

	report := models.Report{
		ReporterID:   userID,
		TargetType:   models.ReportTargetComment,
		TargetID:     comment.ID,
		TargetUserID: &comment.UserID,
		Reason:       models.ReportReason(req.Reason),
		Description:  req.Description,
	}
	if err := database.DB.Create(&report).Error; err != nil {
		util.RespondInternalError(c, "Failed to file report")
		return
	}

	metrics.App().ReportsTotal.WithLabelValues(string(models.ReportTargetComment), req.Reason).Inc()
	c.JSON(http.StatusCreated, gin.H{"status": "reported", "report_id": report.ID})
}
