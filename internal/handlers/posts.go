package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/metrics"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/util"
	"github.com/driftline/backend/internal/websocket"
)

const maxPostLength = 5000

// CreatePost creates a post on the caller's profile
// POST /api/v1/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Body          string `json:"body"`
		AttachmentURL string `json:"attachment_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	body := strings.TrimSpace(req.Body)
	if body == "" && req.AttachmentURL == "" {
		util.RespondValidationError(c, "body", "post needs a body or an attachment")
		return
	}
	if len(body) > maxPostLength {
		util.RespondValidationError(c, "body", fmt.Sprintf("post is too long (max %d characters)", maxPostLength))
		return
	}

	post := models.Post{
		UserID:        user.ID,
		Body:          body,
		AttachmentURL: req.AttachmentURL,
	}
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("post_count", gorm.Expr("post_count + 1")).Error
	})
	if err != nil {
		logger.ErrorWithFields("failed to create post", err)
		util.RespondInternalError(c, "Failed to create post")
		return
	}

	metrics.App().PostsCreated.WithLabelValues().Inc()
	post.User = *user
	c.JSON(http.StatusCreated, post)
}

// GetPost returns a single post
// GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *gin.Context) {
	if _, ok := util.GetUserIDFromContext(c); !ok {
		return
	}

	var post models.Post
	err := database.DB.Preload("User").First(&post, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "post") {
		return
	}

	c.JSON(http.StatusOK, post)
}

// ListUserPosts returns a user's posts, newest first
// GET /api/v1/users/:username/posts
func (h *Handlers) ListUserPosts(c *gin.Context) {
	viewerID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, viewerID, true)
	if target == nil {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	var posts []models.Post
	err := database.DB.Preload("User").
		Where("user_id = ?", target.ID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch posts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":  posts,
		"total":  target.PostCount,
		"limit":  limit,
		"offset": offset,
	})
}

// DeletePost soft-deletes the caller's own post
// DELETE /api/v1/posts/:id
func (h *Handlers) DeletePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var post models.Post
	err := database.DB.First(&post, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "post") {
		return
	}
	if post.UserID != userID {
		util.RespondForbidden(c, "not your post")
		return
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&post).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ? AND post_count > 0", userID).
			UpdateColumn("post_count", gorm.Expr("post_count - 1")).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to delete post")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// LikePost records the caller's like on a post. At most one like per user.
// POST /api/v1/posts/:id/like
func (h *Handlers) LikePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var post models.Post
	err := database.DB.First(&post, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "post") {
		return
	}

	var existing int64
	database.DB.Model(&models.PostLike{}).
		Where("post_id = ? AND user_id = ?", post.ID, user.ID).
		Count(&existing)
	if existing > 0 {
		util.RespondConflict(c, "like")
		return
	}

	like := models.PostLike{PostID: post.ID, UserID: user.ID}
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&like).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error; err != nil {
			return err
		}
		if post.UserID == user.ID {
			return nil
		}
		notification := models.Notification{
			RecipientID: post.UserID,
			ActorID:     &user.ID,
			Type:        models.NotificationTypeLike,
			Message:     fmt.Sprintf("%s liked your post", user.DisplayName),
			TargetID:    post.ID,
		}
		return tx.Create(&notification).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to like post")
		return
	}

	metrics.App().LikesTotal.WithLabelValues().Inc()

	if h.wsHandler != nil && post.UserID != user.ID {
		h.wsHandler.NotifyLike(post.UserID, &websocket.LikePayload{
			PostID:    post.ID,
			UserID:    user.ID,
			Username:  user.Username,
			LikeCount: post.LikeCount + 1,
		})
		h.pushUnreadCount(post.UserID)
	}

	c.JSON(http.StatusCreated, gin.H{"status": "liked", "post_id": post.ID})
}

// UnlikePost removes the caller's like from a post
// DELETE /api/v1/posts/:id/like
func (h *Handlers) UnlikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	postID := c.Param("id")
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).
			Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Post{}).
			Where("id = ? AND like_count > 0", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
	if err == gorm.ErrRecordNotFound {
		util.RespondNotFound(c, "like")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "Failed to unlike post")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "unliked", "post_id": postID})
}
