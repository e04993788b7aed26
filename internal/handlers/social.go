package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/metrics"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/util"
	"github.com/driftline/backend/internal/websocket"
)

// resolveTargetUser loads the :username route param and rejects self-targeting
// when allowSelf is false. Responds on error and returns nil.
func (h *Handlers) resolveTargetUser(c *gin.Context, callerID string, allowSelf bool) *models.User {
	var target models.User
	err := database.DB.Where("username = ?", c.Param("username")).First(&target).Error
	if util.HandleDBError(c, err, "user") {
		return nil
	}
	if !allowSelf && target.ID == callerID {
		util.RespondBadRequest(c, "cannot target your own account")
		return nil
	}
	return &target
}

// FollowUser makes the caller follow the target user
// POST /api/v1/users/:username/follow
func (h *Handlers) FollowUser(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, user.ID, false)
	if target == nil {
		return
	}

	blocked, err := h.chatService.IsBlockedPair(c.Request.Context(), user.ID, target.ID)
	if err != nil {
		util.RespondInternalError(c, "Failed to follow user")
		return
	}
	if blocked {
		util.RespondForbidden(c, "cannot follow this user")
		return
	}

	var existing int64
	database.DB.Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", user.ID, target.ID).
		Count(&existing)
	if existing > 0 {
		util.RespondConflict(c, "follow")
		return
	}

	follow := models.Follow{FollowerID: user.ID, FolloweeID: target.ID}
	notification := models.Notification{
		RecipientID: target.ID,
		ActorID:     &user.ID,
		Type:        models.NotificationTypeFollow,
		Message:     fmt.Sprintf("%s started following you", user.DisplayName),
		TargetID:    user.ID,
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&follow).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", target.ID).
			UpdateColumn("follower_count", gorm.Expr("follower_count + 1")).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("following_count", gorm.Expr("following_count + 1")).Error; err != nil {
			return err
		}
		return tx.Create(&notification).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to follow user")
		return
	}

	metrics.App().FollowsTotal.WithLabelValues().Inc()

	if h.wsHandler != nil {
		h.wsHandler.NotifyFollow(target.ID, &websocket.FollowPayload{
			FollowerID:     user.ID,
			FollowerName:   user.DisplayName,
			FollowerAvatar: user.AvatarURL,
			FolloweeID:     target.ID,
			FollowerCount:  target.FollowerCount + 1,
		})
		h.pushUnreadCount(target.ID)
	}

	c.JSON(http.StatusCreated, gin.H{"status": "following", "followee_id": target.ID})
}

// UnfollowUser removes the caller's follow of the target user
// DELETE /api/v1/users/:username/follow
func (h *Handlers) UnfollowUser(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, user.ID, false)
	if target == nil {
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND followee_id = ?", user.ID, target.ID).
			Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&models.User{}).
			Where("id = ? AND follower_count > 0", target.ID).
			UpdateColumn("follower_count", gorm.Expr("follower_count - 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ? AND following_count > 0", user.ID).
			UpdateColumn("following_count", gorm.Expr("following_count - 1")).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondNotFound(c, "follow")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "Failed to unfollow user")
		return
	}

	metrics.App().UnfollowsTotal.WithLabelValues().Inc()

	if h.wsHandler != nil {
		h.wsHandler.NotifyUnfollow(target.ID, &websocket.FollowPayload{
			FollowerID: user.ID,
			FolloweeID: target.ID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "unfollowed", "followee_id": target.ID})
}

// BlockUser blocks the target user. Blocking severs any follow relationship
// in both directions.
// POST /api/v1/users/:username/block
func (h *Handlers) BlockUser(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, user.ID, false)
	if target == nil {
		return
	}

	var existing int64
	database.DB.Model(&models.UserBlock{}).
		Where("blocker_id = ? AND blocked_id = ?", user.ID, target.ID).
		Count(&existing)
	if existing > 0 {
		util.RespondConflict(c, "block")
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		block := models.UserBlock{BlockerID: user.ID, BlockedID: target.ID}
		if err := tx.Create(&block).Error; err != nil {
			return err
		}
		return severFollows(tx, user.ID, target.ID)
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to block user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "blocked", "blocked_id": target.ID})
}

// severFollows deletes follow rows between two users in both directions and
// repairs the cached counters
func severFollows(tx *gorm.DB, userA, userB string) error {
	pairs := [][2]string{{userA, userB}, {userB, userA}}
	for _, pair := range pairs {
		res := tx.Where("follower_id = ? AND followee_id = ?", pair[0], pair[1]).
			Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		if err := tx.Model(&models.User{}).
			Where("id = ? AND following_count > 0", pair[0]).
			UpdateColumn("following_count", gorm.Expr("following_count - 1")).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).
			Where("id = ? AND follower_count > 0", pair[1]).
			UpdateColumn("follower_count", gorm.Expr("follower_count - 1")).Error; err != nil {
			return err
		}
	}
	return nil
}

// UnblockUser removes the caller's block of the target user
// DELETE /api/v1/users/:username/block
func (h *Handlers) UnblockUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, userID, false)
	if target == nil {
		return
	}

	res := database.DB.Where("blocker_id = ? AND blocked_id = ?", userID, target.ID).
		Delete(&models.UserBlock{})
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to unblock user")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "block")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "unblocked", "blocked_id": target.ID})
}

// ListBlocked returns the users the caller has blocked
// GET /api/v1/users/me/blocked
func (h *Handlers) ListBlocked(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var blocks []models.UserBlock
	err := database.DB.Preload("Blocked").
		Where("blocker_id = ?", userID).
		Order("created_at DESC").
		Find(&blocks).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch blocked users")
		return
	}

	users := make([]gin.H, 0, len(blocks))
	for i := range blocks {
		users = append(users, publicProfile(&blocks[i].Blocked))
	}
	c.JSON(http.StatusOK, gin.H{"blocked": users})
}

// MuteUser hides the target user's posts from the caller's feed
// POST /api/v1/users/:username/mute
func (h *Handlers) MuteUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, userID, false)
	if target == nil {
		return
	}

	var existing int64
	database.DB.Model(&models.MutedUser{}).
		Where("user_id = ? AND muted_user_id = ?", userID, target.ID).
		Count(&existing)
	if existing > 0 {
		util.RespondConflict(c, "mute")
		return
	}

	mute := models.MutedUser{UserID: userID, MutedUserID: target.ID}
	if err := database.DB.Create(&mute).Error; err != nil {
		logger.ErrorWithFields("failed to mute user", err)
		util.RespondInternalError(c, "Failed to mute user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "muted", "muted_id": target.ID})
}

// UnmuteUser removes a mute
// DELETE /api/v1/users/:username/mute
func (h *Handlers) UnmuteUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, userID, false)
	if target == nil {
		return
	}

	res := database.DB.Where("user_id = ? AND muted_user_id = ?", userID, target.ID).
		Delete(&models.MutedUser{})
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to unmute user")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "mute")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "unmuted", "muted_id": target.ID})
}

// ListMuted returns the users the caller has muted
// GET /api/v1/users/me/muted
func (h *Handlers) ListMuted(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var mutes []models.MutedUser
	err := database.DB.Preload("Muted").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&mutes).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch muted users")
		return
	}

	users := make([]gin.H, 0, len(mutes))
	for i := range mutes {
		users = append(users, publicProfile(&mutes[i].Muted))
	}
	c.JSON(http.StatusOK, gin.H{"muted": users})
}

// pushUnreadCount recomputes and pushes the unread notification count to a
// user's personal room. Best effort.
func (h *Handlers) pushUnreadCount(userID string) {
	if h.wsHandler == nil {
		return
	}
	var unread int64
	if err := database.DB.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&unread).Error; err != nil {
		return
	}
	h.wsHandler.UpdateNotificationCount(userID, unread)
}
