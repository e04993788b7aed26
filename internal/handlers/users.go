package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/database"
	apperrors "github.com/driftline/backend/internal/errors"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/util"
)

// publicProfile is the subset of a user safe to show to other users
func publicProfile(u *models.User) gin.H {
	return gin.H{
		"id":              u.ID,
		"username":        u.Username,
		"display_name":    u.DisplayName,
		"bio":             u.Bio,
		"location":        u.Location,
		"avatar_url":      u.AvatarURL,
		"follower_count":  u.FollowerCount,
		"following_count": u.FollowingCount,
		"post_count":      u.PostCount,
		"is_online":       u.IsOnline,
		"last_seen_at":    u.LastSeenAt,
		"created_at":      u.CreatedAt,
	}
}

// GetProfile returns another user's public profile
// GET /api/v1/users/:username
func (h *Handlers) GetProfile(c *gin.Context) {
	viewerID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var user models.User
	err := database.DB.Where("username = ?", c.Param("username")).First(&user).Error
	if util.HandleDBError(c, err, "user") {
		return
	}
	if user.IsBanned || user.IsDeactivated() {
		util.RespondNotFound(c, "user")
		return
	}

	profile := publicProfile(&user)
	if viewerID != user.ID {
		var followed int64
		database.DB.Model(&models.Follow{}).
			Where("follower_id = ? AND followee_id = ?", viewerID, user.ID).
			Count(&followed)
		profile["is_following"] = followed > 0
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateProfile updates the caller's own profile fields
// PATCH /api/v1/users/me
func (h *Handlers) UpdateProfile(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		DisplayName *string `json:"display_name"`
		Bio         *string `json:"bio"`
		Location    *string `json:"location"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		if *req.DisplayName == "" {
			util.RespondValidationError(c, "display_name", "Display name cannot be empty")
			return
		}
		if len(*req.DisplayName) > 100 {
			util.RespondValidationError(c, "display_name", "Display name is too long (max 100 characters)")
			return
		}
		updates["display_name"] = *req.DisplayName
	}
	if req.Bio != nil {
		if len(*req.Bio) > 500 {
			util.RespondValidationError(c, "bio", "Bio is too long (max 500 characters)")
			return
		}
		updates["bio"] = *req.Bio
	}
	if req.Location != nil {
		if len(*req.Location) > 100 {
			util.RespondValidationError(c, "location", "Location is too long (max 100 characters)")
			return
		}
		updates["location"] = *req.Location
	}

	if len(updates) == 0 {
		util.RespondBadRequest(c, "no fields to update")
		return
	}

	if err := database.DB.Model(user).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "Failed to update profile")
		return
	}

	c.JSON(http.StatusOK, user)
}

// UploadAvatar replaces the caller's avatar image
// POST /api/v1/users/me/avatar
func (h *Handlers) UploadAvatar(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	if h.uploader == nil {
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("uploads"))
		return
	}

	file, header, err := c.Request.FormFile("avatar")
	if err != nil {
		util.RespondValidationError(c, "avatar", "avatar file is required")
		return
	}
	defer file.Close()

	if !util.IsValidImageFile(header.Filename) {
		util.RespondValidationError(c, "avatar", "avatar must be a png, jpg, gif or webp image")
		return
	}

	result, err := h.uploader.UploadAvatar(c.Request.Context(), file, header, user.ID)
	if err != nil {
		logger.ErrorWithFields("avatar upload failed", err)
		util.RespondInternalError(c, "Failed to upload avatar")
		return
	}

	if err := database.DB.Model(user).Update("avatar_url", result.URL).Error; err != nil {
		util.RespondInternalError(c, "Failed to update avatar")
		return
	}

	c.JSON(http.StatusOK, gin.H{"avatar_url": result.URL})
}

// DeactivateAccount hides the caller's account until their next login
// POST /api/v1/users/me/deactivate
func (h *Handlers) DeactivateAccount(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"deactivated_at": &now,
		"is_online":      false,
	}
	if err := database.DB.Model(user).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "Failed to deactivate account")
		return
	}

	// Active sessions die with the account; logging in reactivates it.
	if err := h.authService.RevokeAllSessions(user.ID); err != nil {
		logger.WarnWithFields("failed to revoke sessions on deactivation", err)
	}
	h.disconnectRealtime(user.ID)

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// DeleteAccount soft-deletes the caller's account
// DELETE /api/v1/users/me
func (h *Handlers) DeleteAccount(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("is_online", false).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to delete account")
		return
	}

	if err := h.authService.RevokeAllSessions(user.ID); err != nil {
		logger.WarnWithFields("failed to revoke sessions on account deletion", err)
	}
	h.disconnectRealtime(user.ID)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ListFollowers returns the users following the given user
// GET /api/v1/users/:username/followers
func (h *Handlers) ListFollowers(c *gin.Context) {
	if _, ok := util.GetUserIDFromContext(c); !ok {
		return
	}

	var user models.User
	err := database.DB.Where("username = ?", c.Param("username")).First(&user).Error
	if util.HandleDBError(c, err, "user") {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	var follows []models.Follow
	err = database.DB.Preload("Follower").
		Where("followee_id = ?", user.ID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&follows).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch followers")
		return
	}

	users := make([]gin.H, 0, len(follows))
	for i := range follows {
		users = append(users, publicProfile(&follows[i].Follower))
	}

	c.JSON(http.StatusOK, gin.H{
		"followers": users,
		"total":     user.FollowerCount,
		"limit":     limit,
		"offset":    offset,
	})
}

// ListFollowing returns the users the given user follows
// GET /api/v1/users/:username/following
func (h *Handlers) ListFollowing(c *gin.Context) {
	if _, ok := util.GetUserIDFromContext(c); !ok {
		return
	}

	var user models.User
	err := database.DB.Where("username = ?", c.Param("username")).First(&user).Error
	if util.HandleDBError(c, err, "user") {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	var follows []models.Follow
	err = database.DB.Preload("Followee").
		Where("follower_id = ?", user.ID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&follows).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch following")
		return
	}

	users := make([]gin.H, 0, len(follows))
	for i := range follows {
		users = append(users, publicProfile(&follows[i].Followee))
	}

	c.JSON(http.StatusOK, gin.H{
		"following": users,
		"total":     user.FollowingCount,
		"limit":     limit,
		"offset":    offset,
	})
}

// disconnectRealtime drops any open sockets for a user whose account just
// became unable to connect
func (h *Handlers) disconnectRealtime(userID string) {
	if h.wsHandler == nil {
		return
	}
	h.wsHandler.GetHub().DisconnectUser(userID)
}
