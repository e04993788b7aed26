package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/util"
)

// BanUser permanently bans an account and drops its sessions
// POST /api/v1/admin/users/:username/ban
func (h *Handlers) BanUser(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, admin.ID, false)
	if target == nil {
		return
	}
	if target.Role == models.RoleAdmin {
		util.RespondForbidden(c, "cannot ban an admin")
		return
	}
	if target.IsBanned {
		util.RespondConflict(c, "ban")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if req.Reason == "" {
		util.RespondValidationError(c, "reason", "ban reason is required")
		return
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"is_banned":  true,
		"banned_at":  &now,
		"ban_reason": req.Reason,
		"is_online":  false,
	}
	if err := database.DB.Model(target).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "Failed to ban user")
		return
	}

	if err := h.authService.RevokeAllSessions(target.ID); err != nil {
		logger.WarnWithFields("failed to revoke sessions on ban", err)
	}
	h.disconnectRealtime(target.ID)

	logger.Log.Info("user banned",
		logger.WithUserID(target.ID),
		zap.String("admin_id", admin.ID),
	)
	c.JSON(http.StatusOK, gin.H{"status": "banned", "user_id": target.ID})
}

// UnbanUser lifts a ban
// DELETE /api/v1/admin/users/:username/ban
func (h *Handlers) UnbanUser(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, admin.ID, false)
	if target == nil {
		return
	}
	if !target.IsBanned {
		util.RespondNotFound(c, "ban")
		return
	}

	updates := map[string]interface{}{
		"is_banned":  false,
		"banned_at":  nil,
		"ban_reason": "",
	}
	if err := database.DB.Model(target).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "Failed to unban user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "unbanned", "user_id": target.ID})
}

// SuspendUser suspends an account for a number of hours
// POST /api/v1/admin/users/:username/suspend
func (h *Handlers) SuspendUser(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, admin.ID, false)
	if target == nil {
		return
	}
	if target.Role == models.RoleAdmin {
		util.RespondForbidden(c, "cannot suspend an admin")
		return
	}

	var req struct {
		Hours int `json:"hours"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if req.Hours < 1 || req.Hours > 24*365 {
		util.RespondValidationError(c, "hours", "hours must be between 1 and 8760")
		return
	}

	until := time.Now().UTC().Add(time.Duration(req.Hours) * time.Hour)
	updates := map[string]interface{}{
		"suspended_until": &until,
		"is_online":       false,
	}
	if err := database.DB.Model(target).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "Failed to suspend user")
		return
	}

	if err := h.authService.RevokeAllSessions(target.ID); err != nil {
		logger.WarnWithFields("failed to revoke sessions on suspension", err)
	}
	h.disconnectRealtime(target.ID)

	logger.Log.Info("user suspended",
		logger.WithUserID(target.ID),
		zap.String("admin_id", admin.ID),
	)
	c.JSON(http.StatusOK, gin.H{
		"status":          "suspended",
		"user_id":         target.ID,
		"suspended_until": until,
	})
}

// UnsuspendUser lifts a suspension early
// DELETE /api/v1/admin/users/:username/suspend
func (h *Handlers) UnsuspendUser(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	target := h.resolveTargetUser(c, admin.ID, false)
	if target == nil {
		return
	}
	if !target.IsSuspended() {
		util.RespondNotFound(c, "suspension")
		return
	}

	if err := database.DB.Model(target).Update("suspended_until", nil).Error; err != nil {
		util.RespondInternalError(c, "Failed to unsuspend user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "unsuspended", "user_id": target.ID})
}

// ListReports returns reports for moderator review, pending first
// GET /api/v1/admin/reports
func (h *Handlers) ListReports(c *gin.Context) {
	if _, ok := util.GetUserIDFromContext(c); !ok {
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	query := database.DB.Preload("Reporter").Preload("Moderator")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var reports []models.Report
	err := query.Order("CASE WHEN status = 'pending' THEN 0 ELSE 1 END, created_at DESC").
		Limit(limit).Offset(offset).
		Find(&reports).Error
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch reports")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"limit":   limit,
		"offset":  offset,
	})
}

// ResolveReport closes a report with an action note
// POST /api/v1/admin/reports/:id/resolve
func (h *Handlers) ResolveReport(c *gin.Context) {
	h.closeReport(c, models.ReportStatusResolved)
}

// DismissReport closes a report without action
// POST /api/v1/admin/reports/:id/dismiss
func (h *Handlers) DismissReport(c *gin.Context) {
	h.closeReport(c, models.ReportStatusDismissed)
}

func (h *Handlers) closeReport(c *gin.Context, status models.ReportStatus) {
	moderator, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var report models.Report
	err := database.DB.First(&report, "id = ?", c.Param("id")).Error
	if util.HandleDBError(c, err, "report") {
		return
	}
	if report.Status == models.ReportStatusResolved || report.Status == models.ReportStatusDismissed {
		util.RespondConflict(c, "report")
		return
	}

	var req struct {
		ActionTaken string `json:"action_taken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && status == models.ReportStatusResolved {
		util.RespondBadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{
		"status":       status,
		"moderator_id": &moderator.ID,
		"action_taken": req.ActionTaken,
	}
	if err := database.DB.Model(&report).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "Failed to update report")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(status), "report_id": report.ID})
}
