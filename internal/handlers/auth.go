package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/driftline/backend/internal/auth"
	"github.com/driftline/backend/internal/util"
	"github.com/gin-gonic/gin"
)

// Register creates a new account and opens its first session
// POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if !util.IsValidUsername(req.Username) {
		util.RespondValidationError(c, "username", "Username may only contain letters, digits and underscores (3-30 characters)")
		return
	}
	if !util.IsValidEmail(req.Email) {
		util.RespondValidationError(c, "email", "Invalid email address")
		return
	}

	resp, err := h.authService.RegisterUser(req, sessionInfo(c))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			util.RespondConflict(c, "email")
		case errors.Is(err, auth.ErrUsernameExists):
			util.RespondConflict(c, "username")
		default:
			util.RespondInternalError(c, "Failed to register")
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login authenticates with email/password and opens a session
// POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.LoginUser(req, sessionInfo(c))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			util.RespondUnauthorized(c, "invalid email or password")
		case errors.Is(err, auth.ErrAccountBanned):
			util.RespondForbidden(c, "account is banned")
		case errors.Is(err, auth.ErrAccountSuspended):
			util.RespondForbidden(c, "account is suspended")
		default:
			util.RespondInternalError(c, "Failed to log in")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout revokes the session behind the presented token
// POST /api/v1/auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	sessionID := c.GetString("session_id")

	if err := h.authService.RevokeSession(userID, sessionID); err != nil {
		util.RespondInternalError(c, "Failed to log out")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Me returns the authenticated user
// GET /api/v1/auth/me
func (h *Handlers) Me(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ListSessions returns the caller's sessions, active first
// GET /api/v1/auth/sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	sessions, err := h.authService.ListSessions(userID)
	if err != nil {
		util.RespondInternalError(c, "Failed to list sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions":   sessions,
		"current":    c.GetString("session_id"),
		"session_ct": len(sessions),
	})
}

// RevokeSession revokes one of the caller's sessions
// DELETE /api/v1/auth/sessions/:id
func (h *Handlers) RevokeSession(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	if err := h.authService.RevokeSession(userID, c.Param("id")); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			util.RespondNotFound(c, "session")
			return
		}
		util.RespondInternalError(c, "Failed to revoke session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// RevokeAllSessions revokes every session the caller holds
// DELETE /api/v1/auth/sessions
func (h *Handlers) RevokeAllSessions(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	if err := h.authService.RevokeAllSessions(userID); err != nil {
		util.RespondInternalError(c, "Failed to revoke sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked_all"})
}

// AuthMiddleware validates the bearer token against the session store and
// account state, and loads the user into the request context.
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			util.RespondUnauthorized(c, "no token provided")
			c.Abort()
			return
		}

		user, session, err := h.authService.ValidateToken(token)
		if err != nil {
			respondAuthError(c, err)
			c.Abort()
			return
		}

		h.authService.TouchSession(session.ID)

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("session_id", session.ID)
		c.Set("role", string(user.Role))
		c.Next()
	}
}

// respondAuthError maps token validation failures onto the error taxonomy:
// bad or revoked credentials are 401, a valid credential on a blocked
// account is 403.
func respondAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrAccountBanned):
		util.RespondForbidden(c, "account is banned")
	case errors.Is(err, auth.ErrAccountSuspended):
		util.RespondForbidden(c, "account is suspended")
	case errors.Is(err, auth.ErrAccountDeactivated):
		util.RespondForbidden(c, "account is deactivated")
	case errors.Is(err, auth.ErrSessionRevoked):
		util.RespondUnauthorized(c, "session revoked")
	case errors.Is(err, auth.ErrAccountDeleted):
		util.RespondUnauthorized(c, "account no longer exists")
	default:
		util.RespondUnauthorized(c, "invalid token")
	}
}

// bearerToken extracts the token from the Authorization header
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

// sessionInfo captures request metadata recorded on the session row
func sessionInfo(c *gin.Context) auth.SessionInfo {
	return auth.SessionInfo{
		UserAgent: c.GetHeader("User-Agent"),
		IP:        c.ClientIP(),
	}
}
