package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/driftline/backend/internal/auth"
	"github.com/driftline/backend/internal/metrics"
	"github.com/driftline/backend/internal/models"
	"github.com/gin-gonic/gin"
)

// authTimeout bounds the whole handshake check so a slow database
// lookup cannot hang the upgrade
const authTimeout = 5 * time.Second

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub             *Hub
	authService     auth.AuthServiceInterface
	presenceManager *PresenceManager
	typingManager   *TypingManager
	chatManager     *ChatManager
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authService auth.AuthServiceInterface) *Handler {
	return &Handler{
		hub:         hub,
		authService: authService,
	}
}

// SetPresenceManager sets the presence manager for the handler
func (h *Handler) SetPresenceManager(pm *PresenceManager) {
	h.presenceManager = pm
}

// GetPresenceManager returns the presence manager
func (h *Handler) GetPresenceManager() *PresenceManager {
	return h.presenceManager
}

// SetTypingManager sets the typing manager for the handler
func (h *Handler) SetTypingManager(tm *TypingManager) {
	h.typingManager = tm
}

// SetChatManager sets the chat manager for the handler
func (h *Handler) SetChatManager(cm *ChatManager) {
	h.chatManager = cm
}

// NotifyDirectMessage pushes a message persisted over REST to the
// recipient's personal room
func (h *Handler) NotifyDirectMessage(msg *models.Message) {
	if h.chatManager == nil {
		return
	}
	h.chatManager.DeliverNew(msg)
}

// NotifyConversationRead tells the peer their messages were read
func (h *Handler) NotifyConversationRead(conversationID, readerID, peerID string) {
	if h.chatManager == nil {
		return
	}
	h.chatManager.NotifyRead(conversationID, readerID, peerID)
}

// HandleWebSocket handles WebSocket upgrade requests
// Authentication is done via JWT token in query param: ?token=...
// Or via Authorization header: Bearer <token>
func (h *Handler) HandleWebSocket(c *gin.Context) {
	// Authenticate before upgrading; a refused connection creates no state
	user, err := h.authenticateRequest(c)
	if err != nil {
		log.Printf("WebSocket auth failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   authErrorCode(err),
			"message": err.Error(),
		})
		return
	}

	// Upgrade the HTTP connection to WebSocket
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// In production, set specific origins
		InsecureSkipVerify: true, // TODO: Configure CORS properly for production
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Create client
	client := NewClient(h.hub, conn, user.ID, user.Username)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	// Register client with hub (joins personal room and the lounge)
	h.hub.Register(client)
	metrics.Get().WebSocketConnections.WithLabelValues(RoomLounge).Set(float64(h.hub.RoomMemberCount(RoomLounge)))

	// Notify presence manager of connection
	if h.presenceManager != nil {
		h.presenceManager.OnClientConnect(client)
	}

	// Send welcome message
	client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Welcome to Driftline!",
		Data: map[string]interface{}{
			"user_id":       user.ID,
			"username":      user.Username,
			"server_time":   time.Now().UTC().UnixMilli(),
			"connection_id": client.ConnID,
		},
	}))

	// Start client read/write pumps
	go client.WritePump()
	client.ReadPump() // This blocks until client disconnects

	// Client disconnected
	if h.typingManager != nil {
		h.typingManager.ClearForUser(client.UserID)
	}
	if h.presenceManager != nil {
		h.presenceManager.OnClientDisconnect(client)
	}
	metrics.Get().WebSocketConnections.WithLabelValues(RoomLounge).Set(float64(h.hub.RoomMemberCount(RoomLounge)))
}

// authenticateRequest extracts the token and validates it against the
// session store and account state
func (h *Handler) authenticateRequest(c *gin.Context) (*models.User, error) {
	tokenString := ""

	// First check query parameter
	if token := c.Query("token"); token != "" {
		tokenString = token
	}

	// Then check Authorization header
	if auth := c.GetHeader("Authorization"); auth != "" {
		// Support "Bearer <token>" format
		if strings.HasPrefix(auth, "Bearer ") {
			tokenString = strings.TrimPrefix(auth, "Bearer ")
		} else {
			tokenString = auth
		}
	}

	if tokenString == "" {
		return nil, errors.New("no authentication token provided")
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), authTimeout)
	defer cancel()

	type validateResult struct {
		user *models.User
		err  error
	}
	done := make(chan validateResult, 1)
	go func() {
		user, _, err := h.authService.ValidateToken(tokenString)
		done <- validateResult{user: user, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.New("authentication timed out")
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.user, nil
	}
}

// authErrorCode maps validation failures to stable client-facing codes
func authErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrSessionRevoked):
		return "session_revoked"
	case errors.Is(err, auth.ErrAccountBanned):
		return "account_banned"
	case errors.Is(err, auth.ErrAccountSuspended):
		return "account_suspended"
	case errors.Is(err, auth.ErrAccountDeactivated):
		return "account_deactivated"
	case errors.Is(err, auth.ErrAccountDeleted):
		return "account_deleted"
	default:
		return "authentication_failed"
	}
}

// HandleMetrics returns WebSocket metrics (for monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	metrics := h.hub.GetMetrics()
	c.JSON(http.StatusOK, gin.H{
		"websocket":    metrics,
		"online_users": h.hub.GetOnlineUsers(),
		"lounge_size":  h.hub.RoomMemberCount(RoomLounge),
		"timestamp":    time.Now().UTC(),
	})
}

// HandleOnlineStatus checks if specific users are online
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statuses := make(map[string]bool)
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.IsUserOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// HandlePresenceStatus returns detailed presence information for users
func (h *Handler) HandlePresenceStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.presenceManager == nil {
		// Fallback to basic online status
		statuses := make(map[string]interface{})
		for _, userID := range req.UserIDs {
			if h.hub.IsUserOnline(userID) {
				statuses[userID] = map[string]interface{}{
					"status": "online",
				}
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"presence":  statuses,
			"timestamp": time.Now().UTC(),
		})
		return
	}

	// Get detailed presence from manager
	presence := h.presenceManager.GetOnlinePresence(req.UserIDs)

	// Convert to JSON-friendly format
	result := make(map[string]interface{})
	for userID, p := range presence {
		result[userID] = map[string]interface{}{
			"status":        p.Status,
			"last_activity": p.LastActivity.UnixMilli(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"presence":     result,
		"online_count": len(presence),
		"timestamp":    time.Now().UTC(),
	})
}

// NotifyFollow sends a follow notification
func (h *Handler) NotifyFollow(followeeID string, payload *FollowPayload) {
	h.hub.SendToRoom(PersonalRoom(followeeID), NewMessage(MessageTypeNewFollower, payload))
}

// NotifyUnfollow sends an unfollow event
func (h *Handler) NotifyUnfollow(followeeID string, payload *FollowPayload) {
	h.hub.SendToRoom(PersonalRoom(followeeID), NewMessage(MessageTypeUnfollowed, payload))
}

// NotifyLike sends a like notification to the post owner
func (h *Handler) NotifyLike(ownerID string, payload *LikePayload) {
	h.hub.SendToRoom(PersonalRoom(ownerID), NewMessage(MessageTypePostLiked, payload))
}

// NotifyComment sends a comment notification to the post owner
func (h *Handler) NotifyComment(ownerID string, payload *CommentPayload) {
	h.hub.SendToRoom(PersonalRoom(ownerID), NewMessage(MessageTypeNewComment, payload))
}

// NotifyNotification sends a generic notification
func (h *Handler) NotifyNotification(userID string, payload *NotificationPayload) {
	h.hub.SendToRoom(PersonalRoom(userID), NewMessage(MessageTypeNotification, payload))
}

// UpdateNotificationCount sends the updated unread notification count
func (h *Handler) UpdateNotificationCount(userID string, unread int64) {
	h.hub.SendToRoom(PersonalRoom(userID), NewMessage(MessageTypeNotificationCount, NotificationCountPayload{
		UnreadCount: unread,
		Timestamp:   time.Now().UnixMilli(),
	}))
}

// Shutdown gracefully shuts down the WebSocket handler
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// GetHub returns the hub for external access
func (h *Handler) GetHub() *Hub {
	return h.hub
}
