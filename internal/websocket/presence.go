// Package websocket provides presence tracking for real-time user status.
package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/metrics"
	"github.com/driftline/backend/internal/models"
)

// PresenceStatus represents the current status of a user
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// UserPresence tracks a single user's presence state
type UserPresence struct {
	UserID       string         `json:"user_id"`
	Username     string         `json:"username"`
	Status       PresenceStatus `json:"status"`
	LastActivity time.Time      `json:"last_activity"`
	ConnectedAt  time.Time      `json:"connected_at"`

	// ID of the connection that most recently brought this user
	// online. A disconnect only takes the user offline if it comes
	// from this connection, so a slow-closing old socket can't evict
	// a newer one.
	connID string
}

// PresenceManager tracks user presence and broadcasts status transitions
type PresenceManager struct {
	hub *Hub

	// In-memory presence storage
	presence map[string]*UserPresence
	mu       sync.RWMutex

	// Configuration
	timeoutDuration time.Duration // How long before a user is considered offline

	// Shutdown handling
	ctx    context.Context
	cancel context.CancelFunc
}

// PresenceConfig holds configuration for the presence manager
type PresenceConfig struct {
	TimeoutDuration time.Duration // Default: 5 minutes
}

// DefaultPresenceConfig returns sensible defaults
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		TimeoutDuration: 5 * time.Minute,
	}
}

// NewPresenceManager creates a new presence manager
func NewPresenceManager(hub *Hub, config PresenceConfig) *PresenceManager {
	ctx, cancel := context.WithCancel(context.Background())

	if config.TimeoutDuration == 0 {
		config.TimeoutDuration = 5 * time.Minute
	}

	pm := &PresenceManager{
		hub:             hub,
		presence:        make(map[string]*UserPresence),
		timeoutDuration: config.TimeoutDuration,
		ctx:             ctx,
		cancel:          cancel,
	}

	return pm
}

// Start begins the presence manager's background tasks
func (pm *PresenceManager) Start() {
	log.Println("👤 Presence manager starting...")

	// Start timeout checker
	go pm.runTimeoutChecker()

	// Register message handlers with the hub
	pm.registerHandlers()

	log.Println("👤 Presence manager started")
}

// Stop gracefully shuts down the presence manager
func (pm *PresenceManager) Stop() {
	log.Println("👤 Presence manager stopping...")
	pm.cancel()

	// Mark all users as offline
	pm.mu.Lock()
	for userID := range pm.presence {
		pm.setOfflineInternal(userID)
	}
	pm.mu.Unlock()

	log.Println("👤 Presence manager stopped")
}

// registerHandlers sets up message handlers for presence-related messages
func (pm *PresenceManager) registerHandlers() {
	// Clients may push explicit presence refreshes, e.g. after waking
	// from a background tab
	pm.hub.RegisterHandler(MessageTypePresence, func(client *Client, msg *Message) error {
		pm.Heartbeat(client.UserID)
		return nil
	})
}

// OnClientConnect is called when a client connects
func (pm *PresenceManager) OnClientConnect(client *Client) {
	pm.mu.Lock()

	existing := pm.presence[client.UserID]
	wasOffline := existing == nil || existing.Status == StatusOffline

	now := time.Now()
	if existing == nil {
		pm.presence[client.UserID] = &UserPresence{
			UserID:       client.UserID,
			Username:     client.Username,
			Status:       StatusOnline,
			LastActivity: now,
			ConnectedAt:  now,
			connID:       client.ConnID,
		}
	} else {
		existing.Status = StatusOnline
		existing.LastActivity = now
		existing.connID = client.ConnID
		if existing.Username == "" {
			existing.Username = client.Username
		}
	}
	pm.mu.Unlock()

	go pm.updateDatabasePresence(client.UserID, true)

	if wasOffline {
		metrics.App().PresenceTransitionsTotal.WithLabelValues("online").Inc()
		go pm.broadcastPresence(MessageTypeUserOnline, PresencePayload{
			UserID:    client.UserID,
			Username:  client.Username,
			Status:    string(StatusOnline),
			Timestamp: now.UnixMilli(),
		})
	}
}

// OnClientDisconnect is called when a client disconnects
func (pm *PresenceManager) OnClientDisconnect(client *Client) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	presence, ok := pm.presence[client.UserID]
	if !ok {
		return
	}

	// A newer connection has since claimed this user; the stale
	// disconnect must not take them offline
	if presence.connID != client.ConnID {
		return
	}

	pm.setOfflineInternal(client.UserID)
}

// SetOffline marks a user as offline
func (pm *PresenceManager) SetOffline(userID string) {
	pm.mu.Lock()
	pm.setOfflineInternal(userID)
	pm.mu.Unlock()
}

// setOfflineInternal marks a user as offline (must hold lock)
func (pm *PresenceManager) setOfflineInternal(userID string) {
	presence, ok := pm.presence[userID]
	if !ok || presence.Status == StatusOffline {
		return
	}

	presence.Status = StatusOffline
	presence.LastActivity = time.Now()
	presence.connID = ""

	metrics.App().PresenceTransitionsTotal.WithLabelValues("offline").Inc()

	// Update database (non-blocking)
	go pm.updateDatabasePresence(userID, false)

	// Broadcast to everyone who can see presence
	go pm.broadcastPresence(MessageTypeUserOffline, PresencePayload{
		UserID:    userID,
		Username:  presence.Username,
		Status:    string(StatusOffline),
		Timestamp: time.Now().UnixMilli(),
	})
}

// GetPresence returns a user's current presence
func (pm *PresenceManager) GetPresence(userID string) *UserPresence {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if presence, ok := pm.presence[userID]; ok {
		// Return a copy
		p := *presence
		return &p
	}
	return nil
}

// GetOnlinePresence returns presence for multiple users (only online ones)
func (pm *PresenceManager) GetOnlinePresence(userIDs []string) map[string]*UserPresence {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]*UserPresence)
	for _, userID := range userIDs {
		if presence, ok := pm.presence[userID]; ok && presence.Status != StatusOffline {
			p := *presence
			result[userID] = &p
		}
	}
	return result
}

// GetOnlineCount returns the count of online users from a list
func (pm *PresenceManager) GetOnlineCount(userIDs []string) int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	count := 0
	for _, userID := range userIDs {
		if presence, ok := pm.presence[userID]; ok && presence.Status != StatusOffline {
			count++
		}
	}
	return count
}

// GetAllOnline returns all currently online users
func (pm *PresenceManager) GetAllOnline() []*UserPresence {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make([]*UserPresence, 0)
	for _, presence := range pm.presence {
		if presence.Status != StatusOffline {
			p := *presence
			result = append(result, &p)
		}
	}
	return result
}

// Heartbeat updates the last activity time for a user
func (pm *PresenceManager) Heartbeat(userID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if presence, ok := pm.presence[userID]; ok {
		presence.LastActivity = time.Now()
	}
}

// runTimeoutChecker periodically checks for timed-out users
func (pm *PresenceManager) runTimeoutChecker() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.checkTimeouts()
		}
	}
}

// checkTimeouts marks users as offline if they haven't sent a heartbeat
func (pm *PresenceManager) checkTimeouts() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	cutoff := time.Now().Add(-pm.timeoutDuration)

	for userID, presence := range pm.presence {
		if presence.Status != StatusOffline && presence.LastActivity.Before(cutoff) {
			// Also check if they have active WebSocket connections
			if !pm.hub.IsUserOnline(userID) {
				log.Printf("👤 Presence timeout for user %s (last activity: %v)", userID, presence.LastActivity)
				pm.setOfflineInternal(userID)
			} else {
				// They have connections but no heartbeat, update activity
				presence.LastActivity = time.Now()
			}
		}
	}
}

// broadcastPresence announces a status transition to all connected clients
func (pm *PresenceManager) broadcastPresence(msgType string, payload PresencePayload) {
	pm.hub.SendToRoomExcept(RoomLounge, payload.UserID, NewMessage(msgType, payload))
	metrics.Get().RealtimeEventsTotal.WithLabelValues(msgType, "out").Inc()
}

// updateDatabasePresence updates the user's online status in the database
func (pm *PresenceManager) updateDatabasePresence(userID string, isOnline bool) {
	if database.DB == nil {
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"is_online":    isOnline,
		"last_seen_at": now,
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		log.Printf("Error updating user presence in database: %v", err)
	}
}
