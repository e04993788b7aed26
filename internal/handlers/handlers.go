// Package handlers contains the HTTP handlers for the REST API.
package handlers

import (
	"github.com/driftline/backend/internal/auth"
	"github.com/driftline/backend/internal/chat"
	"github.com/driftline/backend/internal/storage"
	"github.com/driftline/backend/internal/timeline"
	"github.com/driftline/backend/internal/websocket"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	authService auth.AuthServiceInterface
	chatService *chat.Service
	timeline    *timeline.Service
	wsHandler   *websocket.Handler
	uploader    storage.MediaUploader
}

// NewHandlers creates a new handlers instance
func NewHandlers(authService auth.AuthServiceInterface, chatService *chat.Service) *Handlers {
	return &Handlers{
		authService: authService,
		chatService: chatService,
	}
}

// SetWebSocketHandler sets the WebSocket handler for real-time notifications
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// SetUploader sets the media uploader for attachments and avatars
func (h *Handlers) SetUploader(uploader storage.MediaUploader) {
	h.uploader = uploader
}

// SetTimelineService sets the home feed service
func (h *Handlers) SetTimelineService(svc *timeline.Service) {
	h.timeline = svc
}
