package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/driftline/backend/internal/chat"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/metrics"
	"github.com/driftline/backend/internal/models"
	"go.uber.org/zap"
)

// chatOpTimeout bounds the database work behind a single socket event
const chatOpTimeout = 10 * time.Second

// ChatManager routes direct-message socket events through the shared
// chat service and fans results out to the participants' rooms.
type ChatManager struct {
	hub    *Hub
	svc    *chat.Service
	typing *TypingManager
}

// NewChatManager creates a chat manager
func NewChatManager(hub *Hub, svc *chat.Service, typing *TypingManager) *ChatManager {
	return &ChatManager{
		hub:    hub,
		svc:    svc,
		typing: typing,
	}
}

// Start registers the chat message handlers with the hub
func (cm *ChatManager) Start() {
	cm.hub.RegisterHandler(MessageTypeSendMessage, cm.handleSendMessage)
	cm.hub.RegisterHandler(MessageTypeGlobalSend, cm.handleGlobalSend)
	cm.hub.RegisterHandler(MessageTypeMarkRead, cm.handleMarkRead)
}

func (cm *ChatManager) handleSendMessage(client *Client, msg *Message) error {
	var payload SendMessagePayload
	if err := msg.ParsePayload(&payload); err != nil {
		client.SendError("invalid_payload", "Failed to parse send_message payload")
		metrics.Get().RealtimeErrorsTotal.WithLabelValues(MessageTypeSendMessage, "invalid_payload").Inc()
		return nil
	}
	if payload.RecipientID == "" {
		client.SendFieldError("validation_failed", "recipient_id", "recipient_id is required")
		metrics.Get().RealtimeErrorsTotal.WithLabelValues(MessageTypeSendMessage, "validation_failed").Inc()
		return nil
	}

	ctx, cancel := context.WithTimeout(client.ctx, chatOpTimeout)
	defer cancel()

	sender := &models.User{ID: client.UserID, Username: client.Username}
	result, err := cm.svc.SendMessage(ctx, sender, chat.SendInput{
		RecipientID:   payload.RecipientID,
		Content:       payload.Content,
		AttachmentURL: payload.AttachmentURL,
		TempID:        payload.TempID,
	}, "websocket")
	if err != nil {
		cm.sendError(client, MessageTypeSendMessage, err)
		return nil
	}

	// The message arrived, so the sender is no longer "typing"
	cm.typing.Cancel(client.UserID, payload.RecipientID)

	persisted := result.Message
	out := MessagePayload{
		MessageID:      persisted.ID,
		ConversationID: persisted.ConversationID,
		SenderID:       persisted.SenderID,
		SenderUsername: persisted.Sender.Username,
		RecipientID:    persisted.RecipientID,
		Content:        persisted.Content,
		AttachmentURL:  persisted.AttachmentURL,
		TempID:         payload.TempID,
		Duplicate:      result.Duplicate,
		CreatedAt:      persisted.CreatedAt.UnixMilli(),
	}

	// Confirmation to the sender's room carries the temp ID so the
	// optimistic UI entry can be reconciled
	cm.hub.SendToRoom(PersonalRoom(client.UserID), NewMessage(MessageTypeMessageSent, out))
	metrics.Get().RealtimeEventsTotal.WithLabelValues(MessageTypeMessageSent, "out").Inc()

	// A suppressed repeat was already delivered the first time
	if result.Duplicate {
		return nil
	}

	cm.hub.SendToRoom(PersonalRoom(persisted.RecipientID), NewMessage(MessageTypeMessageNew, out))
	metrics.Get().RealtimeEventsTotal.WithLabelValues(MessageTypeMessageNew, "out").Inc()

	cm.notifyRecipient(persisted)
	return nil
}

// notifyRecipient creates and pushes the message notification.
// Best-effort: failures are logged, never surfaced to the sender.
func (cm *ChatManager) notifyRecipient(persisted *models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), chatOpTimeout)
	defer cancel()

	notif, err := cm.svc.CreateMessageNotification(ctx, persisted)
	if err != nil {
		logger.Log.Warn("message notification failed",
			zap.String("message_id", persisted.ID),
			zap.Error(err))
		return
	}

	actorID := ""
	if notif.ActorID != nil {
		actorID = *notif.ActorID
	}
	cm.hub.SendToRoom(PersonalRoom(notif.RecipientID), NewMessage(MessageTypeNotification, NotificationPayload{
		ID:        notif.ID,
		Type:      string(notif.Type),
		ActorID:   actorID,
		Message:   notif.Message,
		IsRead:    notif.IsRead,
		CreatedAt: notif.CreatedAt.UnixMilli(),
	}))
	metrics.Get().RealtimeEventsTotal.WithLabelValues(MessageTypeNotification, "out").Inc()
}

// DeliverNew fans a message persisted outside the socket path out to the
// recipient's personal room and creates the notification. The REST send
// endpoint uses this so both transports behave the same on the wire.
func (cm *ChatManager) DeliverNew(persisted *models.Message) {
	cm.typing.Cancel(persisted.SenderID, persisted.RecipientID)

	cm.hub.SendToRoom(PersonalRoom(persisted.RecipientID), NewMessage(MessageTypeMessageNew, MessagePayload{
		MessageID:      persisted.ID,
		ConversationID: persisted.ConversationID,
		SenderID:       persisted.SenderID,
		SenderUsername: persisted.Sender.Username,
		RecipientID:    persisted.RecipientID,
		Content:        persisted.Content,
		AttachmentURL:  persisted.AttachmentURL,
		TempID:         persisted.ClientTempID,
		CreatedAt:      persisted.CreatedAt.UnixMilli(),
	}))
	metrics.Get().RealtimeEventsTotal.WithLabelValues(MessageTypeMessageNew, "out").Inc()

	cm.notifyRecipient(persisted)
}

// NotifyRead tells a conversation peer their messages were read
func (cm *ChatManager) NotifyRead(conversationID, readerID, peerID string) {
	cm.hub.SendToRoom(PersonalRoom(peerID), NewMessage(MessageTypeMessageRead, MessageReadPayload{
		ConversationID: conversationID,
		ReaderID:       readerID,
		Timestamp:      time.Now().UnixMilli(),
	}))
	metrics.Get().RealtimeEventsTotal.WithLabelValues(MessageTypeMessageRead, "out").Inc()
}

func (cm *ChatManager) handleGlobalSend(client *Client, msg *Message) error {
	var payload GlobalMessagePayload
	if err := msg.ParsePayload(&payload); err != nil {
		client.SendError("invalid_payload", "Failed to parse global message payload")
		metrics.Get().RealtimeErrorsTotal.WithLabelValues(MessageTypeGlobalSend, "invalid_payload").Inc()
		return nil
	}
	if payload.Content == "" {
		client.SendFieldError("validation_failed", "content", "content is required")
		metrics.Get().RealtimeErrorsTotal.WithLabelValues(MessageTypeGlobalSend, "validation_failed").Inc()
		return nil
	}

	// Lounge chat is ephemeral, nothing is persisted
	cm.hub.SendToRoom(RoomLounge, NewMessage(MessageTypeGlobalNew, GlobalMessagePayload{
		SenderID:       client.UserID,
		SenderUsername: client.Username,
		Content:        payload.Content,
		Timestamp:      time.Now().UnixMilli(),
	}))
	metrics.Get().RealtimeEventsTotal.WithLabelValues(MessageTypeGlobalNew, "out").Inc()
	return nil
}

func (cm *ChatManager) handleMarkRead(client *Client, msg *Message) error {
	var payload MarkReadPayload
	if err := msg.ParsePayload(&payload); err != nil {
		client.SendError("invalid_payload", "Failed to parse mark_read payload")
		metrics.Get().RealtimeErrorsTotal.WithLabelValues(MessageTypeMarkRead, "invalid_payload").Inc()
		return nil
	}
	if payload.ConversationID == "" {
		client.SendFieldError("validation_failed", "conversation_id", "conversation_id is required")
		metrics.Get().RealtimeErrorsTotal.WithLabelValues(MessageTypeMarkRead, "validation_failed").Inc()
		return nil
	}

	ctx, cancel := context.WithTimeout(client.ctx, chatOpTimeout)
	defer cancel()

	marked, peerID, err := cm.svc.MarkConversationRead(ctx, client.UserID, payload.ConversationID)
	if err != nil {
		cm.sendError(client, MessageTypeMarkRead, err)
		return nil
	}

	// Tell the peer their messages were read
	if marked > 0 {
		cm.hub.SendToRoom(PersonalRoom(peerID), NewMessage(MessageTypeMessageRead, MessageReadPayload{
			ConversationID: payload.ConversationID,
			ReaderID:       client.UserID,
			Timestamp:      time.Now().UnixMilli(),
		}))
		metrics.Get().RealtimeEventsTotal.WithLabelValues(MessageTypeMessageRead, "out").Inc()
	}
	return nil
}

// sendError maps service errors onto socket error events. The connection
// always stays open.
func (cm *ChatManager) sendError(client *Client, eventType string, err error) {
	var code string
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		code = "validation_failed"
		client.SendFieldError(code, "content", "Message needs content or an attachment")
	case errors.Is(err, chat.ErrSelfMessage):
		code = "validation_failed"
		client.SendFieldError(code, "recipient_id", "Cannot message yourself")
	case errors.Is(err, chat.ErrRecipientNotFound):
		code = "not_found"
		client.SendError(code, "Recipient not found")
	case errors.Is(err, chat.ErrBlocked):
		code = "blocked"
		client.SendError(code, "Messaging is blocked between these users")
	case errors.Is(err, chat.ErrNotParticipant):
		code = "forbidden"
		client.SendError(code, "Not a participant of this conversation")
	default:
		code = "internal_error"
		logger.Log.Error("chat handler error",
			zap.String("event", eventType),
			zap.String("user_id", client.UserID),
			zap.Error(err))
		client.SendError(code, "Something went wrong, please retry")
	}
	metrics.Get().RealtimeErrorsTotal.WithLabelValues(eventType, code).Inc()
}
