package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	// Try to unmarshal as Unix milliseconds (integer)
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	// Fall back to RFC3339 string format
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON implements custom marshaling (always output as RFC3339)
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
	MessageTypeAuth   = "auth"

	// Direct messaging (client -> server)
	MessageTypeSendMessage = "send_message"
	MessageTypeTyping      = "typing"
	MessageTypeMarkRead    = "mark_read"

	// Direct messaging (server -> client)
	MessageTypeMessageNew  = "message:new"
	MessageTypeMessageSent = "message:sent"
	MessageTypeMessageRead = "message:read"

	// Lounge chat
	MessageTypeGlobalSend = "global_message:send"
	MessageTypeGlobalNew  = "global_message:new"

	// Typing indicators (server -> client)
	MessageTypeUserTyping     = "user_typing"
	MessageTypeUserStopTyping = "user_stop_typing"

	// Presence messages
	MessageTypePresence    = "presence"
	MessageTypeUserOnline  = "user_online"
	MessageTypeUserOffline = "user_offline"

	// Notification messages
	MessageTypeNotification      = "notification"
	MessageTypeNotificationRead  = "notification_read"
	MessageTypeNotificationCount = "notification_count"

	// Social events pushed from the REST layer
	MessageTypeNewFollower = "new_follower"
	MessageTypeUnfollowed  = "unfollowed"
	MessageTypePostLiked   = "post_liked"
	MessageTypeNewComment  = "new_comment"
)

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique message identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewMessageWithID creates a new message with a specific ID
func NewMessageWithID(msgType string, id string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ID:        id,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ReplyTo:   original.ID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessageWithField creates a validation error message naming the field
func NewErrorMessageWithField(code, field, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Field:   field,
			Message: message,
		},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// AuthPayload represents authentication message payload
type AuthPayload struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Status string `json:"status,omitempty"` // "success", "failed", "expired"
	Error  string `json:"error,omitempty"`
}

// SendMessagePayload is a client request to send a direct message
type SendMessagePayload struct {
	RecipientID   string `json:"recipient_id"`
	Content       string `json:"content"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	TempID        string `json:"temp_id,omitempty"`
}

// MessagePayload carries a persisted direct message to clients
type MessagePayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username,omitempty"`
	RecipientID    string `json:"recipient_id"`
	Content        string `json:"content"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	TempID         string `json:"temp_id,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// GlobalMessagePayload carries lounge chat messages
type GlobalMessagePayload struct {
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username,omitempty"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
}

// TypingPayload is a client notification about the user's typing state.
// A missing is_typing means started typing; an explicit false stops the
// indicator immediately instead of waiting for the quiet-period timer.
type TypingPayload struct {
	RecipientID string `json:"recipient_id"`
	IsTyping    *bool  `json:"is_typing,omitempty"`
}

// UserTypingPayload tells a recipient that someone is typing to them
type UserTypingPayload struct {
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// MarkReadPayload marks a conversation read up to now
type MarkReadPayload struct {
	ConversationID string `json:"conversation_id"`
}

// MessageReadPayload notifies the sender their messages were read
type MessageReadPayload struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
	Timestamp      int64  `json:"timestamp"`
}

// PresencePayload represents presence update payload
type PresencePayload struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Status    string `json:"status"` // "online", "offline"
	Timestamp int64  `json:"timestamp"`
}

// NotificationPayload represents a notification
type NotificationPayload struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"notification_type"`
	ActorID   string                 `json:"actor_id,omitempty"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	CreatedAt int64                  `json:"created_at"`
}

// NotificationCountPayload indicates unread notification count changed
type NotificationCountPayload struct {
	UnreadCount int64 `json:"unread_count"`
	Timestamp   int64 `json:"timestamp"`
}

// FollowPayload represents a follow/unfollow event
type FollowPayload struct {
	FollowerID     string `json:"follower_id"`
	FollowerName   string `json:"follower_name"`
	FollowerAvatar string `json:"follower_avatar,omitempty"`
	FolloweeID     string `json:"followee_id"`
	FollowerCount  int    `json:"follower_count,omitempty"`
}

// LikePayload represents a post like event
type LikePayload struct {
	PostID    string `json:"post_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	LikeCount int    `json:"like_count"`
}

// CommentPayload represents a new comment notification
type CommentPayload struct {
	CommentID   string `json:"comment_id"`
	PostID      string `json:"post_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Content     string `json:"content"`
	CreatedAt   int64  `json:"created_at"`
}

// SystemPayload represents system event payloads
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	// If payload is already the right type, return
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
