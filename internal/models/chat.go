package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is derived metadata for a participant pair, created lazily on
// the first message. Participants are stored in canonical order (UserA < UserB
// lexicographically) so one row exists per pair.
type Conversation struct {
	ID      string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserAID string `gorm:"not null;index" json:"user_a_id"`
	UserA   User   `gorm:"foreignKey:UserAID" json:"user_a,omitempty"`
	UserBID string `gorm:"not null;index" json:"user_b_id"`
	UserB   User   `gorm:"foreignKey:UserBID" json:"user_b,omitempty"`

	// Per-participant state, keyed by user ID
	ArchivedBy StringArray `gorm:"type:text[]" json:"archived_by"`
	MutedBy    StringArray `gorm:"type:text[]" json:"muted_by"`

	// Unread counters per participant
	UnreadA int `gorm:"default:0" json:"unread_a"`
	UnreadB int `gorm:"default:0" json:"unread_b"`

	LastMessageID *string    `gorm:"type:uuid" json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanonicalPair orders two user IDs for conversation lookup
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// UnreadFor returns the unread counter for the given participant
func (c *Conversation) UnreadFor(userID string) int {
	if userID == c.UserAID {
		return c.UnreadA
	}
	return c.UnreadB
}

// OtherParticipant returns the peer of the given participant
func (c *Conversation) OtherParticipant(userID string) string {
	if userID == c.UserAID {
		return c.UserBID
	}
	return c.UserAID
}

// Message is a direct message between two users. Per-user soft delete keeps
// the row and records the deleting user in DeletedFor.
type Message struct {
	ID             string       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ConversationID string       `gorm:"not null;index" json:"conversation_id"`
	Conversation   Conversation `gorm:"foreignKey:ConversationID" json:"-"`
	SenderID       string       `gorm:"not null;index" json:"sender_id"`
	Sender         User         `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	RecipientID    string       `gorm:"not null;index" json:"recipient_id"`
	Recipient      User         `gorm:"foreignKey:RecipientID" json:"-"`

	Content       string `gorm:"type:text" json:"content"`
	AttachmentURL string `json:"attachment_url,omitempty"`

	// Client-supplied temporary ID echoed back in the send confirmation so
	// optimistic UI entries can be reconciled.
	ClientTempID string `json:"client_temp_id,omitempty"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	DeletedFor StringArray `gorm:"type:text[]" json:"-"`

	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// MessageReaction records an emoji reaction; at most one per user per message
type MessageReaction struct {
	ID        string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	MessageID string  `gorm:"not null;index" json:"message_id"`
	Message   Message `gorm:"foreignKey:MessageID" json:"-"`
	UserID    string  `gorm:"not null;index" json:"user_id"`
	User      User    `gorm:"foreignKey:UserID" json:"-"`

	Emoji string `gorm:"not null" json:"emoji"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MessageReaction) TableName() string {
	return "message_reactions"
}

// NotificationType classifies notifications for client rendering
type NotificationType string

const (
	NotificationTypeMessage NotificationType = "message"
	NotificationTypeFollow  NotificationType = "follow"
	NotificationTypeComment NotificationType = "comment"
	NotificationTypeLike    NotificationType = "like"
	NotificationTypeSystem  NotificationType = "system"
)

// Notification is created as a side effect of messages, follows, comments and
// likes. Only its read flag is ever updated.
type Notification struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	RecipientID string `gorm:"not null;index" json:"recipient_id"`
	Recipient   User   `gorm:"foreignKey:RecipientID" json:"-"`
	ActorID     *string `gorm:"index" json:"actor_id,omitempty"`
	Actor       *User   `gorm:"foreignKey:ActorID" json:"actor,omitempty"`

	Type    NotificationType `gorm:"not null" json:"type"`
	Message string           `gorm:"type:text" json:"message"`

	// Optional reference to the triggering entity (message, post, comment)
	TargetID string `json:"target_id,omitempty"`

	IsRead bool `gorm:"default:false" json:"is_read"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}

func (r *MessageReaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = generateUUID()
	}
	return nil
}
