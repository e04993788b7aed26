// Package chat implements direct-message persistence shared by the
// realtime gateway and the REST message endpoints: validation, blocked-pair
// checks, conversation upkeep and the send-deduplication window.
package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/driftline/backend/internal/cache"
	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/metrics"
	"github.com/driftline/backend/internal/models"
	"github.com/driftline/backend/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrEmptyMessage      = errors.New("message needs content or an attachment")
	ErrSelfMessage       = errors.New("cannot message yourself")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrBlocked           = errors.New("messaging is blocked between these users")
	ErrNotParticipant    = errors.New("not a participant of this conversation")
)

const (
	// dedupWindow is how long a send fingerprint suppresses repeats.
	// Best-effort only: a retry after the window inserts a second row.
	dedupWindow = 60 * time.Second

	// dedupPending marks a fingerprint whose message row is still being
	// written. Losers poll briefly until the winner stores the real ID.
	dedupPending = "pending"

	maxContentLength = 5000
)

// SendInput is one send request, from either transport
type SendInput struct {
	RecipientID   string
	Content       string
	AttachmentURL string
	TempID        string
}

// SendResult is the outcome of a send
type SendResult struct {
	Message   *models.Message
	Duplicate bool
}

// Service handles direct-message operations
type Service struct{}

// NewService creates a chat service
func NewService() *Service {
	return &Service{}
}

// SendMessage validates, deduplicates and persists a direct message.
// Transport is "websocket" or "rest", used only for metrics.
func (s *Service) SendMessage(ctx context.Context, sender *models.User, in SendInput, transport string) (*SendResult, error) {
	if in.Content == "" && in.AttachmentURL == "" {
		metrics.App().ValidationFailures.WithLabelValues("content", "empty").Inc()
		return nil, ErrEmptyMessage
	}
	if len(in.Content) > maxContentLength {
		metrics.App().ValidationFailures.WithLabelValues("content", "too_long").Inc()
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrEmptyMessage, maxContentLength)
	}
	if in.RecipientID == sender.ID {
		return nil, ErrSelfMessage
	}

	var recipient models.User
	if err := database.DB.WithContext(ctx).First(&recipient, "id = ?", in.RecipientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	blocked, err := s.IsBlockedPair(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlocked
	}

	// Claim the fingerprint before touching the database. Whoever wins
	// the SETNX persists; everyone else gets the winner's message ID.
	fingerprint := sendFingerprint(sender.ID, in.RecipientID, in.Content, in.TempID)
	claimed, dedupAvailable := s.claimFingerprint(ctx, fingerprint)
	if dedupAvailable && !claimed {
		if existing := s.resolveExisting(ctx, fingerprint); existing != nil {
			metrics.App().MessagesDedupedTotal.WithLabelValues().Inc()
			logger.Log.Info("duplicate send suppressed",
				zap.String("sender_id", sender.ID),
				zap.String("message_id", existing.ID))
			return &SendResult{Message: existing, Duplicate: true}, nil
		}
		// Winner never stored an ID (crashed or errored); fall through
		// and persist normally.
	}

	msg, err := s.persistMessage(ctx, sender, &recipient, in)
	if err != nil {
		s.releaseFingerprint(ctx, fingerprint)
		return nil, err
	}

	_, span := telemetry.GetBusinessEvents().TraceSendMessage(ctx, telemetry.MessageEventAttrs{
		ConversationID: msg.ConversationID,
		Transport:      transport,
		HasAttachment:  msg.AttachmentURL != "",
	})
	telemetry.SetUserContext(span, sender.ID)
	span.End()

	s.storeFingerprint(ctx, fingerprint, msg.ID)
	metrics.App().MessagesSentTotal.WithLabelValues(transport).Inc()

	return &SendResult{Message: msg}, nil
}

// persistMessage writes the message row and updates conversation metadata
// in one transaction.
func (s *Service) persistMessage(ctx context.Context, sender, recipient *models.User, in SendInput) (*models.Message, error) {
	var msg *models.Message

	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := s.getOrCreateConversation(tx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		msg = &models.Message{
			ConversationID: conv.ID,
			SenderID:       sender.ID,
			RecipientID:    recipient.ID,
			Content:        in.Content,
			AttachmentURL:  in.AttachmentURL,
			ClientTempID:   in.TempID,
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to persist message: %w", err)
		}

		updates := map[string]interface{}{
			"last_message_id": msg.ID,
			"last_message_at": now,
		}
		if recipient.ID == conv.UserAID {
			updates["unread_a"] = gorm.Expr("unread_a + 1")
		} else {
			updates["unread_b"] = gorm.Expr("unread_b + 1")
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}

		msg.Sender = *sender
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// getOrCreateConversation finds or lazily creates the conversation row
// for a participant pair.
func (s *Service) getOrCreateConversation(tx *gorm.DB, userA, userB string) (*models.Conversation, error) {
	a, b := models.CanonicalPair(userA, userB)

	var conv models.Conversation
	err := tx.Where("user_a_id = ? AND user_b_id = ?", a, b).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	conv = models.Conversation{UserAID: a, UserBID: b}
	if err := tx.Create(&conv).Error; err != nil {
		// Lost a create race; the other sender's row is now there
		if lookupErr := tx.Where("user_a_id = ? AND user_b_id = ?", a, b).First(&conv).Error; lookupErr == nil {
			return &conv, nil
		}
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

// IsBlockedPair reports whether either user has blocked the other
func (s *Service) IsBlockedPair(ctx context.Context, userA, userB string) (bool, error) {
	var count int64
	err := database.DB.WithContext(ctx).Model(&models.UserBlock{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			userA, userB, userB, userA).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check blocks: %w", err)
	}
	return count > 0, nil
}

// CreateMessageNotification writes the notification row for a new message.
// Callers treat failure as non-fatal.
func (s *Service) CreateMessageNotification(ctx context.Context, msg *models.Message) (*models.Notification, error) {
	notif := &models.Notification{
		RecipientID: msg.RecipientID,
		ActorID:     &msg.SenderID,
		Type:        models.NotificationTypeMessage,
		Message:     fmt.Sprintf("%s sent you a message", msg.Sender.Username),
		TargetID:    msg.ID,
	}
	if err := database.DB.WithContext(ctx).Create(notif).Error; err != nil {
		metrics.App().NotificationsTotal.WithLabelValues(string(models.NotificationTypeMessage), "failed").Inc()
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	metrics.App().NotificationsTotal.WithLabelValues(string(models.NotificationTypeMessage), "created").Inc()
	return notif, nil
}

// MarkConversationRead zeroes the reader's unread counter and stamps
// read_at on the peer's unread messages. Returns how many messages were
// marked and the peer's user ID so callers can notify them.
func (s *Service) MarkConversationRead(ctx context.Context, userID, conversationID string) (int64, string, error) {
	var conv models.Conversation
	if err := database.DB.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", ErrNotParticipant
		}
		return 0, "", fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv.UserAID != userID && conv.UserBID != userID {
		return 0, "", ErrNotParticipant
	}

	var marked int64
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND recipient_id = ? AND read_at IS NULL", conversationID, userID).
			Update("read_at", time.Now().UTC())
		if res.Error != nil {
			return fmt.Errorf("failed to mark messages read: %w", res.Error)
		}
		marked = res.RowsAffected

		col := "unread_b"
		if userID == conv.UserAID {
			col = "unread_a"
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).
			Update(col, 0).Error; err != nil {
			return fmt.Errorf("failed to reset unread counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return marked, conv.OtherParticipant(userID), nil
}

// sendFingerprint derives the dedup key for one logical send
func sendFingerprint(senderID, recipientID, content, tempID string) string {
	h := sha256.Sum256([]byte(senderID + "\x00" + recipientID + "\x00" + content + "\x00" + tempID))
	return "dm:dedup:" + hex.EncodeToString(h[:])
}

// claimFingerprint attempts a SETNX on the fingerprint. The second return
// is false when Redis is unavailable, in which case dedup is skipped.
func (s *Service) claimFingerprint(ctx context.Context, key string) (claimed bool, available bool) {
	rc := cache.GetRedisClient()
	if rc == nil {
		return false, false
	}
	ok, err := rc.SetNX(ctx, key, dedupPending, dedupWindow)
	if err != nil {
		logger.Log.Warn("dedup claim failed, proceeding without dedup", zap.Error(err))
		return false, false
	}
	return ok, true
}

// resolveExisting returns the message a concurrent or earlier send stored
// under the fingerprint, waiting briefly if that send is still in flight.
func (s *Service) resolveExisting(ctx context.Context, key string) *models.Message {
	rc := cache.GetRedisClient()
	if rc == nil {
		return nil
	}

	var messageID string
	for attempt := 0; attempt < 10; attempt++ {
		val, err := rc.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			// Winner released the key after a failed persist
			return nil
		}
		if err != nil {
			return nil
		}
		if val != dedupPending {
			messageID = val
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(50 * time.Millisecond):
		}
	}
	if messageID == "" {
		return nil
	}

	var msg models.Message
	if err := database.DB.WithContext(ctx).Preload("Sender").First(&msg, "id = ?", messageID).Error; err != nil {
		return nil
	}
	return &msg
}

// storeFingerprint records the persisted message ID under the fingerprint
func (s *Service) storeFingerprint(ctx context.Context, key, messageID string) {
	rc := cache.GetRedisClient()
	if rc == nil {
		return
	}
	if err := rc.SetEx(ctx, key, messageID, dedupWindow); err != nil {
		logger.Log.Warn("failed to store dedup fingerprint", zap.Error(err))
	}
}

// releaseFingerprint frees a claimed fingerprint after a failed persist
func (s *Service) releaseFingerprint(ctx context.Context, key string) {
	rc := cache.GetRedisClient()
	if rc == nil {
		return
	}
	if err := rc.Del(ctx, key); err != nil {
		logger.Log.Warn("failed to release dedup fingerprint", zap.Error(err))
	}
}
