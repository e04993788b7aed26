package websocket

import (
	"sync"
	"time"

	"github.com/driftline/backend/internal/metrics"
)

// typingStopDelay is how long after the last typing event the
// recipient is told the sender stopped typing.
const typingStopDelay = 5 * time.Second

type typingKey struct {
	SenderID    string
	RecipientID string
}

// TypingManager relays typing indicators between conversation partners.
// A stop is forwarded when the client sends one explicitly, and synthesized
// after a quiet period otherwise, so a re-armed timer never emits a
// spurious stop.
type TypingManager struct {
	hub *Hub

	timers map[typingKey]*time.Timer
	mu     sync.Mutex

	stopDelay time.Duration
}

// NewTypingManager creates a typing manager
func NewTypingManager(hub *Hub) *TypingManager {
	return &TypingManager{
		hub:       hub,
		timers:    make(map[typingKey]*time.Timer),
		stopDelay: typingStopDelay,
	}
}

// Start registers the typing message handler with the hub
func (tm *TypingManager) Start() {
	tm.hub.RegisterHandler(MessageTypeTyping, tm.handleTyping)
}

func (tm *TypingManager) handleTyping(client *Client, msg *Message) error {
	var payload TypingPayload
	if err := msg.ParsePayload(&payload); err != nil {
		client.SendFieldError("invalid_payload", "recipient_id", "Failed to parse typing payload")
		return nil
	}
	if payload.RecipientID == "" {
		client.SendFieldError("validation_failed", "recipient_id", "recipient_id is required")
		return nil
	}
	if payload.RecipientID == client.UserID {
		client.SendFieldError("validation_failed", "recipient_id", "Cannot send typing indicator to yourself")
		return nil
	}

	key := typingKey{SenderID: client.UserID, RecipientID: payload.RecipientID}

	// Explicit stop: tear down the timer and tell the recipient now
	if payload.IsTyping != nil && !*payload.IsTyping {
		tm.mu.Lock()
		timer, active := tm.timers[key]
		if active {
			timer.Stop()
			delete(tm.timers, key)
		}
		tm.mu.Unlock()
		if active {
			tm.sendStop(key)
		}
		return nil
	}

	tm.mu.Lock()
	timer, active := tm.timers[key]
	if active {
		// Still typing, push the synthetic stop out again
		timer.Reset(tm.stopDelay)
	} else {
		tm.timers[key] = time.AfterFunc(tm.stopDelay, func() {
			tm.expire(key)
		})
	}
	tm.mu.Unlock()

	tm.hub.SendToRoom(PersonalRoom(payload.RecipientID), NewMessage(MessageTypeUserTyping, UserTypingPayload{
		SenderID:       client.UserID,
		SenderUsername: client.Username,
		Timestamp:      time.Now().UnixMilli(),
	}))
	if !active {
		metrics.App().TypingEventsTotal.WithLabelValues("start").Inc()
	}

	return nil
}

// expire fires when the sender has gone quiet
func (tm *TypingManager) expire(key typingKey) {
	tm.mu.Lock()
	if _, ok := tm.timers[key]; !ok {
		tm.mu.Unlock()
		return
	}
	delete(tm.timers, key)
	tm.mu.Unlock()

	tm.sendStop(key)
}

// Cancel clears an active typing indicator without emitting a stop
// event, used when the pending message itself arrives.
func (tm *TypingManager) Cancel(senderID, recipientID string) {
	key := typingKey{SenderID: senderID, RecipientID: recipientID}

	tm.mu.Lock()
	timer, ok := tm.timers[key]
	if ok {
		timer.Stop()
		delete(tm.timers, key)
	}
	tm.mu.Unlock()
}

// ClearForUser stops all typing indicators a user had active, emitting
// stop events so recipients aren't left with a stuck indicator. Called
// on disconnect.
func (tm *TypingManager) ClearForUser(userID string) {
	tm.mu.Lock()
	var stopped []typingKey
	for key, timer := range tm.timers {
		if key.SenderID == userID {
			timer.Stop()
			delete(tm.timers, key)
			stopped = append(stopped, key)
		}
	}
	tm.mu.Unlock()

	for _, key := range stopped {
		tm.sendStop(key)
	}
}

func (tm *TypingManager) sendStop(key typingKey) {
	tm.hub.SendToRoom(PersonalRoom(key.RecipientID), NewMessage(MessageTypeUserStopTyping, UserTypingPayload{
		SenderID:  key.SenderID,
		Timestamp: time.Now().UnixMilli(),
	}))
	metrics.App().TypingEventsTotal.WithLabelValues("stop").Inc()
}

// ActiveCount returns the number of in-flight typing indicators
func (tm *TypingManager) ActiveCount() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.timers)
}
