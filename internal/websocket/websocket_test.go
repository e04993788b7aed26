package websocket

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/driftline/backend/internal/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

// newTestClient builds a client without a live socket connection. Only
// the hub-facing fields matter for these tests.
func newTestClient(hub *Hub, userID, username string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:         hub,
		UserID:      userID,
		Username:    username,
		ConnID:      uuid.New().String(),
		rooms:       make(map[string]struct{}),
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		rateLimiter: NewRateLimiter(100, 100),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.allClients)
	assert.NotNil(t, hub.rooms)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.unicast)
	assert.NotNil(t, hub.roomcast)
	assert.NotNil(t, hub.metrics)
	assert.NotNil(t, hub.handlers)
}

func TestRateLimiter(t *testing.T) {
	// Create a rate limiter allowing 5 per second with burst of 10
	rl := NewRateLimiter(5, 10)

	// Should allow first 10 requests (burst)
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(), "Request %d should be allowed", i+1)
	}

	// Next request should be denied (no tokens left)
	assert.False(t, rl.Allow(), "Request 11 should be denied")

	// After waiting, should be allowed again
	time.Sleep(300 * time.Millisecond)
	assert.True(t, rl.Allow(), "Request after wait should be allowed")
}

func TestPersonalRoom(t *testing.T) {
	assert.Equal(t, "user_abc", PersonalRoom("abc"))
}

func TestHubRoomMembership(t *testing.T) {
	hub := NewHub()

	alice := newTestClient(hub, "alice", "alice")
	bob := newTestClient(hub, "bob", "bob")

	hub.registerClient(alice)
	hub.registerClient(bob)

	// Every connection joins its personal room and the lounge
	assert.Equal(t, 2, hub.RoomMemberCount(RoomLounge))
	assert.Equal(t, 1, hub.RoomMemberCount(PersonalRoom("alice")))
	assert.Equal(t, 1, hub.RoomMemberCount(PersonalRoom("bob")))

	// A second tab for the same user joins the same personal room
	alice2 := newTestClient(hub, "alice", "alice")
	hub.registerClient(alice2)
	assert.Equal(t, 3, hub.RoomMemberCount(RoomLounge))
	assert.Equal(t, 2, hub.RoomMemberCount(PersonalRoom("alice")))

	hub.unregisterClient(alice)
	assert.Equal(t, 2, hub.RoomMemberCount(RoomLounge))
	assert.Equal(t, 1, hub.RoomMemberCount(PersonalRoom("alice")))

	// Empty rooms are removed entirely
	hub.unregisterClient(bob)
	assert.Equal(t, 0, hub.RoomMemberCount(PersonalRoom("bob")))
	hub.mu.RLock()
	_, exists := hub.rooms[PersonalRoom("bob")]
	hub.mu.RUnlock()
	assert.False(t, exists)
}

func TestSendToRoomDelivery(t *testing.T) {
	hub := NewHub()

	alice := newTestClient(hub, "alice", "alice")
	bob := newTestClient(hub, "bob", "bob")
	hub.registerClient(alice)
	hub.registerClient(bob)

	hub.sendToRoom(&RoomMessage{
		Room:    RoomLounge,
		Message: NewMessage(MessageTypeGlobalNew, GlobalMessagePayload{Content: "hi"}),
	})

	assert.Len(t, alice.send, 1)
	assert.Len(t, bob.send, 1)

	// Personal room delivery only reaches its owner
	hub.sendToRoom(&RoomMessage{
		Room:    PersonalRoom("bob"),
		Message: NewMessage(MessageTypeMessageNew, MessagePayload{MessageID: "m1"}),
	})
	assert.Len(t, alice.send, 1)
	assert.Len(t, bob.send, 2)
}

func TestSendToRoomExcludesOriginator(t *testing.T) {
	hub := NewHub()

	alice := newTestClient(hub, "alice", "alice")
	bob := newTestClient(hub, "bob", "bob")
	hub.registerClient(alice)
	hub.registerClient(bob)

	hub.sendToRoom(&RoomMessage{
		Room:          RoomLounge,
		Message:       NewMessage(MessageTypeUserOnline, PresencePayload{UserID: "alice", Status: "online"}),
		ExcludeUserID: "alice",
	})

	assert.Len(t, alice.send, 0)
	assert.Len(t, bob.send, 1)
}

func TestNewMessage(t *testing.T) {
	payload := map[string]string{"test": "data"}
	msg := MessageTypeMessageNew
	m := NewMessage(msg, payload)

	assert.Equal(t, msg, m.Type)
	assert.NotNil(t, m.Payload)
	assert.False(t, m.Timestamp.IsZero())
}

func TestNewMessageWithID(t *testing.T) {
	msg := NewMessageWithID(MessageTypePing, "msg-123", nil)

	assert.Equal(t, MessageTypePing, msg.Type)
	assert.Equal(t, "msg-123", msg.ID)
}

func TestNewReply(t *testing.T) {
	original := NewMessageWithID(MessageTypePing, "original-id", nil)
	reply := NewReply(original, MessageTypePong, nil)

	assert.Equal(t, MessageTypePong, reply.Type)
	assert.Equal(t, "original-id", reply.ReplyTo)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("test_error", "Something went wrong")

	assert.Equal(t, MessageTypeError, msg.Type)

	payload, ok := msg.Payload.(ErrorPayload)
	assert.True(t, ok)
	assert.Equal(t, "test_error", payload.Code)
	assert.Equal(t, "Something went wrong", payload.Message)
	assert.Empty(t, payload.Field)
}

func TestNewErrorMessageWithField(t *testing.T) {
	msg := NewErrorMessageWithField("validation_failed", "content", "content is required")

	payload, ok := msg.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "validation_failed", payload.Code)
	assert.Equal(t, "content", payload.Field)
	assert.Equal(t, "content is required", payload.Message)
}

func TestMessageParsePayload(t *testing.T) {
	// Create message with map payload
	msg := NewMessage(MessageTypePing, map[string]interface{}{
		"client_time": float64(1234567890),
	})

	var ping PingPayload
	err := msg.ParsePayload(&ping)
	assert.NoError(t, err)
	assert.Equal(t, int64(1234567890), ping.ClientTime)
}

func TestFlexibleTimeUnmarshal(t *testing.T) {
	// Unix milliseconds
	var ft FlexibleTime
	err := json.Unmarshal([]byte("1700000000000"), &ft)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), ft.UnixMilli())

	// RFC3339
	err = json.Unmarshal([]byte(`"2024-01-02T03:04:05Z"`), &ft)
	require.NoError(t, err)
	assert.Equal(t, 2024, ft.Year())

	// Garbage
	err = json.Unmarshal([]byte(`{"bad":true}`), &ft)
	assert.Error(t, err)
}

func TestMessageJSONSerialization(t *testing.T) {
	msg := NewMessage(MessageTypeMessageNew, MessagePayload{
		MessageID:      "msg-123",
		ConversationID: "conv-456",
		SenderID:       "user-1",
		RecipientID:    "user-2",
		Content:        "hello",
		TempID:         "tmp-1",
	})
	msg.ID = "msg-id"

	// Serialize to JSON
	data, err := json.Marshal(msg)
	assert.NoError(t, err)

	// Deserialize back
	var parsed Message
	err = json.Unmarshal(data, &parsed)
	assert.NoError(t, err)

	assert.Equal(t, MessageTypeMessageNew, parsed.Type)
	assert.Equal(t, "msg-id", parsed.ID)
	assert.NotNil(t, parsed.Payload)
}

func TestHubMetrics(t *testing.T) {
	hub := NewHub()

	metrics := hub.GetMetrics()
	assert.Equal(t, int64(0), metrics.TotalConnections)
	assert.Equal(t, int64(0), metrics.ActiveConnections)
	assert.Equal(t, int64(0), metrics.MessagesReceived)
	assert.Equal(t, int64(0), metrics.MessagesSent)

	// Test metrics string representation
	str := metrics.String()
	assert.Contains(t, str, "connections=0/0")
}

func TestDefaultRateLimitConfig(t *testing.T) {
	config := DefaultRateLimitConfig()

	assert.Equal(t, 10, config.MaxMessagesPerSecond)
	assert.Equal(t, 20, config.BurstSize)
	assert.Equal(t, time.Second, config.Window)
}

func TestHubRegisterHandler(t *testing.T) {
	hub := NewHub()

	// Register a handler
	hub.RegisterHandler("test_type", func(client *Client, msg *Message) error {
		return nil
	})

	// Check handler exists
	handler, ok := hub.GetHandler("test_type")
	assert.True(t, ok)
	assert.NotNil(t, handler)

	// Check non-existent handler
	_, ok = hub.GetHandler("nonexistent")
	assert.False(t, ok)
}

func TestHubIsUserOnline(t *testing.T) {
	hub := NewHub()

	// User should not be online initially
	assert.False(t, hub.IsUserOnline("user-123"))

	// User connection count should be 0
	assert.Equal(t, 0, hub.GetUserConnectionCount("user-123"))

	client := newTestClient(hub, "user-123", "someone")
	hub.registerClient(client)
	assert.True(t, hub.IsUserOnline("user-123"))
	assert.Equal(t, 1, hub.GetUserConnectionCount("user-123"))
}

func TestHubGetOnlineUsers(t *testing.T) {
	hub := NewHub()

	// No users online initially
	users := hub.GetOnlineUsers()
	assert.Empty(t, users)
}

func TestPresenceLastWriterWins(t *testing.T) {
	hub := NewHub()
	pm := NewPresenceManager(hub, DefaultPresenceConfig())

	first := newTestClient(hub, "user-1", "user1")
	pm.OnClientConnect(first)

	p := pm.GetPresence("user-1")
	require.NotNil(t, p)
	assert.Equal(t, StatusOnline, p.Status)

	// A second tab takes over the presence record
	second := newTestClient(hub, "user-1", "user1")
	pm.OnClientConnect(second)

	// The stale disconnect from the first tab must not evict the
	// newer connection
	pm.OnClientDisconnect(first)
	p = pm.GetPresence("user-1")
	require.NotNil(t, p)
	assert.Equal(t, StatusOnline, p.Status)

	// The current connection going away takes the user offline
	pm.OnClientDisconnect(second)
	p = pm.GetPresence("user-1")
	require.NotNil(t, p)
	assert.Equal(t, StatusOffline, p.Status)
}

func TestPresenceReconnectAfterOffline(t *testing.T) {
	hub := NewHub()
	pm := NewPresenceManager(hub, DefaultPresenceConfig())

	first := newTestClient(hub, "user-1", "user1")
	pm.OnClientConnect(first)
	pm.OnClientDisconnect(first)
	require.Equal(t, StatusOffline, pm.GetPresence("user-1").Status)

	// Reconnecting reuses the record and comes back online
	second := newTestClient(hub, "user-1", "user1")
	pm.OnClientConnect(second)
	assert.Equal(t, StatusOnline, pm.GetPresence("user-1").Status)

	// The long-gone first connection's disconnect is a no-op now
	pm.OnClientDisconnect(first)
	assert.Equal(t, StatusOnline, pm.GetPresence("user-1").Status)
}

func TestPresenceOnlineCounts(t *testing.T) {
	hub := NewHub()
	pm := NewPresenceManager(hub, DefaultPresenceConfig())

	a := newTestClient(hub, "a", "a")
	b := newTestClient(hub, "b", "b")
	pm.OnClientConnect(a)
	pm.OnClientConnect(b)

	assert.Equal(t, 2, pm.GetOnlineCount([]string{"a", "b", "c"}))
	assert.Len(t, pm.GetAllOnline(), 2)

	online := pm.GetOnlinePresence([]string{"a", "c"})
	assert.Contains(t, online, "a")
	assert.NotContains(t, online, "c")

	pm.OnClientDisconnect(a)
	assert.Equal(t, 1, pm.GetOnlineCount([]string{"a", "b"}))
}

func TestTypingTimerSynthesizesStop(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown(context.Background())

	tm := NewTypingManager(hub)
	tm.stopDelay = 50 * time.Millisecond
	tm.Start()

	sender := newTestClient(hub, "sender", "sender")
	recipient := newTestClient(hub, "recipient", "recipient")
	hub.Register(recipient)
	time.Sleep(20 * time.Millisecond)

	err := tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "recipient"}))
	require.NoError(t, err)
	assert.Equal(t, 1, tm.ActiveCount())

	// user_typing followed by the synthetic user_stop_typing
	expectMessageType(t, recipient.send, MessageTypeUserTyping)
	expectMessageType(t, recipient.send, MessageTypeUserStopTyping)
	assert.Equal(t, 0, tm.ActiveCount())
}

func TestTypingTimerReArmsWithoutSpuriousStop(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown(context.Background())

	tm := NewTypingManager(hub)
	tm.stopDelay = 80 * time.Millisecond
	tm.Start()

	sender := newTestClient(hub, "sender", "sender")
	recipient := newTestClient(hub, "recipient", "recipient")
	hub.Register(recipient)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "recipient"})))
	time.Sleep(40 * time.Millisecond)
	// Still typing before the delay elapses: the timer re-arms and no
	// stop is emitted in between
	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "recipient"})))

	expectMessageType(t, recipient.send, MessageTypeUserTyping)
	expectMessageType(t, recipient.send, MessageTypeUserTyping)
	expectMessageType(t, recipient.send, MessageTypeUserStopTyping)
	select {
	case data := <-recipient.send:
		t.Fatalf("unexpected extra message: %s", data)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTypingExplicitStop(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown(context.Background())

	tm := NewTypingManager(hub)
	tm.stopDelay = time.Minute
	tm.Start()

	sender := newTestClient(hub, "sender", "sender")
	recipient := newTestClient(hub, "recipient", "recipient")
	hub.Register(recipient)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "recipient"})))
	expectMessageType(t, recipient.send, MessageTypeUserTyping)
	assert.Equal(t, 1, tm.ActiveCount())

	// An explicit is_typing=false forwards the stop without waiting out
	// the quiet period
	stopped := false
	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "recipient", IsTyping: &stopped})))
	expectMessageType(t, recipient.send, MessageTypeUserStopTyping)
	assert.Equal(t, 0, tm.ActiveCount())

	// A stop without an active indicator is a no-op
	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "recipient", IsTyping: &stopped})))
	select {
	case data := <-recipient.send:
		t.Fatalf("unexpected message after idle stop: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypingCancelSkipsStop(t *testing.T) {
	hub := NewHub()
	tm := NewTypingManager(hub)
	tm.stopDelay = time.Minute

	sender := newTestClient(hub, "sender", "sender")
	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "recipient"})))
	assert.Equal(t, 1, tm.ActiveCount())

	// The message arriving clears the indicator without a stop event
	tm.Cancel("sender", "recipient")
	assert.Equal(t, 0, tm.ActiveCount())
}

func TestTypingClearForUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown(context.Background())

	tm := NewTypingManager(hub)
	tm.stopDelay = time.Minute

	sender := newTestClient(hub, "sender", "sender")
	recipient := newTestClient(hub, "recipient", "recipient")
	hub.Register(recipient)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "recipient"})))
	expectMessageType(t, recipient.send, MessageTypeUserTyping)

	// Disconnect clears the timer and tells recipients typing stopped
	tm.ClearForUser("sender")
	assert.Equal(t, 0, tm.ActiveCount())
	expectMessageType(t, recipient.send, MessageTypeUserStopTyping)
}

func TestTypingValidation(t *testing.T) {
	hub := NewHub()
	tm := NewTypingManager(hub)

	sender := newTestClient(hub, "sender", "sender")

	// Missing recipient produces an error event, not a dropped connection
	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{})))
	expectErrorWithField(t, sender.send, "recipient_id")

	// Typing to yourself is rejected
	require.NoError(t, tm.handleTyping(sender, NewMessage(MessageTypeTyping, TypingPayload{RecipientID: "sender"})))
	expectErrorWithField(t, sender.send, "recipient_id")

	assert.Equal(t, 0, tm.ActiveCount())
}

func TestMessageTypes(t *testing.T) {
	// Ensure all message types are defined and unique
	types := []string{
		MessageTypeSystem,
		MessageTypePing,
		MessageTypePong,
		MessageTypeError,
		MessageTypeAuth,
		MessageTypeSendMessage,
		MessageTypeTyping,
		MessageTypeMarkRead,
		MessageTypeMessageNew,
		MessageTypeMessageSent,
		MessageTypeMessageRead,
		MessageTypeGlobalSend,
		MessageTypeGlobalNew,
		MessageTypeUserTyping,
		MessageTypeUserStopTyping,
		MessageTypePresence,
		MessageTypeUserOnline,
		MessageTypeUserOffline,
		MessageTypeNotification,
		MessageTypeNotificationRead,
		MessageTypeNotificationCount,
		MessageTypeNewFollower,
		MessageTypeUnfollowed,
		MessageTypePostLiked,
		MessageTypeNewComment,
	}

	// Check all are non-empty
	for _, typ := range types {
		assert.NotEmpty(t, typ)
	}

	// Check all are unique
	seen := make(map[string]bool)
	for _, typ := range types {
		assert.False(t, seen[typ], "Duplicate message type: %s", typ)
		seen[typ] = true
	}
}

// expectMessageType reads the next message off a client's send channel
// and asserts its type.
func expectMessageType(t *testing.T, ch chan []byte, msgType string) {
	t.Helper()
	select {
	case data := <-ch:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, msgType, msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", msgType)
	}
}

// expectErrorWithField reads the next message and asserts it is an error
// event naming the given field.
func expectErrorWithField(t *testing.T, ch chan []byte, field string) {
	t.Helper()
	select {
	case data := <-ch:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		require.Equal(t, MessageTypeError, msg.Type)
		var payload ErrorPayload
		require.NoError(t, msg.ParsePayload(&payload))
		assert.Equal(t, field, payload.Field)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for error event")
	}
}
