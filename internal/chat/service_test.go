package chat

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/driftline/backend/internal/cache"
	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/models"
)

// ChatServiceTestSuite contains chat service tests
type ChatServiceTestSuite struct {
	suite.Suite
	db  *gorm.DB
	svc *Service

	alice *models.User
	bob   *models.User
}

// SetupSuite initializes test database and chat service
func (suite *ChatServiceTestSuite) SetupSuite() {
	host := getEnvOrDefault("POSTGRES_HOST", "localhost")
	port := getEnvOrDefault("POSTGRES_PORT", "5432")
	user := getEnvOrDefault("POSTGRES_USER", "postgres")
	password := getEnvOrDefault("POSTGRES_PASSWORD", "")
	dbname := getEnvOrDefault("POSTGRES_DB", "driftline_test")

	testDSN := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable", host, port, user, dbname)
	if password != "" {
		testDSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
	}

	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		suite.T().Skipf("Skipping chat tests: database not available (%v)", err)
		return
	}

	database.DB = db

	err = db.AutoMigrate(
		&models.User{},
		&models.UserBlock{},
		&models.Conversation{},
		&models.Message{},
		&models.MessageReaction{},
		&models.Notification{},
	)
	require.NoError(suite.T(), err)

	suite.db = db
	suite.svc = NewService()
}

// TearDownSuite cleans up after tests
func (suite *ChatServiceTestSuite) TearDownSuite() {
	suite.db.Exec("DROP TABLE IF EXISTS notifications, message_reactions, messages, conversations, user_blocks, users CASCADE")

	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

// SetupTest cleans database and seeds two users before each test
func (suite *ChatServiceTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM notifications")
	suite.db.Exec("DELETE FROM message_reactions")
	suite.db.Exec("DELETE FROM messages")
	suite.db.Exec("DELETE FROM conversations")
	suite.db.Exec("DELETE FROM user_blocks")
	suite.db.Exec("DELETE FROM users")

	suite.alice = &models.User{Email: "alice@driftline.app", Username: "alice", DisplayName: "Alice"}
	suite.bob = &models.User{Email: "bob@driftline.app", Username: "bob", DisplayName: "Bob"}
	require.NoError(suite.T(), suite.db.Create(suite.alice).Error)
	require.NoError(suite.T(), suite.db.Create(suite.bob).Error)
}

func (suite *ChatServiceTestSuite) TestSendMessage() {
	t := suite.T()
	ctx := context.Background()

	result, err := suite.svc.SendMessage(ctx, suite.alice, SendInput{
		RecipientID: suite.bob.ID,
		Content:     "hey bob",
		TempID:      "tmp-1",
	}, "websocket")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Duplicate)

	msg := result.Message
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, suite.alice.ID, msg.SenderID)
	assert.Equal(t, suite.bob.ID, msg.RecipientID)
	assert.Equal(t, "hey bob", msg.Content)
	assert.Equal(t, "tmp-1", msg.ClientTempID)

	// Conversation row created lazily with canonical pair ordering
	var conv models.Conversation
	require.NoError(t, suite.db.First(&conv, "id = ?", msg.ConversationID).Error)
	a, b := models.CanonicalPair(suite.alice.ID, suite.bob.ID)
	assert.Equal(t, a, conv.UserAID)
	assert.Equal(t, b, conv.UserBID)
	assert.Equal(t, 1, conv.UnreadFor(suite.bob.ID))
	assert.Equal(t, 0, conv.UnreadFor(suite.alice.ID))
	require.NotNil(t, conv.LastMessageID)
	assert.Equal(t, msg.ID, *conv.LastMessageID)
}

func (suite *ChatServiceTestSuite) TestSendMessageValidation() {
	t := suite.T()
	ctx := context.Background()

	// Content or attachment is required
	_, err := suite.svc.SendMessage(ctx, suite.alice, SendInput{RecipientID: suite.bob.ID}, "rest")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	// Attachment alone is enough
	result, err := suite.svc.SendMessage(ctx, suite.alice, SendInput{
		RecipientID:   suite.bob.ID,
		AttachmentURL: "https://cdn.driftline.app/attachments/a.png",
	}, "rest")
	require.NoError(t, err)
	assert.Empty(t, result.Message.Content)
	assert.NotEmpty(t, result.Message.AttachmentURL)

	// No self messaging
	_, err = suite.svc.SendMessage(ctx, suite.alice, SendInput{
		RecipientID: suite.alice.ID,
		Content:     "note to self",
	}, "rest")
	assert.ErrorIs(t, err, ErrSelfMessage)

	// Unknown recipient
	_, err = suite.svc.SendMessage(ctx, suite.alice, SendInput{
		RecipientID: "00000000-0000-0000-0000-000000000000",
		Content:     "hello?",
	}, "rest")
	assert.ErrorIs(t, err, ErrRecipientNotFound)
}

func (suite *ChatServiceTestSuite) TestSendMessageBlockedPair() {
	t := suite.T()
	ctx := context.Background()

	// Bob blocked Alice; the check is symmetric, so Alice can't message
	// Bob and Bob can't message Alice
	require.NoError(t, suite.db.Create(&models.UserBlock{
		BlockerID: suite.bob.ID,
		BlockedID: suite.alice.ID,
	}).Error)

	_, err := suite.svc.SendMessage(ctx, suite.alice, SendInput{
		RecipientID: suite.bob.ID,
		Content:     "hello",
	}, "rest")
	assert.ErrorIs(t, err, ErrBlocked)

	_, err = suite.svc.SendMessage(ctx, suite.bob, SendInput{
		RecipientID: suite.alice.ID,
		Content:     "hello",
	}, "rest")
	assert.ErrorIs(t, err, ErrBlocked)
}

func (suite *ChatServiceTestSuite) TestConversationReuse() {
	t := suite.T()
	ctx := context.Background()

	r1, err := suite.svc.SendMessage(ctx, suite.alice, SendInput{RecipientID: suite.bob.ID, Content: "one"}, "rest")
	require.NoError(t, err)
	r2, err := suite.svc.SendMessage(ctx, suite.bob, SendInput{RecipientID: suite.alice.ID, Content: "two"}, "rest")
	require.NoError(t, err)

	// Both directions share the one conversation row
	assert.Equal(t, r1.Message.ConversationID, r2.Message.ConversationID)

	var count int64
	suite.db.Model(&models.Conversation{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var conv models.Conversation
	require.NoError(t, suite.db.First(&conv, "id = ?", r1.Message.ConversationID).Error)
	assert.Equal(t, 1, conv.UnreadFor(suite.alice.ID))
	assert.Equal(t, 1, conv.UnreadFor(suite.bob.ID))
}

func (suite *ChatServiceTestSuite) TestMarkConversationRead() {
	t := suite.T()
	ctx := context.Background()

	r1, err := suite.svc.SendMessage(ctx, suite.alice, SendInput{RecipientID: suite.bob.ID, Content: "one"}, "rest")
	require.NoError(t, err)
	_, err = suite.svc.SendMessage(ctx, suite.alice, SendInput{RecipientID: suite.bob.ID, Content: "two"}, "rest")
	require.NoError(t, err)

	convID := r1.Message.ConversationID

	marked, peerID, err := suite.svc.MarkConversationRead(ctx, suite.bob.ID, convID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
	assert.Equal(t, suite.alice.ID, peerID)

	var conv models.Conversation
	require.NoError(t, suite.db.First(&conv, "id = ?", convID).Error)
	assert.Equal(t, 0, conv.UnreadFor(suite.bob.ID))

	var unread int64
	suite.db.Model(&models.Message{}).Where("conversation_id = ? AND read_at IS NULL", convID).Count(&unread)
	assert.Equal(t, int64(0), unread)

	// Marking again is a no-op
	marked, _, err = suite.svc.MarkConversationRead(ctx, suite.bob.ID, convID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked)

	// Outsiders can't touch the conversation
	outsider := &models.User{Email: "carol@driftline.app", Username: "carol", DisplayName: "Carol"}
	require.NoError(t, suite.db.Create(outsider).Error)
	_, _, err = suite.svc.MarkConversationRead(ctx, outsider.ID, convID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func (suite *ChatServiceTestSuite) TestSendMessageDeduplication() {
	t := suite.T()
	ctx := context.Background()

	if _, err := cache.NewRedisClient(os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD")); err != nil {
		t.Skipf("Skipping dedup test: redis not available (%v)", err)
	}
	defer cache.GetRedisClient().FlushDB(ctx)

	in := SendInput{RecipientID: suite.bob.ID, Content: "hello", TempID: "tmp-retry"}

	first, err := suite.svc.SendMessage(ctx, suite.alice, in, "websocket")
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// A retry inside the window returns the existing message instead of
	// inserting twice
	second, err := suite.svc.SendMessage(ctx, suite.alice, in, "websocket")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Message.ID, second.Message.ID)

	var count int64
	suite.db.Model(&models.Message{}).Count(&count)
	assert.Equal(t, int64(1), count)

	// A different temp ID is a new logical send
	in.TempID = "tmp-other"
	third, err := suite.svc.SendMessage(ctx, suite.alice, in, "websocket")
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
	assert.NotEqual(t, first.Message.ID, third.Message.ID)
}

func (suite *ChatServiceTestSuite) TestCreateMessageNotification() {
	t := suite.T()
	ctx := context.Background()

	result, err := suite.svc.SendMessage(ctx, suite.alice, SendInput{RecipientID: suite.bob.ID, Content: "hello"}, "rest")
	require.NoError(t, err)

	notif, err := suite.svc.CreateMessageNotification(ctx, result.Message)
	require.NoError(t, err)
	assert.Equal(t, suite.bob.ID, notif.RecipientID)
	require.NotNil(t, notif.ActorID)
	assert.Equal(t, suite.alice.ID, *notif.ActorID)
	assert.Equal(t, models.NotificationTypeMessage, notif.Type)
	assert.Equal(t, result.Message.ID, notif.TargetID)
	assert.False(t, notif.IsRead)
}

func TestChatServiceSuite(t *testing.T) {
	if os.Getenv("SKIP_DB_TESTS") == "true" {
		t.Skip("Skipping database tests")
	}
	suite.Run(t, new(ChatServiceTestSuite))
}

func TestSendFingerprint(t *testing.T) {
	a := sendFingerprint("s1", "r1", "hello", "tmp-1")
	b := sendFingerprint("s1", "r1", "hello", "tmp-1")
	assert.Equal(t, a, b)

	// Any component changing produces a different fingerprint
	assert.NotEqual(t, a, sendFingerprint("s2", "r1", "hello", "tmp-1"))
	assert.NotEqual(t, a, sendFingerprint("s1", "r2", "hello", "tmp-1"))
	assert.NotEqual(t, a, sendFingerprint("s1", "r1", "bye", "tmp-1"))
	assert.NotEqual(t, a, sendFingerprint("s1", "r1", "hello", "tmp-2"))
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
