package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/driftline/backend/internal/auth"
	"github.com/driftline/backend/internal/chat"
	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/models"
)

// HandlersTestSuite exercises the REST handlers end to end against a test
// database, with the auth service mocked so tokens map straight to users.
type HandlersTestSuite struct {
	suite.Suite
	db     *gorm.DB
	mock   *auth.MockAuthService
	router *gin.Engine

	alice *models.User
	bob   *models.User
}

func (suite *HandlersTestSuite) SetupSuite() {
	host := envOrDefault("POSTGRES_HOST", "localhost")
	port := envOrDefault("POSTGRES_PORT", "5432")
	user := envOrDefault("POSTGRES_USER", "postgres")
	password := envOrDefault("POSTGRES_PASSWORD", "")
	dbname := envOrDefault("POSTGRES_DB", "driftline_test")

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable", host, port, user, dbname)
	if password != "" {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		suite.T().Skipf("Skipping handler tests: database not available (%v)", err)
		return
	}

	database.DB = db

	err = db.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.UserBlock{},
		&models.MutedUser{},
		&models.Post{},
		&models.PostLike{},
		&models.Comment{},
		&models.Notification{},
		&models.Conversation{},
		&models.Message{},
		&models.MessageReaction{},
		&models.Report{},
	)
	require.NoError(suite.T(), err)

	suite.db = db
	suite.mock = auth.NewMockAuthService()
	suite.mock.ValidateTokenFunc = func(token string) (*models.User, *models.Session, error) {
		var u models.User
		if err := db.First(&u, "username = ?", token).Error; err != nil {
			return nil, nil, auth.ErrInvalidCredentials
		}
		return &u, &models.Session{ID: "sess-" + u.ID, UserID: u.ID}, nil
	}

	gin.SetMode(gin.TestMode)
	h := NewHandlers(suite.mock, chat.NewService())

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(h.AuthMiddleware())

	api.POST("/posts", h.CreatePost)
	api.GET("/posts/:id", h.GetPost)
	api.DELETE("/posts/:id", h.DeletePost)
	api.POST("/posts/:id/like", h.LikePost)
	api.DELETE("/posts/:id/like", h.UnlikePost)
	api.POST("/posts/:id/comments", h.CreateComment)
	api.GET("/posts/:id/comments", h.ListComments)
	api.PATCH("/comments/:id", h.UpdateComment)
	api.DELETE("/comments/:id", h.DeleteComment)
	api.POST("/users/:username/follow", h.FollowUser)
	api.DELETE("/users/:username/follow", h.UnfollowUser)
	api.POST("/users/:username/block", h.BlockUser)
	api.DELETE("/users/:username/block", h.UnblockUser)
	api.POST("/messages", h.SendMessage)

	suite.router = r
}

func (suite *HandlersTestSuite) TearDownSuite() {
	if suite.db == nil {
		return
	}
	suite.db.Exec("DROP TABLE IF EXISTS reports, message_reactions, messages, conversations, notifications, comments, post_likes, posts, muted_users, user_blocks, follows, users CASCADE")

	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *HandlersTestSuite) SetupTest() {
	for _, table := range []string{
		"reports", "message_reactions", "messages", "conversations",
		"notifications", "comments", "post_likes", "posts",
		"muted_users", "user_blocks", "follows", "users",
	} {
		suite.db.Exec("DELETE FROM " + table)
	}

	suite.alice = &models.User{Email: "alice@driftline.app", Username: "alice", DisplayName: "Alice"}
	suite.bob = &models.User{Email: "bob@driftline.app", Username: "bob", DisplayName: "Bob"}
	require.NoError(suite.T(), suite.db.Create(suite.alice).Error)
	require.NoError(suite.T(), suite.db.Create(suite.bob).Error)
}

// do issues a request as the named user. Tokens are just usernames, resolved
// by the mocked ValidateToken against the test database.
func (suite *HandlersTestSuite) do(token, method, path string, body interface{}) (int, map[string]interface{}) {
	w := doJSON(suite.T(), suite.router, method, path, token, body)
	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w.Code, resp
}

func (suite *HandlersTestSuite) TestCreatePostValidation() {
	t := suite.T()

	code, _ := suite.do("alice", "POST", "/api/v1/posts", gin.H{"body": "   "})
	assert.Equal(t, http.StatusBadRequest, code)

	var count int64
	suite.db.Model(&models.Post{}).Count(&count)
	assert.Zero(t, count, "rejected post must not be persisted")
}

func (suite *HandlersTestSuite) TestCreatePostAttachmentOnly() {
	t := suite.T()

	code, resp := suite.do("alice", "POST", "/api/v1/posts", gin.H{
		"attachment_url": "https://cdn.driftline.app/attachments/a.jpg",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Empty(t, resp["body"])
	assert.NotEmpty(t, resp["id"])

	var refreshed models.User
	require.NoError(t, suite.db.First(&refreshed, "id = ?", suite.alice.ID).Error)
	assert.Equal(t, 1, refreshed.PostCount)
}

func (suite *HandlersTestSuite) TestFollowLifecycle() {
	t := suite.T()

	code, _ := suite.do("alice", "POST", "/api/v1/users/bob/follow", nil)
	require.Equal(t, http.StatusCreated, code)

	// counters updated on both sides
	var a, b models.User
	require.NoError(t, suite.db.First(&a, "id = ?", suite.alice.ID).Error)
	require.NoError(t, suite.db.First(&b, "id = ?", suite.bob.ID).Error)
	assert.Equal(t, 1, a.FollowingCount)
	assert.Equal(t, 1, b.FollowerCount)

	// duplicate follow conflicts
	code, _ = suite.do("alice", "POST", "/api/v1/users/bob/follow", nil)
	assert.Equal(t, http.StatusConflict, code)

	// notification written for the followee
	var notif int64
	suite.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND type = ?", suite.bob.ID, models.NotificationTypeFollow).
		Count(&notif)
	assert.EqualValues(t, 1, notif)

	code, _ = suite.do("alice", "DELETE", "/api/v1/users/bob/follow", nil)
	require.Equal(t, http.StatusOK, code)

	// unfollow without a follow is not found
	code, _ = suite.do("alice", "DELETE", "/api/v1/users/bob/follow", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func (suite *HandlersTestSuite) TestSelfFollowRejected() {
	code, _ := suite.do("alice", "POST", "/api/v1/users/alice/follow", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, code)
}

func (suite *HandlersTestSuite) TestBlockedPairCannotFollow() {
	t := suite.T()

	code, _ := suite.do("alice", "POST", "/api/v1/users/bob/block", nil)
	require.Equal(t, http.StatusCreated, code)

	// the block applies in both directions
	code, _ = suite.do("alice", "POST", "/api/v1/users/bob/follow", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = suite.do("bob", "POST", "/api/v1/users/alice/follow", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func (suite *HandlersTestSuite) TestBlockedPairCannotMessage() {
	t := suite.T()

	code, _ := suite.do("bob", "POST", "/api/v1/users/alice/block", nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = suite.do("alice", "POST", "/api/v1/messages", gin.H{
		"recipient_id": suite.bob.ID,
		"content":      "hello?",
	})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = suite.do("bob", "POST", "/api/v1/messages", gin.H{
		"recipient_id": suite.alice.ID,
		"content":      "hello?",
	})
	assert.Equal(t, http.StatusForbidden, code)

	var count int64
	suite.db.Model(&models.Message{}).Count(&count)
	assert.Zero(t, count)
}

func (suite *HandlersTestSuite) TestBlockSeversFollows() {
	t := suite.T()

	code, _ := suite.do("alice", "POST", "/api/v1/users/bob/follow", nil)
	require.Equal(t, http.StatusCreated, code)
	code, _ = suite.do("bob", "POST", "/api/v1/users/alice/follow", nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = suite.do("alice", "POST", "/api/v1/users/bob/block", nil)
	require.Equal(t, http.StatusCreated, code)

	var follows int64
	suite.db.Model(&models.Follow{}).Count(&follows)
	assert.Zero(t, follows, "blocking severs follows in both directions")

	var a, b models.User
	require.NoError(t, suite.db.First(&a, "id = ?", suite.alice.ID).Error)
	require.NoError(t, suite.db.First(&b, "id = ?", suite.bob.ID).Error)
	assert.Zero(t, a.FollowerCount)
	assert.Zero(t, a.FollowingCount)
	assert.Zero(t, b.FollowerCount)
	assert.Zero(t, b.FollowingCount)
}

func (suite *HandlersTestSuite) TestLikeOncePerUser() {
	t := suite.T()

	code, resp := suite.do("alice", "POST", "/api/v1/posts", gin.H{"body": "like me"})
	require.Equal(t, http.StatusCreated, code)
	postID := resp["id"].(string)

	code, _ = suite.do("bob", "POST", "/api/v1/posts/"+postID+"/like", nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = suite.do("bob", "POST", "/api/v1/posts/"+postID+"/like", nil)
	assert.Equal(t, http.StatusConflict, code)

	var post models.Post
	require.NoError(t, suite.db.First(&post, "id = ?", postID).Error)
	assert.Equal(t, 1, post.LikeCount)

	code, _ = suite.do("bob", "DELETE", "/api/v1/posts/"+postID+"/like", nil)
	require.Equal(t, http.StatusOK, code)

	require.NoError(t, suite.db.First(&post, "id = ?", postID).Error)
	assert.Zero(t, post.LikeCount)
}

func (suite *HandlersTestSuite) TestCommentDeleteKeepsThread() {
	t := suite.T()

	code, resp := suite.do("alice", "POST", "/api/v1/posts", gin.H{"body": "discuss"})
	require.Equal(t, http.StatusCreated, code)
	postID := resp["id"].(string)

	code, resp = suite.do("bob", "POST", "/api/v1/posts/"+postID+"/comments", gin.H{"content": "first"})
	require.Equal(t, http.StatusCreated, code)
	parentID := resp["id"].(string)

	code, resp = suite.do("alice", "POST", "/api/v1/posts/"+postID+"/comments", gin.H{
		"content":   "a reply",
		"parent_id": parentID,
	})
	require.Equal(t, http.StatusCreated, code)
	replyID := resp["id"].(string)

	// deleting a comment with replies blanks it but keeps the row
	code, resp = suite.do("bob", "DELETE", "/api/v1/comments/"+parentID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, resp["removed"])

	var parent models.Comment
	require.NoError(t, suite.db.First(&parent, "id = ?", parentID).Error)
	assert.True(t, parent.IsDeleted)
	assert.Empty(t, parent.Content)

	var post models.Post
	require.NoError(t, suite.db.First(&post, "id = ?", postID).Error)
	assert.Equal(t, 2, post.CommentCount, "tombstoned comment still counts")

	// deleting a leafless comment removes the row and decrements the counter
	code, resp = suite.do("alice", "DELETE", "/api/v1/comments/"+replyID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["removed"])

	var gone int64
	suite.db.Model(&models.Comment{}).Where("id = ?", replyID).Count(&gone)
	assert.Zero(t, gone)

	require.NoError(t, suite.db.First(&post, "id = ?", postID).Error)
	assert.Equal(t, 1, post.CommentCount)
}

func (suite *HandlersTestSuite) TestReplyToReplyFlattens() {
	t := suite.T()

	code, resp := suite.do("alice", "POST", "/api/v1/posts", gin.H{"body": "threads"})
	require.Equal(t, http.StatusCreated, code)
	postID := resp["id"].(string)

	code, resp = suite.do("bob", "POST", "/api/v1/posts/"+postID+"/comments", gin.H{"content": "top"})
	require.Equal(t, http.StatusCreated, code)
	topID := resp["id"].(string)

	code, resp = suite.do("alice", "POST", "/api/v1/posts/"+postID+"/comments", gin.H{
		"content":   "reply",
		"parent_id": topID,
	})
	require.Equal(t, http.StatusCreated, code)
	replyID := resp["id"].(string)

	code, resp = suite.do("bob", "POST", "/api/v1/posts/"+postID+"/comments", gin.H{
		"content":   "reply to the reply",
		"parent_id": replyID,
	})
	require.Equal(t, http.StatusCreated, code)

	var nested models.Comment
	require.NoError(t, suite.db.First(&nested, "id = ?", resp["id"].(string)).Error)
	require.NotNil(t, nested.ParentID)
	assert.Equal(t, topID, *nested.ParentID, "nesting flattens to one level")
}

func (suite *HandlersTestSuite) TestDeletePostOwnership() {
	t := suite.T()

	code, resp := suite.do("alice", "POST", "/api/v1/posts", gin.H{"body": "mine"})
	require.Equal(t, http.StatusCreated, code)
	postID := resp["id"].(string)

	code, _ = suite.do("bob", "DELETE", "/api/v1/posts/"+postID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = suite.do("alice", "DELETE", "/api/v1/posts/"+postID, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = suite.do("alice", "GET", "/api/v1/posts/"+postID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
