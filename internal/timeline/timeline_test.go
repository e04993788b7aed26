package timeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "driftline"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "driftline_dev_password"
	}
	dbname := os.Getenv("POSTGRES_DB")
	if dbname == "" {
		dbname = "driftline_test"
	}

	dsn := "host=" + host + " port=" + port + " user=" + user + " password=" + password + " dbname=" + dbname + " sslmode=disable"
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}

	err = db.AutoMigrate(&models.User{}, &models.Post{}, &models.Follow{}, &models.MutedUser{}, &models.UserBlock{})
	require.NoError(t, err)

	database.DB = db
	return db
}

func seedFeedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	user := &models.User{
		Email:       username + "@example.com",
		Username:    username,
		DisplayName: username,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func cleanupFeedData(t *testing.T, db *gorm.DB) {
	db.Exec("DELETE FROM posts")
	db.Exec("DELETE FROM follows")
	db.Exec("DELETE FROM muted_users")
	db.Exec("DELETE FROM user_blocks")
	db.Exec("DELETE FROM users WHERE username LIKE 'feed_%'")
}

func TestGetTimelineIntegration(t *testing.T) {
	if os.Getenv("SKIP_DB_TESTS") != "" {
		t.Skip("Skipping database test")
	}

	db := setupTestDB(t)
	cleanupFeedData(t, db)
	defer cleanupFeedData(t, db)

	viewer := seedFeedUser(t, db, "feed_viewer")
	followed := seedFeedUser(t, db, "feed_followed")
	muted := seedFeedUser(t, db, "feed_muted")
	stranger := seedFeedUser(t, db, "feed_stranger")

	require.NoError(t, db.Create(&models.Follow{FollowerID: viewer.ID, FolloweeID: followed.ID}).Error)
	require.NoError(t, db.Create(&models.Follow{FollowerID: viewer.ID, FolloweeID: muted.ID}).Error)
	require.NoError(t, db.Create(&models.MutedUser{UserID: viewer.ID, MutedUserID: muted.ID}).Error)

	for _, p := range []models.Post{
		{UserID: viewer.ID, Body: "my own post"},
		{UserID: followed.ID, Body: "from someone I follow"},
		{UserID: muted.ID, Body: "should be hidden"},
		{UserID: stranger.ID, Body: "recent fallback"},
	} {
		post := p
		require.NoError(t, db.Create(&post).Error)
	}

	svc := NewService()
	resp, err := svc.GetTimeline(context.Background(), viewer.ID, 10, 0)
	require.NoError(t, err)

	bodies := make(map[string]string)
	for _, item := range resp.Items {
		require.NotNil(t, item.Post)
		bodies[item.Post.Body] = item.Source
	}

	assert.Equal(t, "own", bodies["my own post"])
	assert.Equal(t, "following", bodies["from someone I follow"])
	assert.NotContains(t, bodies, "should be hidden")
	assert.Equal(t, "recent", bodies["recent fallback"])
	assert.Equal(t, 1, resp.Meta.FollowingCount)
	assert.False(t, resp.Meta.HasMore)
}

func TestGetTimelineExcludesBlockedFromFallback(t *testing.T) {
	if os.Getenv("SKIP_DB_TESTS") != "" {
		t.Skip("Skipping database test")
	}

	db := setupTestDB(t)
	cleanupFeedData(t, db)
	defer cleanupFeedData(t, db)

	viewer := seedFeedUser(t, db, "feed_viewer2")
	blocker := seedFeedUser(t, db, "feed_blocker")

	// The other side blocked the viewer; their posts must not surface
	require.NoError(t, db.Create(&models.UserBlock{BlockerID: blocker.ID, BlockedID: viewer.ID}).Error)
	post := models.Post{UserID: blocker.ID, Body: "blocked content"}
	require.NoError(t, db.Create(&post).Error)

	svc := NewService()
	resp, err := svc.GetTimeline(context.Background(), viewer.ID, 10, 0)
	require.NoError(t, err)

	for _, item := range resp.Items {
		assert.NotEqual(t, "blocked content", item.Post.Body)
	}
}

func TestTimelineItemFields(t *testing.T) {
	item := TimelineItem{
		ID:     "test-id",
		Source: "following",
		Post: &models.Post{
			ID:        "post-id",
			Body:      "hello",
			LikeCount: 50,
		},
	}

	assert.Equal(t, "test-id", item.ID)
	assert.Equal(t, "following", item.Source)
	assert.NotNil(t, item.Post)
	assert.Equal(t, 50, item.Post.LikeCount)
}
