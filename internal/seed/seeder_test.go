package seed

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/driftline/backend/internal/models"
)

func setupSeedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

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
		t.Skipf("Skipping seed tests: database not available (%v)", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Session{},
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
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Exec("DROP TABLE IF EXISTS reports, message_reactions, messages, conversations, notifications, comments, post_likes, posts, muted_users, user_blocks, follows, sessions, users CASCADE")
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return db
}

func TestSeedTest(t *testing.T) {
	db := setupSeedTestDB(t)
	seeder := NewSeeder(db)

	require.NoError(t, seeder.SeedTest())

	var users []models.User
	require.NoError(t, db.Unscoped().Find(&users).Error)
	assert.Len(t, users, 5)

	// every seeded account logs in with the shared development password
	require.NotNil(t, users[0].PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*users[0].PasswordHash), []byte(SeedPassword)))

	// first two users carry the elevated roles
	byName := map[string]models.User{}
	for _, u := range users {
		byName[string(u.Role)] = u
	}
	assert.Contains(t, byName, string(models.RoleAdmin))
	assert.Contains(t, byName, string(models.RoleModerator))

	// cached counters must agree with the seeded rows
	for _, u := range users {
		var postCount int64
		db.Model(&models.Post{}).Where("user_id = ?", u.ID).Count(&postCount)
		assert.EqualValues(t, postCount, u.PostCount, "post_count for %s", u.Username)

		var followerCount int64
		db.Model(&models.Follow{}).Where("followee_id = ?", u.ID).Count(&followerCount)
		assert.EqualValues(t, followerCount, u.FollowerCount, "follower_count for %s", u.Username)
	}

	// conversations carry last-message metadata
	var convs []models.Conversation
	require.NoError(t, db.Find(&convs).Error)
	for _, conv := range convs {
		assert.NotNil(t, conv.LastMessageID)
		var msgs int64
		db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&msgs)
		assert.Positive(t, msgs)
	}
}

func TestSeedRerunSafe(t *testing.T) {
	db := setupSeedTestDB(t)
	seeder := NewSeeder(db)

	require.NoError(t, seeder.SeedTest())
	require.NoError(t, seeder.SeedTest(), "re-seeding must not violate unique constraints")
}

func TestClean(t *testing.T) {
	db := setupSeedTestDB(t)
	seeder := NewSeeder(db)

	require.NoError(t, seeder.SeedTest())
	require.NoError(t, seeder.Clean())

	for _, model := range []interface{}{
		&models.User{}, &models.Follow{}, &models.Post{}, &models.Comment{},
		&models.Conversation{}, &models.Message{},
	} {
		var count int64
		db.Unscoped().Model(model).Count(&count)
		assert.Zero(t, count)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
