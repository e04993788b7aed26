// Package seed populates the database with realistic development and test
// data: users, the follow graph, posts, comments, likes, conversations and
// direct messages.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/models"
)

// SeedPassword is the password every seeded account logs in with.
const SeedPassword = "driftline-dev"

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	// Seed the random generator for varied data
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// SeedDev seeds the development database with realistic data
func (s *Seeder) SeedDev() error {
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating users...")
	users, err := s.seedUsers(200)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	log("Creating follow graph...")
	if err := s.seedFollows(users, 1500); err != nil {
		return fmt.Errorf("failed to seed follows: %w", err)
	}

	log("Creating posts...")
	posts, err := s.seedPosts(users, 1000)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}

	log("Creating likes...")
	if err := s.seedLikes(users, posts, 3000); err != nil {
		return fmt.Errorf("failed to seed likes: %w", err)
	}

	log("Creating comments...")
	if err := s.seedComments(users, posts, 2000); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	log("Creating blocks and mutes...")
	if err := s.seedBlocksAndMutes(users, 20, 40); err != nil {
		return fmt.Errorf("failed to seed blocks and mutes: %w", err)
	}

	log("Creating conversations and messages...")
	if err := s.seedConversations(users, 150); err != nil {
		return fmt.Errorf("failed to seed conversations: %w", err)
	}

	log("Repairing cached counters...")
	if err := s.repairCounters(); err != nil {
		return fmt.Errorf("failed to repair counters: %w", err)
	}

	return nil
}

// SeedTest seeds the test database with minimal data
func (s *Seeder) SeedTest() error {
	users, err := s.seedUsers(5)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	if err := s.seedFollows(users, 8); err != nil {
		return fmt.Errorf("failed to seed follows: %w", err)
	}

	posts, err := s.seedPosts(users, 10)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}

	if err := s.seedComments(users, posts, 10); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	if err := s.seedConversations(users, 3); err != nil {
		return fmt.Errorf("failed to seed conversations: %w", err)
	}

	return s.repairCounters()
}

// Clean removes all seed data (use with caution!)
func (s *Seeder) Clean() error {
	// Delete in reverse order of dependencies
	tables := []string{
		"message_reactions",
		"messages",
		"conversations",
		"notifications",
		"reports",
		"post_likes",
		"comments",
		"posts",
		"muted_users",
		"user_blocks",
		"follows",
		"sessions",
		"users",
	}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

// seedUsers creates users with realistic profiles. Every account shares
// SeedPassword so any of them can be logged into during development.
func (s *Seeder) seedUsers(count int) ([]models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash seed password: %w", err)
	}
	passwordHash := string(hash)

	// Include any existing users so reruns extend rather than duplicate
	var users []models.User
	if err := s.db.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch existing users: %w", err)
	}

	seen := make(map[string]bool, len(users)*2)
	for _, u := range users {
		seen[u.Username] = true
		seen[u.Email] = true
	}

	for i := 0; i < count; i++ {
		username := gofakeit.Username()
		email := gofakeit.Email()
		for attempts := 0; (seen[username] || seen[email]) && attempts < 10; attempts++ {
			username = gofakeit.Username()
			email = gofakeit.Email()
		}
		if seen[username] || seen[email] {
			continue
		}
		seen[username] = true
		seen[email] = true

		user := models.User{
			Username:     username,
			Email:        email,
			DisplayName:  gofakeit.Name(),
			Bio:          gofakeit.HipsterSentence(),
			Location:     fmt.Sprintf("%s, %s", gofakeit.City(), gofakeit.Country()),
			AvatarURL:    fmt.Sprintf("https://i.pravatar.cc/300?u=%s", username),
			PasswordHash: &passwordHash,
			Role:         models.RoleUser,
		}

		lastSeen := gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now())
		user.LastSeenAt = &lastSeen
		user.CreatedAt = gofakeit.DateRange(time.Now().AddDate(0, -6, 0), time.Now().AddDate(0, 0, -30))

		if err := s.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", username, err)
		}
		users = append(users, user)
	}

	// Promote the first two accounts so moderation endpoints are usable
	if len(users) > 0 {
		if err := s.db.Model(&users[0]).Update("role", models.RoleAdmin).Error; err != nil {
			return nil, fmt.Errorf("failed to promote admin: %w", err)
		}
		users[0].Role = models.RoleAdmin
	}
	if len(users) > 1 {
		if err := s.db.Model(&users[1]).Update("role", models.RoleModerator).Error; err != nil {
			return nil, fmt.Errorf("failed to promote moderator: %w", err)
		}
		users[1].Role = models.RoleModerator
	}

	return users, nil
}

// seedFollows builds an uneven follow graph: a handful of accounts collect
// most of the followers, the long tail follows a few people each.
func (s *Seeder) seedFollows(users []models.User, count int) error {
	if len(users) < 2 {
		return nil
	}

	type pair struct{ follower, followee string }
	created := make(map[pair]bool)

	// Popular accounts get picked as followee far more often
	popularCount := len(users) / 10
	if popularCount < 1 {
		popularCount = 1
	}

	for i := 0; i < count; i++ {
		follower := users[rand.Intn(len(users))]

		var followee models.User
		if rand.Float64() < 0.5 {
			followee = users[rand.Intn(popularCount)]
		} else {
			followee = users[rand.Intn(len(users))]
		}
		if follower.ID == followee.ID {
			continue
		}

		p := pair{follower.ID, followee.ID}
		if created[p] {
			continue
		}
		created[p] = true

		follow := models.Follow{
			FollowerID: follower.ID,
			FolloweeID: followee.ID,
			CreatedAt:  gofakeit.DateRange(follower.CreatedAt, time.Now()),
		}
		if err := s.db.Create(&follow).Error; err != nil {
			return fmt.Errorf("failed to create follow: %w", err)
		}
	}
	return nil
}

// seedPosts creates posts with a varied distribution: a few power users post
// heavily, most post occasionally, some never post at all.
func (s *Seeder) seedPosts(users []models.User, totalCount int) ([]models.Post, error) {
	if len(users) == 0 {
		return nil, nil
	}

	var posts []models.Post
	for i := 0; i < totalCount; i++ {
		// Bias toward the first fifth of users
		var user models.User
		if rand.Float64() < 0.6 {
			user = users[rand.Intn((len(users)/5)+1)]
		} else {
			user = users[rand.Intn(len(users))]
		}

		post := models.Post{
			UserID: user.ID,
			Body:   gofakeit.Paragraph(1, 2+rand.Intn(3), 8, " "),
		}
		if rand.Float64() < 0.2 {
			post.AttachmentURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", gofakeit.UUID())
		}
		post.CreatedAt = gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now())

		if err := s.db.Create(&post).Error; err != nil {
			return nil, fmt.Errorf("failed to create post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// seedLikes creates post likes, at most one per user per post
func (s *Seeder) seedLikes(users []models.User, posts []models.Post, count int) error {
	if len(users) == 0 || len(posts) == 0 {
		return nil
	}

	type pair struct{ user, post string }
	created := make(map[pair]bool)

	for i := 0; i < count; i++ {
		user := users[rand.Intn(len(users))]
		post := posts[rand.Intn(len(posts))]

		p := pair{user.ID, post.ID}
		if created[p] || user.ID == post.UserID {
			continue
		}
		created[p] = true

		like := models.PostLike{
			PostID:    post.ID,
			UserID:    user.ID,
			CreatedAt: gofakeit.DateRange(post.CreatedAt, time.Now()),
		}
		if err := s.db.Create(&like).Error; err != nil {
			return fmt.Errorf("failed to create like: %w", err)
		}
	}
	return nil
}

// seedComments creates comments on posts, with roughly a quarter of them
// being replies to an earlier top-level comment.
func (s *Seeder) seedComments(users []models.User, posts []models.Post, count int) error {
	if len(users) == 0 || len(posts) == 0 {
		return nil
	}

	topLevelByPost := make(map[string][]string)

	for i := 0; i < count; i++ {
		user := users[rand.Intn(len(users))]
		post := posts[rand.Intn(len(posts))]

		comment := models.Comment{
			PostID:  post.ID,
			UserID:  user.ID,
			Content: gofakeit.Sentence(5 + rand.Intn(15)),
		}
		comment.CreatedAt = gofakeit.DateRange(post.CreatedAt, time.Now())

		parents := topLevelByPost[post.ID]
		if len(parents) > 0 && rand.Float64() < 0.25 {
			parentID := parents[rand.Intn(len(parents))]
			comment.ParentID = &parentID
		}

		if err := s.db.Create(&comment).Error; err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		if comment.ParentID == nil {
			topLevelByPost[post.ID] = append(topLevelByPost[post.ID], comment.ID)
		}
	}
	return nil
}

// seedBlocksAndMutes creates a small number of blocks and mutes so the
// symmetric filtering paths have data to hit.
func (s *Seeder) seedBlocksAndMutes(users []models.User, blockCount, muteCount int) error {
	if len(users) < 2 {
		return nil
	}

	for i := 0; i < blockCount; i++ {
		blocker := users[rand.Intn(len(users))]
		blocked := users[rand.Intn(len(users))]
		if blocker.ID == blocked.ID {
			continue
		}
		block := models.UserBlock{BlockerID: blocker.ID, BlockedID: blocked.ID}
		if err := s.db.Where("blocker_id = ? AND blocked_id = ?", blocker.ID, blocked.ID).
			FirstOrCreate(&block).Error; err != nil {
			return fmt.Errorf("failed to create block: %w", err)
		}
	}

	for i := 0; i < muteCount; i++ {
		muter := users[rand.Intn(len(users))]
		muted := users[rand.Intn(len(users))]
		if muter.ID == muted.ID {
			continue
		}
		mute := models.MutedUser{UserID: muter.ID, MutedUserID: muted.ID}
		if err := s.db.Where("user_id = ? AND muted_user_id = ?", muter.ID, muted.ID).
			FirstOrCreate(&mute).Error; err != nil {
			return fmt.Errorf("failed to create mute: %w", err)
		}
	}
	return nil
}

// seedConversations creates direct message threads with a realistic mix of
// read and unread messages, plus the occasional reaction.
func (s *Seeder) seedConversations(users []models.User, count int) error {
	if len(users) < 2 {
		return nil
	}

	emojis := []string{"👍", "❤️", "😂", "🔥", "😮"}
	created := make(map[string]bool)

	for i := 0; i < count; i++ {
		a := users[rand.Intn(len(users))]
		b := users[rand.Intn(len(users))]
		if a.ID == b.ID {
			continue
		}

		userA, userB := models.CanonicalPair(a.ID, b.ID)
		key := userA + ":" + userB
		if created[key] {
			continue
		}
		created[key] = true

		conv := models.Conversation{UserAID: userA, UserBID: userB}
		if err := s.db.Create(&conv).Error; err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}

		// A short back-and-forth thread
		messageCount := 2 + rand.Intn(12)
		var lastMsg *models.Message
		unreadA, unreadB := 0, 0

		for j := 0; j < messageCount; j++ {
			senderID, recipientID := userA, userB
			if rand.Float64() < 0.5 {
				senderID, recipientID = userB, userA
			}

			msg := models.Message{
				ConversationID: conv.ID,
				SenderID:       senderID,
				RecipientID:    recipientID,
				Content:        gofakeit.Sentence(3 + rand.Intn(12)),
			}
			msg.CreatedAt = gofakeit.DateRange(time.Now().AddDate(0, 0, -14), time.Now())

			// Older messages are read; the tail of the thread stays unread
			if j < messageCount-1-rand.Intn(3) {
				readAt := msg.CreatedAt.Add(time.Duration(rand.Intn(3600)) * time.Second)
				msg.ReadAt = &readAt
			} else if recipientID == userA {
				unreadA++
			} else {
				unreadB++
			}

			if err := s.db.Create(&msg).Error; err != nil {
				return fmt.Errorf("failed to create message: %w", err)
			}

			if rand.Float64() < 0.15 {
				reaction := models.MessageReaction{
					MessageID: msg.ID,
					UserID:    recipientID,
					Emoji:     emojis[rand.Intn(len(emojis))],
				}
				if err := s.db.Create(&reaction).Error; err != nil {
					return fmt.Errorf("failed to create reaction: %w", err)
				}
			}

			lastMsg = &msg
		}

		if lastMsg != nil {
			updates := map[string]interface{}{
				"last_message_id": lastMsg.ID,
				"last_message_at": lastMsg.CreatedAt,
				"unread_a":        unreadA,
				"unread_b":        unreadB,
			}
			if err := s.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update conversation: %w", err)
			}
		}
	}
	return nil
}

// repairCounters recomputes the cached counters on users and posts from the
// actual rows, so seeded data satisfies the same invariants the handlers
// maintain incrementally.
func (s *Seeder) repairCounters() error {
	statements := []string{
		`UPDATE users SET follower_count = (SELECT COUNT(*) FROM follows WHERE followee_id = users.id)`,
		`UPDATE users SET following_count = (SELECT COUNT(*) FROM follows WHERE follower_id = users.id)`,
		`UPDATE users SET post_count = (SELECT COUNT(*) FROM posts WHERE user_id = users.id AND deleted_at IS NULL)`,
		`UPDATE posts SET like_count = (SELECT COUNT(*) FROM post_likes WHERE post_id = posts.id)`,
		`UPDATE posts SET comment_count = (SELECT COUNT(*) FROM comments WHERE post_id = posts.id AND deleted_at IS NULL)`,
	}
	for _, stmt := range statements {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to repair counters: %w", err)
		}
	}
	return nil
}
