// Package timeline assembles the home feed: posts from followed users,
// topped up with recent posts when the follow graph is thin.
package timeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/driftline/backend/internal/database"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/models"
)

// TimelineItem represents a single item in the user's timeline
type TimelineItem struct {
	ID        string       `json:"id"`
	Post      *models.Post `json:"post"`
	Source    string       `json:"source"` // "following", "own", "recent"
	CreatedAt time.Time    `json:"created_at"`
}

// TimelineResponse is the response from GetTimeline
type TimelineResponse struct {
	Items []TimelineItem `json:"items"`
	Meta  TimelineMeta   `json:"meta"`
}

// TimelineMeta contains metadata about the timeline response
type TimelineMeta struct {
	Limit          int  `json:"limit"`
	Offset         int  `json:"offset"`
	Count          int  `json:"count"`
	HasMore        bool `json:"has_more"`
	FollowingCount int  `json:"following_count"` // How many items from followed users
	RecentCount    int  `json:"recent_count"`    // How many items from the recent-posts fallback
}

// Service handles timeline generation
type Service struct {
	db *gorm.DB
}

// NewService creates a new timeline service
func NewService() *Service {
	return &Service{db: database.DB}
}

// GetTimeline returns the home feed for the user: their own posts and posts
// from users they follow, newest first. Muted users are filtered out. When the
// follow graph yields fewer items than requested, recent posts from the rest
// of the network fill the gap.
func (s *Service) GetTimeline(ctx context.Context, userID string, limit, offset int) (*TimelineResponse, error) {
	mutedUserIDs, err := s.getMutedUserIDs(userID)
	if err != nil {
		// Log but continue, a mute lookup failure should not break the feed
		logger.Log.Warn("Failed to get muted users", zap.Error(err))
		mutedUserIDs = []string{}
	}

	followedIDs, err := s.getFollowedIDs(userID)
	if err != nil {
		return nil, err
	}

	// Own posts belong in the feed too
	authorIDs := append(followedIDs, userID)

	// Fetch one extra row to detect whether there is more
	fetchLimit := limit + 1

	query := s.db.WithContext(ctx).Preload("User").
		Where("user_id IN ?", authorIDs).
		Order("created_at DESC").
		Limit(fetchLimit).Offset(offset)
	if len(mutedUserIDs) > 0 {
		query = query.Where("user_id NOT IN ?", mutedUserIDs)
	}

	var posts []models.Post
	if err := query.Find(&posts).Error; err != nil {
		return nil, err
	}

	items := make([]TimelineItem, 0, fetchLimit)
	followingCount := 0
	for i := range posts {
		source := "following"
		if posts[i].UserID == userID {
			source = "own"
		} else {
			followingCount++
		}
		items = append(items, TimelineItem{
			ID:        posts[i].ID,
			Post:      &posts[i],
			Source:    source,
			CreatedAt: posts[i].CreatedAt,
		})
	}

	// Top up a thin feed with recent posts from outside the follow graph.
	// Only on the first page, deeper pages stay follow-graph only so the
	// offset arithmetic stays simple.
	recentCount := 0
	if len(items) < fetchLimit && offset == 0 {
		recent, err := s.getRecentPosts(ctx, userID, authorIDs, mutedUserIDs, fetchLimit-len(items))
		if err != nil {
			logger.Log.Warn("Failed to get recent posts for feed", zap.Error(err))
		} else {
			items = append(items, recent...)
			recentCount = len(recent)
			sort.SliceStable(items, func(i, j int) bool {
				return items[i].CreatedAt.After(items[j].CreatedAt)
			})
		}
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	return &TimelineResponse{
		Items: items,
		Meta: TimelineMeta{
			Limit:          limit,
			Offset:         offset,
			Count:          len(items),
			HasMore:        hasMore,
			FollowingCount: followingCount,
			RecentCount:    recentCount,
		},
	}, nil
}

// getFollowedIDs returns the IDs of users the given user follows
func (s *Service) getFollowedIDs(userID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("followee_id", &ids).Error
	return ids, err
}

// getMutedUserIDs returns the IDs of users the given user has muted
func (s *Service) getMutedUserIDs(userID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.MutedUser{}).
		Where("user_id = ?", userID).
		Pluck("muted_user_id", &ids).Error
	return ids, err
}

// getRecentPosts returns recent posts from users outside the author set,
// excluding muted users and anyone in a block relationship with the viewer
func (s *Service) getRecentPosts(ctx context.Context, userID string, excludeAuthors, mutedUserIDs []string, limit int) ([]TimelineItem, error) {
	blockedIDs, err := s.getBlockedPeerIDs(userID)
	if err != nil {
		return nil, err
	}

	exclude := make([]string, 0, len(excludeAuthors)+len(mutedUserIDs)+len(blockedIDs))
	exclude = append(exclude, excludeAuthors...)
	exclude = append(exclude, mutedUserIDs...)
	exclude = append(exclude, blockedIDs...)

	var posts []models.Post
	err = s.db.WithContext(ctx).Preload("User").
		Where("user_id NOT IN ?", exclude).
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	items := make([]TimelineItem, 0, len(posts))
	for i := range posts {
		items = append(items, TimelineItem{
			ID:        posts[i].ID,
			Post:      &posts[i],
			Source:    "recent",
			CreatedAt: posts[i].CreatedAt,
		})
	}
	return items, nil
}

// getBlockedPeerIDs returns the IDs of users in a block relationship with the
// viewer, in either direction
func (s *Service) getBlockedPeerIDs(userID string) ([]string, error) {
	var blocks []models.UserBlock
	err := s.db.
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(blocks))
	for i := range blocks {
		if blocks[i].BlockerID == userID {
			ids = append(ids, blocks[i].BlockedID)
		} else {
			ids = append(ids, blocks[i].BlockerID)
		}
	}
	return ids, nil
}
