package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ApplicationMetrics tracks domain-specific metrics (messaging, social engagement, moderation)
type ApplicationMetrics struct {
	// Messaging
	MessagesSentTotal        prometheus.CounterVec
	MessagesDedupedTotal     prometheus.CounterVec
	NotificationsTotal       prometheus.CounterVec
	TypingEventsTotal        prometheus.CounterVec
	PresenceTransitionsTotal prometheus.CounterVec

	// Social engagement
	FollowsTotal   prometheus.CounterVec
	UnfollowsTotal prometheus.CounterVec
	LikesTotal     prometheus.CounterVec
	CommentsTotal  prometheus.CounterVec
	PostsCreated   prometheus.CounterVec

	// Validation metrics
	ValidationFailures prometheus.CounterVec

	// Moderation
	ReportsTotal prometheus.CounterVec
}

var (
	appInstance *ApplicationMetrics
	appOnce     sync.Once
)

// App returns the global application metrics instance
func App() *ApplicationMetrics {
	appOnce.Do(func() {
		appInstance = initializeApplicationMetrics()
	})
	return appInstance
}

// initializeApplicationMetrics creates and registers all application metrics
func initializeApplicationMetrics() *ApplicationMetrics {
	return &ApplicationMetrics{
		// Messaging metrics
		MessagesSentTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_sent_total",
				Help: "Total number of direct messages sent",
			},
			[]string{"transport"},
		),
		MessagesDedupedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_deduped_total",
				Help: "Total number of duplicate message sends suppressed",
			},
			[]string{},
		),
		NotificationsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Total number of notifications created",
			},
			[]string{"type", "status"},
		),
		TypingEventsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typing_events_total",
				Help: "Total number of typing indicator events",
			},
			[]string{"kind"},
		),
		PresenceTransitionsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "presence_transitions_total",
				Help: "Total number of online/offline presence transitions",
			},
			[]string{"state"},
		),

		// Social metrics
		FollowsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "follows_total",
				Help: "Total number of follows",
			},
			[]string{},
		),
		UnfollowsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfollows_total",
				Help: "Total number of unfollows",
			},
			[]string{},
		),
		LikesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "likes_total",
				Help: "Total number of likes",
			},
			[]string{},
		),
		CommentsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comments_total",
				Help: "Total number of comments",
			},
			[]string{},
		),
		PostsCreated: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posts_created_total",
				Help: "Total number of posts created",
			},
			[]string{},
		),

		// Validation metrics
		ValidationFailures: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_failures_total",
				Help: "Total validation failures",
			},
			[]string{"field", "reason"},
		),

		// Moderation metrics
		ReportsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reports_total",
				Help: "Total number of reports filed",
			},
			[]string{"target_type", "reason"},
		),
	}
}
