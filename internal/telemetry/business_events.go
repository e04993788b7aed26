package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessEvents provides helper methods for tracing domain-specific operations
// These are higher-level events beyond HTTP/DB/Cache tracing (e.g., "user followed another user", "post was liked")
type BusinessEvents struct {
	tracer trace.Tracer
}

// NewBusinessEvents creates a new business events tracer
func NewBusinessEvents() *BusinessEvents {
	return &BusinessEvents{
		tracer: otel.Tracer("business-events"),
	}
}

// ============================================================================
// FEED OPERATIONS
// ============================================================================

// FeedEventAttrs attributes for feed-related operations
type FeedEventAttrs struct {
	Limit        int64
	Offset       int64
	ItemCount    int64
	FallbackUsed bool
}

// TraceGetFeed creates a span for feed retrieval operations
func (be *BusinessEvents) TraceGetFeed(ctx context.Context, attrs FeedEventAttrs) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "feed.get",
		trace.WithAttributes(
			attribute.Int64("feed.limit", attrs.Limit),
			attribute.Int64("feed.offset", attrs.Offset),
		),
	)

	// Record optional attributes only if set
	if attrs.ItemCount > 0 {
		span.SetAttributes(attribute.Int64("feed.item_count", attrs.ItemCount))
	}
	if attrs.FallbackUsed {
		span.SetAttributes(attribute.Bool("feed.fallback_used", true))
	}

	return ctx, span
}

// TraceCreatePost creates a span for post creation
func (be *BusinessEvents) TraceCreatePost(ctx context.Context, postID string, hasAttachment bool) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "feed.create_post",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.Bool("post.has_attachment", hasAttachment),
		),
	)
	return ctx, span
}

// ============================================================================
// SOCIAL INTERACTIONS
// ============================================================================

// SocialInteractionAttrs attributes for social operations
type SocialInteractionAttrs struct {
	ActionType       string // "follow", "like", "comment", "block", "mute"
	TargetType       string // "post", "user", "comment"
	TargetID         string
	NotificationSent bool
}

// TraceFollowUser creates a span for follow operations
func (be *BusinessEvents) TraceFollowUser(ctx context.Context, userID string, targetUserID string) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "social.follow_user",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("target_user.id", targetUserID),
		),
	)
	return ctx, span
}

// TraceSocialInteraction creates a span for generic social interactions
func (be *BusinessEvents) TraceSocialInteraction(ctx context.Context, actionType string, attrs SocialInteractionAttrs) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "social."+actionType,
		trace.WithAttributes(
			attribute.String("action.type", actionType),
			attribute.String("target.type", attrs.TargetType),
			attribute.String("target.id", attrs.TargetID),
		),
	)

	if attrs.NotificationSent {
		span.SetAttributes(attribute.Bool("notification.sent", true))
	}

	return ctx, span
}

// TraceCreateComment creates a span for comment creation
func (be *BusinessEvents) TraceCreateComment(ctx context.Context, postID string, commentID string, isReply bool) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "social.create_comment",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.String("comment.id", commentID),
			attribute.Bool("comment.is_reply", isReply),
		),
	)
	return ctx, span
}

// ============================================================================
// MESSAGING
// ============================================================================

// MessageEventAttrs attributes for direct message operations
type MessageEventAttrs struct {
	ConversationID string
	Transport      string // "socket", "rest"
	Duplicate      bool
	HasAttachment  bool
}

// TraceSendMessage creates a span for direct message delivery
func (be *BusinessEvents) TraceSendMessage(ctx context.Context, attrs MessageEventAttrs) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "messaging.send",
		trace.WithAttributes(
			attribute.String("conversation.id", attrs.ConversationID),
			attribute.String("message.transport", attrs.Transport),
		),
	)

	if attrs.Duplicate {
		span.SetAttributes(attribute.Bool("message.duplicate", true))
	}
	if attrs.HasAttachment {
		span.SetAttributes(attribute.Bool("message.has_attachment", true))
	}

	return ctx, span
}

// TraceMarkRead creates a span for conversation read receipts
func (be *BusinessEvents) TraceMarkRead(ctx context.Context, conversationID string, marked int64) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "messaging.mark_read",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int64("messages.marked", marked),
		),
	)
	return ctx, span
}

// TraceReaction creates a span for message reaction operations
func (be *BusinessEvents) TraceReaction(ctx context.Context, emoji string, messageID string) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "messaging.add_reaction",
		trace.WithAttributes(
			attribute.String("reaction.emoji", emoji),
			attribute.String("message.id", messageID),
		),
	)
	return ctx, span
}

// ============================================================================
// REALTIME / PRESENCE
// ============================================================================

// PresenceEventAttrs attributes for presence transitions
type PresenceEventAttrs struct {
	UserID      string
	Status      string // "online", "away", "offline"
	Connections int64
}

// TracePresenceChange creates a span for presence status transitions
func (be *BusinessEvents) TracePresenceChange(ctx context.Context, attrs PresenceEventAttrs) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "realtime.presence_change",
		trace.WithAttributes(
			attribute.String("user.id", attrs.UserID),
			attribute.String("presence.status", attrs.Status),
			attribute.Int64("presence.connections", attrs.Connections),
		),
	)
	return ctx, span
}

// ============================================================================
// MODERATION
// ============================================================================

// TraceModerationAction creates a span for admin/moderator actions
func (be *BusinessEvents) TraceModerationAction(ctx context.Context, action string, targetUserID string) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "moderation."+action,
		trace.WithAttributes(
			attribute.String("moderation.action", action),
			attribute.String("target_user.id", targetUserID),
		),
	)
	return ctx, span
}

// RecordEventError records an error in a business event span
func RecordEventError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}

// ============================================================================
// HELPER: Global instance for convenient access
// ============================================================================

var globalBusinessEvents *BusinessEvents

// GetBusinessEvents returns the global business events tracer
// Initialize with init or early startup if needed
func GetBusinessEvents() *BusinessEvents {
	if globalBusinessEvents == nil {
		globalBusinessEvents = NewBusinessEvents()
	}
	return globalBusinessEvents
}
