package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/driftline/backend/internal/errors"
	"github.com/driftline/backend/internal/logger"
	"github.com/driftline/backend/internal/telemetry"
	"github.com/driftline/backend/internal/util"
)

// GetFeed returns the caller's home feed
// GET /api/v1/feed
func (h *Handlers) GetFeed(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if h.timeline == nil {
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("feed"))
		return
	}

	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	ctx, span := telemetry.GetBusinessEvents().TraceGetFeed(c.Request.Context(), telemetry.FeedEventAttrs{
		Limit:  int64(limit),
		Offset: int64(offset),
	})
	defer span.End()
	telemetry.SetUserContext(span, userID)

	resp, err := h.timeline.GetTimeline(ctx, userID, limit, offset)
	if err != nil {
		telemetry.RecordEventError(span, err)
		logger.ErrorWithFields("failed to build feed", err)
		util.RespondInternalError(c, "Failed to build feed")
		return
	}
	span.SetAttributes(attribute.Int64("feed.item_count", int64(len(resp.Items))))

	c.JSON(http.StatusOK, resp)
}
