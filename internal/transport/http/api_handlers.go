package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/core"
	"github.com/vovakirdan/storyhub/internal/metrics"
	"github.com/vovakirdan/storyhub/internal/proto"
	"github.com/vovakirdan/storyhub/internal/store"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PresenceResponse reports whether a user has live connections.
type PresenceResponse struct {
	UserID      string `json:"user_id"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

// ParticipantsResponse lists the members of a story room.
type ParticipantsResponse struct {
	StoryID      string       `json:"story_id"`
	Participants []proto.User `json:"participants"`
}

// CommentsResponse lists the stored comments of a story.
type CommentsResponse struct {
	StoryID  string          `json:"story_id"`
	Comments []proto.Comment `json:"comments"`
}

// NotificationRequest addresses a notification to one user.
type NotificationRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Type    string `json:"type" binding:"required"`
	StoryID string `json:"story_id"`
	Message string `json:"message"`
}

// NotificationResponse reports whether a live connection was reached.
type NotificationResponse struct {
	Delivered bool `json:"delivered"`
}

// APIHandlers contains handlers for the REST surface.
type APIHandlers struct {
	hub      *core.Hub
	comments store.CommentStore
	metrics  *metrics.Metrics
	log      *zerolog.Logger
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(hub *core.Hub, comments store.CommentStore, m *metrics.Metrics, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{hub: hub, comments: comments, metrics: m, log: logger}
}

// gateStatus maps a join decision error to an HTTP status.
func gateStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrAccessDenied):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, store.ErrStoryNotFound):
		return http.StatusNotFound, "story not found"
	case errors.Is(err, core.ErrUnavailable):
		return http.StatusServiceUnavailable, "try again later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// Me handles GET /api/me
func (h *APIHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, identityFrom(c))
}

// Participants handles GET /api/stories/:id/participants
func (h *APIHandlers) Participants(c *gin.Context) {
	storyID := c.Param("id")
	members, err := h.hub.Participants(c.Request.Context(), identityFrom(c), storyID)
	if err != nil {
		status, msg := gateStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("story_id", storyID).Msg("list participants")
		}
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}

	resp := ParticipantsResponse{StoryID: storyID, Participants: make([]proto.User, 0, len(members))}
	for i := range members {
		resp.Participants = append(resp.Participants, userFrom(&members[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// Comments handles GET /api/stories/:id/comments
func (h *APIHandlers) Comments(c *gin.Context) {
	storyID := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.hub.Authorize(ctx, identityFrom(c), storyID); err != nil {
		status, msg := gateStatus(err)
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}

	comments, err := h.comments.ListComments(ctx, storyID)
	if err != nil {
		h.log.Error().Err(err).Str("story_id", storyID).Msg("list comments")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list comments"})
		return
	}

	resp := CommentsResponse{StoryID: storyID, Comments: make([]proto.Comment, 0, len(comments))}
	for _, comment := range comments {
		resp.Comments = append(resp.Comments, commentFrom(comment))
	}
	c.JSON(http.StatusOK, resp)
}

// Presence handles GET /api/users/:id/presence
func (h *APIHandlers) Presence(c *gin.Context) {
	userID := c.Param("id")
	online, n, err := h.hub.UserPresence(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("user presence")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "try again later"})
		return
	}
	c.JSON(http.StatusOK, PresenceResponse{UserID: userID, Online: online, Connections: n})
}

// Notify handles POST /api/notifications
func (h *APIHandlers) Notify(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	delivered, err := h.hub.Notify(c.Request.Context(), req.UserID, core.Notification{
		Type:    req.Type,
		StoryID: req.StoryID,
		Message: req.Message,
	})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("notify user")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "try again later"})
		return
	}
	c.JSON(http.StatusOK, NotificationResponse{Delivered: delivered})
}

// Metrics handles GET /metrics
func (h *APIHandlers) Metrics(c *gin.Context) {
	points, err := h.metrics.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("collect metrics")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to collect metrics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": points})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
