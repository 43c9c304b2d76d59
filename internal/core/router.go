package core

import (
	"context"
	"errors"
	"strings"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/metrics"
	"github.com/vovakirdan/storyhub/internal/store"
)

// route processes the client's commands one at a time until it is closed.
func (h *Hub) route(c *Client) {
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.Commands:
			if cmd != nil {
				h.handle(c, cmd)
			}
		}
	}
}

func (h *Hub) handle(c *Client, cmd *Command) {
	ctx := context.Background()

	id, ok, err := h.presence.Identity(ctx, c.ID)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Msg("load identity")
		h.replyError(ctx, c, cmd, coreError(ErrCodeUnavailable, "identity lookup failed"))
		return
	}
	if !ok {
		h.replyError(ctx, c, cmd, coreError(ErrCodeAuthenticationFailed, "connection is not registered"))
		return
	}

	switch cmd.Kind {
	case CommandJoinRoom:
		h.handleJoin(ctx, c, id, cmd)
	case CommandLeaveRoom:
		h.handleLeave(ctx, c, id, cmd)
	case CommandNewComment:
		h.handleNewComment(ctx, c, id, cmd)
	case CommandEditComment:
		h.handleEditComment(ctx, c, id, cmd)
	case CommandStoryUpdate:
		h.handleStoryUpdate(ctx, c, id, cmd)
	case CommandTypingStart, CommandTypingStop:
		h.handleTyping(ctx, c, id, cmd)
	default:
		h.replyError(ctx, c, cmd, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, id auth.Identity, cmd *Command) {
	joined, err := h.presence.IsJoined(ctx, c.ID, cmd.StoryID)
	if err != nil {
		h.replyError(ctx, c, cmd, coreError(ErrCodeUnavailable, "presence lookup failed"))
		return
	}
	if joined {
		h.replyError(ctx, c, cmd, coreError(ErrCodeAlreadyJoined, "already joined"))
		return
	}

	authCtx, cancel := context.WithTimeout(ctx, h.opts.JoinTimeout)
	story, err := h.gate.CanJoin(authCtx, id, cmd.StoryID)
	cancel()
	if err != nil {
		h.rejectJoin(ctx, c, id, cmd, err)
		return
	}

	lock := h.userLock(id.UserID)
	lock.Lock()
	// A concurrent disconnect of this connection wins: nothing to join for.
	if _, still, err := h.presence.Identity(ctx, c.ID); err != nil || !still {
		lock.Unlock()
		return
	}
	already, err := h.rooms.Join(ctx, cmd.StoryID, id.UserID)
	if err == nil {
		err = h.presence.SetJoined(ctx, c.ID, cmd.StoryID, true)
	}
	if err == nil && !already {
		// Presence events for a user go out under its lock, in state order.
		p := participantOf(id.UserID, id.DisplayName, string(id.Role))
		h.broadcast(ctx, cmd.StoryID, &Event{Kind: EventUserJoined, StoryID: cmd.StoryID, User: &p}, skipUser(id.UserID))
	}
	lock.Unlock()
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Str("story_id", cmd.StoryID).Msg("join room")
		h.replyError(ctx, c, cmd, coreError(ErrCodeUnavailable, "join failed"))
		return
	}

	h.metrics.Join(ctx, metrics.JoinAccepted)
	h.log.Info().Str("conn_id", c.ID).Str("user_id", id.UserID).Str("story_id", cmd.StoryID).
		Bool("second_device", already).Msg("joined room")

	participants, err := h.participants(ctx, cmd.StoryID, id.UserID)
	if err != nil {
		h.log.Warn().Err(err).Str("story_id", cmd.StoryID).Msg("build participants")
	}
	h.send(ctx, c, &Event{
		Kind:      EventRoomSnapshot,
		RequestID: cmd.RequestID,
		StoryID:   cmd.StoryID,
		Snapshot: &Snapshot{
			Content:      story.Content,
			UpdatedAt:    story.UpdatedAt,
			Participants: participants,
		},
	})
}

func (h *Hub) rejectJoin(ctx context.Context, c *Client, id auth.Identity, cmd *Command, err error) {
	var (
		result string
		cerr   *CoreError
	)
	switch {
	case errors.Is(err, store.ErrStoryNotFound):
		result, cerr = metrics.JoinNotFound, coreError(ErrCodeStoryNotFound, "story not found")
	case errors.Is(err, ErrAccessDenied):
		result, cerr = metrics.JoinDenied, coreError(ErrCodeAccessDenied, "access denied")
	default:
		result, cerr = metrics.JoinUnavailable, coreError(ErrCodeUnavailable, "authorization unavailable, retry later")
	}
	h.metrics.Join(ctx, result)
	h.log.Warn().Err(err).Str("conn_id", c.ID).Str("user_id", id.UserID).Str("story_id", cmd.StoryID).
		Str("event", cmd.Kind.String()).Msg("join rejected")
	h.replyError(ctx, c, cmd, cerr)
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, id auth.Identity, cmd *Command) {
	lock := h.userLock(id.UserID)
	lock.Lock()
	joined, err := h.presence.IsJoined(ctx, c.ID, cmd.StoryID)
	if err != nil || !joined {
		lock.Unlock()
		if err != nil {
			h.replyError(ctx, c, cmd, coreError(ErrCodeUnavailable, "presence lookup failed"))
		} else {
			h.replyError(ctx, c, cmd, coreError(ErrCodeNotInRoom, "not in room"))
		}
		return
	}

	left := false
	err = h.presence.SetJoined(ctx, c.ID, cmd.StoryID, false)
	if err == nil {
		var elsewhere bool
		elsewhere, err = h.presence.JoinedElsewhere(ctx, id.UserID, cmd.StoryID, c.ID)
		if err == nil && !elsewhere {
			_, err = h.rooms.Leave(ctx, cmd.StoryID, id.UserID)
			left = err == nil
		}
	}
	if left {
		h.broadcast(ctx, cmd.StoryID, &Event{
			Kind:    EventUserLeft,
			StoryID: cmd.StoryID,
			User:    &Participant{UserID: id.UserID},
		}, nil)
	}
	lock.Unlock()
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Str("story_id", cmd.StoryID).Msg("leave room")
		h.replyError(ctx, c, cmd, coreError(ErrCodeUnavailable, "leave failed"))
		return
	}
	h.ack(ctx, c, cmd)
}

// requireMember checks that the connection is Joined and the user is still a
// room member. A miss is a protocol violation.
func (h *Hub) requireMember(ctx context.Context, c *Client, id auth.Identity, cmd *Command) bool {
	joined, err := h.presence.IsJoined(ctx, c.ID, cmd.StoryID)
	if err == nil && joined {
		joined, err = h.rooms.IsMember(ctx, cmd.StoryID, id.UserID)
	}
	if err != nil {
		h.replyError(ctx, c, cmd, coreError(ErrCodeUnavailable, "membership lookup failed"))
		return false
	}
	if !joined {
		h.violation(ctx, c, id, cmd, coreError(ErrCodeNotInRoom, "not in room"))
		return false
	}
	return true
}

// moderate runs mentor content through the moderator. Admins bypass it.
func (h *Hub) moderate(ctx context.Context, c *Client, id auth.Identity, cmd *Command) (string, bool) {
	content := strings.TrimSpace(cmd.Content)
	if id.IsAdmin() {
		if content == "" {
			h.replyError(ctx, c, cmd, coreError(ErrCodeBadRequest, "content is required"))
			return "", false
		}
		return content, true
	}

	verdict, err := h.moderator.ModerateComment(ctx, content)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Msg("moderation")
		h.replyError(ctx, c, cmd, coreError(ErrCodeUnavailable, "moderation unavailable"))
		return "", false
	}
	if !verdict.Accepted {
		h.log.Info().Str("conn_id", c.ID).Str("user_id", id.UserID).Strs("reasons", verdict.Reasons).Msg("comment rejected by moderation")
		h.replyError(ctx, c, cmd, &CoreError{
			Code:    ErrCodeModerationRejected,
			Message: "comment rejected by moderation",
			Reasons: verdict.Reasons,
		})
		return "", false
	}
	return verdict.Content, true
}

func (h *Hub) handleNewComment(ctx context.Context, c *Client, id auth.Identity, cmd *Command) {
	if !id.CanComment() {
		h.violation(ctx, c, id, cmd, coreError(ErrCodePermissionDenied, "only mentors and admins can comment"))
		return
	}
	if !h.requireMember(ctx, c, id, cmd) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.CollaboratorTimeout)
	defer cancel()

	content, ok := h.moderate(ctx, c, id, cmd)
	if !ok {
		return
	}

	comment := &store.Comment{
		StoryID:    cmd.StoryID,
		AuthorID:   id.UserID,
		AuthorName: id.DisplayName,
		AuthorRole: string(id.Role),
		Content:    content,
		Highlight:  cmd.Highlight,
	}
	if err := h.persistence.SaveComment(ctx, comment); err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Str("story_id", cmd.StoryID).Msg("persist comment")
		h.replyError(ctx, c, cmd, persistenceError(err))
		return
	}

	ev := &Event{Kind: EventNewComment, StoryID: cmd.StoryID, Comment: comment}
	h.broadcast(ctx, cmd.StoryID, ev, skipConn(c.ID))
	h.notifyAuthor(ctx, id, comment)
	h.send(ctx, c, ev.withRequest(cmd.RequestID))
}

// notifyAuthor reaches a story author who is not watching the room: live
// connections get a notification, otherwise the offline notifier takes over.
func (h *Hub) notifyAuthor(ctx context.Context, from auth.Identity, comment *store.Comment) {
	story, err := h.access.GetStory(ctx, comment.StoryID)
	if err != nil {
		h.log.Warn().Err(err).Str("story_id", comment.StoryID).Msg("lookup story author")
		return
	}
	if story.AuthorID == from.UserID {
		return
	}

	conns, err := h.presence.ConnectionsFor(ctx, story.AuthorID)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", story.AuthorID).Msg("lookup author connections")
		return
	}
	for _, connID := range conns {
		if joined, err := h.presence.IsJoined(ctx, connID, comment.StoryID); err == nil && joined {
			return
		}
	}

	n := Notification{
		Type:    "new_comment",
		StoryID: comment.StoryID,
		Message: from.DisplayName + " commented on your story",
		Comment: comment,
	}
	if len(conns) == 0 {
		h.notifier.NotifyOffline(context.WithoutCancel(ctx), story.AuthorID, n)
		return
	}
	h.metrics.Broadcast(ctx, EventNotification.String())
	h.fanOut(ctx, conns, &Event{Kind: EventNotification, StoryID: comment.StoryID, Notification: &n})
}

func (h *Hub) handleEditComment(ctx context.Context, c *Client, id auth.Identity, cmd *Command) {
	if !id.CanComment() {
		h.violation(ctx, c, id, cmd, coreError(ErrCodePermissionDenied, "only mentors and admins can edit comments"))
		return
	}
	if !h.requireMember(ctx, c, id, cmd) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.CollaboratorTimeout)
	defer cancel()

	content, ok := h.moderate(ctx, c, id, cmd)
	if !ok {
		return
	}

	comment, err := h.persistence.UpdateComment(ctx, cmd.StoryID, cmd.CommentID, id.UserID, content, id.IsAdmin())
	if err != nil {
		h.log.Warn().Err(err).Str("conn_id", c.ID).Str("comment_id", cmd.CommentID).Msg("update comment")
		h.replyError(ctx, c, cmd, persistenceError(err))
		return
	}

	ev := &Event{
		Kind:      EventCommentUpdated,
		StoryID:   cmd.StoryID,
		Comment:   comment,
		Content:   comment.Content,
		UpdatedAt: comment.UpdatedAt,
	}
	h.broadcast(ctx, cmd.StoryID, ev, skipConn(c.ID))
	h.send(ctx, c, ev.withRequest(cmd.RequestID))
}

func (h *Hub) handleStoryUpdate(ctx context.Context, c *Client, id auth.Identity, cmd *Command) {
	if !h.requireMember(ctx, c, id, cmd) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.CollaboratorTimeout)
	defer cancel()

	story, err := h.access.GetStory(ctx, cmd.StoryID)
	if err != nil {
		h.replyError(ctx, c, cmd, persistenceError(err))
		return
	}
	if story.AuthorID != id.UserID {
		h.violation(ctx, c, id, cmd, coreError(ErrCodePermissionDenied, "only the author can edit the story"))
		return
	}

	updatedAt, err := h.persistence.UpdateStoryContent(ctx, cmd.StoryID, cmd.Content)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Str("story_id", cmd.StoryID).Msg("persist story edit")
		h.replyError(ctx, c, cmd, persistenceError(err))
		return
	}

	h.broadcast(ctx, cmd.StoryID, &Event{
		Kind:      EventStoryUpdated,
		StoryID:   cmd.StoryID,
		User:      &Participant{UserID: id.UserID, Name: id.DisplayName, Role: string(id.Role)},
		Content:   cmd.Content,
		UpdatedAt: updatedAt,
	}, skipConn(c.ID))
	h.ack(ctx, c, cmd)
}

// handleTyping forwards typing signals. Signals for rooms the sender is not
// in, or that no longer exist, are dropped without a reply.
func (h *Hub) handleTyping(ctx context.Context, c *Client, id auth.Identity, cmd *Command) {
	joined, err := h.presence.IsJoined(ctx, c.ID, cmd.StoryID)
	if err == nil && joined {
		joined, err = h.rooms.IsMember(ctx, cmd.StoryID, id.UserID)
	}
	if err != nil || !joined {
		h.log.Debug().Str("conn_id", c.ID).Str("story_id", cmd.StoryID).Msg("typing signal dropped")
		return
	}

	kind := EventUserTyping
	if cmd.Kind == CommandTypingStop {
		kind = EventUserStoppedTyping
	}
	p := participantOf(id.UserID, id.DisplayName, string(id.Role))
	h.broadcast(ctx, cmd.StoryID, &Event{
		Kind:       kind,
		StoryID:    cmd.StoryID,
		User:       &p,
		TypingKind: cmd.TypingKind,
	}, skipUser(id.UserID))
}

func (h *Hub) ack(ctx context.Context, c *Client, cmd *Command) {
	h.send(ctx, c, &Event{Kind: EventAck, RequestID: cmd.RequestID, StoryID: cmd.StoryID, Op: cmd.Kind.String()})
}

func (h *Hub) replyError(ctx context.Context, c *Client, cmd *Command, cerr *CoreError) {
	h.send(ctx, c, &Event{Kind: EventError, RequestID: cmd.RequestID, StoryID: cmd.StoryID, Error: cerr})
}

// violation reports cerr to the sender, logs a security event and closes the
// connection once it reaches the configured limit.
func (h *Hub) violation(ctx context.Context, c *Client, id auth.Identity, cmd *Command, cerr *CoreError) {
	n := c.violations.Add(1)
	h.metrics.Violation(ctx)
	h.log.Warn().
		Str("conn_id", c.ID).
		Str("user_id", id.UserID).
		Str("role", string(id.Role)).
		Str("story_id", cmd.StoryID).
		Str("event", cmd.Kind.String()).
		Str("code", cerr.Code).
		Int32("violations", n).
		Msg("protocol violation")
	h.replyError(ctx, c, cmd, cerr)

	if h.opts.MaxViolations > 0 && int(n) >= h.opts.MaxViolations {
		h.log.Warn().Str("conn_id", c.ID).Str("user_id", id.UserID).Msg("closing connection after repeated violations")
		c.kicked.Store(true)
		c.close()
	}
}

func persistenceError(err error) *CoreError {
	switch {
	case errors.Is(err, store.ErrStoryNotFound):
		return coreError(ErrCodeStoryNotFound, "story not found")
	case errors.Is(err, store.ErrCommentNotFound):
		return coreError(ErrCodeCommentNotFound, "comment not found")
	case errors.Is(err, store.ErrNotCommentAuthor):
		return coreError(ErrCodePermissionDenied, "only the comment author can edit it")
	case errors.Is(err, context.DeadlineExceeded):
		return coreError(ErrCodeUnavailable, "storage timed out")
	default:
		return coreError(ErrCodePersistenceFailed, "could not save, retry later")
	}
}
