package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/store"
)

// Connect authenticates token, registers the new connection and starts its
// router. A failed verification creates no state.
func (h *Hub) Connect(ctx context.Context, token string) (*Client, error) {
	id, err := h.Verify(ctx, token)
	if err != nil {
		h.log.Warn().Err(err).Msg("connection rejected")
		return nil, err
	}
	return h.connect(ctx, id)
}

func (h *Hub) connect(ctx context.Context, id auth.Identity) (*Client, error) {
	c := NewClient(uuid.NewString(), id.UserID)

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	if err := h.presence.Register(ctx, c.ID, id); err != nil {
		h.mu.Lock()
		delete(h.clients, c.ID)
		h.mu.Unlock()
		return nil, fmt.Errorf("register presence: %w", err)
	}

	h.metrics.ConnectionOpened(ctx)
	h.log.Info().Str("conn_id", c.ID).Str("user_id", id.UserID).Str("role", string(id.Role)).Msg("client connected")

	p := participantOf(id.UserID, id.DisplayName, string(id.Role))
	h.send(ctx, c, &Event{Kind: EventConnected, ConnID: c.ID, User: &p})

	go h.route(c)
	return c, nil
}

// Disconnect tears down the connection. When it was the user's last one the
// user leaves every room and each room hears one user_left. Cleanup ignores
// cancellation of ctx.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	ctx = context.WithoutCancel(ctx)
	c.close()

	h.mu.Lock()
	_, known := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()
	if !known {
		return
	}
	h.metrics.ConnectionClosed(ctx)

	lock := h.userLock(c.UserID)
	lock.Lock()
	userID, last, err := h.presence.Unregister(ctx, c.ID)
	if err != nil {
		lock.Unlock()
		h.log.Error().Err(err).Str("conn_id", c.ID).Msg("unregister presence")
		return
	}
	if !last {
		lock.Unlock()
		h.log.Info().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("client disconnected")
		return
	}
	stories, err := h.rooms.RemoveUserFromAllRooms(ctx, userID)
	if err != nil {
		lock.Unlock()
		h.log.Error().Err(err).Str("user_id", userID).Msg("remove user from rooms")
		return
	}
	for _, storyID := range stories {
		h.broadcast(ctx, storyID, &Event{
			Kind:    EventUserLeft,
			StoryID: storyID,
			User:    &Participant{UserID: userID},
		}, nil)
	}
	lock.Unlock()

	h.log.Info().Str("conn_id", c.ID).Str("user_id", userID).Int("rooms", len(stories)).Msg("user went offline")
}

// Notify sends n to every live connection of userID, or hands it to the
// offline notifier. It reports whether a live delivery was attempted.
func (h *Hub) Notify(ctx context.Context, userID string, n Notification) (bool, error) {
	conns, err := h.presence.ConnectionsFor(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("user connections: %w", err)
	}
	if len(conns) == 0 {
		h.notifier.NotifyOffline(ctx, userID, n)
		return false, nil
	}
	h.metrics.Broadcast(ctx, EventNotification.String())
	h.fanOut(ctx, conns, &Event{Kind: EventNotification, StoryID: n.StoryID, Notification: &n})
	return true, nil
}

// Authorize applies the join rules to a request made outside a connection.
func (h *Hub) Authorize(ctx context.Context, id auth.Identity, storyID string) (*store.Story, error) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.JoinTimeout)
	defer cancel()
	return h.gate.CanJoin(ctx, id, storyID)
}

// Participants returns the members of a story room if id may join it.
func (h *Hub) Participants(ctx context.Context, id auth.Identity, storyID string) ([]Participant, error) {
	if _, err := h.Authorize(ctx, id, storyID); err != nil {
		return nil, err
	}
	return h.participants(ctx, storyID, "")
}

// UserPresence reports whether userID is online and with how many connections.
func (h *Hub) UserPresence(ctx context.Context, userID string) (bool, int, error) {
	conns, err := h.presence.ConnectionsFor(ctx, userID)
	if err != nil {
		return false, 0, fmt.Errorf("user connections: %w", err)
	}
	return len(conns) > 0, len(conns), nil
}

// Verify exposes the identity verifier to transports that authenticate
// requests outside a connection.
func (h *Hub) Verify(ctx context.Context, token string) (auth.Identity, error) {
	id, err := h.verifier.VerifyCredential(ctx, token)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	return id, nil
}
