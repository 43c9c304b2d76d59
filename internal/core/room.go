package core

import (
	"context"
	"fmt"
	"sort"
)

// roomConnections lists the connections that are Joined to storyID, skipping
// those for which skip returns true. A member with no joined connection gets nothing.
func (h *Hub) roomConnections(ctx context.Context, storyID string, skip func(userID, connID string) bool) ([]string, error) {
	members, err := h.rooms.MembersOf(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("room members: %w", err)
	}

	var out []string
	for _, userID := range members {
		conns, err := h.presence.ConnectionsFor(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("user connections: %w", err)
		}
		for _, connID := range conns {
			if skip != nil && skip(userID, connID) {
				continue
			}
			joined, err := h.presence.IsJoined(ctx, connID, storyID)
			if err != nil {
				return nil, fmt.Errorf("joined flag: %w", err)
			}
			if joined {
				out = append(out, connID)
			}
		}
	}
	return out, nil
}

// broadcast fans ev out to the room. Failures only cost deliveries.
func (h *Hub) broadcast(ctx context.Context, storyID string, ev *Event, skip func(userID, connID string) bool) {
	recipients, err := h.roomConnections(ctx, storyID, skip)
	if err != nil {
		h.log.Warn().Err(err).Str("story_id", storyID).Str("event", ev.Kind.String()).Msg("resolve room recipients")
		return
	}
	h.metrics.Broadcast(ctx, ev.Kind.String())
	h.fanOut(ctx, recipients, ev)
}

func skipUser(userID string) func(string, string) bool {
	return func(u, _ string) bool { return u == userID }
}

func skipConn(connID string) func(string, string) bool {
	return func(_, c string) bool { return c == connID }
}

// participants describes the room's members, except the given user.
func (h *Hub) participants(ctx context.Context, storyID, exceptUserID string) ([]Participant, error) {
	members, err := h.rooms.MembersOf(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("room members: %w", err)
	}
	sort.Strings(members)

	out := make([]Participant, 0, len(members))
	for _, userID := range members {
		if userID == exceptUserID {
			continue
		}
		p := Participant{UserID: userID, Name: userID}
		id, ok, err := h.presence.UserIdentity(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("member identity: %w", err)
		}
		if ok {
			p = participantOf(id.UserID, id.DisplayName, string(id.Role))
		}
		out = append(out, p)
	}
	return out, nil
}

func participantOf(userID, name, role string) Participant {
	if name == "" {
		name = userID
	}
	return Participant{UserID: userID, Name: name, Role: role}
}
