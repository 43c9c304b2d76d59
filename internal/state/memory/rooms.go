package memory

import (
	"context"
	"sync"

	"github.com/vovakirdan/storyhub/internal/state"
)

// Rooms tracks membership with a forward (story -> users) and a reverse
// (user -> stories) index so full disconnects touch only the user's rooms.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
	users map[string]map[string]struct{}
}

// NewRooms creates an empty membership table.
func NewRooms() *Rooms {
	return &Rooms{
		rooms: make(map[string]map[string]struct{}),
		users: make(map[string]map[string]struct{}),
	}
}

var _ state.Rooms = (*Rooms)(nil)

func (r *Rooms) Join(_ context.Context, storyID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[storyID]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[storyID] = members
	}
	if _, exists := members[userID]; exists {
		return true, nil
	}
	members[userID] = struct{}{}

	if r.users[userID] == nil {
		r.users[userID] = make(map[string]struct{})
	}
	r.users[userID][storyID] = struct{}{}
	return false, nil
}

func (r *Rooms) Leave(_ context.Context, storyID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(storyID, userID)
	return len(r.rooms[storyID]) == 0, nil
}

func (r *Rooms) MembersOf(_ context.Context, storyID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[storyID]
	if len(members) == 0 {
		return nil, nil
	}
	result := make([]string, 0, len(members))
	for userID := range members {
		result = append(result, userID)
	}
	return result, nil
}

func (r *Rooms) IsMember(_ context.Context, storyID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[storyID][userID]
	return ok, nil
}

func (r *Rooms) RemoveUserFromAllRooms(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stories, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	affected := make([]string, 0, len(stories))
	for storyID := range stories {
		affected = append(affected, storyID)
	}
	for _, storyID := range affected {
		r.removeLocked(storyID, userID)
	}
	return affected, nil
}

func (r *Rooms) removeLocked(storyID, userID string) {
	if members, ok := r.rooms[storyID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, storyID)
		}
	}
	if stories, ok := r.users[userID]; ok {
		delete(stories, storyID)
		if len(stories) == 0 {
			delete(r.users, userID)
		}
	}
}
