package memory

import (
	"context"
	"sync"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/state"
)

type connEntry struct {
	identity auth.Identity
	joined   map[string]struct{}
}

// Presence is the single-instance presence registry.
type Presence struct {
	mu    sync.RWMutex
	conns map[string]*connEntry          // connID -> entry
	users map[string]map[string]struct{} // userID -> connIDs
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		conns: make(map[string]*connEntry),
		users: make(map[string]map[string]struct{}),
	}
}

var _ state.Presence = (*Presence)(nil)

func (p *Presence) Register(_ context.Context, connID string, id auth.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.conns[connID]; exists {
		return nil
	}
	p.conns[connID] = &connEntry{identity: id, joined: make(map[string]struct{})}
	if p.users[id.UserID] == nil {
		p.users[id.UserID] = make(map[string]struct{})
	}
	p.users[id.UserID][connID] = struct{}{}
	return nil
}

func (p *Presence) Unregister(_ context.Context, connID string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.conns[connID]
	if !ok {
		return "", false, nil
	}
	delete(p.conns, connID)

	userID := entry.identity.UserID
	conns := p.users[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(p.users, userID)
		return userID, true, nil
	}
	return userID, false, nil
}

func (p *Presence) Identity(_ context.Context, connID string) (auth.Identity, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.conns[connID]
	if !ok {
		return auth.Identity{}, false, nil
	}
	return entry.identity, true, nil
}

func (p *Presence) UserIdentity(_ context.Context, userID string) (auth.Identity, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for connID := range p.users[userID] {
		return p.conns[connID].identity, true, nil
	}
	return auth.Identity{}, false, nil
}

func (p *Presence) IsOnline(_ context.Context, userID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userID]) > 0, nil
}

func (p *Presence) ConnectionsFor(_ context.Context, userID string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := p.users[userID]
	if len(conns) == 0 {
		return nil, nil
	}
	result := make([]string, 0, len(conns))
	for connID := range conns {
		result = append(result, connID)
	}
	return result, nil
}

func (p *Presence) SetJoined(_ context.Context, connID, storyID string, joined bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.conns[connID]
	if !ok {
		return nil
	}
	if joined {
		entry.joined[storyID] = struct{}{}
	} else {
		delete(entry.joined, storyID)
	}
	return nil
}

func (p *Presence) IsJoined(_ context.Context, connID, storyID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.conns[connID]
	if !ok {
		return false, nil
	}
	_, joined := entry.joined[storyID]
	return joined, nil
}

func (p *Presence) JoinedElsewhere(_ context.Context, userID, storyID, exceptConnID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for connID := range p.users[userID] {
		if connID == exceptConnID {
			continue
		}
		if _, joined := p.conns[connID].joined[storyID]; joined {
			return true, nil
		}
	}
	return false, nil
}
