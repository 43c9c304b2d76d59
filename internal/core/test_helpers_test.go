package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/state"
	"github.com/vovakirdan/storyhub/internal/state/memory"
	"github.com/vovakirdan/storyhub/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind shows up on ch within a short window.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

// fakeVerifier accepts tokens equal to a known user id.
type fakeVerifier struct {
	users map[string]auth.Identity
}

func (v *fakeVerifier) VerifyCredential(_ context.Context, token string) (auth.Identity, error) {
	id, ok := v.users[token]
	if !ok {
		return auth.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

// fakeStore implements StoryAccess and Persistence in memory.
type fakeStore struct {
	mu          sync.Mutex
	stories     map[string]*store.Story
	assignments map[string]string // mentor -> child
	comments    map[string]*store.Comment
	seq         int

	failSave  bool
	blockRead chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stories: map[string]*store.Story{
			"42": {ID: "42", AuthorID: "child-1", Title: "Dragon", Content: "Once upon a time", UpdatedAt: time.Unix(100, 0)},
			"7":  {ID: "7", AuthorID: "child-2", Title: "Sea", Content: "Waves", IsPublic: true, UpdatedAt: time.Unix(200, 0)},
		},
		assignments: map[string]string{"mentor-1": "child-1"},
		comments:    make(map[string]*store.Comment),
	}
}

func (s *fakeStore) GetStory(ctx context.Context, id string) (*store.Story, error) {
	if s.blockRead != nil {
		select {
		case <-s.blockRead:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[id]
	if !ok {
		return nil, store.ErrStoryNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *fakeStore) IsMentorAssigned(_ context.Context, mentorID, childID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignments[mentorID] == childID, nil
}

func (s *fakeStore) SaveComment(_ context.Context, c *store.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("disk full")
	}
	s.seq++
	c.ID = fmt.Sprintf("cm-%d", s.seq)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.comments[c.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateComment(_ context.Context, storyID, commentID, editorID, content string, asAdmin bool) (*store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok || c.StoryID != storyID {
		return nil, store.ErrCommentNotFound
	}
	if !asAdmin && c.AuthorID != editorID {
		return nil, store.ErrNotCommentAuthor
	}
	c.Content = content
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

func (s *fakeStore) UpdateStoryContent(_ context.Context, id, content string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[id]
	if !ok {
		return time.Time{}, store.ErrStoryNotFound
	}
	st.Content = content
	st.UpdatedAt = time.Now()
	return st.UpdatedAt, nil
}

func (s *fakeStore) commentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.comments)
}

type blockWords struct{ word string }

func (m blockWords) ModerateComment(_ context.Context, content string) (Verdict, error) {
	if m.word != "" && content == m.word {
		return Verdict{Reasons: []string{"contains blocked word: " + m.word}}, nil
	}
	return Verdict{Accepted: true, Content: content}, nil
}

type offlineCall struct {
	userID string
	n      Notification
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []offlineCall
}

func (r *recordingNotifier) NotifyOffline(_ context.Context, userID string, n Notification) {
	r.mu.Lock()
	r.calls = append(r.calls, offlineCall{userID, n})
	r.mu.Unlock()
}

func (r *recordingNotifier) snapshot() []offlineCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]offlineCall(nil), r.calls...)
}

var testUsers = map[string]auth.Identity{
	"mentor-1": {UserID: "mentor-1", DisplayName: "Maya", Role: auth.RoleMentor, Age: 34},
	"mentor-2": {UserID: "mentor-2", DisplayName: "Marco", Role: auth.RoleMentor, Age: 41},
	"child-1":  {UserID: "child-1", DisplayName: "Cleo", Role: auth.RoleChild, Age: 10},
	"child-2":  {UserID: "child-2", DisplayName: "Caleb", Role: auth.RoleChild, Age: 9},
	"admin-1":  {UserID: "admin-1", DisplayName: "Ada", Role: auth.RoleAdmin, Age: 50},
}

type testEnv struct {
	hub      *Hub
	store    *fakeStore
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, opts Options, customize func(*Deps)) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := &testEnv{store: newFakeStore(), notifier: &recordingNotifier{}}
	deps := Deps{
		Verifier:    &fakeVerifier{users: testUsers},
		Access:      env.store,
		Persistence: env.store,
		Moderator:   blockWords{word: "badword"},
		Notifier:    env.notifier,
	}
	if customize != nil {
		customize(&deps)
	}
	env.hub = NewHub(deps, opts)
	if err := env.hub.Start(ctx); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	return env
}

func (e *testEnv) connect(t *testing.T, userID string) *Client {
	t.Helper()
	c, err := e.hub.Connect(context.Background(), userID)
	if err != nil {
		t.Fatalf("connect %s: %v", userID, err)
	}
	mustEvent(t, c.Events, EventConnected)
	t.Cleanup(func() { e.hub.Disconnect(context.Background(), c) })
	return c
}

func (e *testEnv) join(t *testing.T, c *Client, storyID string) *Event {
	t.Helper()
	c.Commands <- &Command{Kind: CommandJoinRoom, StoryID: storyID, RequestID: "join-" + storyID}
	return mustEvent(t, c.Events, EventRoomSnapshot)
}

func (e *testEnv) members(t *testing.T, storyID string) []string {
	t.Helper()
	members, err := e.hub.rooms.MembersOf(context.Background(), storyID)
	if err != nil {
		t.Fatalf("members of %s: %v", storyID, err)
	}
	return members
}

// stallingRooms parks the first MembersOf call after arm until release is closed.
type stallingRooms struct {
	state.Rooms
	armed   atomic.Bool
	stalled chan struct{}
	release chan struct{}
}

func newStallingRooms() *stallingRooms {
	return &stallingRooms{
		Rooms:   memory.NewRooms(),
		stalled: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (r *stallingRooms) arm() { r.armed.Store(true) }

func (r *stallingRooms) MembersOf(ctx context.Context, storyID string) ([]string, error) {
	if r.armed.CompareAndSwap(true, false) {
		close(r.stalled)
		<-r.release
	}
	return r.Rooms.MembersOf(ctx, storyID)
}

// nextPresence returns the next userJoined or userLeft event on ch.
func nextPresence(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev != nil && (ev.Kind == EventUserJoined || ev.Kind == EventUserLeft) {
				return ev
			}
		case <-deadline:
			t.Fatalf("no presence event received")
			return nil
		}
	}
}
