// Package statetest holds behaviour checks shared by every state backend.
package statetest

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/state"
)

// RunPresence exercises a Presence implementation. newPresence must return an empty registry.
func RunPresence(t *testing.T, newPresence func(t *testing.T) state.Presence) {
	t.Run("register is idempotent", func(t *testing.T) {
		p := newPresence(t)
		ctx := context.Background()
		alice := auth.Identity{UserID: "u1", DisplayName: "Alice", Role: auth.RoleChild}

		mustNoErr(t, p.Register(ctx, "c1", alice))
		mustNoErr(t, p.Register(ctx, "c1", alice))

		conns, err := p.ConnectionsFor(ctx, "u1")
		mustNoErr(t, err)
		if len(conns) != 1 || conns[0] != "c1" {
			t.Fatalf("expected [c1], got %v", conns)
		}

		id, ok, err := p.Identity(ctx, "c1")
		mustNoErr(t, err)
		if !ok || id != alice {
			t.Fatalf("unexpected identity: %+v ok=%v", id, ok)
		}
	})

	t.Run("unregister reports last connection", func(t *testing.T) {
		p := newPresence(t)
		ctx := context.Background()
		alice := auth.Identity{UserID: "u1", DisplayName: "Alice", Role: auth.RoleChild}

		mustNoErr(t, p.Register(ctx, "phone", alice))
		mustNoErr(t, p.Register(ctx, "laptop", alice))

		userID, last, err := p.Unregister(ctx, "phone")
		mustNoErr(t, err)
		if last || userID != "u1" {
			t.Fatalf("expected user still online, got user=%q last=%v", userID, last)
		}
		if online, _ := p.IsOnline(ctx, "u1"); !online {
			t.Fatalf("expected u1 online")
		}

		userID, last, err = p.Unregister(ctx, "laptop")
		mustNoErr(t, err)
		if !last || userID != "u1" {
			t.Fatalf("expected last connection gone, got user=%q last=%v", userID, last)
		}
		if online, _ := p.IsOnline(ctx, "u1"); online {
			t.Fatalf("expected u1 offline")
		}
		if _, ok, _ := p.UserIdentity(ctx, "u1"); ok {
			t.Fatalf("expected no identity for offline user")
		}

		userID, last, err = p.Unregister(ctx, "laptop")
		mustNoErr(t, err)
		if last || userID != "" {
			t.Fatalf("expected unknown connection to be ignored, got user=%q last=%v", userID, last)
		}
	})

	t.Run("joined flags are per connection", func(t *testing.T) {
		p := newPresence(t)
		ctx := context.Background()
		alice := auth.Identity{UserID: "u1", DisplayName: "Alice", Role: auth.RoleChild}

		mustNoErr(t, p.Register(ctx, "phone", alice))
		mustNoErr(t, p.Register(ctx, "laptop", alice))
		mustNoErr(t, p.SetJoined(ctx, "phone", "42", true))

		if joined, _ := p.IsJoined(ctx, "phone", "42"); !joined {
			t.Fatalf("expected phone joined")
		}
		if joined, _ := p.IsJoined(ctx, "laptop", "42"); joined {
			t.Fatalf("expected laptop not joined")
		}
		if elsewhere, _ := p.JoinedElsewhere(ctx, "u1", "42", "laptop"); !elsewhere {
			t.Fatalf("expected phone to count as joined elsewhere")
		}
		if elsewhere, _ := p.JoinedElsewhere(ctx, "u1", "42", "phone"); elsewhere {
			t.Fatalf("expected no other joined connection")
		}

		mustNoErr(t, p.SetJoined(ctx, "phone", "42", false))
		if joined, _ := p.IsJoined(ctx, "phone", "42"); joined {
			t.Fatalf("expected phone left")
		}

		mustNoErr(t, p.SetJoined(ctx, "ghost", "42", true))
		if joined, _ := p.IsJoined(ctx, "ghost", "42"); joined {
			t.Fatalf("unregistered connection must not become joined")
		}
	})

	t.Run("concurrent register and unregister", func(t *testing.T) {
		p := newPresence(t)
		ctx := context.Background()
		alice := auth.Identity{UserID: "u1", Role: auth.RoleChild}

		const n = 32
		conns := make([]string, n)
		for i := range conns {
			conns[i] = "c" + string(rune('A'+i))
		}

		var wg sync.WaitGroup
		for _, c := range conns {
			wg.Add(1)
			go func(connID string) {
				defer wg.Done()
				_ = p.Register(ctx, connID, alice)
			}(c)
		}
		wg.Wait()

		var lastCount int
		var mu sync.Mutex
		for _, c := range conns {
			wg.Add(1)
			go func(connID string) {
				defer wg.Done()
				_, last, err := p.Unregister(ctx, connID)
				if err == nil && last {
					mu.Lock()
					lastCount++
					mu.Unlock()
				}
			}(c)
		}
		wg.Wait()

		if lastCount != 1 {
			t.Fatalf("expected exactly one last-connection signal, got %d", lastCount)
		}
	})
}

// RunRooms exercises a Rooms implementation. newRooms must return an empty table.
func RunRooms(t *testing.T, newRooms func(t *testing.T) state.Rooms) {
	t.Run("join reports existing membership", func(t *testing.T) {
		r := newRooms(t)
		ctx := context.Background()

		already, err := r.Join(ctx, "42", "u1")
		mustNoErr(t, err)
		if already {
			t.Fatalf("first join must not be already member")
		}
		already, err = r.Join(ctx, "42", "u1")
		mustNoErr(t, err)
		if !already {
			t.Fatalf("second join must report already member")
		}

		members, err := r.MembersOf(ctx, "42")
		mustNoErr(t, err)
		if len(members) != 1 || members[0] != "u1" {
			t.Fatalf("expected [u1], got %v", members)
		}
	})

	t.Run("leave deletes empty room", func(t *testing.T) {
		r := newRooms(t)
		ctx := context.Background()

		_, _ = r.Join(ctx, "42", "u1")
		_, _ = r.Join(ctx, "42", "u2")

		empty, err := r.Leave(ctx, "42", "u1")
		mustNoErr(t, err)
		if empty {
			t.Fatalf("room still has u2")
		}
		if ok, _ := r.IsMember(ctx, "42", "u1"); ok {
			t.Fatalf("u1 should have left")
		}

		empty, err = r.Leave(ctx, "42", "u2")
		mustNoErr(t, err)
		if !empty {
			t.Fatalf("expected room to be empty")
		}
		members, _ := r.MembersOf(ctx, "42")
		if len(members) != 0 {
			t.Fatalf("expected no members, got %v", members)
		}

		empty, err = r.Leave(ctx, "missing", "u1")
		mustNoErr(t, err)
		if !empty {
			t.Fatalf("leaving an unknown room reports empty")
		}
	})

	t.Run("remove user from all rooms", func(t *testing.T) {
		r := newRooms(t)
		ctx := context.Background()

		_, _ = r.Join(ctx, "42", "u1")
		_, _ = r.Join(ctx, "7", "u1")
		_, _ = r.Join(ctx, "7", "u2")

		stories, err := r.RemoveUserFromAllRooms(ctx, "u1")
		mustNoErr(t, err)
		slices.Sort(stories)
		if !slices.Equal(stories, []string{"42", "7"}) {
			t.Fatalf("expected [42 7], got %v", stories)
		}

		if ok, _ := r.IsMember(ctx, "7", "u1"); ok {
			t.Fatalf("u1 still in room 7")
		}
		if ok, _ := r.IsMember(ctx, "7", "u2"); !ok {
			t.Fatalf("u2 should remain in room 7")
		}

		stories, err = r.RemoveUserFromAllRooms(ctx, "u1")
		mustNoErr(t, err)
		if len(stories) != 0 {
			t.Fatalf("expected no rooms on second removal, got %v", stories)
		}
	})

	t.Run("concurrent joins count once", func(t *testing.T) {
		r := newRooms(t)
		ctx := context.Background()

		const n = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				already, err := r.Join(ctx, "42", "u1")
				if err == nil && !already {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if fresh != 1 {
			t.Fatalf("expected exactly one fresh join, got %d", fresh)
		}
	})
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
