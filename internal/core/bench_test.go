package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/vovakirdan/storyhub/internal/auth"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := newFakeStore()
	users := map[string]auth.Identity{"mentor-1": testUsers["mentor-1"]}
	for i := range recipients {
		id := fmt.Sprintf("reader-%d", i)
		users[id] = auth.Identity{UserID: id, Role: auth.RoleChild}
	}
	fs.stories["42"].IsPublic = true

	hub := NewHub(Deps{Verifier: &fakeVerifier{users: users}, Access: fs, Persistence: fs}, Options{})
	if err := hub.Start(ctx); err != nil {
		b.Fatalf("start hub: %v", err)
	}

	join := func(userID string) *Client {
		c, err := hub.Connect(ctx, userID)
		if err != nil {
			b.Fatalf("connect: %v", err)
		}
		c.Commands <- &Command{Kind: CommandJoinRoom, StoryID: "42"}
		for ev := range c.Events {
			if ev.Kind == EventRoomSnapshot {
				break
			}
		}
		return c
	}

	sender := join("mentor-1")
	go func() {
		for range sender.Events {
		}
	}()

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		clients = append(clients, join(fmt.Sprintf("reader-%d", i)))
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{
			Kind:       CommandTypingStart,
			StoryID:    "42",
			TypingKind: "comment",
		}
		for ev := range target.Events {
			if ev.Kind == EventUserTyping {
				break
			}
		}
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
