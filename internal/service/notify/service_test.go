package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/core"
)

func TestWebhookDeliversInOrder(t *testing.T) {
	got := make(chan Payload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request: %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	w := NewWebhook(srv.URL, WebhookOptions{}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	w.NotifyOffline(ctx, "child-1", core.Notification{Type: "new_comment", StoryID: "42"})
	w.NotifyOffline(ctx, "child-2", core.Notification{Type: "badge"})

	for _, want := range []string{"child-1", "child-2"} {
		select {
		case p := <-got:
			if p.UserID != want {
				t.Fatalf("got payload for %s, want %s", p.UserID, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("webhook not called for %s", want)
		}
	}
}

func TestWebhookDropsWhenQueueFull(t *testing.T) {
	logger := zerolog.Nop()
	w := NewWebhook("http://127.0.0.1:1", WebhookOptions{QueueSize: 1}, &logger)

	done := make(chan struct{})
	go func() {
		w.NotifyOffline(context.Background(), "a", core.Notification{})
		w.NotifyOffline(context.Background(), "b", core.Notification{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("NotifyOffline blocked on a full queue")
	}
	if len(w.queue) != 1 {
		t.Fatalf("expected one queued notification, got %d", len(w.queue))
	}
}
