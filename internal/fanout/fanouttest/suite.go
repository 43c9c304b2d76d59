// Package fanouttest holds behaviour checks shared by every bus.
package fanouttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/storyhub/internal/fanout"
)

type recorder struct {
	mu   sync.Mutex
	got  []fanout.Envelope
	wake chan struct{}
}

func newRecorder() *recorder {
	return &recorder{wake: make(chan struct{}, 1)}
}

func (r *recorder) handle(env fanout.Envelope) {
	r.mu.Lock()
	r.got = append(r.got, env)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *recorder) waitFor(t *testing.T, n int) []fanout.Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		r.mu.Lock()
		if len(r.got) >= n {
			out := append([]fanout.Envelope(nil), r.got...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-r.wake:
		case <-deadline:
			t.Fatalf("expected %d envelopes, got %d", n, len(r.got))
		}
	}
}

// Run exercises a Bus. newBus is called twice to get two instances sharing
// the same transport.
func Run(t *testing.T, newBus func(t *testing.T) fanout.Bus) {
	t.Run("every instance receives in order", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pub := newBus(t)
		sub := newBus(t)

		first, second := newRecorder(), newRecorder()
		if err := pub.Subscribe(ctx, first.handle); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if err := sub.Subscribe(ctx, second.handle); err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		const n = 20
		for i := range n {
			env := fanout.Envelope{
				ConnIDs: []string{"c1", "c2"},
				Event:   json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
			}
			if err := pub.Publish(ctx, env); err != nil {
				t.Fatalf("publish: %v", err)
			}
		}

		for _, r := range []*recorder{first, second} {
			got := r.waitFor(t, n)
			for i, env := range got {
				var body struct {
					Seq int `json:"seq"`
				}
				if err := json.Unmarshal(env.Event, &body); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				if body.Seq != i {
					t.Fatalf("envelope %d out of order: seq=%d", i, body.Seq)
				}
				if len(env.ConnIDs) != 2 || env.ConnIDs[0] != "c1" {
					t.Fatalf("unexpected conn ids: %v", env.ConnIDs)
				}
			}
		}
	})
}
