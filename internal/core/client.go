package core

import (
	"sync"
	"sync/atomic"
)

// Buffer sizes for per-connection queues.
const (
	commandBuffer = 16
	eventBuffer   = 64
)

// Client is one live connection as seen by the core layer.
// The identity behind it lives in the presence registry, keyed by ID.
type Client struct {
	ID       string
	UserID   string
	Commands chan *Command
	Events   chan *Event

	done       chan struct{}
	closeOnce  sync.Once
	kicked     atomic.Bool
	violations atomic.Int32
}

// NewClient constructs a client with initialized channels.
func NewClient(id, userID string) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		Commands: make(chan *Command, commandBuffer),
		Events:   make(chan *Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Done is closed when the hub stops serving the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Kicked reports whether the hub closed the client for repeated protocol violations.
func (c *Client) Kicked() bool {
	return c.kicked.Load()
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// deliver queues ev without blocking. It reports false when the queue is full
// or the client is gone.
func (c *Client) deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
