// Package natsbus implements fanout.Bus on a NATS subject.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/fanout"
)

// DefaultSubject is the subject shared by all instances.
const DefaultSubject = "storyhub.fanout"

// flushTimeout bounds the round trip that confirms a subscription.
const flushTimeout = 5 * time.Second

// Bus publishes envelopes on one NATS subject. Every instance subscribes
// without a queue group because each one holds a different set of connections.
type Bus struct {
	nc      *nats.Conn
	subject string
	owned   bool
	log     *zerolog.Logger
}

// Connect dials url and returns a bus that owns the connection.
func Connect(url, name string, logger *zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	b := New(nc, DefaultSubject, logger)
	b.owned = true
	return b, nil
}

// New wraps an existing connection. The caller keeps ownership of nc.
func New(nc *nats.Conn, subject string, logger *zerolog.Logger) *Bus {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{nc: nc, subject: subject, log: logger}
}

var _ fanout.Bus = (*Bus)(nil)

func (b *Bus) Publish(_ context.Context, env fanout.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.nc.Publish(b.subject, payload); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, h fanout.Handler) error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var env fanout.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.Warn().Err(err).Str("subject", b.subject).Msg("drop malformed envelope")
			return
		}
		h(env)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	// Make sure the server has registered interest before returning.
	fctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := b.nc.FlushWithContext(fctx); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *Bus) Close() error {
	if !b.owned {
		return nil
	}
	return b.nc.Drain()
}
