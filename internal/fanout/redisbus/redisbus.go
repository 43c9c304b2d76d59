// Package redisbus implements fanout.Bus on Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/fanout"
)

// DefaultChannel is the pub/sub channel shared by all instances.
const DefaultChannel = "storyhub:fanout"

// Bus publishes envelopes on a single Redis channel. The client is owned by the caller.
type Bus struct {
	rdb     redis.UniversalClient
	channel string
	log     *zerolog.Logger
}

// New creates a Redis bus on channel (DefaultChannel when empty).
func New(rdb redis.UniversalClient, channel string, logger *zerolog.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{rdb: rdb, channel: channel, log: logger}
}

var _ fanout.Bus = (*Bus)(nil)

func (b *Bus) Publish(ctx context.Context, env fanout.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, h fanout.Handler) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so nothing published after we
	// return is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env fanout.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn().Err(err).Str("channel", b.channel).Msg("drop malformed envelope")
					continue
				}
				h(env)
			}
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	return nil
}
