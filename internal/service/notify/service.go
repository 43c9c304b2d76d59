// Package notify hands notifications for offline users to external delivery.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/core"
)

// Log records offline notifications when no delivery endpoint is configured.
type Log struct {
	log *zerolog.Logger
}

// NewLog creates a logging notifier.
func NewLog(logger *zerolog.Logger) *Log {
	return &Log{log: logger}
}

var _ core.OfflineNotifier = (*Log)(nil)

func (l *Log) NotifyOffline(_ context.Context, userID string, n core.Notification) {
	l.log.Info().Str("user_id", userID).Str("type", n.Type).Str("story_id", n.StoryID).Msg("offline notification")
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	UserID       string            `json:"user_id"`
	Notification core.Notification `json:"notification"`
	QueuedAt     time.Time         `json:"queued_at"`
}

// WebhookOptions tunes the webhook notifier.
type WebhookOptions struct {
	QueueSize int
	Timeout   time.Duration
	Client    *http.Client
}

// Webhook posts notifications to an HTTP endpoint from a background worker.
// NotifyOffline never blocks: when the queue is full the notification is dropped.
type Webhook struct {
	url    string
	client *http.Client
	queue  chan Payload
	log    *zerolog.Logger
}

// NewWebhook creates a webhook notifier. Call Run to start delivering.
func NewWebhook(url string, opts WebhookOptions, logger *zerolog.Logger) *Webhook {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &Webhook{
		url:    url,
		client: opts.Client,
		queue:  make(chan Payload, opts.QueueSize),
		log:    logger,
	}
}

var _ core.OfflineNotifier = (*Webhook)(nil)

func (w *Webhook) NotifyOffline(_ context.Context, userID string, n core.Notification) {
	p := Payload{UserID: userID, Notification: n, QueuedAt: time.Now().UTC()}
	select {
	case w.queue <- p:
	default:
		w.log.Warn().Str("user_id", userID).Str("type", n.Type).Msg("notification queue full, dropping")
	}
}

// Run delivers queued notifications until ctx is done. Failed posts are
// logged and not retried.
func (w *Webhook) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-w.queue:
			if err := w.post(ctx, p); err != nil {
				w.log.Warn().Err(err).Str("user_id", p.UserID).Msg("deliver notification")
			}
		}
	}
}

func (w *Webhook) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
