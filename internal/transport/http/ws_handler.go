package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/core"
	"github.com/vovakirdan/storyhub/internal/proto"
)

var errClientClosed = errors.New("client closed by hub")

// WSHandler authenticates the upgrade request and bridges the socket to a core.Client.
type WSHandler struct {
	hub             *core.Hub
	maxMessageBytes int64
	rateLimit       int
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. rateLimit is messages per
// minute per connection; zero disables it.
func NewWSHandler(hub *core.Hub, maxMessageBytes int64, rateLimit int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, maxMessageBytes: maxMessageBytes, rateLimit: rateLimit, log: logger}
}

// requestToken reads the credential from the Authorization header or the token query parameter.
func requestToken(r *stdhttp.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	client, err := h.hub.Connect(r.Context(), requestToken(r))
	if err != nil {
		if errors.Is(err, core.ErrAuthenticationFailed) {
			writeJSON(w, stdhttp.StatusUnauthorized, ErrorResponse{Error: "invalid credential"})
			return
		}
		h.log.Error().Err(err).Msg("register connection")
		writeJSON(w, stdhttp.StatusServiceUnavailable, ErrorResponse{Error: "try again later"})
		return
	}
	defer h.hub.Disconnect(context.Background(), client)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", client.ID).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	if client.Kicked() {
		conn.Close(websocket.StatusPolicyViolation, "too many protocol violations")
		cancel()
		<-errCh
		return
	}
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errClientClosed) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "internal error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.rateLimit)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.log.Warn().Str("conn_id", client.ID).Str("user_id", client.UserID).Msg("rate limited")
			if err := h.writeError(ctx, conn, "", &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages"}); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Inbound
		if typ != websocket.MessageText || json.Unmarshal(data, &inbound) != nil {
			if err := h.writeError(ctx, conn, "", &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "expected a JSON text message"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.log.Debug().Str("conn_id", client.ID).Str("type", inbound.Type).Str("code", protoErr.Code).Msg("rejected inbound")
			if err := h.writeError(ctx, conn, inbound.RequestID, protoErr); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			// the write loop flushes and ends the connection
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, requestID string, perr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:      proto.OutboundTypeError,
		RequestID: requestID,
		Error:     perr,
	})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := h.writeEvent(ctx, conn, client, event); err != nil {
				return err
			}
		case <-client.Done():
			// flush what the hub queued before closing, such as the final error
			for {
				select {
				case event := <-client.Events:
					if err := h.writeEvent(ctx, conn, client, event); err != nil {
						return err
					}
				default:
					return errClientClosed
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeEvent(ctx context.Context, conn *websocket.Conn, client *core.Client, event *core.Event) error {
	if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
		h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
		return err
	}
	return nil
}
