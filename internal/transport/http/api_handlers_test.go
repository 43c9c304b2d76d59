package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/metrics"
	"github.com/vovakirdan/storyhub/internal/proto"
)

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return v
}

func TestAPIRequiresBearer(t *testing.T) {
	env := startTestServer(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"invalid token", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(stdhttp.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.ts.Config.Handler.ServeHTTP(w, req)
			if w.Code != stdhttp.StatusUnauthorized {
				t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAPIMe(t *testing.T) {
	env := startTestServer(t, nil)

	w := env.get(t, "/api/me", child)
	if w.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	id := decodeBody[auth.Identity](t, w)
	if id.UserID != child.UserID || id.Role != auth.RoleChild || id.Age != 9 {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestAPIParticipants(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(ctx, t, child)
	send(ctx, t, conn, proto.InboundTypeJoin, "j1", proto.RoomData{StoryID: "42"})
	mustRead(ctx, t, conn, "room_snapshot")

	tests := []struct {
		name   string
		as     auth.Identity
		story  string
		status int
	}{
		{"assigned mentor", mentor, "42", stdhttp.StatusOK},
		{"admin", admin, "42", stdhttp.StatusOK},
		{"other child", other, "42", stdhttp.StatusForbidden},
		{"unknown story", mentor, "404", stdhttp.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.get(t, "/api/stories/"+tt.story+"/participants", tt.as)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status != stdhttp.StatusOK {
				return
			}
			resp := decodeBody[ParticipantsResponse](t, w)
			if len(resp.Participants) != 1 || resp.Participants[0].UserID != child.UserID {
				t.Fatalf("unexpected participants: %+v", resp.Participants)
			}
		})
	}
}

func TestAPIComments(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(ctx, t, mentor)
	send(ctx, t, conn, proto.InboundTypeJoin, "j1", proto.RoomData{StoryID: "42"})
	mustRead(ctx, t, conn, "room_snapshot")
	send(ctx, t, conn, proto.InboundTypeComment, "c1", proto.CommentData{StoryID: "42", Content: "Nice start"})
	mustRead(ctx, t, conn, "new_comment")

	w := env.get(t, "/api/stories/42/comments", child)
	if w.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[CommentsResponse](t, w)
	if len(resp.Comments) != 1 || resp.Comments[0].Content != "Nice start" || resp.Comments[0].AuthorName != "Maya" {
		t.Fatalf("unexpected comments: %+v", resp.Comments)
	}

	if w := env.get(t, "/api/stories/42/comments", other); w.Code != stdhttp.StatusForbidden {
		t.Fatalf("other child should be denied, got %d", w.Code)
	}
}

func TestAPIPresence(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env.dial(ctx, t, child)
	env.dial(ctx, t, child)

	w := env.get(t, "/api/users/child-1/presence", mentor)
	resp := decodeBody[PresenceResponse](t, w)
	if !resp.Online || resp.Connections != 2 {
		t.Fatalf("expected two live connections, got %+v", resp)
	}

	w = env.get(t, "/api/users/child-2/presence", mentor)
	if resp := decodeBody[PresenceResponse](t, w); resp.Online || resp.Connections != 0 {
		t.Fatalf("expected offline user, got %+v", resp)
	}
}

func TestAPINotify(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(ctx, t, child)

	post := func(as auth.Identity, body NotificationRequest) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(body)
		req := httptest.NewRequest(stdhttp.MethodPost, "/api/notifications", bytes.NewReader(payload))
		req.Header.Set("Authorization", "Bearer "+env.token(t, as))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		env.ts.Config.Handler.ServeHTTP(w, req)
		return w
	}

	if w := post(mentor, NotificationRequest{UserID: "child-1", Type: "badge"}); w.Code != stdhttp.StatusForbidden {
		t.Fatalf("non-admin should get 403, got %d", w.Code)
	}
	if w := post(admin, NotificationRequest{UserID: "child-1"}); w.Code != stdhttp.StatusBadRequest {
		t.Fatalf("missing type should get 400, got %d", w.Code)
	}

	w := post(admin, NotificationRequest{UserID: "child-1", Type: "badge", Message: "Ten stories!"})
	if w.Code != stdhttp.StatusOK || !decodeBody[NotificationResponse](t, w).Delivered {
		t.Fatalf("expected live delivery, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[proto.EventNotification](t, mustRead(ctx, t, conn, "notification"))
	if got.Type != "badge" || got.Message != "Ten stories!" {
		t.Fatalf("unexpected notification: %+v", got)
	}

	w = post(admin, NotificationRequest{UserID: "child-2", Type: "badge"})
	if w.Code != stdhttp.StatusOK || decodeBody[NotificationResponse](t, w).Delivered {
		t.Fatalf("offline user should not report delivery, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env.dial(ctx, t, child)

	resp, err := env.ts.Client().Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Metrics []metrics.Point `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	found := false
	for _, p := range body.Metrics {
		if p.Name == "storyhub_connections_total" && p.Value >= 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("connections counter missing: %+v", body.Metrics)
	}
}
