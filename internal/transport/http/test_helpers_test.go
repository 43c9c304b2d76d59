package http

import (
	"context"
	"database/sql"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/config"
	"github.com/vovakirdan/storyhub/internal/core"
	"github.com/vovakirdan/storyhub/internal/metrics"
	"github.com/vovakirdan/storyhub/internal/proto"
	"github.com/vovakirdan/storyhub/internal/service/moderation"
	"github.com/vovakirdan/storyhub/internal/store/sqlite"
)

const testSecret = "testsecret"

var (
	mentor = auth.Identity{UserID: "mentor-1", DisplayName: "Maya", Role: auth.RoleMentor}
	child  = auth.Identity{UserID: "child-1", DisplayName: "Cleo", Role: auth.RoleChild, Age: 9}
	other  = auth.Identity{UserID: "child-2", DisplayName: "Caleb", Role: auth.RoleChild, Age: 10}
	admin  = auth.Identity{UserID: "admin-1", DisplayName: "Ada", Role: auth.RoleAdmin}
)

type testEnv struct {
	ts      *httptest.Server
	hub     *core.Hub
	store   *sqlite.SQLiteStore
	metrics *metrics.Metrics
	jwt     *auth.JWTConfig
}

// createTestStore creates an in-memory SQLite store seeded with two stories.
func createTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(`
		INSERT INTO stories (id, author_id, title, content, is_public) VALUES ('42', 'child-1', 'Dragons', 'Once upon a time', 0);
		INSERT INTO stories (id, author_id, title, content, is_public) VALUES ('7', 'child-2', 'Open sky', 'Public text', 1);
		INSERT INTO mentor_assignments (mentor_id, child_id) VALUES ('mentor-1', 'child-1');
		`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.MaxViolations = 3
	if mutate != nil {
		mutate(&cfg)
	}

	jwtCfg := &auth.JWTConfig{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer, TTL: time.Hour}
	st := createTestStore(t)
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	logger := zerolog.Nop()

	hub := core.NewHub(core.Deps{
		Verifier:    auth.NewJWTVerifier(jwtCfg),
		Access:      st,
		Persistence: st,
		Moderator:   moderation.New([]string{"stupid"}, 0),
		Metrics:     m,
		Logger:      &logger,
	}, core.Options{MaxViolations: cfg.MaxViolations})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("start hub: %v", err)
	}

	server := NewServer(hub, st, cfg, m, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, metrics: m, jwt: jwtCfg}
}

func (e *testEnv) token(t *testing.T, id auth.Identity) string {
	t.Helper()
	token, err := auth.GenerateToken(e.jwt, id)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

// dial opens a WebSocket with the credential in the Authorization header.
func (e *testEnv) dial(ctx context.Context, t *testing.T, id auth.Identity) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	header := stdhttp.Header{}
	header.Set("Authorization", "Bearer "+e.token(t, id))

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial %s: %v", id.UserID, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	mustRead(ctx, t, conn, "connected")
	return conn
}

func (e *testEnv) get(t *testing.T, path string, id auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(stdhttp.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+e.token(t, id))
	w := httptest.NewRecorder()
	e.ts.Config.Handler.ServeHTTP(w, req)
	return w
}

// received is an outbound message with its payload left undecoded.
type received struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     *proto.Error    `json:"error"`
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, requestID string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, RequestID: requestID, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// mustRead reads until an event (or "error") arrives, skipping anything else.
func mustRead(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) received {
	t.Helper()
	for {
		var msg received
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if msg.Event == event || (event == proto.OutboundTypeError && msg.Type == proto.OutboundTypeError) {
			return msg
		}
	}
}

func decode[T any](t *testing.T, msg received) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", msg.Event, err)
	}
	return v
}
