package core

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/storyhub/internal/fanout"
	"github.com/vovakirdan/storyhub/internal/metrics"
	"github.com/vovakirdan/storyhub/internal/state"
	"github.com/vovakirdan/storyhub/internal/state/memory"
)

const userLockStripes = 64

// Options tunes hub behaviour.
type Options struct {
	// JoinTimeout bounds the authorization check of a join.
	JoinTimeout time.Duration
	// CollaboratorTimeout bounds moderation, persistence and story lookups.
	CollaboratorTimeout time.Duration
	// MaxViolations closes a connection after this many protocol violations (0 disables).
	MaxViolations int
}

// Deps are the hub's collaborators. Verifier, Access and Persistence are required.
type Deps struct {
	Verifier    IdentityVerifier
	Access      StoryAccess
	Persistence Persistence
	Moderator   Moderator
	Notifier    OfflineNotifier

	Presence state.Presence
	Rooms    state.Rooms
	Bus      fanout.Bus

	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

// Hub coordinates connections, story rooms and fan-out on one instance.
// Shared state lives behind state.Presence and state.Rooms so several hubs
// can serve the same rooms.
type Hub struct {
	verifier    IdentityVerifier
	access      StoryAccess
	persistence Persistence
	moderator   Moderator
	notifier    OfflineNotifier
	gate        *Gate

	presence state.Presence
	rooms    state.Rooms
	bus      fanout.Bus

	metrics *metrics.Metrics
	log     *zerolog.Logger
	opts    Options

	mu      sync.RWMutex
	clients map[string]*Client

	userLocks [userLockStripes]sync.Mutex
}

// NewHub creates a hub. Missing optional deps fall back to in-memory state,
// a local bus, an accept-all moderator and a discarding notifier.
func NewHub(deps Deps, opts Options) *Hub {
	if deps.Moderator == nil {
		deps.Moderator = acceptAll{}
	}
	if deps.Notifier == nil {
		deps.Notifier = discardNotifier{}
	}
	if deps.Presence == nil {
		deps.Presence = memory.NewPresence()
	}
	if deps.Rooms == nil {
		deps.Rooms = memory.NewRooms()
	}
	if deps.Bus == nil {
		deps.Bus = fanout.NewLocal()
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 5 * time.Second
	}
	if opts.CollaboratorTimeout <= 0 {
		opts.CollaboratorTimeout = 5 * time.Second
	}

	return &Hub{
		verifier:    deps.Verifier,
		access:      deps.Access,
		persistence: deps.Persistence,
		moderator:   deps.Moderator,
		notifier:    deps.Notifier,
		gate:        NewGate(deps.Access),
		presence:    deps.Presence,
		rooms:       deps.Rooms,
		bus:         deps.Bus,
		metrics:     deps.Metrics,
		log:         deps.Logger,
		opts:        opts,
		clients:     make(map[string]*Client),
	}
}

// Start subscribes the hub to the fan-out bus and returns once deliveries
// from other instances can be received. The subscription ends with ctx.
func (h *Hub) Start(ctx context.Context) error {
	return h.bus.Subscribe(ctx, h.onEnvelope)
}

func (h *Hub) userLock(userID string) *sync.Mutex {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return &h.userLocks[f.Sum32()%userLockStripes]
}

func (h *Hub) localClient(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

// send delivers ev to one local client and records drops.
func (h *Hub) send(ctx context.Context, c *Client, ev *Event) {
	if !c.deliver(ev) {
		h.metrics.Dropped(ctx)
		h.log.Debug().Str("conn_id", c.ID).Str("event", ev.Kind.String()).Msg("event dropped")
	}
}

// fanOut delivers ev to connIDs: local ones directly, the rest through the bus.
// Delivery is best-effort per recipient.
func (h *Hub) fanOut(ctx context.Context, connIDs []string, ev *Event) {
	var remote []string
	for _, id := range connIDs {
		if c, ok := h.localClient(id); ok {
			h.send(ctx, c, ev)
			continue
		}
		remote = append(remote, id)
	}
	if len(remote) == 0 {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Kind.String()).Msg("encode event")
		return
	}
	if err := h.bus.Publish(ctx, fanout.Envelope{ConnIDs: remote, Event: payload}); err != nil {
		h.log.Warn().Err(err).Str("event", ev.Kind.String()).Int("recipients", len(remote)).Msg("publish event")
	}
}

func (h *Hub) onEnvelope(env fanout.Envelope) {
	var ev Event
	decoded := false
	for _, id := range env.ConnIDs {
		c, ok := h.localClient(id)
		if !ok {
			continue
		}
		if !decoded {
			if err := json.Unmarshal(env.Event, &ev); err != nil {
				h.log.Warn().Err(err).Msg("decode fanned-out event")
				return
			}
			decoded = true
		}
		h.send(context.Background(), c, &ev)
	}
}
