package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/config"
	"github.com/vovakirdan/storyhub/internal/core"
	"github.com/vovakirdan/storyhub/internal/fanout"
	"github.com/vovakirdan/storyhub/internal/fanout/natsbus"
	"github.com/vovakirdan/storyhub/internal/fanout/redisbus"
	"github.com/vovakirdan/storyhub/internal/metrics"
	"github.com/vovakirdan/storyhub/internal/service/moderation"
	"github.com/vovakirdan/storyhub/internal/service/notify"
	"github.com/vovakirdan/storyhub/internal/state"
	"github.com/vovakirdan/storyhub/internal/state/memory"
	"github.com/vovakirdan/storyhub/internal/state/redisstate"
	"github.com/vovakirdan/storyhub/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/storyhub/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           *sqlite.SQLiteStore
	redis           redis.UniversalClient
	bus             fanout.Bus
	webhook         *notify.Webhook
	metrics         *metrics.Metrics
	log             *zerolog.Logger
}

// JWTConfig derives token settings from cfg.
func JWTConfig(cfg *config.Config, ttl time.Duration) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      ttl,
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = st
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	m, err := metrics.New()
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a.metrics = m

	presence, rooms, err := a.initState(cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	bus, err := a.initBus(cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	a.bus = bus

	var notifier core.OfflineNotifier = notify.NewLog(logger)
	if cfg.NotifyWebhookURL != "" {
		a.webhook = notify.NewWebhook(cfg.NotifyWebhookURL, notify.WebhookOptions{Timeout: cfg.CollaboratorTimeout}, logger)
		notifier = a.webhook
	}

	a.hub = core.NewHub(core.Deps{
		Verifier:    auth.NewJWTVerifier(JWTConfig(cfg, 0)),
		Access:      st,
		Persistence: st,
		Moderator:   moderation.New(cfg.ModerationBlocklist, cfg.ModerationMaxLength),
		Notifier:    notifier,
		Presence:    presence,
		Rooms:       rooms,
		Bus:         bus,
		Metrics:     m,
		Logger:      logger,
	}, core.Options{
		JoinTimeout:         cfg.JoinTimeout,
		CollaboratorTimeout: cfg.CollaboratorTimeout,
		MaxViolations:       cfg.MaxViolations,
	})

	a.server = transporthttp.NewServer(a.hub, st, *cfg, m, logger)

	logger.Info().
		Str("state_backend", cfg.StateBackend).
		Str("bus", cfg.Bus).
		Bool("webhook", a.webhook != nil).
		Msg("hub configured")
	return a, nil
}

func (a *App) redisClient(cfg *config.Config) (redis.UniversalClient, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	a.redis = rdb
	return rdb, nil
}

func (a *App) initState(cfg *config.Config) (state.Presence, state.Rooms, error) {
	if cfg.StateBackend != config.StateRedis {
		return memory.NewPresence(), memory.NewRooms(), nil
	}
	rdb, err := a.redisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return redisstate.NewPresence(rdb, cfg.RedisPrefix), redisstate.NewRooms(rdb, cfg.RedisPrefix), nil
}

func (a *App) initBus(cfg *config.Config) (fanout.Bus, error) {
	switch cfg.Bus {
	case config.BusRedis:
		rdb, err := a.redisClient(cfg)
		if err != nil {
			return nil, err
		}
		return redisbus.New(rdb, cfg.RedisPrefix+"fanout", a.log), nil
	case config.BusNATS:
		host, _ := os.Hostname()
		bus, err := natsbus.Connect(cfg.NATSURL, "storyhub-"+host, a.log)
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return fanout.NewLocal(), nil
	}
}

// Listen binds the configured address ahead of Run and returns the bound address.
// Run listens by itself when Listen was not called.
func (a *App) Listen() (net.Addr, error) {
	if a.listener == nil {
		ln, err := net.Listen("tcp", a.server.Addr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", a.server.Addr, err)
		}
		a.listener = ln
	}
	return a.listener.Addr(), nil
}

// Run starts the hub and the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	addr, err := a.Listen()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := a.hub.Start(gctx); err != nil {
		_ = a.listener.Close()
		return fmt.Errorf("start hub: %w", err)
	}
	if a.webhook != nil {
		g.Go(func() error { return a.webhook.Run(gctx) })
	}

	// WebSocket handlers watch the request context; deriving it from gctx ends them on shutdown.
	a.server.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		a.log.Info().Str("addr", addr.String()).Msg("http server listening")
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close bus")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(context.Background()); err != nil {
			a.log.Warn().Err(err).Msg("failed to shut down metrics")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
