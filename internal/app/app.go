// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order mirrors the platform's data flow: normalization and schema
// matching are stateless, so the first real step is the relational store,
// followed by the subsystems that learn from traffic (schema registry,
// adaptive detector, mock generator, learning worker), then the subsystems
// that observe it (health monitor, log ring, broadcaster, metrics), and
// finally the dispatcher and the HTTP/websocket servers that tie everything
// together.
//
//  1. initInfra         — SQLite store, optional ClickHouse sink, optional Redis
//  2. initLearning       — schema registry, adaptive detector, mock generator,
//     learning buffer + worker
//  3. initObservability — health monitor, log ring, broadcaster, metrics registry
//  4. initServer         — dispatcher, admin API, HTTP + websocket servers
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/adaptivemock/internal/config"
	"github.com/nulpointcorp/adaptivemock/internal/control"
	"github.com/nulpointcorp/adaptivemock/internal/detector"
	"github.com/nulpointcorp/adaptivemock/internal/health"
	"github.com/nulpointcorp/adaptivemock/internal/learning"
	"github.com/nulpointcorp/adaptivemock/internal/logring"
	"github.com/nulpointcorp/adaptivemock/internal/metrics"
	"github.com/nulpointcorp/adaptivemock/internal/mockgen"
	"github.com/nulpointcorp/adaptivemock/internal/platform"
	"github.com/nulpointcorp/adaptivemock/internal/proxy"
	"github.com/nulpointcorp/adaptivemock/internal/ratelimit"
	"github.com/nulpointcorp/adaptivemock/internal/schema"
	"github.com/nulpointcorp/adaptivemock/internal/store"
	"github.com/valyala/fasthttp"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb *redis.Client

	st   *store.Store
	sink *store.HealthSink

	schemas *schema.Registry
	det     *detector.Detector
	plat    *platform.Platform
	gen     *mockgen.Generator
	limiter *ratelimit.RPMLimiter

	healthMon *health.Monitor
	ring      *logring.Ring
	broadcast *logring.Broadcaster

	prom *metrics.Registry

	buffer *learning.Buffer
	worker *learning.Worker

	dispatcher *proxy.Dispatcher
	admin      *proxy.AdminHandlers
	hc         *proxy.HealthChecker
	server     *fasthttp.Server
	wsServer   *proxy.WSServer

	workerCancel context.CancelFunc
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"learning", a.initLearning},
		{"observability", a.initObservability},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server, the websocket feed, and the learning worker,
// and blocks until ctx is cancelled or one of them fails. It closes the app
// gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)
	wsAddr := fmt.Sprintf(":%d", a.cfg.WSPort)

	a.log.Info("starting adaptive mock platform",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("ws_addr", wsAddr),
		slog.String("mode", string(a.plat.Mode())),
		slog.String("target_url", a.plat.TargetURL()),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	a.workerCancel = cancel
	go a.worker.Run(workerCtx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.ListenAndServe(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.shutdownServers()
		return nil
	})

	err := g.Wait()
	a.Close()
	return err
}

// shutdownServers stops accepting new connections on both listeners. Called
// when the run context is cancelled, ahead of Close releasing the backing
// stores.
func (a *App) shutdownServers() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.ShutdownWithContext(shutdownCtx); err != nil {
			a.log.Error("http server shutdown error", slog.String("error", err.Error()))
		}
	}
	if a.wsServer != nil {
		if err := a.wsServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error("websocket server shutdown error", slog.String("error", err.Error()))
		}
	}
}

// Close releases all resources in reverse-init order. It is not
// synchronized and must not be called from several goroutines at once.
func (a *App) Close() {
	if a.workerCancel != nil {
		a.workerCancel()
		a.workerCancel = nil
	}
	if a.hc != nil {
		a.hc.Close()
		a.hc = nil
	}
	if a.det != nil {
		if err := a.det.Save(); err != nil {
			a.log.Error("detector persist error", slog.String("error", err.Error()))
		}
	}
	if a.schemas != nil {
		if err := a.schemas.Save(); err != nil {
			a.log.Error("schema registry persist error", slog.String("error", err.Error()))
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Error("health sink close error", slog.String("error", err.Error()))
		}
		a.sink = nil
	}
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.log.Error("store close error", slog.String("error", err.Error()))
		}
		a.st = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// buildController returns a control.Controller bound to this app's subsystems,
// used by the admin HTTP handlers.
func (a *App) buildController() *control.Controller {
	return &control.Controller{
		Platform: a.plat,
		Store:    a.st,
		Detector: a.det,
		Schemas:  a.schemas,
		Health:   a.healthMon,
	}
}
