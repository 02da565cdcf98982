package app

import (
	"context"
	"fmt"
	"log/slog"

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
)

// initInfra opens the relational store, the optional ClickHouse analytics
// sink, and the optional Redis connection backing the admin rate limiter.
func (a *App) initInfra(ctx context.Context) error {
	st, err := store.Open(a.cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	a.st = st
	a.log.Info("store opened", slog.String("path", a.cfg.SQLitePath))

	if a.cfg.ClickHouseDSN != "" {
		sink, err := store.NewHealthSink(ctx, a.cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("health sink: %w", err)
		}
		a.sink = sink
		a.log.Info("analytics sink connected")
	}

	if a.cfg.Redis.URL != "" {
		a.log.Info("connecting to redis", slog.String("url", a.cfg.RedactedRedisURL()))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	return nil
}

// initLearning builds the subsystems that learn endpoint behavior from
// traffic: the schema registry, the adaptive detector, the mock generator,
// and the learning buffer/worker pair that feeds them from observations.
func (a *App) initLearning(_ context.Context) error {
	a.schemas = schema.NewRegistry(a.cfg.SchemaPersistPath)
	if err := a.schemas.Load(); err != nil {
		return fmt.Errorf("schema registry load: %w", err)
	}

	a.det = detector.New(a.cfg.DetectorPersistPath)
	if err := a.det.Load(); err != nil {
		return fmt.Errorf("detector load: %w", err)
	}

	a.plat = platform.New(
		platform.Mode(a.cfg.PlatformMode),
		a.cfg.LearningEnabled,
		a.cfg.ActiveChaosProfile,
		a.cfg.TargetURL,
	)

	a.gen = mockgen.New(a.schemas)

	a.buffer = learning.NewBuffer()
	a.worker = learning.NewWorker(a.buffer, a.st, a.schemas, a.cfg.LearningBufferSize, a.log)

	a.log.Info("learning subsystems ready",
		slog.String("mode", string(a.plat.Mode())),
		slog.Bool("learning_enabled", a.cfg.LearningEnabled),
		slog.String("chaos_profile", a.cfg.ActiveChaosProfile),
	)

	return nil
}

// initObservability wires the health monitor, the ring buffer and
// broadcaster backing the live dashboard feed, and the Prometheus registry.
func (a *App) initObservability(_ context.Context) error {
	a.healthMon = health.NewMonitor()
	a.ring = logring.New()
	a.broadcast = logring.NewBroadcaster(a.ring)

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	if a.cfg.Redis.URL != "" && a.cfg.AdminRateLimit.RPMLimit > 0 {
		a.limiter = ratelimit.NewRPMLimiter(a.rdb, a.cfg.AdminRateLimit.RPMLimit)
		a.log.Info("admin rate limiting enabled", slog.Int("rpm_limit", a.cfg.AdminRateLimit.RPMLimit))
	}

	return nil
}

// initServer builds the dispatcher, the admin HTTP handlers, the readiness
// checker, and the two listeners (main HTTP server and websocket feed).
func (a *App) initServer(ctx context.Context) error {
	var sinkPing func(context.Context) error
	if a.sink != nil {
		sinkPing = a.sink.Ping
	}

	a.hc = proxy.NewHealthChecker(ctx, a.st.Ping, sinkPing, a.prom)

	a.dispatcher = proxy.NewDispatcher(proxy.Deps{
		Platform:  a.plat,
		Store:     a.st,
		Detector:  a.det,
		Health:    a.healthMon,
		Mockgen:   a.gen,
		Buffer:    a.buffer,
		Ring:      a.ring,
		Broadcast: a.broadcast,
		Sink:      a.sink,
	}, proxy.DispatcherOptions{
		Logger:           a.log,
		ForwarderTimeout: a.cfg.Forwarder.Timeout,
		Metrics:          a.prom,
	})

	a.admin = &proxy.AdminHandlers{
		Controller: a.buildController(),
		Limiter:    a.limiter,
		Metrics:    a.prom,
		Log:        a.log,
	}

	a.server = proxy.NewServer(proxy.ServerDeps{
		Dispatcher:    a.dispatcher,
		Admin:         a.admin,
		HealthChecker: a.hc,
		Metrics:       a.prom,
		CORSOrigins:   a.cfg.CORSOrigins,
	})

	wsAddr := fmt.Sprintf(":%d", a.cfg.WSPort)
	a.wsServer = proxy.NewWSServer(wsAddr, a.broadcast, a.prom, a.log)

	return nil
}
