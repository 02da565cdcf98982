package proxy

import (
	"context"
	"sync"
	"time"

	"github.com/nulpointcorp/adaptivemock/internal/metrics"
)

const healthProbeInterval = 30 * time.Second
const healthProbeTimeout = 5 * time.Second

// componentStatus holds the last known health result for one component.
type componentStatus struct {
	mu     sync.RWMutex
	status string // "ok" | "degraded" | "down"
}

func (s *componentStatus) set(v string) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

func (s *componentStatus) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == "" {
		return "unknown"
	}
	return s.status
}

// HealthChecker runs background readiness probes against the platform's two
// storage backends -- the SQLite store (always present) and the ClickHouse
// analytics sink (optional) -- and exposes the latest results.
type HealthChecker struct {
	storePing func(context.Context) error
	sinkPing  func(context.Context) error
	baseCtx   context.Context
	metrics   *metrics.Registry

	storeStatus componentStatus
	sinkStatus  componentStatus

	startTime time.Time
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewHealthChecker creates a HealthChecker and immediately starts background
// probes. sinkPing may be nil when no ClickHouse sink is configured, in
// which case the sink is reported "ok" unconditionally.
func NewHealthChecker(
	ctx context.Context,
	storePing func(context.Context) error,
	sinkPing func(context.Context) error,
	met *metrics.Registry,
) *HealthChecker {
	if ctx == nil {
		panic("healthchecker: context must not be nil")
	}
	hc := &HealthChecker{
		storePing: storePing,
		sinkPing:  sinkPing,
		startTime: time.Now(),
		done:      make(chan struct{}),
		baseCtx:   ctx,
		metrics:   met,
	}

	// Run first probe synchronously so health is not "unknown" immediately.
	hc.probe()

	hc.wg.Add(1)
	go hc.run()

	return hc
}

// HealthSnapshot returns the current health state for all components.
type HealthSnapshot struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Store         string `json:"store"`
	AnalyticsSink string `json:"analytics_sink"`
}

// Snapshot builds a snapshot from the latest probe results.
func (hc *HealthChecker) Snapshot() HealthSnapshot {
	overall := "ok"

	store := hc.storeStatus.get()
	sink := hc.sinkStatus.get()

	if store == "down" {
		overall = "degraded"
	}
	if sink == "degraded" && overall == "ok" {
		overall = "degraded"
	}

	return HealthSnapshot{
		Status:        overall,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Store:         store,
		AnalyticsSink: sink,
	}
}

// ReadinessOK returns true when the store is reachable (used by GET
// /readiness for Kubernetes probes). The analytics sink is best-effort and
// does not gate readiness: samples it cannot write are dropped and counted.
func (hc *HealthChecker) ReadinessOK() bool {
	return hc.storeStatus.get() == "ok"
}

// Close stops the background probe goroutine.
func (hc *HealthChecker) Close() {
	close(hc.done)
	hc.wg.Wait()
}

func (hc *HealthChecker) run() {
	defer hc.wg.Done()
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hc.probe()
		case <-hc.done:
			return
		}
	}
}

func (hc *HealthChecker) probe() {
	ctx, cancel := context.WithTimeout(hc.baseCtx, healthProbeTimeout)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if hc.storePing == nil {
			hc.storeStatus.set("ok")
			return
		}
		if err := hc.storePing(ctx); err != nil {
			hc.storeStatus.set("down")
			if hc.metrics != nil {
				hc.metrics.SetComponentHealth("store", false)
			}
		} else {
			hc.storeStatus.set("ok")
			if hc.metrics != nil {
				hc.metrics.SetComponentHealth("store", true)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if hc.sinkPing == nil {
			hc.sinkStatus.set("ok")
			return
		}
		if err := hc.sinkPing(ctx); err != nil {
			hc.sinkStatus.set("degraded")
			if hc.metrics != nil {
				hc.metrics.SetComponentHealth("analytics_sink", false)
			}
		} else {
			hc.sinkStatus.set("ok")
			if hc.metrics != nil {
				hc.metrics.SetComponentHealth("analytics_sink", true)
			}
		}
	}()

	wg.Wait()
}
