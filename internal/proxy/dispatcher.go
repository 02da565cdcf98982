// Package proxy is the core request dispatcher for the adaptive mock
// platform.
//
// Dispatcher receives every inbound request that isn't handled by a
// dedicated control-plane or dashboard route, resolves which learned
// Endpoint it belongs to, decides whether to forward it to the real
// upstream or synthesize a mock response, and folds the outcome back into
// every learning subsystem (schema registry, detector, health monitor,
// log ring) without blocking the response.
//
// Key design constraints:
//   - Dispatch overhead must stay low; no blocking I/O beyond the single
//     upstream call or the in-process mock synthesis.
//   - Health sink, broadcaster, and learning buffer are optional and
//     nil-safe, matching the rest of the platform's dependency style.
//   - All I/O uses context.Context so timeouts propagate correctly.
package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nulpointcorp/adaptivemock/internal/detector"
	"github.com/nulpointcorp/adaptivemock/internal/health"
	"github.com/nulpointcorp/adaptivemock/internal/learning"
	"github.com/nulpointcorp/adaptivemock/internal/logring"
	"github.com/nulpointcorp/adaptivemock/internal/metrics"
	"github.com/nulpointcorp/adaptivemock/internal/mockgen"
	"github.com/nulpointcorp/adaptivemock/internal/normalize"
	"github.com/nulpointcorp/adaptivemock/internal/platform"
	"github.com/nulpointcorp/adaptivemock/internal/store"
	"github.com/nulpointcorp/adaptivemock/pkg/apierr"
	"github.com/valyala/fasthttp"
)

const (
	headerMockEnabledOverride = "X-Mock-Enabled"
	headerChaosOverride       = "X-Chaos-Level"
)

// reservedPrefixes are paths the Dispatcher never proxies, even if no more
// specific route matched first. Reaching the catch-all under one of these
// means the request fell through from a misconfigured client, not a real
// upstream path.
var reservedPrefixes = []string{"/admin", "/ws", "/metrics", "/health", "/readiness"}

func isReservedPath(path string) bool {
	for _, p := range reservedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Deps collects the Dispatcher's subsystem dependencies. Buffer, Ring,
// Broadcast and Sink may be nil; every other field is required.
type Deps struct {
	Platform  *platform.Platform
	Store     *store.Store
	Detector  *detector.Detector
	Health    *health.Monitor
	Mockgen   *mockgen.Generator
	Buffer    *learning.Buffer
	Ring      *logring.Ring
	Broadcast *logring.Broadcaster
	Sink      *store.HealthSink
}

// DispatcherOptions holds optional tuning parameters for a Dispatcher.
type DispatcherOptions struct {
	// Logger is the structured logger used for request events. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger

	// ForwarderTimeout is the fixed per-request upstream timeout. Default: 60s.
	ForwarderTimeout time.Duration

	// Metrics enables Prometheus metrics collection. When nil, metrics are disabled.
	Metrics *metrics.Registry
}

// Dispatcher is the platform's main request handler.
type Dispatcher struct {
	platform  *platform.Platform
	store     *store.Store
	detector  *detector.Detector
	health    *health.Monitor
	mockgen   *mockgen.Generator
	buffer    *learning.Buffer
	ring      *logring.Ring
	broadcast *logring.Broadcaster
	sink      *store.HealthSink

	forwarder *Forwarder
	cb        *CircuitBreaker

	log     *slog.Logger
	metrics *metrics.Registry

	corsOrigins []string
}

// NewDispatcher creates a fully wired Dispatcher.
func NewDispatcher(deps Deps, opts DispatcherOptions) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	timeout := opts.ForwarderTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Dispatcher{
		platform:  deps.Platform,
		store:     deps.Store,
		detector:  deps.Detector,
		health:    deps.Health,
		mockgen:   deps.Mockgen,
		buffer:    deps.Buffer,
		ring:      deps.Ring,
		broadcast: deps.Broadcast,
		sink:      deps.Sink,
		forwarder: NewForwarder(timeout),
		cb:        NewCircuitBreaker(),
		log:       log,
		metrics:   opts.Metrics,
	}
}

// SetCORSOrigins configures the allowed CORS origins for the dispatcher.
func (d *Dispatcher) SetCORSOrigins(origins []string) {
	d.corsOrigins = origins
}

// Handle is the catch-all proxy route handler: every method, every path not
// claimed by a more specific route, lands here.
func (d *Dispatcher) Handle(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	rawPath := string(ctx.Path())
	method := string(ctx.Method())

	if d.metrics != nil {
		d.metrics.IncInFlight()
		defer d.metrics.DecInFlight()
	}

	if isReservedPath(rawPath) {
		apierr.WriteNotFound(ctx, "no such route")
		return
	}

	if method == fasthttp.MethodOptions {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	targetURL := d.platform.TargetURL()
	if targetURL == "" {
		apierr.WriteServiceUnavailable(ctx, "no upstream target configured")
		return
	}

	pattern := normalize.Path(rawPath)
	key := method + " " + pattern

	endpoint, err := d.store.GetOrCreateEndpoint(ctx, method, pattern, targetURL)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch_endpoint_lookup_failed", slog.String("error", err.Error()))
		apierr.WriteBadGateway(ctx, "failed to resolve endpoint")
		return
	}
	behavior, err := d.store.GetBehavior(ctx, endpoint.ID)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch_behavior_lookup_failed", slog.String("error", err.Error()))
		apierr.WriteBadGateway(ctx, "failed to resolve behavior")
		return
	}
	chaosCfg, err := d.store.GetChaosConfig(ctx, endpoint.ID)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch_chaos_lookup_failed", slog.String("error", err.Error()))
		apierr.WriteBadGateway(ctx, "failed to resolve chaos config")
		return
	}

	profile := d.platform.ActiveProfile()
	chaos := mockgen.EffectiveChaos(chaosCfg.ChaosLevel, chaosCfg.Active, profile, parseChaosOverride(ctx))
	mode := d.decideMode(ctx)

	var (
		statusCode int
		respBody   []byte
		latencyMs  float64
		mockServed bool
	)

	reqBody := ctx.PostBody()

	switch {
	case mode == platform.ModeMock:
		result := d.mockgen.Generate(key, method, mockgen.FromStoreBehavior(*behavior), chaos, profile, reqBody, false)
		statusCode, respBody, latencyMs = result.StatusCode, result.Body, result.LatencyMs
		mockServed = true
		if d.metrics != nil {
			d.metrics.RecordMockGeneration(pattern, result.Corrupted)
			d.metrics.RecordDispatch(pattern, "mock", "served")
		}

	case !d.cb.Allow(key):
		result := d.mockgen.Generate(key, method, mockgen.FromStoreBehavior(*behavior), chaos, profile, reqBody, true)
		statusCode, respBody, latencyMs = result.StatusCode, result.Body, result.LatencyMs
		mockServed = true
		if d.metrics != nil {
			d.metrics.RecordCircuitBreakerRejection(pattern, d.cb.StateLabel(key))
			d.metrics.RecordMockGeneration(pattern, result.Corrupted)
			d.metrics.RecordDispatch(pattern, "proxy", "circuit_open_failover")
		}

	default:
		fr := d.forward(ctx, targetURL, rawPath, method)
		if d.metrics != nil {
			d.metrics.ObserveForwarderAttempt(pattern, string(fr.Outcome), time.Duration(fr.LatencyMs*float64(time.Millisecond)))
		}

		if fr.Outcome == OutcomeSuccess {
			d.cb.RecordSuccess(key)
			statusCode, respBody, latencyMs = fr.StatusCode, fr.Body, fr.LatencyMs
			d.enqueueLearning(endpoint.ID, method, pattern, statusCode, latencyMs, respBody, reqBody)
			if d.metrics != nil {
				d.metrics.RecordDispatch(pattern, "proxy", "upstream")
			}
		} else if fr.Outcome.IsRecoverable() {
			d.cb.RecordFailure(key)
			result := d.mockgen.Generate(key, method, mockgen.FromStoreBehavior(*behavior), chaos, profile, reqBody, true)
			statusCode, respBody, latencyMs = result.StatusCode, result.Body, result.LatencyMs
			mockServed = true
			if d.metrics != nil {
				d.metrics.RecordMockGeneration(pattern, result.Corrupted)
				d.metrics.RecordDispatch(pattern, "proxy", "upstream_failover")
			}
			d.log.WarnContext(ctx, "upstream_failover",
				slog.String("endpoint", key),
				slog.String("outcome", string(fr.Outcome)),
			)
		} else {
			d.cb.RecordFailure(key)
			if d.metrics != nil {
				d.metrics.RecordDispatch(pattern, "proxy", "upstream_error")
			}
			apierr.WriteBadGateway(ctx, "upstream request failed: "+fr.Err.Error())
			return
		}
		if d.metrics != nil {
			d.metrics.SetCircuitBreaker(pattern, int64(d.cb.State(key)))
		}
	}

	if mockServed {
		sleepSimulatedLatency(ctx, latencyMs)
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	ctx.SetBody(respBody)

	d.recordOutcome(endpoint, behavior, method, pattern, mode, statusCode, respBody, latencyMs, mockServed)

	if d.metrics != nil {
		d.metrics.ObserveHTTP(pattern, statusCode, time.Since(start))
	}
}

func (d *Dispatcher) forward(ctx *fasthttp.RequestCtx, targetURL, rawPath, method string) ForwardResult {
	header := make(http.Header)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		header.Add(string(k), string(v))
	})
	return d.forwarder.Forward(ctx, method, targetURL, rawPath, string(ctx.QueryArgs().QueryString()), header, ctx.PostBody())
}

// decideMode resolves the operating mode for this single request: an
// explicit X-Mock-Enabled header always wins over the platform-wide mode.
func (d *Dispatcher) decideMode(ctx *fasthttp.RequestCtx) platform.Mode {
	v := string(ctx.Request.Header.Peek(headerMockEnabledOverride))
	if v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			if b {
				return platform.ModeMock
			}
			return platform.ModeProxy
		}
	}
	return d.platform.Mode()
}

func parseChaosOverride(ctx *fasthttp.RequestCtx) *int {
	v := string(ctx.Request.Header.Peek(headerChaosOverride))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

// enqueueLearning hands a real-traffic observation to the learning buffer.
// Mock-served responses never feed learning -- only genuine upstream
// traffic teaches the platform what "normal" looks like.
func (d *Dispatcher) enqueueLearning(endpointID int64, method, pattern string, status int, latencyMs float64, respBody, reqBody []byte) {
	if d.buffer == nil {
		return
	}
	d.buffer.Enqueue(learning.Observation{
		EndpointID:   endpointID,
		Method:       method,
		PathPattern:  pattern,
		Status:       status,
		LatencyMs:    latencyMs,
		ResponseBody: respBody,
		RequestBody:  reqBody,
	})
	if d.metrics != nil {
		d.metrics.SetLearningBufferDepth(d.buffer.Len())
	}
}

// recordOutcome folds one completed request into the detector, health
// monitor, log ring, broadcaster, and analytics sink. None of these block
// the response already written to the client.
func (d *Dispatcher) recordOutcome(
	endpoint *store.Endpoint,
	behavior *store.Behavior,
	method, pattern string,
	mode platform.Mode,
	statusCode int,
	respBody []byte,
	latencyMs float64,
	mockServed bool,
) {
	key := method + " " + pattern

	var detail detector.Detail
	if mockServed {
		detail = d.detector.Snapshot(key)
	} else {
		detail = d.detector.Evaluate(key, latencyMs)
		d.detector.Update(key, latencyMs)
	}
	if detail.IsAnomaly && d.metrics != nil {
		d.metrics.RecordDetectorAnomaly(pattern, detail.Severity)
	}

	hasDrift, err := d.store.HasUnresolvedDrift(context.Background(), endpoint.ID)
	if err != nil {
		d.log.WarnContext(context.Background(), "drift_lookup_failed", slog.String("error", err.Error()))
	}

	assessment := d.health.EvaluateRequest(
		endpoint.ID, pattern, latencyMs, statusCode, len(respBody),
		detail.Mean, detail.Std, behavior.ErrorRate, hasDrift,
	)

	if d.metrics != nil {
		d.metrics.SetHealthScore(pattern, assessment.HealthScore)
		d.metrics.SetDetectorEndpointCount(d.detector.EndpointCount())
		global := d.health.GlobalHealth()
		d.metrics.SetGlobalHealthScore(global.Score)
	}

	entry := logring.Entry{
		Time:         time.Now(),
		Method:       method,
		Path:         pattern,
		Status:       statusCode,
		LatencyMs:    latencyMs,
		Mode:         string(mode),
		HasDrift:     assessment.HasDrift,
		HealthStatus: assessment.Status,
		HealthScore:  assessment.HealthScore,
	}

	var healthAlert any
	if assessment.Status != "healthy" {
		healthAlert = assessment
	}
	if d.broadcast != nil {
		d.broadcast.Broadcast(entry, healthAlert, d.health.GlobalHealth())
	} else if d.ring != nil {
		d.ring.Add(entry)
	}

	if d.sink != nil {
		d.sink.Record(store.HealthSample{
			EndpointID:   endpoint.ID,
			PathPattern:  pattern,
			LatencyMs:    latencyMs,
			StatusCode:   uint16(statusCode),
			ResponseSize: uint32(len(respBody)),
			HealthScore:  assessment.HealthScore,
			Status:       assessment.Status,
			HasDrift:     assessment.HasDrift,
			RecordedAt:   time.Now(),
		})
	}
}

// sleepSimulatedLatency blocks for the mock generator's simulated latency so
// a mock response is observably paced like the real upstream, returning
// early if the client disconnects or the request is canceled.
func sleepSimulatedLatency(ctx context.Context, latencyMs float64) {
	if latencyMs <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(latencyMs * float64(time.Millisecond)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
