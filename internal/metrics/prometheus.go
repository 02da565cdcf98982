// Package metrics provides a Prometheus metrics registry for the adaptive
// mock platform.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// platform_inflight_requests
	inFlight prometheus.Gauge

	// platform_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// platform_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// platform_dispatch_total{route,mode,outcome}
	dispatchTotal *prometheus.CounterVec

	// platform_forwarder_attempts_total{route,outcome}
	forwarderAttempts *prometheus.CounterVec

	// platform_forwarder_duration_seconds{route,outcome}
	forwarderDuration *prometheus.HistogramVec

	// platform_mock_generations_total{route,corrupted}
	mockGenerations *prometheus.CounterVec

	// platform_health_score{route} — live per-endpoint health score
	healthScore *prometheus.GaugeVec

	// platform_global_health_score
	globalHealthScore prometheus.Gauge

	// platform_detector_anomalies_total{route,severity}
	detectorAnomalies *prometheus.CounterVec

	// platform_detector_endpoints_tracked
	detectorEndpoints prometheus.Gauge

	// platform_drift_alerts_total{route,severity}
	driftAlerts *prometheus.CounterVec

	// platform_drift_alerts_open
	driftAlertsOpen prometheus.Gauge

	// platform_learning_buffer_depth
	learningBufferDepth prometheus.Gauge

	// platform_learning_batches_total
	learningBatches prometheus.Counter

	// platform_circuit_breaker_state{route} — 0=closed, 1=open, 2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// platform_circuit_breaker_transitions_total{route,to_state}
	cbTransitions *prometheus.CounterVec

	// platform_circuit_breaker_rejections_total{route,state}
	cbRejections *prometheus.CounterVec

	// platform_ratelimit_total{result}
	rateLimitTotal *prometheus.CounterVec

	// platform_broadcaster_subscribers
	broadcasterSubscribers prometheus.Gauge

	// platform_build_info{version}
	buildInfo *prometheus.GaugeVec

	// platform_component_health{component} — 1=healthy, 0=unhealthy
	componentHealth *prometheus.GaugeVec

	cbMu        sync.Mutex
	lastCBState map[string]float64

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg:         reg,
		lastCBState: make(map[string]float64),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platform_inflight_requests",
			Help: "Current number of in-flight HTTP requests handled by the platform",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_http_requests_total",
				Help: "Total number of HTTP requests handled by the platform",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platform_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds, end-to-end",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"route"},
		),

		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_dispatch_total",
				Help: "Requests dispatched, by route, operating mode, and outcome",
			},
			[]string{"route", "mode", "outcome"},
		),

		forwarderAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_forwarder_attempts_total",
				Help: "Upstream forwarding attempts by route and outcome",
			},
			[]string{"route", "outcome"},
		),

		forwarderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platform_forwarder_duration_seconds",
				Help:    "Upstream forwarding attempt duration in seconds",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"route", "outcome"},
		),

		mockGenerations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_mock_generations_total",
				Help: "Synthetic responses generated, by route and whether the body was corrupted",
			},
			[]string{"route", "corrupted"},
		),

		healthScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "platform_health_score",
				Help: "Current per-endpoint health score (0-100)",
			},
			[]string{"route"},
		),

		globalHealthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platform_global_health_score",
			Help: "Current platform-wide blended health score (0-100)",
		}),

		detectorAnomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_detector_anomalies_total",
				Help: "Latency anomalies detected, by route and severity",
			},
			[]string{"route", "severity"},
		),

		detectorEndpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platform_detector_endpoints_tracked",
			Help: "Number of endpoints with a learned latency baseline",
		}),

		driftAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_drift_alerts_total",
				Help: "Contract drift alerts raised, by route and severity",
			},
			[]string{"route", "severity"},
		),

		driftAlertsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platform_drift_alerts_open",
			Help: "Number of currently unresolved drift alerts",
		}),

		learningBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platform_learning_buffer_depth",
			Help: "Number of observations currently queued for the learning worker",
		}),

		learningBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "platform_learning_batches_total",
			Help: "Total learning buffer batches processed",
		}),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "platform_circuit_breaker_state",
				Help: "Circuit breaker state per endpoint (0=closed,1=open,2=half-open)",
			},
			[]string{"route"},
		),

		cbTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_circuit_breaker_transitions_total",
				Help: "Circuit breaker transitions to a new state",
			},
			[]string{"route", "to_state"},
		),

		cbRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_circuit_breaker_rejections_total",
				Help: "Requests rejected due to circuit breaker state",
			},
			[]string{"route", "state"},
		),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_ratelimit_total",
				Help: "Control-plane rate limit decisions",
			},
			[]string{"result"},
		),

		broadcasterSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platform_broadcaster_subscribers",
			Help: "Current number of live dashboard websocket subscribers",
		}),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "platform_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),

		componentHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "platform_component_health",
				Help: "Readiness of platform dependencies, by component (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.dispatchTotal,
		r.forwarderAttempts,
		r.forwarderDuration,
		r.mockGenerations,
		r.healthScore,
		r.globalHealthScore,
		r.detectorAnomalies,
		r.detectorEndpoints,
		r.driftAlerts,
		r.driftAlertsOpen,
		r.learningBufferDepth,
		r.learningBatches,
		r.circuitBreakerState,
		r.cbTransitions,
		r.cbRejections,
		r.rateLimitTotal,
		r.broadcasterSubscribers,
		r.buildInfo,
		r.componentHealth,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// RecordDispatch records one dispatched request's route, operating mode,
// and outcome (e.g. "upstream", "mock", "mock_failover").
func (r *Registry) RecordDispatch(route, mode, outcome string) {
	r.dispatchTotal.WithLabelValues(route, mode, outcome).Inc()
}

// ObserveForwarderAttempt records one upstream forwarding attempt.
func (r *Registry) ObserveForwarderAttempt(route, outcome string, dur time.Duration) {
	r.forwarderAttempts.WithLabelValues(route, outcome).Inc()
	r.forwarderDuration.WithLabelValues(route, outcome).Observe(dur.Seconds())
}

// RecordMockGeneration records one synthesized mock response.
func (r *Registry) RecordMockGeneration(route string, corrupted bool) {
	r.mockGenerations.WithLabelValues(route, strconv.FormatBool(corrupted)).Inc()
}

// SetHealthScore updates the live per-endpoint health score gauge.
func (r *Registry) SetHealthScore(route string, score float64) {
	r.healthScore.WithLabelValues(route).Set(score)
}

// SetGlobalHealthScore updates the platform-wide health score gauge.
func (r *Registry) SetGlobalHealthScore(score float64) {
	r.globalHealthScore.Set(score)
}

// RecordDetectorAnomaly records one latency anomaly detection.
func (r *Registry) RecordDetectorAnomaly(route, severity string) {
	r.detectorAnomalies.WithLabelValues(route, severity).Inc()
}

// SetDetectorEndpointCount updates the gauge of endpoints with a learned baseline.
func (r *Registry) SetDetectorEndpointCount(n int) {
	r.detectorEndpoints.Set(float64(n))
}

// RecordDriftAlert records one new or refreshed drift alert.
func (r *Registry) RecordDriftAlert(route, severity string) {
	r.driftAlerts.WithLabelValues(route, severity).Inc()
}

// SetOpenDriftAlertCount updates the gauge of unresolved drift alerts.
func (r *Registry) SetOpenDriftAlertCount(n int) {
	r.driftAlertsOpen.Set(float64(n))
}

// SetLearningBufferDepth updates the gauge of queued learning observations.
func (r *Registry) SetLearningBufferDepth(n int) {
	r.learningBufferDepth.Set(float64(n))
}

// RecordLearningBatch increments the processed-batch counter.
func (r *Registry) RecordLearningBatch() {
	r.learningBatches.Inc()
}

// RecordRateLimit records one control-plane rate limit decision.
func (r *Registry) RecordRateLimit(result string) {
	r.rateLimitTotal.WithLabelValues(result).Inc()
}

// SetBroadcasterSubscribers updates the live subscriber count gauge.
func (r *Registry) SetBroadcasterSubscribers(n int) {
	r.broadcasterSubscribers.Set(float64(n))
}

// SetBuildInfo publishes the running binary's version as a gauge so the
// time series always exists.
func (r *Registry) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}

// SetComponentHealth records the latest readiness probe result for a
// platform dependency (e.g. "store", "analytics_sink").
func (r *Registry) SetComponentHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	r.componentHealth.WithLabelValues(component).Set(v)
}

// SetCircuitBreaker sets the circuit breaker state gauge for route and
// increments a transition counter when the state changes.
func (r *Registry) SetCircuitBreaker(route string, state int64) {
	r.circuitBreakerState.WithLabelValues(route).Set(float64(state))

	r.cbMu.Lock()
	prev, ok := r.lastCBState[route]
	if !ok || prev != float64(state) {
		r.lastCBState[route] = float64(state)
		toState := strconv.FormatInt(state, 10)
		r.cbTransitions.WithLabelValues(route, toState).Inc()
	}
	r.cbMu.Unlock()
}

func (r *Registry) RecordCircuitBreakerRejection(route, state string) {
	r.cbRejections.WithLabelValues(route, state).Inc()
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
