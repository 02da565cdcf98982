package proxy

import (
	"sync"
	"time"
)

// cbState represents the operational state of a per-endpoint circuit breaker.
//
//	cbClosed   — normal operation; all requests pass through to the real upstream.
//	cbOpen     — the upstream has been failing; requests are routed to the
//	             Mock Generator immediately instead of being attempted.
//	cbHalfOpen — recovery probe; one request is allowed through to test the upstream.
type cbState int

const (
	cbClosed   cbState = 0
	cbOpen     cbState = 1
	cbHalfOpen cbState = 2
)

const (
	defaultCBErrorThreshold  = 5
	defaultCBTimeWindow      = 60 * time.Second
	defaultCBHalfOpenTimeout = 30 * time.Second
)

// CBConfig holds circuit breaker tuning parameters. Zero values fall back to
// the package-level defaults.
type CBConfig struct {
	// ErrorThreshold is the number of failures within TimeWindow that trips
	// the breaker. Default: 5.
	ErrorThreshold int

	// TimeWindow is the rolling window for counting errors. Default: 60s.
	TimeWindow time.Duration

	// HalfOpenTimeout is how long the breaker stays open before allowing a
	// single probe request. Default: 30s.
	HalfOpenTimeout time.Duration
}

func (c *CBConfig) errorThreshold() int {
	if c.ErrorThreshold > 0 {
		return c.ErrorThreshold
	}
	return defaultCBErrorThreshold
}

func (c *CBConfig) timeWindow() time.Duration {
	if c.TimeWindow > 0 {
		return c.TimeWindow
	}
	return defaultCBTimeWindow
}

func (c *CBConfig) halfOpenTimeout() time.Duration {
	if c.HalfOpenTimeout > 0 {
		return c.HalfOpenTimeout
	}
	return defaultCBHalfOpenTimeout
}

// endpointCB holds per-endpoint circuit breaker state.
type endpointCB struct {
	mu sync.Mutex

	state         cbState
	errorCount    int
	windowStart   time.Time // start of the current error-counting window
	openedAt      time.Time // when the breaker was tripped (for half-open timer)
	probeInflight bool      // true while a half-open probe is in flight
}

// CircuitBreaker manages independent circuit breakers for every proxied
// endpoint, keyed by normalized "METHOD /path/pattern". Breakers are created
// lazily on first use -- there is no fixed universe of endpoints to
// pre-register, since the platform discovers them from live traffic.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	mu       sync.RWMutex
	breakers map[string]*endpointCB
	cfg      CBConfig
}

// NewCircuitBreaker creates a CircuitBreaker with default settings.
func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerWithConfig(CBConfig{})
}

// NewCircuitBreakerWithConfig creates a CircuitBreaker with custom thresholds.
func NewCircuitBreakerWithConfig(cfg CBConfig) *CircuitBreaker {
	return &CircuitBreaker{
		breakers: make(map[string]*endpointCB),
		cfg:      cfg,
	}
}

// Allow reports whether endpoint should receive the next upstream attempt.
//
//   - Closed  → always true.
//   - Open    → false, unless the half-open timeout has elapsed, in which case
//     the breaker transitions to HalfOpen and allows one probe.
//   - HalfOpen → true only if no probe is currently in flight.
func (cb *CircuitBreaker) Allow(endpoint string) bool {
	pcb := cb.getOrCreate(endpoint)

	pcb.mu.Lock()
	defer pcb.mu.Unlock()

	switch pcb.state {
	case cbClosed:
		return true

	case cbOpen:
		if time.Since(pcb.openedAt) >= cb.cfg.halfOpenTimeout() {
			pcb.state = cbHalfOpen
			pcb.probeInflight = true
			return true
		}
		return false

	case cbHalfOpen:
		if pcb.probeInflight {
			return false
		}
		pcb.probeInflight = true
		return true
	}

	return true
}

// RecordSuccess marks a successful upstream response for endpoint and
// resets the breaker to Closed regardless of its previous state.
func (cb *CircuitBreaker) RecordSuccess(endpoint string) {
	pcb := cb.getOrCreate(endpoint)

	pcb.mu.Lock()
	defer pcb.mu.Unlock()

	pcb.state = cbClosed
	pcb.errorCount = 0
	pcb.probeInflight = false
	pcb.windowStart = time.Now()
}

// RecordFailure increments the error counter for endpoint. When the counter
// reaches ErrorThreshold within TimeWindow the breaker opens.
func (cb *CircuitBreaker) RecordFailure(endpoint string) {
	pcb := cb.getOrCreate(endpoint)

	pcb.mu.Lock()
	defer pcb.mu.Unlock()

	now := time.Now()

	if now.Sub(pcb.windowStart) > cb.cfg.timeWindow() {
		pcb.errorCount = 0
		pcb.windowStart = now
	}

	pcb.errorCount++
	pcb.probeInflight = false

	if pcb.errorCount >= cb.cfg.errorThreshold() {
		pcb.state = cbOpen
		pcb.openedAt = now
	}
}

// State returns the current cbState for endpoint (useful for metrics export).
func (cb *CircuitBreaker) State(endpoint string) cbState {
	pcb := cb.getExisting(endpoint)
	if pcb == nil {
		return cbClosed
	}
	pcb.mu.Lock()
	defer pcb.mu.Unlock()
	return pcb.state
}

// StateLabel returns a human-readable state name: "closed", "open", or "half_open".
func (cb *CircuitBreaker) StateLabel(endpoint string) string {
	switch cb.State(endpoint) {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func (cb *CircuitBreaker) getExisting(endpoint string) *endpointCB {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.breakers[endpoint]
}

func (cb *CircuitBreaker) getOrCreate(endpoint string) *endpointCB {
	cb.mu.RLock()
	pcb, ok := cb.breakers[endpoint]
	cb.mu.RUnlock()
	if ok {
		return pcb
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if pcb, ok = cb.breakers[endpoint]; ok {
		return pcb
	}
	pcb = &endpointCB{state: cbClosed, windowStart: time.Now()}
	cb.breakers[endpoint] = pcb
	return pcb
}
