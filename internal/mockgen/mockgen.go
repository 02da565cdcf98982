// Package mockgen synthesizes realistic HTTP responses from an endpoint's
// learned behavior: its latency distribution, error rate, status-code
// histogram, and response schema, all deliberately degraded by whatever
// chaos is currently in effect.
package mockgen

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/nulpointcorp/adaptivemock/internal/platform"
	"github.com/nulpointcorp/adaptivemock/internal/schema"
	"github.com/nulpointcorp/adaptivemock/internal/store"
)

// Behavior is the subset of a learned store.Behavior the generator needs,
// kept separate from the store package's row shape so this package has no
// direct dependency on SQL scan types.
type Behavior struct {
	LatencyMean            float64
	LatencyStd             float64
	ErrorRate              float64
	StatusCodeDistribution map[string]float64
}

// FromStoreBehavior adapts a store.Behavior into the generator's input shape.
func FromStoreBehavior(b store.Behavior) Behavior {
	return Behavior{
		LatencyMean:            b.LatencyMean,
		LatencyStd:             b.LatencyStd,
		ErrorRate:              b.ErrorRate,
		StatusCodeDistribution: b.StatusCodeDistribution,
	}
}

// Result is one synthesized mock response.
type Result struct {
	StatusCode int
	Body       []byte
	LatencyMs  float64
	Corrupted  bool
}

// Generator produces synthetic responses. It reads learned response shapes
// from a schema.Registry so generated bodies track whatever the real
// upstream has actually been returning.
type Generator struct {
	schemas *schema.Registry
	rand    *rand.Rand
}

// New creates a Generator backed by schemas.
func New(schemas *schema.Registry) *Generator {
	return &Generator{schemas: schemas, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// EffectiveChaos combines the per-endpoint, profile-global, and per-request
// override chaos levels into the single value that governs this request,
// clamped to [0,100].
func EffectiveChaos(endpointChaos int, endpointActive bool, profile platform.ChaosProfile, headerOverride *int) int {
	level := 0
	if endpointActive && endpointChaos > level {
		level = endpointChaos
	}
	if profile.GlobalChaos > level {
		level = profile.GlobalChaos
	}
	if headerOverride != nil && *headerOverride > level {
		level = *headerOverride
	}
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return level
}

// Generate synthesizes a response for one request against the endpoint's
// learned behavior, the effective chaos level, and the active chaos
// profile. isFailover marks a response synthesized because the real
// upstream could not be reached, so the body is annotated accordingly.
func (g *Generator) Generate(endpointKey, method string, behavior Behavior, chaos int, profile platform.ChaosProfile, requestBody []byte, isFailover bool) Result {
	latency := g.simulateLatency(behavior, chaos, method, profile)

	if profile.CorruptResponses {
		return Result{StatusCode: 200, Body: corruptedBody(), LatencyMs: latency, Corrupted: true}
	}

	if g.rand.Float64() < errorProbability(behavior, chaos) {
		body, _ := json.Marshal(map[string]any{"error": "internal server error", "status": 500})
		return Result{StatusCode: 500, Body: annotate(body, isFailover), LatencyMs: latency}
	}

	status := g.chooseStatus(behavior.StatusCodeDistribution)

	var reqVal any
	if len(requestBody) > 0 {
		_ = json.Unmarshal(requestBody, &reqVal)
	}

	var body []byte
	if g.schemas != nil && g.schemas.Has(endpointKey) {
		generated := g.schemas.Generate(endpointKey, reqVal)
		body, _ = json.Marshal(generated)
	}
	if len(body) == 0 {
		body, _ = json.Marshal(map[string]any{
			"message": "mock response",
			"status":  status,
		})
	}

	return Result{StatusCode: status, Body: annotate(body, isFailover), LatencyMs: latency}
}

func errorProbability(b Behavior, chaos int) float64 {
	p := b.ErrorRate + float64(chaos)/100.0
	if p > 0.9 {
		p = 0.9
	}
	if p < 0 {
		p = 0
	}
	return p
}

func (g *Generator) simulateLatency(b Behavior, chaos int, method string, profile platform.ChaosProfile) float64 {
	mean := b.LatencyMean
	if mean <= 0 {
		mean = 200
	}
	sample := mean + g.rand.NormFloat64()*b.LatencyStd
	if sample < 10 {
		sample = 10
	}
	sample += float64(chaos) * 10
	sample += float64(profile.LatencyBoostMs)
	if boost, ok := profile.LatencyBoostMethod[method]; ok {
		sample += float64(boost)
	}
	return sample
}

// chooseStatus samples one status code from dist, weighted by probability.
// An empty distribution returns 200.
func (g *Generator) chooseStatus(dist map[string]float64) int {
	if len(dist) == 0 {
		return 200
	}

	codes := make([]string, 0, len(dist))
	for code := range dist {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	r := g.rand.Float64()
	var cum float64
	for _, code := range codes {
		cum += dist[code]
		if r <= cum {
			return atoiOr200(code)
		}
	}
	return atoiOr200(codes[len(codes)-1])
}

func atoiOr200(s string) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n == 0 {
		return 200
	}
	return n
}

func corruptedBody() []byte {
	return []byte(`{"status": "ok", "data": "\xc3\x28corrupted-payload-truncat`)
}

func annotate(body []byte, isFailover bool) []byte {
	if !isFailover {
		return body
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil || m == nil {
		m = map[string]any{}
	}
	m["_mock_failover"] = true
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}
