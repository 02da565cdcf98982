// Package learning processes raw traffic observations into the learned
// per-endpoint behavior that drives both mock generation and health
// scoring: latency mean, status-code distribution, error rate, and
// request/response schemas.
package learning

import "sync"

// Observation is one completed request, captured by the dispatcher and
// handed to the Learning Buffer for asynchronous processing.
type Observation struct {
	EndpointID   int64
	Method       string
	PathPattern  string
	Status       int
	LatencyMs    float64
	ResponseBody []byte
	RequestBody  []byte
}

// Buffer accumulates Observations under a lock until the worker swaps its
// contents out for processing. Enqueue never blocks the request path.
type Buffer struct {
	mu    sync.Mutex
	items []Observation
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Enqueue appends obs to the buffer.
func (b *Buffer) Enqueue(obs Observation) {
	b.mu.Lock()
	b.items = append(b.items, obs)
	b.mu.Unlock()
}

// Len reports how many observations are currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// swap atomically takes and clears the buffer's contents, returning nil
// if fewer than minCount items are present.
func (b *Buffer) swap(minCount int) []Observation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) < minCount {
		return nil
	}
	batch := b.items
	b.items = nil
	return batch
}
