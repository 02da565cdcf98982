package store

// HealthSink implements a non-blocking, batched writer for Health Samples.
//
// Samples are pushed onto an internal buffered channel and flushed in
// batches by a background goroutine, so recording a health sample never
// blocks the request hot path. If the channel fills up (> 10 000 pending
// samples), new samples are dropped and counted in DroppedSamples.

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const (
	sinkChannelBuffer = 10_000
	sinkBatchSize     = 200
	sinkFlushInterval = time.Second
)

// HealthSample is one append-only observation of an endpoint's health at
// the moment a request completed.
type HealthSample struct {
	EndpointID   int64
	PathPattern  string
	LatencyMs    float64
	StatusCode   uint16
	ResponseSize uint32
	HealthScore  float64
	Status       string
	HasDrift     bool
	RecordedAt   time.Time
}

// HealthSink is the ClickHouse-backed append-only sink for HealthSamples.
type HealthSink struct {
	conn clickhouse.Conn
	ch   chan HealthSample
	done chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	droppedSamples int64
}

// NewHealthSink opens a ClickHouse connection using dsn and starts the
// background batching goroutine. ctx governs the lifetime of batch writes,
// not of the sink itself -- call Close to stop it.
func NewHealthSink(ctx context.Context, dsn string) (*HealthSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("healthsink: parse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("healthsink: open connection: %w", err)
	}
	if err := conn.Exec(ctx, ddlHealthSamples); err != nil {
		return nil, fmt.Errorf("healthsink: migrate schema: %w", err)
	}

	s := &HealthSink{
		conn: conn,
		ch:   make(chan HealthSample, sinkChannelBuffer),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

const ddlHealthSamples = `
CREATE TABLE IF NOT EXISTS health_samples (
	endpoint_id Int64,
	path_pattern String,
	latency_ms Float64,
	status_code UInt16,
	response_size UInt32,
	health_score Float64,
	status String,
	has_drift UInt8,
	recorded_at DateTime
) ENGINE = MergeTree()
ORDER BY (endpoint_id, recorded_at)
`

// Record enqueues one sample for async persistence. Never blocks.
func (s *HealthSink) Record(sample HealthSample) {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now().UTC()
	}
	select {
	case s.ch <- sample:
	default:
		atomic.AddInt64(&s.droppedSamples, 1)
	}
}

// DroppedSamples returns how many samples were discarded because the
// buffer was full.
func (s *HealthSink) DroppedSamples() int64 {
	return atomic.LoadInt64(&s.droppedSamples)
}

// Ping verifies the ClickHouse connection is reachable, for readiness probes.
func (s *HealthSink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close flushes any pending samples and stops the background goroutine.
func (s *HealthSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.conn.Close()
}

func (s *HealthSink) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(sinkFlushInterval)
	defer ticker.Stop()

	batch := make([]HealthSample, 0, sinkBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.writeBatch(ctx, batch); err != nil {
			// The sink is append-only and best-effort: a failed batch is
			// dropped rather than retried indefinitely and starving the
			// channel of room for fresher samples.
			atomic.AddInt64(&s.droppedSamples, int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case sample := <-s.ch:
			batch = append(batch, sample)
			if len(batch) >= sinkBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.done:
			for {
				select {
				case sample := <-s.ch:
					batch = append(batch, sample)
					if len(batch) >= sinkBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *HealthSink) writeBatch(ctx context.Context, batch []HealthSample) error {
	b, err := s.conn.PrepareBatch(ctx, "INSERT INTO health_samples")
	if err != nil {
		return fmt.Errorf("healthsink: prepare batch: %w", err)
	}
	for _, sample := range batch {
		hasDrift := uint8(0)
		if sample.HasDrift {
			hasDrift = 1
		}
		if err := b.Append(
			sample.EndpointID,
			sample.PathPattern,
			sample.LatencyMs,
			sample.StatusCode,
			sample.ResponseSize,
			sample.HealthScore,
			sample.Status,
			hasDrift,
			sample.RecordedAt,
		); err != nil {
			return fmt.Errorf("healthsink: append row: %w", err)
		}
	}
	if err := b.Send(); err != nil {
		return fmt.Errorf("healthsink: send batch: %w", err)
	}
	return nil
}
