package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nulpointcorp/adaptivemock/internal/schema"
	"github.com/nulpointcorp/adaptivemock/internal/store"
)

const pollInterval = 5 * time.Second

// snapAlpha is used the first time an endpoint's behavior is updated, to
// snap it out of its 400ms/empty-distribution defaults quickly. steadyAlpha
// governs every update after that, trading responsiveness for stability.
const (
	snapAlpha   = 0.5
	steadyAlpha = 0.1
)

// Worker drains a Buffer on a fixed cadence and folds each observation into
// its endpoint's learned Behavior: latency mean, status distribution,
// error rate, and request/response schemas.
type Worker struct {
	buffer    *Buffer
	store     *store.Store
	schemas   *schema.Registry
	minBatch  int
	log       *slog.Logger
}

// NewWorker creates a Worker. minBatch is the LEARNING_BUFFER_SIZE
// threshold: the buffer is only drained once it holds at least this many
// observations.
func NewWorker(buffer *Buffer, st *store.Store, schemas *schema.Registry, minBatch int, log *slog.Logger) *Worker {
	if minBatch < 1 {
		minBatch = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{buffer: buffer, store: st, schemas: schemas, minBatch: minBatch, log: log}
}

// Run polls the buffer every 5 seconds until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce drains the buffer (if it has reached minBatch) and learns
// from every item. A failure on one item is logged and does not abort the
// rest of the batch.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	batch := w.buffer.swap(w.minBatch)
	if len(batch) == 0 {
		return 0
	}

	for _, obs := range batch {
		if err := w.learnOne(ctx, obs); err != nil {
			w.log.Error("learning: failed to process observation",
				slog.String("method", obs.Method), slog.String("path_pattern", obs.PathPattern), slog.Any("error", err))
		}
	}

	w.log.Info("learning: processed batch", slog.Int("count", len(batch)))
	return len(batch)
}

func (w *Worker) learnOne(ctx context.Context, obs Observation) error {
	behavior, err := w.store.GetBehavior(ctx, obs.EndpointID)
	if err != nil {
		return fmt.Errorf("load behavior: %w", err)
	}

	alpha := steadyAlpha
	firstObservation := len(behavior.StatusCodeDistribution) == 0
	if firstObservation {
		alpha = snapAlpha
	}

	if firstObservation {
		behavior.LatencyMean = round2(obs.LatencyMs)
	} else {
		behavior.LatencyMean = round2((1-alpha)*behavior.LatencyMean + alpha*obs.LatencyMs)
	}

	statusKey := fmt.Sprintf("%d", obs.Status)
	dist := make(map[string]float64, len(behavior.StatusCodeDistribution)+1)
	for k, v := range behavior.StatusCodeDistribution {
		dist[k] = round6(v * (1 - alpha))
	}
	dist[statusKey] = round6(dist[statusKey] + alpha)
	var total float64
	for _, v := range dist {
		total += v
	}
	if total > 0 {
		for k, v := range dist {
			dist[k] = round6(v / total)
		}
	}
	behavior.StatusCodeDistribution = dist

	isError := 0.0
	if obs.Status >= 400 {
		isError = 1.0
	}
	behavior.ErrorRate = round4((1-alpha)*behavior.ErrorRate + alpha*isError)

	endpointKey := fmt.Sprintf("%s %s", obs.Method, obs.PathPattern)

	if obs.Status < 300 {
		if body, ok := decodeStructured(obs.ResponseBody); ok {
			changes := w.schemas.ObserveResponse(endpointKey, body)
			if len(changes) > 0 {
				if err := w.recordDrift(ctx, obs.EndpointID, changes); err != nil {
					w.log.Error("learning: failed to record drift alert", slog.Any("error", err))
				}
			}
		}
	}
	if body, ok := decodeStructured(obs.RequestBody); ok {
		w.schemas.ObserveRequest(endpointKey, body)
	}

	reqSchema, respSchema := w.schemas.SchemaJSON(endpointKey)
	if reqSchema != nil {
		behavior.RequestSchema = reqSchema
	}
	if respSchema != nil {
		behavior.ResponseSchema = respSchema
	}

	if err := w.store.UpdateBehavior(ctx, *behavior); err != nil {
		return fmt.Errorf("persist behavior: %w", err)
	}
	return nil
}

func (w *Worker) recordDrift(ctx context.Context, endpointID int64, changes []schema.Change) error {
	report := schema.BuildReport(changes)
	details, err := json.Marshal(report.Changes)
	if err != nil {
		return fmt.Errorf("marshal drift details: %w", err)
	}
	return w.store.UpsertDriftAlert(ctx, endpointID, float64(report.DriftScore), report.Narrative, details)
}

func decodeStructured(raw []byte) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	default:
		return nil, false
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
func round6(v float64) float64 { return math.Round(v*1000000) / 1000000 }
