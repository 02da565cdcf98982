package control

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nulpointcorp/adaptivemock/internal/detector"
	"github.com/nulpointcorp/adaptivemock/internal/health"
	"github.com/nulpointcorp/adaptivemock/internal/platform"
	"github.com/nulpointcorp/adaptivemock/internal/schema"
	"github.com/nulpointcorp/adaptivemock/internal/store"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return &Controller{
		Platform: platform.New(platform.ModeProxy, true, "normal", "http://upstream"),
		Store:    st,
		Detector: detector.New(""),
		Schemas:  schema.NewRegistry(filepath.Join(t.TempDir(), "schemas.json")),
		Health:   health.NewMonitor(),
	}
}

func TestSetModeRejectsInvalid(t *testing.T) {
	c := newTestController(t)
	err := c.SetMode("not-a-mode")
	if err == nil {
		t.Fatalf("expected validation error for bad mode")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestSetModeAccepted(t *testing.T) {
	c := newTestController(t)
	if err := c.SetMode("mock"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Platform.Mode() != platform.ModeMock {
		t.Fatalf("expected mode switched to mock")
	}
}

func TestSetGlobalChaosRejectsOutOfRange(t *testing.T) {
	c := newTestController(t)
	if _, err := c.SetGlobalChaos(context.Background(), 150); err == nil {
		t.Fatalf("expected validation error for out-of-range chaos level")
	}
}

func TestSetGlobalChaosAppliesToAllEndpoints(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	ep1, _ := c.Store.GetOrCreateEndpoint(ctx, "GET", "/a", "http://upstream")
	ep2, _ := c.Store.GetOrCreateEndpoint(ctx, "GET", "/b", "http://upstream")

	n, err := c.SetGlobalChaos(ctx, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows affected, got %d", n)
	}

	c1, _ := c.Store.GetChaosConfig(ctx, ep1.ID)
	c2, _ := c.Store.GetChaosConfig(ctx, ep2.ID)
	if c1.ChaosLevel != 50 || c2.ChaosLevel != 50 {
		t.Fatalf("expected both endpoints at chaos 50, got %+v %+v", c1, c2)
	}
}

func TestListEndpointsJoinsBehaviorAndHealth(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	c.Store.GetOrCreateEndpoint(ctx, "GET", "/orders/{id}", "http://upstream")

	summaries, err := c.ListEndpoints(ctx)
	if err != nil {
		t.Fatalf("list endpoints: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 endpoint summary, got %d", len(summaries))
	}
	if summaries[0].Behavior.LatencyMean != 400 {
		t.Fatalf("expected default latency mean, got %f", summaries[0].Behavior.LatencyMean)
	}
	if summaries[0].Health.Status != "healthy" {
		t.Fatalf("expected default healthy status, got %q", summaries[0].Health.Status)
	}
}

func TestUpdateSchemaRejectsEmptyPayload(t *testing.T) {
	c := newTestController(t)
	if err := c.UpdateSchema("GET /x", nil, nil); err == nil {
		t.Fatalf("expected validation error for empty schema update")
	}
}

func TestUpdateSchemaRejectsInvalidJSON(t *testing.T) {
	c := newTestController(t)
	if err := c.UpdateSchema("GET /x", nil, []byte(`not json`)); err == nil {
		t.Fatalf("expected validation error for invalid json")
	}
}

func TestResetDetectorAll(t *testing.T) {
	c := newTestController(t)
	for i := 0; i < 10; i++ {
		c.Detector.Update("GET /x", 100)
	}
	c.ResetDetector("")
	if c.Detector.EndpointCount() != 0 {
		t.Fatalf("expected detector cleared")
	}
}

func TestDriftAlertResolveRoundtrip(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	ep, _ := c.Store.GetOrCreateEndpoint(ctx, "GET", "/x", "http://upstream")
	if err := c.Store.UpsertDriftAlert(ctx, ep.ID, 50, "field removed", []byte(`{}`)); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	alerts, err := c.ListDriftAlerts(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	if err := c.ResolveDriftAlert(ctx, alerts[0].ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	remaining, _ := c.ListDriftAlerts(ctx, true)
	if len(remaining) != 0 {
		t.Fatalf("expected no unresolved alerts remaining")
	}
}
