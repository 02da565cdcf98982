package detector

import (
	"path/filepath"
	"testing"
)

func TestLearningModeUntilMinSamples(t *testing.T) {
	d := New("")
	for i := 0; i < MinLearningSamples-1; i++ {
		d.Update("/analyze", 100.0)
	}
	detail := d.Evaluate("/analyze", 9000.0)
	if detail.Mode != "learning" || detail.IsAnomaly {
		t.Fatalf("expected learning mode with no anomaly, got %+v", detail)
	}
}

func TestDetectsLatencySpike(t *testing.T) {
	d := New("")
	for i := 0; i < 20; i++ {
		d.Update("/analyze", 100.0)
	}
	detail := d.Evaluate("/analyze", 9000.0)
	if detail.Mode != "active" || !detail.IsAnomaly {
		t.Fatalf("expected active anomaly, got %+v", detail)
	}
	if detail.Severity != "high" {
		t.Fatalf("expected high severity, got %q", detail.Severity)
	}
}

func TestStableEndpointNotAnomalous(t *testing.T) {
	d := New("")
	latencies := []float64{98, 101, 99, 102, 100, 97, 103, 100, 99, 101}
	for _, l := range latencies {
		d.Update("/stable", l)
	}
	detail := d.Evaluate("/stable", 101.0)
	if detail.IsAnomaly {
		t.Fatalf("expected no anomaly for in-distribution latency, got %+v", detail)
	}
	if detail.HealthScore < 90 {
		t.Fatalf("expected near-perfect health score, got %f", detail.HealthScore)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detector_stats.json")
	d := New(path)
	for i := 0; i < 10; i++ {
		d.Update("/orders", 50.0)
	}
	if err := d.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.EndpointCount() != 1 {
		t.Fatalf("expected 1 endpoint restored, got %d", loaded.EndpointCount())
	}
	detail := loaded.Evaluate("/orders", 50.0)
	if detail.Mode != "active" {
		t.Fatalf("expected active mode after restore, got %+v", detail)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "missing.json"))
	if err := d.Load(); err != nil {
		t.Fatalf("expected no error for missing persistence file, got %v", err)
	}
}

func TestResetClearsSingleEndpoint(t *testing.T) {
	d := New("")
	for i := 0; i < 10; i++ {
		d.Update("/a", 100.0)
		d.Update("/b", 100.0)
	}
	d.Reset("/a")
	if d.Evaluate("/a", 100.0).Mode != "learning" {
		t.Fatalf("expected /a back in learning mode after reset")
	}
	if d.Evaluate("/b", 100.0).Mode != "active" {
		t.Fatalf("expected /b unaffected by reset of /a")
	}
}

func TestResetAllClearsEverything(t *testing.T) {
	d := New("")
	for i := 0; i < 10; i++ {
		d.Update("/a", 100.0)
		d.Update("/b", 100.0)
	}
	d.ResetAll()
	if d.EndpointCount() != 0 {
		t.Fatalf("expected no endpoints after ResetAll, got %d", d.EndpointCount())
	}
}
