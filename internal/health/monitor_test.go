package health

import "testing"

func TestEvaluateRequestHealthyByDefault(t *testing.T) {
	m := NewMonitor()
	a := m.EvaluateRequest(1, "/orders/{id}", 50, 200, 512, 0, 0, 0, false)
	if a.Status != "healthy" || a.HealthScore != 100 {
		t.Fatalf("expected healthy baseline assessment, got %+v", a)
	}
}

func TestEvaluateRequestLatencyAnomalyAgainstLearnedBaseline(t *testing.T) {
	m := NewMonitor()
	a := m.EvaluateRequest(1, "/orders/{id}", 900, 200, 512, 100, 50, 0, false)
	if !a.LatencyAnomaly {
		t.Fatalf("expected latency anomaly, got %+v", a)
	}
	if a.HealthScore >= 100 {
		t.Fatalf("expected penalty applied, got score %f", a.HealthScore)
	}
}

func TestEvaluateRequestDriftPenalty(t *testing.T) {
	m := NewMonitor()
	a := m.EvaluateRequest(1, "/orders/{id}", 50, 200, 512, 0, 0, 0, true)
	if !a.HasDrift {
		t.Fatalf("expected drift flag set")
	}
	if a.HealthScore != 80 {
		t.Fatalf("expected score reduced by drift penalty to 80, got %f", a.HealthScore)
	}
}

func TestErrorSpikeDetection(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 4; i++ {
		m.EvaluateRequest(2, "/checkout", 50, 200, 256, 0, 0, 0.01, false)
	}
	var last Assessment
	for i := 0; i < 3; i++ {
		last = m.EvaluateRequest(2, "/checkout", 50, 500, 256, 0, 0, 0.01, false)
	}
	if !last.ErrorSpike {
		t.Fatalf("expected error spike detected, got %+v", last)
	}
}

func TestGlobalHealthBlendsAverageAndMinimum(t *testing.T) {
	m := NewMonitor()
	m.EvaluateRequest(1, "/a", 50, 200, 256, 0, 0, 0, false)
	m.EvaluateRequest(2, "/b", 50, 200, 256, 0, 0, 0, true) // drift penalty -> 80

	g := m.GlobalHealth()
	// avg = (100+80)/2 = 90; min = 80; blend = 90*0.7 + 80*0.3 = 87
	if g.Score != 87 {
		t.Fatalf("expected blended global score 87, got %f", g.Score)
	}
	if g.Status != "healthy" {
		t.Fatalf("expected healthy global status, got %q", g.Status)
	}
}
