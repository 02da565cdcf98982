package mockgen

import (
	"encoding/json"
	"testing"

	"github.com/nulpointcorp/adaptivemock/internal/platform"
)

func TestEffectiveChaosTakesMax(t *testing.T) {
	override := 10
	level := EffectiveChaos(20, true, platform.Profiles["friday_afternoon"], &override)
	if level != 30 {
		t.Fatalf("expected max(20, 30, 10) = 30, got %d", level)
	}
}

func TestEffectiveChaosIgnoresInactiveEndpointLevel(t *testing.T) {
	level := EffectiveChaos(90, false, platform.Profiles["normal"], nil)
	if level != 0 {
		t.Fatalf("expected inactive endpoint chaos to be ignored, got %d", level)
	}
}

func TestEffectiveChaosClampedTo100(t *testing.T) {
	override := 500
	level := EffectiveChaos(0, false, platform.Profiles["normal"], &override)
	if level != 100 {
		t.Fatalf("expected clamp to 100, got %d", level)
	}
}

func TestGenerateZombieProfileReturns200Corrupted(t *testing.T) {
	g := New(nil)
	res := g.Generate("GET /x", "GET", Behavior{}, 0, platform.Profiles["zombie_api"], nil, false)
	if res.StatusCode != 200 || !res.Corrupted {
		t.Fatalf("expected corrupted 200 response, got %+v", res)
	}
}

func TestGenerateEmptyDistributionDefaultsTo200(t *testing.T) {
	g := New(nil)
	res := g.Generate("GET /x", "GET", Behavior{ErrorRate: 0}, 0, platform.Profiles["normal"], nil, false)
	if res.StatusCode != 200 {
		t.Fatalf("expected default status 200, got %d", res.StatusCode)
	}
}

func TestGenerateFailoverAnnotatesBody(t *testing.T) {
	g := New(nil)
	res := g.Generate("GET /x", "GET", Behavior{}, 0, platform.Profiles["normal"], nil, true)
	var m map[string]any
	if err := json.Unmarshal(res.Body, &m); err != nil {
		t.Fatalf("body not valid json: %v", err)
	}
	if flag, _ := m["_mock_failover"].(bool); !flag {
		t.Fatalf("expected failover marker in body, got %v", m)
	}
}

func TestDBBottleneckBoostsWriteMethodsOnly(t *testing.T) {
	g := New(nil)
	b := Behavior{LatencyMean: 100, LatencyStd: 0}
	getRes := g.Generate("GET /x", "GET", b, 0, platform.Profiles["db_bottleneck"], nil, false)
	postRes := g.Generate("POST /x", "POST", b, 0, platform.Profiles["db_bottleneck"], nil, false)
	if postRes.LatencyMs-getRes.LatencyMs < 4000 {
		t.Fatalf("expected POST latency boosted ~5000ms over GET, got GET=%f POST=%f", getRes.LatencyMs, postRes.LatencyMs)
	}
}
