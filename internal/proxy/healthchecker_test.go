package proxy

import (
	"context"
	"errors"
	"testing"
)

func TestHealthChecker_AllOK(t *testing.T) {
	hc := NewHealthChecker(context.Background(),
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
		nil,
	)
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.Status != "ok" {
		t.Errorf("expected status ok, got %s", snap.Status)
	}
	if !hc.ReadinessOK() {
		t.Error("expected readiness ok")
	}
}

func TestHealthChecker_NilSinkReportsOK(t *testing.T) {
	hc := NewHealthChecker(context.Background(),
		func(context.Context) error { return nil },
		nil,
		nil,
	)
	defer hc.Close()

	if hc.Snapshot().AnalyticsSink != "ok" {
		t.Errorf("expected nil sink ping to report ok")
	}
}

func TestHealthChecker_StoreDownFailsReadiness(t *testing.T) {
	hc := NewHealthChecker(context.Background(),
		func(context.Context) error { return errors.New("disk full") },
		nil,
		nil,
	)
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.Status != "degraded" {
		t.Errorf("expected degraded status, got %s", snap.Status)
	}
	if snap.Store != "down" {
		t.Errorf("expected store down, got %s", snap.Store)
	}
	if hc.ReadinessOK() {
		t.Error("expected readiness to fail when store is down")
	}
}

func TestHealthChecker_SinkDownDoesNotGateReadiness(t *testing.T) {
	hc := NewHealthChecker(context.Background(),
		func(context.Context) error { return nil },
		func(context.Context) error { return errors.New("clickhouse unreachable") },
		nil,
	)
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.Status != "degraded" {
		t.Errorf("expected overall degraded when sink is down, got %s", snap.Status)
	}
	if !hc.ReadinessOK() {
		t.Error("sink failure must not fail readiness")
	}
}
