package platform

import "testing"

func TestNewFallsBackToNormalProfile(t *testing.T) {
	p := New(ModeProxy, true, "not_a_real_profile", "http://example.com")
	if p.ActiveProfile().Name != "normal" {
		t.Fatalf("expected fallback to normal profile, got %q", p.ActiveProfile().Name)
	}
}

func TestSetModeRejectsUnknown(t *testing.T) {
	p := New(ModeProxy, true, "normal", "")
	if err := p.SetMode("bogus"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if p.Mode() != ModeProxy {
		t.Fatalf("mode should be unchanged after rejected set")
	}
}

func TestSetTargetURLValidatesScheme(t *testing.T) {
	p := New(ModeProxy, true, "normal", "")
	if err := p.SetTargetURL("ftp://example.com"); err == nil {
		t.Fatalf("expected error for non-http(s) scheme")
	}
	if err := p.SetTargetURL("https://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TargetURL() != "https://example.com" {
		t.Fatalf("expected target url updated, got %q", p.TargetURL())
	}
}

func TestSetActiveProfileRejectsUnknown(t *testing.T) {
	p := New(ModeProxy, true, "normal", "")
	if err := p.SetActiveProfile("does_not_exist"); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestFridayAfternoonProfileShape(t *testing.T) {
	prof := Profiles["friday_afternoon"]
	if prof.GlobalChaos != 30 || prof.LatencyBoostMs != 1000 || prof.CorruptResponses {
		t.Fatalf("unexpected friday_afternoon profile shape: %+v", prof)
	}
}

func TestDBBottleneckProfileShape(t *testing.T) {
	prof := Profiles["db_bottleneck"]
	if prof.LatencyBoostMethod["POST"] != 5000 || prof.LatencyBoostMethod["PUT"] != 5000 || prof.LatencyBoostMethod["PATCH"] != 5000 {
		t.Fatalf("unexpected db_bottleneck profile shape: %+v", prof)
	}
}
