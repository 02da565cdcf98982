// Package platform holds the small set of process-wide knobs that every
// request touches: which operating mode the gateway is in, whether the
// learning worker is absorbing new traffic, which chaos profile is active,
// and where upstream traffic is forwarded. It is the Go shape of a single
// shared mutable record, kept deliberately tiny and mutex-guarded rather
// than sharded across many atomics -- reads and writes are both rare
// relative to request volume.
package platform

import (
	"fmt"
	"strings"
	"sync"
)

// Mode is the platform's operating mode.
type Mode string

const (
	// ModeProxy forwards requests to the configured target, only falling
	// back to the mock generator on network-class upstream failures.
	ModeProxy Mode = "proxy"
	// ModeMock answers every request from the mock generator, ignoring
	// the configured target entirely.
	ModeMock Mode = "mock"
)

// ChaosProfile is a named bundle of global chaos behavior.
type ChaosProfile struct {
	Name               string
	GlobalChaos        int
	LatencyBoostMs     int
	LatencyBoostMethod map[string]int
	CorruptResponses   bool
}

// Profiles is the fixed catalog of built-in chaos profiles.
var Profiles = map[string]ChaosProfile{
	"normal": {
		Name:        "normal",
		GlobalChaos: 0,
	},
	"friday_afternoon": {
		Name:           "friday_afternoon",
		GlobalChaos:    30,
		LatencyBoostMs: 1000,
	},
	"db_bottleneck": {
		Name:               "db_bottleneck",
		GlobalChaos:        0,
		LatencyBoostMethod: map[string]int{"POST": 5000, "PUT": 5000, "PATCH": 5000},
	},
	"zombie_api": {
		Name:             "zombie_api",
		GlobalChaos:      0,
		CorruptResponses: true,
	},
}

// State is the current snapshot of every platform-wide setting.
type State struct {
	Mode           Mode
	LearningOn     bool
	ActiveProfile  string
	TargetURL      string
}

// Platform is the mutex-guarded holder of State.
type Platform struct {
	mu    sync.RWMutex
	state State
}

// New constructs a Platform with the given initial settings. profile falls
// back to "normal" if it does not name a known profile.
func New(mode Mode, learningOn bool, profile, targetURL string) *Platform {
	if _, ok := Profiles[profile]; !ok {
		profile = "normal"
	}
	return &Platform{state: State{Mode: mode, LearningOn: learningOn, ActiveProfile: profile, TargetURL: targetURL}}
}

// Snapshot returns a copy of the current state.
func (p *Platform) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Mode returns the current operating mode.
func (p *Platform) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Mode
}

// SetMode switches the operating mode.
func (p *Platform) SetMode(m Mode) error {
	if m != ModeProxy && m != ModeMock {
		return fmt.Errorf("platform: unknown mode %q", m)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Mode = m
	return nil
}

// LearningEnabled reports whether the learning worker should absorb new
// observations.
func (p *Platform) LearningEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.LearningOn
}

// SetLearningEnabled toggles the learning worker.
func (p *Platform) SetLearningEnabled(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.LearningOn = on
}

// ActiveProfile returns the currently active chaos profile.
func (p *Platform) ActiveProfile() ChaosProfile {
	p.mu.RLock()
	name := p.state.ActiveProfile
	p.mu.RUnlock()
	return Profiles[name]
}

// SetActiveProfile switches the active chaos profile by name.
func (p *Platform) SetActiveProfile(name string) error {
	if _, ok := Profiles[name]; !ok {
		return fmt.Errorf("platform: unknown chaos profile %q", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ActiveProfile = name
	return nil
}

// TargetURL returns the upstream base URL requests are forwarded to, or
// "" if none is configured.
func (p *Platform) TargetURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.TargetURL
}

// SetTargetURL updates the upstream target. url must start with http:// or
// https://; nothing beyond that prefix is validated.
func (p *Platform) SetTargetURL(url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("platform: target url must start with http:// or https://, got %q", url)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.TargetURL = url
	return nil
}
