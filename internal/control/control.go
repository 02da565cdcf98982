// Package control implements the platform's control-plane operations: the
// small set of administrative writes and reads that configure mode,
// learning, chaos, and target routing, and that surface learned endpoint
// state, drift alerts, and detector baselines. Every operation here is
// invoked from the admin surface, not the proxied hot path.
package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nulpointcorp/adaptivemock/internal/detector"
	"github.com/nulpointcorp/adaptivemock/internal/health"
	"github.com/nulpointcorp/adaptivemock/internal/platform"
	"github.com/nulpointcorp/adaptivemock/internal/schema"
	"github.com/nulpointcorp/adaptivemock/internal/store"
)

// ValidationError marks a control-plane request as malformed: the HTTP
// layer maps it to a bad-request response rather than a 500.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Controller binds the control-plane operations to the live platform
// state and subsystems.
type Controller struct {
	Platform *platform.Platform
	Store    *store.Store
	Detector *detector.Detector
	Schemas  *schema.Registry
	Health   *health.Monitor
}

// SetMode writes platform.mode.
func (c *Controller) SetMode(mode string) error {
	if err := c.Platform.SetMode(platform.Mode(mode)); err != nil {
		return invalid("%s", err)
	}
	return nil
}

// SetLearningEnabled toggles platform.learning_enabled.
func (c *Controller) SetLearningEnabled(on bool) {
	c.Platform.SetLearningEnabled(on)
}

// SetActiveProfile switches the active chaos profile.
func (c *Controller) SetActiveProfile(name string) error {
	if err := c.Platform.SetActiveProfile(name); err != nil {
		return invalid("%s", err)
	}
	return nil
}

// SetTargetURL updates the upstream target URL.
func (c *Controller) SetTargetURL(url string) error {
	if err := c.Platform.SetTargetURL(url); err != nil {
		return invalid("%s", err)
	}
	return nil
}

// SetGlobalChaos bulk-updates every endpoint's chaos level.
func (c *Controller) SetGlobalChaos(ctx context.Context, level int) (int64, error) {
	if level < 0 || level > 100 {
		return 0, invalid("chaos level must be within [0,100], got %d", level)
	}
	return c.Store.SetGlobalChaosLevel(ctx, level)
}

// SetEndpointChaos configures one endpoint's chaos level and active flag.
func (c *Controller) SetEndpointChaos(ctx context.Context, endpointID int64, level int, active bool) error {
	if level < 0 || level > 100 {
		return invalid("chaos level must be within [0,100], got %d", level)
	}
	return c.Store.SetChaosConfig(ctx, endpointID, level, active)
}

// EndpointSummary is the read-model for "list endpoints / stats": the
// Endpoint joined with its learned Behavior and live health/detector state.
type EndpointSummary struct {
	Endpoint store.Endpoint
	Behavior store.Behavior
	Chaos    store.ChaosConfig
	Health   health.Assessment
	Detector detector.Detail
}

// ListEndpoints returns every known endpoint joined with its current
// behavior, chaos config, health assessment, and detector state.
func (c *Controller) ListEndpoints(ctx context.Context) ([]EndpointSummary, error) {
	endpoints, err := c.Store.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]EndpointSummary, 0, len(endpoints))
	for _, ep := range endpoints {
		behavior, err := c.Store.GetBehavior(ctx, ep.ID)
		if err != nil {
			return nil, fmt.Errorf("control: load behavior for endpoint %d: %w", ep.ID, err)
		}
		chaos, err := c.Store.GetChaosConfig(ctx, ep.ID)
		if err != nil {
			return nil, fmt.Errorf("control: load chaos config for endpoint %d: %w", ep.ID, err)
		}

		key := fmt.Sprintf("%s %s", ep.Method, ep.PathPattern)
		out = append(out, EndpointSummary{
			Endpoint: ep,
			Behavior: *behavior,
			Chaos:    *chaos,
			Health:   c.Health.EndpointHealth(ep.ID),
			Detector: c.Detector.Snapshot(key),
		})
	}
	return out, nil
}

// EndpointStats returns the same joined view as one entry of ListEndpoints,
// for a single endpoint.
func (c *Controller) EndpointStats(ctx context.Context, endpointID int64) (*EndpointSummary, error) {
	ep, err := c.Store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	behavior, err := c.Store.GetBehavior(ctx, ep.ID)
	if err != nil {
		return nil, fmt.Errorf("control: load behavior for endpoint %d: %w", ep.ID, err)
	}
	chaos, err := c.Store.GetChaosConfig(ctx, ep.ID)
	if err != nil {
		return nil, fmt.Errorf("control: load chaos config for endpoint %d: %w", ep.ID, err)
	}

	key := fmt.Sprintf("%s %s", ep.Method, ep.PathPattern)
	return &EndpointSummary{
		Endpoint: *ep,
		Behavior: *behavior,
		Chaos:    *chaos,
		Health:   c.Health.EndpointHealth(ep.ID),
		Detector: c.Detector.Snapshot(key),
	}, nil
}

// SchemasOpenAPI renders every learned schema as OpenAPI components.
func (c *Controller) SchemasOpenAPI() map[string]any {
	return c.Schemas.OpenAPIComponents()
}

// UpdateSchema replaces the request and/or response schema learned for an
// endpoint with a hand-authored document. Either argument may be nil/empty
// to leave that side untouched.
func (c *Controller) UpdateSchema(endpointKey string, requestJSON, responseJSON json.RawMessage) error {
	var reqNode, respNode *schema.Node
	if len(requestJSON) > 0 {
		reqNode = &schema.Node{}
		if err := json.Unmarshal(requestJSON, reqNode); err != nil {
			return invalid("invalid request schema document: %s", err)
		}
	}
	if len(responseJSON) > 0 {
		respNode = &schema.Node{}
		if err := json.Unmarshal(responseJSON, respNode); err != nil {
			return invalid("invalid response schema document: %s", err)
		}
	}
	if reqNode == nil && respNode == nil {
		return invalid("update schema requires at least one of request_schema or response_schema")
	}
	c.Schemas.SetSchema(endpointKey, reqNode, respNode)
	return nil
}

// ListDriftAlerts returns drift alerts, optionally restricted to
// unresolved ones.
func (c *Controller) ListDriftAlerts(ctx context.Context, unresolvedOnly bool) ([]store.DriftAlert, error) {
	return c.Store.ListDriftAlerts(ctx, unresolvedOnly)
}

// ResolveDriftAlert marks a drift alert resolved.
func (c *Controller) ResolveDriftAlert(ctx context.Context, alertID int64) error {
	return c.Store.ResolveDriftAlert(ctx, alertID)
}

// ResetDetector clears the learned Welford baseline for one endpoint, or
// every endpoint when endpointKey is empty.
func (c *Controller) ResetDetector(endpointKey string) {
	if endpointKey == "" {
		c.Detector.ResetAll()
		return
	}
	c.Detector.Reset(endpointKey)
}
