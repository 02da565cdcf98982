package proxy

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/nulpointcorp/adaptivemock/internal/control"
	"github.com/nulpointcorp/adaptivemock/internal/metrics"
	"github.com/nulpointcorp/adaptivemock/internal/ratelimit"
	"github.com/nulpointcorp/adaptivemock/pkg/apierr"
	"github.com/valyala/fasthttp"
)

// AdminHandlers binds the control-plane HTTP surface under /admin to a
// control.Controller. Every handler here runs off the proxied hot path.
type AdminHandlers struct {
	Controller *control.Controller
	Limiter    *ratelimit.RPMLimiter
	Metrics    *metrics.Registry
	Log        *slog.Logger
}

func registerAdminRoutes(r *router.Router, a *AdminHandlers) {
	wrap := a.rateLimited

	r.GET("/admin/endpoints", wrap(a.listEndpoints))
	r.GET("/admin/endpoints/{id}/stats", wrap(a.endpointStats))
	r.POST("/admin/endpoints/{id}/chaos", wrap(a.setEndpointChaos))
	r.POST("/admin/endpoints/{id}/schema", wrap(a.updateSchema))
	r.GET("/admin/schemas/openapi", wrap(a.schemasOpenAPI))

	r.GET("/admin/mode", wrap(a.getMode))
	r.POST("/admin/mode", wrap(a.setMode))
	r.POST("/admin/learning", wrap(a.setLearningEnabled))
	r.POST("/admin/profile", wrap(a.setActiveProfile))
	r.POST("/admin/target", wrap(a.setTargetURL))
	r.POST("/admin/chaos/global", wrap(a.setGlobalChaos))

	r.GET("/admin/drift", wrap(a.listDriftAlerts))
	r.POST("/admin/drift/{id}/resolve", wrap(a.resolveDriftAlert))

	r.POST("/admin/detector/reset", wrap(a.resetDetector))
}

// rateLimited wraps handler with the global control-plane RPM limit. A nil
// Limiter (no Redis configured) disables rate limiting entirely.
func (a *AdminHandlers) rateLimited(handler fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if a.Limiter != nil {
			allowed, err := a.Limiter.Allow(ctx)
			if err != nil && a.Log != nil {
				a.Log.WarnContext(ctx, "admin_ratelimit_check_failed", slog.String("error", err.Error()))
			}
			if a.Metrics != nil {
				if allowed {
					a.Metrics.RecordRateLimit("allowed")
				} else {
					a.Metrics.RecordRateLimit("rejected")
				}
			}
			if !allowed {
				apierr.Write(ctx, fasthttp.StatusTooManyRequests, "admin rate limit exceeded", "rate_limited", "admin_rpm_exceeded")
				return
			}
		}
		handler(ctx)
	}
}

func (a *AdminHandlers) listEndpoints(ctx *fasthttp.RequestCtx) {
	summaries, err := a.Controller.ListEndpoints(ctx)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError, err.Error(), "internal_error", "list_endpoints_failed")
		return
	}
	writeJSON(ctx, map[string]any{"endpoints": summaries})
}

func (a *AdminHandlers) endpointStats(ctx *fasthttp.RequestCtx) {
	id, ok := pathInt64(ctx, "id")
	if !ok {
		apierr.WriteBadRequest(ctx, "invalid endpoint id")
		return
	}
	summary, err := a.Controller.EndpointStats(ctx, id)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusNotFound, err.Error(), "not_found", "endpoint_not_found")
		return
	}
	writeJSON(ctx, summary)
}

func (a *AdminHandlers) schemasOpenAPI(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, a.Controller.SchemasOpenAPI())
}

type chaosRequest struct {
	Level  int  `json:"level"`
	Active bool `json:"active"`
}

func (a *AdminHandlers) setEndpointChaos(ctx *fasthttp.RequestCtx) {
	id, ok := pathInt64(ctx, "id")
	if !ok {
		apierr.WriteBadRequest(ctx, "invalid endpoint id")
		return
	}
	var req chaosRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, "invalid JSON body")
		return
	}
	if err := a.Controller.SetEndpointChaos(ctx, id, req.Level, req.Active); err != nil {
		writeControlError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]string{"status": "ok"})
}

type schemaRequest struct {
	EndpointKey    string          `json:"endpoint_key"`
	RequestSchema  json.RawMessage `json:"request_schema"`
	ResponseSchema json.RawMessage `json:"response_schema"`
}

func (a *AdminHandlers) updateSchema(ctx *fasthttp.RequestCtx) {
	var req schemaRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, "invalid JSON body")
		return
	}
	if req.EndpointKey == "" {
		apierr.WriteBadRequest(ctx, "endpoint_key is required")
		return
	}
	if err := a.Controller.UpdateSchema(req.EndpointKey, req.RequestSchema, req.ResponseSchema); err != nil {
		writeControlError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]string{"status": "ok"})
}

func (a *AdminHandlers) getMode(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]string{"mode": string(a.Controller.Platform.Mode())})
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (a *AdminHandlers) setMode(ctx *fasthttp.RequestCtx) {
	var req modeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, "invalid JSON body")
		return
	}
	if err := a.Controller.SetMode(req.Mode); err != nil {
		writeControlError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]string{"status": "ok"})
}

type learningRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *AdminHandlers) setLearningEnabled(ctx *fasthttp.RequestCtx) {
	var req learningRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, "invalid JSON body")
		return
	}
	a.Controller.SetLearningEnabled(req.Enabled)
	writeJSON(ctx, map[string]string{"status": "ok"})
}

type profileRequest struct {
	Profile string `json:"profile"`
}

func (a *AdminHandlers) setActiveProfile(ctx *fasthttp.RequestCtx) {
	var req profileRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, "invalid JSON body")
		return
	}
	if err := a.Controller.SetActiveProfile(req.Profile); err != nil {
		writeControlError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]string{"status": "ok"})
}

type targetRequest struct {
	URL string `json:"url"`
}

func (a *AdminHandlers) setTargetURL(ctx *fasthttp.RequestCtx) {
	var req targetRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, "invalid JSON body")
		return
	}
	if err := a.Controller.SetTargetURL(req.URL); err != nil {
		writeControlError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]string{"status": "ok"})
}

type globalChaosRequest struct {
	Level int `json:"level"`
}

func (a *AdminHandlers) setGlobalChaos(ctx *fasthttp.RequestCtx) {
	var req globalChaosRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, "invalid JSON body")
		return
	}
	n, err := a.Controller.SetGlobalChaos(ctx, req.Level)
	if err != nil {
		writeControlError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{"status": "ok", "endpoints_updated": n})
}

func (a *AdminHandlers) listDriftAlerts(ctx *fasthttp.RequestCtx) {
	unresolvedOnly := string(ctx.QueryArgs().Peek("unresolved_only")) == "true"
	alerts, err := a.Controller.ListDriftAlerts(ctx, unresolvedOnly)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError, err.Error(), "internal_error", "list_drift_failed")
		return
	}
	writeJSON(ctx, map[string]any{"alerts": alerts})
}

func (a *AdminHandlers) resolveDriftAlert(ctx *fasthttp.RequestCtx) {
	id, ok := pathInt64(ctx, "id")
	if !ok {
		apierr.WriteBadRequest(ctx, "invalid alert id")
		return
	}
	if err := a.Controller.ResolveDriftAlert(ctx, id); err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError, err.Error(), "internal_error", "resolve_drift_failed")
		return
	}
	writeJSON(ctx, map[string]string{"status": "ok"})
}

type resetDetectorRequest struct {
	EndpointKey string `json:"endpoint_key"`
}

func (a *AdminHandlers) resetDetector(ctx *fasthttp.RequestCtx) {
	var req resetDetectorRequest
	if len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			apierr.WriteBadRequest(ctx, "invalid JSON body")
			return
		}
	}
	a.Controller.ResetDetector(req.EndpointKey)
	writeJSON(ctx, map[string]string{"status": "ok"})
}

func pathInt64(ctx *fasthttp.RequestCtx, name string) (int64, bool) {
	raw, ok := ctx.UserValue(name).(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// writeControlError maps a control.ValidationError to a 400, and anything
// else to a 500.
func writeControlError(ctx *fasthttp.RequestCtx, err error) {
	if _, ok := err.(*control.ValidationError); ok {
		apierr.WriteBadRequest(ctx, err.Error())
		return
	}
	apierr.Write(ctx, fasthttp.StatusInternalServerError, err.Error(), "internal_error", "control_operation_failed")
}
