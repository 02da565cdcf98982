package proxy

import (
	"encoding/json"
	"time"

	"github.com/fasthttp/router"
	"github.com/nulpointcorp/adaptivemock/internal/metrics"
	"github.com/valyala/fasthttp"
)

// ServerDeps collects everything the HTTP server needs to wire its routes.
type ServerDeps struct {
	Dispatcher    *Dispatcher
	Admin         *AdminHandlers
	HealthChecker *HealthChecker
	Metrics       *metrics.Registry
	CORSOrigins   []string
}

// NewServer builds the fasthttp server: admin control-plane routes,
// health/readiness probes, Prometheus metrics, and a catch-all that hands
// every other method+path to the Dispatcher.
func NewServer(deps ServerDeps) *fasthttp.Server {
	r := router.New()

	r.GET("/health", func(ctx *fasthttp.RequestCtx) {
		if deps.HealthChecker == nil {
			writeJSON(ctx, map[string]any{"status": "ok"})
			return
		}
		writeJSON(ctx, deps.HealthChecker.Snapshot())
	})

	r.GET("/readiness", func(ctx *fasthttp.RequestCtx) {
		if deps.HealthChecker == nil || deps.HealthChecker.ReadinessOK() {
			writeJSON(ctx, map[string]string{"status": "ok"})
			return
		}
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		writeJSON(ctx, map[string]string{"status": "unavailable"})
	})

	if deps.Metrics != nil {
		r.GET("/metrics", deps.Metrics.Handler())
	}

	if deps.Admin != nil {
		registerAdminRoutes(r, deps.Admin)
	}

	if deps.Dispatcher != nil {
		r.NotFound = deps.Dispatcher.Handle
	}

	handler := applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(deps.CORSOrigins),
		securityHeaders,
	)

	return &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(data)
}
