// Package apierr provides the structured error envelope written back to
// clients of the mock platform's control plane and proxied traffic.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// Type constants name the platform's error taxonomy.
const (
	TypeNotFound           = "not_found"
	TypeServiceUnavailable = "service_unavailable"
	TypeBadRequest         = "bad_request"
	TypeBadGateway         = "bad_gateway"
)

// Code constants are the machine-readable reason within a Type.
const (
	CodeReservedPrefix  = "reserved_prefix"
	CodeNoTarget        = "no_target_configured"
	CodeInvalidPayload  = "invalid_payload"
	CodeUnclassified    = "unclassified_upstream_error"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given
// HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteNotFound writes a 404 for a request under a reserved prefix (e.g.
// /admin/* reached through the catch-all proxy route).
func WriteNotFound(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusNotFound, message, TypeNotFound, CodeReservedPrefix)
}

// WriteServiceUnavailable writes a 503 when no upstream target is
// configured and the platform cannot forward the request.
func WriteServiceUnavailable(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusServiceUnavailable, message, TypeServiceUnavailable, CodeNoTarget)
}

// WriteBadRequest writes a 400 for a malformed control-plane payload.
func WriteBadRequest(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadRequest, message, TypeBadRequest, CodeInvalidPayload)
}

// WriteBadGateway writes a 502 for an upstream failure that could not be
// classified as a recoverable network-class error (those are handled by
// mock failover instead, never surfaced to the client as an error).
func WriteBadGateway(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadGateway, message, TypeBadGateway, CodeUnclassified)
}
