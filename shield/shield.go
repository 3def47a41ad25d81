// Package shield provides the HTTP middleware the redress API runs behind:
// security headers, request body caps, and per-request trace IDs.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.TraceID)
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxBody(1 << 20))
package shield

import "context"

type contextKey string

const traceIDKey contextKey = "shield.trace_id"

// GetTraceID returns the request trace ID injected by the TraceID
// middleware, or "" when none is set.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
