// Package mcpkit holds the shared endpoint shape and MCP tool plumbing.
//
// An Endpoint is a transport-agnostic request handler. The same endpoint can
// back an MCP tool (via Register) and an HTTP route, keeping tool logic out
// of transport code.
package mcpkit

import "context"

// Endpoint is a transport-agnostic request handler.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first middleware is the
// outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
