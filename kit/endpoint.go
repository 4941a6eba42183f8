// Package kit holds the transport-agnostic endpoint plumbing shared by
// the HTTP and MCP surfaces: the endpoint signature, middleware chaining
// and request-scoped context values.
package kit

import "context"

// Endpoint is a transport-agnostic request handler. Transports decode
// their wire format into a typed request, call the endpoint, and encode
// the response.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
