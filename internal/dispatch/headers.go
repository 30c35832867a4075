package dispatch

import (
	"context"
	"net/http"
)

type forwardedKey struct{}

// WithForwardedHeaders stores headers of the incoming MCP request that may be
// relayed upstream. The client still filters them through its allow list.
func WithForwardedHeaders(ctx context.Context, h http.Header) context.Context {
	if len(h) == 0 {
		return ctx
	}
	return context.WithValue(ctx, forwardedKey{}, h.Clone())
}

// ForwardedHeaders returns the headers stored by WithForwardedHeaders.
func ForwardedHeaders(ctx context.Context) http.Header {
	h, _ := ctx.Value(forwardedKey{}).(http.Header)
	return h
}
