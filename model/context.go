package model

import (
	"context"
)

// RequestContext carries the identity and tracing fields of one request.
// The transport middleware builds it once per request; when the API runs
// unauthenticated SubjectID is "local". Immutable after construction.
type RequestContext struct {
	SubjectID     string
	CorrelationID string
	TraceID       string
	SpanID        string
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
