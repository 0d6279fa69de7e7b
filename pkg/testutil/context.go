package testutil

import (
	"context"
	"net/http"
	"time"

	"gradenorm/pkg/requestcontext"
)

// WithActor stamps the request context with an acting principal, the way the
// actor middleware would for a real request.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestID stamps the request context with a request id.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// ContextAt returns a context whose clock is frozen at the given instant.
// Services that resolve "today" through the request context see this time
// instead of the wall clock.
func ContextAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}
