package testutil

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zahori/pkg/requestcontext"
)

// WithRequestID tags the request the way the request ID middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithURLParams sets chi route parameters so a handler method can be called
// without mounting it on a router.
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
