package auth

import (
	"context"
	"net/http"
)

// CallerHeader carries the caller identity in header mode. In jwt mode it is
// ignored.
const CallerHeader = "X-Caller"

type callerKey struct{}

// WithCaller returns ctx carrying an authenticated caller. The empty caller is
// the anonymous caller.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller set by the auth middleware and whether
// one was set at all.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok
}

// headerMiddleware trusts the caller named by the X-Caller header.
func headerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), r.Header.Get(CallerHeader))))
	})
}
