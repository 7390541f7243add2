// Package requesttime provides middleware for request-scoped time.
// All audit entries written while serving one request share the same timestamp.
package requesttime

import (
	"net/http"
	"time"

	"medorder/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request
// and stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
