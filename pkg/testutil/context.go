package testutil

import (
	"net/http"
	"time"

	"medorder/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped clock so audit timestamps are
// deterministic.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
