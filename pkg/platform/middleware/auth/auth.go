// Package auth reads the principal established by the upstream identity
// provider. Token verification happens before requests reach this service;
// the gateway forwards the verified subject in a trusted header.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	request "medorder/pkg/platform/middleware/request"
	"medorder/pkg/platform/httputil"
	"medorder/pkg/requestcontext"
)

// DefaultPrincipalHeader is set by the identity-aware proxy.
const DefaultPrincipalHeader = "X-Principal-ID"

const maxPrincipalIDLength = 255

// RequirePrincipal rejects requests that carry no principal with 401
// identity_missing, so callers can send the user through sign-in.
func RequirePrincipal(header string, logger *slog.Logger) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultPrincipalHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principalID := strings.TrimSpace(r.Header.Get(header))
			if principalID == "" || len(principalID) > maxPrincipalIDLength {
				logger.WarnContext(ctx, "unauthenticated request - missing principal",
					"path", r.URL.Path,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "identity_missing", "Sign in required")
				return
			}
			ctx = requestcontext.WithPrincipalID(ctx, principalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
