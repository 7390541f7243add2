// Package middleware enforces the route policy at the request boundary,
// independent of what the presentation layer chooses to show.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"medorder/internal/access/metrics"
	"medorder/internal/access/models"
	"medorder/internal/access/policy"
	"medorder/pkg/platform/httputil"
	"medorder/pkg/platform/middleware/metadata"
	request "medorder/pkg/platform/middleware/request"
	"medorder/pkg/requestcontext"
)

// RoleResolver turns a principal ID into a Principal carrying its role.
type RoleResolver interface {
	Resolve(ctx context.Context, principalID string) (models.Principal, error)
}

type principalKey struct{}

// WithPrincipal stores the resolved principal in the context.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal resolved for this request.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}

// ResolvePrincipal looks up the role of the principal established by the
// auth middleware. Requests without a principal are rejected with 401.
func ResolvePrincipal(resolver RoleResolver, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, err := resolver.Resolve(ctx, requestcontext.PrincipalID(ctx))
			if err != nil {
				m.IncDecision(metrics.OutcomeIdentityMissing, "")
				logger.WarnContext(ctx, "principal could not be resolved",
					"path", r.URL.Path,
					"request_id", request.GetRequestID(ctx),
					"error", err,
				)
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "identity_missing", "Sign in required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

// Enforce rejects requests whose principal role is not permitted on the
// request path with 403 access_denied. Paths the policy does not cover pass.
func Enforce(pol *policy.Policy, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := PrincipalFromContext(ctx)
			if !ok {
				m.IncDecision(metrics.OutcomeIdentityMissing, "")
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "identity_missing", "Sign in required")
				return
			}

			decision := pol.Decide(principal.Role, r.URL.Path)
			switch {
			case !decision.Restricted:
				m.IncDecision(metrics.OutcomeUnrestricted, principal.Role.String())
			case decision.Permitted:
				m.IncDecision(metrics.OutcomePermitted, principal.Role.String())
			default:
				m.IncDecision(metrics.OutcomeDenied, principal.Role.String())
				logger.WarnContext(ctx, "access denied",
					"principal_id", principal.ID,
					"role", principal.Role,
					"path", r.URL.Path,
					"required_roles", decision.Required.Strings(),
					"client", metadata.ClientSummary(requestcontext.UserAgent(ctx)),
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteErrorCode(w, http.StatusForbidden, "access_denied", "Your role does not permit access to this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
