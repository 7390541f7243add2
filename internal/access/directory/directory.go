// Package directory resolves an authenticated principal to its role.
//
// Resolution favours availability: a missing record, an unreadable role or a
// failed lookup all resolve to the least-privileged default role instead of
// an error. The default is never cached, so a recovered directory is picked
// up on the next request.
package directory

//go:generate mockgen -source=directory.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"medorder/internal/access/metrics"
	"medorder/internal/access/models"
	dErrors "medorder/pkg/domain-errors"
	"medorder/pkg/platform/sentinel"
	"medorder/pkg/requestcontext"
)

// ErrIdentityMissing is returned when there is no principal to resolve.
var ErrIdentityMissing = dErrors.New(dErrors.CodeUnauthorized, "identity missing")

// Store reads one role per principal. It returns sentinel.ErrNotFound when the
// principal has no directory record.
type Store interface {
	FindRole(ctx context.Context, principalID string) (models.Role, error)
}

// Service resolves principals against a Store.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a directory service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("role store is required")
	}
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Resolve returns the principal with its directory role, or DefaultRole when
// the role cannot be established. The only error is ErrIdentityMissing.
// Concurrent lookups for the same principal share one store round trip.
func (s *Service) Resolve(ctx context.Context, principalID string) (models.Principal, error) {
	if principalID == "" {
		return models.Principal{}, ErrIdentityMissing
	}

	start := time.Now()
	v, err, _ := s.group.Do(principalID, func() (any, error) {
		return s.store.FindRole(ctx, principalID)
	})
	s.metrics.ObserveLookup(time.Since(start).Seconds())

	principal := models.Principal{ID: principalID, Role: models.DefaultRole}
	requestID := requestcontext.RequestID(ctx)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncRoleFallback(metrics.FallbackNotFound)
		s.logger.DebugContext(ctx, "no directory record, using default role",
			"principal_id", principalID,
			"request_id", requestID,
		)
	case err != nil:
		s.metrics.IncRoleFallback(metrics.FallbackLookupError)
		s.logger.WarnContext(ctx, "role lookup failed, using default role",
			"principal_id", principalID,
			"request_id", requestID,
			"error", err,
		)
	default:
		role, _ := v.(models.Role)
		if !role.IsValid() {
			s.metrics.IncRoleFallback(metrics.FallbackInvalidRole)
			s.logger.WarnContext(ctx, "directory holds unknown role, using default role",
				"principal_id", principalID,
				"stored_role", string(role),
				"request_id", requestID,
			)
			break
		}
		principal.Role = role
	}
	return principal, nil
}
