package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medorder/internal/access/directory/mocks"
	"medorder/internal/access/metrics"
	"medorder/internal/access/models"
	dErrors "medorder/pkg/domain-errors"
	"medorder/pkg/platform/sentinel"
)

// =============================================================================
// Directory Service Test Suite
// =============================================================================
// Justification for unit tests: role resolution must degrade to the buyer
// role on every failure path without surfacing an error, and must never
// elevate. These paths are hard to reach through the HTTP boundary.

type DirectoryServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	metrics   *metrics.Metrics
	service   *Service
	ctx       context.Context
}

func TestDirectoryServiceSuite(t *testing.T) {
	suite.Run(t, new(DirectoryServiceSuite))
}

func (s *DirectoryServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service, _ = New(s.mockStore, WithLogger(logger), WithMetrics(s.metrics))
	s.ctx = context.Background()
}

func (s *DirectoryServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DirectoryServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.ErrorContains(err, "role store is required")
	})

	s.Run("options are applied", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc, err := New(s.mockStore, WithLogger(logger))
		s.NoError(err)
		s.Equal(logger, svc.logger)
	})
}

func (s *DirectoryServiceSuite) TestResolve() {
	s.Run("directory role is returned", func() {
		s.mockStore.EXPECT().FindRole(gomock.Any(), "user_seller").Return(models.RoleSeller, nil)

		p, err := s.service.Resolve(s.ctx, "user_seller")
		s.Require().NoError(err)
		s.Equal(models.Principal{ID: "user_seller", Role: models.RoleSeller}, p)
	})

	s.Run("missing record resolves to buyer", func() {
		s.mockStore.EXPECT().FindRole(gomock.Any(), "user_new").Return(models.Role(""), sentinel.ErrNotFound)

		p, err := s.service.Resolve(s.ctx, "user_new")
		s.Require().NoError(err)
		s.Equal(models.RoleBuyer, p.Role)
		s.Equal(1.0, promtestutil.ToFloat64(s.metrics.RoleFallbacks.WithLabelValues(metrics.FallbackNotFound)))
	})

	s.Run("failed lookup resolves to buyer, never admin", func() {
		s.mockStore.EXPECT().FindRole(gomock.Any(), "user_x").Return(models.RoleAdmin, errors.New("connection refused"))

		p, err := s.service.Resolve(s.ctx, "user_x")
		s.Require().NoError(err)
		s.Equal(models.RoleBuyer, p.Role)
		s.Equal(1.0, promtestutil.ToFloat64(s.metrics.RoleFallbacks.WithLabelValues(metrics.FallbackLookupError)))
	})

	s.Run("unknown stored role resolves to buyer", func() {
		s.mockStore.EXPECT().FindRole(gomock.Any(), "user_odd").Return(models.Role("superuser"), nil)

		p, err := s.service.Resolve(s.ctx, "user_odd")
		s.Require().NoError(err)
		s.Equal(models.RoleBuyer, p.Role)
	})

	s.Run("empty principal is identity missing", func() {
		_, err := s.service.Resolve(s.ctx, "")
		s.ErrorIs(err, ErrIdentityMissing)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
