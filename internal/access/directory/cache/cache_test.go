package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medorder/internal/access/directory/mocks"
	"medorder/internal/access/metrics"
	"medorder/internal/access/models"
	"medorder/pkg/platform/sentinel"
)

type CacheSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	next    *mocks.MockStore
	mr      *miniredis.Miniredis
	client  *redis.Client
	metrics *metrics.Metrics
	store   *Store
	ctx     context.Context
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.next = mocks.NewMockStore(s.ctrl)
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.metrics = metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = New(s.client, s.next, time.Minute, WithLogger(logger), WithMetrics(s.metrics))
	s.ctx = context.Background()
}

func (s *CacheSuite) TearDownTest() {
	_ = s.client.Close()
	s.ctrl.Finish()
}

func (s *CacheSuite) TestHitAvoidsDirectory() {
	s.next.EXPECT().FindRole(gomock.Any(), "user_1").Return(models.RoleSeller, nil).Times(1)

	for range 3 {
		role, err := s.store.FindRole(s.ctx, "user_1")
		s.Require().NoError(err)
		s.Equal(models.RoleSeller, role)
	}
	s.Equal(2.0, promtestutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues(metrics.CacheHit)))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues(metrics.CacheMiss)))
}

func (s *CacheSuite) TestEntriesExpire() {
	s.next.EXPECT().FindRole(gomock.Any(), "user_1").Return(models.RoleSeller, nil).Times(2)

	_, err := s.store.FindRole(s.ctx, "user_1")
	s.Require().NoError(err)
	s.mr.FastForward(2 * time.Minute)
	_, err = s.store.FindRole(s.ctx, "user_1")
	s.Require().NoError(err)
}

func (s *CacheSuite) TestKeyDoesNotExposePrincipal() {
	s.next.EXPECT().FindRole(gomock.Any(), "user_secret").Return(models.RoleAdmin, nil)

	_, err := s.store.FindRole(s.ctx, "user_secret")
	s.Require().NoError(err)

	keys := s.mr.Keys()
	s.Require().Len(keys, 1)
	s.NotContains(keys[0], "user_secret")
	s.Contains(keys[0], roleKeyPrefix)
}

func (s *CacheSuite) TestFailuresAreNotCached() {
	s.next.EXPECT().FindRole(gomock.Any(), "user_new").Return(models.Role(""), sentinel.ErrNotFound).Times(2)

	for range 2 {
		_, err := s.store.FindRole(s.ctx, "user_new")
		s.ErrorIs(err, sentinel.ErrNotFound)
	}
	s.Empty(s.mr.Keys())
}

func (s *CacheSuite) TestInvalidRoleIsNotCached() {
	s.next.EXPECT().FindRole(gomock.Any(), "user_odd").Return(models.Role("owner"), nil)

	role, err := s.store.FindRole(s.ctx, "user_odd")
	s.Require().NoError(err)
	s.Equal(models.Role("owner"), role)
	s.Empty(s.mr.Keys())
}

func (s *CacheSuite) TestRedisOutageFallsThrough() {
	s.mr.SetError("ERR cache unavailable")
	s.next.EXPECT().FindRole(gomock.Any(), "user_1").Return(models.RoleAdmin, nil)

	role, err := s.store.FindRole(s.ctx, "user_1")
	s.Require().NoError(err)
	s.Equal(models.RoleAdmin, role)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues(metrics.CacheError)))
}

func (s *CacheSuite) TestDirectoryErrorPropagates() {
	boom := errors.New("directory down")
	s.next.EXPECT().FindRole(gomock.Any(), "user_1").Return(models.Role(""), boom)

	_, err := s.store.FindRole(s.ctx, "user_1")
	s.ErrorIs(err, boom)
}

func (s *CacheSuite) TestInvalidate() {
	s.next.EXPECT().FindRole(gomock.Any(), "user_1").Return(models.RoleSeller, nil)
	s.next.EXPECT().FindRole(gomock.Any(), "user_1").Return(models.RoleAdmin, nil)

	role, err := s.store.FindRole(s.ctx, "user_1")
	s.Require().NoError(err)
	s.Equal(models.RoleSeller, role)

	s.Require().NoError(s.store.Invalidate(s.ctx, "user_1"))

	role, err = s.store.FindRole(s.ctx, "user_1")
	s.Require().NoError(err)
	s.Equal(models.RoleAdmin, role)
}
