package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"medorder/internal/access/directory"
	"medorder/internal/access/directory/cache"
	rolememory "medorder/internal/access/directory/store/memory"
	rolepostgres "medorder/internal/access/directory/store/postgres"
	accesshandler "medorder/internal/access/handler"
	accessmetrics "medorder/internal/access/metrics"
	accessmw "medorder/internal/access/middleware"
	"medorder/internal/access/models"
	"medorder/internal/access/navigation"
	"medorder/internal/access/policy"
	"medorder/internal/audit"
	audithandler "medorder/internal/audit/handler"
	auditmetrics "medorder/internal/audit/metrics"
	auditmemory "medorder/internal/audit/store/memory"
	auditpostgres "medorder/internal/audit/store/postgres"
	"medorder/internal/audit/stream"
	"medorder/internal/platform/config"
	"medorder/internal/platform/kafka"
	"medorder/internal/platform/metrics"
	"medorder/internal/platform/redis"
	"medorder/pkg/platform/httputil"
	"medorder/pkg/platform/middleware/auth"
	"medorder/pkg/platform/middleware/metadata"
	request "medorder/pkg/platform/middleware/request"
	"medorder/pkg/platform/middleware/requesttime"
)

type deps struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	db       *sql.DB
	redis    *redis.Client
	kafka    *kgo.Client
}

// newRouter assembles the access and audit modules on one chi router.
// Every /api route passes through principal resolution and policy
// enforcement; /healthz and /metrics do not.
func newRouter(ctx context.Context, cfg *config.Config, d deps) (http.Handler, error) {
	pol, err := loadPolicy(cfg.Access)
	if err != nil {
		return nil, err
	}
	d.logger.Info("access policy loaded", "entries", len(pol.Entries()), "file", cfg.Access.PolicyFile)

	accessM := accessmetrics.New(d.registry)
	resolver, err := newDirectory(cfg, d, accessM)
	if err != nil {
		return nil, err
	}

	auditM := auditmetrics.New(d.registry)
	store, err := newAuditStore(ctx, cfg, d, auditM)
	if err != nil {
		return nil, err
	}
	recorder, err := audit.New(store, audit.WithLogger(d.logger), audit.WithMetrics(auditM))
	if err != nil {
		return nil, err
	}

	httpM := metrics.New(d.registry)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(httpM.Middleware)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthHandler(d))
	r.Handle("/metrics", httpM.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePrincipal(cfg.Access.PrincipalHeader, d.logger))
		r.Use(accessmw.ResolvePrincipal(resolver, d.logger, accessM))
		r.Use(accessmw.Enforce(pol, d.logger, accessM))

		accesshandler.New(pol, navigation.New(pol, navigation.DefaultItems()), d.logger).Register(r)
		audithandler.New(recorder, d.logger).Register(r)
	})
	return r, nil
}

func loadPolicy(cfg config.Access) (*policy.Policy, error) {
	if cfg.PolicyFile == "" {
		return policy.Default(), nil
	}
	pol, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load access policy: %w", err)
	}
	return pol, nil
}

func newDirectory(cfg *config.Config, d deps, m *accessmetrics.Metrics) (*directory.Service, error) {
	var store directory.Store
	if d.db != nil {
		store = rolepostgres.New(d.db)
	} else {
		seed, err := parseRoleSeed(cfg.Access.RoleSeed)
		if err != nil {
			return nil, err
		}
		store = rolememory.NewInMemoryStore(seed)
		d.logger.Warn("no database configured, using in-memory role directory", "seeded", len(seed))
	}
	if d.redis != nil {
		store = cache.New(d.redis.Client, store, cfg.RoleCache.TTL,
			cache.WithLogger(d.logger),
			cache.WithMetrics(m),
		)
	}
	return directory.New(store, directory.WithLogger(d.logger), directory.WithMetrics(m))
}

func parseRoleSeed(seed map[string]string) (map[string]models.Role, error) {
	roles := make(map[string]models.Role, len(seed))
	for id, raw := range seed {
		role, err := models.ParseRole(raw)
		if err != nil {
			return nil, fmt.Errorf("ACCESS_ROLE_SEED entry %q: %w", id, err)
		}
		roles[id] = role
	}
	return roles, nil
}

func newAuditStore(ctx context.Context, cfg *config.Config, d deps, m *auditmetrics.Metrics) (audit.Store, error) {
	var store audit.Store
	if d.db != nil {
		pg := auditpostgres.New(d.db)
		if cfg.Database.MigrateOnStart {
			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		store = pg
	} else {
		store = auditmemory.NewInMemoryStore()
		d.logger.Warn("no database configured, audit entries are kept in memory only")
	}

	if d.kafka == nil {
		return store, nil
	}
	if cfg.Kafka.EnsureTopic {
		if err := stream.EnsureTopic(ctx, kafka.Admin(d.kafka), cfg.Kafka.AuditTopic, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			return nil, err
		}
	}
	return stream.New(store, d.kafka, cfg.Kafka.AuditTopic,
		stream.WithLogger(d.logger),
		stream.WithMetrics(m),
	), nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(d deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{}
		healthy := true
		record := func(name string, err error) {
			if err != nil {
				healthy = false
				checks[name] = "down"
				d.logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				return
			}
			checks[name] = "up"
		}
		if d.db != nil {
			record("postgres", d.db.PingContext(ctx))
		}
		if d.redis != nil {
			record("redis", d.redis.Health(ctx))
		}
		if !healthy {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Checks: checks})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Checks: checks})
	}
}
