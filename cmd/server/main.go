package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"medorder/internal/platform/config"
	"medorder/internal/platform/httpserver"
	"medorder/internal/platform/kafka"
	"medorder/internal/platform/logger"
	"medorder/internal/platform/postgres"
	"medorder/internal/platform/redis"
)

// main wires infrastructure from the environment and runs the HTTP server
// until SIGINT or SIGTERM. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	infra, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router, err := newRouter(ctx, cfg, deps{
		logger:   log,
		registry: reg,
		db:       infra.db,
		redis:    infra.redis,
		kafka:    infra.kafka,
	})
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server, router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting medorder", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// infrastructure holds the optional external connections. A nil field means
// the dependency is not configured.
type infrastructure struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{}
	var err error
	if infra.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if infra.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		infra.close(log)
		return nil, err
	}
	if infra.kafka, err = kafka.New(ctx, cfg.Kafka); err != nil {
		infra.close(log)
		return nil, err
	}
	log.Info("infrastructure connected",
		"postgres", infra.db != nil,
		"redis", infra.redis != nil,
		"kafka", infra.kafka != nil,
	)
	return infra, nil
}

func (i *infrastructure) close(log *slog.Logger) {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("database close failed", "error", err)
		}
	}
}
