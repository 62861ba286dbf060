// Package app wires configuration, logging, metrics, storage and services together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulexconde/bizassess/internal/config"
	"github.com/paulexconde/bizassess/internal/httpapi"
	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/metrics"
	"github.com/paulexconde/bizassess/internal/services"
	"github.com/paulexconde/bizassess/internal/stores/memstore"
	"github.com/paulexconde/bizassess/internal/stores/postgres"
	"github.com/paulexconde/bizassess/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Config   config.Config
	Log      *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Versions  services.VersionService
	Sessions  services.SessionService
	Catalog   services.CatalogService
	Integrity services.IntegrityService
	Validator services.StructureValidator

	db            *postgres.DB
	traceShutdown telemetry.Shutdown
}

// New opens the configured store and builds the services on top of it.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	rules, err := services.CompilePublishRules(cfg.Versioning.PublishRules)
	if err != nil {
		return nil, err
	}

	traceShutdown, err := telemetry.Setup(ctx, cfg.Tracing, os.Stderr, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  metrics.New(reg),

		traceShutdown: traceShutdown,
	}

	var stores services.Stores
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("using the in-memory store, data is lost on exit")
		stores = memstore.New().Stores()
	default:
		db, err := postgres.Open(ctx, cfg.Database, log)
		if err != nil {
			_ = traceShutdown(ctx)
			return nil, err
		}
		if cfg.Database.MigrateOnStart {
			if err := db.EnsureSchema(ctx); err != nil {
				_ = db.Close()
				_ = traceShutdown(ctx)
				return nil, err
			}
		}
		a.db = db
		stores = db.Stores()
	}

	a.Validator = services.NewStructureValidator()
	a.Versions = services.NewVersionService(stores, a.Validator, log, a.Metrics, services.VersionServiceOptions{
		Retry: cfg.Versioning.Retry(),
		Rules: rules,
	})
	a.Sessions = services.NewSessionService(stores, log, a.Metrics)
	a.Catalog = services.NewCatalogService(stores, log, a.Metrics)
	a.Integrity = services.NewIntegrityService(stores, a.Validator, log, a.Metrics, services.IntegrityOptions{
		Workers:   cfg.Audit.Workers,
		QueueSize: cfg.Audit.QueueSize,
	})

	log.Info("application ready", "driver", cfg.Database.Driver, "publish_rules", len(rules))
	return a, nil
}

// Migrate applies the database schema. It is a no-op for the memory store.
func (a *App) Migrate(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.EnsureSchema(ctx)
}

func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := []error{a.traceShutdown(ctx)}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func (a *App) Router() *gin.Engine {
	h := httpapi.NewHandlers(httpapi.Services{
		Versions:  a.Versions,
		Sessions:  a.Sessions,
		Catalog:   a.Catalog,
		Integrity: a.Integrity,
		Validator: a.Validator,
	}, a.Log)

	var ping func(ctx context.Context) error
	if a.db != nil {
		ping = a.db.Ping
	}
	return httpapi.NewRouter(h, a.Log, httpapi.RouterOptions{
		ServiceName:  a.Config.Tracing.ServiceName,
		Gatherer:     a.Registry,
		Ping:         ping,
		AllowOrigins: a.Config.HTTP.AllowOrigins,
	})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.Config.HTTP.Addr,
		Handler: a.Router(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
		defer cancel()

		a.Log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
