package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appreceiving "github.com/erp/receiving/internal/application/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/erp/receiving/internal/infrastructure/cache"
	"github.com/erp/receiving/internal/infrastructure/config"
	"github.com/erp/receiving/internal/infrastructure/erpclient"
	"github.com/erp/receiving/internal/infrastructure/event"
	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/erp/receiving/internal/infrastructure/persistence"
	"github.com/erp/receiving/internal/infrastructure/scheduler"
	"github.com/erp/receiving/internal/infrastructure/telemetry"
	"github.com/erp/receiving/internal/interfaces/http/handler"
	"github.com/erp/receiving/internal/interfaces/http/middleware"
	"github.com/erp/receiving/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	log, err := logger.New(logCfg, providers.ZapCore(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting receiving service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Receipt journal
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if db.Driver == "sqlite" {
		if err := db.Migrate(); err != nil {
			log.Fatal("Failed to migrate receipt journal", zap.Error(err))
		}
	} else {
		log.Info("PostgreSQL journal schema is managed by the migrate command")
	}
	journal := persistence.NewGormReceiptJournal(db.DB)

	// Cache stores
	stores, err := cache.NewFactory(cfg.Cache, cfg.Redis, cache.WithLogger(log)).Build(ctx)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing cache", zap.Error(err))
		}
	}()

	// ERP adapter and catalog cache
	erp := erpclient.New(cfg.Upstream, erpclient.WithLogger(log))
	catalog := appreceiving.NewCachedOrderCatalog(erp, stores.Summary, cfg.Cache.SummaryTTL, log)

	// Session events: catalog invalidation (idempotent across replicas) and the SSE stream
	bus := event.NewInMemoryEventBus(log)
	invalidator := event.NewIdempotentHandler(catalog, stores.Idempotency, log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Cache.IdempotencyTTL, Enabled: true}),
	)
	bus.Subscribe(invalidator)
	stream := event.NewStream(cfg.Session.StreamBuffer, log)
	bus.Subscribe(stream)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	metrics, err := telemetry.NewReceivingMetrics(providers.Meter("erp-receiving"))
	if err != nil {
		log.Fatal("Failed to create receiving metrics", zap.Error(err))
	}

	sessions := appreceiving.NewSessionRegistry(func(tenantID uuid.UUID, deviceID string) *appreceiving.Controller {
		return appreceiving.NewController(tenantID, deviceID, catalog, erp,
			appreceiving.WithAutoConfirm(cfg.Session.AutoConfirm),
			appreceiving.WithLogger(log),
			appreceiving.WithEventPublisher(bus),
			appreceiving.WithJournal(journal),
			appreceiving.WithMetrics(metrics),
		)
	}, metrics, log)
	defer sessions.Close()

	// Housekeeping: idle session eviction and journal retention
	janitor := scheduler.NewScheduler(scheduler.Config{
		Interval:   cfg.Janitor.Interval,
		JobTimeout: cfg.Janitor.JobTimeout,
	}, log)
	if cfg.Janitor.Enabled {
		jobs := appreceiving.NewJanitor(sessions, journal, appreceiving.JanitorConfig{
			IdleTimeout:      cfg.Session.IdleTimeout,
			JournalRetention: cfg.Janitor.JournalRetention,
		}, log).Jobs()
		for _, job := range jobs {
			if err := janitor.Register(job); err != nil {
				log.Fatal("Failed to register janitor job", zap.String("job", job.Name()), zap.Error(err))
			}
		}
		if err := janitor.Start(ctx); err != nil {
			log.Fatal("Failed to start janitor", zap.Error(err))
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	checks := map[string]handler.Pinger{"database": db}
	if stores.Driver == "redis" {
		checks["redis"] = stores
	}

	engine := router.NewEngine(router.EngineConfig{
		Logger: log,
		Meter:  providers.Meter("erp-receiving-http"),
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     providers.IsEnabled(),
		},
		CORS:           corsCfg,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, router.Handlers{
		Receiving: handler.NewReceivingHandler(sessions, journal),
		Events:    handler.NewSessionEventsHandler(sessions, stream, cfg.Session.SSEHeartbeat),
		Health:    handler.NewHealthHandler(cfg.App.Name, version, sessions, checks),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := janitor.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping janitor", zap.Error(err))
	}

	// Closing the sessions first ends open SSE streams so Shutdown does not wait on them
	sessions.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
