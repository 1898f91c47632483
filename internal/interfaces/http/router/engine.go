package router

import (
	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/erp/receiving/internal/interfaces/http/handler"
	"github.com/erp/receiving/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EngineConfig configures the middleware stack of the HTTP engine
type EngineConfig struct {
	Logger         *zap.Logger
	Meter          metric.Meter // nil disables HTTP metrics
	Tracing        middleware.TracingConfig
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
}

// Handlers are the HTTP handlers mounted by NewEngine
type Handlers struct {
	Receiving *handler.ReceivingHandler
	Events    *handler.SessionEventsHandler // optional
	Health    *handler.HealthHandler        // optional
}

// NewEngine builds the gin engine with the service middleware stack, /health
// at the root and the receiving API under /api/v1.
//
// Middleware order:
//  1. RequestID
//  2. Recovery
//  3. Tracing and SpanStatus
//  4. Logger
//  5. HTTP metrics
//  6. Security headers and CORS
//  7. BodyLimit
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	if cfg.Tracing.Enabled {
		engine.Use(middleware.Tracing(cfg.Tracing), middleware.SpanStatus())
	}
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(cfg.Meter, log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}

	r := NewRouter(engine)
	if h.Receiving != nil {
		r.Register(ReceivingRoutes(h.Receiving, h.Events))
	}
	r.Setup()
	return engine
}
