package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for journal database tracing
type DBTracingConfig struct {
	Enabled         bool
	DBSystem        string        // "postgresql" or "sqlite"
	SlowQueryThresh time.Duration // queries slower than this get a slow_query event
	WithVariables   bool          // include bound values in db.statement; dev only
}

// DBTracing registers otelgorm plus slow query marking on a GORM DB
type DBTracing struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracing creates a DBTracing
func NewDBTracing(cfg DBTracingConfig, logger *zap.Logger) *DBTracing {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBTracing{config: cfg, logger: logger}
}

// Register installs the plugin. It does nothing when tracing is disabled.
func (t *DBTracing) Register(db *gorm.DB) error {
	if !t.config.Enabled {
		t.logger.Debug("Database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(t.config.DBSystem)}
	if !t.config.WithVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	registrations := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("recv_timing:before_create", markQueryStart) },
		func() error { return cb.Query().Before("gorm:query").Register("recv_timing:before_query", markQueryStart) },
		func() error { return cb.Update().Before("gorm:update").Register("recv_timing:before_update", markQueryStart) },
		func() error { return cb.Delete().Before("gorm:delete").Register("recv_timing:before_delete", markQueryStart) },
		func() error { return cb.Row().Before("gorm:row").Register("recv_timing:before_row", markQueryStart) },
		func() error { return cb.Raw().Before("gorm:raw").Register("recv_timing:before_raw", markQueryStart) },
		func() error { return cb.Create().After("gorm:create").Register("recv_timing:after_create", t.afterQuery) },
		func() error { return cb.Query().After("gorm:query").Register("recv_timing:after_query", t.afterQuery) },
		func() error { return cb.Update().After("gorm:update").Register("recv_timing:after_update", t.afterQuery) },
		func() error { return cb.Delete().After("gorm:delete").Register("recv_timing:after_delete", t.afterQuery) },
		func() error { return cb.Row().After("gorm:row").Register("recv_timing:after_row", t.afterQuery) },
		func() error { return cb.Raw().After("gorm:raw").Register("recv_timing:after_raw", t.afterQuery) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}

	t.logger.Info("Database tracing enabled",
		zap.String("db_system", t.config.DBSystem),
		zap.Duration("slow_query_threshold", t.config.SlowQueryThresh),
	)
	return nil
}

type queryStartKey struct{}

func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (t *DBTracing) afterQuery(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > t.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("threshold_ms", t.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
