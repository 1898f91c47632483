package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receiving/internal/infrastructure/config"
	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/erp/receiving/internal/infrastructure/persistence/models"
	"github.com/erp/receiving/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Database holds the journal database connection
type Database struct {
	DB     *gorm.DB
	Driver string
}

// NewDatabase opens the journal database, applies pool settings, pings it
// and registers tracing when enabled
func NewDatabase(cfg *config.DatabaseConfig, zapLogger *zap.Logger) (*Database, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	var (
		dialector gorm.Dialector
		dbSystem  string
	)
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
		dbSystem = "postgresql"
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
		dbSystem = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormLogger := logger.NewGormLogger(zapLogger, logger.MapGormLogLevel(cfg.LogLevel),
		logger.WithSlowThreshold(cfg.SlowThreshold),
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            cfg.Driver == "postgres",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	tracing := telemetry.NewDBTracing(telemetry.DBTracingConfig{
		Enabled:         cfg.TraceEnabled,
		DBSystem:        dbSystem,
		SlowQueryThresh: cfg.SlowThreshold,
	}, zapLogger)
	if err := tracing.Register(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to register database tracing: %w", err)
	}

	return &Database{DB: db, Driver: cfg.Driver}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns connection pool statistics
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Migrate creates or updates the journal schema
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(&models.ReceiptAttemptModel{}); err != nil {
		return fmt.Errorf("failed to migrate receipt journal: %w", err)
	}
	return nil
}
