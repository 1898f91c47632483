package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Upstream  UpstreamConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Janitor   JanitorConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `validate:"required"`
	Env  string `validate:"oneof=development test staging production"`
	Port string `validate:"required,numeric"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
	Output string `validate:"required"` // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration `validate:"gt=0"`
	WriteTimeout     time.Duration `validate:"gte=0"` // 0 disables, needed for long-lived event streams
	IdleTimeout      time.Duration `validate:"gt=0"`
	MaxHeaderBytes   int           `validate:"gt=0"`
	MaxBodySize      int64         `validate:"gt=0"`
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// UpstreamConfig describes the ERP backend serving purchase orders
type UpstreamConfig struct {
	BaseURL    string        `validate:"required,url"`
	Token      string        // static bearer token, optional
	Timeout    time.Duration `validate:"gt=0"`
	MaxRetries int           `validate:"gte=0,lte=10"` // read calls only
	RetryDelay time.Duration `validate:"gte=0"`
	PageSize   int           `validate:"gt=0,lte=1000"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host      string `validate:"required"`
	Port      int    `validate:"gt=0,lte=65535"`
	Password  string
	DB        int    `validate:"gte=0"`
	KeyPrefix string `validate:"required"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig selects the backing store for the order summary cache and
// event idempotency keys
type CacheConfig struct {
	Driver         string        `validate:"oneof=memory redis"`
	SummaryTTL     time.Duration `validate:"gte=0"`
	IdempotencyTTL time.Duration `validate:"gt=0"`
	// FallbackToMemory uses in-process stores when Redis is unreachable at startup
	FallbackToMemory bool
}

// DatabaseConfig holds receipt journal database settings
type DatabaseConfig struct {
	Driver          string `validate:"oneof=postgres sqlite"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file, ":memory:" for a throwaway journal
	MaxOpenConns    int    `validate:"gt=0"`
	MaxIdleConns    int    `validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        string `validate:"oneof=silent error warn info"`
	SlowThreshold   time.Duration
	TraceEnabled    bool
}

// SessionConfig holds intake session settings
type SessionConfig struct {
	AutoConfirm  bool
	SSEHeartbeat time.Duration `validate:"gt=0"`
	StreamBuffer int           `validate:"gt=0"`
	IdleTimeout  time.Duration `validate:"gte=0"` // 0 keeps idle sessions forever
}

// JanitorConfig controls the periodic housekeeping jobs
type JanitorConfig struct {
	Enabled          bool
	Interval         time.Duration `validate:"gt=0"`
	JobTimeout       time.Duration `validate:"gt=0"`
	JournalRetention time.Duration `validate:"gte=0"` // 0 keeps receipt attempts forever
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  `validate:"required_if=Enabled true"`
	SamplingRatio     float64 `validate:"gte=0,lte=1"`
	ServiceName       string  `validate:"required"`
	Insecure          bool
	MetricsInterval   time.Duration `validate:"gt=0"`
	LogsEnabled       bool
}

// Load reads configuration with the following priority (highest first):
//  1. environment variables with the RECV_ prefix (e.g. RECV_UPSTREAM_BASE_URL)
//  2. variables from a .env file in the working directory
//  3. config.toml
//  4. built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file; an empty path searches the default locations
func LoadFrom(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("RECV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "erp-receiving")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8081")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 0)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_header_bytes", 1<<20)
	v.SetDefault("http.max_body_size", 1<<20)
	v.SetDefault("http.cors_allow_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("http.cors_allow_headers", []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID", "X-Device-ID"})

	v.SetDefault("upstream.base_url", "http://localhost:8080")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.max_retries", 0)
	v.SetDefault("upstream.retry_delay", 200*time.Millisecond)
	v.SetDefault("upstream.page_size", 100)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "receiving:")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.summary_ttl", 30*time.Second)
	v.SetDefault("cache.idempotency_ttl", 24*time.Hour)
	v.SetDefault("cache.fallback_to_memory", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "receiving")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "receiving.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)

	v.SetDefault("session.auto_confirm", true)
	v.SetDefault("session.sse_heartbeat", 15*time.Second)
	v.SetDefault("session.stream_buffer", 64)
	v.SetDefault("session.idle_timeout", 4*time.Hour)

	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.interval", 5*time.Minute)
	v.SetDefault("janitor.job_timeout", time.Minute)
	v.SetDefault("janitor.journal_retention", 90*24*time.Hour)

	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "erp-receiving")
	v.SetDefault("telemetry.metrics_interval", 15*time.Second)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Upstream: UpstreamConfig{
			BaseURL:    strings.TrimRight(v.GetString("upstream.base_url"), "/"),
			Token:      v.GetString("upstream.token"),
			Timeout:    v.GetDuration("upstream.timeout"),
			MaxRetries: v.GetInt("upstream.max_retries"),
			RetryDelay: v.GetDuration("upstream.retry_delay"),
			PageSize:   v.GetInt("upstream.page_size"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Cache: CacheConfig{
			Driver:           v.GetString("cache.driver"),
			SummaryTTL:       v.GetDuration("cache.summary_ttl"),
			IdempotencyTTL:   v.GetDuration("cache.idempotency_ttl"),
			FallbackToMemory: v.GetBool("cache.fallback_to_memory"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
			TraceEnabled:    v.GetBool("database.trace_enabled"),
		},
		Session: SessionConfig{
			AutoConfirm:  v.GetBool("session.auto_confirm"),
			SSEHeartbeat: v.GetDuration("session.sse_heartbeat"),
			StreamBuffer: v.GetInt("session.stream_buffer"),
			IdleTimeout:  v.GetDuration("session.idle_timeout"),
		},
		Janitor: JanitorConfig{
			Enabled:          v.GetBool("janitor.enabled"),
			Interval:         v.GetDuration("janitor.interval"),
			JobTimeout:       v.GetDuration("janitor.job_timeout"),
			JournalRetention: v.GetDuration("janitor.journal_retention"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
		},
	}
}

// Validate checks struct constraints and production rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q", strings.TrimPrefix(first.Namespace(), "Config."), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("http.cors_allow_origins cannot be '*' in production")
			}
		}
		if c.Cache.Driver == "redis" && c.Cache.FallbackToMemory {
			return fmt.Errorf("cache.fallback_to_memory must be false in production when cache.driver is redis")
		}
	}
	return nil
}

// IsProduction reports whether the app runs with production settings
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
