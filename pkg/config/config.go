package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/opsboard/pkg/audit"
	"github.com/platinummonkey/opsboard/pkg/observability"
	"github.com/platinummonkey/opsboard/pkg/permcache"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Authorization engine configuration
	Authz AuthzConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// RateLimitPerMinute caps admin API requests per identity; 0 disables
	// limiting. The limit is shared through Redis when Authz.RedisURL is set.
	RateLimitPerMinute int
	RateLimitBurst     int
}

// Addr returns the admin API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the ops listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// DatabaseConfig holds permission store settings
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3"
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// AuthzConfig holds permission cache and decision settings
type AuthzConfig struct {
	CacheTTL        time.Duration
	CacheMaxEntries int

	// CacheFlushSchedule is a cron expression; when set the whole cache is
	// invalidated on that schedule
	CacheFlushSchedule string

	AdminRoleCode string

	// LegacySuperuserBypass honours the legacy superuser flag; the flag is
	// set for the emails in LegacySuperusers
	LegacySuperuserBypass bool
	LegacySuperusers      []string

	// IdentityHeader carries the authenticated email set by the proxy
	IdentityHeader string

	DeletionPolicy rbac.DeletionPolicy

	// CatalogPath overrides the embedded catalog; WatchCatalog reloads it on change
	CatalogPath  string
	WatchCatalog bool

	// RedisURL enables cache invalidation fan-out between instances over
	// InvalidationChannel
	RedisURL            string
	InvalidationChannel string

	// AuditEnabled records administration writes in the audit_events table
	AuditEnabled bool

	// AuditArchive is where `opsboard audit archive` uploads exports
	AuditArchive audit.ArchiveConfig
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  logrus.Level
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// OTel returns the tracing settings in the form observability.InitTracing takes
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWith()
}

// LoadConfigWith loads configuration from environment variables and applies
// overrides, in order, before validating it
func LoadConfigWith(overrides ...func(*Config)) (*Config, error) {
	authz, err := loadAuthzConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Authz:         authz,
		Observability: loadObservabilityConfig(),
	}
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("OPSBOARD_HOST", "0.0.0.0"),
		Port:            getEnv("OPSBOARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("OPSBOARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("OPSBOARD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("OPSBOARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("OPSBOARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("OPSBOARD_HEALTH_PORT", "9090"),

		RateLimitPerMinute: getEnvInt("OPSBOARD_RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurst:     getEnvInt("OPSBOARD_RATE_LIMIT_BURST", 50),
	}
}

// loadDatabaseConfig loads permission store configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          getEnv("OPSBOARD_DB_DRIVER", "postgres"),
		URL:             getEnv("OPSBOARD_DB_URL", ""),
		MaxOpenConns:    getEnvInt("OPSBOARD_DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("OPSBOARD_DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("OPSBOARD_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		MigrateOnStart:  getEnvBool("OPSBOARD_DB_MIGRATE", false),
	}
}

// loadAuthzConfig loads authorization configuration from environment
func loadAuthzConfig() (AuthzConfig, error) {
	policy, err := rbac.ParseDeletionPolicy(getEnv("OPSBOARD_ROLE_DELETION_POLICY", string(rbac.DeletionBlock)))
	if err != nil {
		return AuthzConfig{}, err
	}

	return AuthzConfig{
		CacheTTL:              getEnvDuration("OPSBOARD_CACHE_TTL", permcache.DefaultTTL),
		CacheMaxEntries:       getEnvInt("OPSBOARD_CACHE_MAX_ENTRIES", permcache.DefaultMaxEntries),
		CacheFlushSchedule:    getEnv("OPSBOARD_CACHE_FLUSH_SCHEDULE", ""),
		AdminRoleCode:         getEnv("OPSBOARD_ADMIN_ROLE", rbac.DefaultAdminRoleCode),
		LegacySuperuserBypass: getEnvBool("OPSBOARD_LEGACY_SUPERUSER_BYPASS", true),
		LegacySuperusers:      getEnvList("OPSBOARD_LEGACY_SUPERUSERS"),
		IdentityHeader:        getEnv("OPSBOARD_IDENTITY_HEADER", "X-Forwarded-Email"),
		DeletionPolicy:        policy,
		CatalogPath:           getEnv("OPSBOARD_CATALOG_PATH", ""),
		WatchCatalog:          getEnvBool("OPSBOARD_CATALOG_WATCH", false),
		RedisURL:              getEnv("OPSBOARD_REDIS_URL", ""),
		InvalidationChannel:   getEnv("OPSBOARD_INVALIDATION_CHANNEL", permcache.DefaultInvalidationChannel),
		AuditEnabled:          getEnvBool("OPSBOARD_AUDIT_ENABLED", true),
		AuditArchive: audit.ArchiveConfig{
			Bucket:       getEnv("OPSBOARD_AUDIT_S3_BUCKET", ""),
			Prefix:       getEnv("OPSBOARD_AUDIT_S3_PREFIX", "opsboard/audit"),
			Region:       getEnv("OPSBOARD_AUDIT_S3_REGION", "us-east-1"),
			Endpoint:     getEnv("OPSBOARD_AUDIT_S3_ENDPOINT", ""),
			UsePathStyle: getEnvBool("OPSBOARD_AUDIT_S3_PATH_STYLE", false),
			AccessKey:    getEnv("OPSBOARD_AUDIT_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("OPSBOARD_AUDIT_S3_SECRET_KEY", ""),
		},
	}, nil
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("OPSBOARD_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("OPSBOARD_LOG_FORMAT", "text")),
		MetricsEnabled:     getEnvBool("OPSBOARD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OPSBOARD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OPSBOARD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OPSBOARD_OTEL_SERVICE_NAME", "opsboard-rbac"),
		OTelServiceVersion: getEnv("OPSBOARD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OPSBOARD_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit and burst must not be negative")
	}

	// Validate database config
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	// Validate authorization config
	if c.Authz.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Authz.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	if strings.TrimSpace(c.Authz.AdminRoleCode) == "" {
		return fmt.Errorf("admin role code is required")
	}
	if c.Authz.WatchCatalog && c.Authz.CatalogPath == "" {
		return fmt.Errorf("catalog path is required when catalog watching is enabled")
	}
	if c.Authz.CacheFlushSchedule != "" {
		if _, err := cron.ParseStandard(c.Authz.CacheFlushSchedule); err != nil {
			return fmt.Errorf("invalid cache flush schedule %q: %w", c.Authz.CacheFlushSchedule, err)
		}
	}

	// Validate logging config
	switch c.Observability.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns the comma separated, non-empty values of key
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
