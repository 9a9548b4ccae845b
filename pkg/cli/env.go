package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/platinummonkey/opsboard/pkg/admin"
	"github.com/platinummonkey/opsboard/pkg/audit"
	"github.com/platinummonkey/opsboard/pkg/catalog"
	"github.com/platinummonkey/opsboard/pkg/config"
	"github.com/platinummonkey/opsboard/pkg/observability"
	"github.com/platinummonkey/opsboard/pkg/permcache"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

// globalFlags are the persistent flags shared by every command. Empty
// values leave the environment configuration untouched.
type globalFlags struct {
	LogLevel  string
	LogFormat string
	DBDriver  string
	DBURL     string
	Migrate   bool
}

func (f *globalFlags) apply(cfg *config.Config) {
	if f.LogLevel != "" {
		if lvl, err := logrus.ParseLevel(f.LogLevel); err == nil {
			cfg.Observability.LogLevel = lvl
		}
	}
	if f.LogFormat != "" {
		cfg.Observability.LogFormat = f.LogFormat
	}
	if f.DBDriver != "" {
		cfg.Database.Driver = f.DBDriver
	}
	if f.DBURL != "" {
		cfg.Database.URL = f.DBURL
	}
	if f.Migrate {
		cfg.Database.MigrateOnStart = true
	}
}

// env is everything a command needs to talk to the permission store
type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *sql.DB
	store  rbac.Store
	tp     *sdktrace.TracerProvider
}

// open loads configuration, connects to the store and runs migrations when
// asked to. The caller closes the returned env.
func open(ctx context.Context, flags *globalFlags, logOutput io.Writer) (*env, error) {
	cfg, err := config.LoadConfigWith(flags.apply)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel.String(), logOutput)
	if cfg.Observability.LogFormat == "json" {
		observability.UseJSON(logger)
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		if err := rbac.RunMigrations(ctx, db, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	tp, err := observability.InitTracing(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var store rbac.Store = rbac.NewSQLStore(db)
	if tp != nil {
		store = rbac.NewTracingStore(store, tp)
	}

	logger.WithFields(logrus.Fields{
		"driver": cfg.Database.Driver,
	}).Debug("Permission store connected")

	return &env{cfg: cfg, logger: logger, db: db, store: store, tp: tp}, nil
}

// Close flushes traces and closes the database
func (e *env) Close(ctx context.Context) error {
	return errors.Join(
		observability.ShutdownTracing(ctx, e.tp, e.logger),
		e.db.Close(),
	)
}

// catalog returns the configured catalog, or the embedded default
func (e *env) catalog() (*catalog.Catalog, error) {
	if e.cfg.Authz.CatalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(e.cfg.Authz.CatalogPath)
}

// cache builds a permission cache over the store
func (e *env) cache(metrics *observability.Metrics) (*permcache.Cache, error) {
	return permcache.New(e.store, permcache.Config{
		TTL:        e.cfg.Authz.CacheTTL,
		MaxEntries: e.cfg.Authz.CacheMaxEntries,
		Logger:     e.logger,
		Metrics:    metrics,
	})
}

// service builds the administration service. cache may be nil.
func (e *env) service(cache *permcache.Cache) (*admin.Service, error) {
	cat, err := e.catalog()
	if err != nil {
		return nil, err
	}
	return admin.NewService(e.store, admin.Config{
		Cache:          cache,
		Catalog:        cat,
		DeletionPolicy: e.cfg.Authz.DeletionPolicy,
		AdminRoleCode:  e.cfg.Authz.AdminRoleCode,
		Audit:          e.auditLogger(),
		Logger:         e.logger,
	}), nil
}

// auditLogger records writes in the database and the log, or only the log
// when the audit table is disabled
func (e *env) auditLogger() audit.Logger {
	logLogger := audit.NewLogrusLogger(e.logger.WithField("component", "audit"))
	if !e.cfg.Authz.AuditEnabled {
		return logLogger
	}
	dbLogger, err := audit.NewDBLogger(e.db)
	if err != nil {
		e.logger.WithError(err).Warn("Audit table unavailable, logging audit events only")
		return logLogger
	}
	return audit.NewMultiLogger(dbLogger, logLogger)
}

// bypass returns the bypass chain the configuration asks for
func (e *env) bypass() rbac.BypassChain {
	return rbac.DefaultBypassChain(e.cfg.Authz.AdminRoleCode, e.cfg.Authz.LegacySuperuserBypass)
}
