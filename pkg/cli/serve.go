package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/opsboard/pkg/admin"
	"github.com/platinummonkey/opsboard/pkg/authz"
	"github.com/platinummonkey/opsboard/pkg/catalog"
	"github.com/platinummonkey/opsboard/pkg/httputil"
	"github.com/platinummonkey/opsboard/pkg/middleware"
	"github.com/platinummonkey/opsboard/pkg/observability"
	"github.com/platinummonkey/opsboard/pkg/permcache"
)

// maxRequestBytes bounds admin API request bodies
const maxRequestBytes = 1 << 20

// server is the wired administration API and ops endpoints
type server struct {
	api       *http.Server
	ops       *http.Server
	cache     *permcache.Cache
	service   *admin.Service
	scheduler *cron.Cron
	redis     *redis.Client
	broadcast *permcache.Broadcaster

	// limiter is set when rate limiting runs in process
	limiter *middleware.RateLimiter
}

func serveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "serve the administration API, health probes and metrics",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: withEnv(flags, func(ctx context.Context, _ *cobra.Command, e *env, _ []string) error {
			srv, err := newServer(ctx, e)
			if err != nil {
				return err
			}
			return srv.run(ctx, e)
		}),
	}
}

// newServer wires the cache, admin service and HTTP handlers from e
func newServer(ctx context.Context, e *env) (*server, error) {
	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if e.cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	cache, err := e.cache(metrics)
	if err != nil {
		return nil, err
	}
	svc, err := e.service(cache)
	if err != nil {
		return nil, err
	}

	srv := &server{cache: cache, service: svc}

	if e.cfg.Authz.RedisURL != "" {
		srv.redis, err = permcache.NewRedisClient(ctx, e.cfg.Authz.RedisURL)
		if err != nil {
			return nil, err
		}
		srv.broadcast = permcache.NewBroadcaster(srv.redis, e.cfg.Authz.InvalidationChannel, cache, e.logger)
	}

	if spec := e.cfg.Authz.CacheFlushSchedule; spec != "" {
		srv.scheduler, err = permcache.ScheduleInvalidation(cache, spec, e.logger)
		if err != nil {
			srv.closeRedis()
			return nil, err
		}
	}

	resolverOpts := []authz.Option{
		authz.WithBypassChain(e.bypass()),
		authz.WithMetrics(metrics),
	}
	guard := authz.NewMiddleware(cache,
		authz.HeaderIdentity(e.cfg.Authz.IdentityHeader, e.cfg.Authz.LegacySuperusers...),
		resolverOpts...,
	)

	handlers := admin.NewHandlers(svc, admin.HandlersConfig{
		Cache:           cache,
		Guard:           guard,
		ResolverOptions: resolverOpts,
		Metrics:         metrics,
		Logger:          e.logger,
	})

	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(e.logger),
		httputil.RecoveryMiddleware(e.logger),
		httputil.MaxBytesMiddleware(maxRequestBytes),
		guard.Authenticate,
	)
	if limit := e.cfg.Server.RateLimitPerMinute; limit > 0 {
		router.Use(srv.rateLimit(e, middleware.PerMinute(limit, e.cfg.Server.RateLimitBurst)))
	}
	handlers.RegisterRoutes(router)

	var handler http.Handler = router
	if e.tp != nil {
		handler = otelhttp.NewHandler(router, "opsboard-rbac",
			otelhttp.WithTracerProvider(e.tp),
		)
	}

	srv.api = &http.Server{
		Addr:         e.cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  e.cfg.Server.ReadTimeout,
		WriteTimeout: e.cfg.Server.WriteTimeout,
		IdleTimeout:  e.cfg.Server.IdleTimeout,
	}
	srv.ops = &http.Server{
		Addr:    e.cfg.Server.HealthAddr(),
		Handler: observability.NewOpsRouter(observability.NewHealthChecker(e.db).WithRedis(srv.redis), registry),
	}

	return srv, nil
}

// rateLimit limits per identity, through Redis when it is configured
func (s *server) rateLimit(e *env, cfg middleware.RateLimitConfig) mux.MiddlewareFunc {
	logger := e.logger.WithField("component", "ratelimit")
	if s.redis != nil {
		limiter := middleware.NewDistributedRateLimiter(s.redis, cfg, "")
		return middleware.NewRateLimitMiddleware(limiter, true, logger).Handler
	}
	s.limiter = middleware.NewRateLimiter(cfg)
	return middleware.NewRateLimitMiddleware(s.limiter, false, logger).Handler
}

// run serves until a signal arrives, ctx is cancelled or a listener fails
func (s *server) run(ctx context.Context, e *env) error {
	logger := e.logger
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdown := observability.NewShutdownManager(logger, e.cfg.Server.ShutdownTimeout, s.api, s.ops)

	g, gctx := errgroup.WithContext(ctx)
	for _, hs := range []*http.Server{s.api, s.ops} {
		g.Go(func() error {
			logger.WithField("addr", hs.Addr).Info("HTTP server listening")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if s.broadcast != nil {
		g.Go(func() error {
			defer observability.RecoverPanic(logger, "cache invalidation listener")
			return s.broadcast.Run(gctx)
		})
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return s.redis.Close()
		})
	}

	if e.cfg.Authz.WatchCatalog {
		path := e.cfg.Authz.CatalogPath
		g.Go(func() error {
			return catalog.Watch(gctx, path, logger, s.service.SetCatalog)
		})
	}

	if s.limiter != nil {
		s.limiter.StartCleanup(gctx)
	}

	if s.scheduler != nil {
		s.scheduler.Start()
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-s.scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	logger.WithFields(logrus.Fields{
		"api":       s.api.Addr,
		"ops":       s.ops.Addr,
		"cache_ttl": e.cfg.Authz.CacheTTL,
	}).Info("opsboard-rbac started")

	// A failing listener or watcher cancels gctx and triggers the shutdown
	shutdownErr := shutdown.WaitForShutdown(gctx)
	cancel()

	return errors.Join(g.Wait(), shutdownErr)
}

func (s *server) closeRedis() {
	if s.redis != nil {
		s.redis.Close()
	}
}
