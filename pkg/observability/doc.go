// Package observability provides logging, Prometheus metrics, health probes
// and OpenTelemetry tracing for the authorization engine.
//
// # Logging
//
// All components take a logrus.FieldLogger. A nil logger falls back to the
// logrus standard logger:
//
//	logger := observability.NewLogger("info", os.Stderr)
//	observability.UseJSON(logger)
//
// # Prometheus Metrics
//
// A nil *Metrics records nothing, so components accept it unconditionally:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.Decision("view", "allow")
//
// # Health Checks
//
// NewOpsRouter serves /health, /health/live, /health/ready and /metrics:
//
//	router := observability.NewOpsRouter(observability.NewHealthChecker(db), registry)
//
// # OpenTelemetry
//
// InitTracing exports spans over OTLP gRPC. The returned provider is passed
// to rbac.NewTracingStore:
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	defer observability.ShutdownTracing(ctx, tp, logger)
package observability
