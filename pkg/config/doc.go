// Package config loads the opsboard-rbac configuration from environment
// variables with defaults for every setting.
//
// Server settings:
//
//	OPSBOARD_HOST="0.0.0.0"
//	OPSBOARD_PORT="8080"
//	OPSBOARD_HEALTH_PORT="9090"
//	OPSBOARD_SHUTDOWN_TIMEOUT="30s"
//
// Permission store:
//
//	OPSBOARD_DB_DRIVER="postgres"  # postgres or sqlite3
//	OPSBOARD_DB_URL="postgres://localhost/opsboard?sslmode=disable"
//	OPSBOARD_DB_MIGRATE="true"
//
// Authorization:
//
//	OPSBOARD_CACHE_TTL="5m"
//	OPSBOARD_CACHE_MAX_ENTRIES="1024"
//	OPSBOARD_CACHE_FLUSH_SCHEDULE="0 3 * * *"
//	OPSBOARD_ADMIN_ROLE="ADMIN"
//	OPSBOARD_LEGACY_SUPERUSER_BYPASS="true"
//	OPSBOARD_LEGACY_SUPERUSERS="root@example.com,ops@example.com"
//	OPSBOARD_IDENTITY_HEADER="X-Forwarded-Email"
//	OPSBOARD_ROLE_DELETION_POLICY="block"  # block, cascade or orphan
//	OPSBOARD_CATALOG_PATH="/etc/opsboard/catalog.yaml"
//	OPSBOARD_CATALOG_WATCH="true"
//
// Observability:
//
//	OPSBOARD_LOG_LEVEL="info"
//	OPSBOARD_LOG_FORMAT="json"
//	OPSBOARD_OTEL_ENABLED="true"
//	OPSBOARD_OTEL_ENDPOINT="otel-collector:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
