package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all RBAC migrations. The DDL is restricted to the
// subset shared by PostgreSQL and SQLite. Role references are checked by the
// store rather than by foreign keys so that DeletionOrphan can be honoured.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					code VARCHAR(128) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					department VARCHAR(255),
					created_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create user_role_assignments and identity_role tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_role_assignments (
					email VARCHAR(320) PRIMARY KEY,
					role_code VARCHAR(128) NOT NULL,
					assigned_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_user_role_assignments_role_code ON user_role_assignments(role_code);

				CREATE TABLE IF NOT EXISTS identity_role (
					email VARCHAR(320) PRIMARY KEY,
					role VARCHAR(128)
				);

				CREATE INDEX IF NOT EXISTS idx_identity_role_role ON identity_role(role);
			`,
		},
		{
			Version:     3,
			Description: "Create resource_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_permissions (
					role_code VARCHAR(128) NOT NULL,
					resource_code VARCHAR(128) NOT NULL,
					can_view BOOLEAN NOT NULL DEFAULT FALSE,
					can_edit BOOLEAN NOT NULL DEFAULT FALSE,
					can_delete BOOLEAN NOT NULL DEFAULT FALSE,
					allowed_columns TEXT NOT NULL DEFAULT '[]',
					updated_at TIMESTAMP NOT NULL,
					PRIMARY KEY (role_code, resource_code)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create page_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS page_permissions (
					role_code VARCHAR(128) NOT NULL,
					page_code VARCHAR(128) NOT NULL,
					can_view BOOLEAN NOT NULL DEFAULT FALSE,
					can_edit BOOLEAN NOT NULL DEFAULT FALSE,
					can_delete BOOLEAN NOT NULL DEFAULT FALSE,
					updated_at TIMESTAMP NOT NULL,
					PRIMARY KEY (role_code, page_code)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id VARCHAR(36) PRIMARY KEY,
					occurred_at TIMESTAMP NOT NULL,
					event_type VARCHAR(64) NOT NULL,
					status VARCHAR(16) NOT NULL,
					actor VARCHAR(320),
					role_code VARCHAR(128),
					subject VARCHAR(320),
					request_id VARCHAR(100),
					message TEXT,
					error_message TEXT,
					changes TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at);
				CREATE INDEX IF NOT EXISTS idx_audit_events_role_code ON audit_events(role_code);
				CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		log := logger.WithField("version", migration.Version)
		log.Infof("Running migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("Migration completed")
	}

	return nil
}
