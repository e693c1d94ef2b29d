package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/lewisedginton/organizer/pkg/config"
	"github.com/lewisedginton/organizer/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Connect opens a pool for cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn, err := cfg.GetConnectionConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// MigrationManager applies the embedded schema migrations.
type MigrationManager struct {
	db     *sql.DB
	logger logger.Logger
}

// NewMigrationManager creates a migration manager from pgxpool
func NewMigrationManager(pool *pgxpool.Pool, logger logger.Logger) *MigrationManager {
	return &MigrationManager{
		db:     stdlib.OpenDBFromPool(pool),
		logger: logger,
	}
}

// RunMigrations executes pending migrations
func (m *MigrationManager) RunMigrations() error {
	migrator, err := m.createMigrator()
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	m.logger.Info("Starting database migrations")

	err = migrator.Up()
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("No new migrations to apply")
			return nil
		}
		m.logger.Error("Failed to run migrations", logger.ErrorField(err))
		return fmt.Errorf("run migrations: %w", err)
	}

	version, _, _ := migrator.Version()
	m.logger.Info("Successfully applied migrations", logger.IntField("version", int(version)))
	return nil
}

func (m *MigrationManager) createMigrator() (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create embedded migration source: %w", err)
	}

	driver, err := postgres.WithInstance(m.db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return migrator, nil
}

// Close closes the database connection
func (m *MigrationManager) Close() error {
	return m.db.Close()
}
