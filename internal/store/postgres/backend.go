// Package postgres wires the PostgreSQL repositories into a store.Backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/org-management/org-service/internal/config"
	"github.com/org-management/org-service/internal/db"
	"github.com/org-management/org-service/internal/db/repositories"
	"github.com/org-management/org-service/internal/store"
	"github.com/org-management/org-service/internal/telemetry"
)

func init() {
	store.Register(config.DriverPostgres, func(ctx context.Context, cfg *config.Config) (store.Backend, error) {
		return Open(ctx, cfg)
	})
}

// Backend is the PostgreSQL store.Backend. Registry records live in the
// organizations and admin_users tables; tenant collections are tables in the
// configured tenant schema.
type Backend struct {
	*repositories.OrganizationRepository
	*repositories.AdminRepository
	*repositories.TenantCollectionRepository

	db   *sql.DB
	stop context.CancelFunc
}

var _ store.Backend = (*Backend)(nil)

// New wraps an open database handle.
func New(database *sql.DB, tenantSchema string) *Backend {
	x := sqlx.NewDb(database, "postgres")
	return &Backend{
		OrganizationRepository:     repositories.NewOrganizationRepository(x),
		AdminRepository:            repositories.NewAdminRepository(x),
		TenantCollectionRepository: repositories.NewTenantCollectionRepository(x, tenantSchema),
		db:                         database,
		stop:                       func() {},
	}
}

// Open connects, applies pending migrations, makes sure the tenant schema
// exists and starts exporting pool statistics.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	database, err := db.Connect(ctx, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if err := db.RunMigrations(database, "up"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema version", "version", version, "dirty", dirty)
	}

	if err := db.EnsureSchema(ctx, database, cfg.Database.TenantSchema); err != nil {
		database.Close()
		return nil, err
	}

	b := New(database, cfg.Database.TenantSchema)
	statsCtx, cancel := context.WithCancel(context.Background())
	telemetry.StartDBStatsCollector(statsCtx, database)
	b.stop = cancel
	return b, nil
}

// DB exposes the underlying handle.
func (b *Backend) DB() *sql.DB { return b.db }

// Ping checks the database connection
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close stops the stats collector and closes the pool
func (b *Backend) Close() error {
	b.stop()
	return b.db.Close()
}
