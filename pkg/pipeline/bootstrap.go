package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver used only for migrations
	"go.uber.org/zap"

	"github.com/darkcatc/pglumilineage/pkg/config"
	"github.com/darkcatc/pglumilineage/pkg/database"
)

// Bootstrap is the wiring every cmd/* driver shares: loaded config, a
// logger matching its environment, and a migrated connection pool.
type Bootstrap struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *database.DB
}

// Start loads configuration, builds the logger, opens the connection
// pool, and applies pending migrations. migrationsPath is relative to
// the binary's working directory, matching database.RunMigrations'
// own contract.
func Start(ctx context.Context, migrationsPath string) (*Bootstrap, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := NewLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, migrationsPath, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Bootstrap{Config: cfg, Logger: logger, DB: db}, nil
}

// Close releases the connection pool and flushes the logger.
func (b *Bootstrap) Close() {
	b.DB.Close()
	_ = b.Logger.Sync()
}
