package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/FooledKiwi/placemap/internal/migrations"
)

// RunMigrations applies all pending SQL migrations and verifies the schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	if err := migrations.Run(ctx, pool, log); err != nil {
		return err
	}

	return migrations.CheckSchema(ctx, pool)
}
