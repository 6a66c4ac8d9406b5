// Command placectl manages the places catalogue and runs one-off geocoding
// and routing queries against the configured providers.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/FooledKiwi/placemap/internal/app"
	"github.com/FooledKiwi/placemap/internal/config"
	"github.com/FooledKiwi/placemap/internal/logging"
	"github.com/FooledKiwi/placemap/internal/routing"
	"github.com/FooledKiwi/placemap/internal/service"
	"github.com/FooledKiwi/placemap/internal/storage"
)

func main() {
	if err := newRootCmd(openBackend).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openBackend loads the configuration, connects to Postgres, applies
// migrations and wires the providers.
func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := app.OpenDB(ctx, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := storage.RunMigrations(ctx, pool, logging.Component("migrations")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("placectl: run migrations: %w", err)
	}

	catalogue, err := storage.DefaultCatalogue()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("placectl: load catalogue: %w", err)
	}

	// Only the Postgres cache is shared with the server.
	store := routing.NewNoopCacheStore()
	if cfg.RouteCache == config.RouteCachePostgres {
		store = routing.NewPgCacheStore(pool)
	}

	places := storage.NewPlacesRepository(pool)
	geocoder := app.NewGeocoder(cfg)
	return &backend{
		places:     places,
		seeder:     storage.NewSeeder(places, os.DirFS(cfg.ImageDir), catalogue, logging.Component("seed")),
		geocoder:   geocoder,
		directions: service.NewDirectionsService(places, geocoder, app.NewRouter(cfg, store)),
		close:      pool.Close,
	}, nil
}
