package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/FooledKiwi/placemap/internal/config"
	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/geocoding"
	"github.com/FooledKiwi/placemap/internal/handler"
	"github.com/FooledKiwi/placemap/internal/logging"
	"github.com/FooledKiwi/placemap/internal/middleware"
	"github.com/FooledKiwi/placemap/internal/routing"
	"github.com/FooledKiwi/placemap/internal/service"
	"github.com/FooledKiwi/placemap/internal/session"
	"github.com/FooledKiwi/placemap/internal/storage"
)

const requestTimeout = 10 * time.Second

// defaultCenter is where a new map session starts: central Ufa.
var defaultCenter = geo.Coordinate{Lat: 54.7388, Lon: 55.9721}

// DBError represents a database-related error.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("db error during %q: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// App holds the application-level dependencies.
type App struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client // nil unless ROUTE_CACHE=redis
	Router   *gin.Engine
	Sessions *session.Registry

	cfg         *config.Config
	log         zerolog.Logger
	stopJanitor context.CancelFunc
}

// New initializes the application: connects to Postgres, runs migrations,
// wires all domain dependencies, and configures the HTTP engine with routes.
func New(cfg *config.Config) (*App, error) {
	logger := logging.Component("app")

	// --- Database pool ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := OpenDB(ctx, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	logger.Info().Int32("max_conns", pool.Config().MaxConns).Msg("database connection pool established")

	// --- Migrations ---
	if err := storage.RunMigrations(context.Background(), pool, logging.Component("migrations")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: run migrations: %w", err)
	}

	// --- Route cache ---
	a := &App{DB: pool, cfg: cfg, log: logger}

	var store routing.CacheStore
	switch cfg.RouteCache {
	case config.RouteCacheRedis:
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("app: connect redis %s: %w", cfg.RedisAddr, err)
		}
		store = routing.NewRedisCacheStore(a.Redis)
	case config.RouteCacheNone:
		store = routing.NewNoopCacheStore()
	default:
		store = routing.NewPgCacheStore(pool)
	}
	logger.Info().Str("backend", cfg.RouteCache).Msg("route cache configured")

	// --- Domain dependencies ---
	cachedRouter := NewRouter(cfg, store)
	geocoder := NewGeocoder(cfg)

	catalogue, err := storage.DefaultCatalogue()
	if err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("app: load catalogue: %w", err)
	}

	places := storage.NewPlacesRepository(pool)
	seeder := storage.NewSeeder(places, os.DirFS(cfg.ImageDir), catalogue, logging.Component("seed"))
	directions := service.NewDirectionsService(places, geocoder, cachedRouter)

	a.Sessions = session.NewRegistry(geocoder, cachedRouter, session.Config{
		TTL:           cfg.SessionTTL,
		InitialRegion: geo.RegionAround(defaultCenter, 1000, 1000),
	}, logging.Component("session"))

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	a.stopJanitor = stopJanitor
	go a.Sessions.Run(janitorCtx)

	// --- HTTP engine ---
	h := handler.New(places, seeder, directions, a.Sessions, logging.Component("handler"))
	a.Router = newEngine(h, cfg.CORSOrigins, logging.Component("http"))

	return a, nil
}

// NewRouter returns the Google router, or the straight-line estimator when no
// API key is configured, behind a cache backed by store.
func NewRouter(cfg *config.Config, store routing.CacheStore) routing.Router {
	logger := logging.Component("routing")

	var router routing.Router = routing.StraightLine{}
	if cfg.GoogleAPIKey != "" {
		router = routing.NewGoogleRouter(cfg.GoogleAPIKey)
	} else {
		logger.Warn().Msg("GOOGLE_API_KEY not set; routes are straight-line estimates")
	}
	return routing.NewCachedRouter(router, store, routing.WithLogger(func(format string, args ...any) {
		logger.Warn().Msgf(format, args...)
	}))
}

// NewGeocoder returns the rate-limited Nominatim client with duplicate
// in-flight lookups merged.
func NewGeocoder(cfg *config.Config) geocoding.Geocoder {
	return geocoding.NewCoalescing(geocoding.NewNominatim(
		cfg.NominatimURL,
		cfg.NominatimUserAgent,
		cfg.GeocoderRPS,
		logging.Component("geocoding"),
	))
}

// OpenDB connects a pool to dsn and pings it. Errors are *DBError.
func OpenDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &DBError{Op: "parse_dsn", Err: err}
	}

	poolCfg.MaxConns = 20
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &DBError{Op: "connect", Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &DBError{Op: "ping", Err: err}
	}
	return pool, nil
}

// newEngine builds the gin engine with middleware, the health check and the
// versioned API routes.
func newEngine(h *handler.Handler, corsOrigins []string, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(corsOrigins)))
	router.Use(middleware.Timeout(requestTimeout))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h.Register(router.Group("/api/v1"))
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Shutdown closes every session, then the Redis client and the database pool.
func (a *App) Shutdown() {
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
	if a.Sessions != nil {
		a.Sessions.Close()
		a.log.Info().Msg("map sessions closed")
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing redis client")
		}
	}
	if a.DB != nil {
		a.DB.Close()
		a.log.Info().Msg("database connection pool closed")
	}
}
