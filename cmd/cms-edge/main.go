// Command cms-edge serves the content API behind the edge rate limiter,
// the daily action quota and the response cache.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/cms-edge/internal/api"
	"github.com/Sternrassler/cms-edge/internal/auth"
	"github.com/Sternrassler/cms-edge/internal/config"
	"github.com/Sternrassler/cms-edge/internal/content"
	"github.com/Sternrassler/cms-edge/internal/database"
	"github.com/Sternrassler/cms-edge/internal/retry"
	"github.com/Sternrassler/cms-edge/pkg/cache"
	"github.com/Sternrassler/cms-edge/pkg/logging"
	"github.com/Sternrassler/cms-edge/pkg/quota"
	"github.com/Sternrassler/cms-edge/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// CLI holds the command line flags. Flags override the config file and
// the environment.
type CLI struct {
	Config   string `help:"Path to a YAML config file." type:"path" env:"CMS_EDGE_CONFIG"`
	EnvFile  string `help:"Path to a .env file (missing file is ignored)." name:"env-file" default:".env"`
	LogLevel string `help:"Log level (debug, info, warn, error)." name:"log-level"`
	Pretty   bool   `help:"Human-readable console logs."`
	Port     int    `help:"Listen port."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("cms-edge"),
		kong.Description("Rate-limited, cached content API."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cli); err != nil {
		fmt.Fprintf(os.Stderr, "cms-edge: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cli CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("main")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("database", cfg.Database.Driver).
		Str("quota_backend", cfg.Quota.Backend).
		Bool("auth", a.verifier != nil).
		Msg("Starting cms-edge")

	return a.Serve(ctx, ln)
}

// loadConfig reads the .env file, the config file and the environment,
// then applies CLI overrides.
func loadConfig(cli CLI) (config.Config, error) {
	if err := config.LoadEnvFile(cli.EnvFile); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return config.Config{}, err
	}

	if cli.LogLevel != "" {
		if _, err := logging.ParseLevel(cli.LogLevel); err != nil {
			return config.Config{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		cfg.Log.Level = cli.LogLevel
	}
	if cli.Pretty {
		cfg.Log.Pretty = true
	}
	if cli.Port != 0 {
		cfg.Port = cli.Port
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app owns every long-lived component.
type app struct {
	cfg      config.Config
	db       *sql.DB
	redis    *redis.Client
	cache    *cache.Store
	limiter  *ratelimit.Limiter
	verifier *auth.Verifier
	server   *api.Server
	logger   zerolog.Logger
}

func newApp(ctx context.Context, cfg config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logging.NewLogger("main")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	dialect, err := quota.NormalizeDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	backoff := retry.DefaultConfig()
	backoff.MaxAttempts = cfg.Startup.RetryAttempts
	backoff.InitialBackoff = cfg.Startup.RetryBackoff.Std()

	dbLogger := logging.NewLogger("database")
	err = retry.Do(ctx, "open database", backoff, a.logger, func(ctx context.Context) error {
		db, err := database.Open(ctx, cfg.Database, dbLogger)
		if err != nil {
			return err
		}
		a.db = db
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		err = retry.Do(ctx, "connect to redis", backoff, a.logger, func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
		if err != nil {
			return nil, err
		}
		a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	var store quota.Store
	switch cfg.Quota.Backend {
	case config.BackendRedis:
		store = quota.NewRedisStore(a.redis, cfg.Quota.RedisRetention.Std())
	default:
		store, err = quota.NewSQLStore(ctx, a.db, dialect)
		if err != nil {
			return nil, err
		}
	}

	quotaLimiter, err := quota.NewLimiter(store, quota.Config{MaxDaily: cfg.Quota.MaxDaily}, logging.NewLogger("quota"))
	if err != nil {
		return nil, err
	}

	a.limiter, err = ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimit.Max,
		Window:      cfg.RateLimit.Window.Std(),
	}, logging.NewLogger("ratelimit"))
	if err != nil {
		return nil, err
	}

	a.cache = cache.NewStore(cache.DefaultConfig(), logging.NewLogger("cache"))

	repo, err := content.NewRepository(ctx, a.db, dialect, logging.NewLogger("content"))
	if err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret != "" {
		a.verifier, err = auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.CookieName, logging.NewLogger("auth"))
		if err != nil {
			return nil, err
		}
	} else {
		a.logger.Warn().Msg("No JWT secret configured, all callers are anonymous")
	}

	a.server, err = api.NewServer(api.Config{
		Cache:       a.cache,
		RateLimiter: a.limiter,
		Quota:       quotaLimiter,
		Content:     repo,
		Verifier:    a.verifier,
		Redis:       a.redis,
		TTLs: api.TTLs{
			BaselStandards:  cfg.Cache.TTL.BaselStandards.Std(),
			BaselChapters:   cfg.Cache.TTL.BaselChapters.Std(),
			AngleCategories: cfg.Cache.TTL.AngleCategories.Std(),
			AnglePodcasts:   cfg.Cache.TTL.AnglePodcasts.Std(),
			Notifications:   cfg.Cache.TTL.Notifications.Std(),
		},
	}, logging.NewLogger("api"))
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Serve runs the HTTP server and both sweepers until ctx is cancelled or
// one of them fails, then shuts the server down gracefully.
func (a *app) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.cache.RunSweeper(gctx, a.cfg.Cache.SweepInterval.Std())
	})

	g.Go(func() error {
		return a.limiter.RunSweeper(gctx, a.cfg.RateLimit.SweepInterval.Std())
	})

	return g.Wait()
}

// Close releases the database and Redis connections.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Closing Redis client failed")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Closing database failed")
		}
	}
}
