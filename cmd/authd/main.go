package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/httpapi"
	"github.com/MrEthical07/authkit/imagestore"
	"github.com/MrEthical07/authkit/internal/config"
	"github.com/MrEthical07/authkit/internal/logging"
	"github.com/MrEthical07/authkit/internal/rate"
	"github.com/MrEthical07/authkit/metrics/export/prometheus"
	"github.com/MrEthical07/authkit/refresh"
	"github.com/MrEthical07/authkit/storage/memory"
	"github.com/MrEthical07/authkit/storage/postgres"
	redisstore "github.com/MrEthical07/authkit/storage/redis"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "migrate":
		err = migrate()
	default:
		fmt.Fprintf(os.Stderr, "usage: authd [serve|migrate]\n")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func migrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Storage != config.StoragePostgres {
		return fmt.Errorf("migrate needs AUTH_STORAGE=postgres, got %q", cfg.Storage)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

// backend is the storage selected by AUTH_STORAGE plus what depends on it.
type backend struct {
	repo    authkit.Repository
	limiter rate.Limiter
	health  func(ctx context.Context) error
	close   func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	limits := rate.Config{PerMinute: cfg.RateLimitPerMinute, Burst: cfg.RateLimitPerMinute, CleanupInterval: 5 * time.Minute}

	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := postgres.NewStore(db)
		if err := store.Ping(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		local := rate.NewLocal(limits)
		return &backend{
			repo:    store,
			limiter: local,
			health:  store.Ping,
			close: func() {
				local.Stop()
				_ = db.Close()
			},
		}, nil

	case config.StorageRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := redisstore.NewStore(client, cfg.RedisPrefix)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return &backend{
			repo:    store,
			limiter: rate.NewRedis(client, cfg.RedisPrefix+":", limits),
			health:  store.Ping,
			close:   func() { _ = client.Close() },
		}, nil

	default:
		local := rate.NewLocal(limits)
		return &backend{
			repo:    memory.New(),
			limiter: local,
			close:   local.Stop,
		}, nil
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("authd starting",
		slog.String("version", Version),
		slog.String("storage", cfg.Storage),
		slog.String("addr", cfg.ListenAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	authCfg := cfg.AuthConfig()
	for _, w := range authCfg.Lint() {
		logger.Warn("config lint", slog.String("code", w.Code), slog.String("message", w.Message))
	}

	builder := authkit.New().
		WithConfig(authCfg).
		WithRepository(be.repo).
		WithLogger(logger).
		WithAuditSink(authkit.NewSlogSink(logger))

	if cfg.ImageUploadURL != "" {
		uploader, err := imagestore.NewUploader(imagestore.Config{
			UploadURL:    cfg.ImageUploadURL,
			UploadPreset: cfg.ImageUploadPreset,
		})
		if err != nil {
			return fmt.Errorf("creating image uploader: %w", err)
		}
		builder = builder.WithImageStore(uploader)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Service:           engine,
		Logger:            logger,
		Limiter:           be.limiter,
		RetryAfterSeconds: 60,
		TrustProxy:        cfg.TrustProxy,
		Metrics:           prometheus.NewPrometheusExporter(engine).Handler(),
		Health:            be.health,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if interval := authCfg.Refresh.SweepInterval; interval > 0 {
		sweeper := refresh.NewSweeper(refresh.SweepFunc(engine.SweepExpiredRefreshTokens), interval, logger)
		g.Go(func() error {
			sweeper.Start(gctx)
			return nil
		})
	} else {
		logger.Warn("refresh token sweeper disabled")
	}

	return g.Wait()
}
