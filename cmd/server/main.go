package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "moviefinder/internal/api/http"
	"moviefinder/internal/app"
	"moviefinder/internal/domain/ports"
	"moviefinder/internal/metrics"
	"moviefinder/internal/providers/tmdb"
	"moviefinder/internal/repository/appwrite"
	"moviefinder/internal/repository/memory"
	mongorepo "moviefinder/internal/repository/mongo"
	redisrepo "moviefinder/internal/repository/redis"
	"moviefinder/internal/search"
	"moviefinder/internal/telemetry"
	"moviefinder/internal/tracker"
)

const serviceName = "moviefinder"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("storeBackend", cfg.StoreBackend),
		slog.Bool("hasTMDBToken", cfg.TMDBAPIToken != ""),
		slog.Duration("tmdbTimeout", cfg.TMDBTimeout),
		slog.Duration("searchDebounce", cfg.SearchDebounce),
		slog.Duration("trackerTimeout", cfg.TrackerTimeout),
		slog.Bool("tracing", cfg.OTLPEndpoint != ""),
	)

	tmdbClient := tmdb.NewClient(tmdb.Config{
		Token:   cfg.TMDBAPIToken,
		BaseURL: cfg.TMDBBaseURL,
		Client:  &http.Client{Timeout: cfg.TMDBTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	})
	if !tmdbClient.Enabled() {
		logger.Warn("tmdb api token not configured, movie requests will be rejected upstream")
	}

	store, closeStore := buildCounterStore(cfg, logger)
	defer closeStore()

	popularity := tracker.New(store,
		tracker.WithLogger(logger),
		tracker.WithPosterFallback(cfg.PosterFallback),
	)
	logger.Info("search tracker initialized",
		slog.String("backend", cfg.StoreBackend),
		slog.Bool("atomicUpsert", popularity.Atomic()),
	)

	searchService := search.NewService(tmdbClient, popularity,
		search.WithLogger(logger),
		search.WithTrackTimeout(cfg.TrackerTimeout),
		search.WithPosterFallback(cfg.PosterFallback),
	)

	apiServer := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithHealthChecker(popularity),
		apihttp.WithMovieSource(tmdbClient),
		apihttp.WithDebounce(cfg.SearchDebounce),
		apihttp.WithCORS(cfg.CORSAllowedOrigin),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Live search websockets are long-lived; their pumps set their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("movie finder service started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	apiServer.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	if err := searchService.Wait(shutdownCtx); err != nil {
		logger.Warn("pending search tracking dropped", slog.String("error", err.Error()))
	}
	logger.Info("movie finder service stopped")
}

// buildCounterStore connects the configured backend. An unreachable store is
// logged and kept: tracking failures never block searching. Only a backend
// that cannot be constructed at all falls back to memory.
func buildCounterStore(cfg app.Config, logger *slog.Logger) (ports.CounterStore, func()) {
	noop := func() {}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case app.StoreMongo:
		client, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			logger.Error("mongo connect failed, using in-memory counters", slog.String("error", err.Error()))
			return memory.NewStore(), noop
		}
		closeClient := func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = client.Disconnect(closeCtx)
		}
		repo := mongorepo.NewCounterRepository(client, cfg.MongoDatabase, cfg.MongoCollection, mongorepo.WithLogger(logger))
		if err := repo.Ping(ctx); err != nil {
			logger.Warn("mongo not reachable, indexes will be created on first write", slog.String("error", err.Error()))
			return repo, closeClient
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo index setup failed", slog.String("error", err.Error()))
		}
		logger.Info("mongo counter store connected",
			slog.String("database", cfg.MongoDatabase),
			slog.String("collection", cfg.MongoCollection),
		)
		return repo, closeClient

	case app.StoreRedis:
		redisOpts, err := redis.ParseURL(strings.TrimSpace(cfg.RedisURL))
		if err != nil {
			logger.Error("invalid redis url, using in-memory counters", slog.String("error", err.Error()))
			return memory.NewStore(), noop
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable, tracking will fail until it is", slog.String("error", err.Error()))
		} else {
			logger.Info("redis counter store connected", slog.String("addr", redisOpts.Addr))
		}
		return redisrepo.NewCounterStore(client, ""), func() { _ = client.Close() }

	case app.StoreAppwrite:
		if cfg.AppwriteProject == "" || cfg.AppwriteDatabase == "" || cfg.AppwriteCollection == "" {
			logger.Error("appwrite project, database and collection ids are required, using in-memory counters")
			return memory.NewStore(), noop
		}
		store := appwrite.NewCounterStore(appwrite.Config{
			Endpoint:     cfg.AppwriteEndpoint,
			ProjectID:    cfg.AppwriteProject,
			DatabaseID:   cfg.AppwriteDatabase,
			CollectionID: cfg.AppwriteCollection,
			APIKey:       cfg.AppwriteAPIKey,
			Client:       &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		})
		if err := store.Ping(ctx); err != nil {
			logger.Warn("appwrite not reachable, tracking will fail until it is", slog.String("error", err.Error()))
		} else {
			logger.Info("appwrite counter store connected", slog.String("endpoint", cfg.AppwriteEndpoint))
		}
		return store, noop

	default:
		logger.Info("using in-memory counter store")
		return memory.NewStore(), noop
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	handlerOpts := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
