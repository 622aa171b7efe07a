package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/api"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/config"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/jobs"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/log"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/metrics"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/pools"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/repository"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/staking"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/store"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/ws"
	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"

	_ "github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/memory"
	_ "github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/redis"
)

const version = "v1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting early staking API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"version", version,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("ecoearn-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Key-value store; redis falls back to memory when unreachable
	kvStore, err := kv.NewStoreFromConfig(kv.Config{
		Backend:  kv.Backend(cfg.Cache.Backend),
		RedisURL: cfg.Cache.RedisURL,
		Logger:   log.KVLogFunc(logger),
	})
	if err != nil {
		logger.Fatalw("Failed to create kv store", "error", err)
	}
	cache := store.NewCache(kvStore, logger, metricsObj)
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		logger.Fatalw("Cache ping failed", "error", err)
	}
	logger.Infow("Cache ready", "in_memory", cache.IsInMemoryMode())

	// Pool catalog and aggregate source
	catalog, err := pools.LoadCatalog(cfg.Pools.CatalogFile)
	if err != nil {
		logger.Fatalw("Failed to load pool catalog", "file", cfg.Pools.CatalogFile, "error", err)
	}
	logger.Infow("Pool catalog loaded", "file", cfg.Pools.CatalogFile, "pools", catalog.Len())

	var source pools.Source
	switch cfg.Pools.Source {
	case "simulated":
		source = pools.NewSimulatedSource(catalog, calc.PoolAggregate{}, cfg.Pools.SimVolatility, 0, logger)
		logger.Warnw("Using simulated pool source; aggregates are synthetic")
	default:
		source = pools.NewRESTSource(cfg.Backend.URL, cfg.Backend.RPS, cfg.Backend.Timeout, logger)
	}
	poolSvc := pools.NewService(catalog, source, cache, cfg.Cache.PoolTTL, logger)

	// Reward engine
	projector := calc.NewProjector(calc.NewBoostEngine(nil, cfg.Calc.BoostCacheSize))
	stakingSvc := staking.NewService(poolSvc, projector, metricsObj, logger)

	readiness := map[string]api.Pinger{"cache": cache}

	// Snapshot history
	var (
		history  api.HistoryReader
		recorder jobs.SnapshotRecorder
	)
	if cfg.Snapshot.Driver != repository.DriverNone {
		db, err := repository.Open(cfg.Snapshot.Driver, cfg.Snapshot.DSN)
		if err != nil {
			logger.Fatalw("Failed to open snapshot database", "driver", cfg.Snapshot.Driver, "error", err)
		}
		if err := repository.Migrate(db, cfg.Snapshot.Driver); err != nil {
			logger.Fatalw("Failed to migrate snapshot database", "error", err)
		}
		repo := repository.NewRepository(db, cfg.Snapshot.Driver, logger)
		defer repo.Close()

		history = repo
		recorder = repo
		readiness["snapshots"] = repo
		logger.Infow("Snapshot database initialized", "driver", cfg.Snapshot.Driver)
	} else {
		logger.Infow("Snapshot recording disabled")
	}

	// Setup WebSocket hub and SSE handler
	resolver := ws.NewResolver(stakingSvc)
	wsHub := ws.NewHub(resolver, cache, metricsObj, logger, cfg.Calc.CountdownInterval, cfg.Security.CORSAllowedOrigins)
	sseHandler := ws.NewSSEHandler(resolver, cache, metricsObj, logger, cfg.Calc.CountdownInterval)

	// Create context for background services
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go wsHub.Run(bgCtx)

	poller, err := jobs.NewAggregatePoller(poolSvc, cache, recorder, metricsObj, logger, jobs.PollerConfig{
		Schedule:  cfg.Pools.PollSchedule,
		Timeout:   cfg.Backend.Timeout,
		Retention: cfg.Snapshot.Retention,
	})
	if err != nil {
		logger.Fatalw("Failed to create aggregate poller", "error", err)
	}
	go func() {
		if err := poller.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("Aggregate poller error", "error", err)
		}
	}()

	// Setup API handler and middleware
	handler := api.NewHandler(stakingSvc, history, readiness, wsHub, sseHandler, logger)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, api.RouteConfig{
		CORSOrigins:    cfg.Security.CORSAllowedOrigins,
		MirrorOrigins:  cfg.IsDev(),
		RateLimitRPM:   cfg.Security.RateLimitRPM,
		MetricsHandler: metricsHandler,
	})

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins, "mirror", cfg.IsDev())

	// Setup HTTP server; no write timeout so unlock streams stay open
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		poller.Stop()
		bgCancel()

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
