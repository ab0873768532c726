package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"openprotect-lab/internal/api"
	"openprotect-lab/internal/api/handlers"
	"openprotect-lab/internal/config"
	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
	"openprotect-lab/internal/grpc/timeline"
	"openprotect-lab/internal/infrastructure/cache"
	"openprotect-lab/internal/metrics"
	"openprotect-lab/internal/sources"
	"openprotect-lab/internal/sources/replay"
	"openprotect-lab/internal/sources/simulated"
	"openprotect-lab/internal/streaming"
	"openprotect-lab/pkg/logger"
)

// websocketBacklog is how many recent events a new WebSocket client receives
const websocketBacklog = 50

func main() {
	configPath := flag.String("config", "", "path to config file (default: search ./config.yaml, ./config/config.yaml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting OpenProtect Lab console")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without snapshot cache and event archive")
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing without JetStream mirror")
			natsPublisher = nil
		}
	}

	m := metrics.New()

	// Create event bus for real-time updates
	eventBus := streaming.NewEventBus(natsPublisher, log)
	log.Info().Bool("nats_enabled", natsPublisher != nil).Msg("event bus initialized")

	// The engine does not exist yet, so the backlog closure resolves it lazily
	var engine *services.Coordinator
	wsHub := streaming.NewWebSocketHub(func(limit int) []models.ServerEvent {
		return engine.Events().Recent(limit)
	}, websocketBacklog, log)
	go wsHub.Run(ctx)

	// Wire event publisher for real-time updates
	archives := []services.EventPublisher{}
	if redisCache != nil {
		archives = append(archives, redisCache)
	}
	publisher := streaming.NewEventBusPublisher(eventBus, wsHub, archives...)

	// Initialize the engine
	opts := cfg.Engine.EngineOptions()
	opts.Publisher = publisher
	opts.Metrics = m
	engine = services.NewEngine(cfg.Engine.CoordinatorConfig(), opts, log)

	if cfg.Playbooks.SeedFile != "" {
		n, err := services.LoadPlaybooks(cfg.Playbooks.SeedFile, engine.Playbooks(), log)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Playbooks.SeedFile).Msg("failed to load playbooks")
		}
		log.Info().Int("playbooks", n).Msg("playbooks seeded")
	}

	analytics := services.NewAnalyticsService(engine.Events(), engine.Ledger(), nil, log)

	// Register tick sources and build the scheduler
	var scheduler *services.Scheduler
	if cfg.Simulation.Enabled {
		registry, err := buildSourceRegistry(cfg.Simulation, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to register tick sources")
		}
		source, err := registry.Select(cfg.Simulation.Source)
		if err != nil {
			log.Fatal().Err(err).Msg("unknown tick source")
		}

		var schedOpts []services.SchedulerOption
		if redisCache != nil {
			schedOpts = append(schedOpts,
				services.WithTickLocker(redisCache),
				services.WithSnapshotSink(redisCache, engine.Snapshot),
			)
		}
		scheduler = services.NewScheduler(source, engine, cfg.Simulation.Interval, log, schedOpts...)
	}

	// Initialize handlers
	h := handlers.NewHandlers(handlers.Dependencies{
		BaseContext: ctx,
		Engine:      engine,
		Analytics:   analytics,
		Scheduler:   scheduler,
		Cache:       redisCache,
		EventBus:    eventBus,
		WSHub:       wsHub,
		NATS:        natsPublisher,
		Logger:      log,
	})

	// Create router
	router := api.NewRouter(*cfg, h, redisCache, m, log)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gRPC listener")
	}

	grpcServer := grpc.NewServer()
	timeline.NewServer(eventBus, engine.Events(), engine, log).Register(grpcServer)

	// Register gRPC health check service
	var healthDeps []timeline.Pinger
	if redisCache != nil {
		healthDeps = append(healthDeps, redisCache)
	}
	timeline.RegisterHealthServer(ctx, grpcServer, timeline.DefaultHealthInterval, log, healthDeps...)

	go func() {
		log.Info().
			Str("addr", grpcListener.Addr().String()).
			Msg("starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Start background services
	if scheduler != nil && cfg.Simulation.AutoStart {
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("scheduler stopped with error")
			}
		}()
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Stop the tick loop before tearing down its sinks
	if scheduler != nil {
		scheduler.Stop()
		scheduler.Wait()
	}

	// Cancel context to stop background services
	cancel()

	// Closing the bus ends open gRPC streams so GracefulStop can return
	eventBus.Close()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop gRPC server
	grpcServer.GracefulStop()

	// Stop HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// buildSourceRegistry registers every tick source the configuration enables
func buildSourceRegistry(cfg config.SimulationConfig, log *logger.Logger) (*sources.Registry, error) {
	registry := sources.NewRegistry(log)

	gen := simulated.NewGenerator(simulated.Config{
		Seed:            cfg.Seed,
		AlertChance:     cfg.AlertChance,
		IntelChance:     cfg.IntelChance,
		DirectiveChance: cfg.DirectiveChance,
	}, log)
	if err := registry.Register(gen); err != nil {
		return nil, err
	}

	if cfg.ReplayFile != "" {
		rec, err := replay.Load(cfg.ReplayFile, true, log)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(rec); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
