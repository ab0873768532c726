package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"openprotect-lab/internal/api/handlers"
	apimiddleware "openprotect-lab/internal/api/middleware"
	"openprotect-lab/internal/config"
	"openprotect-lab/internal/infrastructure/cache"
	"openprotect-lab/internal/metrics"
	"openprotect-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	cache    *cache.RedisCache
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. cache and m may be nil.
func NewRouter(cfg config.Config, h *handlers.Handlers, c *cache.RedisCache, m *metrics.Metrics, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		cache:    c,
		metrics:  m,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	var obs apimiddleware.HTTPObserver
	if r.metrics != nil {
		obs = r.metrics
	}

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger, obs))
	router.Use(middleware.Recoverer)

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Public routes
	router.Group(func(pub chi.Router) {
		// Health check
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)

		if r.metrics != nil {
			pub.Handle("/metrics", r.metrics.Handler())
		}

		// Live console feed
		pub.Get("/ws", r.handlers.Streaming.HandleWebSocket)
	})

	// API v1 routes
	router.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(60 * time.Second))

		// Rate limiting
		if r.config.RateLimit.Enabled && r.cache != nil {
			api.Use(apimiddleware.RateLimiter(r.cache, r.config.RateLimit, r.logger))
		}

		// Console read models
		api.Get("/dashboard", r.handlers.Console.Dashboard)
		api.Get("/alerts", r.handlers.Console.ListAlerts)
		api.Get("/alerts/{id}", r.handlers.Console.GetAlert)
		api.Get("/events", r.handlers.Console.ListEvents)
		api.Get("/knowledge", r.handlers.Console.Knowledge)
		api.Get("/knowledge/ledger", r.handlers.Console.Ledger)

		// Case management
		api.Route("/cases", func(cases chi.Router) {
			cases.Get("/", r.handlers.Cases.List)
			cases.Post("/", r.handlers.Cases.Create)
			cases.Get("/review", r.handlers.Cases.Review)
			cases.Get("/{id}", r.handlers.Cases.Get)
			cases.Post("/{id}/assign", r.handlers.Cases.Assign)
			cases.Post("/{id}/resolve", r.handlers.Cases.Resolve)
		})

		// SOAR playbooks
		api.Route("/playbooks", func(pb chi.Router) {
			pb.Get("/", r.handlers.Playbooks.List)
			pb.Post("/", r.handlers.Playbooks.Create)
			pb.Get("/executions", r.handlers.Playbooks.Executions)
			pb.Get("/{id}", r.handlers.Playbooks.Get)
			pb.Put("/{id}", r.handlers.Playbooks.Update)
			pb.Patch("/{id}/active", r.handlers.Playbooks.SetActive)
			pb.Get("/{id}/versions", r.handlers.Playbooks.Versions)
			pb.Post("/{id}/versions/{versionID}/activate", r.handlers.Playbooks.ActivateVersion)
		})

		// Directives
		api.Post("/directives/agent-upgrade", r.handlers.Directives.PushAgentUpgrade)

		// Analytics
		api.Route("/analytics", func(a chi.Router) {
			a.Get("/heatmap", r.handlers.Analytics.Heatmap)
			a.Get("/fleet", r.handlers.Analytics.Fleet)
			a.Get("/weak-passwords", r.handlers.Analytics.WeakPasswords)
			a.Get("/learning", r.handlers.Analytics.LearningSummary)
		})

		// Simulation control
		api.Route("/simulation", func(sim chi.Router) {
			sim.Get("/", r.handlers.Simulation.Status)
			sim.Post("/tick", r.handlers.Simulation.Tick)
			sim.Post("/start", r.handlers.Simulation.Start)
			sim.Post("/stop", r.handlers.Simulation.Stop)
		})

		// Streaming stats
		api.Get("/streaming/stats", r.handlers.Streaming.GetStats)
	})

	return router
}
