package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"flowstudio/application/commands/bus"
	querybus "flowstudio/application/queries/bus"
	"flowstudio/infrastructure/config"
	"flowstudio/interfaces/http/rest/handlers"
	"flowstudio/interfaces/http/rest/middleware"
	"flowstudio/pkg/common"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
	"flowstudio/pkg/ratelimit"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func() error

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	metrics    *observability.Collector
	config     *config.Config
	checks     map[string]ReadinessCheck
	limiter    *ratelimit.SlidingWindowLimiter
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	metrics *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	var limiter *ratelimit.SlidingWindowLimiter
	if cfg.GenerationRateLimit > 0 {
		limiter = ratelimit.NewSlidingWindowLimiter(cfg.GenerationRateLimit, time.Minute)
	}
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment()),
		metrics:    metrics,
		config:     cfg,
		checks:     make(map[string]ReadinessCheck),
		limiter:    limiter,
		logger:     logger,
	}
}

// AddReadinessCheck registers a check consulted by /ready.
func (rt *Router) AddReadinessCheck(name string, check ReadinessCheck) {
	rt.checks[name] = check
}

// RunMaintenance prunes idle rate limit windows until ctx is done.
func (rt *Router) RunMaintenance(ctx context.Context) {
	if rt.limiter == nil {
		return
	}
	rt.limiter.RunPruner(ctx, 5*time.Minute)
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if rt.config.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil && rt.config.EnableMetrics {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	nodeHandler := handlers.NewNodeHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
	edgeHandler := handlers.NewEdgeHandler(rt.commandBus, rt.errors, rt.logger)
	cropHandler := handlers.NewCropHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
	assetHandler := handlers.NewAssetHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)

	// Generation and background removal call the paid remote service
	throttled := func(r chi.Router) chi.Router { return r }
	if rt.limiter != nil {
		limit := middleware.RateLimit(rt.limiter, rt.errors, rt.logger)
		throttled = func(r chi.Router) chi.Router { return r.With(limit) }
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/graph", nodeHandler.GetGraph)

		r.Route("/nodes", func(r chi.Router) {
			r.Post("/", nodeHandler.CreateNode)
			r.Route("/{nodeID}", func(r chi.Router) {
				r.Get("/", nodeHandler.GetNode)
				r.Patch("/", nodeHandler.UpdateNode)
				r.Delete("/", nodeHandler.DeleteNode)
				throttled(r).Post("/generate", nodeHandler.Generate)
				r.Post("/replace", nodeHandler.Replace)
				r.Post("/media", nodeHandler.SetMedia)
				throttled(r).Post("/background-removal", nodeHandler.RemoveBackground)
				r.Post("/download", nodeHandler.Download)
				r.Post("/asset", nodeHandler.UseAsset)

				r.Route("/crop", func(r chi.Router) {
					r.Post("/", cropHandler.Start)
					r.Get("/", cropHandler.Get)
					r.Put("/", cropHandler.Update)
					r.Patch("/", cropHandler.Resize)
					r.Delete("/", cropHandler.End)
					r.Post("/{action:undo|redo|commit}", cropHandler.Step)
				})
			})
		})

		r.Route("/edges", func(r chi.Router) {
			r.Post("/", edgeHandler.CreateEdge)
			r.Delete("/{edgeID}", edgeHandler.DeleteEdge)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", assetHandler.ListAssets)
			r.Patch("/{assetID}", assetHandler.UpdateAsset)
			r.Delete("/{assetID}", assetHandler.DeleteAsset)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck runs every registered check and reports the failures.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, check := range rt.checks {
		if err := check(); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		rt.logger.Warn("Readiness check failed", zap.Any("failures", failures))
		common.RespondJSON(w, r, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not ready",
			"failures": failures,
		})
		return
	}
	common.RespondJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
