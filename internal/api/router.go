package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yegors/wx-forecast/internal/config"
	"github.com/yegors/wx-forecast/internal/websocket"
	"github.com/yegors/wx-forecast/pkg/logger"
)

// Router wires the HTTP surface together
type Router struct {
	handler  *Handler
	wsServer *websocket.Server
	limiter  *RateLimiter
	config   *config.Config
	logger   *logger.Logger
}

// NewRouter creates a new API router. wsServer may be nil when the
// WebSocket channel is disabled, and limiter may be nil when rate limiting is.
func NewRouter(forecastService ForecastService, wsServer *websocket.Server, limiter *RateLimiter, cfg *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:  NewHandler(forecastService, logger),
		wsServer: wsServer,
		limiter:  limiter,
		config:   cfg,
		logger:   logger.Named("router"),
	}
}

// Routes returns the root handler
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Forwarding headers are client-controlled; only honour them behind a proxy
	if r.config.Server.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(RequestLogger(r.logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: r.config.Server.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	// Liveness is never rate limited
	router.Get("/health", r.handler.GetHealth)

	// Everything else draws from the per-client budget
	router.Group(func(limited chi.Router) {
		if r.limiter != nil {
			limited.Use(r.limiter.Middleware)
		}

		limited.Get("/forecast/{city}", r.handler.GetForecast)
		limited.Route("/api/v1", func(v1 chi.Router) {
			v1.Get("/forecast/{city}", r.handler.GetForecast)
		})

		if r.wsServer != nil {
			limited.Get("/ws", r.wsServer.HandleConnection)
		}
	})

	// JSON bodies for router-level errors
	router.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return router
}
