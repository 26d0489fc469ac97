package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scb10x/typhoon-scribe/internal/config"
	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

// Router sets up the HTTP routes
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new router
func NewRouter(handler *Handler, mw *Middleware, cfg *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    handler,
		middleware: mw,
		config:     cfg,
		logger:     logger.Named("router"),
	}
}

// Routes returns the HTTP handler with all routes configured
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", r.handler.GetHealth)
		api.Get("/config", r.handler.GetConfig)

		api.Post("/transcribe", r.handler.Transcribe)

		api.Route("/sessions", func(sessions chi.Router) {
			sessions.Post("/start", r.handler.StartSession)
			sessions.Post("/stop", r.handler.StopSession)
			sessions.Get("/status", r.handler.GetSessionStatus)
		})

		api.Get("/ws", r.handler.HandleWebSocket)
	})

	// Static files for the web UI
	if r.config.Server.StaticFilesDir != "" {
		staticHandler := NewStaticFileHandler(r.config.Server.StaticFilesDir, r.logger)
		router.Handle("/*", staticHandler)
	}

	return router
}
