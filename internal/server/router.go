package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/askfolio/askfolio/internal/api"
	"github.com/askfolio/askfolio/internal/api/handlers"
	"github.com/askfolio/askfolio/internal/api/middleware"
)

type RouterConfig struct {
	ChatHandler    *handlers.ChatHandler
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 64 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{
			"service": "askfolio",
			"status":  "running",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Post("/chat", cfg.ChatHandler.Ask)
		r.Route("/chat/history/{sessionID}", func(r chi.Router) {
			r.Get("/", cfg.ChatHandler.History)
			r.Delete("/", cfg.ChatHandler.DeleteSession)
		})
	})

	return r
}
