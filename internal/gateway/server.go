package gateway

import (
	"net/http"

	"github.com/flemzord/tgpt/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter wires every route. /health, /metrics and the webhooks are
// public; the admin API exists only when credentials are configured.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, instrument)

	r.Get("/health", g.handleHealth())
	if *g.config.Metrics {
		r.Handle("/metrics", telemetry.Handler())
	}
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	if g.config.Auth.IsConfigured() {
		r.With(authMiddleware(g.config.Auth, g.logger, g.limiter)).Group(g.adminRoutes)
	}
	return r
}

func (g *Gateway) adminRoutes(r chi.Router) {
	r.Get("/status", g.handleStatus())
	r.Route("/api", func(r chi.Router) {
		r.Route("/usage", func(r chi.Router) {
			r.Get("/", g.handleListUsage())
			r.Get("/top", g.handleTopSpenders())
			r.Get("/{user}", g.handleGetUsage())
		})
		r.Get("/modules", g.handleGetAllModules())
		r.Get("/config", g.handleGetConfig())
	})
}
