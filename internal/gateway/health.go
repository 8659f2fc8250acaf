package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/flemzord/tgpt/internal/core"
	"github.com/flemzord/tgpt/internal/provider"
	"golang.org/x/sync/errgroup"
)

// ProviderStatus is the probe result of one LLM backend.
type ProviderStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string           `json:"status"` // "ok" or "degraded"
	Uptime    float64          `json:"uptime_seconds"`
	Providers []ProviderStatus `json:"providers"`
}

// handleHealth answers 200 while every provider probe passes and 503 once
// any fails.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers := g.probeProviders(r.Context())

		code, status := http.StatusOK, "ok"
		for _, p := range providers {
			if !p.Available {
				code, status = http.StatusServiceUnavailable, "degraded"
			}
		}
		writeJSON(w, code, HealthResponse{
			Status:    status,
			Uptime:    time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Providers: providers,
		})
	}
}

// probeProviders runs the health checks of the registered providers in
// parallel, each bounded by the health timeout. Results keep the service
// name order.
func (g *Gateway) probeProviders(ctx context.Context) []ProviderStatus {
	var checkers []provider.HealthChecker
	out := []ProviderStatus{}
	for _, name := range g.appCtx.ServicesWithPrefix(providerPrefix) {
		if hc, ok := core.Lookup[provider.HealthChecker](g.appCtx, name); ok {
			checkers = append(checkers, hc)
			out = append(out, ProviderStatus{Name: strings.TrimPrefix(name, providerPrefix), Available: true})
		}
	}

	var eg errgroup.Group
	for i, hc := range checkers {
		eg.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, g.config.Timeouts.Health)
			defer cancel()
			if err := hc.HealthCheck(probeCtx); err != nil {
				out[i].Available, out[i].Error = false, err.Error()
				g.logger.Warn("gateway: provider health check failed", "provider", out[i].Name, "error", err)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return out
}
