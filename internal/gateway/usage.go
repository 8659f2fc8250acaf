package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/flemzord/tgpt/internal/config"
	"github.com/flemzord/tgpt/internal/core"
	"github.com/flemzord/tgpt/internal/security"
	"github.com/flemzord/tgpt/internal/usage"
	"github.com/go-chi/chi/v5"
)

// usageJSON is one user's counters as listed by /api/usage.
type usageJSON struct {
	User        string  `json:"user"`
	Name        string  `json:"name,omitempty"`
	TokensToday int     `json:"tokens_today"`
	TokensMonth int     `json:"tokens_month"`
	ImagesMonth int     `json:"images_month"`
	CostToday   float64 `json:"cost_today"`
	CostMonth   float64 `json:"cost_month"`
	CostAllTime float64 `json:"cost_all_time"`
}

func newUsageJSON(key string, c usage.Counters) usageJSON {
	return usageJSON{
		User:        key,
		Name:        c.Name,
		TokensToday: c.TokensToday,
		TokensMonth: c.TokensMonth,
		ImagesMonth: c.ImagesMonth,
		CostToday:   c.CostToday,
		CostMonth:   c.CostMonth,
		CostAllTime: c.CostAllTime,
	}
}

// handleListUsage returns a summary of every user's counters, sorted by
// user key. The guest pool is listed under its own key.
func (g *Gateway) handleListUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.usage == nil {
			http.Error(w, "usage recorder not loaded", http.StatusServiceUnavailable)
			return
		}

		all := g.usage.All()
		out := make([]usageJSON, 0, len(all))
		for key, c := range all {
			out = append(out, newUsageJSON(key, c))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })

		writeJSON(w, http.StatusOK, out)
	}
}

// SpendRanker ranks users by monthly spend. The usage.sqlite store
// implements it.
type SpendRanker interface {
	TopSpenders(ctx context.Context, month string, limit int) ([]string, error)
}

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// handleTopSpenders lists the biggest spenders of a month (query "month",
// YYYY-MM, current month by default) with their live counters.
func (g *Gateway) handleTopSpenders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ranker, ok := core.Lookup[SpendRanker](g.appCtx, storeService)
		if !ok {
			http.Error(w, "usage store not loaded", http.StatusServiceUnavailable)
			return
		}

		month := r.URL.Query().Get("month")
		if month == "" {
			month = time.Now().UTC().Format("2006-01")
		} else if _, err := time.Parse("2006-01", month); err != nil {
			http.Error(w, "month must be YYYY-MM", http.StatusBadRequest)
			return
		}
		limit := defaultTopLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, maxTopLimit)
		}

		ids, err := ranker.TopSpenders(r.Context(), month, limit)
		if err != nil {
			g.logger.Error("gateway: ranking spenders failed", "month", month, "error", err)
			http.Error(w, "failed to rank spenders", http.StatusInternalServerError)
			return
		}
		out := make([]usageJSON, 0, len(ids))
		for _, id := range ids {
			var c usage.Counters
			if g.usage != nil {
				c = g.usage.Snapshot(id)
			}
			out = append(out, newUsageJSON(id, c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetUsage returns the full counters of one user.
func (g *Gateway) handleGetUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.usage == nil {
			http.Error(w, "usage recorder not loaded", http.StatusServiceUnavailable)
			return
		}

		user := chi.URLParam(r, "user")
		if _, ok := g.usage.All()[user]; !ok {
			http.Error(w, "no usage recorded for user", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, g.usage.Snapshot(user))
	}
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleGetAllModules lists all compiled modules (for /api/modules).
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetConfig returns the config file as loaded, with secrets redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.configPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(g.configPath)
		if err != nil {
			g.logger.Error("gateway: config load failed", "error", err)
			http.Error(w, "failed to load config", http.StatusInternalServerError)
			return
		}
		generic, err := cfg.Generic()
		if err != nil {
			http.Error(w, "failed to serialize config", http.StatusInternalServerError)
			return
		}

		redactor, ok := core.Lookup[*security.Redactor](g.appCtx, security.RedactorService)
		if !ok {
			redactor = security.NewRedactor()
		}
		redactor.RedactMap(generic)

		writeJSON(w, http.StatusOK, generic)
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
