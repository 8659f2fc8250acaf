package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/tgpt/internal/usage"
)

// StatusResponse is the body of GET /status. Guests is set only when the
// guest pool has recorded usage; user totals exclude it.
type StatusResponse struct {
	Uptime         int64           `json:"uptime_seconds"`
	Users          int             `json:"users"`
	CostToday      float64         `json:"cost_today"`
	CostMonth      float64         `json:"cost_month"`
	Guests         *usage.Counters `json:"guests,omitempty"`
	WebhookSources []string        `json:"webhook_sources"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:         int64(time.Since(g.startedAt) / time.Second),
			WebhookSources: g.dispatcher.Sources(),
		}
		if g.usage != nil {
			resp.tally(g.usage.All())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *StatusResponse) tally(all map[string]usage.Counters) {
	for key, c := range all {
		if key == usage.GuestKey {
			s.Guests = &c
			continue
		}
		s.Users++
		s.CostToday += c.CostToday
		s.CostMonth += c.CostMonth
	}
}
