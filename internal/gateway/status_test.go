package gateway

import (
	"encoding/json"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/flemzord/tgpt/internal/usage"
)

func TestStatus_ReportsUsageAndSources(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, AuthConfig{BearerToken: "admin-token"})
	g.startedAt = time.Now().Add(-5 * time.Minute)
	g.usage = fakeUsage{
		"100":          {Name: "alice", TokensToday: 10, CostToday: 0.25, CostMonth: 1},
		"200":          {Name: "bob", TokensToday: 20, CostToday: 0.5, CostMonth: 2},
		usage.GuestKey: {TokensToday: 7, CostToday: 0.02},
	}
	g.dispatcher.Register("telegram", nopWebhook, "")

	rr := serve(t, g, authedRequest(http.MethodGet, "/status", "admin-token"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Users != 2 {
		t.Errorf("users = %d, want 2", resp.Users)
	}
	if resp.CostToday != 0.75 || resp.CostMonth != 3 {
		t.Errorf("cost = %v/%v, want 0.75/3 without the guest pool", resp.CostToday, resp.CostMonth)
	}
	if resp.Guests == nil || resp.Guests.TokensToday != 7 {
		t.Errorf("guests = %+v, want the guest pool counters", resp.Guests)
	}
	if !slices.Equal(resp.WebhookSources, []string{"telegram"}) {
		t.Errorf("webhook sources = %v, want [telegram]", resp.WebhookSources)
	}
	if resp.Uptime < 290 {
		t.Errorf("uptime = %d, expected >= 290", resp.Uptime)
	}
}

func TestStatus_WithoutRecorder(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, AuthConfig{BearerToken: "admin-token"})

	rr := serve(t, g, authedRequest(http.MethodGet, "/status", "admin-token"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Users != 0 || resp.Guests != nil {
		t.Errorf("resp = %+v, want no usage", resp)
	}
}
