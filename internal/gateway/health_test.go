package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// slowProvider blocks its probe until the probe deadline.
type slowProvider struct{}

func (slowProvider) HealthCheck(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		services map[string]any
		code     int
		status   string
		want     []ProviderStatus
	}{
		{
			name:     "no providers",
			services: nil,
			code:     http.StatusOK,
			status:   "ok",
			want:     []ProviderStatus{},
		},
		{
			name:     "healthy",
			services: map[string]any{"provider.openai": &fakeProvider{}},
			code:     http.StatusOK,
			status:   "ok",
			want:     []ProviderStatus{{Name: "openai", Available: true}},
		},
		{
			name: "one failing",
			services: map[string]any{
				"provider.backup": &fakeProvider{},
				"provider.openai": &fakeProvider{failErr: errors.New("401 invalid api key")},
			},
			code:   http.StatusServiceUnavailable,
			status: "degraded",
			want: []ProviderStatus{
				{Name: "backup", Available: true},
				{Name: "openai", Error: "401 invalid api key"},
			},
		},
		{
			name:     "probe timeout",
			services: map[string]any{"provider.openai": slowProvider{}},
			code:     http.StatusServiceUnavailable,
			status:   "degraded",
			want:     []ProviderStatus{{Name: "openai", Error: context.DeadlineExceeded.Error()}},
		},
		{
			name: "services without a probe are skipped",
			services: map[string]any{
				"provider.static": "not a provider",
				"usage.store":     &fakeProvider{failErr: errors.New("ignored")},
			},
			code:   http.StatusOK,
			status: "ok",
			want:   []ProviderStatus{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newTestGateway(t, AuthConfig{})
			g.config.Timeouts.Health = 50 * time.Millisecond
			for name, svc := range tt.services {
				g.appCtx.RegisterService(name, svc)
			}

			rr := serve(t, g, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rr.Code != tt.code {
				t.Errorf("code = %d, want %d", rr.Code, tt.code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("status = %q, want %q", resp.Status, tt.status)
			}
			if len(resp.Providers) != len(tt.want) {
				t.Fatalf("providers = %+v, want %+v", resp.Providers, tt.want)
			}
			for i := range tt.want {
				if resp.Providers[i] != tt.want[i] {
					t.Errorf("providers[%d] = %+v, want %+v", i, resp.Providers[i], tt.want[i])
				}
			}
		})
	}
}

func TestHealth_ProbesRunConcurrently(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, AuthConfig{})
	g.config.Timeouts.Health = 100 * time.Millisecond
	for _, name := range []string{"provider.a", "provider.b", "provider.c"} {
		g.appCtx.RegisterService(name, slowProvider{})
	}

	start := time.Now()
	got := g.probeProviders(t.Context())
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("three 100ms probes took %v", elapsed)
	}
	if len(got) != 3 || got[0].Name != "a" || got[2].Name != "c" {
		t.Errorf("probes = %+v, want a, b, c in order", got)
	}
}
