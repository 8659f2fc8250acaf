package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/tgpt/internal/core"
	"github.com/flemzord/tgpt/internal/usage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// fakeProvider is a provider registered for health probing only.
type fakeProvider struct {
	failErr error
}

func (p *fakeProvider) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.failErr
}

// fakeUsage is a canned UsageReader.
type fakeUsage map[string]usage.Counters

func (f fakeUsage) Snapshot(key string) usage.Counters { return f[key] }

func (f fakeUsage) All() map[string]usage.Counters {
	out := make(map[string]usage.Counters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// newTestGateway returns a provisioned, not started, gateway.
func newTestGateway(t *testing.T, auth AuthConfig) *Gateway {
	t.Helper()

	g := &Gateway{config: Config{Auth: auth}}
	g.config.defaults()
	if err := g.Provision(core.NewAppContext(testLogger(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return g
}

// serve runs one request through the full router.
func serve(t *testing.T, g *Gateway, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rr, req)
	return rr
}

func authedRequest(method, target, token string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// Compile-time check that the recorder satisfies UsageReader.
var _ UsageReader = (*usage.Recorder)(nil)
