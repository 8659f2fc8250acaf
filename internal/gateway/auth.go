package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/tgpt/internal/security"
)

// authMiddleware guards the admin routes with the configured bearer token
// or basic credentials. Only failed attempts count against the per-host
// limiter, so a monitoring job polling with the right token is never
// throttled while a guessing client is.
func authMiddleware(cfg AuthConfig, logger *slog.Logger, failures *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "auth:" + clientHost(r)
			if failures != nil && failures.Exhausted(key) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "too many failed attempts", http.StatusTooManyRequests)
				return
			}

			reason := checkCredentials(cfg, r)
			if reason == "" {
				next.ServeHTTP(w, r)
				return
			}

			if failures != nil {
				_ = failures.Allow(key)
			}
			if logger != nil {
				logger.Warn("gateway: admin authentication failed",
					"reason", reason,
					"remote", clientHost(r),
					"path", r.URL.Path,
				)
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="tgpt"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

// checkCredentials returns why r is rejected, or "" when it is accepted.
// Secrets are compared in constant time.
func checkCredentials(cfg AuthConfig, r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "no credentials"
	}
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && cfg.BearerToken != "" {
		if secretEqual(token, cfg.BearerToken) {
			return ""
		}
		return "wrong bearer token"
	}
	if user, pass, ok := r.BasicAuth(); ok && cfg.BasicUser != "" && cfg.BasicPass != "" {
		// Both halves are compared so timing does not reveal the user.
		userOK := secretEqual(user, cfg.BasicUser)
		passOK := secretEqual(pass, cfg.BasicPass)
		if userOK && passOK {
			return ""
		}
		return "wrong basic credentials"
	}
	return "unsupported scheme"
}

// clientHost is the request's remote address without the port.
func clientHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
