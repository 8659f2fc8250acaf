package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgpt",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "HTTP requests served by the gateway, by route and status code.",
	}, []string{"route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tgpt",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP requests served by the gateway.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	webhookOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgpt",
		Subsystem: "gateway",
		Name:      "webhooks_total",
		Help:      "Webhook payloads received, by source and outcome.",
	}, []string{"source", "outcome"})
)

// instrument records the count and latency of every request, labelled by
// the matched route pattern so path parameters do not explode cardinality.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
