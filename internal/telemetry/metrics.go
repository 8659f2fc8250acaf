// Package telemetry holds the Prometheus collectors and the OpenTelemetry
// tracer setup shared by the bot's components.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tgpt"

var (
	// Updates counts Telegram updates received, by kind
	// (message, callback_query, inline_query, ...).
	Updates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_total",
		Help:      "Telegram updates received.",
	}, []string{"kind"})

	// Rejections counts requests stopped by a middleware, by reason.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejections_total",
		Help:      "Requests rejected before reaching a handler.",
	}, []string{"reason"})

	// RelayOperations counts create/edit calls issued by the streaming relay.
	RelayOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "operations_total",
		Help:      "Message create and edit calls issued by the relay, by outcome.",
	}, []string{"op", "result"})

	// RelayDuration observes the wall time of a relay run.
	RelayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "duration_seconds",
		Help:      "Duration of streaming relay runs.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"state"})

	// LLMRequests counts calls to the model backend.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Requests sent to the LLM backend, by kind and result.",
	}, []string{"kind", "result"})

	// UsageTokens counts tokens recorded against users and the guest pool.
	UsageTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "usage",
		Name:      "tokens_total",
		Help:      "Tokens recorded by the usage recorder.",
	}, []string{"pool"})

	// UsageCost accumulates the dollar cost recorded by the usage recorder.
	UsageCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "usage",
		Name:      "cost_dollars_total",
		Help:      "Cost recorded by the usage recorder.",
	}, []string{"pool"})

	// TranscribedSeconds accumulates the audio duration sent for transcription.
	TranscribedSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "usage",
		Name:      "transcribed_seconds_total",
		Help:      "Seconds of audio transcribed.",
	})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Since observes the seconds elapsed since start on obs.
func Since(obs prometheus.Observer, start time.Time) {
	obs.Observe(time.Since(start).Seconds())
}
