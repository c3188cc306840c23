// Package metrics exposes the process's Prometheus instrumentation.
// Collectors are registered once at package init via promauto and shared by
// the HTTP layer, the job queue and the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts finished HTTP requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logsight_http_requests_total",
		Help: "Finished HTTP requests.",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks request latency per route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logsight_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// JobsProcessed counts background jobs by kind and outcome
	// (done, retried, failed).
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logsight_jobs_total",
		Help: "Background jobs processed.",
	}, []string{"kind", "outcome"})

	// JobDuration tracks how long job handlers run.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logsight_job_duration_seconds",
		Help:    "Background job handler duration.",
		Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
	}, []string{"kind"})

	// EventsIngested counts log events written by the ingestion pipeline.
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logsight_events_ingested_total",
		Help: "Log events parsed and stored.",
	})

	// InsightTokens counts LLM tokens spent generating insights.
	InsightTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logsight_insight_tokens_total",
		Help: "LLM tokens consumed by insight generation.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
