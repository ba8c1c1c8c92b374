package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsDispatched   = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_jobs_dispatched_total", Help: "Jobs enqueued by scheduler or direct trigger"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_jobs_completed_total", Help: "Jobs that reached completed"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_jobs_failed_total", Help: "Jobs that reached failed"})
	JobsDuplicate    = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_jobs_duplicate_total", Help: "Jobs completed as duplicates without generation or billing"})
	CreditsDeducted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_credits_deducted_total", Help: "Total credits charged across clients"})
	HumanizePasses   = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_humanize_passes_total", Help: "Single-pass humanize revisions performed"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_rate_limit_rejects_total", Help: "Trigger requests rejected by rate limiter"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "content_queue_depth", Help: "Ready queue depth"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "content_jobs_inflight", Help: "Jobs currently leased by workers"})

	PublishAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "content_publish_attempts_total",
		Help: "Publish attempts by channel and outcome",
	}, []string{"channel", "status"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsDispatched,
			JobsCompleted,
			JobsFailed,
			JobsDuplicate,
			CreditsDeducted,
			HumanizePasses,
			RateLimitRejects,
			QueueDepthGauge,
			InFlightGauge,
			PublishAttempts,
		)
	})
	return promhttp.Handler()
}
