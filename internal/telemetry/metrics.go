package telemetry

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsStarted      = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrar_jobs_started_total", Help: "Jobs accepted for asynchronous execution"})
	JobsSucceeded    = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrar_jobs_succeeded_total", Help: "Jobs that produced a result artifact"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrar_jobs_failed_total", Help: "Jobs that terminated in failure"})
	JobsReaped       = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrar_jobs_reaped_total", Help: "Stuck jobs force-failed by the reaper"})
	JobRetries       = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrar_job_retries_total", Help: "Job attempts that were retried"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "registrar_queue_depth", Help: "Ready queue depth"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "registrar_jobs_inflight", Help: "Jobs currently leased by workers"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrar_rate_limit_rejects_total", Help: "Write requests rejected by the rate limiter"})

	WriteBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_enrollment_write_batches_total",
		Help: "Bulk enrollment write batches by aggregate status code",
	}, []string{"code"})
)

// ObserveWriteBatch records the aggregate code of one reconciled batch.
func ObserveWriteBatch(code int) {
	WriteBatches.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsStarted,
			JobsSucceeded,
			JobsFailed,
			JobsReaped,
			JobRetries,
			QueueDepthGauge,
			InFlightGauge,
			RateLimitRejects,
			WriteBatches,
		)
	})
	return promhttp.Handler()
}
