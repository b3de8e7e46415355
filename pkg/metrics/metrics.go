package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Submission metrics
	JobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_jobs_submitted_total",
			Help: "Total number of jobs accepted and enqueued",
		},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_jobs_completed_total",
			Help: "Total number of jobs executed, by terminal status",
		},
		[]string{"status"},
	)

	// Queue and pool gauges
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_queue_depth",
			Help: "Last observed length of the job queue",
		},
	)

	WorkerPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_worker_pool_size",
			Help: "Last observed count of live worker pods",
		},
	)

	// Executor phase metrics
	CompileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coderunner_compile_duration_seconds",
			Help:    "Time taken by the compile phase",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExecuteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coderunner_execute_duration_seconds",
			Help:    "Time taken by the execute phase",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Worker delivery metrics
	WebhookDeliveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_webhook_delivery_total",
			Help: "Total webhook POST attempts, by outcome",
		},
		[]string{"outcome"},
	)

	// Orchestrator scaling metrics
	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coderunner_reconcile_duration_seconds",
			Help:    "Time taken for one scaling reconcile tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_reconcile_cycles_total",
			Help: "Total number of scaling reconcile ticks completed",
		},
	)

	ScaleReplicaTarget = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_scale_replica_target",
			Help: "Desired replica count computed by the last reconcile tick",
		},
	)
)

func init() {
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(WorkerPoolSize)

	prometheus.MustRegister(CompileDuration)
	prometheus.MustRegister(ExecuteDuration)
	prometheus.MustRegister(WebhookDeliveryTotal)

	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ScaleReplicaTarget)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
