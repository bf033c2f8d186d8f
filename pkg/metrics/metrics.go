package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event bus metrics
	EventsPublished = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_events_published_total",
			Help: "Total number of events published to the bus",
		},
	)

	EventsDelivered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_events_delivered_total",
			Help: "Total number of event deliveries to subscribers",
		},
	)

	EventDeliveryFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_event_delivery_failures_total",
			Help: "Total number of failed event deliveries",
		},
	)

	EventDLQDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_event_dlq_depth",
			Help: "Number of events parked in the bus dead letter queue",
		},
	)

	BusSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_bus_subscribers",
			Help: "Number of active bus subscriptions",
		},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_queue_depth",
			Help: "Number of messages waiting per queue",
		},
		[]string{"queue"},
	)

	QueueProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_queue_processing",
			Help: "Number of messages in flight per queue",
		},
		[]string{"queue"},
	)

	QueueProcessed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_queue_processed_total",
			Help: "Total number of successfully processed messages per queue",
		},
		[]string{"queue"},
	)

	QueueDeadLettered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_queue_dead_lettered_total",
			Help: "Total number of messages moved to dead letter queues",
		},
		[]string{"queue"},
	)

	QueueAvgProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_queue_avg_processing_seconds",
			Help: "Exponential moving average of message processing time per queue",
		},
		[]string{"queue"},
	)

	// State manager metrics
	StateKeys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_state_keys",
			Help: "Number of keys per namespace",
		},
		[]string{"namespace"},
	)

	StateHits = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_state_hits_total",
			Help: "Total number of read hits per namespace",
		},
		[]string{"namespace"},
	)

	StateMisses = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_state_misses_total",
			Help: "Total number of read misses per namespace",
		},
		[]string{"namespace"},
	)

	StateEvictions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_state_evictions_total",
			Help: "Total number of LRU evictions per namespace",
		},
		[]string{"namespace"},
	)

	// Workflow metrics
	SagasActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_sagas_active",
			Help: "Number of currently active sagas",
		},
	)

	SagasCompleted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_sagas_completed_total",
			Help: "Total number of completed sagas",
		},
	)

	SagasFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_sagas_failed_total",
			Help: "Total number of failed sagas",
		},
	)

	SagaAvgDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_saga_avg_duration_seconds",
			Help: "Exponential moving average of saga duration",
		},
	)

	// Policy metrics
	PolicyViolations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_policy_violations",
			Help: "Number of violations held in the policy ledger",
		},
	)

	BreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holon_breaker_open",
			Help: "Whether the circuit breaker for a service is open (1 = open)",
		},
		[]string{"service"},
	)

	ActiveSagaAdmissions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holon_admitted_sagas",
			Help: "Number of sagas currently holding an admission slot",
		},
	)

	// Plan submission metrics
	PlanRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holon_plan_requests_total",
			Help: "Total number of plan submissions by outcome",
		},
		[]string{"outcome"},
	)

	PlanRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "holon_plan_request_duration_seconds",
			Help:    "Plan submission handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsDelivered)
	prometheus.MustRegister(EventDeliveryFailures)
	prometheus.MustRegister(EventDLQDepth)
	prometheus.MustRegister(BusSubscribers)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueProcessing)
	prometheus.MustRegister(QueueProcessed)
	prometheus.MustRegister(QueueDeadLettered)
	prometheus.MustRegister(QueueAvgProcessing)
	prometheus.MustRegister(StateKeys)
	prometheus.MustRegister(StateHits)
	prometheus.MustRegister(StateMisses)
	prometheus.MustRegister(StateEvictions)
	prometheus.MustRegister(SagasActive)
	prometheus.MustRegister(SagasCompleted)
	prometheus.MustRegister(SagasFailed)
	prometheus.MustRegister(SagaAvgDuration)
	prometheus.MustRegister(PolicyViolations)
	prometheus.MustRegister(BreakerOpen)
	prometheus.MustRegister(ActiveSagaAdmissions)
	prometheus.MustRegister(PlanRequestsTotal)
	prometheus.MustRegister(PlanRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in the given histogram vec
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
