package metrics

import (
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/bus"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/policy"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/queue"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/state"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/workflow"
)

// Sources are the components the collector samples. Nil entries are
// skipped.
type Sources struct {
	Bus      *bus.EventBus
	Queues   *queue.Manager
	State    *state.Manager
	Policy   *policy.Policy
	Workflow *workflow.Orchestrator
}

// Collector periodically copies component counters into the Prometheus
// gauges.
type Collector struct {
	sources Sources
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(sources Sources) *Collector {
	return &Collector{
		sources: sources,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectBusMetrics()
	c.collectQueueMetrics()
	c.collectStateMetrics()
	c.collectPolicyMetrics()
	c.collectWorkflowMetrics()
}

func (c *Collector) collectBusMetrics() {
	if c.sources.Bus == nil {
		return
	}
	s := c.sources.Bus.Stats()
	EventsPublished.Set(float64(s.Published))
	EventsDelivered.Set(float64(s.Delivered))
	EventDeliveryFailures.Set(float64(s.Failures))
	EventDLQDepth.Set(float64(s.DLQDepth))
	BusSubscribers.Set(float64(s.Subscribers))
}

func (c *Collector) collectQueueMetrics() {
	if c.sources.Queues == nil {
		return
	}
	for _, s := range c.sources.Queues.Statuses() {
		QueueDepth.WithLabelValues(s.Name).Set(float64(s.Depth))
		QueueProcessing.WithLabelValues(s.Name).Set(float64(s.Processing))
		QueueProcessed.WithLabelValues(s.Name).Set(float64(s.Processed))
		QueueDeadLettered.WithLabelValues(s.Name).Set(float64(s.DeadLettered))
		QueueAvgProcessing.WithLabelValues(s.Name).Set(s.AvgProcessing.Seconds())
	}
}

func (c *Collector) collectStateMetrics() {
	if c.sources.State == nil {
		return
	}
	for _, s := range c.sources.State.NamespaceStats() {
		StateKeys.WithLabelValues(s.Name).Set(float64(s.Keys))
		StateHits.WithLabelValues(s.Name).Set(float64(s.Hits))
		StateMisses.WithLabelValues(s.Name).Set(float64(s.Misses))
		StateEvictions.WithLabelValues(s.Name).Set(float64(s.Evictions))
	}
}

func (c *Collector) collectPolicyMetrics() {
	if c.sources.Policy == nil {
		return
	}
	PolicyViolations.Set(float64(len(c.sources.Policy.Violations())))
	ActiveSagaAdmissions.Set(float64(c.sources.Policy.ActiveSagas()))
	for service, st := range c.sources.Policy.BreakerStates() {
		open := 0.0
		if st == "open" {
			open = 1.0
		}
		BreakerOpen.WithLabelValues(service).Set(open)
	}
}

func (c *Collector) collectWorkflowMetrics() {
	if c.sources.Workflow == nil {
		return
	}
	s := c.sources.Workflow.Stats()
	SagasActive.Set(float64(s.Active))
	SagasCompleted.Set(float64(s.Completed))
	SagasFailed.Set(float64(s.Failed))
	SagaAvgDuration.Set(s.AvgDuration.Seconds())
}
