package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Load reads a YAML config file and overlays it on the defaults. A missing
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that YAML decoding cannot.
func (c *Config) Validate() error {
	for name, q := range c.Queues {
		if q.MaxSize <= 0 {
			return fmt.Errorf("queue %s: max_size must be positive", name)
		}
		if q.Concurrency <= 0 {
			q.Concurrency = 1
			c.Queues[name] = q
		}
		if q.BatchSize <= 0 {
			q.BatchSize = 1
			c.Queues[name] = q
		}
		if !q.Priority.Valid() {
			return fmt.Errorf("queue %s: unknown priority %q", name, q.Priority)
		}
	}

	for name, ns := range c.State.Namespaces {
		switch ns.Consistency {
		case ConsistencyStrong, ConsistencyEventual, ConsistencyWeak, ConsistencySession:
		default:
			return fmt.Errorf("namespace %s: unknown consistency %q", name, ns.Consistency)
		}
		if ns.Consistency == ConsistencyStrong && ns.Replication {
			if ns.WriteQuorum <= 0 || ns.WriteQuorum > ns.ReplicationFactor {
				return fmt.Errorf("namespace %s: write_quorum %d out of range for replication_factor %d",
					name, ns.WriteQuorum, ns.ReplicationFactor)
			}
			if ns.ReadQuorum <= 0 || ns.ReadQuorum > ns.ReplicationFactor {
				return fmt.Errorf("namespace %s: read_quorum %d out of range for replication_factor %d",
					name, ns.ReadQuorum, ns.ReplicationFactor)
			}
		}
		switch ns.Conflict {
		case ConflictLastWriteWins, ConflictFirstWriteWins, ConflictMerge, ConflictAppend, ConflictManual:
		case "":
			ns.Conflict = ConflictLastWriteWins
			c.State.Namespaces[name] = ns
		default:
			return fmt.Errorf("namespace %s: unknown conflict mode %q", name, ns.Conflict)
		}
	}

	if c.Policy.Breaker.ErrorRateThreshold <= 0 || c.Policy.Breaker.ErrorRateThreshold >= 1 {
		return fmt.Errorf("breaker error_rate_threshold must be in (0,1)")
	}
	if c.Workflow.EMAAlpha <= 0 || c.Workflow.EMAAlpha > 1 {
		return fmt.Errorf("workflow ema_alpha must be in (0,1]")
	}
	return nil
}

// QueueFor returns the config for a named queue.
func (c *Config) QueueFor(name string) (QueueConfig, bool) {
	q, ok := c.Queues[name]
	return q, ok
}

// NamespaceFor returns the config for a named namespace.
func (c *Config) NamespaceFor(name string) (NamespaceConfig, bool) {
	ns, ok := c.State.Namespaces[name]
	return ns, ok
}

// TaskQueueForTopic maps a saga task topic to the queue that schedules it.
func TaskQueueForTopic(topic string) (string, bool) {
	q, ok := topicQueues[topic]
	return q, ok
}

var topicQueues = map[string]string{
	types.TopicIntent:        types.QueueSearchRequests,
	types.TopicCandidates:    types.QueueCandidateGeneration,
	types.TopicAvailability:  types.QueueValidationTasks,
	types.TopicConstraints:   types.QueueValidationTasks,
	types.TopicSelectionProp: types.QueueSelectionTasks,
	types.TopicSelectionConf: types.QueueSelectionTasks,
	types.TopicItinerary:     types.QueueEnrichmentTasks,
	types.TopicOutput:        types.QueueOutputGeneration,
}
