package config

import (
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Config is the root configuration for the orchestration core.
type Config struct {
	Log      LogConfig              `yaml:"log"`
	Metrics  MetricsConfig          `yaml:"metrics"`
	Bus      BusConfig              `yaml:"bus"`
	State    StateConfig            `yaml:"state"`
	Queues   map[string]QueueConfig `yaml:"queues"`
	Policy   PolicyConfig           `yaml:"policy"`
	Workflow WorkflowConfig         `yaml:"workflow"`
	DataDir  string                 `yaml:"data_dir"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	SampleInterval Duration `yaml:"sample_interval"`
}

// BusConfig configures the event bus.
type BusConfig struct {
	MaxRetries         int      `yaml:"max_retries"`
	RetryBaseDelay     Duration `yaml:"retry_base_delay"`
	HistorySize        int      `yaml:"history_size"`
	LaneHighWater      int      `yaml:"lane_high_water"`
	DLQMaxSize         int      `yaml:"dlq_max_size"`
	RequireCorrelation bool     `yaml:"require_correlation"`
}

// StateConfig configures the state manager and its namespaces.
type StateConfig struct {
	SweepInterval Duration                   `yaml:"sweep_interval"`
	LockTimeout   Duration                   `yaml:"lock_timeout"`
	TxTimeout     Duration                   `yaml:"tx_timeout"`
	MaxLocks      int                        `yaml:"max_locks"`
	MaxTx         int                        `yaml:"max_transactions"`
	// EncryptionPassphrase, when set, enables AES-256-GCM for namespaces
	// with encryption turned on. Empty leaves payloads unencrypted.
	EncryptionPassphrase string                     `yaml:"encryption_passphrase"`
	Namespaces           map[string]NamespaceConfig `yaml:"namespaces"`
}

// Consistency classes for namespaces.
type Consistency string

const (
	ConsistencyStrong   Consistency = "strong"
	ConsistencyEventual Consistency = "eventual"
	ConsistencyWeak     Consistency = "weak"
	ConsistencySession  Consistency = "session"
)

// ConflictMode selects how version conflicts are resolved on set.
type ConflictMode string

const (
	ConflictLastWriteWins  ConflictMode = "last-write-wins"
	ConflictFirstWriteWins ConflictMode = "first-write-wins"
	ConflictMerge          ConflictMode = "merge"
	ConflictAppend         ConflictMode = "append"
	ConflictManual         ConflictMode = "manual"
)

// NamespaceConfig configures one state-manager namespace.
type NamespaceConfig struct {
	Consistency          Consistency  `yaml:"consistency"`
	TTL                  Duration     `yaml:"ttl"`
	MaxSize              int          `yaml:"max_size"`
	CompressionThreshold int          `yaml:"compression_threshold"`
	Encryption           bool         `yaml:"encryption"`
	Replication          bool         `yaml:"replication"`
	ReplicationFactor    int          `yaml:"replication_factor"`
	WriteQuorum          int          `yaml:"write_quorum"`
	ReadQuorum           int          `yaml:"read_quorum"`
	Persistence          bool         `yaml:"persistence"`
	Indexing             bool         `yaml:"indexing"`
	Versioning           bool         `yaml:"versioning"`
	Conflict             ConflictMode `yaml:"conflict"`
}

// RateLimit is a dual-window token bucket configuration.
type RateLimit struct {
	PerSecond int `yaml:"per_second"`
	PerMinute int `yaml:"per_minute"`
}

// QueueConfig configures one named queue.
type QueueConfig struct {
	Priority          types.Priority `yaml:"priority"`
	MaxSize           int            `yaml:"max_size"`
	ProcessingTimeout Duration       `yaml:"processing_timeout"`
	RetryAttempts     int            `yaml:"retry_attempts"`
	RetryDelay        Duration       `yaml:"retry_delay"`
	BatchSize         int            `yaml:"batch_size"`
	Concurrency       int            `yaml:"concurrency"`
	RateLimit         RateLimit      `yaml:"rate_limit"`
	Persistence       bool           `yaml:"persistence"`
	DeadLetterQueue   string         `yaml:"dead_letter_queue"`
}

// PolicyConfig configures admission control, compliance, and breakers.
type PolicyConfig struct {
	Admission  AdmissionConfig  `yaml:"admission"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Rules      RulesConfig      `yaml:"rules"`
}

// AdmissionConfig bounds ingress traffic.
type AdmissionConfig struct {
	MaxRequests            int      `yaml:"max_requests"`
	Window                 Duration `yaml:"window"`
	MaxQueueSize           int      `yaml:"max_queue_size"`
	MaxConcurrentSagas     int      `yaml:"max_concurrent_sagas"`
	MaxPerClientConcurrent int      `yaml:"max_per_client_concurrent"`
}

// ComplianceConfig drives payload validation.
type ComplianceConfig struct {
	ForbiddenFields []string            `yaml:"forbidden_fields"`
	ConsentFlags    []string            `yaml:"consent_flags"`
	RetentionLimits map[string]Duration `yaml:"retention_limits"`
}

// BreakerConfig holds the circuit-breaker thresholds. The defaults mirror
// the historical hard-coded values; they are configurable here.
type BreakerConfig struct {
	ErrorRateThreshold float64  `yaml:"error_rate_threshold"`
	SlowCallThreshold  Duration `yaml:"slow_call_threshold"`
	Cooldown           Duration `yaml:"cooldown"`
	HalfOpenSuccesses  int      `yaml:"half_open_successes"`
	ProbeTimeout       Duration `yaml:"probe_timeout"`
	MinCalls           int      `yaml:"min_calls"`
}

// RulesConfig holds business-rule thresholds.
type RulesConfig struct {
	PriceDriftThreshold float64 `yaml:"price_drift_threshold"`
	MinConfidence       float64 `yaml:"min_confidence"`
	MaxRevisions        int     `yaml:"max_revisions"`
}

// WorkflowConfig configures the saga engine.
type WorkflowConfig struct {
	MaxRetries    int                 `yaml:"max_retries"`
	StateTimeouts map[string]Duration `yaml:"state_timeouts"`
	EMAAlpha      float64             `yaml:"ema_alpha"`
}

// Default returns the built-in configuration: the full queue and namespace
// catalogs plus conservative core tunables.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Metrics: MetricsConfig{
			ListenAddr:     ":9090",
			SampleInterval: Duration(15 * time.Second),
		},
		Bus: BusConfig{
			MaxRetries:         3,
			RetryBaseDelay:     Duration(100 * time.Millisecond),
			HistorySize:        1000,
			LaneHighWater:      256,
			DLQMaxSize:         10000,
			RequireCorrelation: true,
		},
		State: StateConfig{
			SweepInterval: Duration(5 * time.Second),
			LockTimeout:   Duration(10 * time.Second),
			TxTimeout:     Duration(30 * time.Second),
			MaxLocks:      10000,
			MaxTx:         1000,
			Namespaces:    defaultNamespaces(),
		},
		Queues: defaultQueues(),
		Policy: PolicyConfig{
			Admission: AdmissionConfig{
				MaxRequests:            100,
				Window:                 Duration(time.Minute),
				MaxQueueSize:           1000,
				MaxConcurrentSagas:     100,
				MaxPerClientConcurrent: 10,
			},
			Compliance: ComplianceConfig{
				ForbiddenFields: []string{"ssn", "passportNumber", "creditCardNumber", "cvv"},
				ConsentFlags:    []string{"gdprConsent", "marketingConsent"},
				RetentionLimits: map[string]Duration{
					"search":  Duration(24 * time.Hour),
					"booking": Duration(90 * 24 * time.Hour),
				},
			},
			Breaker: BreakerConfig{
				ErrorRateThreshold: 0.03,
				SlowCallThreshold:  Duration(5 * time.Second),
				Cooldown:           Duration(120 * time.Second),
				HalfOpenSuccesses:  3,
				ProbeTimeout:       Duration(15 * time.Second),
				MinCalls:           10,
			},
			Rules: RulesConfig{
				PriceDriftThreshold: 0.15,
				MinConfidence:       0.5,
				MaxRevisions:        5,
			},
		},
		Workflow: WorkflowConfig{
			MaxRetries:    3,
			StateTimeouts: defaultStateTimeouts(),
			EMAAlpha:      0.2,
		},
		DataDir: "/var/lib/holon",
	}
}

func defaultQueues() map[string]QueueConfig {
	return map[string]QueueConfig{
		types.QueueSearchRequests: {
			Priority: types.PriorityHigh, MaxSize: 1000,
			ProcessingTimeout: Duration(30 * time.Second),
			RetryAttempts:     3, RetryDelay: Duration(5 * time.Second),
			BatchSize: 10, Concurrency: 5,
			RateLimit:       RateLimit{PerSecond: 50, PerMinute: 1000},
			DeadLetterQueue: types.QueueSearchRequests + "-dlq",
		},
		types.QueueCandidateGeneration: {
			Priority: types.PriorityMedium, MaxSize: 500,
			ProcessingTimeout: Duration(120 * time.Second),
			RetryAttempts:     2, RetryDelay: Duration(10 * time.Second),
			BatchSize: 5, Concurrency: 3,
			RateLimit:       RateLimit{PerSecond: 20, PerMinute: 400},
			DeadLetterQueue: types.QueueCandidateGeneration + "-dlq",
		},
		types.QueueValidationTasks: {
			Priority: types.PriorityHigh, MaxSize: 1000,
			ProcessingTimeout: Duration(60 * time.Second),
			RetryAttempts:     2, RetryDelay: Duration(5 * time.Second),
			BatchSize: 10, Concurrency: 5,
			RateLimit:       RateLimit{PerSecond: 50, PerMinute: 1500},
			DeadLetterQueue: types.QueueValidationTasks + "-dlq",
		},
		types.QueueRankingTasks: {
			Priority: types.PriorityMedium, MaxSize: 500,
			ProcessingTimeout: Duration(90 * time.Second),
			RetryAttempts:     2, RetryDelay: Duration(10 * time.Second),
			BatchSize: 5, Concurrency: 3,
			RateLimit:       RateLimit{PerSecond: 20, PerMinute: 600},
			DeadLetterQueue: types.QueueRankingTasks + "-dlq",
		},
		types.QueueSelectionTasks: {
			Priority: types.PriorityHigh, MaxSize: 300,
			ProcessingTimeout: Duration(45 * time.Second),
			RetryAttempts:     2, RetryDelay: Duration(5 * time.Second),
			BatchSize: 5, Concurrency: 3,
			RateLimit:       RateLimit{PerSecond: 20, PerMinute: 600},
			DeadLetterQueue: types.QueueSelectionTasks + "-dlq",
		},
		types.QueueEnrichmentTasks: {
			Priority: types.PriorityLow, MaxSize: 800,
			ProcessingTimeout: Duration(180 * time.Second),
			RetryAttempts:     3, RetryDelay: Duration(15 * time.Second),
			BatchSize: 8, Concurrency: 4,
			RateLimit:       RateLimit{PerSecond: 10, PerMinute: 300},
			DeadLetterQueue: types.QueueEnrichmentTasks + "-dlq",
		},
		types.QueueOutputGeneration: {
			Priority: types.PriorityHigh, MaxSize: 300,
			ProcessingTimeout: Duration(60 * time.Second),
			RetryAttempts:     2, RetryDelay: Duration(5 * time.Second),
			BatchSize: 5, Concurrency: 3,
			RateLimit:       RateLimit{PerSecond: 20, PerMinute: 600},
			DeadLetterQueue: types.QueueOutputGeneration + "-dlq",
		},
		types.QueueBookingRequests: {
			Priority: types.PriorityCritical, MaxSize: 200,
			ProcessingTimeout: Duration(30 * time.Second),
			RetryAttempts:     5, RetryDelay: Duration(3 * time.Second),
			BatchSize: 1, Concurrency: 2,
			RateLimit:       RateLimit{PerSecond: 10, PerMinute: 200},
			Persistence:     true,
			DeadLetterQueue: types.QueueBookingRequests + "-dlq",
		},
		types.QueueNotifications: {
			Priority: types.PriorityLow, MaxSize: 2000,
			ProcessingTimeout: Duration(15 * time.Second),
			RetryAttempts:     3, RetryDelay: Duration(30 * time.Second),
			BatchSize: 20, Concurrency: 10,
			RateLimit:       RateLimit{PerSecond: 100, PerMinute: 3000},
			DeadLetterQueue: types.QueueNotifications + "-dlq",
		},
		types.QueueTelemetryEvents: {
			Priority: types.PriorityLow, MaxSize: 5000,
			ProcessingTimeout: Duration(10 * time.Second),
			RetryAttempts:     0,
			BatchSize:         50, Concurrency: 2,
			RateLimit: RateLimit{PerSecond: 200, PerMinute: 10000},
		},
	}
}

func defaultNamespaces() map[string]NamespaceConfig {
	return map[string]NamespaceConfig{
		types.NamespaceUserSessions: {
			Consistency: ConsistencySession,
			TTL:         Duration(30 * time.Minute),
			MaxSize:     10000, CompressionThreshold: 1024,
			Indexing: true, Conflict: ConflictLastWriteWins,
		},
		types.NamespaceSearchCache: {
			Consistency: ConsistencyEventual,
			TTL:         Duration(time.Hour),
			MaxSize:     50000, CompressionThreshold: 1024,
			Conflict: ConflictLastWriteWins,
		},
		types.NamespaceBookingData: {
			Consistency: ConsistencyStrong,
			MaxSize:     20000, CompressionThreshold: 1024,
			Encryption: true, Replication: true,
			ReplicationFactor: 3, WriteQuorum: 2, ReadQuorum: 2,
			Persistence: true, Indexing: true, Versioning: true,
			Conflict: ConflictFirstWriteWins,
		},
		types.NamespaceCandidateResults: {
			Consistency: ConsistencyEventual,
			TTL:         Duration(2 * time.Hour),
			MaxSize:     20000, CompressionThreshold: 1024,
			Indexing: true, Conflict: ConflictLastWriteWins,
		},
		types.NamespaceUserPreferences: {
			Consistency: ConsistencyEventual,
			MaxSize:     10000, CompressionThreshold: 1024,
			Persistence: true, Indexing: true, Versioning: true,
			Conflict: ConflictMerge,
		},
		types.NamespaceSystemConfig: {
			Consistency: ConsistencyStrong,
			MaxSize:     1000, CompressionThreshold: 1024,
			Replication:       true,
			ReplicationFactor: 3, WriteQuorum: 2, ReadQuorum: 2,
			Persistence: true, Versioning: true,
			Conflict: ConflictManual,
		},
		types.NamespaceAnalyticsData: {
			Consistency: ConsistencyWeak,
			TTL:         Duration(24 * time.Hour),
			MaxSize:     100000, CompressionThreshold: 1024,
			Conflict: ConflictAppend,
		},
		types.NamespaceTemporaryData: {
			Consistency: ConsistencyWeak,
			TTL:         Duration(5 * time.Minute),
			MaxSize:     5000, CompressionThreshold: 1024,
			Conflict: ConflictLastWriteWins,
		},
	}
}

func defaultStateTimeouts() map[string]Duration {
	return map[string]Duration{
		"ADMIT":        Duration(10 * time.Second),
		"ANALYZE":      Duration(30 * time.Second),
		"GEN":          Duration(120 * time.Second),
		"VERIFY":       Duration(60 * time.Second),
		"RANK":         Duration(90 * time.Second),
		"SELECT":       Duration(45 * time.Second),
		"ENRICH":       Duration(180 * time.Second),
		"BUILD":        Duration(60 * time.Second),
		"FINAL_VERIFY": Duration(60 * time.Second),
		"PACKAGE":      Duration(60 * time.Second),
	}
}
