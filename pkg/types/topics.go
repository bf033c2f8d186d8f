package types

// Reserved domain topics. These carry the travel-planning saga traffic
// between the orchestrator and the agents.
const (
	TopicIntent        = "INTENT"
	TopicCandidates    = "CANDIDATES"
	TopicAvailability  = "AVAILABILITY"
	TopicConstraints   = "CONSTRAINTS"
	TopicSelectionProp = "SELECTION_PROP"
	TopicSelectionConf = "SELECTION_CONF"
	TopicItinerary     = "ITINERARY"
	TopicRevision      = "REVISION"
	TopicFallback      = "FALLBACK"
	TopicOutput        = "OUTPUT"
)

// Infrastructure topics emitted by the core itself.
const (
	TopicWorkflowComplete      = "workflow-complete"
	TopicWorkflowError         = "workflow-error"
	TopicWorkflowCancelled     = "workflow-cancelled"
	TopicMessageEnqueued       = "message-enqueued"
	TopicMessageProcessed      = "message-processed"
	TopicMessageRetryScheduled = "message-retry-scheduled"
	TopicMessageDeadLettered   = "message-dead-lettered"
	TopicQueuePaused           = "queue-paused"
	TopicQueueResumed          = "queue-resumed"
	TopicQueueCleared          = "queue-cleared"
	TopicQueueHealthWarning    = "queue-health-warning"
	TopicDLQMessage            = "dlq-message"
	TopicAdmissionApproved     = "admission-approved"
	TopicAdmissionDenied       = "admission-denied"
	TopicBreakerOpened         = "circuit-breaker-opened"
	TopicBreakerClosed         = "circuit-breaker-closed"
	TopicPolicyViolation       = "policy-violation"
	TopicAuditEvent            = "audit-event"
	TopicStateSubscription     = "state-subscription-event"
	TopicClusterNodeJoined     = "cluster-node-joined"
	TopicClusterNodeLeft       = "cluster-node-left"
)

// StateTopic builds the request/response/error topic triple for a state
// operation, e.g. StateTopic("get", "response") -> "state-get-response".
func StateTopic(op, suffix string) string {
	return "state-" + op + "-" + suffix
}

// Built-in queue names.
const (
	QueueSearchRequests      = "search-requests"
	QueueCandidateGeneration = "candidate-generation"
	QueueValidationTasks     = "validation-tasks"
	QueueRankingTasks        = "ranking-tasks"
	QueueSelectionTasks      = "selection-tasks"
	QueueEnrichmentTasks     = "enrichment-tasks"
	QueueOutputGeneration    = "output-generation"
	QueueBookingRequests     = "booking-requests"
	QueueNotifications       = "notifications"
	QueueTelemetryEvents     = "telemetry-events"
)

// Built-in namespace names.
const (
	NamespaceUserSessions     = "user-sessions"
	NamespaceSearchCache      = "search-cache"
	NamespaceBookingData      = "booking-data"
	NamespaceCandidateResults = "candidate-results"
	NamespaceUserPreferences  = "user-preferences"
	NamespaceSystemConfig     = "system-config"
	NamespaceAnalyticsData    = "analytics-data"
	NamespaceTemporaryData    = "temporary-data"
)
