package coordinator

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/policy"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/queue"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Admitter is the slice of the policy engine the coordinator needs.
type Admitter interface {
	Admit(sagaID, clientIP string, queueSize, activeSagas int) policy.Decision
	Release(sagaID string)
	ActiveSagas() int
}

// TaskQueues is the slice of the queue manager the coordinator needs.
type TaskQueues interface {
	Enqueue(ctx context.Context, queueName, msgType string, payload map[string]any, opts queue.EnqueueOptions) (string, error)
	Depth(queueName string) (int, error)
}

// Publisher is the slice of the event bus the coordinator needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev types.Event) (string, error)
}

// PlanRequest is an external travel-plan submission.
type PlanRequest struct {
	ClientIP  string           `json:"clientIp"`
	Payload   map[string]any   `json:"payload"`
	Revisions []map[string]any `json:"revisions,omitempty"`
}

// PlanTicket is the coordinator's answer: the saga handle on admission, the
// denial reason otherwise.
type PlanTicket struct {
	SagaID        string `json:"sagaId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
}

// Coordinator is the boundary adapter: it turns an external plan request
// into an admission check, a task on the intake queue, and an INTENT event
// that starts the saga.
type Coordinator struct {
	logger zerolog.Logger

	bus       Publisher
	queues    TaskQueues
	admission Admitter
}

// New creates the coordinator. Wire must be called before SubmitPlan.
func New() *Coordinator {
	return &Coordinator{logger: log.WithComponent("coordinator")}
}

// Wire hands the coordinator its collaborators.
func (c *Coordinator) Wire(b Publisher, q TaskQueues, a Admitter) {
	c.bus = b
	c.queues = q
	c.admission = a
}

// SubmitPlan admits, enqueues, and announces a plan request. A denied
// request returns a ticket carrying the reason plus a typed error.
func (c *Coordinator) SubmitPlan(ctx context.Context, req PlanRequest) (PlanTicket, error) {
	if req.ClientIP == "" {
		return PlanTicket{}, types.E(types.KindSchemaError, "coordinator.submit", "plan request has no client ip")
	}
	if req.Payload == nil {
		return PlanTicket{}, types.E(types.KindSchemaError, "coordinator.submit", "plan request has no payload")
	}

	sagaID := "saga_" + uuid.NewString()
	correlationID := uuid.NewString()

	depth, err := c.queues.Depth(types.QueueSearchRequests)
	if err != nil {
		return PlanTicket{}, types.Wrap(types.KindInternal, "coordinator.submit", "intake queue unavailable", err)
	}

	decision := c.admission.Admit(sagaID, req.ClientIP, depth, c.admission.ActiveSagas())
	if !decision.Approved {
		c.logger.Info().Str("client_ip", req.ClientIP).Str("reason", decision.Reason).
			Msg("plan request denied")
		ticket := PlanTicket{Accepted: false, Reason: decision.Reason}
		return ticket, types.E(denialKind(decision.Reason), "coordinator.submit", decision.Reason)
	}

	data := make(map[string]any, len(req.Payload)+2)
	for k, v := range req.Payload {
		data[k] = v
	}
	data["clientIp"] = req.ClientIP
	if len(req.Revisions) > 0 {
		revs := make([]any, len(req.Revisions))
		for i, r := range req.Revisions {
			revs[i] = r
		}
		data["revisions"] = revs
	}

	if _, err := c.queues.Enqueue(ctx, types.QueueSearchRequests, "plan-request", data, queue.EnqueueOptions{
		SagaID:        sagaID,
		CorrelationID: correlationID,
		Metadata:      map[string]string{"clientIp": req.ClientIP},
	}); err != nil {
		c.admission.Release(sagaID)
		return PlanTicket{}, types.Wrap(types.KindOf(err), "coordinator.submit", "failed to enqueue plan request", err)
	}

	ev := types.NewEvent(types.TopicIntent, data).
		WithSaga(sagaID, correlationID).WithSource("coordinator")
	if _, err := c.bus.Publish(ctx, types.TopicIntent, ev); err != nil {
		c.admission.Release(sagaID)
		return PlanTicket{}, types.Wrap(types.KindOf(err), "coordinator.submit", "failed to announce plan request", err)
	}

	c.logger.Info().Str("saga_id", sagaID).Str("client_ip", req.ClientIP).
		Msg("plan request admitted")
	return PlanTicket{SagaID: sagaID, CorrelationID: correlationID, Accepted: true}, nil
}

func denialKind(reason string) types.ErrorKind {
	switch reason {
	case policy.ReasonRateLimit:
		return types.KindRateLimited
	case policy.ReasonQueueFull:
		return types.KindQueueFull
	default:
		return types.KindResourceExhausted
	}
}
