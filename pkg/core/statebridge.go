package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/bus"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/state"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// stateBridge serves state operations over the event bus so agents can read
// and write namespaces without a Manager handle. Requests arrive on the
// state-<op>-request topics; replies carry the request's event id as
// requestId and go out on the matching -response topic, failures on -error.
type stateBridge struct {
	bus    *bus.EventBus
	state  *state.Manager
	logger zerolog.Logger
	subIDs []string
}

func newStateBridge(b *bus.EventBus, st *state.Manager) *stateBridge {
	return &stateBridge{
		bus:    b,
		state:  st,
		logger: log.WithComponent("state-bridge"),
	}
}

func (sb *stateBridge) Start() error {
	ops := []struct {
		name string
		fn   func(context.Context, types.Event) (map[string]any, error)
	}{
		{"get", sb.get},
		{"set", sb.set},
		{"delete", sb.del},
	}
	for _, op := range ops {
		op := op
		id, err := sb.bus.Subscribe(types.StateTopic(op.name, "request"),
			func(ctx context.Context, ev types.Event) error {
				sb.serve(ctx, op.name, op.fn, ev)
				return nil
			}, bus.Options{Retry: false})
		if err != nil {
			sb.Stop()
			return err
		}
		sb.subIDs = append(sb.subIDs, id)
	}
	return nil
}

func (sb *stateBridge) Stop() {
	for _, id := range sb.subIDs {
		sb.bus.Unsubscribe(id)
	}
	sb.subIDs = nil
}

// serve runs one request and publishes the reply. Operation failures are
// answered on the -error topic rather than surfaced to the bus retry path;
// retrying a bad request cannot fix it.
func (sb *stateBridge) serve(ctx context.Context, op string,
	fn func(context.Context, types.Event) (map[string]any, error), ev types.Event) {
	data, err := fn(ctx, ev)
	topic := types.StateTopic(op, "response")
	if err != nil {
		topic = types.StateTopic(op, "error")
		data = map[string]any{
			"error": err.Error(),
			"kind":  string(types.KindOf(err)),
		}
	}
	data["requestId"] = ev.ID

	out := types.NewEvent(topic, data).
		WithSaga(ev.SagaID, ev.CorrelationID).
		WithSource("state-bridge")
	if _, perr := sb.bus.Publish(context.Background(), topic, out); perr != nil {
		sb.logger.Debug().Err(perr).Str("topic", topic).Msg("state reply dropped")
	}
}

func (sb *stateBridge) get(ctx context.Context, ev types.Event) (map[string]any, error) {
	ns, key, err := requestTarget(ev, "get")
	if err != nil {
		return nil, err
	}
	res, err := sb.state.Get(ctx, ns, key, state.GetOptions{})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return map[string]any{"namespace": ns, "key": key, "found": false}, nil
	}
	return map[string]any{
		"namespace": ns,
		"key":       key,
		"found":     true,
		"value":     res.Value,
		"version":   res.Metadata.Version,
	}, nil
}

func (sb *stateBridge) set(ctx context.Context, ev types.Event) (map[string]any, error) {
	ns, key, err := requestTarget(ev, "set")
	if err != nil {
		return nil, err
	}
	value, ok := ev.Data["value"]
	if !ok {
		return nil, types.E(types.KindSchemaError, "state.bridge", "set requires a value")
	}
	opts := state.SetOptions{}
	if v, sok := ev.Data["expectedVersion"].(string); sok {
		opts.ExpectedVersion = v
	}
	res, err := sb.state.Set(ctx, ns, key, value, opts)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"namespace": ns,
		"key":       key,
		"version":   res.Version,
	}, nil
}

func (sb *stateBridge) del(ctx context.Context, ev types.Event) (map[string]any, error) {
	ns, key, err := requestTarget(ev, "delete")
	if err != nil {
		return nil, err
	}
	deleted, err := sb.state.Delete(ctx, ns, key, "")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"namespace": ns,
		"key":       key,
		"deleted":   deleted,
	}, nil
}

func requestTarget(ev types.Event, op string) (string, string, error) {
	ns, _ := ev.Data["namespace"].(string)
	key, _ := ev.Data["key"].(string)
	if ns == "" || key == "" {
		return "", "", types.E(types.KindSchemaError, "state.bridge",
			op+" requires namespace and key")
	}
	return ns, key, nil
}
