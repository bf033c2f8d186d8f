package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/agent"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/bus"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/coordinator"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/metrics"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/policy"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/queue"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/state"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/workflow"
)

// Core owns every component of the planning substrate and the wiring
// between them.
type Core struct {
	Config      *config.Config
	Clock       types.Clock
	Bus         *bus.EventBus
	State       *state.Manager
	Queues      *queue.Manager
	Policy      *policy.Policy
	Workflow    *workflow.Orchestrator
	Coordinator *coordinator.Coordinator
	Agents      *agent.Harness

	stateBridge *stateBridge

	logger   zerolog.Logger
	stopOnce sync.Once
}

// New constructs all components and wires them together. Nothing runs
// until Start.
func New(cfg *config.Config) (*Core, error) {
	clock := types.RealClock{}

	b := bus.New(cfg.Bus, clock)

	stateDeps := state.Deps{Clock: clock, DataDir: cfg.DataDir}
	if cfg.State.EncryptionPassphrase != "" {
		cipher, err := state.NewAESCipherFromPassphrase(cfg.State.EncryptionPassphrase)
		if err != nil {
			b.Shutdown()
			return nil, err
		}
		stateDeps.Cipher = cipher
	}

	st, err := state.New(cfg.State, stateDeps)
	if err != nil {
		b.Shutdown()
		return nil, err
	}

	qm, err := queue.New(cfg.Queues, queue.Deps{Clock: clock, DataDir: cfg.DataDir})
	if err != nil {
		st.Stop()
		b.Shutdown()
		return nil, err
	}

	po := policy.New(cfg.Policy, clock)
	wo := workflow.New(cfg.Workflow, clock)
	co := coordinator.New()

	c := &Core{
		Config:      cfg,
		Clock:       clock,
		Bus:         b,
		State:       st,
		Queues:      qm,
		Policy:      po,
		Workflow:    wo,
		Coordinator: co,
		Agents:      agent.NewHarness(b, qm),
		stateBridge: newStateBridge(b, st),
		logger:      log.WithComponent("core"),
	}

	// Cross-component wiring. Hooks are set before Start so no change is
	// missed.
	qm.SetPublisher(b)
	po.SetPublisher(b)
	wo.Wire(b, qm, po)
	co.Wire(b, qm, po)

	st.ChangeHook = func(ch state.ChangeEvent) {
		ev := types.NewEvent(types.TopicStateSubscription, map[string]any{
			"namespace": ch.Namespace,
			"key":       ch.Key,
			"kind":      string(ch.Kind),
			"version":   ch.Version,
		}).WithSource("state-manager")
		if _, perr := b.Publish(context.Background(), types.TopicStateSubscription, ev); perr != nil {
			c.logger.Debug().Err(perr).Msg("state change event dropped")
		}
	}
	st.ConflictHook = func(namespace, key string) {
		po.RecordViolation("state_conflict", map[string]any{
			"namespace": namespace,
			"key":       key,
		})
	}

	return c, nil
}

// Start brings the components up in dependency order: state and policy
// first, then queues, then the orchestrator and agent subscriptions.
func (c *Core) Start(ctx context.Context) error {
	c.State.Start()
	metrics.RegisterComponent("state", true, "")

	c.Policy.Start()
	metrics.RegisterComponent("policy", true, "")

	c.Queues.Start()
	metrics.RegisterComponent("queues", true, "")
	metrics.RegisterComponent("bus", true, "")
	c.registerReadinessGates()

	g, _ := errgroup.WithContext(ctx)
	g.Go(c.Workflow.Start)
	g.Go(c.Agents.Start)
	g.Go(c.stateBridge.Start)
	if err := g.Wait(); err != nil {
		c.Stop()
		return err
	}

	c.logger.Info().Msg("core started")
	return nil
}

// registerReadinessGates installs the live signals /ready is gated on:
// dead-letter backlog, queue saturation, and state degradation. These can
// all trip while the owning component stays up.
func (c *Core) registerReadinessGates() {
	metrics.RegisterGate("bus-dlq", func() (bool, string) {
		depth := c.Bus.Stats().DLQDepth
		if limit := c.Config.Bus.DLQMaxSize; limit > 0 && depth >= limit {
			return false, fmt.Sprintf("dead-letter store full: %d records", depth)
		}
		return true, ""
	})
	metrics.RegisterGate("queue-backlog", func() (bool, string) {
		for _, st := range c.Queues.Statuses() {
			if st.MaxSize > 0 && st.Depth >= st.MaxSize {
				return false, "queue saturated: " + st.Name
			}
		}
		return true, ""
	})
	metrics.RegisterGate("state-degraded", func() (bool, string) {
		if c.State.Degraded() {
			return false, "state manager degraded"
		}
		return true, ""
	})
}

// Stop shuts the components down in reverse order. Safe to call more than
// once.
func (c *Core) Stop() {
	c.stopOnce.Do(func() {
		metrics.UnregisterGate("bus-dlq")
		metrics.UnregisterGate("queue-backlog")
		metrics.UnregisterGate("state-degraded")
		c.stateBridge.Stop()
		c.Agents.Stop()
		c.Workflow.Stop()
		c.Queues.Stop()
		metrics.UpdateComponent("queues", false, "stopped")
		c.Policy.Stop()
		c.State.Stop()
		metrics.UpdateComponent("state", false, "stopped")
		c.Bus.Shutdown()
		metrics.UpdateComponent("bus", false, "stopped")
		c.logger.Info().Msg("core stopped")
	})
}
