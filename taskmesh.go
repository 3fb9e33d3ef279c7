// Package taskmesh provides a high-level façade over the coordination Engine
// and its supporting services (scheduler, message bus & logging) enabling
// rapid construction of multi-agent task systems. Most applications interact
// with this package by:
//  1. Creating a TaskMesh via New() (optionally overriding the defaults)
//  2. Registering one or more agents with their capabilities and executors
//  3. Submitting tasks or plans and waiting for their results
//
// The façade delegates coordination to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply LLM-backed executors and
// a structured logger.
package taskmesh

import (
	"context"
	"time"

	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/bus"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
)

// Options configures the TaskMesh instance.
type Options struct {
	// EngineConfig tunes the coordination loop (tick cadence, wait polling).
	EngineConfig engine.Config

	// QueueSize sets the bus inbound channel buffer. Larger buffers absorb
	// bursts but increase memory usage. 0 keeps the bus default.
	QueueSize int

	// HistorySize caps the number of delivered messages retained for
	// History queries. 0 keeps the bus default.
	HistorySize int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating the engine, scheduler and bus.
type TaskMesh struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new TaskMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	b := bus.New(func(o *bus.Options) {
		if opts.QueueSize > 0 {
			o.QueueSize = opts.QueueSize
		}

		if opts.HistorySize > 0 {
			o.HistorySize = opts.HistorySize
		}

		o.Logger = opts.Logger
	})

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Bus = b
		o.Logger = opts.Logger
	})

	return &TaskMesh{opts: opts, engine: e}
}

// RegisterAgent adds an agent to the underlying engine.
func (m *TaskMesh) RegisterAgent(a *agent.Agent) error { return m.engine.Register(a) }

// UnregisterAgent removes an agent and stops it if it is running.
func (m *TaskMesh) UnregisterAgent(name string) error { return m.engine.Unregister(name) }

// Start brings the mesh up. The context is the parent for all agent executions.
func (m *TaskMesh) Start(ctx context.Context) error { return m.engine.Start(ctx) }

// Stop shuts the mesh down, draining in-flight executions.
func (m *TaskMesh) Stop() error { return m.engine.Stop() }

// Submit queues a task for assignment and returns its ID.
func (m *TaskMesh) Submit(task *core.Task) string { return m.engine.Submit(task) }

// SubmitPlan validates a batch of interdependent tasks and queues all of
// them. It returns the IDs in a valid execution order.
func (m *TaskMesh) SubmitPlan(tasks []*core.Task) ([]string, error) {
	return m.engine.SubmitPlan(tasks)
}

// WaitForTask blocks until the task reaches an end state or the context
// expires. The boolean reports whether an end state was reached.
func (m *TaskMesh) WaitForTask(ctx context.Context, id string) (*core.Task, bool) {
	return m.engine.WaitForTask(ctx, id)
}

// Broadcast sends a message to every registered agent except the sender.
func (m *TaskMesh) Broadcast(sender string, mt core.MessageType, content any) {
	m.engine.Broadcast(sender, mt, content)
}

// GetAgent returns a registered agent by name.
func (m *TaskMesh) GetAgent(name string) (*agent.Agent, bool) { return m.engine.GetAgent(name) }

// FindAgentsByCapability returns the names of agents advertising the
// capability, in registration order.
func (m *TaskMesh) FindAgentsByCapability(capability string) []string {
	return m.engine.FindAgentsByCapability(capability)
}

// History returns delivered messages, optionally filtered by recipient and
// by time. A zero since returns everything retained.
func (m *TaskMesh) History(recipient string, since time.Time) []core.Message {
	return m.engine.Bus().History(recipient, since)
}

// Status reports an aggregate snapshot of the engine, agents, scheduler and bus.
func (m *TaskMesh) Status() engine.SystemStatus { return m.engine.Status() }
