package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/bus"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/scheduler"
)

// Config defines tuning parameters for the engine's coordination behavior.
//
// The two intervals trade latency for overhead: a shorter tick assigns and
// expires tasks sooner at the cost of more frequent scheduler scans, and a
// shorter wait poll makes WaitForTask return sooner at the cost of more
// lookups while blocked.
type Config struct {
	// TickInterval is the period of the coordination loop. Each tick runs
	// one assignment pass and one timeout pass.
	TickInterval time.Duration

	// WaitPollInterval is how often WaitForTask re-checks for a terminal
	// state while blocked.
	WaitPollInterval time.Duration
}

// DefaultConfig provides coordination defaults suitable for interactive
// workloads: a one second tick and a tenth of a second wait poll.
var DefaultConfig = Config{
	TickInterval:     time.Second,
	WaitPollInterval: 100 * time.Millisecond,
}

// Options configures engine construction.
type Options struct {
	// Config holds the coordination tuning parameters.
	Config Config

	// Scheduler supplies the task queue. Left nil, the engine creates its
	// own.
	Scheduler *scheduler.Scheduler

	// Bus supplies the message transport. Left nil, the engine creates its
	// own. A caller-supplied bus must not be running; the engine owns its
	// lifecycle.
	Bus *bus.Bus

	// Logger receives engine activity.
	Logger logging.Logger
}

// SystemStatus aggregates the observable state of the whole mesh. It is a
// read-only report assembled on demand, never an input to coordination.
type SystemStatus struct {
	Running   bool
	Agents    []agent.Snapshot
	Scheduler scheduler.Stats
	Bus       bus.Stats
}

// Engine coordinates agents, scheduler and bus. Construct with New,
// populate with Register and Submit, then Start to let the coordination
// loop move work.
type Engine struct {
	logger    logging.Logger
	scheduler *scheduler.Scheduler
	bus       *bus.Bus
	config    Config

	mu     sync.RWMutex
	agents map[string]*agent.Agent
	order  []string

	stateMu sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	runCtx  context.Context
	running bool
}

// New creates an engine and subscribes it on the bus under the reserved
// system name, so task responses published there reconcile the scheduler
// even when they bypass the direct handler path.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Config.TickInterval <= 0 {
		opts.Config.TickInterval = DefaultConfig.TickInterval
	}

	if opts.Config.WaitPollInterval <= 0 {
		opts.Config.WaitPollInterval = DefaultConfig.WaitPollInterval
	}

	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.New(func(o *scheduler.Options) {
			o.Logger = opts.Logger
		})
	}

	if opts.Bus == nil {
		opts.Bus = bus.New(func(o *bus.Options) {
			o.Logger = opts.Logger
		})
	}

	e := &Engine{
		logger:    opts.Logger,
		scheduler: opts.Scheduler,
		bus:       opts.Bus,
		config:    opts.Config,
		agents:    make(map[string]*agent.Agent),
	}

	e.bus.Subscribe(core.SystemName, func(msg core.Message) error {
		e.processResponse(msg)

		return nil
	})

	return e
}

// Scheduler exposes the engine's task queue.
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.scheduler
}

// Bus exposes the engine's message transport.
func (e *Engine) Bus() *bus.Bus {
	return e.bus
}

// Register adds an agent to the mesh: the engine becomes the agent's
// response handler, the agent's Deliver is subscribed under its name, and
// when the engine is already running the agent starts immediately.
// Registering a second agent under the same name is an error.
func (e *Engine) Register(a *agent.Agent) error {
	e.mu.Lock()

	if _, ok := e.agents[a.Name()]; ok {
		e.mu.Unlock()

		return fmt.Errorf("agent %q already registered", a.Name())
	}

	e.agents[a.Name()] = a
	e.order = append(e.order, a.Name())
	e.mu.Unlock()

	a.SetHandler(e.handleAgentMessage)
	e.bus.Subscribe(a.Name(), a.Deliver)

	e.stateMu.Lock()
	running := e.running
	runCtx := e.runCtx
	e.stateMu.Unlock()

	if running {
		if err := a.Start(runCtx); err != nil {
			return fmt.Errorf("start agent %q: %w", a.Name(), err)
		}
	}

	e.logger.Info("Agent registered", "agent", a.Name(), "capabilities", a.Capabilities().Names())

	return nil
}

// Unregister removes an agent from the mesh and its bus subscription. A
// running agent is stopped; its queued tasks stay with it.
func (e *Engine) Unregister(name string) error {
	e.mu.Lock()

	a, ok := e.agents[name]
	if !ok {
		e.mu.Unlock()

		return fmt.Errorf("agent %q not registered", name)
	}

	delete(e.agents, name)

	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)

			break
		}
	}
	e.mu.Unlock()

	e.bus.Unsubscribe(name)

	if err := a.Stop(); err != nil {
		// The agent may simply never have been started.
		e.logger.Debug("Agent stop on unregister", "agent", name, "error", err.Error())
	}

	e.logger.Info("Agent unregistered", "agent", name)

	return nil
}

// Submit queues a task for assignment and returns its ID.
func (e *Engine) Submit(task *core.Task) string {
	e.scheduler.Add(task)

	e.logger.Info("Task submitted", "task_id", task.ID, "priority", task.Priority.String(), "description", task.Description)

	return task.ID
}

// SubmitPlan validates a batch of interdependent tasks as a DAG and queues
// all of them. It returns the IDs in a valid execution order, or an error
// that leaves nothing queued.
func (e *Engine) SubmitPlan(tasks []*core.Task) ([]string, error) {
	order, err := scheduler.ValidatePlan(tasks, e.scheduler.CompletedIDs())
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		e.scheduler.Add(task)
	}

	e.logger.Info("Plan submitted", "tasks", len(tasks))

	return order, nil
}

// Start brings the mesh up: the bus, every registered agent, then the
// coordination loop. The context is the parent for all agent executions.
func (e *Engine) Start(ctx context.Context) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.running {
		return errors.New("engine is already running")
	}

	if err := e.bus.Start(ctx); err != nil {
		return fmt.Errorf("start message bus: %w", err)
	}

	var started []*agent.Agent

	for _, a := range e.agentsInOrder() {
		if err := a.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}

			_ = e.bus.Stop()

			return fmt.Errorf("start agent %q: %w", a.Name(), err)
		}

		started = append(started, a)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.runCtx = ctx
	e.group = new(errgroup.Group)

	e.group.Go(func() error {
		e.run(loopCtx)

		return nil
	})

	e.running = true

	e.logger.Info("Engine started", "agents", len(started), "tick_interval", e.config.TickInterval)

	return nil
}

// Stop halts the coordination loop, stops every agent (in-flight work
// drains), and stops the bus.
func (e *Engine) Stop() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if !e.running {
		return errors.New("engine is not running")
	}

	e.cancel()
	_ = e.group.Wait()

	for _, a := range e.agentsInOrder() {
		if err := a.Stop(); err != nil {
			e.logger.Warn("Agent stop failed", "agent", a.Name(), "error", err.Error())
		}
	}

	if err := e.bus.Stop(); err != nil {
		e.logger.Warn("Message bus stop failed", "error", err.Error())
	}

	e.running = false

	e.logger.Info("Engine stopped")

	return nil
}

// GetAgent returns a registered agent by name.
func (e *Engine) GetAgent(name string) (*agent.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.agents[name]

	return a, ok
}

// FindAgentsByCapability returns the names of registered agents advertising
// the capability, in registration order.
func (e *Engine) FindAgentsByCapability(capability string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var found []string

	for _, name := range e.order {
		if e.agents[name].HasCapability(capability) {
			found = append(found, name)
		}
	}

	return found
}

// Broadcast publishes one message per registered agent except the sender.
func (e *Engine) Broadcast(sender string, mt core.MessageType, content any) {
	e.mu.RLock()
	names := append([]string(nil), e.order...)
	e.mu.RUnlock()

	for _, name := range names {
		if name == sender {
			continue
		}

		e.bus.Publish(core.NewMessage(sender, name, mt, content))
	}
}

// WaitForTask blocks until the task reaches an end state or the context
// expires. The boolean is false when the outcome is still unknown; that is
// not an error, the task may well finish later.
func (e *Engine) WaitForTask(ctx context.Context, id string) (*core.Task, bool) {
	if task, ok := e.scheduler.Terminal(id); ok {
		return task, true
	}

	ticker := time.NewTicker(e.config.WaitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
			if task, ok := e.scheduler.Terminal(id); ok {
				return task, true
			}
		}
	}
}

// Status reports the current state of the whole mesh.
func (e *Engine) Status() SystemStatus {
	e.stateMu.Lock()
	running := e.running
	e.stateMu.Unlock()

	agents := e.agentsInOrder()

	snapshots := make([]agent.Snapshot, 0, len(agents))
	for _, a := range agents {
		snapshots = append(snapshots, a.Snapshot())
	}

	return SystemStatus{
		Running:   running,
		Agents:    snapshots,
		Scheduler: e.scheduler.Stats(),
		Bus:       e.bus.Stats(),
	}
}

// run is the coordination loop. It is deliberately single-threaded; all
// parallelism lives in the agents.
func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.coordinate()
		}
	}
}

func (e *Engine) coordinate() {
	assigned := e.assignPending()
	expired := e.sweepRunning()

	if assigned > 0 || expired > 0 {
		e.logger.Debug("Coordination pass completed", "assigned", assigned, "expired", expired)
	}
}

// assignPending walks agents in registration order and offers each idle
// agent at most one eligible task. The task is claimed into the running
// partition before the offer: if the agent finishes it instantly, the
// response handler already finds it tracked.
func (e *Engine) assignPending() int {
	assigned := 0

	for _, a := range e.agentsInOrder() {
		if a.Status() != agent.StatusIdle {
			continue
		}

		task := e.scheduler.Next(a.Capabilities())
		if task == nil {
			continue
		}

		task.AssignTo(a.Name())
		e.scheduler.Claim(task)

		if !a.Assign(task) {
			e.scheduler.Release(task)

			continue
		}

		assigned++

		e.logger.Info("Task assigned", "task_id", task.ID, "agent", a.Name(), "priority", task.Priority.String())

		e.bus.Publish(core.NewMessage(core.SystemName, a.Name(), core.MessageTypeTaskRequest, map[string]any{
			"task_id":     task.ID,
			"description": task.Description,
		}))
	}

	return assigned
}

// sweepRunning enforces timeouts across the running partition and
// reconciles entries whose end state arrived without a response message.
func (e *Engine) sweepRunning() int {
	expired := 0

	for _, task := range e.scheduler.Running() {
		if task.Status().Terminal() {
			e.scheduler.Update(task)

			continue
		}

		if !task.IsExpired() {
			continue
		}

		if !task.Fail("Task timeout exceeded") {
			// The agent's completion won the race; leave it alone.
			continue
		}

		e.scheduler.Update(task)
		expired++

		e.logger.Warn("Task timeout exceeded", "task_id", task.ID, "agent", task.AssignedTo())

		if agentName := task.AssignedTo(); agentName != "" {
			e.bus.Publish(core.NewMessage(core.SystemName, agentName, core.MessageTypeError, map[string]any{
				"task_id": task.ID,
				"error":   "Task timeout exceeded",
			}))
		}
	}

	return expired
}

// handleAgentMessage is installed on every registered agent. It reconciles
// the scheduler from the response and re-publishes the message on the bus
// for downstream observers; the bus path does not re-publish, so the
// message travels the bus exactly once.
func (e *Engine) handleAgentMessage(msg core.Message) {
	e.processResponse(msg)
	e.bus.Publish(msg)
}

// processResponse applies a task_response to the scheduler's bookkeeping.
// Task transitions are guarded, so applying the same response twice (once
// per delivery path) is harmless.
func (e *Engine) processResponse(msg core.Message) {
	if msg.Type != core.MessageTypeTaskResponse {
		return
	}

	content, ok := msg.Content.(map[string]any)
	if !ok {
		e.logger.Warn("Malformed task response", "message_id", msg.ID, "sender", msg.Sender)

		return
	}

	taskID, _ := content["task_id"].(string)

	task, ok := e.scheduler.Get(taskID)
	if !ok {
		e.logger.Debug("Task response for unknown task", "task_id", taskID, "sender", msg.Sender)

		return
	}

	if success, _ := content["success"].(bool); success {
		task.Complete(content["result"])
	} else {
		reason, _ := content["error"].(string)
		if reason == "" {
			reason = "task failed"
		}

		task.Fail(reason)
	}

	e.scheduler.Update(task)

	e.logger.Debug("Task response processed", "task_id", taskID, "sender", msg.Sender, "status", string(task.Status()))
}

func (e *Engine) agentsInOrder() []*agent.Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	agents := make([]*agent.Agent, 0, len(e.order))
	for _, name := range e.order {
		agents = append(agents, e.agents[name])
	}

	return agents
}
