package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Status describes an agent's availability.
type Status string

const (
	// StatusIdle means the agent is available for work.
	StatusIdle Status = "idle"
	// StatusBusy means at least one task is executing.
	StatusBusy Status = "busy"
	// StatusError means the most recent execution failed; the agent still
	// accepts work.
	StatusError Status = "error"
	// StatusOffline means the agent refuses new assignments.
	StatusOffline Status = "offline"
)

// Capability describes one named ability an agent advertises, optionally
// with a human readable description and parameter hints.
type Capability struct {
	Name        string
	Description string
	Params      map[string]any
}

// Metrics accumulates execution counters for one agent.
type Metrics struct {
	TasksCompleted     uint64
	TasksFailed        uint64
	TotalExecutionTime time.Duration
	LastActivity       time.Time
}

// Snapshot is a point-in-time view of an agent, safe to hand out.
type Snapshot struct {
	Name          string
	Status        Status
	Capabilities  []string
	QueueLength   int
	CurrentTasks  int
	MaxConcurrent int
	Metrics       Metrics
}

// Options configures an Agent.
type Options struct {
	// MaxConcurrent bounds how many tasks execute at once. Defaults to 1.
	MaxConcurrent int

	// PollInterval is how often the background loop checks the wait queue
	// for dispatchable tasks. Defaults to 10ms.
	PollInterval time.Duration

	// Logger receives agent activity.
	Logger logging.Logger

	// Handler receives the task_response message emitted after each
	// execution. The engine installs its own handler on registration;
	// standalone agents can set one here.
	Handler func(msg core.Message)

	// OnMessage is invoked for every message delivered to the agent.
	OnMessage func(msg core.Message)
}

// Agent executes tasks that match its capabilities. An agent accepts a task
// when it is not offline and covers the task's required capabilities;
// acceptance either starts execution immediately or parks the task in the
// wait queue until a concurrency slot frees up.
//
// Execution outcomes are written onto the task itself (guarded transitions,
// first writer wins) and additionally reported through the response handler
// so a coordinator can reconcile its bookkeeping.
type Agent struct {
	name          string
	executor      core.Executor
	logger        logging.Logger
	maxConcurrent int
	pollInterval  time.Duration
	group         *errgroup.Group

	mu           sync.Mutex
	capabilities map[string]Capability
	status       Status
	queue        []*core.Task
	executing    map[string]*core.Task
	metrics      Metrics
	handler      func(msg core.Message)
	onMessage    func(msg core.Message)
	execCtx      context.Context

	stateMu  sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
	running  bool
}

// New creates an agent advertising the given capability names. A nil
// executor gets a simulated one that sleeps briefly and echoes the task
// description, which keeps examples and tests self-contained.
func New(name string, capabilities []string, executor core.Executor, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxConcurrent: 1,
		PollInterval:  10 * time.Millisecond,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}

	if executor == nil {
		executor = simulatedExecutor(name)
	}

	group := new(errgroup.Group)
	group.SetLimit(opts.MaxConcurrent)

	caps := make(map[string]Capability, len(capabilities))
	for _, c := range capabilities {
		caps[c] = Capability{Name: c}
	}

	return &Agent{
		name:          name,
		executor:      executor,
		logger:        opts.Logger,
		maxConcurrent: opts.MaxConcurrent,
		pollInterval:  opts.PollInterval,
		group:         group,
		capabilities:  caps,
		status:        StatusIdle,
		executing:     make(map[string]*core.Task),
		handler:       opts.Handler,
		onMessage:     opts.OnMessage,
		execCtx:       context.Background(),
	}
}

// Name returns the agent's unique name.
func (a *Agent) Name() string {
	return a.name
}

// Status returns the agent's current availability.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.status
}

// AddCapability registers or replaces a capability.
func (a *Agent) AddCapability(c Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.capabilities[c.Name] = c
}

// HasCapability reports whether the agent advertises the named capability.
func (a *Agent) HasCapability(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.capabilities[name]

	return ok
}

// Capabilities returns the advertised capability names as a set.
func (a *Agent) Capabilities() core.Capabilities {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.capabilitySetLocked()
}

// CapabilityDetails returns the full capability records, sorted by name.
func (a *Agent) CapabilityDetails() []Capability {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Capability, 0, len(a.capabilities))
	for _, c := range a.capabilities {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// SetHandler installs the sink for task_response messages. The engine calls
// this during registration.
func (a *Agent) SetHandler(handler func(msg core.Message)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.handler = handler
}

// Assign offers a task to this agent. It returns false when the agent is
// offline or does not cover the task's required capabilities. Acceptance
// means the task either starts executing immediately or waits in the queue
// for a free slot; either way the agent now owns it.
func (a *Agent) Assign(task *core.Task) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == StatusOffline {
		return false
	}

	if !task.Requires.SubsetOf(a.capabilitySetLocked()) {
		return false
	}

	if a.group.TryGo(func() error { a.execute(task); return nil }) {
		return true
	}

	a.queue = append(a.queue, task)
	a.logger.Debug("Task queued on agent", "agent", a.name, "task_id", task.ID, "queue_length", len(a.queue))

	return true
}

// Deliver hands an inbound message to the agent. It satisfies the bus
// handler signature so the engine can subscribe agents directly.
func (a *Agent) Deliver(msg core.Message) error {
	a.mu.Lock()
	onMessage := a.onMessage
	a.metrics.LastActivity = time.Now().UTC()
	a.mu.Unlock()

	a.logger.Debug("Message received", "agent", a.name, "sender", msg.Sender, "type", string(msg.Type))

	if onMessage != nil {
		onMessage(msg)
	}

	return nil
}

// Start launches the queue drain loop. The given context is also the parent
// context handed to the executor for every task.
func (a *Agent) Start(ctx context.Context) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if a.running {
		return errors.New("agent is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.loopDone = make(chan struct{})
	a.running = true

	a.mu.Lock()
	a.execCtx = ctx
	if a.status == StatusOffline {
		a.status = StatusIdle
	}
	a.mu.Unlock()

	go a.loop(loopCtx, a.loopDone)

	a.logger.Info("Agent started", "agent", a.name, "max_concurrent", a.maxConcurrent)

	return nil
}

// Stop takes the agent offline: the drain loop halts, in-flight executions
// run to completion, and queued tasks stay queued for a later Start.
func (a *Agent) Stop() error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.running {
		return errors.New("agent is not running")
	}

	a.cancel()
	<-a.loopDone
	a.running = false

	a.mu.Lock()
	a.status = StatusOffline
	a.mu.Unlock()

	_ = a.group.Wait()

	a.logger.Info("Agent stopped", "agent", a.name)

	return nil
}

// Metrics returns a copy of the agent's execution counters.
func (a *Agent) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.metrics
}

// Snapshot captures the agent's current state for status reporting.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.capabilities))
	for name := range a.capabilities {
		names = append(names, name)
	}

	sort.Strings(names)

	return Snapshot{
		Name:          a.name,
		Status:        a.status,
		Capabilities:  names,
		QueueLength:   len(a.queue),
		CurrentTasks:  len(a.executing),
		MaxConcurrent: a.maxConcurrent,
		Metrics:       a.metrics,
	}
}

func (a *Agent) capabilitySetLocked() core.Capabilities {
	caps := make(core.Capabilities, len(a.capabilities))
	for name := range a.capabilities {
		caps.Add(name)
	}

	return caps
}

// loop periodically moves queued tasks into free execution slots.
func (a *Agent) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.drainQueue()
		}
	}
}

// drainQueue admits queued tasks until the queue empties or the concurrency
// limit pushes back. A task is only removed from the queue once admitted.
func (a *Agent) drainQueue() {
	for {
		a.mu.Lock()

		if len(a.queue) == 0 {
			a.mu.Unlock()

			return
		}

		task := a.queue[0]

		if task.Status() != core.TaskStatusPending {
			// Cancelled while waiting; drop it without burning a slot.
			a.queue = a.queue[1:]
			a.mu.Unlock()

			continue
		}

		if !a.group.TryGo(func() error { a.execute(task); return nil }) {
			a.mu.Unlock()

			return
		}

		a.queue = a.queue[1:]
		a.mu.Unlock()
	}
}

// execute runs one task through the executor and records the outcome. The
// guarded Start keeps it from touching tasks that were cancelled or expired
// after assignment.
func (a *Agent) execute(task *core.Task) {
	if !task.Start() {
		return
	}

	a.mu.Lock()
	a.executing[task.ID] = task
	if a.status == StatusIdle {
		a.status = StatusBusy
	}
	a.metrics.LastActivity = time.Now().UTC()
	ctx := a.execCtx
	a.mu.Unlock()

	a.logger.Debug("Task execution started", "agent", a.name, "task_id", task.ID)

	start := time.Now()
	result, err := a.executor.Execute(ctx, task)
	elapsed := time.Since(start)

	if err != nil {
		task.Fail(err.Error())
	} else {
		task.Complete(result)
	}

	a.finish(task, elapsed, err)
	a.notify(task, err)
}

// finish updates counters and recomputes availability. A failure marks the
// agent StatusError, sticky only while other tasks are still in flight;
// once the load returns to zero the agent reverts to StatusIdle.
func (a *Agent) finish(task *core.Task, elapsed time.Duration, execErr error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.executing, task.ID)

	a.metrics.TotalExecutionTime += elapsed
	a.metrics.LastActivity = time.Now().UTC()

	if execErr != nil {
		a.metrics.TasksFailed++
		a.logger.Error("Task execution failed", "agent", a.name, "task_id", task.ID, "error", execErr.Error())
	} else {
		a.metrics.TasksCompleted++
		a.logger.Debug("Task execution completed", "agent", a.name, "task_id", task.ID, "duration", elapsed)
	}

	if a.status == StatusOffline {
		return
	}

	if len(a.executing) == 0 {
		a.status = StatusIdle
	} else if execErr != nil {
		a.status = StatusError
	}
}

// notify reports the outcome to the coordinator as a task_response message.
func (a *Agent) notify(task *core.Task, execErr error) {
	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()

	if handler == nil {
		return
	}

	content := map[string]any{
		"task_id": task.ID,
		"success": execErr == nil,
	}

	if execErr != nil {
		content["error"] = execErr.Error()
	} else {
		content["result"] = task.Result()
	}

	handler(core.NewMessage(a.name, core.SystemName, core.MessageTypeTaskResponse, content))
}

// simulatedExecutor stands in when no real executor is supplied.
func simulatedExecutor(name string) core.ExecutorFunc {
	return func(ctx context.Context, task *core.Task) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}

		return fmt.Sprintf("Task '%s' completed by %s", task.Description, name), nil
	}
}
