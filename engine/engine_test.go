package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/core"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

// recordingExecutor notes completion order, for scheduling assertions.
type recordingExecutor struct {
	mu    sync.Mutex
	order []string
}

func (r *recordingExecutor) Execute(_ context.Context, task *core.Task) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = append(r.order, task.Description)

	return "done: " + task.Description, nil
}

func (r *recordingExecutor) completed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.order...)
}

// blockingExecutor holds every execution until unblocked.
type blockingExecutor struct {
	started chan string
	release chan struct{}
	once    sync.Once
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{
		started: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingExecutor) Execute(_ context.Context, task *core.Task) (any, error) {
	b.started <- task.ID
	<-b.release

	return "late result", nil
}

func (b *blockingExecutor) unblock() {
	b.once.Do(func() { close(b.release) })
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	return New(func(o *Options) {
		o.Config.TickInterval = 10 * time.Millisecond
		o.Config.WaitPollInterval = 5 * time.Millisecond
	})
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)

	return ctx
}

func TestEngine_AssignsAndCompletes(t *testing.T) {
	e := newTestEngine(t)

	exec := &recordingExecutor{}
	require.NoError(t, e.Register(agent.New("analyst", []string{"data_analysis"}, exec)))

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	id := e.Submit(core.NewTask("analyze the quarterly numbers", func(o *core.TaskOptions) {
		o.Requires = []string{"data_analysis"}
	}))

	task, ok := e.WaitForTask(waitCtx(t), id)
	require.True(t, ok, "task should finish")

	assert.Equal(t, core.TaskStatusCompleted, task.Status())
	assert.Equal(t, "done: analyze the quarterly numbers", task.Result())
	assert.Equal(t, "analyst", task.AssignedTo())

	status := e.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.Scheduler.Completed)
	assert.Equal(t, uint64(1), status.Agents[0].Metrics.TasksCompleted)
}

func TestEngine_CompletesInPriorityOrder(t *testing.T) {
	e := newTestEngine(t)

	exec := &recordingExecutor{}
	require.NoError(t, e.Register(agent.New("worker", nil, exec)))

	// All three are queued before the first tick, so the backlog order is
	// purely priority driven.
	low := e.Submit(core.NewTask("low", func(o *core.TaskOptions) { o.Priority = core.PriorityLow }))
	high := e.Submit(core.NewTask("high", func(o *core.TaskOptions) { o.Priority = core.PriorityHigh }))
	medium := e.Submit(core.NewTask("medium", func(o *core.TaskOptions) { o.Priority = core.PriorityMedium }))

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	for _, id := range []string{low, high, medium} {
		_, ok := e.WaitForTask(waitCtx(t), id)
		require.True(t, ok)
	}

	assert.Equal(t, []string{"high", "medium", "low"}, exec.completed())
}

func TestEngine_CapabilityMismatchLeavesTaskPending(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Register(agent.New("writer", []string{"report_generation"}, &recordingExecutor{})))

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	id := e.Submit(core.NewTask("crunch numbers", func(o *core.TaskOptions) {
		o.Requires = []string{"calculation"}
	}))

	shortCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	task, ok := e.WaitForTask(shortCtx, id)
	assert.False(t, ok)
	assert.Nil(t, task)

	queued, found := e.Scheduler().Get(id)
	require.True(t, found)
	assert.Equal(t, core.TaskStatusPending, queued.Status())
	assert.Equal(t, 1, e.Status().Scheduler.Pending)
}

func TestEngine_TimeoutForcesFailure(t *testing.T) {
	e := newTestEngine(t)

	exec := newBlockingExecutor()
	require.NoError(t, e.Register(agent.New("slowpoke", nil, exec)))

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	t.Cleanup(exec.unblock)

	id := e.Submit(core.NewTask("never finishes", func(o *core.TaskOptions) {
		o.Timeout = 30 * time.Millisecond
	}))

	select {
	case <-exec.started:
	case <-time.After(waitFor):
		t.Fatal("task never started")
	}

	task, ok := e.WaitForTask(waitCtx(t), id)
	require.True(t, ok, "expiry should force an end state")

	assert.Equal(t, core.TaskStatusFailed, task.Status())
	assert.Equal(t, "Task timeout exceeded", task.ErrorText())
	assert.Equal(t, 1, e.Status().Scheduler.Failed)

	// The executor finishing late must not overwrite the recorded failure.
	exec.unblock()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, core.TaskStatusFailed, task.Status())
	assert.Nil(t, task.Result())
}

func TestEngine_PlanRunsInDependencyOrder(t *testing.T) {
	e := newTestEngine(t)

	exec := &recordingExecutor{}
	require.NoError(t, e.Register(agent.New("pipeline", nil, exec)))

	extract := core.NewTask("extract")
	transform := core.NewTask("transform", func(o *core.TaskOptions) {
		o.DependsOn = []string{extract.ID}
		o.Priority = core.PriorityHigh
	})
	load := core.NewTask("load", func(o *core.TaskOptions) {
		o.DependsOn = []string{transform.ID}
		o.Priority = core.PriorityCritical
	})

	// Deliberately submitted in reverse; dependencies must dominate the
	// higher priorities of the downstream stages.
	order, err := e.SubmitPlan([]*core.Task{load, transform, extract})
	require.NoError(t, err)
	assert.Len(t, order, 3)

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	task, ok := e.WaitForTask(waitCtx(t), load.ID)
	require.True(t, ok)
	assert.Equal(t, core.TaskStatusCompleted, task.Status())

	assert.Equal(t, []string{"extract", "transform", "load"}, exec.completed())
}

func TestEngine_RejectsInvalidPlan(t *testing.T) {
	e := newTestEngine(t)

	a := core.NewTask("a")
	b := core.NewTask("b", func(o *core.TaskOptions) { o.DependsOn = []string{a.ID} })
	a.DependsOn = []string{b.ID}

	_, err := e.SubmitPlan([]*core.Task{a, b})
	require.Error(t, err)

	assert.Equal(t, 0, e.Status().Scheduler.Total, "a rejected plan must leave nothing queued")
}

func TestEngine_BusResponseReconcilesTask(t *testing.T) {
	e := newTestEngine(t)

	exec := newBlockingExecutor()
	require.NoError(t, e.Register(agent.New("remote", nil, exec)))

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	t.Cleanup(exec.unblock)

	id := e.Submit(core.NewTask("externally resolved"))

	select {
	case <-exec.started:
	case <-time.After(waitFor):
		t.Fatal("task never started")
	}

	// A response published straight to the bus, addressed to the system,
	// must reconcile the scheduler exactly like the direct handler path.
	e.Bus().Publish(core.NewMessage("remote", core.SystemName, core.MessageTypeTaskResponse, map[string]any{
		"task_id": id,
		"success": true,
		"result":  "resolved over the wire",
	}))

	task, ok := e.WaitForTask(waitCtx(t), id)
	require.True(t, ok)

	assert.Equal(t, core.TaskStatusCompleted, task.Status())
	assert.Equal(t, "resolved over the wire", task.Result())
}

func TestEngine_RegisterWhileRunning(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	id := e.Submit(core.NewTask("waiting for a worker", func(o *core.TaskOptions) {
		o.Requires = []string{"late_talent"}
	}))

	exec := &recordingExecutor{}
	require.NoError(t, e.Register(agent.New("latecomer", []string{"late_talent"}, exec)))

	task, ok := e.WaitForTask(waitCtx(t), id)
	require.True(t, ok, "an agent registered mid-flight should pick up queued work")
	assert.Equal(t, core.TaskStatusCompleted, task.Status())
}

func TestEngine_RegistryManagement(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Register(agent.New("alpha", []string{"web_search"}, nil)))
	require.NoError(t, e.Register(agent.New("beta", []string{"web_search", "calculation"}, nil)))

	assert.Error(t, e.Register(agent.New("alpha", nil, nil)), "duplicate names must be rejected")

	assert.Equal(t, []string{"alpha", "beta"}, e.FindAgentsByCapability("web_search"))
	assert.Equal(t, []string{"beta"}, e.FindAgentsByCapability("calculation"))
	assert.Empty(t, e.FindAgentsByCapability("juggling"))

	_, ok := e.GetAgent("alpha")
	assert.True(t, ok)

	require.NoError(t, e.Unregister("alpha"))
	assert.Error(t, e.Unregister("alpha"))

	_, ok = e.GetAgent("alpha")
	assert.False(t, ok)
	assert.Equal(t, []string{"beta"}, e.FindAgentsByCapability("web_search"))
}

func TestEngine_Broadcast(t *testing.T) {
	e := newTestEngine(t)

	type recv struct {
		mu   sync.Mutex
		msgs []core.Message
	}

	inbox := func(r *recv) func(core.Message) {
		return func(msg core.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.msgs = append(r.msgs, msg)
		}
	}

	count := func(r *recv) int {
		r.mu.Lock()
		defer r.mu.Unlock()

		return len(r.msgs)
	}

	alphaInbox, betaInbox := &recv{}, &recv{}

	require.NoError(t, e.Register(agent.New("alpha", nil, newBlockingExecutor(), func(o *agent.Options) {
		o.OnMessage = inbox(alphaInbox)
	})))
	require.NoError(t, e.Register(agent.New("beta", nil, newBlockingExecutor(), func(o *agent.Options) {
		o.OnMessage = inbox(betaInbox)
	})))

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	e.Broadcast("alpha", core.MessageTypeCoordination, "sync please")

	assert.Eventually(t, func() bool { return count(betaInbox) == 1 }, waitFor, tick)

	// The sender is excluded; give a straggler a moment before asserting.
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, count(alphaInbox))

	betaInbox.mu.Lock()
	got := betaInbox.msgs[0]
	betaInbox.mu.Unlock()

	assert.Equal(t, "alpha", got.Sender)
	assert.Equal(t, "sync please", got.Content)
}

func TestEngine_LifecycleErrors(t *testing.T) {
	e := newTestEngine(t)

	assert.EqualError(t, e.Stop(), "engine is not running")

	require.NoError(t, e.Start(context.Background()))
	assert.EqualError(t, e.Start(context.Background()), "engine is already running")

	require.NoError(t, e.Stop())
	assert.EqualError(t, e.Stop(), "engine is not running")
	assert.False(t, e.Status().Running)
}
