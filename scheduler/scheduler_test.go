package scheduler

import (
	"testing"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
)

func TestScheduler_PriorityOrdering(t *testing.T) {
	s := New()
	base := time.Now().UTC()

	// Creation times are pinned so ordering is deterministic.
	low := testutil.NewTaskBuilder("low").Priority(core.PriorityLow).CreatedAt(base).Build()
	critical := testutil.NewTaskBuilder("critical").Priority(core.PriorityCritical).CreatedAt(base.Add(2 * time.Millisecond)).Build()
	high := testutil.NewTaskBuilder("high").Priority(core.PriorityHigh).CreatedAt(base.Add(time.Millisecond)).Build()

	s.Add(low)
	s.Add(critical)
	s.Add(high)

	caps := core.NewCapabilities()

	for _, want := range []*core.Task{critical, high, low} {
		got := s.Next(caps)
		if got == nil || got.ID != want.ID {
			t.Fatalf("Next returned %v, want %q", got, want.Description)
		}
	}

	if s.Next(caps) != nil {
		t.Error("empty backlog should yield nil")
	}
}

func TestScheduler_FIFOWithinPriority(t *testing.T) {
	s := New()
	base := time.Now().UTC()

	second := testutil.NewTaskBuilder("second").CreatedAt(base.Add(time.Millisecond)).Build()
	first := testutil.NewTaskBuilder("first").CreatedAt(base).Build()

	s.Add(second)
	s.Add(first)

	if got := s.Next(core.NewCapabilities()); got == nil || got.ID != first.ID {
		t.Errorf("equal priority must dispatch oldest first, got %v", got)
	}
}

func TestScheduler_CapabilityGating(t *testing.T) {
	s := New()
	task := core.NewTask("needs search", func(o *core.TaskOptions) {
		o.Requires = []string{"web_search"}
	})
	s.Add(task)

	if s.Next(core.NewCapabilities("calculation")) != nil {
		t.Error("task must not dispatch to an agent missing its capabilities")
	}

	if got := s.Next(core.NewCapabilities("web_search", "calculation")); got == nil || got.ID != task.ID {
		t.Errorf("capable agent should receive the task, got %v", got)
	}
}

func TestScheduler_DependencyGating(t *testing.T) {
	s := New()
	upstream := core.NewTask("produce")
	downstream := core.NewTask("consume", func(o *core.TaskOptions) {
		o.DependsOn = []string{upstream.ID}
	})

	s.Add(downstream)
	s.Add(upstream)

	caps := core.NewCapabilities()

	got := s.Next(caps)
	if got == nil || got.ID != upstream.ID {
		t.Fatalf("only the dependency-free task should dispatch, got %v", got)
	}

	if s.Next(caps) != nil {
		t.Fatal("blocked task must stay queued until its dependency completes")
	}

	s.Claim(got)
	got.Start()
	got.Complete("ok")
	s.Update(got)

	if got := s.Next(caps); got == nil || got.ID != downstream.ID {
		t.Errorf("completed dependency should unblock the downstream task, got %v", got)
	}
}

func TestScheduler_SkipsCancelledEntries(t *testing.T) {
	s := New()

	cancelled := core.NewTask("abandoned")
	kept := core.NewTask("kept")

	s.Add(cancelled)
	s.Add(kept)
	cancelled.Cancel()

	if got := s.Next(core.NewCapabilities()); got == nil || got.ID != kept.ID {
		t.Errorf("cancelled entries must be skipped, got %v", got)
	}

	stats := s.Stats()
	if stats.Pending != 0 {
		t.Errorf("cancelled entry should be dropped from the backlog: %+v", stats)
	}
}

func TestScheduler_ClaimAndRelease(t *testing.T) {
	s := New()
	task := core.NewTask("tentative")
	s.Add(task)

	dispatched := s.Next(core.NewCapabilities())
	task.AssignTo("worker")
	s.Claim(dispatched)

	if stats := s.Stats(); stats.Running != 1 || stats.Pending != 0 {
		t.Fatalf("claimed task should count as running: %+v", stats)
	}

	s.Release(dispatched)

	if stats := s.Stats(); stats.Running != 0 || stats.Pending != 1 {
		t.Fatalf("released task should return to the backlog: %+v", stats)
	}

	if task.AssignedTo() != "" {
		t.Error("release must clear the assignment")
	}

	if got := s.Next(core.NewCapabilities()); got == nil || got.ID != task.ID {
		t.Errorf("released task should dispatch again, got %v", got)
	}
}

func TestScheduler_UpdatePartitions(t *testing.T) {
	s := New()

	done := core.NewTask("done")
	s.Add(done)
	s.Claim(s.Next(core.NewCapabilities()))
	done.Start()
	done.Complete("result")
	s.Update(done)

	broken := core.NewTask("broken")
	s.Add(broken)
	s.Claim(s.Next(core.NewCapabilities()))
	broken.Start()
	broken.Fail("boom")
	s.Update(broken)

	stats := s.Stats()
	if stats.Completed != 1 || stats.Failed != 1 || stats.Running != 0 || stats.Total != 2 {
		t.Fatalf("partitions wrong after updates: %+v", stats)
	}

	// Idempotent: reconciling the same terminal state twice changes nothing.
	s.Update(done)

	if stats := s.Stats(); stats.Completed != 1 || stats.Total != 2 {
		t.Errorf("double update must be harmless: %+v", stats)
	}
}

func TestScheduler_TerminalAndGet(t *testing.T) {
	s := New()
	task := core.NewTask("watched")
	s.Add(task)

	if _, ok := s.Terminal(task.ID); ok {
		t.Error("pending task must not report terminal")
	}

	if _, ok := s.Get(task.ID); !ok {
		t.Error("Get should find a queued task")
	}

	s.Claim(s.Next(core.NewCapabilities()))
	task.Start()
	task.Fail("gave up")
	s.Update(task)

	got, ok := s.Terminal(task.ID)
	if !ok || got.ErrorText() != "gave up" {
		t.Errorf("failed task should report terminal with its reason, got %v %v", got, ok)
	}

	if _, ok := s.Terminal("missing"); ok {
		t.Error("unknown ID must not report terminal")
	}
}

func TestScheduler_DuplicateAdd(t *testing.T) {
	s := New()
	task := core.NewTask("once")

	s.Add(task)
	s.Add(task)

	if stats := s.Stats(); stats.Pending != 1 || stats.Total != 1 {
		t.Errorf("duplicate Add must be a no-op: %+v", stats)
	}
}

func TestScheduler_RunningSnapshot(t *testing.T) {
	s := New()
	task := core.NewTask("inflight", func(o *core.TaskOptions) { o.Timeout = time.Second })
	s.Add(task)
	s.Claim(s.Next(core.NewCapabilities()))
	task.Start()

	running := s.Running()
	if len(running) != 1 || running[0].ID != task.ID {
		t.Errorf("Running snapshot wrong: %v", running)
	}
}
