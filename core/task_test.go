package core

import (
	"testing"
	"time"
)

func TestTask_ConstructorDefaults(t *testing.T) {
	task := NewTask("analyze dataset")
	if task.ID == "" || task.CreatedAt.IsZero() {
		t.Fatalf("NewTask did not initialize identity fields: %+v", task)
	}

	if task.Status() != TaskStatusPending {
		t.Errorf("new task status = %q, want pending", task.Status())
	}

	if task.Priority != PriorityMedium {
		t.Errorf("default priority = %v, want medium", task.Priority)
	}

	if len(task.Requires) != 0 || task.Timeout != 0 || task.AssignedTo() != "" {
		t.Errorf("new task carries unexpected state: %+v", task)
	}
}

func TestTask_ConstructorOptions(t *testing.T) {
	task := NewTask("fetch report", func(o *TaskOptions) {
		o.Requires = []string{"web_search", "report_generation"}
		o.Priority = PriorityCritical
		o.Params = map[string]any{"topic": "climate"}
		o.Timeout = 30 * time.Second
		o.DependsOn = []string{"task-1"}
	})

	if !task.Requires.Has("web_search") || !task.Requires.Has("report_generation") {
		t.Errorf("required capabilities not recorded: %v", task.Requires.Names())
	}

	if task.Priority != PriorityCritical {
		t.Errorf("priority = %v, want critical", task.Priority)
	}

	if task.Params["topic"] != "climate" || task.Timeout != 30*time.Second {
		t.Errorf("options not applied: %+v", task)
	}

	if len(task.DependsOn) != 1 || task.DependsOn[0] != "task-1" {
		t.Errorf("dependencies not recorded: %v", task.DependsOn)
	}
}

func TestTask_LifecycleTransitions(t *testing.T) {
	task := NewTask("compute")

	if !task.Start() {
		t.Fatal("Start on pending task should succeed")
	}

	if task.Status() != TaskStatusRunning || task.StartedAt().IsZero() {
		t.Fatalf("Start did not record running state: %+v", task)
	}

	if task.Start() {
		t.Error("Start on running task should fail")
	}

	if !task.Complete(42) {
		t.Fatal("Complete on running task should succeed")
	}

	if task.Status() != TaskStatusCompleted || task.Result() != 42 || task.CompletedAt().IsZero() {
		t.Fatalf("Complete did not record result: %+v", task)
	}

	// The first terminal writer wins; everything after is a no-op.
	if task.Fail("late timeout") {
		t.Error("Fail after Complete should report false")
	}

	if task.Complete(99) {
		t.Error("second Complete should report false")
	}

	if task.Status() != TaskStatusCompleted || task.Result() != 42 || task.ErrorText() != "" {
		t.Errorf("losing writers must not mutate the task: %+v", task)
	}
}

func TestTask_FailAndCancel(t *testing.T) {
	failed := NewTask("flaky")
	failed.Start()

	if !failed.Fail("executor error: boom") {
		t.Fatal("Fail on running task should succeed")
	}

	if failed.Status() != TaskStatusFailed || failed.ErrorText() != "executor error: boom" {
		t.Fatalf("Fail did not record reason: %+v", failed)
	}

	if failed.Cancel() {
		t.Error("Cancel on failed task should report false")
	}

	pending := NewTask("never started")
	if !pending.Cancel() {
		t.Fatal("Cancel on pending task should succeed")
	}

	if pending.Status() != TaskStatusCancelled || pending.CompletedAt().IsZero() {
		t.Fatalf("Cancel did not record end state: %+v", pending)
	}

	if pending.Start() {
		t.Error("Start on cancelled task should fail")
	}

	running := NewTask("interrupted")
	running.Start()

	if !running.Cancel() {
		t.Error("Cancel on running task should succeed")
	}
}

func TestTask_Assignment(t *testing.T) {
	task := NewTask("route me")
	task.AssignTo("worker-1")

	if task.AssignedTo() != "worker-1" {
		t.Errorf("AssignedTo = %q, want worker-1", task.AssignedTo())
	}

	if task.Status() != TaskStatusPending {
		t.Error("assignment alone must not change status")
	}

	task.Unassign()
	if task.AssignedTo() != "" {
		t.Errorf("Unassign left %q", task.AssignedTo())
	}
}

func TestTask_DependencyGating(t *testing.T) {
	task := NewTask("final step", func(o *TaskOptions) {
		o.DependsOn = []string{"a", "b"}
	})

	if task.CanStart(map[string]struct{}{"a": {}}) {
		t.Error("task with unmet dependency should not start")
	}

	if !task.CanStart(map[string]struct{}{"a": {}, "b": {}, "c": {}}) {
		t.Error("task with all dependencies completed should start")
	}

	free := NewTask("independent")
	if !free.CanStart(nil) {
		t.Error("task without dependencies should always start")
	}
}

func TestTask_Expiry(t *testing.T) {
	task := NewTask("slow", func(o *TaskOptions) {
		o.Timeout = time.Nanosecond
	})

	if task.IsExpired() {
		t.Error("pending task should never be expired")
	}

	task.Start()
	time.Sleep(5 * time.Millisecond)

	if !task.IsExpired() {
		t.Error("running task past its timeout should be expired")
	}

	unbounded := NewTask("no deadline")
	unbounded.Start()

	if unbounded.IsExpired() {
		t.Error("task without timeout should never expire")
	}
}

func TestTask_MapRoundTrip(t *testing.T) {
	task := NewTask("summarize", func(o *TaskOptions) {
		o.Requires = []string{"data_analysis"}
		o.Priority = PriorityHigh
		o.Params = map[string]any{"rows": 100}
		o.Timeout = 90 * time.Second
		o.DependsOn = []string{"upstream"}
	})
	task.AssignTo("analyst")
	task.Start()
	task.Complete("done")

	data := task.ToMap()
	if data["status"] != "completed" || data["priority"] != 3 {
		t.Fatalf("enum rendering wrong: status=%v priority=%v", data["status"], data["priority"])
	}

	if data["timeout"] != 90.0 {
		t.Errorf("timeout = %v, want 90 seconds", data["timeout"])
	}

	if data["started_at"] == nil || data["completed_at"] == nil {
		t.Error("set timestamps must render as text, not nil")
	}

	restored, err := TaskFromMap(data)
	if err != nil {
		t.Fatalf("TaskFromMap failed: %v", err)
	}

	if restored.ID != task.ID || restored.Status() != TaskStatusCompleted {
		t.Errorf("identity or status lost in round trip: %+v", restored)
	}

	if restored.Priority != PriorityHigh || restored.Timeout != 90*time.Second {
		t.Errorf("priority or timeout lost: %+v", restored)
	}

	if restored.AssignedTo() != "analyst" || restored.Result() != "done" {
		t.Errorf("assignment or result lost: %+v", restored)
	}

	if !restored.Requires.Has("data_analysis") || len(restored.DependsOn) != 1 {
		t.Errorf("capabilities or dependencies lost: %+v", restored)
	}

	if !restored.StartedAt().Equal(task.StartedAt()) {
		t.Errorf("started_at drifted: %v vs %v", restored.StartedAt(), task.StartedAt())
	}
}

func TestTask_MapUnsetOptionals(t *testing.T) {
	data := NewTask("bare").ToMap()

	if data["timeout"] != nil || data["started_at"] != nil || data["completed_at"] != nil {
		t.Errorf("unset optionals must render as nil: %+v", data)
	}

	restored, err := TaskFromMap(data)
	if err != nil {
		t.Fatalf("TaskFromMap failed on minimal map: %v", err)
	}

	if restored.Timeout != 0 || !restored.StartedAt().IsZero() {
		t.Errorf("nil optionals must restore to zero values: %+v", restored)
	}
}

func TestTaskFromMap_Errors(t *testing.T) {
	base := NewTask("valid").ToMap()

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing id", func(m map[string]any) { delete(m, "id") }},
		{"missing created_at", func(m map[string]any) { m["created_at"] = nil }},
		{"unknown status", func(m map[string]any) { m["status"] = "paused" }},
		{"priority out of range", func(m map[string]any) { m["priority"] = 9 }},
		{"malformed timestamp", func(m map[string]any) { m["started_at"] = "yesterday" }},
	}

	for _, tc := range cases {
		data := make(map[string]any, len(base))
		for k, v := range base {
			data[k] = v
		}

		tc.mutate(data)

		if _, err := TaskFromMap(data); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestPriority_String(t *testing.T) {
	if PriorityLow.String() != "low" || PriorityCritical.String() != "critical" {
		t.Error("priority names wrong")
	}

	if Priority(7).String() != "priority(7)" {
		t.Errorf("unknown priority rendering = %q", Priority(7).String())
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
