package core

import (
	"fmt"
	"sync"
	"time"
)

// TaskStatus describes a task's position in its lifecycle. Status only
// advances along pending, running, then completed or failed; cancelled is
// reachable from pending and running.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Priority orders tasks in the scheduler queue. Higher values run first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String returns the symbolic name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// TaskOptions configures a Task.
type TaskOptions struct {
	// Requires lists the capability names an agent must provide to execute
	// the task.
	Requires []string

	// Priority orders the task relative to other pending work. Defaults to
	// PriorityMedium.
	Priority Priority

	// Params carries free-form parameters for the executor.
	Params map[string]any

	// Timeout bounds execution time, measured from the moment the task
	// starts running rather than from creation. Zero means no timeout.
	Timeout time.Duration

	// DependsOn lists IDs of tasks that must complete before this one is
	// eligible to start.
	DependsOn []string
}

// Task is a schedulable unit of work. Identity fields are set at
// construction and treated as immutable; lifecycle fields are guarded by an
// internal mutex so a task can be shared between an executing agent and the
// coordination loop.
//
// Lifecycle transitions are compare-and-set: the first writer wins and
// later writers observe false. This settles the race between an agent
// completing a task and the coordinator expiring it.
type Task struct {
	ID          string
	Description string
	Requires    Capabilities
	Priority    Priority
	Params      map[string]any
	Timeout     time.Duration
	DependsOn   []string
	CreatedAt   time.Time

	mu          sync.RWMutex
	status      TaskStatus
	assignedTo  string
	startedAt   time.Time
	completedAt time.Time
	result      any
	errText     string
}

// NewTask creates a pending task with a generated ID.
func NewTask(description string, optFns ...func(o *TaskOptions)) *Task {
	opts := TaskOptions{
		Priority: PriorityMedium,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Task{
		ID:          NewID(),
		Description: description,
		Requires:    NewCapabilities(opts.Requires...),
		Priority:    opts.Priority,
		Params:      opts.Params,
		Timeout:     opts.Timeout,
		DependsOn:   opts.DependsOn,
		CreatedAt:   time.Now().UTC(),
		status:      TaskStatusPending,
	}
}

// Status returns the current lifecycle status.
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// AssignTo records the agent the task was handed to. Assignment is
// bookkeeping only; the status does not change until the agent starts the
// task.
func (t *Task) AssignTo(agent string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.assignedTo = agent
}

// Unassign clears the assigned agent after a refused assignment.
func (t *Task) Unassign() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.assignedTo = ""
}

// AssignedTo returns the name of the agent the task is assigned to, or the
// empty string when unassigned.
func (t *Task) AssignedTo() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.assignedTo
}

// Start transitions the task from pending to running and records the start
// time. It returns false, changing nothing, when the task is not pending.
func (t *Task) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != TaskStatusPending {
		return false
	}

	t.status = TaskStatusRunning
	t.startedAt = time.Now().UTC()

	return true
}

// Complete transitions the task from running to completed and records the
// result. It returns false, changing nothing, when the task is not running.
func (t *Task) Complete(result any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != TaskStatusRunning {
		return false
	}

	t.status = TaskStatusCompleted
	t.result = result
	t.completedAt = time.Now().UTC()

	return true
}

// Fail transitions the task from running to failed and records the failure
// reason. It returns false, changing nothing, when the task is not running.
func (t *Task) Fail(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != TaskStatusRunning {
		return false
	}

	t.status = TaskStatusFailed
	t.errText = reason
	t.completedAt = time.Now().UTC()

	return true
}

// Cancel transitions a pending or running task to cancelled. It returns
// false when the task already reached an end state.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != TaskStatusPending && t.status != TaskStatusRunning {
		return false
	}

	t.status = TaskStatusCancelled
	t.completedAt = time.Now().UTC()

	return true
}

// StartedAt returns when the task started running, or the zero time.
func (t *Task) StartedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.startedAt
}

// CompletedAt returns when the task reached an end state, or the zero time.
func (t *Task) CompletedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.completedAt
}

// Result returns the value recorded by Complete, nil otherwise.
func (t *Task) Result() any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.result
}

// ErrorText returns the reason recorded by Fail, empty otherwise.
func (t *Task) ErrorText() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.errText
}

// CanStart reports whether every dependency appears in the completed set.
func (t *Task) CanStart(completed map[string]struct{}) bool {
	for _, dep := range t.DependsOn {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}

	return true
}

// IsExpired reports whether the task has a timeout, has started, and has
// been running longer than the timeout allows. Tasks waiting in a queue
// never expire.
func (t *Task) IsExpired() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.Timeout <= 0 || t.startedAt.IsZero() {
		return false
	}

	return time.Since(t.startedAt) > t.Timeout
}

// ToMap renders the task as a flat field-keyed map: status as its symbolic
// string, priority as its numeric value, timeout in seconds, timestamps as
// RFC 3339 text with unset ones nil. Persistence, transport and display
// collaborators all build on this representation.
func (t *Task) ToMap() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var timeout any
	if t.Timeout > 0 {
		timeout = t.Timeout.Seconds()
	}

	return map[string]any{
		"id":                    t.ID,
		"description":           t.Description,
		"required_capabilities": t.Requires.Names(),
		"priority":              int(t.Priority),
		"parameters":            t.Params,
		"timeout":               timeout,
		"status":                string(t.status),
		"assigned_agent":        t.assignedTo,
		"created_at":            formatTime(t.CreatedAt),
		"started_at":            formatTime(t.startedAt),
		"completed_at":          formatTime(t.completedAt),
		"result":                t.result,
		"error":                 t.errText,
		"dependencies":          t.DependsOn,
	}
}

// TaskFromMap reconstructs a task from its flat map representation. It
// errors on missing identity fields and unknown status or priority values.
func TaskFromMap(data map[string]any) (*Task, error) {
	id, ok := data["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("task map missing id")
	}

	description, ok := data["description"].(string)
	if !ok {
		return nil, fmt.Errorf("task map missing description")
	}

	createdAt, err := parseTime(data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("task map has invalid created_at: %w", err)
	}

	if createdAt.IsZero() {
		return nil, fmt.Errorf("task map missing created_at")
	}

	status := TaskStatusPending
	if raw, ok := data["status"].(string); ok && raw != "" {
		switch TaskStatus(raw) {
		case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
			status = TaskStatus(raw)
		default:
			return nil, fmt.Errorf("unknown task status %q", raw)
		}
	}

	priority := PriorityMedium
	if raw, ok := data["priority"]; ok && raw != nil {
		value, err := toInt(raw)
		if err != nil {
			return nil, fmt.Errorf("task map has invalid priority: %w", err)
		}

		priority = Priority(value)
		if priority < PriorityLow || priority > PriorityCritical {
			return nil, fmt.Errorf("unknown task priority %d", value)
		}
	}

	task := &Task{
		ID:          id,
		Description: description,
		Requires:    NewCapabilities(toStrings(data["required_capabilities"])...),
		Priority:    priority,
		Params:      toStringMap(data["parameters"]),
		DependsOn:   toStrings(data["dependencies"]),
		CreatedAt:   createdAt,
		status:      status,
		result:      data["result"],
	}

	if raw, ok := data["timeout"]; ok && raw != nil {
		seconds, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("task map has invalid timeout: %w", err)
		}

		task.Timeout = time.Duration(seconds * float64(time.Second))
	}

	if agent, ok := data["assigned_agent"].(string); ok {
		task.assignedTo = agent
	}

	if errText, ok := data["error"].(string); ok {
		task.errText = errText
	}

	if task.startedAt, err = parseTime(data["started_at"]); err != nil {
		return nil, fmt.Errorf("task map has invalid started_at: %w", err)
	}

	if task.completedAt, err = parseTime(data["completed_at"]); err != nil {
		return nil, fmt.Errorf("task map has invalid completed_at: %w", err)
	}

	return task, nil
}
