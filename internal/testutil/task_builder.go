package testutil

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// TaskBuilder provides a fluent helper for constructing tasks in tests.
// Example:
//
//	task := NewTaskBuilder("crunch numbers").Requires("calculation").Priority(core.PriorityHigh).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type TaskBuilder struct {
	description string
	requires    []string
	priority    core.Priority
	params      map[string]any
	timeout     time.Duration
	dependsOn   []string
	createdAt   *time.Time
}

// NewTaskBuilder creates a builder with default priority medium.
func NewTaskBuilder(description string) *TaskBuilder {
	return &TaskBuilder{description: description, priority: core.PriorityMedium}
}

// Requires appends required capability names (chainable).
func (b *TaskBuilder) Requires(names ...string) *TaskBuilder {
	b.requires = append(b.requires, names...)
	return b
}

// Priority sets the task priority (chainable).
func (b *TaskBuilder) Priority(p core.Priority) *TaskBuilder { b.priority = p; return b }

// Param sets a single execution parameter (chainable).
func (b *TaskBuilder) Param(key string, val any) *TaskBuilder {
	if b.params == nil {
		b.params = map[string]any{}
	}
	b.params[key] = val
	return b
}

// Timeout sets the execution deadline (chainable).
func (b *TaskBuilder) Timeout(d time.Duration) *TaskBuilder { b.timeout = d; return b }

// DependsOn appends prerequisite task IDs (chainable).
func (b *TaskBuilder) DependsOn(ids ...string) *TaskBuilder {
	b.dependsOn = append(b.dependsOn, ids...)
	return b
}

// CreatedAt pins the creation timestamp (chainable). Use in tests where
// queue ordering matters.
func (b *TaskBuilder) CreatedAt(ts time.Time) *TaskBuilder { b.createdAt = &ts; return b }

// Build constructs the core.Task value.
func (b *TaskBuilder) Build() *core.Task {
	task := core.NewTask(b.description, func(o *core.TaskOptions) {
		o.Requires = b.requires
		o.Priority = b.priority
		o.Params = b.params
		o.Timeout = b.timeout
		o.DependsOn = b.dependsOn
	})

	if b.createdAt != nil {
		task.CreatedAt = *b.createdAt
	}

	return task
}
