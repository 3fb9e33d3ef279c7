package core

import "context"

// Executor supplies the concrete action performed when an agent executes a
// task: given the task, produce a result value or fail with an error.
// Agents and the engine govern when and how often an executor runs, never
// what it does.
type Executor interface {
	Execute(ctx context.Context, task *Task) (any, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *Task) (any, error)

// Execute invokes the wrapped function.
func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (any, error) {
	return f(ctx, task)
}
