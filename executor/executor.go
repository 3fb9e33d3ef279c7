package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// ErrNoExecutor is returned by Registry.Execute when neither a route nor a
// fallback covers a task's required capabilities.
var ErrNoExecutor = errors.New("no executor registered for task")

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Fallback handles tasks no route matches. Nil means such tasks fail
	// with ErrNoExecutor.
	Fallback core.Executor
}

// Registry routes tasks to executors by required capability. A task's
// required capabilities are checked in sorted name order, so routing stays
// deterministic when a task matches several routes.
type Registry struct {
	mu       sync.RWMutex
	routes   map[string]core.Executor
	fallback core.Executor
}

// NewRegistry creates a new Registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		routes:   make(map[string]core.Executor),
		fallback: opts.Fallback,
	}
}

// Route registers an executor for a capability, replacing any previous
// route for the same capability.
func (r *Registry) Route(capability string, exec core.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[capability] = exec
}

// Execute implements core.Executor by dispatching to the first route that
// matches one of the task's required capabilities.
func (r *Registry) Execute(ctx context.Context, task *core.Task) (any, error) {
	exec := r.match(task)
	if exec == nil {
		return nil, fmt.Errorf("task %q: %w", task.ID, ErrNoExecutor)
	}

	return exec.Execute(ctx, task)
}

func (r *Registry) match(task *core.Task) core.Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range task.Requires.Names() {
		if exec, ok := r.routes[name]; ok {
			return exec
		}
	}

	return r.fallback
}
