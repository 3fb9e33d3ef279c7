package scheduler

import (
	"fmt"

	"github.com/gammazero/toposort"
	"github.com/hupe1980/taskmesh/core"
)

// ValidatePlan checks that a batch of interdependent tasks forms a directed
// acyclic graph before it enters the backlog. Dependencies may point at
// other tasks in the batch or at IDs in the completed set; anything else is
// an error, as is any cycle. It returns the batch's task IDs in a valid
// execution order.
func ValidatePlan(tasks []*core.Task, completed map[string]struct{}) ([]string, error) {
	inPlan := make(map[string]struct{}, len(tasks))

	for _, task := range tasks {
		if _, ok := inPlan[task.ID]; ok {
			return nil, fmt.Errorf("plan contains task %q twice", task.ID)
		}

		inPlan[task.ID] = struct{}{}
	}

	var edges []toposort.Edge

	for _, task := range tasks {
		planDeps := 0

		for _, dep := range task.DependsOn {
			if _, ok := inPlan[dep]; ok {
				edges = append(edges, toposort.Edge{dep, task.ID})
				planDeps++

				continue
			}

			if _, ok := completed[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", task.ID, dep)
			}
		}

		if planDeps == 0 {
			// No in-plan predecessor; anchor the node so the sort still sees it.
			edges = append(edges, toposort.Edge{nil, task.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("plan contains a dependency cycle: %w", err)
	}

	order := make([]string, 0, len(tasks))

	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	return order, nil
}
