package engine

import (
	"fmt"

	"github.com/maestroflow/maestro/internal/model"
)

// validateGraph rejects workflows whose dependency edges reference unknown
// task ids or form a cycle. Validation happens once at build time so a
// malformed plan surfaces immediately instead of leaving tasks pending
// forever.
func validateGraph(wf *model.Workflow) error {
	for id, task := range wf.Tasks {
		for _, depID := range task.DependsOn {
			if depID == id {
				return fmt.Errorf("%w: task %s depends on itself", ErrInvalidPlan, id)
			}
			if _, ok := wf.Tasks[depID]; !ok {
				return fmt.Errorf("%w: task %s depends on unknown task %s", ErrInvalidPlan, id, depID)
			}
		}
	}

	// DFS with coloring: white (unvisited), gray (on path), black (done).
	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if onPath[id] {
			return fmt.Errorf("%w: dependency cycle through task %s", ErrInvalidPlan, id)
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		onPath[id] = true
		for _, depID := range wf.Tasks[id].DependsOn {
			if err := visit(depID); err != nil {
				return err
			}
		}
		onPath[id] = false
		return nil
	}

	for id := range wf.Tasks {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
