package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// Dependency graph errors
var (
	// ErrDependencyCycle is returned when adding an edge would make the
	// blocks graph cyclic.
	ErrDependencyCycle = errors.New("dependency would create a cycle")
)

// DependencyChecker gates dispatch on the task dependency graph and keeps
// that graph acyclic.
type DependencyChecker struct {
	deps store.DependencyStore
}

// NewDependencyChecker creates a DependencyChecker backed by the given store.
func NewDependencyChecker(deps store.DependencyStore) *DependencyChecker {
	return &DependencyChecker{deps: deps}
}

// HasUnmetDependencies reports whether the task has any blocks dependency
// on a task that has not completed. Suggests and related edges never gate.
func (c *DependencyChecker) HasUnmetDependencies(ctx context.Context, taskID uuid.UUID) (bool, error) {
	unmet, err := c.deps.ListUnmetBlocking(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to check blocking dependencies: %w", err)
	}
	return len(unmet) > 0, nil
}

// AddDependency creates a dependency edge after validating it: no
// self-reference, no duplicate edge, and for blocks edges no cycle.
//
// The cycle check walks the blocks graph from the proposed prerequisite;
// reaching the dependent task means the new edge would close a loop.
func (c *DependencyChecker) AddDependency(
	ctx context.Context,
	tenantID, taskID, dependsOnTaskID uuid.UUID,
	depType domain.DependencyType,
) (*domain.TaskDependency, error) {
	dep, err := domain.NewTaskDependency(tenantID, taskID, dependsOnTaskID, depType)
	if err != nil {
		return nil, err
	}

	if depType == domain.DependencyBlocks {
		cyclic, err := c.wouldCycle(ctx, taskID, dependsOnTaskID)
		if err != nil {
			return nil, err
		}
		if cyclic {
			return nil, fmt.Errorf("%w: %s already depends on %s",
				ErrDependencyCycle, dependsOnTaskID, taskID)
		}
	}

	if err := c.deps.Create(ctx, dep); err != nil {
		return nil, fmt.Errorf("failed to create dependency: %w", err)
	}

	return dep, nil
}

// wouldCycle reports whether taskID is reachable from start by following
// blocks edges. Breadth-first with a visited set, so shared prerequisites
// do not blow up the walk.
func (c *DependencyChecker) wouldCycle(ctx context.Context, taskID, start uuid.UUID) (bool, error) {
	visited := map[uuid.UUID]bool{start: true}
	frontier := []uuid.UUID{start}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		next, err := c.deps.ListBlocksFrom(ctx, current)
		if err != nil {
			return false, fmt.Errorf("failed to walk dependency graph: %w", err)
		}

		for _, id := range next {
			if id == taskID {
				return true, nil
			}
			if !visited[id] {
				visited[id] = true
				frontier = append(frontier, id)
			}
		}
	}

	return false, nil
}
