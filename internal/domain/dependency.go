package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DependencyType classifies an edge between two tasks.
type DependencyType string

// Possible dependency types
const (
	// DependencyBlocks is an enforced gate: the dependent task is not
	// dispatched until the referenced task completes.
	DependencyBlocks DependencyType = "blocks"

	// DependencySuggests is advisory ordering with no dispatch effect.
	DependencySuggests DependencyType = "suggests"

	// DependencyRelated is a reference-only link.
	DependencyRelated DependencyType = "related"
)

// Common validation errors for TaskDependency
var (
	ErrEmptyDependencyID     = errors.New("dependency ID cannot be empty")
	ErrEmptyDependencyTaskID = errors.New("dependency task IDs cannot be empty")
	ErrSelfDependency        = errors.New("task cannot depend on itself")
	ErrInvalidDependencyType = errors.New("invalid dependency type")
)

// TaskDependency is a directed edge: TaskID depends on DependsOnTaskID.
type TaskDependency struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        uuid.UUID      `json:"tenant_id"`
	TaskID          uuid.UUID      `json:"task_id"`
	DependsOnTaskID uuid.UUID      `json:"depends_on_task_id"`
	Type            DependencyType `json:"type"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewTaskDependency creates a dependency edge of the given type.
// Returns an error if validation fails, including self-reference.
func NewTaskDependency(
	tenantID, taskID, dependsOnTaskID uuid.UUID,
	depType DependencyType,
) (*TaskDependency, error) {
	dep := &TaskDependency{
		ID:              uuid.New(),
		TenantID:        tenantID,
		TaskID:          taskID,
		DependsOnTaskID: dependsOnTaskID,
		Type:            depType,
		CreatedAt:       time.Now().UTC(),
	}

	if err := dep.Validate(); err != nil {
		return nil, err
	}

	return dep, nil
}

// Validate checks if the TaskDependency has valid data.
// Returns an error if any field fails validation.
func (d *TaskDependency) Validate() error {
	if d.ID == uuid.Nil {
		return ErrEmptyDependencyID
	}

	if d.TaskID == uuid.Nil || d.DependsOnTaskID == uuid.Nil {
		return ErrEmptyDependencyTaskID
	}

	if d.TaskID == d.DependsOnTaskID {
		return ErrSelfDependency
	}

	if !isValidDependencyType(d.Type) {
		return ErrInvalidDependencyType
	}

	return nil
}

// isValidDependencyType checks if the given type is a valid DependencyType.
func isValidDependencyType(t DependencyType) bool {
	switch t {
	case DependencyBlocks, DependencySuggests, DependencyRelated:
		return true
	default:
		return false
	}
}
