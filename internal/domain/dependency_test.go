package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewTaskDependency(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	taskID := uuid.New()
	dependsOn := uuid.New()

	dep, err := NewTaskDependency(tenantID, taskID, dependsOn, DependencyBlocks)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if dep.TaskID != taskID || dep.DependsOnTaskID != dependsOn {
		t.Error("Expected edge endpoints to match inputs")
	}

	if dep.Type != DependencyBlocks {
		t.Errorf("Expected type %s, got %s", DependencyBlocks, dep.Type)
	}

	// Self-reference is rejected
	_, err = NewTaskDependency(tenantID, taskID, taskID, DependencyBlocks)
	if err != ErrSelfDependency {
		t.Errorf("Expected error %v, got %v", ErrSelfDependency, err)
	}

	// Unknown type is rejected
	_, err = NewTaskDependency(tenantID, taskID, dependsOn, DependencyType("requires"))
	if err != ErrInvalidDependencyType {
		t.Errorf("Expected error %v, got %v", ErrInvalidDependencyType, err)
	}
}
