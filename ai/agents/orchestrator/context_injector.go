package orchestrator

import (
	"fmt"
	"strings"
)

// ContextInjector renders the outputs of a task's dependencies as the
// context handed to its agent.
type ContextInjector struct{}

// NewContextInjector creates a new context injector.
func NewContextInjector() *ContextInjector {
	return &ContextInjector{}
}

// Render concatenates dependency outputs in declaration order. Every
// dependency must exist and be completed.
func (ci *ContextInjector) Render(task *Task, tasks map[string]*Task) (string, error) {
	if len(task.Dependencies) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for i, depID := range task.Dependencies {
		dep, exists := tasks[depID]
		if !exists {
			return "", fmt.Errorf("reference not found: task '%s' does not exist", depID)
		}
		status := dep.GetStatus()
		if status != TaskStatusCompleted {
			return "", fmt.Errorf("reference invalid: task '%s' is not completed (status: %s)", depID, status)
		}

		if i > 0 {
			sb.WriteString("\n\n")
		}
		label := dep.Name
		if label == "" {
			label = dep.ID
		}
		fmt.Fprintf(&sb, "### %s (%s)\n", label, dep.ID)
		sb.WriteString(strings.TrimSpace(dep.GetOutput().Raw))
	}
	return sb.String(), nil
}
