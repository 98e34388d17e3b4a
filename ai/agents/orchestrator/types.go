// Package orchestrator runs crews: groups of agent tasks linked by dependencies.
// Independent tasks fan out concurrently and dependent tasks wait for their inputs.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// OutputDecoder turns an agent's raw answer into a structured value.
type OutputDecoder func(raw string) (any, error)

// Task is a unit of work executed by one agent.
type Task struct {
	// ID is unique within a crew (e.g. "visual_img_0", "content_strategy").
	ID string `json:"id"`

	// Name is the template the task was built from.
	Name string `json:"name"`

	Description    string `json:"description"`
	ExpectedOutput string `json:"expected_output"`

	// AgentRole selects the agent from the registry.
	AgentRole string `json:"agent_role"`

	// Dependencies lists task IDs whose outputs are injected as context.
	Dependencies []string `json:"dependencies,omitempty"`

	// ImageID is the join key of per-image tasks; empty for aggregate tasks.
	ImageID string `json:"image_id,omitempty"`

	// Async marks a task that may run alongside its siblings. It selects the
	// process of a crew that does not set one.
	Async bool `json:"async,omitempty"`

	// Decode parses the raw answer. Nil keeps only the raw text.
	Decode OutputDecoder `json:"-"`

	Status TaskStatus  `json:"status"`
	Output *TaskOutput `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`

	// mu protects Status, Output and Error
	mu sync.RWMutex
}

// TaskOutput is the result of a completed task.
type TaskOutput struct {
	TaskID    string
	AgentRole string
	ImageID   string
	Raw       string
	// Structured holds the decoded value when Decode succeeded.
	Structured any
	// ParseErr is set when Decode failed; Raw is still available.
	ParseErr error
}

// Parsed reports whether a structured value is available.
func (o *TaskOutput) Parsed() bool {
	return o != nil && o.ParseErr == nil && o.Structured != nil
}

// GetStatus returns the current status thread-safely.
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// GetOutput returns the task output thread-safely.
func (t *Task) GetOutput() *TaskOutput {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Output
}

// GetError returns the task error thread-safely.
func (t *Task) GetError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// MarkRunning transitions the task to running state.
func (t *Task) MarkRunning() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status != TaskStatusPending {
		return fmt.Errorf("task %s: can only run a pending task (status: %s)", t.ID, t.Status)
	}
	t.Status = TaskStatusRunning
	return nil
}

// Complete transitions a running task to completed with its output.
func (t *Task) Complete(out *TaskOutput) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status != TaskStatusRunning {
		return errors.New("can only complete running task")
	}
	t.Status = TaskStatusCompleted
	t.Output = out
	return nil
}

// Fail transitions a running task to failed.
func (t *Task) Fail(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = TaskStatusFailed
	t.Error = errMsg
}

func (t *Task) resetPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = TaskStatusPending
	t.Output = nil
	t.Error = ""
}

// SetSkipped marks a task that never ran because the crew stopped.
func (t *Task) SetSkipped(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status.IsTerminal() {
		return
	}
	t.Status = TaskStatusSkipped
	t.Error = reason
}

// TaskStatus represents the status of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	// TaskStatusSkipped indicates the task never ran because the crew stopped early
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsTerminal returns true if the status is a final state (Completed, Failed, Skipped).
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusFailed || ts == TaskStatusSkipped
}

// Process selects how a crew dispatches its tasks.
type Process string

const (
	// ProcessParallel runs every task as soon as its dependencies completed.
	ProcessParallel Process = "parallel"
	// ProcessSequential runs tasks one at a time in dependency order.
	ProcessSequential Process = "sequential"
)

// Crew is a set of tasks kicked off together.
type Crew struct {
	Name    string
	Tasks   []*Task
	Process Process
}

// EffectiveProcess returns Process, or derives it from the tasks' Async flags
// when unset.
func (c *Crew) EffectiveProcess() Process {
	if c.Process != "" {
		return c.Process
	}
	for _, t := range c.Tasks {
		if t.Async {
			return ProcessParallel
		}
	}
	return ProcessSequential
}

// Roles returns the distinct agent roles of the crew in task order.
func (c *Crew) Roles() []string {
	seen := make(map[string]bool)
	var roles []string
	for _, t := range c.Tasks {
		if !seen[t.AgentRole] {
			seen[t.AgentRole] = true
			roles = append(roles, t.AgentRole)
		}
	}
	return roles
}

// CrewOutput holds the outputs of a finished crew.
type CrewOutput struct {
	CrewName string
	TraceID  string
	// Tasks lists outputs in crew order.
	Tasks    []*TaskOutput
	Duration time.Duration

	byID map[string]*TaskOutput
}

// Output returns the output of the task with the given ID.
func (o *CrewOutput) Output(taskID string) (*TaskOutput, bool) {
	out, ok := o.byID[taskID]
	return out, ok
}

// AgentRunner executes a single task with its agent.
type AgentRunner interface {
	// RunTask returns the agent's final answer. taskContext carries the
	// rendered outputs of the task's dependencies.
	RunTask(ctx context.Context, task *Task, taskContext string) (string, error)
}

// QueueObserver is notified of the number of tasks waiting to start.
type QueueObserver interface {
	SetTaskQueueDepth(depth int)
}

// ExecutorConfig contains configuration for the executor.
type ExecutorConfig struct {
	// MaxParallelTasks is the maximum number of tasks running at once
	MaxParallelTasks int `json:"max_parallel_tasks"`
}

// DefaultExecutorConfig returns the default configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxParallelTasks: 4,
	}
}

// TaskError identifies the task that stopped a crew.
type TaskError struct {
	TaskID    string
	AgentRole string
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.AgentRole, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// GenerateTraceID generates a new trace ID using crypto/rand for secure random bytes.
func GenerateTraceID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		slog.Warn("GenerateTraceID: crypto rand failed, using fallback", "error", err)
		return fmt.Sprintf("crew-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("crew-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(bytes))
}
