package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/notecrew/ai/internal/strutil"
)

// Executor kicks off crews and dispatches their tasks to an AgentRunner.
type Executor struct {
	runner   AgentRunner
	config   *ExecutorConfig
	injector *ContextInjector
	queue    QueueObserver
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithQueueObserver reports the number of tasks waiting to start.
func WithQueueObserver(q QueueObserver) ExecutorOption {
	return func(e *Executor) { e.queue = q }
}

// NewExecutor creates a new crew executor.
func NewExecutor(runner AgentRunner, config *ExecutorConfig, opts ...ExecutorOption) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	e := &Executor{
		runner:   runner,
		config:   config,
		injector: NewContextInjector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kickoff runs every task of the crew and returns their outputs.
// Any task failure aborts the crew and is returned as *TaskError.
func (e *Executor) Kickoff(ctx context.Context, crew *Crew) (*CrewOutput, error) {
	traceID := GenerateTraceID()
	startTime := time.Now()

	for _, t := range crew.Tasks {
		t.resetPending()
	}

	scheduler, err := NewDAGScheduler(e, crew.Tasks, traceID)
	if err != nil {
		return nil, fmt.Errorf("crew %s: %w", crew.Name, err)
	}

	slog.Info("executor: crew kickoff",
		"trace_id", traceID,
		"crew", crew.Name,
		"tasks", len(crew.Tasks),
		"process", crew.EffectiveProcess(),
	)
	e.reportQueueDepth(len(crew.Tasks))

	if crew.EffectiveProcess() == ProcessSequential {
		err = scheduler.RunSequential(ctx)
	} else {
		err = scheduler.RunParallel(ctx, e.config.MaxParallelTasks)
	}
	duration := time.Since(startTime)
	if err != nil {
		slog.Error("executor: crew failed",
			"trace_id", traceID,
			"crew", crew.Name,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	out := &CrewOutput{
		CrewName: crew.Name,
		TraceID:  traceID,
		Duration: duration,
		byID:     make(map[string]*TaskOutput, len(crew.Tasks)),
	}
	for _, t := range crew.Tasks {
		o := t.GetOutput()
		out.Tasks = append(out.Tasks, o)
		out.byID[t.ID] = o
	}

	slog.Info("executor: crew completed",
		"trace_id", traceID,
		"crew", crew.Name,
		"duration_ms", duration.Milliseconds(),
	)
	return out, nil
}

// executeTask runs one task and records its output. Panics in the runner are
// converted to errors.
func (e *Executor) executeTask(ctx context.Context, task *Task, tasks map[string]*Task, traceID string) (err error) {
	startTime := time.Now()
	if err := task.MarkRunning(); err != nil {
		return &TaskError{TaskID: task.ID, AgentRole: task.AgentRole, Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("executor: panic in task execution",
				"trace_id", traceID,
				"task_id", task.ID,
				"panic", r,
			)
			task.Fail(fmt.Sprintf("panic: %v", r))
			err = &TaskError{TaskID: task.ID, AgentRole: task.AgentRole, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	taskContext, err := e.injector.Render(task, tasks)
	if err != nil {
		task.Fail(fmt.Sprintf("context injection error: %v", err))
		return &TaskError{TaskID: task.ID, AgentRole: task.AgentRole, Err: err}
	}

	slog.Debug("executor: task start",
		"trace_id", traceID,
		"task_id", task.ID,
		"agent_role", task.AgentRole,
		"image_id", task.ImageID,
	)

	raw, err := e.runner.RunTask(ctx, task, taskContext)
	if err != nil {
		task.Fail(err.Error())
		slog.Warn("executor: task failed",
			"trace_id", traceID,
			"task_id", task.ID,
			"agent_role", task.AgentRole,
			"duration_ms", time.Since(startTime).Milliseconds(),
			"error", err,
		)
		return &TaskError{TaskID: task.ID, AgentRole: task.AgentRole, Err: err}
	}

	out := &TaskOutput{
		TaskID:    task.ID,
		AgentRole: task.AgentRole,
		ImageID:   task.ImageID,
		Raw:       raw,
	}
	if task.Decode != nil {
		out.Structured, out.ParseErr = task.Decode(raw)
		if out.ParseErr != nil {
			slog.Warn("executor: task output not parseable",
				"trace_id", traceID,
				"task_id", task.ID,
				"error", out.ParseErr,
				"raw_preview", strutil.Preview(raw, 120),
			)
		}
	}
	if err := task.Complete(out); err != nil {
		return &TaskError{TaskID: task.ID, AgentRole: task.AgentRole, Err: err}
	}

	slog.Info("executor: task completed",
		"trace_id", traceID,
		"task_id", task.ID,
		"agent_role", task.AgentRole,
		"duration_ms", time.Since(startTime).Milliseconds(),
		"parsed", out.ParseErr == nil,
	)
	return nil
}

func (e *Executor) reportQueueDepth(depth int) {
	if e.queue != nil {
		e.queue.SetTaskQueueDepth(depth)
	}
}
