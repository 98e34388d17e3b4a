package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DAGScheduler validates a crew's dependency graph and dispatches its tasks.
// Validation uses Kahn's algorithm; dispatch gates each task on its
// dependencies' completion.
type DAGScheduler struct {
	tasks    map[string]*Task
	graph    map[string][]string // upstream -> downstreams
	inDegree map[string]int
	order    []*Task // topological order, stable w.r.t. crew order

	executor *Executor
	traceID  string
	pending  atomic.Int32
}

// NewDAGScheduler builds the graph and rejects duplicate IDs, unknown
// dependencies and cycles.
func NewDAGScheduler(executor *Executor, tasks []*Task, traceID string) (*DAGScheduler, error) {
	s := &DAGScheduler{
		tasks:    make(map[string]*Task, len(tasks)),
		graph:    make(map[string][]string),
		inDegree: make(map[string]int, len(tasks)),
		executor: executor,
		traceID:  traceID,
	}

	for _, task := range tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("task with role %s has no id", task.AgentRole)
		}
		if _, dup := s.tasks[task.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %s", task.ID)
		}
		s.tasks[task.ID] = task
		s.inDegree[task.ID] = 0
	}

	for _, task := range tasks {
		for _, depID := range task.Dependencies {
			if _, exists := s.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			s.graph[depID] = append(s.graph[depID], task.ID)
			s.inDegree[task.ID]++
		}
	}

	order, err := s.topologicalOrder(tasks)
	if err != nil {
		return nil, err
	}
	s.order = order
	s.pending.Store(int32(len(tasks)))
	return s, nil
}

// topologicalOrder runs Kahn's algorithm. Ready tasks are taken in crew order.
func (s *DAGScheduler) topologicalOrder(tasks []*Task) ([]*Task, error) {
	inDegree := make(map[string]int, len(s.inDegree))
	for id, d := range s.inDegree {
		inDegree[id] = d
	}

	var ready []string
	for _, task := range tasks {
		if inDegree[task.ID] == 0 {
			ready = append(ready, task.ID)
		}
	}

	order := make([]*Task, 0, len(tasks))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, s.tasks[id])
		for _, downstream := range s.graph[id] {
			inDegree[downstream]--
			if inDegree[downstream] == 0 {
				ready = append(ready, downstream)
			}
		}
	}

	if len(order) != len(tasks) {
		return nil, fmt.Errorf("cycle detected: %d/%d tasks schedulable", len(order), len(tasks))
	}
	return order, nil
}

// RunSequential executes tasks one at a time in topological order.
func (s *DAGScheduler) RunSequential(ctx context.Context) error {
	for _, task := range s.order {
		if err := ctx.Err(); err != nil {
			s.skipRemaining(err)
			return err
		}
		if err := s.run(ctx, task); err != nil {
			s.skipRemaining(err)
			return err
		}
	}
	return nil
}

// RunParallel starts one goroutine per task. Each waits for its dependencies,
// then for a worker slot. The first failure cancels the rest.
func (s *DAGScheduler) RunParallel(ctx context.Context, maxParallel int) error {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	done := make(map[string]chan struct{}, len(s.order))
	for id := range s.tasks {
		done[id] = make(chan struct{})
	}

	sem := make(chan struct{}, maxParallel)
	g, gctx := errgroup.WithContext(ctx)

	for _, task := range s.order {
		g.Go(func() error {
			for _, depID := range task.Dependencies {
				select {
				case <-done[depID]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			if err := s.run(gctx, task); err != nil {
				return err
			}
			close(done[task.ID])
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		s.skipRemaining(err)
	}
	return err
}

func (s *DAGScheduler) run(ctx context.Context, task *Task) error {
	s.executor.reportQueueDepth(int(s.pending.Add(-1)))
	return s.executor.executeTask(ctx, task, s.tasks, s.traceID)
}

func (s *DAGScheduler) skipRemaining(cause error) {
	skipped := 0
	for _, task := range s.order {
		if task.GetStatus() == TaskStatusPending {
			task.SetSkipped(fmt.Sprintf("skipped: %v", cause))
			skipped++
		}
	}
	if skipped > 0 {
		slog.Warn("executor: skipped pending tasks",
			"trace_id", s.traceID,
			"skipped", skipped,
			"cause", cause,
		)
	}
	s.executor.reportQueueDepth(0)
}
