package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRunner records executions and answers through testify mock.
type MockRunner struct {
	mock.Mock

	mu       sync.Mutex
	order    []string
	contexts map[string]string
}

func (m *MockRunner) RunTask(ctx context.Context, task *Task, taskContext string) (string, error) {
	m.mu.Lock()
	m.order = append(m.order, task.ID)
	if m.contexts == nil {
		m.contexts = make(map[string]string)
	}
	m.contexts[task.ID] = taskContext
	m.mu.Unlock()

	args := m.Called(ctx, task.ID)
	return args.String(0), args.Error(1)
}

func (m *MockRunner) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

type depthRecorder struct {
	mu     sync.Mutex
	depths []int
}

func (d *depthRecorder) SetTaskQueueDepth(depth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depths = append(d.depths, depth)
}

// Helper to create a task
func createTask(id, role string, deps ...string) *Task {
	return &Task{
		ID:           id,
		Name:         id,
		AgentRole:    role,
		Dependencies: deps,
	}
}

// Case 1: 线性依赖 (A -> B -> C)，顺序执行
func TestKickoff_SequentialChain(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunTask", mock.Anything, "strategy").Return("brief", nil)
	runner.On("RunTask", mock.Anything, "copy").Return("draft", nil)
	runner.On("RunTask", mock.Anything, "seo").Return("final", nil)

	executor := NewExecutor(runner, nil)
	// 故意打乱声明顺序，拓扑排序仍应得到 strategy -> copy -> seo
	crew := &Crew{
		Name:    "content",
		Process: ProcessSequential,
		Tasks: []*Task{
			createTask("seo", "xhs_seo_expert", "strategy", "copy"),
			createTask("strategy", "xhs_growth_strategist"),
			createTask("copy", "xhs_content_writer", "strategy"),
		},
	}

	out, err := executor.Kickoff(context.Background(), crew)
	require.NoError(t, err)
	assert.Equal(t, []string{"strategy", "copy", "seo"}, runner.executed())

	seo, ok := out.Output("seo")
	require.True(t, ok)
	assert.Equal(t, "final", seo.Raw)
	assert.Equal(t, "xhs_seo_expert", seo.AgentRole)

	// 下游任务拿到上游输出作为上下文
	assert.Contains(t, runner.contexts["seo"], "### strategy (strategy)\nbrief")
	assert.Contains(t, runner.contexts["seo"], "### copy (copy)\ndraft")
	assert.Empty(t, runner.contexts["strategy"])

	// 输出按 crew 声明顺序排列
	require.Len(t, out.Tasks, 3)
	assert.Equal(t, "seo", out.Tasks[0].TaskID)
	runner.AssertExpectations(t)
}

// Case 2: 扇出 + 汇总 (img_0, img_1, img_2 -> summary)，并行执行
func TestKickoff_ParallelFanIn(t *testing.T) {
	runner := new(MockRunner)
	var running, peak atomic.Int32
	track := func(mock.Arguments) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
	}
	for _, id := range []string{"img_0", "img_1", "img_2"} {
		runner.On("RunTask", mock.Anything, id).Return("analysis "+id, nil).Run(track)
	}
	runner.On("RunTask", mock.Anything, "summary").Return("all good", nil)

	executor := NewExecutor(runner, &ExecutorConfig{MaxParallelTasks: 3})
	crew := &Crew{
		Name:    "visual",
		Process: ProcessParallel,
		Tasks: []*Task{
			createTask("img_0", "xhs_visual_analyst"),
			createTask("img_1", "xhs_visual_analyst"),
			createTask("img_2", "xhs_visual_analyst"),
			createTask("summary", "xhs_visual_analyst", "img_0", "img_1", "img_2"),
		},
	}

	out, err := executor.Kickoff(context.Background(), crew)
	require.NoError(t, err)

	executed := runner.executed()
	assert.Equal(t, "summary", executed[len(executed)-1], "summary waits for every image")
	assert.Greater(t, peak.Load(), int32(1), "image tasks run concurrently")

	summary, _ := out.Output("summary")
	assert.Equal(t, "all good", summary.Raw)
	for _, id := range []string{"img_0", "img_1", "img_2"} {
		assert.Contains(t, runner.contexts["summary"], "analysis "+id)
	}
}

// Case 3: 并发上限
func TestKickoff_RespectsParallelLimit(t *testing.T) {
	runner := new(MockRunner)
	var running, peak atomic.Int32
	runner.On("RunTask", mock.Anything, mock.Anything).Return("ok", nil).Run(func(mock.Arguments) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
	})

	var tasks []*Task
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		tasks = append(tasks, createTask(id, "r"))
	}
	executor := NewExecutor(runner, &ExecutorConfig{MaxParallelTasks: 2})

	_, err := executor.Kickoff(context.Background(), &Crew{Name: "limit", Process: ProcessParallel, Tasks: tasks})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// Case 4: 任一任务失败 → 整个 crew 失败，下游任务被跳过
func TestKickoff_FailureAbortsCrew(t *testing.T) {
	runner := new(MockRunner)
	boom := errors.New("llm exploded")
	runner.On("RunTask", mock.Anything, "img_0").Return("", boom)
	runner.On("RunTask", mock.Anything, "img_1").Return("fine", nil)

	summary := createTask("summary", "xhs_visual_analyst", "img_0", "img_1")
	crew := &Crew{
		Name:    "visual",
		Process: ProcessParallel,
		Tasks: []*Task{
			createTask("img_0", "xhs_visual_analyst"),
			createTask("img_1", "xhs_visual_analyst"),
			summary,
		},
	}
	depths := &depthRecorder{}
	executor := NewExecutor(runner, nil, WithQueueObserver(depths))

	out, err := executor.Kickoff(context.Background(), crew)
	assert.Nil(t, out)
	require.ErrorIs(t, err, boom)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "img_0", taskErr.TaskID)
	assert.Equal(t, "xhs_visual_analyst", taskErr.AgentRole)

	assert.Equal(t, TaskStatusSkipped, summary.GetStatus())
	assert.Equal(t, TaskStatusFailed, crew.Tasks[0].GetStatus())
	assert.NotContains(t, runner.executed(), "summary")

	depths.mu.Lock()
	defer depths.mu.Unlock()
	assert.Equal(t, 3, depths.depths[0])
	assert.Equal(t, 0, depths.depths[len(depths.depths)-1])
}

// Case 5: 图校验：未知依赖、重复 ID、环
func TestKickoff_InvalidGraph(t *testing.T) {
	tests := []struct {
		name  string
		tasks []*Task
		want  string
	}{
		{"unknown dependency", []*Task{createTask("a", "r", "ghost")}, "depends on unknown task ghost"},
		{"duplicate id", []*Task{createTask("a", "r"), createTask("a", "r")}, "duplicate task id a"},
		{"cycle", []*Task{createTask("a", "r", "b"), createTask("b", "r", "a")}, "cycle detected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(MockRunner)
			_, err := NewExecutor(runner, nil).Kickoff(context.Background(), &Crew{Name: "bad", Tasks: tt.tasks})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			runner.AssertNotCalled(t, "RunTask", mock.Anything, mock.Anything)
		})
	}
}

// Case 6: 超时取消
func TestKickoff_ContextDeadline(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunTask", mock.Anything, "slow").Return("", context.DeadlineExceeded).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewExecutor(runner, nil).Kickoff(ctx, &Crew{
		Name:    "slow",
		Process: ProcessParallel,
		Tasks:   []*Task{createTask("slow", "r")},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKickoff_DecodesStructuredOutput(t *testing.T) {
	type brief struct {
		Title string `json:"title"`
	}
	runner := new(MockRunner)
	runner.On("RunTask", mock.Anything, "good").Return("Final Answer: ```json\n{\"title\":\"咖啡\"}\n```", nil)
	runner.On("RunTask", mock.Anything, "bad").Return("sorry, no JSON today", nil)

	good := createTask("good", "r")
	good.Decode = JSONOutput[brief]()
	bad := createTask("bad", "r")
	bad.Decode = JSONOutput[brief]()

	out, err := NewExecutor(runner, nil).Kickoff(context.Background(), &Crew{Name: "decode", Tasks: []*Task{good, bad}})
	require.NoError(t, err, "parse failures do not fail the crew")

	goodOut, _ := out.Output("good")
	v, ok := Structured[brief](goodOut)
	require.True(t, ok)
	assert.Equal(t, "咖啡", v.Title)

	badOut, _ := out.Output("bad")
	assert.False(t, badOut.Parsed())
	assert.Error(t, badOut.ParseErr)
	assert.Equal(t, "sorry, no JSON today", badOut.Raw)
}

func TestKickoff_RecoversPanic(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunTask", mock.Anything, "p").Return("", nil).Run(func(mock.Arguments) {
		panic("nil map")
	})

	_, err := NewExecutor(runner, nil).Kickoff(context.Background(), &Crew{Name: "panic", Tasks: []*Task{createTask("p", "r")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil map")
}

func TestCrewRoles(t *testing.T) {
	crew := &Crew{Tasks: []*Task{
		createTask("a", "xhs_visual_analyst"),
		createTask("b", "xhs_visual_analyst"),
		createTask("c", "xhs_image_editor"),
	}}
	assert.Equal(t, []string{"xhs_visual_analyst", "xhs_image_editor"}, crew.Roles())
}

func TestCrewEffectiveProcess(t *testing.T) {
	async := createTask("a", "r")
	async.Async = true

	assert.Equal(t, ProcessSequential, (&Crew{Tasks: []*Task{createTask("b", "r")}}).EffectiveProcess())
	assert.Equal(t, ProcessParallel, (&Crew{Tasks: []*Task{createTask("b", "r"), async}}).EffectiveProcess())
	assert.Equal(t, ProcessSequential, (&Crew{Process: ProcessSequential, Tasks: []*Task{async}}).EffectiveProcess())
}
