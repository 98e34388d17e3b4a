package runner

import (
	"sort"
	"sync"
	"time"
)

// TaskStats collects per-task statistics of a ReAct loop.
// TaskStats 收集单个任务 ReAct 循环的统计数据。
type TaskStats struct {
	mu             sync.Mutex
	TaskID         string
	AgentRole      string
	StartTime      time.Time
	Iterations     int
	ToolCallCount  int
	ToolErrorCount int
	ToolDurationMs int64
	LLMDurationMs  int64
	ToolsUsed      map[string]int

	currentToolStart time.Time
	currentToolName  string
	llmStart         time.Time
}

// NewTaskStats starts collecting statistics for a task.
func NewTaskStats(taskID, role string) *TaskStats {
	return &TaskStats{
		TaskID:    taskID,
		AgentRole: role,
		StartTime: time.Now(),
		ToolsUsed: make(map[string]int),
	}
}

// StartLLM marks the start of a model call and counts the iteration.
func (s *TaskStats) StartLLM() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Iterations++
	s.llmStart = time.Now()
}

// EndLLM records the duration of the running model call.
func (s *TaskStats) EndLLM() (durationMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.llmStart.IsZero() {
		durationMs = time.Since(s.llmStart).Milliseconds()
		s.LLMDurationMs += durationMs
		s.llmStart = time.Time{}
	}
	return durationMs
}

// RecordToolUse records the start of a tool call.
func (s *TaskStats) RecordToolUse(toolName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentToolStart = time.Now()
	s.currentToolName = toolName
}

// RecordToolResult records the end of a tool call.
func (s *TaskStats) RecordToolResult(failed bool) (durationMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentToolStart.IsZero() {
		return 0
	}
	durationMs = time.Since(s.currentToolStart).Milliseconds()
	s.ToolDurationMs += durationMs
	s.ToolCallCount++
	if failed {
		s.ToolErrorCount++
	}
	if s.ToolsUsed == nil {
		s.ToolsUsed = make(map[string]int)
	}
	s.ToolsUsed[s.currentToolName]++
	s.currentToolStart = time.Time{}
	s.currentToolName = ""
	return durationMs
}

// ToSummary converts stats to slog-friendly key/value pairs.
func (s *TaskStats) ToSummary() []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	tools := make([]string, 0, len(s.ToolsUsed))
	for tool := range s.ToolsUsed {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	return []any{
		"task_id", s.TaskID,
		"agent_role", s.AgentRole,
		"iterations", s.Iterations,
		"tool_call_count", s.ToolCallCount,
		"tool_error_count", s.ToolErrorCount,
		"tools_used", tools,
		"llm_duration_ms", s.LLMDurationMs,
		"tool_duration_ms", s.ToolDurationMs,
		"total_duration_ms", time.Since(s.StartTime).Milliseconds(),
	}
}
