package runner

import (
	"log/slog"
)

// Event types emitted while an agent works on a task.
const (
	EventThought     = "thought"
	EventToolUse     = "tool_use"
	EventToolResult  = "tool_result"
	EventFinalAnswer = "final_answer"
)

// EventMeta contains metadata for a step event.
// EventMeta 包含步骤事件的元数据。
type EventMeta struct {
	TaskID    string `json:"task_id"`
	AgentRole string `json:"agent_role"`

	// Iteration is the 1-based ReAct step.
	Iteration int `json:"iteration"`

	// Tool call info
	ToolName string `json:"tool_name,omitempty"`
	Status   string `json:"status,omitempty"` // "success", "error"

	DurationMs int64 `json:"duration_ms"`

	// Summaries for logs
	InputSummary  string `json:"input_summary,omitempty"`
	OutputSummary string `json:"output_summary,omitempty"`
}

// Event is a single step of an agent's reasoning.
type Event struct {
	Type string
	Data string
	Meta *EventMeta // never nil when created via NewEvent
}

// NewEvent creates an Event with a guaranteed non-nil Meta.
// NewEvent 创建 Event，确保 Meta 非 nil。
func NewEvent(eventType, data string, meta *EventMeta) *Event {
	if meta == nil {
		meta = &EventMeta{}
	}
	return &Event{Type: eventType, Data: data, Meta: meta}
}

// EventCallback is the callback function type for agent step events.
// EventCallback 是代理步骤事件的回调函数类型。
type EventCallback func(ev *Event) error

// SafeCallbackFunc is a callback that logs errors instead of returning them.
type SafeCallbackFunc func(ev *Event)

// SafeCallback wraps an EventCallback so a failing observer never stops a task.
// SafeCallback 包装 EventCallback，回调失败只记录日志。
func SafeCallback(callback EventCallback) SafeCallbackFunc {
	if callback == nil {
		return nil
	}
	return func(ev *Event) {
		if err := callback(ev); err != nil {
			slog.Warn("runner: event callback failed",
				"event_type", ev.Type,
				"task_id", ev.Meta.TaskID,
				"error", err)
		}
	}
}
