// Package runner executes crew tasks with a ReAct loop: the agent thinks,
// optionally calls one of its tools, reads the observation, and repeats until
// it gives a final answer.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"

	agents "github.com/hrygo/notecrew/ai/agents"
	"github.com/hrygo/notecrew/ai/agents/orchestrator"
	"github.com/hrygo/notecrew/ai/agents/registry"
	"github.com/hrygo/notecrew/ai/core/llm"
	"github.com/hrygo/notecrew/ai/internal/strutil"
)

// observationStop keeps the model from hallucinating tool results.
const observationStop = "\n" + observationMarker

// AgentFactory builds a fresh agent for a role.
type AgentFactory interface {
	New(role string) (*registry.Agent, error)
}

// Option customizes a ReActRunner.
type Option func(*ReActRunner)

// WithEventCallback receives every reasoning step.
func WithEventCallback(cb EventCallback) Option {
	return func(r *ReActRunner) { r.onEvent = SafeCallback(cb) }
}

// ReActRunner implements orchestrator.AgentRunner.
type ReActRunner struct {
	agents  AgentFactory
	onEvent SafeCallbackFunc
}

var _ orchestrator.AgentRunner = (*ReActRunner)(nil)

// New creates a runner that takes its agents from factory.
func New(factory AgentFactory, opts ...Option) *ReActRunner {
	r := &ReActRunner{agents: factory}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunTask runs the ReAct loop for task and returns the final answer.
func (r *ReActRunner) RunTask(ctx context.Context, task *orchestrator.Task, taskContext string) (string, error) {
	agent, err := r.agents.New(task.AgentRole)
	if err != nil {
		return "", err
	}

	stats := NewTaskStats(task.ID, agent.Role)
	defer func() {
		slog.Debug("runner: task stats", stats.ToSummary()...)
	}()

	messages := []llm.Message{
		llm.SystemPrompt(systemPrompt(agent)),
		llm.UserMessage(taskPrompt(task, taskContext)),
	}
	opts := []llm.CallOption{
		llm.WithStop(observationStop),
		llm.WithAgentRole(agent.Role),
		llm.WithTools(agent.Tools.Descriptors()...),
		llm.WithFunctions(agent.Tools.Functions()),
	}

	maxIter := agent.MaxIter()
	for i := 1; i <= maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		stats.StartLLM()
		answer, err := agent.Model.Call(ctx, messages, opts...)
		llmMs := stats.EndLLM()
		if err != nil {
			return "", err
		}

		s := parseStep(answer)
		meta := func() *EventMeta {
			return &EventMeta{TaskID: task.ID, AgentRole: agent.Role, Iteration: i}
		}
		if s.Thought != "" {
			m := meta()
			m.DurationMs = llmMs
			r.emit(NewEvent(EventThought, s.Thought, m))
		}

		if s.IsFinal {
			m := meta()
			m.OutputSummary = strutil.Preview(s.FinalAnswer, 120)
			r.emit(NewEvent(EventFinalAnswer, s.FinalAnswer, m))
			return s.FinalAnswer, nil
		}

		observation, err := r.useTool(ctx, agent, stats, s, meta())
		if err != nil {
			return "", err
		}
		messages = append(messages, llm.AssistantMessage(
			strings.TrimRight(answer, " \n")+"\n"+observationMarker+" "+observation,
		))
	}

	return "", fmt.Errorf("%w: task %s after %d iterations", agents.ErrAgentIterations, task.ID, maxIter)
}

func (r *ReActRunner) useTool(ctx context.Context, agent *registry.Agent, stats *TaskStats, s step, meta *EventMeta) (string, error) {
	meta.ToolName = s.Action
	meta.InputSummary = strutil.Preview(s.ActionInput, 80)
	r.emit(NewEvent(EventToolUse, s.ActionInput, meta))

	stats.RecordToolUse(s.Action)
	start := time.Now()
	observation, err := agent.Tools.Execute(ctx, s.Action, s.ActionInput)
	if err != nil {
		return "", err
	}
	failed := strings.HasPrefix(observation, "Error:")
	stats.RecordToolResult(failed)

	result := *meta
	result.DurationMs = time.Since(start).Milliseconds()
	result.Status = "success"
	if failed {
		result.Status = "error"
	}
	result.OutputSummary = strutil.Preview(observation, 80)
	r.emit(NewEvent(EventToolResult, observation, &result))
	return observation, nil
}

func (r *ReActRunner) emit(ev *Event) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

func systemPrompt(agent *registry.Agent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. %s\nYour personal goal is: %s\n", agent.Persona.Role, agent.Persona.Backstory, agent.Persona.Goal)

	if agent.Tools.Len() == 0 {
		sb.WriteString(heredoc.Doc(`
			To give my best complete final answer to the task respond using the exact following format:

			Thought: I now can give a great answer
			Final Answer: Your final answer must be the great and the most complete as possible, it must be outcome described.
		`))
		return sb.String()
	}

	sb.WriteString("You ONLY have access to the following tools, and should NEVER make up tools that are not listed here:\n\n")
	sb.WriteString(agent.Tools.Describe())
	sb.WriteString("\n")
	if agent.Multimodal {
		sb.WriteString("Images loaded with " + llm.ImageToolName + " are attached to the conversation, look at them before you answer.\n")
	}
	sb.WriteString("\n")
	sb.WriteString(heredoc.Docf(`
		Use the following format:

		Thought: you should always think about what to do
		Action: the action to take, only one name of [%s], just the name, exactly as it's written.
		Action Input: the input to the action, just a simple JSON object, enclosed in curly braces, using " to wrap keys and values.
		Observation: the result of the action

		Once all necessary information is gathered:

		Thought: I now know the final answer
		Final Answer: the final answer to the original input question
	`, strings.Join(agent.Tools.Names(), ", ")))
	return sb.String()
}

func taskPrompt(task *orchestrator.Task, taskContext string) string {
	var sb strings.Builder
	sb.WriteString("Current Task: ")
	sb.WriteString(strings.TrimSpace(task.Description))
	if task.ExpectedOutput != "" {
		sb.WriteString("\n\nThis is the expect criteria for your final answer: ")
		sb.WriteString(strings.TrimSpace(task.ExpectedOutput))
		sb.WriteString("\nyou MUST return the actual complete content as the final answer, not a summary.")
	}
	if taskContext != "" {
		sb.WriteString("\n\nThis is the context you're working with:\n")
		sb.WriteString(taskContext)
	}
	sb.WriteString("\n\nBegin! This is VERY important to you, use the tools available and give your best Final Answer, your job depends on it!\n\nThought:")
	return sb.String()
}
