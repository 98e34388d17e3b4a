// Package tools holds the tools agents can invoke from a ReAct loop.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hrygo/notecrew/ai/core/llm"
)

// Tool is a named capability an agent can invoke with a text input.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema for the tool's input.
	Parameters() *llm.JSONSchema
	Run(ctx context.Context, input string) (string, error)
}

// Set is a tool dispatch table. It is read-only after construction.
type Set struct {
	tools map[string]Tool
	order []string
}

// NewSet creates a Set. Later tools with a duplicate name replace earlier ones.
func NewSet(tools ...Tool) *Set {
	s := &Set{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, ok := s.tools[t.Name()]; !ok {
			s.order = append(s.order, t.Name())
		}
		s.tools[t.Name()] = t
	}
	return s
}

// Get returns a tool by name.
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of tools.
func (s *Set) Len() int { return len(s.order) }

// Execute runs the named tool. An unknown name or a failing tool yields an
// observation the agent can read; only context cancellation is returned as error.
func (s *Set) Execute(ctx context.Context, name, input string) (string, error) {
	name = strings.TrimSpace(name)
	t, ok := s.tools[name]
	if !ok {
		slog.Warn("tools: tool not found", "tool", name, "available", s.order)
		return fmt.Sprintf("Error: tool %q not found. Available tools: %s", name, strings.Join(s.order, ", ")), nil
	}
	out, err := t.Run(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("tools: tool failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: %v", err), nil
	}
	return out, nil
}

// Descriptors converts the set to LLM tool descriptors.
func (s *Set) Descriptors() []llm.ToolDescriptor {
	out := make([]llm.ToolDescriptor, 0, len(s.order))
	for _, name := range s.order {
		t := s.tools[name]
		out = append(out, llm.ToolDescriptor{Name: name, Description: t.Description(), Parameters: t.Parameters()})
	}
	return out
}

// Functions adapts the set to an llm.FunctionTable. Arguments are re-encoded
// as JSON and passed as the tool input.
func (s *Set) Functions() llm.FunctionTable {
	fns := make(llm.FunctionTable, len(s.tools))
	for name, t := range s.tools {
		t := t
		fns[name] = llm.FunctionFunc(func(ctx context.Context, args map[string]any) (string, error) {
			raw, err := json.Marshal(args)
			if err != nil {
				return "", err
			}
			return t.Run(ctx, string(raw))
		})
	}
	return fns
}

// Describe renders "name: description" lines for prompts, sorted by name.
func (s *Set) Describe() string {
	descriptors := s.Descriptors()
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
	var sb strings.Builder
	for _, d := range descriptors {
		sb.WriteString(d.Name)
		sb.WriteString(": ")
		sb.WriteString(d.Description)
		if d.Parameters != nil {
			if raw, err := json.Marshal(d.Parameters); err == nil {
				sb.WriteString("\n  Input schema: ")
				sb.Write(raw)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
