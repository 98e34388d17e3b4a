package llm

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Message roles accepted by the chat completions endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content part types.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	Type     string
	Text     string
	ImageURL string
}

// Message represents a chat message.
// Either Content or Parts carries the body; tool replies also set ToolCallID.
type Message struct {
	Role       string
	Content    string
	Parts      []ContentPart
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall represents a request to call a function.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDescriptor represents a function/tool available to the LLM.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  *JSONSchema
}

// HasImage reports whether the message carries an image part.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == PartImageURL {
			return true
		}
	}
	return false
}

// Validate checks a single message. idx is used for error messages only.
func (m Message) Validate(idx int) error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		if strings.TrimSpace(m.Content) == "" && len(m.Parts) == 0 && len(m.ToolCalls) == 0 {
			return fmt.Errorf("%w: message %d (%s) has no content", ErrInvalidMessage, idx, m.Role)
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return fmt.Errorf("%w: tool message %d is missing tool_call_id", ErrInvalidMessage, idx)
		}
		if m.Content == "" && len(m.Parts) == 0 {
			return fmt.Errorf("%w: tool message %d has no content", ErrInvalidMessage, idx)
		}
	default:
		return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidMessage, idx, m.Role)
	}
	for j, p := range m.Parts {
		if p.Type == "" {
			return fmt.Errorf("%w: message %d part %d has no type", ErrInvalidMessage, idx, j)
		}
	}
	return nil
}

// ValidateMessages validates every message, failing on the first violation.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrInvalidMessage)
	}
	for i, m := range messages {
		if err := m.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			ToolCallID: m.ToolCallID,
		}
		if len(m.Parts) > 0 {
			om.MultiContent = make([]openai.ChatMessagePart, 0, len(m.Parts))
			for _, p := range m.Parts {
				part := openai.ChatMessagePart{Type: openai.ChatMessagePartType(p.Type), Text: p.Text}
				if p.Type == PartImageURL {
					part.Text = ""
					part.ImageURL = &openai.ChatMessageImageURL{URL: p.ImageURL}
				}
				om.MultiContent = append(om.MultiContent, part)
			}
		} else {
			om.Content = m.Content
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = om
	}
	return out
}

// Helper for creating system prompts.
func SystemPrompt(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Helper for creating user messages.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Helper for creating assistant messages.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage builds the reply to a tool call.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content}
}
