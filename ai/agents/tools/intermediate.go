package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hrygo/notecrew/ai/core/llm"
)

// IntermediateProductToolName is the tool text agents use to checkpoint drafts.
const IntermediateProductToolName = "Save_Intermediate_Product_Tool"

// IntermediateProduct lets an agent save a draft before producing its final answer.
// Saved drafts stay in memory for the lifetime of the agent.
type IntermediateProduct struct {
	mu    sync.Mutex
	saved []string
}

// NewIntermediateProduct creates a new IntermediateProduct tool.
func NewIntermediateProduct() *IntermediateProduct {
	return &IntermediateProduct{}
}

// Name returns the name of the tool.
func (t *IntermediateProduct) Name() string {
	return IntermediateProductToolName
}

// Description returns a description of what the tool does.
func (t *IntermediateProduct) Description() string {
	return "Save an intermediate product (draft outline, candidate titles, notes) before the final answer. " +
		"Accepts any text or JSON."
}

// Parameters returns the JSON schema for the tool's input.
func (t *IntermediateProduct) Parameters() *llm.JSONSchema {
	return llm.StringParam("intermediate_product", "The draft to save")
}

// Run stores the input and acknowledges it.
func (t *IntermediateProduct) Run(_ context.Context, input string) (string, error) {
	product := stringifyProduct(input)
	t.mu.Lock()
	t.saved = append(t.saved, product)
	t.mu.Unlock()
	return fmt.Sprintf("Intermediate product saved (%d chars). Continue with the task.", len([]rune(product))), nil
}

// Saved returns every saved product in order.
func (t *IntermediateProduct) Saved() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.saved...)
}

// stringifyProduct flattens JSON input: arrays join with newlines, the
// intermediate_product field is unwrapped, other objects are re-encoded.
func stringifyProduct(input string) string {
	input = strings.TrimSpace(input)
	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return input
	}
	switch x := v.(type) {
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, stringifyValue(item))
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		if inner, ok := x["intermediate_product"]; ok && len(x) == 1 {
			return stringifyValue(inner)
		}
		return stringifyValue(x)
	default:
		return input
	}
}

func stringifyValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, stringifyValue(item))
		}
		return strings.Join(parts, "\n")
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	}
}
