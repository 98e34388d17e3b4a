package llm

import "encoding/json"

// JSONSchema describes tool parameters in the OpenAI function format.
// JSONSchema 以 OpenAI function 格式描述工具参数。
type JSONSchema struct {
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties bool                   `json:"additionalProperties"`
}

// MarshalJSON uses an alias type to avoid recursing into itself.
func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	type alias JSONSchema
	return json.Marshal((*alias)(s))
}

// StringParam is a shorthand for an object schema with one required string field.
func StringParam(name, description string) *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			name: {Type: "string", Description: description},
		},
		Required: []string{name},
	}
}
