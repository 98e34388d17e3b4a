// Package jsonutil extracts and decodes JSON from LLM answers that may be
// wrapped in markdown fences or surrounded by prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hrygo/notecrew/ai/internal/strutil"
)

// ErrNoJSON is returned when the text contains no object or array.
var ErrNoJSON = errors.New("no JSON content found")

// Validator is implemented by decoded types that check their own required fields.
type Validator interface {
	Validate() error
}

// StripMarkdownFences removes ```json ... ``` or ``` ... ``` wrapping from text.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}

	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.Join(lines[1:endIdx], "\n")
}

// ExtractJSON returns the object or array embedded in text, from the first
// opening delimiter to the last matching closing one.
func ExtractJSON(text string) (string, error) {
	spans, err := candidates(text)
	if err != nil {
		return "", err
	}
	return spans[0], nil
}

// candidates returns the array and object spans of text, the one that opens
// first leading. Prose such as "结果[JSON]：{...}" opens a bogus array before
// the real object, so callers fall back to the second span.
func candidates(text string) ([]string, error) {
	text = strings.TrimSpace(text)

	objIdx := strings.Index(text, "{")
	arrIdx := strings.Index(text, "[")
	if objIdx == -1 && arrIdx == -1 {
		return nil, ErrNoJSON
	}

	var spans []string
	var missing string
	collect := func(startIdx int, endChar string) {
		if startIdx == -1 {
			return
		}
		rest := text[startIdx:]
		endIdx := strings.LastIndex(rest, endChar)
		if endIdx == -1 {
			if missing == "" {
				missing = endChar
			}
			return
		}
		spans = append(spans, rest[:endIdx+1])
	}
	if objIdx == -1 || (arrIdx != -1 && arrIdx < objIdx) {
		collect(arrIdx, "]")
		collect(objIdx, "}")
	} else {
		collect(objIdx, "}")
		collect(arrIdx, "]")
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("no closing %s found", missing)
	}
	return spans, nil
}

// ParseJSON strips fences, extracts the JSON payload and decodes it into T.
// When *T implements Validator the decoded value is validated as well.
func ParseJSON[T any](raw string) (T, error) {
	var zero T
	spans, err := candidates(StripMarkdownFences(raw))
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}

	var result T
	var decodeErr error
	for _, jsonStr := range spans {
		result = zero
		err := json.Unmarshal([]byte(jsonStr), &result)
		if err == nil {
			decodeErr = nil
			break
		}
		if decodeErr == nil {
			decodeErr = fmt.Errorf("invalid JSON: %w (text: %s)", err, strutil.Truncate(jsonStr, 200))
		}
	}
	if decodeErr != nil {
		return zero, decodeErr
	}
	if v, ok := any(&result).(Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, err
		}
	}
	return result, nil
}
