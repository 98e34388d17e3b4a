package runner

import (
	"strings"
)

const (
	finalAnswerMarker = "Final Answer:"
	actionMarker      = "Action:"
	actionInputMarker = "Action Input:"
	observationMarker = "Observation:"
)

// step is one parsed model answer.
type step struct {
	Thought     string
	Action      string
	ActionInput string
	FinalAnswer string
	IsFinal     bool
}

// parseStep reads a ReAct-formatted answer. An answer that names neither an
// action nor a final answer is taken as the final answer verbatim.
// An action that appears before "Final Answer:" wins.
func parseStep(text string) step {
	actionIdx := strings.Index(text, actionMarker)
	finalIdx := strings.Index(text, finalAnswerMarker)

	if actionIdx >= 0 && (finalIdx < 0 || actionIdx < finalIdx) {
		return parseAction(text, actionIdx)
	}
	if finalIdx >= 0 {
		return step{
			Thought:     thoughtOf(text[:finalIdx]),
			FinalAnswer: strings.TrimSpace(text[finalIdx+len(finalAnswerMarker):]),
			IsFinal:     true,
		}
	}
	return step{FinalAnswer: strings.TrimSpace(text), IsFinal: true}
}

func parseAction(text string, actionIdx int) step {
	s := step{Thought: thoughtOf(text[:actionIdx])}
	rest := text[actionIdx+len(actionMarker):]

	inputIdx := strings.Index(rest, actionInputMarker)
	if inputIdx < 0 {
		s.Action = firstLine(rest)
		return s
	}
	s.Action = firstLine(rest[:inputIdx])

	input := rest[inputIdx+len(actionInputMarker):]
	if i := strings.Index(input, observationMarker); i >= 0 {
		input = input[:i]
	}
	s.ActionInput = strings.TrimSpace(input)
	return s
}

func thoughtOf(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimPrefix(s, "Thought:"))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
