package orchestrator

import "github.com/hrygo/notecrew/ai/internal/jsonutil"

// JSONOutput returns a decoder that extracts a T from the agent's answer.
// The structured value is stored as a T, not a pointer.
func JSONOutput[T any]() OutputDecoder {
	return func(raw string) (any, error) {
		v, err := jsonutil.ParseJSON[T](raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Structured returns the decoded value of out as a T.
func Structured[T any](out *TaskOutput) (T, bool) {
	var zero T
	if !out.Parsed() {
		return zero, false
	}
	v, ok := out.Structured.(T)
	return v, ok
}
