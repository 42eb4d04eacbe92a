package planner

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned before any upstream call when the service
// has no Gemini key configured.
var ErrMissingAPIKey = errors.New("missing API key configuration")

// StageError reports a pipeline stage whose generation failed after all
// attempts. Raw is the last upstream body, when there was one.
type StageError struct {
	Stage    int
	Agent    string
	Reason   string
	Raw      any
	Attempts int
}

func (e *StageError) Error() string {
	return fmt.Sprintf("Stage %d error: %s", e.Stage, e.Reason)
}

// InternalError wraps a panic recovered inside the pipeline.
type InternalError struct {
	Value any
	Stack []byte
}

func (e *InternalError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

func (e *InternalError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
