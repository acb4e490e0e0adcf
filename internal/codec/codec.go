package codec

import (
	"context"
	"fmt"

	"github.com/aliskhannn/filebatch/internal/model"
)

// ProgressFunc receives fractional progress in [0,100]. Implementations
// may call it zero or more times; values within one invocation are
// non-decreasing (the worker pool additionally clamps them).
type ProgressFunc func(percent float64)

// Request carries one unit of work into a codec: the input bytes and the
// settings snapshot captured by the orchestrator at dispatch time.
type Request struct {
	Data      []byte
	Operation model.Operation
	Settings  model.Settings
}

// Result is the codec output: the converted bytes plus minimal derived
// metadata (dimensions for images, page count for documents).
type Result struct {
	Data   []byte
	Width  int
	Height int
	Pages  int
}

// Codec performs one processing operation on raw bytes. Implementations
// are black boxes to the pipeline; they must honor ctx cancellation at
// stage boundaries and report progress within their documented windows.
type Codec interface {
	Convert(ctx context.Context, req Request, report ProgressFunc) (Result, error)
}

// Error is a stage-aware codec failure surfaced per item.
type Error struct {
	Op      model.Operation
	Stage   string
	Message string
	Err     error
}

// Error formats the failure for logs and item error fields.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Stage, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
