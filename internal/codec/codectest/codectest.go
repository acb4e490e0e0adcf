// Package codectest provides a scriptable codec double for pipeline tests.
package codectest

import (
	"context"
	"errors"
	"sync"

	"github.com/aliskhannn/filebatch/internal/codec"
)

// ErrScripted is the default failure returned by a failing fake call.
var ErrScripted = errors.New("scripted codec failure")

// Call records one Convert invocation observed by the fake.
type Call struct {
	Data    []byte
	Request codec.Request
}

// Fake is a codec double. Fields are read at call time, so tests may
// configure behavior before each conversion.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	// ProgressScript is replayed through the report callback before the
	// call resolves. Nil means a single 100 report.
	ProgressScript []float64

	// FailOn returns true when a call with these input bytes must fail.
	FailOn func(data []byte) bool

	// Gate, when non-nil, blocks each call until the channel is closed
	// or the context is cancelled. Used to hold items in processing.
	Gate chan struct{}

	// Uninterruptible makes gated calls ignore context cancellation,
	// modelling a codec that cannot be aborted once started.
	Uninterruptible bool

	// Output transforms input bytes into result bytes. Nil echoes input.
	Output func(data []byte) []byte
}

// Convert replays the scripted behavior for one invocation.
func (f *Fake) Convert(ctx context.Context, req codec.Request, report codec.ProgressFunc) (codec.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Data: req.Data, Request: req})
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		if f.Uninterruptible {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return codec.Result{}, ctx.Err()
			}
		}
	}

	if !f.Uninterruptible {
		if err := ctx.Err(); err != nil {
			return codec.Result{}, err
		}
	}

	if f.FailOn != nil && f.FailOn(req.Data) {
		return codec.Result{}, ErrScripted
	}

	script := f.ProgressScript
	if script == nil {
		script = []float64{100}
	}
	for _, p := range script {
		report(p)
	}

	out := req.Data
	if f.Output != nil {
		out = f.Output(req.Data)
	}
	return codec.Result{Data: out}, nil
}

// Calls returns a copy of the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}
