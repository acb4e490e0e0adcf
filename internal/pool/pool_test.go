package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aliskhannn/filebatch/internal/codec"
)

func noopTask(ctx context.Context, report codec.ProgressFunc) (codec.Result, error) {
	report(100)
	return codec.Result{Data: []byte("ok")}, nil
}

// TestExecuteRunsTask verifies the basic dispatch path.
func TestExecuteRunsTask(t *testing.T) {
	p := New(2, nil)
	defer p.Shutdown(context.Background())

	result, err := p.Execute(context.Background(), noopTask, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(result.Data) != "ok" {
		t.Fatalf("result = %q, want ok", result.Data)
	}
}

// TestInitializeSharedAcrossCallers verifies concurrent callers await a
// single in-flight warm-up instead of duplicating it.
func TestInitializeSharedAcrossCallers(t *testing.T) {
	var warmups atomic.Int32
	p := New(2, func(ctx context.Context) error {
		warmups.Add(1)
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	defer p.Shutdown(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Initialize(context.Background()); err != nil {
				t.Errorf("Initialize: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := warmups.Load(); got != 1 {
		t.Fatalf("warm-ups = %d, want 1", got)
	}
}

// TestInitializeRetriesAfterFailure verifies a failed warm-up is
// surfaced to waiters and retried by the next call.
func TestInitializeRetriesAfterFailure(t *testing.T) {
	boom := errors.New("warm-up failed")
	var calls atomic.Int32
	p := New(1, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return boom
		}
		return nil
	})
	defer p.Shutdown(context.Background())

	if err := p.Initialize(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("first Initialize = %v, want %v", err, boom)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize = %v, want nil", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("warm-up calls = %d, want 2", got)
	}
}

// TestConcurrencyBound verifies at most size tasks run simultaneously
// and queued calls still complete.
func TestConcurrencyBound(t *testing.T) {
	p := New(2, nil)
	defer p.Shutdown(context.Background())

	var current, peak atomic.Int32
	task := func(ctx context.Context, report codec.ProgressFunc) (codec.Result, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return codec.Result{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Execute(context.Background(), task, nil); err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

// TestProgressClampedMonotonic verifies out-of-range and regressing
// reports are suppressed per invocation.
func TestProgressClampedMonotonic(t *testing.T) {
	p := New(1, nil)
	defer p.Shutdown(context.Background())

	var seen []float64
	task := func(ctx context.Context, report codec.ProgressFunc) (codec.Result, error) {
		for _, v := range []float64{50, 20, 120, -5, 60} {
			report(v)
		}
		return codec.Result{}, nil
	}
	if _, err := p.Execute(context.Background(), task, func(percent float64) {
		seen = append(seen, percent)
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []float64{50, 100}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

// TestShutdownRejectsNewCalls verifies calls after shutdown fail with
// ErrPoolClosed rather than being dropped.
func TestShutdownRejectsNewCalls(t *testing.T) {
	p := New(1, nil)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, err := p.Execute(context.Background(), noopTask, nil); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Execute after shutdown = %v, want ErrPoolClosed", err)
	}
}

// TestShutdownDrainsInFlight verifies shutdown waits for a running task.
func TestShutdownDrainsInFlight(t *testing.T) {
	p := New(1, nil)

	started := make(chan struct{})
	var finished atomic.Bool
	go func() {
		_, _ = p.Execute(context.Background(), func(ctx context.Context, report codec.ProgressFunc) (codec.Result, error) {
			close(started)
			time.Sleep(30 * time.Millisecond)
			finished.Store(true)
			return codec.Result{}, nil
		}, nil)
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !finished.Load() {
		t.Fatal("shutdown returned before in-flight task finished")
	}
}

// TestExecuteHonorsContextWhileQueued verifies a queued call can give up
// when its context expires before a worker frees.
func TestExecuteHonorsContextWhileQueued(t *testing.T) {
	p := New(1, nil)
	defer p.Shutdown(context.Background())

	gate := make(chan struct{})
	go func() {
		_, _ = p.Execute(context.Background(), func(ctx context.Context, report codec.ProgressFunc) (codec.Result, error) {
			<-gate
			return codec.Result{}, nil
		}, nil)
	}()
	time.Sleep(10 * time.Millisecond) // let the blocker occupy the worker

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Execute(ctx, noopTask, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("queued Execute = %v, want deadline exceeded", err)
	}
	close(gate)
}