// Package orchestrator schedules work items onto the worker pool. One
// instance owns its FIFO queue, epoch counter and active flag; a single
// coordinator goroutine drains the queue while the pool runs up to its
// bound of executions concurrently. All item mutations flow through the
// store's update contract, guarded by the dispatch epoch so stale
// callbacks after a cancellation can never resurrect reset items.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/filebatch/internal/codec"
	"github.com/aliskhannn/filebatch/internal/model"
	"github.com/aliskhannn/filebatch/internal/pool"
	"github.com/aliskhannn/filebatch/internal/store"
)

// settingsSource supplies the settings snapshot captured at queue-pop.
type settingsSource interface {
	Get() model.Settings
}

// Orchestrator ties the item store, the settings store, the codec
// registry and the worker pool together.
type Orchestrator struct {
	store    *store.Store
	settings settingsSource
	pool     *pool.Pool
	registry *codec.Registry

	// onBatchError surfaces batch-level failures (pool warm-up) once.
	onBatchError func(error)

	// epoch is atomic so store-guarded writes can read it inside the
	// store's critical section without nesting mutexes. Cancel bumps it
	// before resetting items, which makes every write guarded by an
	// older epoch either excluded or overwritten by the reset.
	epoch atomic.Uint64

	mu       sync.Mutex
	queue    []uuid.UUID
	queued   map[uuid.UUID]struct{}
	active   bool
	inFlight int
	run      model.BatchRun
	wake     chan struct{} // owned by the active batch's drain loop
	done     chan struct{}
	cancel   context.CancelFunc
}

// New creates an idle orchestrator.
func New(st *store.Store, settings settingsSource, p *pool.Pool, registry *codec.Registry) *Orchestrator {
	return &Orchestrator{
		store:    st,
		settings: settings,
		pool:     p,
		registry: registry,
		queued:   make(map[uuid.UUID]struct{}),
	}
}

// OnBatchError registers a hook for batch-level failures. Item-level
// codec failures never reach it; they resolve into item error state.
func (o *Orchestrator) OnBatchError(fn func(error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onBatchError = fn
}

// Enqueue appends the ids to the FIFO. Ids already queued or in a
// terminal state are skipped, which makes re-enqueueing completed items
// a no-op. Starting from idle begins a new batch and launches the drain
// loop; enqueueing into an active batch extends its expected count.
func (o *Orchestrator) Enqueue(ids []uuid.UUID) {
	o.mu.Lock()
	added := 0
	for _, id := range ids {
		if _, dup := o.queued[id]; dup {
			continue
		}
		item, err := o.store.Get(id)
		if err != nil || item.Status != model.StatusPending {
			continue
		}
		o.queue = append(o.queue, id)
		o.queued[id] = struct{}{}
		added++
	}
	if added == 0 {
		o.mu.Unlock()
		return
	}

	if o.active {
		o.run.ItemCount += added
		wake := o.wake
		o.mu.Unlock()
		signalWake(wake)
		return
	}

	o.active = true
	o.run = model.BatchRun{StartedAt: time.Now(), ItemCount: added}
	o.done = make(chan struct{})
	// Each batch owns a fresh wake channel: a drain goroutine from a
	// cancelled batch can never consume the new batch's signals.
	o.wake = make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	epoch := o.epoch.Load()
	done := o.done
	wake := o.wake
	o.mu.Unlock()

	go o.drain(ctx, done, wake, epoch)
}

// signalWake wakes the coordinator listening on ch; repeated signals
// coalesce.
func signalWake(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// drain is the coordinator loop for one batch. It pops ids in enqueue
// order, suspends when the pool bound is reached or the queue is empty
// with executions outstanding, and exits once the batch completes or is
// cancelled (epoch mismatch).
func (o *Orchestrator) drain(ctx context.Context, done chan struct{}, wake chan struct{}, epoch uint64) {
	defer close(done)

	if err := o.pool.Initialize(ctx); err != nil {
		o.failBatch(epoch, err)
		return
	}

	for {
		o.mu.Lock()
		if o.epoch.Load() != epoch || !o.active {
			o.mu.Unlock()
			return
		}
		if len(o.queue) == 0 && o.inFlight == 0 {
			o.run.FinishedAt = time.Now()
			o.active = false
			cancel := o.cancel
			o.cancel = nil
			o.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return
		}
		if len(o.queue) == 0 || o.inFlight >= o.pool.Size() {
			o.mu.Unlock()
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
			continue
		}

		id := o.queue[0]
		o.queue = o.queue[1:]
		delete(o.queued, id)
		o.mu.Unlock()

		// Settings snapshot, the pending→processing transition and the
		// epoch guard are atomic with the pop; see store.BeginProcessing.
		item, snapshot, ok := o.store.BeginProcessing(id, func() bool {
			return o.epoch.Load() == epoch
		}, o.settings.Get)
		if !ok {
			if o.epoch.Load() != epoch {
				return
			}
			continue
		}

		o.mu.Lock()
		if o.epoch.Load() != epoch {
			o.mu.Unlock()
			// The cancel bumped the epoch after the guarded transition
			// committed; its ResetProcessing serializes behind that
			// commit and returns the item to pending.
			return
		}
		o.inFlight++
		o.mu.Unlock()

		go o.process(ctx, epoch, item, snapshot)
	}
}

// process runs one item on the pool and reconciles the outcome.
func (o *Orchestrator) process(ctx context.Context, epoch uint64, item model.WorkItem, snapshot model.Settings) {
	defer o.release(epoch)

	op, ok := model.OperationFor(item.OutputFormat)
	if !ok {
		o.finish(item.ID, epoch, codec.Result{}, &codec.Error{
			Stage:   "dispatch",
			Message: "no operation for format " + string(item.OutputFormat),
		})
		return
	}
	c, err := o.registry.Lookup(op)
	if err != nil {
		o.finish(item.ID, epoch, codec.Result{}, err)
		return
	}

	req := codec.Request{Data: item.Data, Operation: op, Settings: snapshot}
	result, err := o.pool.Execute(ctx,
		func(ctx context.Context, report codec.ProgressFunc) (codec.Result, error) {
			return c.Convert(ctx, req, report)
		},
		func(percent float64) {
			o.progress(item.ID, epoch, percent)
		},
	)
	o.finish(item.ID, epoch, result, err)
}

// release returns one in-flight slot and wakes the coordinator, unless
// the epoch was invalidated (cancel already zeroed the counter and the
// old batch's channel must not receive signals meant for it).
func (o *Orchestrator) release(epoch uint64) {
	o.mu.Lock()
	if o.epoch.Load() != epoch {
		o.mu.Unlock()
		return
	}
	o.inFlight--
	wake := o.wake
	o.mu.Unlock()
	signalWake(wake)
}

// progress maps a pool progress report into the item. The epoch guard
// runs inside the store's critical section, so a report from before a
// cancellation can never land after the cancel reset the item.
func (o *Orchestrator) progress(id uuid.UUID, epoch uint64, percent float64) {
	o.store.UpdateIf(id, store.Patch{Progress: &percent}, func() bool {
		return o.epoch.Load() == epoch
	})
}

// finish reconciles one execution outcome into the item, subject to the
// same guard as progress.
func (o *Orchestrator) finish(id uuid.UUID, epoch uint64, result codec.Result, err error) {
	current := func() bool {
		return o.epoch.Load() == epoch
	}

	if err != nil {
		status := model.StatusError
		message := err.Error()
		if o.store.UpdateIf(id, store.Patch{Status: &status, Error: &message}, current) {
			zlog.Logger.Warn().Err(err).Str("item", id.String()).Msg("item processing failed")
		}
		return
	}

	status := model.StatusCompleted
	o.store.UpdateIf(id, store.Patch{
		Status: &status,
		Result: &model.Result{
			Data:   result.Data,
			Width:  result.Width,
			Height: result.Height,
			Pages:  result.Pages,
			Size:   int64(len(result.Data)),
		},
	}, current)
}

// failBatch aborts the current batch on a batch-level failure (pool
// warm-up). Queued items stay pending, so re-enqueueing retries.
func (o *Orchestrator) failBatch(epoch uint64, err error) {
	zlog.Logger.Error().Err(err).Msg("batch failed to start")

	o.mu.Lock()
	if o.epoch.Load() != epoch || !o.active {
		o.mu.Unlock()
		return
	}
	o.queue = nil
	o.queued = make(map[uuid.UUID]struct{})
	o.active = false
	o.run.FinishedAt = time.Now()
	cancel := o.cancel
	o.cancel = nil
	hook := o.onBatchError
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if hook != nil {
		hook(err)
	}
}

// Cancel aborts the active batch. The epoch bump strictly precedes the
// item reset: every outstanding callback guarded by the old epoch is
// either excluded by its store guard or overwritten by ResetProcessing.
// The FIFO is cleared, in-flight executions are asked to stop via
// context, and the orchestrator returns to idle. Idle cancel is a no-op.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.epoch.Add(1)
	o.queue = nil
	o.queued = make(map[uuid.UUID]struct{})
	o.inFlight = 0
	o.active = false
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.store.ResetProcessing()
}

// Retry resets one errored item to pending and re-enqueues it. This is
// the only path that re-dispatches a terminal item.
func (o *Orchestrator) Retry(id uuid.UUID) {
	item, err := o.store.Get(id)
	if err != nil || item.Status != model.StatusError {
		return
	}

	status := model.StatusPending
	empty := ""
	o.store.Update(id, store.Patch{Status: &status, Error: &empty})
	o.Enqueue([]uuid.UUID{id})
}

// Active reports whether a batch is currently running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Run returns the active or most recent batch record.
func (o *Orchestrator) Run() model.BatchRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

// Wait blocks until the active batch finishes or ctx expires. It
// returns immediately when the orchestrator is idle.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	if !o.active || o.done == nil {
		o.mu.Unlock()
		return nil
	}
	done := o.done
	o.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
