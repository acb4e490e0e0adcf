// Package store holds the in-memory collection of work items. It is the
// single mutable shared state of the pipeline: the orchestrator, the
// settings store and the UI all mutate items exclusively through its
// entry points, which serialize under one mutex and notify subscribers
// synchronously after each committed mutation.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/filebatch/internal/model"
)

// ErrItemNotFound is returned by accessors for unknown item ids.
var ErrItemNotFound = errors.New("item not found")

// settingsSource supplies the current settings for stamping new items.
type settingsSource interface {
	Get() model.Settings
}

// Store is an observable in-memory collection of work items.
type Store struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*model.WorkItem
	order    []uuid.UUID
	settings settingsSource
	allowed  map[model.Format]struct{}

	subs    map[int]func()
	nextSub int
}

// New creates a store that accepts only the given input formats.
// With no formats given, every supported format is accepted.
func New(settings settingsSource, allowed ...model.Format) *Store {
	allow := make(map[model.Format]struct{}, len(allowed))
	if len(allowed) == 0 {
		for _, f := range []model.Format{
			model.FormatJPEG, model.FormatPNG, model.FormatGIF,
			model.FormatTIFF, model.FormatBMP, model.FormatPDF,
		} {
			allow[f] = struct{}{}
		}
	}
	for _, f := range allowed {
		allow[f] = struct{}{}
	}

	return &Store{
		items:    make(map[uuid.UUID]*model.WorkItem),
		settings: settings,
		allowed:  allow,
		subs:     make(map[int]func()),
	}
}

// Subscribe registers a listener invoked synchronously after every
// committed mutation. The returned function removes the listener.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// notify invokes current listeners. Called after the lock is released so
// listeners can read the store; mutations are already committed by then.
func (s *Store) notify() {
	s.mu.Lock()
	listeners := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Add validates the inputs against the allow-list, creates one pending
// item per accepted file stamped with the current settings' output
// choice, and returns the new ids in insertion order. Rejected files
// are logged and dropped without failing the call.
func (s *Store) Add(files []FileInput) []uuid.UUID {
	settings := s.settings.Get()

	ids := make([]uuid.UUID, 0, len(files))
	accepted := make([]*model.WorkItem, 0, len(files))
	for _, f := range files {
		format, ok := s.detect(f)
		if !ok {
			zlog.Logger.Warn().
				Str("filename", f.Name).
				Msg("rejected unsupported input file")
			continue
		}

		item := &model.WorkItem{
			ID:           uuid.New(),
			Filename:     f.Name,
			Size:         int64(len(f.Data)),
			InputFormat:  format,
			OutputFormat: outputFormatFor(format, settings),
			Data:         f.Data,
			Status:       model.StatusPending,
			CreatedAt:    time.Now(),
		}
		probeMetadata(item)

		accepted = append(accepted, item)
		ids = append(ids, item.ID)
	}

	if len(accepted) == 0 {
		return ids
	}

	s.mu.Lock()
	for _, item := range accepted {
		s.items[item.ID] = item
		s.order = append(s.order, item.ID)
	}
	s.mu.Unlock()
	s.notify()

	return ids
}

// outputFormatFor stamps the settings' output choice on image items;
// documents keep their own family, since cross-family conversion is not
// a registered operation.
func outputFormatFor(input model.Format, settings model.Settings) model.Format {
	if input.IsImage() && settings.OutputFormat.IsImage() {
		return settings.OutputFormat
	}
	return input
}

// Patch is a partial item update. Nil fields are left untouched.
type Patch struct {
	Status       *model.Status
	Progress     *float64
	Error        *string
	Result       *model.Result
	OutputFormat *model.Format
	Preview      model.Handle
}

// Update merges the patch into the item. Unknown ids are a no-op. Status
// and progress are kept coherent: completed forces progress 100 and
// clears the error, pending resets progress to 0 unless given.
func (s *Store) Update(id uuid.UUID, patch Patch) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	applyPatch(item, patch)
	s.mu.Unlock()
	s.notify()
}

func applyPatch(item *model.WorkItem, patch Patch) {
	if patch.OutputFormat != nil {
		item.OutputFormat = *patch.OutputFormat
	}
	if patch.Progress != nil {
		item.Progress = clampProgress(*patch.Progress)
	}
	if patch.Error != nil {
		item.Error = *patch.Error
	}
	if patch.Result != nil {
		item.Result = patch.Result
	}
	if patch.Preview != nil {
		if item.Preview != nil {
			item.Preview.Release()
		}
		item.Preview = patch.Preview
	}
	if patch.Status != nil {
		item.Status = *patch.Status
		switch *patch.Status {
		case model.StatusCompleted:
			item.Progress = 100
			item.Error = ""
		case model.StatusPending:
			if patch.Progress == nil {
				item.Progress = 0
			}
		}
	}
}

// UpdateIf merges the patch only while cond holds. The condition is
// evaluated inside the critical section, so the check and the write are
// one atomic step with respect to every other mutation: a reset that
// invalidates cond either excludes the write entirely or serializes
// after it and overwrites it. cond must not call back into the store.
// Reports whether the write landed.
func (s *Store) UpdateIf(id uuid.UUID, patch Patch, cond func() bool) bool {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || (cond != nil && !cond()) {
		s.mu.Unlock()
		return false
	}
	applyPatch(item, patch)
	s.mu.Unlock()
	s.notify()

	return true
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// BeginProcessing atomically promotes a pending item to processing and
// snapshots the settings inside the same critical section. Holding the
// store lock across the snapshot excludes a concurrent RestampPending,
// so a settings change lands either entirely before this pop (the item
// carries the new stamp) or entirely after (the dispatched snapshot is
// untouched). cond is evaluated under the same lock, like UpdateIf, so
// a dispatch whose batch was cancelled never publishes processing.
// Returns ok=false when the item is absent, not pending, or cond fails.
func (s *Store) BeginProcessing(id uuid.UUID, cond func() bool, snapshot func() model.Settings) (model.WorkItem, model.Settings, bool) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.Status != model.StatusPending || (cond != nil && !cond()) {
		s.mu.Unlock()
		return model.WorkItem{}, model.Settings{}, false
	}

	item.Status = model.StatusProcessing
	item.Progress = 0
	item.Error = ""
	settings := snapshot()
	settings.OutputFormat = item.OutputFormat
	copied := *item
	s.mu.Unlock()
	s.notify()

	return copied, settings, true
}

// ResetProcessing moves every processing item back to pending with zero
// progress. Used by batch cancellation.
func (s *Store) ResetProcessing() {
	s.mu.Lock()
	changed := false
	for _, item := range s.items {
		if item.Status != model.StatusProcessing {
			continue
		}
		item.Status = model.StatusPending
		item.Progress = 0
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// RestampPending updates the stamped output format of still-pending image
// items. Items already processing, completed or errored keep their stamp.
func (s *Store) RestampPending(format model.Format) {
	if !format.IsImage() {
		return
	}

	s.mu.Lock()
	changed := false
	for _, item := range s.items {
		if item.Status != model.StatusPending || !item.InputFormat.IsImage() {
			continue
		}
		if item.OutputFormat != format {
			item.OutputFormat = format
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// Get returns a copy of the item.
func (s *Store) Get(id uuid.UUID) (model.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return model.WorkItem{}, ErrItemNotFound
	}
	return *item, nil
}

// Items returns copies of all items in insertion order.
func (s *Store) Items() []model.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.WorkItem, 0, len(s.order))
	for _, id := range s.order {
		if item, ok := s.items[id]; ok {
			out = append(out, *item)
		}
	}
	return out
}

// Remove releases the item's transient handles and drops it. The id
// never reappears: ids are unique per item and assigned only at intake.
func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	release := item.Preview
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if release != nil {
		release.Release()
	}
	s.notify()
}

// Clear releases all transient handles and empties the collection.
func (s *Store) Clear() {
	s.mu.Lock()
	handles := make([]model.Handle, 0, len(s.items))
	for _, item := range s.items {
		if item.Preview != nil {
			handles = append(handles, item.Preview)
		}
	}
	s.items = make(map[uuid.UUID]*model.WorkItem)
	s.order = nil
	s.mu.Unlock()

	for _, h := range handles {
		h.Release()
	}
	s.notify()
}

// CountByStatus computes item counts per status on read.
func (s *Store) CountByStatus() map[model.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[model.Status]int)
	for _, item := range s.items {
		counts[item.Status]++
	}
	return counts
}

// TotalOriginalBytes sums the input sizes of all items.
func (s *Store) TotalOriginalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, item := range s.items {
		total += item.Size
	}
	return total
}

// TotalResultBytes sums the output sizes of completed items.
func (s *Store) TotalResultBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, item := range s.items {
		if item.Result != nil {
			total += item.Result.Size
		}
	}
	return total
}

// MeanProgress averages progress over all items; 0 when empty.
func (s *Store) MeanProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return 0
	}
	var sum float64
	for _, item := range s.items {
		sum += item.Progress
	}
	return sum / float64(len(s.items))
}

// AllComplete reports whether every item reached completed. False when
// the store is empty.
func (s *Store) AllComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return false
	}
	for _, item := range s.items {
		if item.Status != model.StatusCompleted {
			return false
		}
	}
	return true
}

// AnyErrored reports whether at least one item is in error state.
func (s *Store) AnyErrored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.Status == model.StatusError {
			return true
		}
	}
	return false
}

// Completed returns copies of completed items in insertion order.
func (s *Store) Completed() []model.WorkItem {
	items := s.Items()
	out := items[:0]
	for _, item := range items {
		if item.Status == model.StatusCompleted {
			out = append(out, item)
		}
	}
	return out
}
