package model

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether the status is final until an explicit reset.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Handle is a transient display resource owned by a work item,
// e.g. a preview reference handed to the UI. It must be released
// exactly once, when the item is removed or the handle is replaced.
type Handle interface {
	Release()
}

// Result holds the output of a codec invocation for one item.
type Result struct {
	Data   []byte `json:"-"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Pages  int    `json:"pages,omitempty"`
	Size   int64  `json:"size"`
}

// WorkItem is one user-submitted file and its processing state.
// The input bytes are exclusively owned by the item until removal.
type WorkItem struct {
	ID           uuid.UUID `json:"id"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	InputFormat  Format    `json:"input_format"`
	OutputFormat Format    `json:"output_format"`
	Data         []byte    `json:"-"`

	// Best-effort input metadata, filled at intake when cheaply available.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	Pages  int `json:"pages,omitempty"`

	Status   Status  `json:"status"`
	Progress float64 `json:"progress"` // 0..100
	Error    string  `json:"error,omitempty"`
	Result   *Result `json:"result,omitempty"`
	Preview  Handle  `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// BatchRun records aggregate timing for the active or most recent batch.
type BatchRun struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ItemCount  int       `json:"item_count"`
}

// Active reports whether the batch has started but not yet finished.
func (r BatchRun) Active() bool {
	return !r.StartedAt.IsZero() && r.FinishedAt.IsZero()
}
