package model

// SettingsVersion is the current structural version of the settings blob.
// Older or newer blobs are loaded with a default-merge, so unknown fields
// are ignored and missing fields keep their defaults.
const SettingsVersion = 1

// ResizeMode selects how a resize target is applied.
type ResizeMode string

const (
	ResizeFit   ResizeMode = "fit"   // fit inside the box, keep aspect ratio
	ResizeFill  ResizeMode = "fill"  // fill the box, crop overflow
	ResizeExact ResizeMode = "exact" // stretch to exact dimensions
)

// ResizeSpec describes an optional resize step for image operations.
type ResizeSpec struct {
	Mode   ResizeMode `json:"mode" mapstructure:"mode"`
	Width  int        `json:"width" mapstructure:"width"`
	Height int        `json:"height" mapstructure:"height"`
}

// Settings is the process-wide configuration record read by intake
// (to stamp new items) and by the codec service at dispatch time.
type Settings struct {
	Version      int         `json:"version" mapstructure:"version"`
	OutputFormat Format      `json:"output_format" mapstructure:"output_format"`
	Quality      int         `json:"quality" mapstructure:"quality"` // 1..100
	Lossless     bool        `json:"lossless" mapstructure:"lossless"`
	Resize       *ResizeSpec `json:"resize,omitempty" mapstructure:"resize"`
	Watermark    string      `json:"watermark,omitempty" mapstructure:"watermark"`
	Concurrency  int         `json:"concurrency" mapstructure:"concurrency"`
}
