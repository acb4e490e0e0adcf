package config

import "github.com/aliskhannn/filebatch/internal/model"

// DefaultSettings returns the baseline configuration used when no
// settings blob exists yet or a field is missing from a stored blob.
func DefaultSettings() model.Settings {
	return model.Settings{
		Version:      model.SettingsVersion,
		OutputFormat: model.FormatJPEG,
		Quality:      80,
		Lossless:     false,
		Concurrency:  0, // 0 = derive from hardware
	}
}
