// Package config owns the versioned settings blob: an in-memory record
// persisted to a per-app JSON file on every mutation. The in-memory
// value stays authoritative for the session; persistence failures only
// degrade durability, never the running pipeline.
package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/filebatch/internal/model"
)

// Store holds the current settings and persists them through viper.
type Store struct {
	mu       sync.RWMutex
	path     string
	strategy retry.Strategy
	current  model.Settings

	subs    map[int]func(model.Settings)
	nextSub int
}

// New creates a store backed by the JSON file at path and loads it,
// default-merging missing or unknown fields. A missing or unreadable
// file degrades to defaults with a warning.
func New(path string, strategy retry.Strategy) *Store {
	s := &Store{
		path:     path,
		strategy: strategy,
		subs:     make(map[int]func(model.Settings)),
	}
	s.current = s.load()
	return s
}

// load reads the blob with defaults pre-registered, so absent fields
// resolve to their default values (forward/backward compatibility).
func (s *Store) load() model.Settings {
	defaults := DefaultSettings()

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	v.SetDefault("version", defaults.Version)
	v.SetDefault("output_format", string(defaults.OutputFormat))
	v.SetDefault("quality", defaults.Quality)
	v.SetDefault("lossless", defaults.Lossless)
	v.SetDefault("watermark", defaults.Watermark)
	v.SetDefault("concurrency", defaults.Concurrency)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			zlog.Logger.Warn().Err(err).
				Str("path", s.path).
				Msg("failed to read settings, using defaults")
		}
		return defaults
	}

	var settings model.Settings
	if err := v.Unmarshal(&settings); err != nil {
		zlog.Logger.Warn().Err(err).
			Str("path", s.path).
			Msg("failed to parse settings, using defaults")
		return defaults
	}

	if _, ok := model.ParseFormat(string(settings.OutputFormat)); !ok {
		settings.OutputFormat = defaults.OutputFormat
	}
	settings.Version = model.SettingsVersion
	return settings
}

// Get returns the current settings snapshot.
func (s *Store) Get() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Patch is a partial settings update. Nil fields are left untouched;
// ClearResize removes the resize step regardless of Resize.
type Patch struct {
	OutputFormat *model.Format
	Quality      *int
	Lossless     *bool
	Resize       *model.ResizeSpec
	ClearResize  bool
	Watermark    *string
	Concurrency  *int
}

// Update merges the patch into the current settings, persists the result
// and notifies subscribers. Returns the merged settings.
func (s *Store) Update(patch Patch) model.Settings {
	s.mu.Lock()
	next := s.current
	if patch.OutputFormat != nil {
		next.OutputFormat = *patch.OutputFormat
	}
	if patch.Quality != nil {
		next.Quality = *patch.Quality
	}
	if patch.Lossless != nil {
		next.Lossless = *patch.Lossless
	}
	if patch.ClearResize {
		next.Resize = nil
	} else if patch.Resize != nil {
		spec := *patch.Resize
		next.Resize = &spec
	}
	if patch.Watermark != nil {
		next.Watermark = *patch.Watermark
	}
	if patch.Concurrency != nil {
		next.Concurrency = *patch.Concurrency
	}
	s.current = next
	s.mu.Unlock()

	s.persist(next)
	s.notify(next)
	return next
}

// LoadDefaults resets the settings to the baseline, persists and notifies.
func (s *Store) LoadDefaults() model.Settings {
	defaults := DefaultSettings()

	s.mu.Lock()
	s.current = defaults
	s.mu.Unlock()

	s.persist(defaults)
	s.notify(defaults)
	return defaults
}

// Subscribe registers a listener invoked after every committed update.
// The returned function removes the listener.
func (s *Store) Subscribe(fn func(model.Settings)) func() {
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

// notify runs outside the store lock so listeners may read the store
// (and restamp pending items) without deadlocking against dispatch.
func (s *Store) notify(settings model.Settings) {
	s.mu.RLock()
	listeners := make([]func(model.Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(settings)
	}
}

// persist writes the blob with retries; the final failure is swallowed
// with a warning and the in-memory value stays authoritative.
func (s *Store) persist(settings model.Settings) {
	err := retry.Do(func() error {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return err
		}

		v := viper.New()
		v.SetConfigFile(s.path)
		v.SetConfigType("json")
		v.Set("version", settings.Version)
		v.Set("output_format", string(settings.OutputFormat))
		v.Set("quality", settings.Quality)
		v.Set("lossless", settings.Lossless)
		v.Set("watermark", settings.Watermark)
		v.Set("concurrency", settings.Concurrency)
		if settings.Resize != nil {
			v.Set("resize", map[string]any{
				"mode":   string(settings.Resize.Mode),
				"width":  settings.Resize.Width,
				"height": settings.Resize.Height,
			})
		}
		return v.WriteConfigAs(s.path)
	}, s.strategy)
	if err != nil {
		zlog.Logger.Warn().Err(err).
			Str("path", s.path).
			Msg("failed to persist settings, keeping in-memory value")
	}
}
