package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/filebatch/internal/model"
)

func testStrategy() retry.Strategy {
	return retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}
}

// TestMissingBlobLoadsDefaults checks first-run behavior.
func TestMissingBlobLoadsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	s := New(path, testStrategy())

	got := s.Get()
	want := DefaultSettings()
	if got.OutputFormat != want.OutputFormat || got.Quality != want.Quality {
		t.Fatalf("settings = %+v, want defaults %+v", got, want)
	}
}

// TestUpdatePersistsAndReloads checks the persisted blob round-trips
// through a fresh store.
func TestUpdatePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	s := New(path, testStrategy())

	format := model.FormatPNG
	quality := 55
	s.Update(Patch{
		OutputFormat: &format,
		Quality:      &quality,
		Resize:       &model.ResizeSpec{Mode: model.ResizeFit, Width: 800, Height: 600},
	})

	reloaded := New(path, testStrategy()).Get()
	if reloaded.OutputFormat != model.FormatPNG {
		t.Fatalf("output format = %s, want png", reloaded.OutputFormat)
	}
	if reloaded.Quality != 55 {
		t.Fatalf("quality = %d, want 55", reloaded.Quality)
	}
	if reloaded.Resize == nil || reloaded.Resize.Width != 800 {
		t.Fatalf("resize = %+v, want width 800", reloaded.Resize)
	}
}

// TestPartialBlobMergesDefaults checks forward/backward compatibility:
// missing fields keep defaults, unknown fields are ignored.
func TestPartialBlobMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	blob := `{"quality": 30, "future_field": true}`
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := New(path, testStrategy()).Get()
	if got.Quality != 30 {
		t.Fatalf("quality = %d, want 30", got.Quality)
	}
	if got.OutputFormat != DefaultSettings().OutputFormat {
		t.Fatalf("output format = %s, want default", got.OutputFormat)
	}
	if got.Version != model.SettingsVersion {
		t.Fatalf("version = %d, want %d", got.Version, model.SettingsVersion)
	}
}

// TestCorruptBlobFallsBackToDefaults checks a broken file degrades to
// defaults instead of failing the session.
func TestCorruptBlobFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := New(path, testStrategy()).Get()
	if got.Quality != DefaultSettings().Quality {
		t.Fatalf("quality = %d, want default", got.Quality)
	}
}

// TestPersistFailureKeepsInMemoryValue checks a failing save is
// swallowed and the session continues with the updated value.
func TestPersistFailureKeepsInMemoryValue(t *testing.T) {
	// The blob path is an existing directory, so every write fails.
	dir := t.TempDir()
	s := New(dir, testStrategy())

	quality := 42
	got := s.Update(Patch{Quality: &quality})
	if got.Quality != 42 {
		t.Fatalf("quality = %d, want 42", got.Quality)
	}
	if s.Get().Quality != 42 {
		t.Fatalf("in-memory quality = %d, want 42", s.Get().Quality)
	}
}

// TestSubscribersNotifiedOnUpdate checks listeners observe committed
// updates and unsubscribe works.
func TestSubscribersNotifiedOnUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := New(path, testStrategy())

	var seen []model.Settings
	unsubscribe := s.Subscribe(func(settings model.Settings) {
		seen = append(seen, settings)
	})

	quality := 10
	s.Update(Patch{Quality: &quality})
	if len(seen) != 1 || seen[0].Quality != 10 {
		t.Fatalf("seen = %+v, want one update with quality 10", seen)
	}

	unsubscribe()
	s.LoadDefaults()
	if len(seen) != 1 {
		t.Fatalf("seen after unsubscribe = %d, want 1", len(seen))
	}
}

// TestLoadDefaultsResets checks the explicit reset operation.
func TestLoadDefaultsResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := New(path, testStrategy())

	quality := 5
	s.Update(Patch{Quality: &quality})
	s.LoadDefaults()

	if got := s.Get().Quality; got != DefaultSettings().Quality {
		t.Fatalf("quality = %d, want default", got)
	}
}
