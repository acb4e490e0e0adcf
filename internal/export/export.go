// Package export packages completed items for download: a zip archive
// or a plain directory write. It consumes only the store's completed
// view and never touches item state.
package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliskhannn/filebatch/internal/model"
)

// Entry is one output file: final name plus result bytes.
type Entry struct {
	Filename string
	Data     []byte
}

// Collect builds ordered entries from completed items. Output names keep
// the input base name with the output format's extension; collisions are
// disambiguated with a deterministic numeric suffix, never overwritten.
func Collect(items []model.WorkItem) []Entry {
	entries := make([]Entry, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		if item.Status != model.StatusCompleted || item.Result == nil {
			continue
		}

		base := strings.TrimSuffix(item.Filename, filepath.Ext(item.Filename))
		if base == "" {
			base = "output"
		}
		name := dedupe(base, item.OutputFormat.Ext(), seen)
		seen[name] = struct{}{}

		entries = append(entries, Entry{Filename: name, Data: item.Result.Data})
	}
	return entries
}

// dedupe finds the first free name: base.ext, base-1.ext, base-2.ext, ...
func dedupe(base, ext string, seen map[string]struct{}) string {
	name := base + ext
	for i := 1; ; i++ {
		if _, taken := seen[name]; !taken {
			return name
		}
		name = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

// Zip writes the entries as a zip archive in order.
func Zip(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		f, err := zw.Create(e.Filename)
		if err != nil {
			return fmt.Errorf("create zip entry %s: %w", e.Filename, err)
		}
		if _, err := f.Write(e.Data); err != nil {
			return fmt.Errorf("write zip entry %s: %w", e.Filename, err)
		}
	}
	return zw.Close()
}

// WriteDir writes each entry as a file under dir, creating it if needed.
func WriteDir(dir string, entries []Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Filename)
		if err := os.WriteFile(path, e.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
