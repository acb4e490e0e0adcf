package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/filebatch/internal/codec"
	"github.com/aliskhannn/filebatch/internal/codec/imagecodec"
	"github.com/aliskhannn/filebatch/internal/codec/pdfcodec"
	"github.com/aliskhannn/filebatch/internal/config"
	"github.com/aliskhannn/filebatch/internal/export"
	"github.com/aliskhannn/filebatch/internal/model"
	"github.com/aliskhannn/filebatch/internal/orchestrator"
	"github.com/aliskhannn/filebatch/internal/pool"
	"github.com/aliskhannn/filebatch/internal/store"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()

	var (
		inDir    = flag.String("in", ".", "directory with input files")
		outPath  = flag.String("out", "filebatch-output.zip", "output zip path (or directory with -dir)")
		outDir   = flag.Bool("dir", false, "write outputs to a directory instead of a zip")
		format   = flag.String("format", "", "output image format (jpeg, png, gif, tiff, bmp)")
		quality  = flag.Int("quality", 0, "encode quality 1-100 (jpeg)")
		fontPath = flag.String("font", "", "font file for watermark text")
		settings = flag.String("settings", defaultSettingsPath(), "settings blob path")
		workers  = flag.Int("workers", 0, "worker pool size (0 = auto)")
	)
	flag.Parse()

	// Retry strategy for settings persistence.
	strategy := retry.Strategy{Attempts: 3, Delay: 100 * time.Millisecond, Backoff: 2}

	// Settings store: loads the persisted blob, default-merging missing fields.
	cfg := config.New(*settings, strategy)
	applyFlags(cfg, *format, *quality)

	// Single registration point: the closed operation→codec mapping.
	registry := codec.NewRegistry(map[model.Operation]codec.Codec{
		model.OpImageConvert: imagecodec.New(*fontPath),
		model.OpPDFCompress:  pdfcodec.New(),
	})

	// Item store, worker pool, orchestrator.
	items := store.New(cfg)
	size := *workers
	if size == 0 {
		size = cfg.Get().Concurrency
	}
	workerPool := pool.New(size, registry.WarmUp)
	orch := orchestrator.New(items, cfg, workerPool, registry)
	orch.OnBatchError(func(err error) {
		zlog.Logger.Error().Err(err).Msg("batch aborted")
	})

	// Settings changes restamp only still-pending items.
	unsubscribe := cfg.Subscribe(func(s model.Settings) {
		items.RestampPending(s.OutputFormat)
	})
	defer unsubscribe()

	// Log item transitions as the store commits them.
	unwatch := items.Subscribe(func() {
		counts := items.CountByStatus()
		zlog.Logger.Debug().
			Int("pending", counts[model.StatusPending]).
			Int("processing", counts[model.StatusProcessing]).
			Int("completed", counts[model.StatusCompleted]).
			Int("errored", counts[model.StatusError]).
			Float64("mean_progress", items.MeanProgress()).
			Msg("batch progress")
	})
	defer unwatch()

	// Intake: read the input directory and add everything acceptable.
	inputs, err := readInputs(*inDir)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Str("dir", *inDir).Msg("failed to read input directory")
	}
	ids := items.Add(inputs)
	if len(ids) == 0 {
		zlog.Logger.Fatal().Str("dir", *inDir).Msg("no supported input files found")
	}
	zlog.Logger.Info().Int("count", len(ids)).Msg("starting batch")

	// Run the batch and wait for it to drain.
	orch.Enqueue(ids)
	if err := orch.Wait(ctx); err != nil {
		zlog.Logger.Warn().Err(err).Msg("interrupted, cancelling batch")
		orch.Cancel()
	}

	// Export completed results.
	entries := export.Collect(items.Completed())
	if len(entries) > 0 {
		if err := writeOutput(*outPath, *outDir, entries); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to export results")
		}
	}

	run := orch.Run()
	counts := items.CountByStatus()
	zlog.Logger.Info().
		Int("completed", counts[model.StatusCompleted]).
		Int("errored", counts[model.StatusError]).
		Int64("original_bytes", items.TotalOriginalBytes()).
		Int64("result_bytes", items.TotalResultBytes()).
		Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
		Msg("batch finished")

	// Graceful shutdown with timeout for in-flight executions.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Warn().Err(err).Msg("worker pool did not drain in time")
	}
}

// applyFlags overrides persisted settings with explicit CLI choices.
func applyFlags(cfg *config.Store, format string, quality int) {
	patch := config.Patch{}
	changed := false
	if format != "" {
		f, ok := model.ParseFormat(format)
		if !ok {
			zlog.Logger.Fatal().Str("format", format).Msg("unsupported output format")
		}
		patch.OutputFormat = &f
		changed = true
	}
	if quality > 0 {
		if quality > 100 {
			quality = 100
		}
		patch.Quality = &quality
		changed = true
	}
	if changed {
		cfg.Update(patch)
	}
}

// readInputs loads every regular file in dir as an intake candidate.
// The store's allow-list decides what is actually accepted.
func readInputs(dir string) ([]store.FileInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	inputs := make([]store.FileInput, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			zlog.Logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable file")
			continue
		}
		inputs = append(inputs, store.FileInput{Name: entry.Name(), Data: data})
	}
	return inputs, nil
}

// writeOutput exports entries to a zip file or a directory.
func writeOutput(path string, asDir bool, entries []export.Entry) error {
	if asDir {
		return export.WriteDir(path, entries)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	if err := export.Zip(f, entries); err != nil {
		return err
	}
	zlog.Logger.Info().Str("path", path).Int("files", len(entries)).Msg("wrote archive")
	return nil
}

// defaultSettingsPath places the settings blob under the user home.
func defaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".filebatch", "settings.json")
}
