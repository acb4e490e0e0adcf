package imagecodec

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/aliskhannn/filebatch/internal/codec"
	"github.com/aliskhannn/filebatch/internal/model"
)

func pngRequest(t *testing.T, w, h int, settings model.Settings) codec.Request {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return codec.Request{
		Data:      buf.Bytes(),
		Operation: model.OpImageConvert,
		Settings:  settings,
	}
}

// TestConvertToJPEG verifies decoding, encoding and result metadata.
func TestConvertToJPEG(t *testing.T) {
	c := New("")
	req := pngRequest(t, 8, 6, model.Settings{OutputFormat: model.FormatJPEG, Quality: 80})

	result, err := c.Convert(context.Background(), req, func(float64) {})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Width != 8 || result.Height != 6 {
		t.Fatalf("dimensions = %dx%d, want 8x6", result.Width, result.Height)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected output bytes")
	}

	decoded, _, err := image.DecodeConfig(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if decoded.Width != 8 {
		t.Fatalf("output width = %d, want 8", decoded.Width)
	}
}

// TestConvertResizesFit verifies the fit resize path.
func TestConvertResizesFit(t *testing.T) {
	c := New("")
	req := pngRequest(t, 100, 50, model.Settings{
		OutputFormat: model.FormatPNG,
		Resize:       &model.ResizeSpec{Mode: model.ResizeFit, Width: 10, Height: 10},
	})

	result, err := c.Convert(context.Background(), req, func(float64) {})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Width != 10 || result.Height != 5 {
		t.Fatalf("dimensions = %dx%d, want 10x5 (fit keeps aspect)", result.Width, result.Height)
	}
}

// TestConvertProgressWindows verifies stage reports are monotonic and
// end at 100.
func TestConvertProgressWindows(t *testing.T) {
	c := New("")
	req := pngRequest(t, 4, 4, model.Settings{OutputFormat: model.FormatJPEG, Quality: 90})

	var seen []float64
	if _, err := c.Convert(context.Background(), req, func(p float64) {
		seen = append(seen, p)
	}); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if len(seen) == 0 || seen[len(seen)-1] != 100 {
		t.Fatalf("progress = %v, want final 100", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress regressed: %v", seen)
		}
	}
}

// TestConvertRejectsGarbage verifies a stage-aware decode error.
func TestConvertRejectsGarbage(t *testing.T) {
	c := New("")
	req := codec.Request{
		Data:     []byte("not an image"),
		Settings: model.Settings{OutputFormat: model.FormatJPEG},
	}

	_, err := c.Convert(context.Background(), req, func(float64) {})
	var codecErr *codec.Error
	if !errors.As(err, &codecErr) {
		t.Fatalf("error = %v, want *codec.Error", err)
	}
	if codecErr.Stage != "decode" {
		t.Fatalf("stage = %s, want decode", codecErr.Stage)
	}
}

// TestConvertRejectsNonImageTarget verifies target format validation.
func TestConvertRejectsNonImageTarget(t *testing.T) {
	c := New("")
	req := pngRequest(t, 2, 2, model.Settings{OutputFormat: model.FormatPDF})

	if _, err := c.Convert(context.Background(), req, func(float64) {}); err == nil {
		t.Fatal("expected error for pdf target")
	}
}

// TestWatermarkRequiresFont verifies watermarking without a configured
// font fails in the transform stage.
func TestWatermarkRequiresFont(t *testing.T) {
	c := New("")
	req := pngRequest(t, 2, 2, model.Settings{OutputFormat: model.FormatJPEG, Watermark: "draft"})

	_, err := c.Convert(context.Background(), req, func(float64) {})
	var codecErr *codec.Error
	if !errors.As(err, &codecErr) {
		t.Fatalf("error = %v, want *codec.Error", err)
	}
	if codecErr.Stage != "transform" {
		t.Fatalf("stage = %s, want transform", codecErr.Stage)
	}
}
