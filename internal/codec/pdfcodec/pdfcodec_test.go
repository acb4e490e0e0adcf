package pdfcodec

import (
	"context"
	"errors"
	"testing"

	"github.com/aliskhannn/filebatch/internal/codec"
	"github.com/aliskhannn/filebatch/internal/model"
)

// TestConvertRejectsGarbage verifies a non-PDF payload fails at the load
// stage with a typed error.
func TestConvertRejectsGarbage(t *testing.T) {
	c := New()

	_, err := c.Convert(context.Background(), codec.Request{
		Data:      []byte("definitely not a pdf"),
		Operation: model.OpPDFCompress,
	}, func(float64) {})
	if err == nil {
		t.Fatal("Convert accepted garbage input")
	}

	var cerr *codec.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T, want *codec.Error", err)
	}
	if cerr.Stage != "load" {
		t.Fatalf("stage = %q, want %q", cerr.Stage, "load")
	}
	if cerr.Op != model.OpPDFCompress {
		t.Fatalf("op = %q, want %q", cerr.Op, model.OpPDFCompress)
	}
}
