// Package pdfcodec compresses PDF documents in memory via pdfcpu's
// optimizer and derives page-count metadata for the result.
package pdfcodec

import (
	"bytes"
	"context"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/aliskhannn/filebatch/internal/codec"
	"github.com/aliskhannn/filebatch/internal/model"
)

// Progress windows per stage, following the load/process/write split.
const (
	progressLoaded    = 20
	progressProcessed = 80
	progressWritten   = 100
)

// Codec implements PDF compression on top of pdfcpu.
type Codec struct {
	conf *pdfmodel.Configuration
}

// New creates a PDF codec with relaxed validation, so slightly malformed
// documents still compress instead of failing intake-valid files.
func New() *Codec {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return &Codec{conf: conf}
}

// Convert optimizes the document and returns the compressed bytes with
// the page count as metadata.
func (c *Codec) Convert(ctx context.Context, req codec.Request, report codec.ProgressFunc) (codec.Result, error) {
	pages, err := api.PageCount(bytes.NewReader(req.Data), c.conf)
	if err != nil {
		return codec.Result{}, &codec.Error{
			Op:      model.OpPDFCompress,
			Stage:   "load",
			Message: "failed to read PDF",
			Err:     err,
		}
	}
	report(progressLoaded)

	if err := ctx.Err(); err != nil {
		return codec.Result{}, err
	}

	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(req.Data), &buf, c.conf); err != nil {
		return codec.Result{}, &codec.Error{
			Op:      model.OpPDFCompress,
			Stage:   "process",
			Message: "failed to optimize PDF",
			Err:     err,
		}
	}
	report(progressProcessed)

	if err := ctx.Err(); err != nil {
		return codec.Result{}, err
	}
	report(progressWritten)

	return codec.Result{
		Data:  buf.Bytes(),
		Pages: pages,
	}, nil
}
