package store

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"

	// Header-only decoders for cheap intake dimension probing.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/aliskhannn/filebatch/internal/model"
)

// FileInput is one user-supplied file handed to intake.
type FileInput struct {
	Name string
	Data []byte
}

// detect sniffs the content type and falls back to the file extension,
// then checks the result against the store's allow-list.
func (s *Store) detect(f FileInput) (model.Format, bool) {
	format, ok := model.FormatFromMIME(mimetype.Detect(f.Data).String())
	if !ok {
		format, ok = model.ParseFormat(strings.TrimPrefix(filepath.Ext(f.Name), "."))
	}
	if !ok {
		return "", false
	}

	_, allowed := s.allowed[format]
	return format, allowed
}

// probeMetadata fills best-effort input metadata without a full decode:
// image dimensions come from the header, PDF page count from the xref.
// Probe failures are ignored; metadata is advisory.
func probeMetadata(item *model.WorkItem) {
	switch {
	case item.InputFormat.IsImage():
		cfg, _, err := image.DecodeConfig(bytes.NewReader(item.Data))
		if err != nil {
			return
		}
		item.Width = cfg.Width
		item.Height = cfg.Height
	case item.InputFormat == model.FormatPDF:
		conf := pdfmodel.NewDefaultConfiguration()
		conf.ValidationMode = pdfmodel.ValidationRelaxed
		pages, err := api.PageCount(bytes.NewReader(item.Data), conf)
		if err != nil {
			return
		}
		item.Pages = pages
	}
}
