// Package imagecodec converts raster images between the supported formats,
// with optional resizing and text watermarking.
package imagecodec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/aliskhannn/filebatch/internal/codec"
	"github.com/aliskhannn/filebatch/internal/model"
)

// Progress windows per stage. No stage reports into a later window
// before the earlier stage has resolved.
const (
	progressDecoded     = 30
	progressTransformed = 60
	progressEncoded     = 100
)

// Codec implements image conversion on top of the imaging library.
type Codec struct {
	fontPath string // used for watermark text, optional
}

// New creates an image codec. fontPath is only required when watermarking
// is enabled in settings; pass "" to disable watermark support.
func New(fontPath string) *Codec {
	return &Codec{fontPath: fontPath}
}

// Convert decodes the input, applies the optional resize and watermark
// steps, and encodes to the target format from the settings snapshot.
func (c *Codec) Convert(ctx context.Context, req codec.Request, report codec.ProgressFunc) (codec.Result, error) {
	target, ok := encodeFormat(req.Settings.OutputFormat)
	if !ok {
		return codec.Result{}, &codec.Error{
			Op:      model.OpImageConvert,
			Stage:   "decode",
			Message: fmt.Sprintf("unsupported target format %q", req.Settings.OutputFormat),
		}
	}

	img, err := imaging.Decode(bytes.NewReader(req.Data), imaging.AutoOrientation(true))
	if err != nil {
		return codec.Result{}, &codec.Error{
			Op:      model.OpImageConvert,
			Stage:   "decode",
			Message: "failed to decode image",
			Err:     err,
		}
	}
	report(progressDecoded)

	if err := ctx.Err(); err != nil {
		return codec.Result{}, err
	}

	if spec := req.Settings.Resize; spec != nil {
		img = resize(img, spec)
	}
	if req.Settings.Watermark != "" {
		img, err = c.watermark(img, req.Settings.Watermark)
		if err != nil {
			return codec.Result{}, err
		}
	}
	report(progressTransformed)

	if err := ctx.Err(); err != nil {
		return codec.Result{}, err
	}

	var buf bytes.Buffer
	opts := encodeOptions(target, req.Settings)
	if err := imaging.Encode(&buf, img, target, opts...); err != nil {
		return codec.Result{}, &codec.Error{
			Op:      model.OpImageConvert,
			Stage:   "encode",
			Message: fmt.Sprintf("failed to encode as %s", req.Settings.OutputFormat),
			Err:     err,
		}
	}
	report(progressEncoded)

	bounds := img.Bounds()
	return codec.Result{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// WarmUp primes the encode path once per process so the first real item
// does not pay the setup cost. Called by the worker pool initialization.
func (c *Codec) WarmUp(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe := imaging.New(1, 1, color.White)
	return imaging.Encode(&bytes.Buffer{}, probe, imaging.JPEG)
}

// resize applies one resize spec using the Lanczos filter.
func resize(img image.Image, spec *model.ResizeSpec) image.Image {
	switch spec.Mode {
	case model.ResizeFill:
		return imaging.Fill(img, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
	case model.ResizeExact:
		return imaging.Resize(img, spec.Width, spec.Height, imaging.Lanczos)
	default:
		return imaging.Fit(img, spec.Width, spec.Height, imaging.Lanczos)
	}
}

// watermark draws text in the bottom-right corner, sized relative to width.
func (c *Codec) watermark(img image.Image, text string) (image.Image, error) {
	if c.fontPath == "" {
		return nil, &codec.Error{
			Op:      model.OpImageConvert,
			Stage:   "transform",
			Message: "watermark requested but no font configured",
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetColor(color.White)

	fontSize := float64(dc.Width()) * 0.05
	if err := dc.LoadFontFace(c.fontPath, fontSize); err != nil {
		return nil, &codec.Error{
			Op:      model.OpImageConvert,
			Stage:   "transform",
			Message: "failed to load watermark font",
			Err:     err,
		}
	}

	tw, th := dc.MeasureString(text)
	margin := 10.0
	x := float64(dc.Width()) - tw - margin
	y := float64(dc.Height()) - th - margin
	dc.DrawStringAnchored(text, x, y, 1, 1)
	dc.Fill()

	return dc.Image(), nil
}

// encodeFormat maps a model format to the imaging encoder enum.
func encodeFormat(f model.Format) (imaging.Format, bool) {
	switch f {
	case model.FormatJPEG:
		return imaging.JPEG, true
	case model.FormatPNG:
		return imaging.PNG, true
	case model.FormatGIF:
		return imaging.GIF, true
	case model.FormatTIFF:
		return imaging.TIFF, true
	case model.FormatBMP:
		return imaging.BMP, true
	default:
		return 0, false
	}
}

// encodeOptions maps quality settings onto encoder options where the
// target format supports them.
func encodeOptions(target imaging.Format, s model.Settings) []imaging.EncodeOption {
	if target != imaging.JPEG {
		return nil
	}
	quality := s.Quality
	if s.Lossless || quality <= 0 || quality > 100 {
		quality = 100
	}
	return []imaging.EncodeOption{imaging.JPEGQuality(quality)}
}
