package model

import "strings"

// Format identifies a supported input or output file format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
	FormatPDF  Format = "pdf"
)

// Operation is a closed enumeration of the processing operations the
// pipeline can dispatch. Each operation maps to exactly one codec at
// registry construction time.
type Operation string

const (
	OpImageConvert Operation = "image/convert"
	OpPDFCompress  Operation = "pdf/compress"
)

// ParseFormat normalizes a format name, accepting common aliases.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "gif":
		return FormatGIF, true
	case "tiff", "tif":
		return FormatTIFF, true
	case "bmp":
		return FormatBMP, true
	case "pdf":
		return FormatPDF, true
	default:
		return "", false
	}
}

// FormatFromMIME maps a detected MIME type to a supported format.
func FormatFromMIME(mime string) (Format, bool) {
	switch mime {
	case "image/jpeg":
		return FormatJPEG, true
	case "image/png":
		return FormatPNG, true
	case "image/gif":
		return FormatGIF, true
	case "image/tiff":
		return FormatTIFF, true
	case "image/bmp", "image/x-bmp", "image/x-ms-bmp":
		return FormatBMP, true
	case "application/pdf":
		return FormatPDF, true
	default:
		return "", false
	}
}

// IsImage reports whether the format belongs to the raster image family.
func (f Format) IsImage() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatTIFF, FormatBMP:
		return true
	default:
		return false
	}
}

// Ext returns the canonical file extension including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatGIF:
		return ".gif"
	case FormatTIFF:
		return ".tiff"
	case FormatBMP:
		return ".bmp"
	case FormatPDF:
		return ".pdf"
	default:
		return ""
	}
}

// OperationFor returns the processing operation for a target format.
func OperationFor(f Format) (Operation, bool) {
	switch {
	case f.IsImage():
		return OpImageConvert, true
	case f == FormatPDF:
		return OpPDFCompress, true
	default:
		return "", false
	}
}
