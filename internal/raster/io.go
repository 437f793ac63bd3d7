package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/faanross/simulacra_lsb/internal/cidutil"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

// DefaultMaxImageBytes caps source files at 5 MiB.
const DefaultMaxImageBytes = 5 * 1024 * 1024

// Format is an output container. Only lossless formats are writable.
type Format string

const (
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// FormatFromPath infers the output format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".jpg", ".jpeg", ".gif", ".webp":
		return "", fmt.Errorf("%s: %w", path, kerrors.ErrLossyFormat)
	default:
		return "", fmt.Errorf("%s: %w", path, kerrors.ErrUnsupportedFormat)
	}
}

// Loaded is a decoded source image.
type Loaded struct {
	Raster *Raster
	Format string // as reported by image.Decode
	Size   int    // source size in bytes
	CID    string // CIDv1 of the source file bytes
}

// Load reads and decodes the image at path. maxBytes <= 0 disables the size check.
func Load(path string, maxBytes int64) (*Loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrImageLoad, err)
	}
	defer f.Close()

	return Decode(f, maxBytes)
}

// Decode reads an encoded image from rd. Any decoding failure wraps ErrImageLoad.
func Decode(rd io.Reader, maxBytes int64) (*Loaded, error) {
	if maxBytes > 0 {
		rd = io.LimitReader(rd, maxBytes+1)
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrImageLoad, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes: %w", kerrors.ErrImageLoad, maxBytes, kerrors.ErrImageTooLarge)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrImageLoad, err)
	}

	return &Loaded{
		Raster: FromImage(img),
		Format: format,
		Size:   len(data),
		CID:    cidutil.CIDv1RawSHA256(data),
	}, nil
}

// Encode writes r to w in the given lossless format. BMP has no alpha
// channel, so it only accepts opaque rasters.
func Encode(w io.Writer, r *Raster, format Format) error {
	img := r.Image()
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatBMP:
		if !r.Opaque() {
			return fmt.Errorf("bmp cannot keep translucent pixels: %w", kerrors.ErrLossyFormat)
		}
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("format %q: %w", format, kerrors.ErrUnsupportedFormat)
	}
}

// EncodeBytes is Encode into a byte slice.
func EncodeBytes(r *Raster, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes r to path, choosing the format from the extension.
func Save(path string, r *Raster) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	data, err := EncodeBytes(r, format)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
