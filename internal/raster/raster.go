// Package raster holds the RGBA byte grid the codec reads and writes, plus the
// loaders and lossless encoders that move rasters in and out of image files.
//
// Bytes are stored non-premultiplied, 4 per pixel in R,G,B,A order, rows
// top to bottom. Premultiplied storage (image.RGBA) would let an encoder
// round translucent pixels and destroy low bits, so everything here goes
// through image.NRGBA.
package raster

import (
	"fmt"
	"image"
	"image/color"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

// BytesPerPixel is the number of buffer bytes per pixel (R, G, B, A).
const BytesPerPixel = 4

// Raster is a width×height grid of RGBA bytes.
type Raster struct {
	Width  int
	Height int
	Pix    []byte
}

// New wraps pix as a raster, checking that it holds exactly width*height pixels.
func New(width, height int, pix []byte) (*Raster, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("negative dimensions %dx%d: %w", width, height, kerrors.ErrInvalidRaster)
	}
	if len(pix) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("buffer has %d bytes, %dx%d needs %d: %w",
			len(pix), width, height, width*height*BytesPerPixel, kerrors.ErrInvalidRaster)
	}
	return &Raster{Width: width, Height: height, Pix: pix}, nil
}

// Blank allocates a zeroed raster.
func Blank(width, height int) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// Len returns the buffer length in bytes.
func (r *Raster) Len() int {
	return len(r.Pix)
}

// Clone returns an independent deep copy.
func (r *Raster) Clone() *Raster {
	pix := make([]byte, len(r.Pix))
	copy(pix, r.Pix)
	return &Raster{Width: r.Width, Height: r.Height, Pix: pix}
}

// Opaque reports whether every alpha byte is 0xFF.
func (r *Raster) Opaque() bool {
	for i := BytesPerPixel - 1; i < len(r.Pix); i += BytesPerPixel {
		if r.Pix[i] != 0xFF {
			return false
		}
	}
	return true
}

// Image exposes the raster as an *image.NRGBA sharing the same bytes.
func (r *Raster) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.Pix,
		Stride: r.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

// FromImage copies img into a new raster. NRGBA sources are copied row by
// row without any color conversion; other models go through NRGBAModel.
func FromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	r := Blank(width, height)
	rowBytes := width * BytesPerPixel

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(r.Pix[y*rowBytes:(y+1)*rowBytes], src.Pix[off:off+rowBytes])
		}
		return r
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			r.Pix[i+0] = c.R
			r.Pix[i+1] = c.G
			r.Pix[i+2] = c.B
			r.Pix[i+3] = c.A
			i += BytesPerPixel
		}
	}
	return r
}
