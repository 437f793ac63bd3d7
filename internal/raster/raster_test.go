package raster

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_lsb/internal/cidutil"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

func randomRaster(t *testing.T, w, h int, opaque bool) *Raster {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(w*31 + h)))
	r := Blank(w, h)
	rng.Read(r.Pix)
	if opaque {
		for i := 3; i < len(r.Pix); i += BytesPerPixel {
			r.Pix[i] = 0xFF
		}
	}
	return r
}

func TestNewValidatesLength(t *testing.T) {
	r, err := New(2, 3, make([]byte, 24))
	require.NoError(t, err)
	assert.Equal(t, 24, r.Len())

	_, err = New(2, 3, make([]byte, 23))
	assert.ErrorIs(t, err, kerrors.ErrInvalidRaster)

	_, err = New(-1, 3, nil)
	assert.ErrorIs(t, err, kerrors.ErrInvalidRaster)
}

func TestCloneIsIndependent(t *testing.T) {
	r := randomRaster(t, 4, 4, false)
	c := r.Clone()
	require.Equal(t, r.Pix, c.Pix)

	c.Pix[0] ^= 0xFF
	assert.NotEqual(t, r.Pix[0], c.Pix[0])
}

func TestFromImageCopiesNRGBAVerbatim(t *testing.T) {
	// Translucent pixels with odd channel values must survive unchanged.
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := range src.Pix {
		src.Pix[i] = byte(i*37 + 1)
	}

	r := FromImage(src)
	assert.Equal(t, 3, r.Width)
	assert.Equal(t, 2, r.Height)
	assert.Equal(t, src.Pix, r.Pix)
}

func TestFromImageSubImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = byte(i)
	}
	sub := src.SubImage(image.Rect(1, 1, 3, 3)).(*image.NRGBA)

	r := FromImage(sub)
	require.Equal(t, 2, r.Width)
	require.Equal(t, 2, r.Height)
	assert.Equal(t, src.Pix[src.PixOffset(1, 1):src.PixOffset(1, 1)+8], r.Pix[:8])
	assert.Equal(t, src.Pix[src.PixOffset(1, 2):src.PixOffset(1, 2)+8], r.Pix[8:])
}

func TestFromImageConvertsOpaqueRGBA(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	src.Set(1, 0, color.RGBA{R: 254, G: 253, B: 252, A: 255})

	r := FromImage(src)
	assert.Equal(t, []byte{1, 2, 3, 255, 254, 253, 252, 255}, r.Pix)
}

func TestImageSharesBuffer(t *testing.T) {
	r := Blank(2, 2)
	img := r.Image()
	img.Pix[5] = 42
	assert.Equal(t, byte(42), r.Pix[5])
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(0, 0))
}

func TestPNGRoundTripPreservesEveryByte(t *testing.T) {
	for _, opaque := range []bool{true, false} {
		r := randomRaster(t, 17, 9, opaque)

		data, err := EncodeBytes(r, FormatPNG)
		require.NoError(t, err)

		loaded, err := Decode(bytes.NewReader(data), DefaultMaxImageBytes)
		require.NoError(t, err)
		assert.Equal(t, "png", loaded.Format)
		assert.Equal(t, len(data), loaded.Size)
		assert.Equal(t, cidutil.CIDv1RawSHA256(data), loaded.CID)
		assert.Equal(t, r.Pix, loaded.Raster.Pix, "opaque=%v", opaque)
	}
}

func TestBMPRoundTripOpaque(t *testing.T) {
	r := randomRaster(t, 5, 3, true)

	data, err := EncodeBytes(r, FormatBMP)
	require.NoError(t, err)

	loaded, err := Decode(bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.Equal(t, "bmp", loaded.Format)
	assert.Equal(t, r.Pix, loaded.Raster.Pix)
}

func TestTranslucentRoundTripPerFormat(t *testing.T) {
	r := randomRaster(t, 16, 16, false)
	require.False(t, r.Opaque())

	for _, format := range []Format{FormatPNG, FormatTIFF} {
		t.Run(string(format), func(t *testing.T) {
			data, err := EncodeBytes(r, format)
			require.NoError(t, err)

			loaded, err := Decode(bytes.NewReader(data), 0)
			require.NoError(t, err)
			assert.Equal(t, r.Pix, loaded.Raster.Pix)
		})
	}

	t.Run("bmp", func(t *testing.T) {
		_, err := EncodeBytes(r, FormatBMP)
		assert.ErrorIs(t, err, kerrors.ErrLossyFormat)

		path := filepath.Join(t.TempDir(), "out.bmp")
		assert.ErrorIs(t, Save(path, r), kerrors.ErrLossyFormat)
		assert.NoFileExists(t, path)
	})
}

func TestOpaque(t *testing.T) {
	assert.True(t, randomRaster(t, 4, 4, true).Opaque())
	assert.False(t, Blank(2, 2).Opaque())
	assert.True(t, Blank(0, 0).Opaque())
}

func TestDecodeRejectsOversizedInput(t *testing.T) {
	r := randomRaster(t, 32, 32, false)
	data, err := EncodeBytes(r, FormatPNG)
	require.NoError(t, err)

	_, err = Decode(bytes.NewReader(data), int64(len(data)-1))
	assert.ErrorIs(t, err, kerrors.ErrImageTooLarge)
	assert.ErrorIs(t, err, kerrors.ErrImageLoad)

	_, err = Decode(bytes.NewReader(data), int64(len(data)))
	assert.NoError(t, err)
}

func TestDecodeGarbageIsImageLoadFailure(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not an image")), 0)
	assert.ErrorIs(t, err, kerrors.ErrImageLoad)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"), 0)
	assert.ErrorIs(t, err, kerrors.ErrImageLoad)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr error
	}{
		{"out.png", FormatPNG, nil},
		{"OUT.PNG", FormatPNG, nil},
		{"out.bmp", FormatBMP, nil},
		{"out.tif", FormatTIFF, nil},
		{"out.tiff", FormatTIFF, nil},
		{"out.jpg", "", kerrors.ErrLossyFormat},
		{"out.webp", "", kerrors.ErrLossyFormat},
		{"out.txt", "", kerrors.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	r := randomRaster(t, 8, 8, false)

	path := filepath.Join(dir, "stego.png")
	require.NoError(t, Save(path, r))

	loaded, err := Load(path, DefaultMaxImageBytes)
	require.NoError(t, err)
	assert.Equal(t, r.Pix, loaded.Raster.Pix)

	assert.ErrorIs(t, Save(filepath.Join(dir, "stego.jpg"), r), kerrors.ErrLossyFormat)
}
