// Package decoder runs the file-level reveal workflow and the read-only
// inspections built on it: security analysis and password candidate search.
package decoder

import (
	"context"
	"runtime"

	"github.com/faanross/simulacra_lsb/internal/logging"
	"github.com/faanross/simulacra_lsb/internal/raster"
	"github.com/faanross/simulacra_lsb/internal/stego"
)

// Decoder reveals messages hidden in image files.
type Decoder struct {
	Obfuscator    stego.Obfuscator
	Workers       int
	MaxImageBytes int64
	Log           logging.Logger
}

// New returns a Decoder with the keystream obfuscator and one worker per CPU.
func New(log logging.Logger) *Decoder {
	return &Decoder{
		Obfuscator:    stego.Keystream{},
		Workers:       runtime.GOMAXPROCS(0),
		MaxImageBytes: raster.DefaultMaxImageBytes,
		Log:           log,
	}
}

// Result is a recovered message and facts about its carrier.
type Result struct {
	Message       []byte
	PayloadLength int
	Format        string
	Width         int
	Height        int
	ImageCID      string
}

// Load reads an image file under the decoder's size limit.
func (d *Decoder) Load(path string) (*raster.Loaded, error) {
	loaded, err := raster.Load(path, d.MaxImageBytes)
	if err != nil {
		return nil, err
	}
	d.Log.Debugf("loaded %s image %dx%d, %d bytes", loaded.Format, loaded.Raster.Width, loaded.Raster.Height, loaded.Size)
	return loaded, nil
}

// DecodeFile extracts the message hidden in the image at path.
func (d *Decoder) DecodeFile(ctx context.Context, path string, password []byte) (*Result, error) {
	loaded, err := d.Load(path)
	if err != nil {
		return nil, err
	}
	return d.DecodeRaster(ctx, loaded, password)
}

// DecodeRaster extracts the message from an already loaded image.
func (d *Decoder) DecodeRaster(ctx context.Context, loaded *raster.Loaded, password []byte) (*Result, error) {
	r := loaded.Raster
	msg, err := stego.Decode(ctx, r,
		stego.WithPassword(password),
		stego.WithObfuscator(d.Obfuscator),
		stego.WithWorkers(d.Workers),
		stego.WithLogger(d.Log),
	)
	if err != nil {
		return nil, err
	}

	n, err := stego.ExtractLength(r)
	if err != nil {
		return nil, err
	}
	d.Log.Infof("recovered %d message bytes from a %d byte payload", len(msg), n)

	return &Result{
		Message:       msg,
		PayloadLength: int(n),
		Format:        loaded.Format,
		Width:         r.Width,
		Height:        r.Height,
		ImageCID:      loaded.CID,
	}, nil
}
