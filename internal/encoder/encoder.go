// Package encoder runs the file-level hide workflow: load a carrier (or
// generate one), embed the message with the stego codec, and write a
// lossless output image.
package encoder

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"runtime"

	"github.com/faanross/simulacra_lsb/internal/cidutil"
	"github.com/faanross/simulacra_lsb/internal/logging"
	"github.com/faanross/simulacra_lsb/internal/raster"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/stego"
)

// DefaultWidth is the width of generated carriers.
const DefaultWidth = 64

// Encoder hides messages in image files.
type Encoder struct {
	Obfuscator    stego.Obfuscator
	Workers       int
	MaxImageBytes int64
	Log           logging.Logger
}

// New returns an Encoder with the keystream obfuscator and one worker per CPU.
func New(log logging.Logger) *Encoder {
	return &Encoder{
		Obfuscator:    stego.Keystream{},
		Workers:       runtime.GOMAXPROCS(0),
		MaxImageBytes: raster.DefaultMaxImageBytes,
		Log:           log,
	}
}

// Request describes one hide operation.
type Request struct {
	// Input is the carrier image. Empty means generate a noise carrier
	// CarrierWidth pixels wide and just tall enough for the message.
	Input        string
	Output       string
	Message      []byte
	Password     []byte
	CarrierWidth int
}

// Result summarizes a completed hide operation.
type Result struct {
	Output        string
	Format        raster.Format
	Generated     bool
	MessageLength int
	Plan          Plan
	ImageCID      string
}

// EncodeFile performs req. Nothing is written unless the message fits.
func (e *Encoder) EncodeFile(ctx context.Context, req Request) (*Result, error) {
	format, err := raster.FormatFromPath(req.Output)
	if err != nil {
		return nil, err
	}

	src, generated, err := e.carrier(req)
	if err != nil {
		return nil, err
	}
	e.Log.Infof("carrier is %dx%d (%d eligible bytes)", src.Width, src.Height, stego.EligibleByteCount(src))

	out, err := stego.Encode(ctx, src, req.Message,
		stego.WithPassword(req.Password),
		stego.WithObfuscator(e.Obfuscator),
		stego.WithWorkers(e.Workers),
		stego.WithLogger(e.Log),
	)
	if err != nil {
		return nil, err
	}

	payloadLen, err := stego.ExtractLength(out)
	if err != nil {
		return nil, err
	}

	data, err := raster.EncodeBytes(out, format)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", format, err)
	}
	if err := os.WriteFile(req.Output, data, 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", req.Output, err)
	}
	e.Log.Infof("wrote %d bytes to %s", len(data), req.Output)

	return &Result{
		Output:        req.Output,
		Format:        format,
		Generated:     generated,
		MessageLength: len(req.Message),
		Plan:          NewPlan(out, int(payloadLen)),
		ImageCID:      cidutil.CIDv1RawSHA256(data),
	}, nil
}

func (e *Encoder) carrier(req Request) (*raster.Raster, bool, error) {
	if req.Input != "" {
		loaded, err := raster.Load(req.Input, e.MaxImageBytes)
		if err != nil {
			return nil, false, err
		}
		e.Log.Debugf("loaded %s carrier, %d bytes", loaded.Format, loaded.Size)
		return loaded.Raster, false, nil
	}

	// The keystream keeps the payload length; any other obfuscator is sized
	// for the sealed overhead, password or not.
	need := len(req.Message)
	switch e.Obfuscator.(type) {
	case nil, stego.Keystream:
	default:
		need += scrypto.SealOverhead
	}
	r, err := NoiseCarrier(need, req.CarrierWidth, rand.Reader)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}
