package stego

import (
	"context"
	"fmt"
	"math"
	"runtime"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/logging"
	"github.com/faanross/simulacra_lsb/internal/raster"
)

type options struct {
	password   []byte
	obfuscator Obfuscator
	workers    int
	log        logging.Logger
}

// Option configures Encode and Decode.
type Option func(*options)

// WithPassword sets the obfuscator password. The obfuscator always runs; the
// default Keystream leaves the payload unchanged for an empty password.
func WithPassword(password []byte) Option {
	return func(o *options) { o.password = password }
}

// WithObfuscator replaces the default Keystream transform.
func WithObfuscator(ob Obfuscator) Option {
	return func(o *options) { o.obfuscator = ob }
}

// WithWorkers bounds the goroutines used for band processing. Values below 1
// mean a single band.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{
		obfuscator: Keystream{},
		workers:    runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.obfuscator == nil {
		o.obfuscator = Keystream{}
	}
	return o
}

// Encode hides message in a copy of r. Capacity is checked before any byte
// is written, so a failed Encode leaves nothing behind.
func Encode(ctx context.Context, r *raster.Raster, message []byte, opts ...Option) (*raster.Raster, error) {
	o := buildOptions(opts)

	payload, err := o.obfuscator.Obfuscate(message, o.password)
	if err != nil {
		return nil, fmt.Errorf("obfuscating payload: %w", err)
	}

	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%d bytes: %w", len(payload), kerrors.ErrPayloadTooLarge)
	}

	needed := StreamBits(len(payload))
	if err := Validate(r, needed); err != nil {
		return nil, err
	}
	o.log.Debugf("embedding %d payload bytes (%d of %d bits)", len(payload), needed, CapacityBits(r))

	bits := make([]bool, 0, needed)
	bits = append(bits, EncodeLength(uint32(len(payload)))...)
	bits = append(bits, BytesToBits(payload)...)

	return Embed(ctx, r, bits, o.workers)
}

// Decode recovers the message hidden in r. A raster that carries no stream
// almost always declares more bytes than it holds and fails with
// ErrIncompleteStream. With the default Keystream a wrong password is not
// detected.
func Decode(ctx context.Context, r *raster.Raster, opts ...Option) ([]byte, error) {
	o := buildOptions(opts)

	payload, err := Extract(ctx, r, o.workers)
	if err != nil {
		return nil, err
	}
	o.log.Debugf("extracted %d payload bytes", len(payload))

	message, err := o.obfuscator.Deobfuscate(payload, o.password)
	if err != nil {
		return nil, fmt.Errorf("deobfuscating payload: %w", err)
	}
	return message, nil
}
