package stego

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/raster"
)

func randomRaster(w, h int, seed int64) *raster.Raster {
	r := raster.Blank(w, h)
	rand.New(rand.NewSource(seed)).Read(r.Pix)
	return r
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	tests := []struct {
		name     string
		message  []byte
		password []byte
	}{
		{"no password", []byte("Hello world!"), nil},
		{"password", []byte("meet at the usual place"), []byte("correct horse")},
		{"utf8", []byte("héllo 世界 🌍"), []byte("ключ")},
		{"binary", []byte{0x00, 0xFF, 0x10, 0x80, 0x7F}, []byte{0x00}},
		{"empty with password", []byte{}, []byte("pw")},
		{"large", bytes.Repeat([]byte("A"), 4096), []byte("k")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := randomRaster(64, 64, rng.Int63())

			enc, err := Encode(ctx, src, tt.message, WithPassword(tt.password))
			require.NoError(t, err)

			got, err := Decode(ctx, enc, WithPassword(tt.password))
			require.NoError(t, err)
			assert.Equal(t, len(tt.message), len(got))
			assert.True(t, bytes.Equal(tt.message, got), "got %q", got)
		})
	}
}

func TestRoundTripRandomized(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 40; i++ {
		w, h := 1+rng.Intn(40), 1+rng.Intn(40)
		src := randomRaster(w, h, rng.Int63())

		msg := make([]byte, rng.Intn(MaxPayload(src)+1))
		rng.Read(msg)
		var pw []byte
		if rng.Intn(2) == 0 {
			pw = make([]byte, 1+rng.Intn(16))
			rng.Read(pw)
		}

		enc, err := Encode(ctx, src, msg, WithPassword(pw), WithWorkers(1+rng.Intn(4)))
		require.NoError(t, err, "%dx%d, %d bytes", w, h, len(msg))

		got, err := Decode(ctx, enc, WithPassword(pw))
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestEncodeLeavesSourceUntouched(t *testing.T) {
	src := randomRaster(16, 16, 5)
	before := bytes.Clone(src.Pix)

	enc, err := Encode(context.Background(), src, []byte("secret"), WithPassword([]byte("pw")))
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)

	enc.Pix[0] ^= 0xFF
	assert.Equal(t, before, src.Pix, "output must not share the source buffer")
}

func TestEncodeOnlyTouchesStreamLSBs(t *testing.T) {
	src := randomRaster(20, 20, 9)
	msg := []byte("fifty bytes of message text, padded out to length!")
	streamBits := int(StreamBits(len(msg)))
	want := append(EncodeLength(uint32(len(msg))), BytesToBits(msg)...)

	enc, err := Encode(context.Background(), src, msg)
	require.NoError(t, err)
	require.Equal(t, src.Len(), enc.Len())

	for i := range src.Pix {
		k, eligible := BitIndex(i)
		switch {
		case !eligible:
			assert.Equal(t, src.Pix[i], enc.Pix[i], "alpha byte %d changed", i)
		case k < streamBits:
			assert.Equal(t, src.Pix[i]&^1, enc.Pix[i]&^1, "upper bits of byte %d changed", i)
			assert.Equal(t, want[k], enc.Pix[i]&1 == 1, "bit %d", k)
		default:
			assert.Equal(t, src.Pix[i], enc.Pix[i], "byte %d beyond the stream changed", i)
		}
	}
}

func TestScenarioACapacityExceeded(t *testing.T) {
	src := randomRaster(10, 10, 2)
	before := bytes.Clone(src.Pix)
	require.Equal(t, 400, src.Len())
	require.Equal(t, 300, EligibleByteCount(src))

	enc, err := Encode(context.Background(), src, bytes.Repeat([]byte("x"), 40))
	assert.ErrorIs(t, err, kerrors.ErrCapacityExceeded)
	assert.Nil(t, enc)
	assert.Equal(t, before, src.Pix)
}

func TestScenarioBSmallestFittingRaster(t *testing.T) {
	// 40 bytes need 352 bits. Whole pixels give capacities in steps of 3,
	// so 118 pixels (354 eligible bytes) is the tightest raster that fits.
	src := randomRaster(118, 1, 4)
	require.Equal(t, 354, EligibleByteCount(src))
	msg := []byte("forty bytes exactly, no more and no less")
	require.Len(t, msg, 40)

	enc, err := Encode(context.Background(), src, msg)
	require.NoError(t, err)

	got, err := Decode(context.Background(), enc)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = Encode(context.Background(), randomRaster(117, 1, 4), msg)
	assert.ErrorIs(t, err, kerrors.ErrCapacityExceeded)
}

func TestCapacityBoundaryExactFit(t *testing.T) {
	// 41 bytes need 32+328 = 360 bits = exactly 120 pixels.
	msg := bytes.Repeat([]byte{0xA7}, 41)
	exact := randomRaster(120, 1, 8)
	require.Equal(t, StreamBits(len(msg)), CapacityBits(exact))

	enc, err := Encode(context.Background(), exact, msg, WithPassword([]byte("pw")))
	require.NoError(t, err)
	got, err := Decode(context.Background(), enc, WithPassword([]byte("pw")))
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = Encode(context.Background(), randomRaster(119, 1, 8), msg)
	assert.ErrorIs(t, err, kerrors.ErrCapacityExceeded)
}

func TestScenarioCUntouchedRaster(t *testing.T) {
	src := raster.Blank(50, 50)
	for i := range src.Pix {
		src.Pix[i] = 0xFF
	}

	n, err := ExtractLength(src)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), n)

	got, err := Decode(context.Background(), src)
	assert.ErrorIs(t, err, kerrors.ErrIncompleteStream)
	assert.Nil(t, got)
}

func TestDecodeTruncatedStream(t *testing.T) {
	src := randomRaster(30, 30, 12)
	msg := bytes.Repeat([]byte("z"), 100)
	enc, err := Encode(context.Background(), src, msg)
	require.NoError(t, err)

	// Keep the header but drop the pixels carrying the payload tail.
	cut := ByteIndex(int(StreamBits(len(msg)))-8) / 4 * 4
	short, err := raster.New(cut/4, 1, enc.Pix[:cut])
	require.NoError(t, err)

	_, err = Decode(context.Background(), short)
	assert.ErrorIs(t, err, kerrors.ErrIncompleteStream)
}

func TestDecodeRasterTooSmallForHeader(t *testing.T) {
	_, err := Decode(context.Background(), raster.Blank(10, 1))
	assert.ErrorIs(t, err, kerrors.ErrIncompleteStream)

	_, err = Decode(context.Background(), raster.Blank(0, 0))
	assert.ErrorIs(t, err, kerrors.ErrIncompleteStream)
}

func TestWrongPassword(t *testing.T) {
	msg := []byte("attack at dawn")
	enc, err := Encode(context.Background(), randomRaster(32, 32, 6), msg, WithPassword([]byte("correct")))
	require.NoError(t, err)

	got, err := Decode(context.Background(), enc, WithPassword([]byte("wrong")))
	require.NoError(t, err)
	assert.Len(t, got, len(msg))
	assert.NotEqual(t, msg, got)
}

func TestEmptyMessage(t *testing.T) {
	enc, err := Encode(context.Background(), randomRaster(11, 1, 3), nil)
	require.NoError(t, err)

	n, err := ExtractLength(enc)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := Decode(context.Background(), enc)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	src := randomRaster(256, 256, 77)
	msg := make([]byte, 20000)
	rand.New(rand.NewSource(78)).Read(msg)

	seq, err := Encode(ctx, src, msg, WithWorkers(1))
	require.NoError(t, err)
	par, err := Encode(ctx, src, msg, WithWorkers(8))
	require.NoError(t, err)
	require.Equal(t, seq.Pix, par.Pix)

	gotSeq, err := Decode(ctx, par, WithWorkers(1))
	require.NoError(t, err)
	gotPar, err := Decode(ctx, par, WithWorkers(8))
	require.NoError(t, err)
	assert.Equal(t, msg, gotSeq)
	assert.Equal(t, msg, gotPar)
}

func TestCancelledContext(t *testing.T) {
	src := randomRaster(64, 64, 13)
	before := bytes.Clone(src.Pix)
	msg := []byte("cancel me")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Encode(ctx, src, msg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, src.Pix)

	enc, err := Encode(context.Background(), src, msg)
	require.NoError(t, err)
	_, err = Decode(ctx, enc)
	assert.ErrorIs(t, err, context.Canceled)
}

type prefixObfuscator struct{}

func (prefixObfuscator) Obfuscate(p, pw []byte) ([]byte, error) {
	return append(append([]byte{}, pw...), p...), nil
}

func (prefixObfuscator) Deobfuscate(p, pw []byte) ([]byte, error) {
	if !bytes.HasPrefix(p, pw) {
		return nil, kerrors.ErrAuthFailed
	}
	return p[len(pw):], nil
}

func TestCustomObfuscatorHeaderCountsObfuscatedBytes(t *testing.T) {
	ctx := context.Background()
	msg := []byte("body")
	pw := []byte("prefix-")

	enc, err := Encode(ctx, randomRaster(16, 16, 21), msg, WithPassword(pw), WithObfuscator(prefixObfuscator{}))
	require.NoError(t, err)

	n, err := ExtractLength(enc)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(pw)+len(msg)), n)

	got, err := Decode(ctx, enc, WithPassword(pw), WithObfuscator(prefixObfuscator{}))
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = Decode(ctx, enc, WithPassword([]byte("other")), WithObfuscator(prefixObfuscator{}))
	assert.ErrorIs(t, err, kerrors.ErrAuthFailed)
}

type failingObfuscator struct{ Keystream }

var errObfuscate = errors.New("obfuscator unavailable")

func (failingObfuscator) Obfuscate([]byte, []byte) ([]byte, error) {
	return nil, errObfuscate
}

func TestObfuscatorErrorPropagates(t *testing.T) {
	_, err := Encode(context.Background(), randomRaster(8, 8, 1), []byte("x"),
		WithPassword([]byte("pw")), WithObfuscator(failingObfuscator{}))
	assert.ErrorIs(t, err, errObfuscate)
}

// tagObfuscator appends a marker, so it changes the payload even without a password.
type tagObfuscator struct{}

func (tagObfuscator) Obfuscate(p, pw []byte) ([]byte, error) {
	return append(append([]byte{}, p...), '#'), nil
}

func (tagObfuscator) Deobfuscate(p, pw []byte) ([]byte, error) {
	if len(p) == 0 || p[len(p)-1] != '#' {
		return nil, kerrors.ErrAuthFailed
	}
	return p[:len(p)-1], nil
}

func TestObfuscatorRunsWithEmptyPassword(t *testing.T) {
	ctx := context.Background()
	msg := []byte("top secret")

	enc, err := Encode(ctx, randomRaster(16, 16, 5), msg, WithPassword(nil), WithObfuscator(tagObfuscator{}))
	require.NoError(t, err)

	n, err := ExtractLength(enc)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(msg)+1), n)

	got, err := Decode(ctx, enc, WithObfuscator(tagObfuscator{}))
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	raw, err := Decode(ctx, enc)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, msg...), '#'), raw)
}

func TestEmbedRejectsOversizedStream(t *testing.T) {
	src := raster.Blank(2, 2)
	_, err := Embed(context.Background(), src, make([]bool, 13), 1)
	assert.ErrorIs(t, err, kerrors.ErrCapacityExceeded)
}
