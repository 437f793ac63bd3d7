package chunker

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

func sample(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(data)
	return data
}

func TestMaxPayloadFitsOneTXTString(t *testing.T) {
	for _, enc := range []string{EncodingHex, EncodingBase32} {
		n := MaxPayload(enc)
		require.Positive(t, n)

		meta := Metadata{Magic: Magic, Total: 1}
		assert.LessOrEqual(t, len(Encode(meta, make([]byte, n), enc)), MaxTXTString, enc)
		assert.Greater(t, len(Encode(meta, make([]byte, n+1), enc)), MaxTXTString-1, enc)
	}
	assert.Zero(t, MaxPayload("base64"))
}

func TestNewValidatesConfig(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, EncodingBase32, c.Config().Encoding)
	assert.Equal(t, DefaultPayload(EncodingBase32), c.Config().PayloadSize)

	_, err = New(Config{Encoding: "rot13"})
	assert.Error(t, err)
	_, err = New(Config{Encoding: EncodingHex, PayloadSize: MaxPayload(EncodingHex) + 1})
	assert.Error(t, err)
	_, err = New(Config{PayloadSize: -1})
	assert.Error(t, err)
}

func TestSplitAndReassemble(t *testing.T) {
	for _, enc := range []string{EncodingHex, EncodingBase32} {
		t.Run(enc, func(t *testing.T) {
			c, err := New(Config{Encoding: enc, PayloadSize: 50})
			require.NoError(t, err)

			data := sample(1234)
			msg, err := c.Split(data)
			require.NoError(t, err)
			require.Len(t, msg.Chunks, 25)
			assert.Equal(t, Checksum(data), msg.Checksum)

			for i, ch := range msg.Chunks {
				assert.Equal(t, uint16(i), ch.Metadata.Sequence)
				assert.Equal(t, uint16(25), ch.Metadata.Total)
				assert.LessOrEqual(t, len(ch.Encoded), MaxTXTString)
			}
			assert.Len(t, msg.Chunks[24].Payload, 1234-24*50)

			// Decode from the wire form, shuffled, with a duplicate.
			decoded := make([]Chunk, 0, len(msg.Chunks)+1)
			for _, ch := range msg.Chunks {
				got, err := c.Decode(ch.Encoded)
				require.NoError(t, err)
				decoded = append(decoded, *got)
			}
			decoded = append(decoded, decoded[3])
			rand.New(rand.NewSource(9)).Shuffle(len(decoded), func(i, j int) {
				decoded[i], decoded[j] = decoded[j], decoded[i]
			})

			out, err := Reassemble(decoded)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}

	c, _ := New(Config{})
	assert.Equal(t, Stats{}, c.Stats())
}

func TestSplitStats(t *testing.T) {
	c, err := New(Config{Encoding: EncodingHex, PayloadSize: 10})
	require.NoError(t, err)
	_, err = c.Split(sample(25))
	require.NoError(t, err)
	_, err = c.Split(sample(10))
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, 2, s.MessagesChunked)
	assert.Equal(t, 4, s.TotalChunks)
	assert.Equal(t, 35, s.TotalBytes)
	assert.InDelta(t, 4*28*100/35.0, s.Overhead(), 0.001)
}

func TestSplitEmpty(t *testing.T) {
	c, _ := New(Config{})
	_, err := c.Split(nil)
	assert.ErrorIs(t, err, kerrors.ErrInvalidChunk)
}

func TestMessageIDIsContentDerived(t *testing.T) {
	a, err := NewMessageID([]byte("image"))
	require.NoError(t, err)
	b, err := NewMessageID([]byte("image"))
	require.NoError(t, err)
	c, err := NewMessageID([]byte("other"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), 32)
	assert.Equal(t, a.String()[:8], a.Short())

	parsed, err := ParseMessageID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseMessageID("abc")
	assert.ErrorIs(t, err, kerrors.ErrInvalidChunk)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	c, _ := New(Config{Encoding: EncodingHex, PayloadSize: 20})
	msg, err := c.Split(sample(30))
	require.NoError(t, err)
	good := msg.Chunks[0].Encoded

	_, err = c.Decode("zz")
	assert.ErrorIs(t, err, kerrors.ErrInvalidChunk)

	_, err = c.Decode(good[:20])
	assert.ErrorIs(t, err, kerrors.ErrInvalidChunk)

	// Flip a payload nibble.
	last := good[len(good)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	_, err = c.Decode(good[:len(good)-1] + string(flipped))
	assert.ErrorIs(t, err, kerrors.ErrChecksumMismatch)

	// Wrong magic.
	_, err = c.Decode("00000000" + good[8:])
	assert.ErrorIs(t, err, kerrors.ErrInvalidChunk)
}

func TestDecodeAutoDetect(t *testing.T) {
	for _, enc := range []string{EncodingHex, EncodingBase32} {
		c, _ := New(Config{Encoding: enc})
		msg, err := c.Split([]byte("auto"))
		require.NoError(t, err)

		got, err := Decode(msg.Chunks[0].Encoded, "")
		require.NoError(t, err, enc)
		assert.Equal(t, []byte("auto"), got.Payload)
	}

	// Resolvers may lowercase TXT data; base32 decoding tolerates it.
	c, _ := New(Config{Encoding: EncodingBase32})
	msg, _ := c.Split([]byte("case"))
	_, err := c.Decode(strings.ToLower(msg.Chunks[0].Encoded))
	assert.NoError(t, err)
}

func TestReassembleErrors(t *testing.T) {
	c, _ := New(Config{Encoding: EncodingHex, PayloadSize: 10})
	a, err := c.Split(sample(35))
	require.NoError(t, err)
	b, err := c.Split(sample(36))
	require.NoError(t, err)

	_, err = Reassemble(nil)
	assert.ErrorIs(t, err, kerrors.ErrIncompleteMessage)

	_, err = Reassemble(a.Chunks[:2])
	assert.ErrorIs(t, err, kerrors.ErrIncompleteMessage)
	assert.Contains(t, err.Error(), "[2 3]")

	mixed := append([]Chunk{}, a.Chunks...)
	mixed[1] = b.Chunks[1]
	_, err = Reassemble(mixed)
	assert.ErrorIs(t, err, kerrors.ErrInvalidChunk)

	corrupt := append([]Chunk{}, a.Chunks...)
	corrupt[0].Payload = bytes.Repeat([]byte{0}, 10)
	_, err = Reassemble(corrupt)
	assert.ErrorIs(t, err, kerrors.ErrChecksumMismatch)
}

func TestValidateSequenceBounds(t *testing.T) {
	ch := &Chunk{
		Metadata: Metadata{Magic: Magic, Sequence: 2, Total: 2, Checksum: Checksum([]byte("x"))},
		Payload:  []byte("x"),
	}
	assert.ErrorIs(t, Validate(ch), kerrors.ErrInvalidChunk)

	ch.Metadata.Sequence = 1
	assert.NoError(t, Validate(ch))

	ch.Payload = nil
	assert.ErrorIs(t, Validate(ch), kerrors.ErrInvalidChunk)
}
