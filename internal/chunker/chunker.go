// Package chunker splits an image file into self-describing fragments small
// enough for a single DNS TXT string, and reassembles them.
//
// Wire format of one fragment before text encoding:
//
//	magic(4) | message id(16) | sequence(2) | total(2) | crc32(4) | payload
//
// All integers are big-endian. The checksum covers the fragment payload only;
// whole-message integrity is carried separately by the manifest.
package chunker

import (
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/faanross/simulacra_lsb/internal/cidutil"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

const (
	// MaxTXTString is the longest character-string a TXT record can hold.
	MaxTXTString = 255

	// HeaderSize is the fixed fragment header.
	HeaderSize = 28

	// Magic tags fragments produced by this package ("SLSB").
	Magic = 0x534C5342

	EncodingHex    = "hex"
	EncodingBase32 = "base32"
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// MaxPayload is the largest fragment payload whose encoded form fits one TXT
// string. It returns 0 for an unknown encoding.
func MaxPayload(encoding string) int {
	switch encoding {
	case EncodingHex:
		return MaxTXTString/2 - HeaderSize
	case EncodingBase32:
		return b32.DecodedLen(MaxTXTString) - HeaderSize
	default:
		return 0
	}
}

// DefaultPayload leaves a few characters of headroom under MaxPayload.
func DefaultPayload(encoding string) int {
	return MaxPayload(encoding) * 9 / 10
}

// MessageID identifies a message across all of its fragments.
type MessageID [16]byte

func (id MessageID) String() string {
	return hex.EncodeToString(id[:])
}

// Short is the first eight hex digits, for display.
func (id MessageID) Short() string {
	return id.String()[:8]
}

// ParseMessageID parses the 32 hex digit form produced by String.
func ParseMessageID(s string) (MessageID, error) {
	var id MessageID
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("message id %q: %w", s, kerrors.ErrInvalidChunk)
	}
	copy(id[:], raw)
	return id, nil
}

// NewMessageID derives the id from the sha2-256 multihash of data, so the
// same image always maps to the same id.
func NewMessageID(data []byte) (MessageID, error) {
	var id MessageID
	digest, err := cidutil.Digest(data)
	if err != nil {
		return id, err
	}
	copy(id[:], digest)
	return id, nil
}

// Checksum is the CRC32 (IEEE) used for fragments and whole messages.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Metadata is the decoded fragment header.
type Metadata struct {
	Magic     uint32
	MessageID MessageID
	Sequence  uint16
	Total     uint16
	Checksum  uint32
}

// Chunk is one fragment.
type Chunk struct {
	Metadata Metadata
	Payload  []byte
	Encoded  string
}

// Message is a fragmented image file.
type Message struct {
	ID        MessageID
	Data      []byte
	Checksum  uint32
	Encoding  string
	Chunks    []Chunk
	CreatedAt time.Time
}

// Config controls fragmentation.
type Config struct {
	Encoding    string // hex or base32, default base32
	PayloadSize int    // bytes per fragment, default DefaultPayload(Encoding)
}

// Stats counts work done by a Chunker.
type Stats struct {
	MessagesChunked int
	TotalChunks     int
	TotalBytes      int
}

// Overhead is the header bytes as a percent of payload bytes.
func (s Stats) Overhead() float64 {
	if s.TotalBytes == 0 {
		return 0
	}
	return float64(s.TotalChunks*HeaderSize) * 100 / float64(s.TotalBytes)
}

// Chunker fragments and reassembles messages. It is not safe for concurrent use.
type Chunker struct {
	config Config
	stats  Stats
}

// New validates cfg and returns a Chunker.
func New(cfg Config) (*Chunker, error) {
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingBase32
	}
	limit := MaxPayload(cfg.Encoding)
	if limit == 0 {
		return nil, fmt.Errorf("unknown encoding %q", cfg.Encoding)
	}
	if cfg.PayloadSize == 0 {
		cfg.PayloadSize = DefaultPayload(cfg.Encoding)
	}
	if cfg.PayloadSize < 1 || cfg.PayloadSize > limit {
		return nil, fmt.Errorf("payload size %d outside 1..%d for %s", cfg.PayloadSize, limit, cfg.Encoding)
	}
	return &Chunker{config: cfg}, nil
}

// Config returns the effective configuration.
func (c *Chunker) Config() Config {
	return c.config
}

// Stats returns the running totals.
func (c *Chunker) Stats() Stats {
	return c.stats
}

// Split fragments data.
func (c *Chunker) Split(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("nothing to split: %w", kerrors.ErrInvalidChunk)
	}
	total := (len(data) + c.config.PayloadSize - 1) / c.config.PayloadSize
	if total > math.MaxUint16 {
		return nil, fmt.Errorf("message needs %d chunks, limit is %d", total, math.MaxUint16)
	}

	id, err := NewMessageID(data)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ID:        id,
		Data:      data,
		Checksum:  Checksum(data),
		Encoding:  c.config.Encoding,
		Chunks:    make([]Chunk, 0, total),
		CreatedAt: time.Now(),
	}
	for seq := 0; seq < total; seq++ {
		start := seq * c.config.PayloadSize
		end := min(start+c.config.PayloadSize, len(data))
		meta := Metadata{
			Magic:     Magic,
			MessageID: id,
			Sequence:  uint16(seq),
			Total:     uint16(total),
			Checksum:  Checksum(data[start:end]),
		}
		msg.Chunks = append(msg.Chunks, Chunk{
			Metadata: meta,
			Payload:  data[start:end],
			Encoded:  Encode(meta, data[start:end], c.config.Encoding),
		})
	}

	c.stats.MessagesChunked++
	c.stats.TotalChunks += total
	c.stats.TotalBytes += len(data)
	return msg, nil
}

// Encode serializes a fragment and applies the text encoding.
func Encode(meta Metadata, payload []byte, encoding string) string {
	raw := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(raw[0:4], meta.Magic)
	copy(raw[4:20], meta.MessageID[:])
	binary.BigEndian.PutUint16(raw[20:22], meta.Sequence)
	binary.BigEndian.PutUint16(raw[22:24], meta.Total)
	binary.BigEndian.PutUint32(raw[24:28], meta.Checksum)
	raw = append(raw, payload...)

	if encoding == EncodingHex {
		return hex.EncodeToString(raw)
	}
	return b32.EncodeToString(raw)
}

// Decode parses an encoded fragment and validates it.
func (c *Chunker) Decode(encoded string) (*Chunk, error) {
	return Decode(encoded, c.config.Encoding)
}

// Decode parses an encoded fragment and validates it. An empty encoding
// tries hex, then base32.
func Decode(encoded, encoding string) (*Chunk, error) {
	var raw []byte
	var err error
	switch encoding {
	case EncodingHex:
		raw, err = hex.DecodeString(encoded)
	case EncodingBase32:
		raw, err = b32.DecodeString(strings.ToUpper(encoded))
	default:
		raw, err = hex.DecodeString(encoded)
		if err != nil {
			raw, err = b32.DecodeString(strings.ToUpper(encoded))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrInvalidChunk, err)
	}
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("fragment is %d bytes, header needs %d: %w", len(raw), HeaderSize, kerrors.ErrInvalidChunk)
	}

	var meta Metadata
	meta.Magic = binary.BigEndian.Uint32(raw[0:4])
	copy(meta.MessageID[:], raw[4:20])
	meta.Sequence = binary.BigEndian.Uint16(raw[20:22])
	meta.Total = binary.BigEndian.Uint16(raw[22:24])
	meta.Checksum = binary.BigEndian.Uint32(raw[24:28])

	chunk := &Chunk{Metadata: meta, Payload: raw[HeaderSize:], Encoded: encoded}
	if err := Validate(chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// Validate checks the magic, sequence bounds and payload checksum.
func Validate(chunk *Chunk) error {
	meta := chunk.Metadata
	if meta.Magic != Magic {
		return fmt.Errorf("bad magic %08x: %w", meta.Magic, kerrors.ErrInvalidChunk)
	}
	if meta.Sequence >= meta.Total {
		return fmt.Errorf("sequence %d out of range (total %d): %w", meta.Sequence, meta.Total, kerrors.ErrInvalidChunk)
	}
	if len(chunk.Payload) == 0 {
		return fmt.Errorf("empty payload: %w", kerrors.ErrInvalidChunk)
	}
	if got := Checksum(chunk.Payload); got != meta.Checksum {
		return fmt.Errorf("chunk %d: crc32 %08x, header says %08x: %w", meta.Sequence, got, meta.Checksum, kerrors.ErrChecksumMismatch)
	}
	return nil
}

// Reassemble joins fragments of one message in sequence order. Fragments may
// arrive in any order and duplicates are ignored.
func Reassemble(chunks []Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks: %w", kerrors.ErrIncompleteMessage)
	}

	first := chunks[0].Metadata
	bySeq := make(map[uint16]Chunk, first.Total)
	for _, ch := range chunks {
		meta := ch.Metadata
		if meta.MessageID != first.MessageID {
			return nil, fmt.Errorf("mixed messages %s and %s: %w",
				first.MessageID.Short(), meta.MessageID.Short(), kerrors.ErrInvalidChunk)
		}
		if meta.Total != first.Total {
			return nil, fmt.Errorf("inconsistent totals %d and %d: %w", first.Total, meta.Total, kerrors.ErrInvalidChunk)
		}
		if err := Validate(&ch); err != nil {
			return nil, err
		}
		bySeq[meta.Sequence] = ch
	}

	if missing := Missing(bySeq, first.Total); len(missing) > 0 {
		return nil, fmt.Errorf("missing chunks %v of %d: %w", missing, first.Total, kerrors.ErrIncompleteMessage)
	}

	ordered := make([]Chunk, 0, len(bySeq))
	for _, ch := range bySeq {
		ordered = append(ordered, ch)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Metadata.Sequence < ordered[j].Metadata.Sequence
	})

	var data []byte
	for _, ch := range ordered {
		data = append(data, ch.Payload...)
	}
	return data, nil
}

// Missing lists the sequence numbers below total that are absent from have.
func Missing(have map[uint16]Chunk, total uint16) []uint16 {
	var missing []uint16
	for seq := uint16(0); seq < total; seq++ {
		if _, ok := have[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	return missing
}
