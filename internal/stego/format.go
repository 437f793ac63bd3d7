// Package stego embeds a byte payload in the least significant bits of an
// RGBA raster and recovers it.
//
// Bit-stream layout:
//
//	bit 0     payload length, 32 bits, unsigned big-endian, counts payload bytes
//	bit 32    payload, length×8 bits, MSB first per byte
//
// Stream bit k lives in the LSB of raster byte p(k), the k-th byte whose
// index is not 3 mod 4. Alpha bytes are never read or written. This scan
// order is the only contract between Encode and Decode.
package stego

import "github.com/faanross/simulacra_lsb/internal/raster"

const (
	HeaderBits       = 32 // bits for storing payload length
	BitsPerByte      = 8
	ChannelsPerPixel = 3 // R, G, B carry data; A is skipped
	alphaOffset      = 3
)

// ByteIndex returns p(k), the raster byte holding stream bit k.
func ByteIndex(k int) int {
	return (k/ChannelsPerPixel)*raster.BytesPerPixel + k%ChannelsPerPixel
}

// BitIndex is the inverse of ByteIndex. ok is false for alpha bytes.
func BitIndex(i int) (k int, ok bool) {
	c := i % raster.BytesPerPixel
	if c == alphaOffset {
		return 0, false
	}
	return (i/raster.BytesPerPixel)*ChannelsPerPixel + c, true
}

// EmbedBit sets the LSB of a color value to bit.
func EmbedBit(colorValue uint8, bit bool) uint8 {
	if bit {
		return colorValue | 1
	}
	return colorValue &^ 1
}
