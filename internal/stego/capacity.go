package stego

import (
	"fmt"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/raster"
)

// EligibleByteCount counts buffer bytes that are not alpha bytes.
func EligibleByteCount(r *raster.Raster) int {
	n := r.Len()
	tail := n % raster.BytesPerPixel
	if tail > ChannelsPerPixel {
		tail = ChannelsPerPixel
	}
	return n/raster.BytesPerPixel*ChannelsPerPixel + tail
}

// CapacityBits is the number of stream bits r can carry, one per eligible byte.
func CapacityBits(r *raster.Raster) uint64 {
	return uint64(EligibleByteCount(r))
}

// StreamBits is the bit-stream length for a payload of payloadLen bytes.
func StreamBits(payloadLen int) uint64 {
	return HeaderBits + uint64(payloadLen)*BitsPerByte
}

// MaxPayload is the largest payload, in bytes, that fits in r.
func MaxPayload(r *raster.Raster) int {
	capacity := CapacityBits(r)
	if capacity < HeaderBits {
		return 0
	}
	return int((capacity - HeaderBits) / BitsPerByte)
}

// Validate fails with ErrCapacityExceeded when r cannot hold neededBits.
func Validate(r *raster.Raster, neededBits uint64) error {
	if capacity := CapacityBits(r); capacity < neededBits {
		return fmt.Errorf("need %d bits, image holds %d: %w", neededBits, capacity, kerrors.ErrCapacityExceeded)
	}
	return nil
}
