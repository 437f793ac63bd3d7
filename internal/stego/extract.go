package stego

import (
	"context"
	"fmt"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/raster"
)

// readBits returns the LSBs of stream bits [start, start+count). The caller
// guarantees the range is within capacity.
func readBits(r *raster.Raster, start, count int) []bool {
	bits := make([]bool, count)
	for i := range bits {
		bits[i] = r.Pix[ByteIndex(start+i)]&1 == 1
	}
	return bits
}

// ExtractLength decodes the 32-bit payload length header.
func ExtractLength(r *raster.Raster) (uint32, error) {
	if capacity := CapacityBits(r); capacity < HeaderBits {
		return 0, fmt.Errorf("image holds %d bits, header needs %d: %w", capacity, HeaderBits, kerrors.ErrIncompleteStream)
	}
	return DecodeLength(readBits(r, 0, HeaderBits))
}

// Extract reads the header and the payload it declares. If the raster runs
// out of eligible bytes first, Extract fails with ErrIncompleteStream rather
// than returning a short payload.
func Extract(ctx context.Context, r *raster.Raster, workers int) ([]byte, error) {
	n, err := ExtractLength(r)
	if err != nil {
		return nil, err
	}

	if need, capacity := HeaderBits+uint64(n)*BitsPerByte, CapacityBits(r); need > capacity {
		return nil, fmt.Errorf("header declares %d bytes (%d bits), image holds %d bits: %w",
			n, need, capacity, kerrors.ErrIncompleteStream)
	}

	payload := make([]byte, n)
	err = forEachBand(ctx, int(n), minBandBytes, workers, func(first, last int) {
		bits := readBits(r, HeaderBits+first*BitsPerByte, (last-first)*BitsPerByte)
		copy(payload[first:last], BitsToBytes(bits))
	})
	if err != nil {
		return nil, err
	}

	return payload, nil
}
