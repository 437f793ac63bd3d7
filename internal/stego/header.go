package stego

import (
	"encoding/binary"
	"fmt"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

// EncodeLength returns n as 32 big-endian bits.
func EncodeLength(n uint32) []bool {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	return BytesToBits(buf[:])
}

// DecodeLength reads the payload byte length from the first 32 bits.
func DecodeLength(bits []bool) (uint32, error) {
	if len(bits) < HeaderBits {
		return 0, fmt.Errorf("header needs %d bits, got %d: %w", HeaderBits, len(bits), kerrors.ErrIncompleteStream)
	}
	return binary.BigEndian.Uint32(BitsToBytes(bits[:HeaderBits])), nil
}
