// Package cidutil derives content identifiers for images and relay messages.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	c, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return c.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Digest returns the bare sha2-256 digest of data, unwrapped from its multihash.
func Digest(data []byte) ([]byte, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return nil, err
	}
	decoded, err := multihash.Decode(sum)
	if err != nil {
		return nil, err
	}
	return decoded.Digest, nil
}

// Verify reports whether id is the raw sha2-256 CID of data.
func Verify(id string, data []byte) (bool, error) {
	parsed, err := cid.Decode(id)
	if err != nil {
		return false, fmt.Errorf("parsing cid %q: %w", id, err)
	}
	want, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return false, err
	}
	return parsed.Equals(want), nil
}
