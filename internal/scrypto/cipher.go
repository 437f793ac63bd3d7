package scrypto

import (
	"fmt"
	"strings"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/stego"
)

// Cipher names accepted in configuration and on the command line.
const (
	CipherXOR    = "xor"
	CipherSealed = "sealed"
)

// ForCipher returns the Obfuscator registered under name. An empty name
// selects the keystream.
func ForCipher(name string) (stego.Obfuscator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CipherXOR:
		return stego.Keystream{}, nil
	case CipherSealed:
		return Sealer{}, nil
	default:
		return nil, fmt.Errorf("%q (want %s or %s): %w", name, CipherXOR, CipherSealed, kerrors.ErrUnknownCipher)
	}
}
