// Package scrypto holds the password-based primitives: key derivation, the
// authenticated payload Sealer, account password hashing and hidden prompts.
package scrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/multiformats/go-multibase"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/term"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/stego"
)

const (
	SaltSize          = 32
	KeySize           = chacha20poly1305.KeySize
	NonceSize         = chacha20poly1305.NonceSize
	TagSize           = chacha20poly1305.Overhead
	DefaultIterations = 100000

	// SealOverhead is the number of bytes Sealer adds to a payload.
	SealOverhead = SaltSize + NonceSize + TagSize

	hashScheme = "pbkdf2-sha256"
)

// DeriveKey stretches password into a KeySize key using PBKDF2-SHA256.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations < 1 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// Sealer is an Obfuscator that encrypts and authenticates the payload with
// ChaCha20-Poly1305. Sealed layout: salt(32) | nonce(12) | ciphertext | tag(16).
// Unlike the keystream, a wrong password is detected and reported as
// ErrAuthFailed.
type Sealer struct {
	// Iterations for PBKDF2. Zero means DefaultIterations.
	Iterations int
	// Rand supplies salt and nonce bytes. Nil means crypto/rand.
	Rand io.Reader
}

var _ stego.Obfuscator = Sealer{}

func (s Sealer) random() io.Reader {
	if s.Rand != nil {
		return s.Rand
	}
	return rand.Reader
}

// Obfuscate seals payload under a key derived from password.
func (s Sealer) Obfuscate(payload, password []byte) ([]byte, error) {
	header := make([]byte, SaltSize+NonceSize)
	if _, err := io.ReadFull(s.random(), header); err != nil {
		return nil, fmt.Errorf("generating salt and nonce: %w", err)
	}
	salt, nonce := header[:SaltSize], header[SaltSize:]

	aead, err := chacha20poly1305.New(DeriveKey(password, salt, s.Iterations))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	out := make([]byte, 0, SealOverhead+len(payload))
	out = append(out, header...)
	return aead.Seal(out, nonce, payload, nil), nil
}

// Deobfuscate opens a payload produced by Obfuscate.
func (s Sealer) Deobfuscate(sealed, password []byte) ([]byte, error) {
	if len(sealed) < SealOverhead {
		return nil, fmt.Errorf("sealed payload is %d bytes, minimum is %d: %w",
			len(sealed), SealOverhead, kerrors.ErrAuthFailed)
	}
	salt := sealed[:SaltSize]
	nonce := sealed[SaltSize : SaltSize+NonceSize]

	aead, err := chacha20poly1305.New(DeriveKey(password, salt, s.Iterations))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, sealed[SaltSize+NonceSize:], nil)
	if err != nil {
		return nil, kerrors.ErrAuthFailed
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

// HashPassword returns a self-describing salted hash of password suitable for
// storing in a user record: "pbkdf2-sha256$<iter>$<salt>$<key>", with salt and
// key multibase-encoded.
func HashPassword(password string, iterations int) (string, error) {
	if iterations < 1 {
		iterations = DefaultIterations
	}
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := DeriveKey([]byte(password), salt, iterations)

	encSalt, err := multibase.Encode(multibase.Base64, salt)
	if err != nil {
		return "", err
	}
	encKey, err := multibase.Encode(multibase.Base64, key)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{hashScheme, strconv.Itoa(iterations), encSalt, encKey}, "$"), nil
}

// VerifyPassword reports whether password matches a hash from HashPassword.
// Malformed hashes never match.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashScheme {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < 1 {
		return false
	}
	_, salt, err := multibase.Decode(parts[2])
	if err != nil {
		return false
	}
	_, want, err := multibase.Decode(parts[3])
	if err != nil {
		return false
	}

	got := DeriveKey([]byte(password), salt, iterations)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// GetSecurePassword prompts on stderr and reads a password from the terminal
// without echo.
func GetSecurePassword(prompt string, minLen int) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("password read failed: %w", err)
	}

	if len(password) < minLen {
		return nil, fmt.Errorf("password must be at least %d characters", minLen)
	}
	return password, nil
}
