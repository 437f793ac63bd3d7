package stego

// Obfuscator transforms payload bytes with a password before embedding and
// reverses the transform after extraction.
type Obfuscator interface {
	Obfuscate(payload, password []byte) ([]byte, error)
	Deobfuscate(payload, password []byte) ([]byte, error)
}

// Apply XORs payload with password repeated to the payload's length. An
// empty password returns an unmodified copy. Apply is its own inverse and
// never touches its inputs.
func Apply(payload, password []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	if len(password) == 0 {
		return out
	}
	for i := range out {
		out[i] ^= password[i%len(password)]
	}
	return out
}

// Keystream is the repeating-XOR Obfuscator. It is not encryption: a wrong
// password yields wrong bytes of the right length, never an error.
type Keystream struct{}

func (Keystream) Obfuscate(payload, password []byte) ([]byte, error) {
	return Apply(payload, password), nil
}

func (Keystream) Deobfuscate(payload, password []byte) ([]byte, error) {
	return Apply(payload, password), nil
}
