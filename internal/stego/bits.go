package stego

// BytesToBits expands each byte to 8 bits, most significant first.
func BytesToBits(data []byte) []bool {
	bits := make([]bool, len(data)*BitsPerByte)
	for i, b := range data {
		for j := 0; j < BitsPerByte; j++ {
			bits[i*BitsPerByte+j] = b&(1<<(7-j)) != 0
		}
	}
	return bits
}

// BitsToBytes packs bits 8 at a time, MSB first. A trailing group of fewer
// than 8 bits is dropped.
func BitsToBytes(bits []bool) []byte {
	out := make([]byte, len(bits)/BitsPerByte)
	for i := range out {
		var b byte
		for j := 0; j < BitsPerByte; j++ {
			if bits[i*BitsPerByte+j] {
				b |= 1 << (7 - j)
			}
		}
		out[i] = b
	}
	return out
}
