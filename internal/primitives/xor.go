package primitives

import "fmt"

// XORBytes returns a ^ b byte-wise. Both slices must have equal length —
// every caller in the core deals in fixed-length blocks, so a length
// mismatch indicates a protocol bug rather than recoverable input.
func XORBytes(a, b []byte) []byte {
	if len(a) != len(b) {
		panic(fmt.Sprintf("primitives: XORBytes length mismatch: %d != %d", len(a), len(b)))
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// XORInto XORs src into dst in place. len(dst) must equal len(src).
func XORInto(dst, src []byte) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("primitives: XORInto length mismatch: %d != %d", len(dst), len(src)))
	}
	for i := range dst {
		dst[i] ^= src[i]
	}
}
