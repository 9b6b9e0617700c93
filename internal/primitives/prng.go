package primitives

import (
	"crypto/sha1" //nolint:gosec // spec-mandated commitment hash, not used for signatures
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20"
)

// SeedLen is the width of a recipient seed in bytes. ChaCha20 keys are 32
// bytes; the seed is used directly as the cipher key.
const SeedLen = 32

// Seed is one recipient's pseudo-random stream seed (spec.md §3 "Seed set").
type Seed [SeedLen]byte

// NewSeed draws a fresh cryptographically random seed.
func NewSeed(rnd io.Reader) (Seed, error) {
	var s Seed
	if _, err := io.ReadFull(rnd, s[:]); err != nil {
		return Seed{}, fmt.Errorf("primitives: draw seed: %w", err)
	}
	return s, nil
}

// Stream is a seeded pseudo-random byte generator that also maintains a
// running SHA-1 digest of every byte it has emitted — the "PRNG-with-hash
// duality" spec.md §9 requires so that a producer masking a message and a
// consumer re-deriving the same stream from the decrypted seed arrive at
// identical commitments.
//
// A Stream is seeded deterministically from a Seed: the same seed always
// produces the same byte sequence and, after emitting the same number of
// bytes, the same digest.
type Stream struct {
	cipher *chacha20.Cipher
	digest hash.Hash
}

// NewStream creates a Stream keyed by seed. The nonce is fixed (all zero)
// because the seed itself is never reused across streams — each recipient
// gets its own freshly drawn seed every round (spec.md §4.3 step 1).
func NewStream(seed Seed) *Stream {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		// Seed is always exactly the key size chacha20 requires; this
		// cannot fail in practice.
		panic(fmt.Sprintf("primitives: chacha20 init: %v", err))
	}
	return &Stream{cipher: c, digest: sha1.New()}
}

// Emit produces the next n pseudo-random bytes and folds them into the
// stream's running digest.
func (s *Stream) Emit(n int) []byte {
	out := make([]byte, n)
	s.cipher.XORKeyStream(out, out)
	s.digest.Write(out)
	return out
}

// XORInto XORs the next len(dst) pseudo-random bytes into dst in place,
// used by the descriptor builder to mask a message block, and folds the
// same bytes into the running digest. The keystream bytes go through a
// scratch buffer of len(dst) so they can be hashed.
func (s *Stream) XORInto(dst []byte) {
	stream := make([]byte, len(dst))
	s.cipher.XORKeyStream(stream, stream)
	s.digest.Write(stream)
	for i := range dst {
		dst[i] ^= stream[i]
	}
}

// Finalize returns the SHA-1 digest of every byte emitted so far. Calling
// Finalize does not consume the underlying cipher stream — a Stream may be
// finalized once its commitment is needed and still used to emit more
// bytes afterward, though the protocol never does so.
func (s *Stream) Finalize() []byte {
	sum := s.digest.Sum(nil)
	out := make([]byte, len(sum))
	copy(out, sum)
	return out
}
