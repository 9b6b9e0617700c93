package primitives

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrInvalidPublicKey is returned when a public key loaded from its PEM/DER
// encoding fails the consistency check the spec requires before it is
// trusted for seed encryption.
var ErrInvalidPublicKey = errors.New("primitives: public key failed consistency check")

// KeyPair is one RSA keypair. The bulk node holds two of these per round:
// one for seed encryption (primary) and one reserved for the shuffle
// subroutine (secondary) — see spec.md §3 "Key pair bundle".
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// GenerateKeyPair creates a fresh RSA keypair of the given modulus length in
// bits. Keys are regenerated every round; the spec treats this as an
// acceptable demo posture (spec.md §9, Open Question 1).
func GenerateKeyPair(bits int) (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("primitives: generate key: %w", err)
	}
	return KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// MarshalPublicKey encodes a public key to its PKIX/DER byte form, the
// "standard PEM/DER-equivalent byte form" spec.md §6 specifies for exchange.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("primitives: marshal public key: %w", err)
	}
	return der, nil
}

// ParsePublicKey decodes a public key from its DER byte form and validates
// it, as spec.md §4.2 requires every non-leader to do for every key it
// receives in the phase 0 broadcast ("RSA consistency check").
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPublicKey)
	}
	if err := checkPublicKey(rsaPub); err != nil {
		return nil, err
	}
	return rsaPub, nil
}

// checkPublicKey performs the RSA consistency check required before a
// received key is trusted: a non-trivial modulus and a usable, odd public
// exponent greater than 1.
func checkPublicKey(pub *rsa.PublicKey) error {
	if pub.N == nil || pub.N.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive modulus", ErrInvalidPublicKey)
	}
	if pub.E <= 1 || pub.E%2 == 0 {
		return fmt.Errorf("%w: degenerate exponent", ErrInvalidPublicKey)
	}
	if pub.N.BitLen() < 512 {
		return fmt.Errorf("%w: modulus too short (%d bits)", ErrInvalidPublicKey, pub.N.BitLen())
	}
	return nil
}

// EncryptSeed RSA-encrypts a seed under the recipient's primary public key
// using OAEP with SHA-256. This must be performed exactly once per
// recipient per round (spec.md §9 "Self-recognition by opaque-ciphertext
// equality") — the caller is responsible for retaining the returned
// ciphertext verbatim rather than re-encrypting for comparison, since OAEP
// is randomized and two encryptions of the same plaintext never match.
func EncryptSeed(pub *rsa.PublicKey, seed Seed) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, seed[:], nil)
	if err != nil {
		return nil, fmt.Errorf("primitives: encrypt seed: %w", err)
	}
	return ct, nil
}

// DecryptSeed reverses EncryptSeed using the node's own private key.
func DecryptSeed(priv *rsa.PrivateKey, ciphertext []byte) (Seed, error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return Seed{}, fmt.Errorf("primitives: decrypt seed: %w", err)
	}
	var seed Seed
	if len(pt) != len(seed) {
		return Seed{}, fmt.Errorf("primitives: decrypted seed has wrong length: %d", len(pt))
	}
	copy(seed[:], pt)
	return seed, nil
}

// EncodePEM wraps a DER-encoded public key in a PEM block, useful for log
// output.
func EncodePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}
