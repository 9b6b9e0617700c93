// Package primitives provides the cryptographic building blocks the bulk
// protocol core is specified against: RSA keypairs for seed transport, a
// seeded pseudo-random stream that also accumulates its own SHA-1 digest,
// and constant-time XOR.
//
// The protocol specification treats these as an external primitive library
// — this package is the stand-in implementation used to make the rest of
// the core runnable and testable. It has no knowledge of rounds, phases, or
// descriptors; internal/bulk is the only caller.
package primitives
