// Package codec implements the deterministic, portable, self-describing
// wire encoding spec.md §6 requires for the two message shapes the core
// exchanges: the descriptor record (§3) and the phase-0 key broadcast.
//
// Encoding is CBOR in canonical (RFC 7049 §3.9) form via
// github.com/fxamacker/cbor/v2: map keys are sorted, integers use their
// shortest form, and two encodings of the same value are always
// byte-identical. A descriptor is encoded once, by its author; every other
// node only decodes it after the shuffle.
package codec
