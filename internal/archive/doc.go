// Package archive implements the tar-of-tars aggregation format spec.md §6
// pins as standard USTAR: an outer tar whose members are per-contributor
// inner tars, each inner tar holding one file per slot from that
// contributor. Inner tar member names are the decimal contributor id;
// outer tar member names are unused placeholders.
//
// The package only knows about tar framing and temp-file spooling — it has
// no notion of descriptors, seeds, or hashes. internal/bulk is the only
// caller and is responsible for interpreting what the bytes mean.
package archive
