// Package shuffle provides the anonymizing permutation subroutine the bulk
// protocol treats as an external collaborator (spec.md §4.4): given N
// blobs contributed by N ring-connected nodes, it
// returns those same N blobs to every node in one consistent, anonymized
// order.
//
// Shuffler is the interface internal/bulk's orchestrator depends on.
// LeaderShuffle is a reference implementation grounded on the teacher's
// coordinator/worker split (internal/coordinator plus internal/shard): the
// leader plays the coordinator role — gather everyone's blob, permute with
// crypto/rand, rebroadcast — while non-leaders play the passive worker role
// of sending once and waiting for the result. It is not an anonymous
// shuffle in the cryptographic sense (the leader sees every blob in clear
// and knows who sent it); it exists so the bulk protocol's phases 3 and 4
// have a real permutation to consume in tests and in the reference
// launcher, exactly the role an untrusted black-box would play in
// production.
package shuffle
