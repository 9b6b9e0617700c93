// Package bulk implements one participant's side of a shuffle-plus-bulk
// anonymous data exchange round: a fixed group of N nodes, numbered
// 0..N-1 with node 0 as leader, each publish one message such that every
// node ends the round holding the multiset of all N messages with no node
// able to link a message back to its author.
//
// The package is organized the way the teacher's coordinator package is:
// one file per architectural concern rather than one file per type.
//
//	config.go       node configuration, immutable for the round
//	keys.go         key pair bundles and the shared public key directory
//	descriptor.go   phase 1 descriptor construction (seeds, masking, hashes)
//	orchestrator.go the phase 0-4 state machine, leader/non-leader split
//	reconstruct.go  phase 3/4 slot computation, aggregation, reconstruction
//	errors.go       the sentinel error taxonomy and PhaseError wrapper
//
// Round flow:
//
//	Phase 0  KeyExchange        exchange RSA public keys, build the directory
//	Phase 1  DescriptorBuild    mask the message, compute commitments
//	Phase 2  Shuffle            anonymize descriptors via the Shuffler
//	Phase 3  SlotCompute        contribute or recompute each slot, aggregate
//	Phase 4  Reconstruct        cross-node XOR, verify, emit plaintexts
//
// Orchestrator.RunRound drives all five phases to completion or to the
// first fatal error, which always names the phase and cause it occurred
// in.
package bulk
