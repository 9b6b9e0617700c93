package bulk

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // spec-mandated commitment hash, not used for signatures
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/dreamware/bulknode/internal/archive"
	"github.com/dreamware/bulknode/internal/primitives"
)

// reconstructBlockSize is the streaming block size used both for PRNG
// expansion in phase 3 and for cross-node XOR in phase 4 (spec.md §4.6,
// "in blocks of ~64 KiB").
const reconstructBlockSize = 64 * 1024

// slotState tracks one node's progress contributing to and later
// verifying every slot in a round, adapted from the teacher's shard.go
// state-plus-stats shape (internal/shard/shard.go): a small struct the
// orchestrator mutates slot by slot instead of all at once.
type slotState struct {
	foundSelf     bool
	contribPaths  []string // contribPaths[k] = this node's contribution file for slot k
}

// newSlotState preallocates per-slot bookkeeping for n slots.
func newSlotState(n int) *slotState {
	return &slotState{contribPaths: make([]string, n)}
}

// computeSlotContribution implements spec.md §4.5 steps 1-3 for slot k:
// self-recognition by opaque-ciphertext equality, or seed decryption plus
// PRNG re-expansion and commitment verification.
func computeSlotContribution(cfg NodeConfig, priv *rsa.PrivateKey, own BuiltDescriptor, desc Descriptor, k int, tmpDir string, st *slotState) error {
	if len(desc.EncSeeds) != cfg.N || len(desc.Hashes) != cfg.N {
		return failf(PhaseSlotCompute, ErrKey, "slot %d: descriptor arrays have length %d/%d, want %d", k, len(desc.EncSeeds), len(desc.Hashes), cfg.N)
	}

	if bytes.Equal(desc.EncSeeds[cfg.ID], own.OwnEncSeed) {
		st.foundSelf = true
		st.contribPaths[k] = own.MaskedCipherPath
		return nil
	}

	seed, err := primitives.DecryptSeed(priv, desc.EncSeeds[cfg.ID])
	if err != nil {
		return failf(PhaseSlotCompute, ErrKey, "slot %d: decrypt seed: %v", k, err)
	}

	stream := primitives.NewStream(seed)
	path, err := expandStreamToFile(stream, desc.MsgLen, tmpDir)
	if err != nil {
		return failf(PhaseSlotCompute, ErrConfig, "slot %d: expand PRNG: %v", k, err)
	}
	if !bytes.Equal(stream.Finalize(), desc.Hashes[cfg.ID]) {
		return failf(PhaseSlotCompute, ErrCommitmentMismatch, "slot %d: contributor %d's own hash disagrees with expanded stream", k, cfg.ID)
	}

	st.contribPaths[k] = path
	return nil
}

// expandStreamToFile writes exactly n pseudo-random bytes from stream to a
// fresh temp file, in blocks, so expansion never buffers the whole message.
func expandStreamToFile(stream *primitives.Stream, n int64, tmpDir string) (string, error) {
	f, err := os.CreateTemp(tmpDir, "prng-*.bin")
	if err != nil {
		return "", fmt.Errorf("create expansion file: %w", err)
	}
	defer f.Close()

	var written int64
	for written < n {
		chunk := int64(reconstructBlockSize)
		if remaining := n - written; remaining < chunk {
			chunk = remaining
		}
		block := stream.Emit(int(chunk))
		if _, err := f.Write(block); err != nil {
			return "", fmt.Errorf("write expansion block: %w", err)
		}
		written += chunk
	}
	return f.Name(), nil
}

// packOwnTar builds this node's inner tar from its per-slot contributions,
// in slot order, keyed by this node's own id (spec.md §4.5: "contributions
// within a per-node tar MUST be keyed by author id").
func packOwnTar(cfg NodeConfig, st *slotState, tmpDir string) (string, error) {
	for k, p := range st.contribPaths {
		if p == "" {
			return "", failf(PhaseSlotCompute, ErrArchive, "slot %d: no contribution computed", k)
		}
	}
	f, err := os.CreateTemp(tmpDir, "inner-*.tar")
	if err != nil {
		return "", failf(PhaseSlotCompute, ErrArchive, "create inner tar: %v", err)
	}
	f.Close()
	if err := archive.PackInner(f.Name(), cfg.ID, st.contribPaths); err != nil {
		return "", failf(PhaseSlotCompute, ErrArchive, "pack inner tar: %v", err)
	}
	return f.Name(), nil
}

// reconstructSlot implements spec.md §4.6 for one slot: stream every
// contributor's file in lockstep, XOR blocks together, verify each
// contributor's running digest against the slot's descriptor, and write
// the recovered plaintext to outPath.
func reconstructSlot(desc Descriptor, slot int, contribByAuthor map[int]string, outPath string) error {
	n := len(desc.EncSeeds)
	handles := make([]*os.File, n)
	digests := make([]hash.Hash, n)
	for c := 0; c < n; c++ {
		path, ok := contribByAuthor[c]
		if !ok {
			return failf(PhaseReconstruct, ErrArchive, "slot %d: missing contribution from %d", slot, c)
		}
		f, err := os.Open(path)
		if err != nil {
			return failf(PhaseReconstruct, ErrArchive, "slot %d: open contribution from %d: %v", slot, c, err)
		}
		defer f.Close()
		handles[c] = f
		digests[c] = sha1.New() //nolint:gosec // spec-mandated commitment hash, not used for signatures
	}

	out, err := os.Create(outPath)
	if err != nil {
		return failf(PhaseReconstruct, ErrArchive, "slot %d: create output: %v", slot, err)
	}
	defer out.Close()

	bufs := make([][]byte, n)
	for c := range bufs {
		bufs[c] = make([]byte, reconstructBlockSize)
	}

	for {
		read := -1
		for c := 0; c < n; c++ {
			nRead, err := io.ReadFull(handles[c], bufs[c])
			if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
				return failf(PhaseReconstruct, ErrArchive, "slot %d: read contributor %d: %v", slot, c, err)
			}
			if read == -1 {
				read = nRead
			} else if nRead != read {
				return failf(PhaseReconstruct, ErrArchive, "slot %d: contributor %d ended at a different offset than its peers", slot, c)
			}
			if nRead > 0 {
				digests[c].Write(bufs[c][:nRead])
			}
		}
		if read <= 0 {
			break
		}
		xored := make([]byte, read)
		copy(xored, bufs[0][:read])
		for c := 1; c < n; c++ {
			primitives.XORInto(xored, bufs[c][:read])
		}
		if _, err := out.Write(xored); err != nil {
			return failf(PhaseReconstruct, ErrArchive, "slot %d: write output: %v", slot, err)
		}
	}

	for c := 0; c < n; c++ {
		if !bytes.Equal(digests[c].Sum(nil), desc.Hashes[c]) {
			return failf(PhaseReconstruct, ErrCommitmentMismatch, "slot %d, contributor %d", slot, c)
		}
	}
	return nil
}
