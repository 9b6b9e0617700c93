package bulk

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // spec-mandated commitment hash, not used for signatures
	"fmt"
	"io"
	"os"

	"github.com/dreamware/bulknode/internal/codec"
	"github.com/dreamware/bulknode/internal/primitives"
)

// descriptorBlockSize is the streaming block size phase 1 masks the
// message in (spec.md §4.3, "Stream the message file in 8 KiB blocks").
const descriptorBlockSize = 8 * 1024

// Descriptor is the per-author record produced in phase 1 and carried
// through the shuffle: one set of N encrypted seeds and N hash
// commitments, keyed by recipient.
type Descriptor struct {
	AuthorID int      `cbor:"author_id"`
	RoundID  string   `cbor:"round_id"`
	MsgLen   int64    `cbor:"msg_len"`
	EncSeeds [][]byte `cbor:"enc_seeds"`
	Hashes   [][]byte `cbor:"hashes"`
}

// Marshal encodes the descriptor for handoff to the shuffle subroutine.
func (d Descriptor) Marshal() ([]byte, error) {
	b, err := codec.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("bulk: marshal descriptor: %w", err)
	}
	return b, nil
}

// UnmarshalDescriptor decodes one descriptor blob as returned by the
// shuffle subroutine.
func UnmarshalDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := codec.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("bulk: unmarshal descriptor: %w", err)
	}
	return d, nil
}

// BuiltDescriptor bundles the phase-1 outputs an orchestrator needs beyond
// the descriptor itself: the path of the masked ciphertext file and the
// node's own encrypted seed (for later self-recognition). The plaintext
// seeds are not kept.
type BuiltDescriptor struct {
	Descriptor       Descriptor
	MaskedCipherPath string
	OwnEncSeed       []byte
}

// BuildDescriptor implements phase 1 (spec.md §4.3): draw N fresh seeds,
// stream-mask the message file against every non-self PRNG, record hash
// commitments, and encrypt each seed under its recipient's public key.
//
// dir must already hold all N entries; self's own key pair bundle supplies
// the keys used to decrypt other nodes' seeds in phase 3, but is not
// needed here — only recipients' public keys are.
func BuildDescriptor(cfg NodeConfig, dir *Directory, tmpDir string) (BuiltDescriptor, error) {
	n := cfg.N
	seeds := make([]primitives.Seed, n)
	streams := make([]*primitives.Stream, n)
	for i := 0; i < n; i++ {
		seed, err := primitives.NewSeed(rand.Reader)
		if err != nil {
			return BuiltDescriptor{}, failf(PhaseDescriptorBuild, ErrKey, "draw seed %d: %v", i, err)
		}
		seeds[i] = seed
		streams[i] = primitives.NewStream(seed)
	}

	cipPath, msgLen, selfHash, err := maskMessage(cfg, streams, tmpDir)
	if err != nil {
		return BuiltDescriptor{}, err
	}

	hashes := make([][]byte, n)
	for i := 0; i < n; i++ {
		hashes[i] = streams[i].Finalize()
	}
	hashes[cfg.ID] = selfHash

	encSeeds := make([][]byte, n)
	for i := 0; i < n; i++ {
		pub, err := dir.ResolvedPublicKey(i)
		if err != nil {
			return BuiltDescriptor{}, failf(PhaseDescriptorBuild, ErrKey, "resolve recipient %d: %v", i, err)
		}
		enc, err := primitives.EncryptSeed(pub.Public, seeds[i])
		if err != nil {
			return BuiltDescriptor{}, failf(PhaseDescriptorBuild, ErrKey, "encrypt seed for %d: %v", i, err)
		}
		encSeeds[i] = enc
	}

	desc := Descriptor{
		AuthorID: cfg.ID,
		RoundID:  cfg.RoundID,
		MsgLen:   msgLen,
		EncSeeds: encSeeds,
		Hashes:   hashes,
	}

	return BuiltDescriptor{
		Descriptor:       desc,
		MaskedCipherPath: cipPath,
		OwnEncSeed:       encSeeds[cfg.ID],
	}, nil
}

// maskMessage streams cfg.MsgFile in descriptorBlockSize blocks, XORing
// into every non-self stream's emitted bytes and accumulating the
// author's own "cheating" hash over the masked output, per spec.md §4.3
// steps 2-4.
func maskMessage(cfg NodeConfig, streams []*primitives.Stream, tmpDir string) (path string, msgLen int64, selfHash []byte, err error) {
	src, err := os.Open(cfg.MsgFile)
	if err != nil {
		return "", 0, nil, failf(PhaseDescriptorBuild, ErrConfig, "open message file: %v", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(tmpDir, "cip-*.bin")
	if err != nil {
		return "", 0, nil, failf(PhaseDescriptorBuild, ErrConfig, "create masked output: %v", err)
	}
	defer dst.Close()

	selfDigest := sha1.New() //nolint:gosec // spec-mandated commitment hash, not used for signatures
	buf := make([]byte, descriptorBlockSize)
	var total int64

	for {
		nRead, readErr := src.Read(buf)
		if nRead > 0 {
			block := buf[:nRead]
			for i, s := range streams {
				if i == cfg.ID {
					continue
				}
				s.XORInto(block)
			}
			selfDigest.Write(block)
			if _, werr := dst.Write(block); werr != nil {
				return "", 0, nil, failf(PhaseDescriptorBuild, ErrConfig, "write masked block: %v", werr)
			}
			total += int64(nRead)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", 0, nil, failf(PhaseDescriptorBuild, ErrConfig, "read message file: %v", readErr)
		}
	}

	return dst.Name(), total, selfDigest.Sum(nil), nil
}
