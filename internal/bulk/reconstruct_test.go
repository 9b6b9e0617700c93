package bulk

import (
	"crypto/sha1" //nolint:gosec // test exercises the spec-mandated commitment hash
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dreamware/bulknode/internal/primitives"
)

func writeBytes(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReconstructSlotXORsContributorsAndVerifiesHashes(t *testing.T) {
	tmp := t.TempDir()

	plaintext := []byte("attack at dawn!!")
	maskA := []byte("0123456789abcdef")
	maskB := primitives.XORBytes(plaintext, maskA)

	pathA := writeBytes(t, tmp, "a.bin", maskA)
	pathB := writeBytes(t, tmp, "b.bin", maskB)

	hA := sha1.Sum(maskA) //nolint:gosec
	hB := sha1.Sum(maskB) //nolint:gosec

	desc := Descriptor{
		EncSeeds: make([][]byte, 2),
		Hashes:   [][]byte{hA[:], hB[:]},
	}
	contribByAuthor := map[int]string{0: pathA, 1: pathB}
	outPath := filepath.Join(tmp, "out.bin")

	if err := reconstructSlot(desc, 0, contribByAuthor, outPath); err != nil {
		t.Fatalf("reconstructSlot: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestReconstructSlotDetectsTamperedContribution(t *testing.T) {
	tmp := t.TempDir()

	maskA := []byte("hello")
	maskB := []byte("world")
	pathA := writeBytes(t, tmp, "a.bin", maskA)
	pathB := writeBytes(t, tmp, "b.bin", maskB)

	hA := sha1.Sum(maskA) //nolint:gosec
	wrongHash := sha1.Sum([]byte("wrong"))

	desc := Descriptor{
		EncSeeds: make([][]byte, 2),
		Hashes:   [][]byte{hA[:], wrongHash[:]},
	}
	contribByAuthor := map[int]string{0: pathA, 1: pathB}
	outPath := filepath.Join(tmp, "out.bin")

	err := reconstructSlot(desc, 3, contribByAuthor, outPath)
	if !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("expected ErrCommitmentMismatch, got %v", err)
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Detail != "slot 3, contributor 1" {
		t.Fatalf("expected detail naming slot 3 contributor 1, got %+v", pe)
	}
}

func TestReconstructSlotDetectsMissingContribution(t *testing.T) {
	tmp := t.TempDir()
	desc := Descriptor{EncSeeds: make([][]byte, 2), Hashes: make([][]byte, 2)}
	outPath := filepath.Join(tmp, "out.bin")

	err := reconstructSlot(desc, 0, map[int]string{0: "/nonexistent"}, outPath)
	if !errors.Is(err, ErrArchive) {
		t.Fatalf("expected ErrArchive, got %v", err)
	}
}

func TestExpandStreamToFileProducesExactLength(t *testing.T) {
	tmp := t.TempDir()
	seed, err := primitives.NewSeed(fixedReader{})
	if err != nil {
		t.Fatalf("NewSeed: %v", err)
	}
	stream := primitives.NewStream(seed)
	path, err := expandStreamToFile(stream, reconstructBlockSize+17, tmp)
	if err != nil {
		t.Fatalf("expandStreamToFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != reconstructBlockSize+17 {
		t.Fatalf("got size %d, want %d", info.Size(), reconstructBlockSize+17)
	}
}

// fixedReader streams a repeating byte so tests drawing seeds don't depend
// on crypto/rand.
type fixedReader struct{}

func (fixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0x42
	}
	return len(p), nil
}
