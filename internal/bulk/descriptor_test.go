package bulk

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // test verifies against the spec-mandated commitment hash
	"os"
	"testing"

	"github.com/dreamware/bulknode/internal/primitives"
)

// buildTestDirectory generates N fresh key pair bundles and a directory
// populated with all of their public halves, returning the bundles so
// tests can decrypt as any node.
func buildTestDirectory(t *testing.T, n int) ([]KeyPairBundle, *Directory) {
	t.Helper()
	bundles := make([]KeyPairBundle, n)
	dir := NewDirectory(n)
	for i := 0; i < n; i++ {
		b, err := GenerateKeyPairBundle(1024)
		if err != nil {
			t.Fatalf("generate key pair %d: %v", i, err)
		}
		bundles[i] = b
		pub, err := b.PublicKeys()
		if err != nil {
			t.Fatalf("public keys %d: %v", i, err)
		}
		if err := dir.Put(i, pub); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	return bundles, dir
}

func writeMessageFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := dir + "/msg.bin"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write message file: %v", err)
	}
	return path
}

func TestBuildDescriptorRoundTripsThroughCBOR(t *testing.T) {
	tmp := t.TempDir()
	_, dir := buildTestDirectory(t, 3)
	msgPath := writeMessageFile(t, tmp, "hello world")

	cfg := NodeConfig{ID: 1, N: 3, RoundID: "r1", MsgFile: msgPath}
	built, err := BuildDescriptor(cfg, dir, tmp)
	if err != nil {
		t.Fatalf("BuildDescriptor: %v", err)
	}

	blob, err := built.Descriptor.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := UnmarshalDescriptor(blob)
	if err != nil {
		t.Fatalf("UnmarshalDescriptor: %v", err)
	}
	if decoded.AuthorID != 1 || decoded.RoundID != "r1" || decoded.MsgLen != int64(len("hello world")) {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if len(decoded.EncSeeds) != 3 || len(decoded.Hashes) != 3 {
		t.Fatalf("expected N-length arrays, got %d/%d", len(decoded.EncSeeds), len(decoded.Hashes))
	}
	if !bytes.Equal(decoded.EncSeeds[1], built.OwnEncSeed) {
		t.Fatal("own encrypted seed not preserved across marshal round trip")
	}
}

func TestBuildDescriptorSelfHashCommitsToMaskedStream(t *testing.T) {
	tmp := t.TempDir()
	_, dir := buildTestDirectory(t, 2)
	msgPath := writeMessageFile(t, tmp, "secret payload")

	cfg := NodeConfig{ID: 0, N: 2, RoundID: "r1", MsgFile: msgPath}
	built, err := BuildDescriptor(cfg, dir, tmp)
	if err != nil {
		t.Fatalf("BuildDescriptor: %v", err)
	}

	cipherBytes, err := os.ReadFile(built.MaskedCipherPath)
	if err != nil {
		t.Fatalf("read masked cipher: %v", err)
	}
	h := sha1.Sum(cipherBytes) //nolint:gosec
	if !bytes.Equal(h[:], built.Descriptor.Hashes[0]) {
		t.Fatal("self hash does not commit to the masked ciphertext bytes")
	}
}

func TestBuildDescriptorNonAuthorHashMatchesFreshStream(t *testing.T) {
	tmp := t.TempDir()
	bundles, dir := buildTestDirectory(t, 2)
	msgPath := writeMessageFile(t, tmp, "x")

	cfg := NodeConfig{ID: 0, N: 2, RoundID: "r1", MsgFile: msgPath}
	built, err := BuildDescriptor(cfg, dir, tmp)
	if err != nil {
		t.Fatalf("BuildDescriptor: %v", err)
	}

	seed, err := primitives.DecryptSeed(bundles[1].Key1.Private, built.Descriptor.EncSeeds[1])
	if err != nil {
		t.Fatalf("decrypt seed for node 1: %v", err)
	}
	stream := primitives.NewStream(seed)
	_ = stream.Emit(1) // msg_len is 1 byte for "x"
	if !bytes.Equal(stream.Finalize(), built.Descriptor.Hashes[1]) {
		t.Fatal("recipient-side PRNG digest does not match recorded commitment")
	}
}
