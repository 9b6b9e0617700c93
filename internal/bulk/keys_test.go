package bulk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectoryPutAndComplete(t *testing.T) {
	dir := NewDirectory(2)
	require.False(t, dir.Complete())

	require.NoError(t, dir.Put(0, PublicKeys{PK1: []byte("a"), PK2: []byte("b")}))
	require.False(t, dir.Complete())

	require.NoError(t, dir.Put(1, PublicKeys{PK1: []byte("c"), PK2: []byte("d")}))
	require.True(t, dir.Complete())
}

func TestDirectoryPutIsIdempotentForIdenticalKeys(t *testing.T) {
	dir := NewDirectory(1)
	keys := PublicKeys{PK1: []byte("a"), PK2: []byte("b")}
	require.NoError(t, dir.Put(0, keys))
	require.NoError(t, dir.Put(0, keys))
}

func TestDirectoryPutRejectsConflictingKeys(t *testing.T) {
	dir := NewDirectory(1)
	require.NoError(t, dir.Put(0, PublicKeys{PK1: []byte("a"), PK2: []byte("b")}))
	err := dir.Put(0, PublicKeys{PK1: []byte("different"), PK2: []byte("b")})
	if !errors.Is(err, ErrKey) {
		t.Fatalf("expected ErrKey, got %v", err)
	}
}

func TestGenerateKeyPairBundleAndResolve(t *testing.T) {
	bundle, err := GenerateKeyPairBundle(1024)
	require.NoError(t, err)

	pub, err := bundle.PublicKeys()
	require.NoError(t, err)

	dir := NewDirectory(1)
	require.NoError(t, dir.Put(0, pub))

	resolved, err := dir.ResolvedPublicKey(0)
	require.NoError(t, err)
	require.Equal(t, bundle.Key1.Public.N, resolved.Public.N)
}

func TestDirectoryResolvedPublicKeyMissing(t *testing.T) {
	dir := NewDirectory(1)
	_, err := dir.ResolvedPublicKey(0)
	if !errors.Is(err, ErrKey) {
		t.Fatalf("expected ErrKey, got %v", err)
	}
}
