package bulk

import (
	"fmt"
	"sync"

	"github.com/dreamware/bulknode/internal/primitives"
)

// KeyPairBundle holds one node's two RSA key pairs: key1 is the primary
// key used for seed encryption in this round, key2 is reserved for the
// shuffle subroutine and carried through the directory unused by this
// package.
type KeyPairBundle struct {
	Key1 primitives.KeyPair
	Key2 primitives.KeyPair
}

// PublicKeys is the wire shape exchanged during phase 0: DER-encoded public
// keys, never the private halves.
type PublicKeys struct {
	PK1 []byte
	PK2 []byte
}

// GenerateKeyPairBundle draws two fresh RSA key pairs of the given modulus
// length. Keys are regenerated every round in this design (spec.md §3,
// "Key pairs are regenerated per round in this demo").
func GenerateKeyPairBundle(bits int) (KeyPairBundle, error) {
	k1, err := primitives.GenerateKeyPair(bits)
	if err != nil {
		return KeyPairBundle{}, fmt.Errorf("%w: generate key1: %v", ErrKey, err)
	}
	k2, err := primitives.GenerateKeyPair(bits)
	if err != nil {
		return KeyPairBundle{}, fmt.Errorf("%w: generate key2: %v", ErrKey, err)
	}
	return KeyPairBundle{Key1: k1, Key2: k2}, nil
}

// PublicKeys marshals this bundle's public halves to DER for transmission.
func (b KeyPairBundle) PublicKeys() (PublicKeys, error) {
	pk1, err := primitives.MarshalPublicKey(b.Key1.Public)
	if err != nil {
		return PublicKeys{}, fmt.Errorf("%w: marshal pk1: %v", ErrKey, err)
	}
	pk2, err := primitives.MarshalPublicKey(b.Key2.Public)
	if err != nil {
		return PublicKeys{}, fmt.Errorf("%w: marshal pk2: %v", ErrKey, err)
	}
	return PublicKeys{PK1: pk1, PK2: pk2}, nil
}

// Directory is the shared node-id -> public-key mapping every node builds
// during phase 0, adapted from the teacher's ShardRegistry
// (internal/coordinator/shard_registry.go): the same map-plus-RWMutex
// shape and copy-out-don't-share-pointers discipline, generalized from
// shard assignments to public key bundles. Directory is write-once per
// round: every entry is inserted during phase 0 and the map is read-only
// for the remainder of the round (spec.md §5).
type Directory struct {
	mu      sync.RWMutex
	entries map[int]PublicKeys
	want    int
}

// NewDirectory returns an empty directory expecting want entries before
// phase 0 can close out.
func NewDirectory(want int) *Directory {
	return &Directory{entries: make(map[int]PublicKeys, want), want: want}
}

// Put records id's public keys. Re-inserting the same id with identical
// keys is idempotent; inserting conflicting keys for an id already present
// is a key error, since it would mean two peers claimed the same identity.
func (d *Directory) Put(id int, keys PublicKeys) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.entries[id]; ok {
		if string(existing.PK1) != string(keys.PK1) || string(existing.PK2) != string(keys.PK2) {
			return fmt.Errorf("%w: conflicting public keys for node %d", ErrKey, id)
		}
		return nil
	}
	d.entries[id] = keys
	return nil
}

// Get returns id's public keys, or false if not yet recorded.
func (d *Directory) Get(id int) (PublicKeys, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pk, ok := d.entries[id]
	return pk, ok
}

// Len reports how many entries are currently recorded.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Complete reports whether the directory has reached its expected size —
// spec.md §3's phase-0 invariant ("exactly N entries").
func (d *Directory) Complete() bool {
	return d.Len() == d.want
}

// ResolvedPublicKey parses and validates id's pk1 (the key used for seed
// encryption), failing with ErrKey if the entry is absent or malformed.
func (d *Directory) ResolvedPublicKey(id int) (*primitives.KeyPair, error) {
	pk, ok := d.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: no directory entry for node %d", ErrKey, id)
	}
	pub, err := primitives.ParsePublicKey(pk.PK1)
	if err != nil {
		return nil, fmt.Errorf("%w: node %d pk1: %v", ErrKey, id, err)
	}
	return &primitives.KeyPair{Public: pub}, nil
}

// Snapshot returns a defensive copy of every entry, keyed by id, for
// building the deterministic phase-0 broadcast payload.
func (d *Directory) Snapshot() map[int]PublicKeys {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[int]PublicKeys, len(d.entries))
	for id, pk := range d.entries {
		out[id] = pk
	}
	return out
}
