package shuffle

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/dreamware/bulknode/internal/codec"
)

// Request bundles the inputs spec.md §4.4 lists for the shuffle subroutine:
// one blob per node plus enough ring/session context to run a round.
type Request struct {
	Blob       []byte // this node's descriptor blob, unpadded
	MaxBlobLen int    // uniform padding ceiling, 2^ceil(log2(len(blob))); LeaderShuffle does not pad
	SelfID     int
	N          int
	RoundID    string
	Prev, Next string // ring neighbor addresses, unused by LeaderShuffle
	LeaderAddr string

	peerAddrs []string // set via WithPeerAddrs; leader-only
}

// Result is the permuted set of N blobs, identically ordered on every node.
type Result struct {
	Blobs [][]byte
}

// Shuffler is the interface internal/bulk's orchestrator depends on for
// phase 2. Any implementation satisfying it — including a genuinely
// anonymizing one — can stand in here; the core only cares that every node
// gets the same N blobs back in the same order.
type Shuffler interface {
	Shuffle(ctx context.Context, req Request) (Result, error)
}

// peerTransport is the minimal send/receive contract LeaderShuffle needs.
// It is satisfied structurally by *transport.HTTPTransport and
// *transport.Memory without either package importing the other.
type peerTransport interface {
	SendTo(ctx context.Context, addr string, payload []byte) error
	RecvFromN(ctx context.Context, listenAddr string, n int) ([][]byte, []string, error)
}

// LeaderShuffle gathers every node's blob at the leader, permutes the set
// with a cryptographically random Fisher-Yates shuffle, and rebroadcasts
// the permuted set to everyone — the same gather/compute/rebroadcast shape
// as the teacher's coordinator distributing shard assignments to workers
// (internal/coordinator plus internal/shard), generalized from "one
// assignment per worker" to "one random permutation shared by all".
//
// It is not anonymous: the leader observes every (sender, blob) pairing in
// clear. Production deployments are expected to substitute a real
// anonymizing Shuffler satisfying the same interface.
type LeaderShuffle struct {
	Transport  peerTransport
	ListenAddr string // this node's own address, used when acting as leader
}

// Shuffle implements Shuffler.
func (s LeaderShuffle) Shuffle(ctx context.Context, req Request) (Result, error) {
	if req.N <= 0 {
		return Result{}, fmt.Errorf("shuffle: invalid N=%d", req.N)
	}
	if req.SelfID == 0 {
		return s.runLeader(ctx, req)
	}
	return s.runFollower(ctx, req)
}

func (s LeaderShuffle) runLeader(ctx context.Context, req Request) (Result, error) {
	blobs := make([][]byte, req.N)
	blobs[0] = req.Blob

	if req.N > 1 {
		inbound, _, err := s.Transport.RecvFromN(ctx, s.ListenAddr, req.N-1)
		if err != nil {
			return Result{}, fmt.Errorf("shuffle: gather from %d peers: %w", req.N-1, err)
		}
		for i, b := range inbound {
			blobs[i+1] = b
		}
	}

	permuted, err := randomPermutation(blobs)
	if err != nil {
		return Result{}, fmt.Errorf("shuffle: permute: %w", err)
	}

	encoded, err := encodeBatch(permuted)
	if err != nil {
		return Result{}, err
	}
	for _, addr := range peerAddrsExceptLeader(req) {
		if err := s.Transport.SendTo(ctx, addr, encoded); err != nil {
			return Result{}, fmt.Errorf("shuffle: broadcast to %s: %w", addr, err)
		}
	}

	return Result{Blobs: permuted}, nil
}

func (s LeaderShuffle) runFollower(ctx context.Context, req Request) (Result, error) {
	if err := s.Transport.SendTo(ctx, req.LeaderAddr, req.Blob); err != nil {
		return Result{}, fmt.Errorf("shuffle: send to leader: %w", err)
	}
	batches, _, err := s.Transport.RecvFromN(ctx, s.ListenAddr, 1)
	if err != nil {
		return Result{}, fmt.Errorf("shuffle: await broadcast: %w", err)
	}
	permuted, err := decodeBatch(batches[0])
	if err != nil {
		return Result{}, err
	}
	return Result{Blobs: permuted}, nil
}

// peerAddrsExceptLeader is a placeholder for address resolution the real
// deployment derives from its directory; LeaderShuffle as used by
// internal/bulk is always handed a fully-resolved address list via
// WithPeerAddrs.
func peerAddrsExceptLeader(req Request) []string {
	return req.peerAddrs
}

// WithPeerAddrs attaches the resolved peer listen addresses (id 1..N-1, in
// id order) a leader needs to rebroadcast to. internal/bulk's orchestrator
// calls this before invoking Shuffle, since the shuffle subroutine's
// interface (spec.md §4.4) does not otherwise carry a full address book.
func (req Request) WithPeerAddrs(addrs []string) Request {
	req.peerAddrs = addrs
	return req
}

// batch is the wire shape for a rebroadcast: N blobs, CBOR-encoded the same
// canonical way as every other inter-node message (internal/codec).
type batch struct {
	Blobs [][]byte `cbor:"blobs"`
}

func encodeBatch(blobs [][]byte) ([]byte, error) {
	b, err := codec.Marshal(batch{Blobs: blobs})
	if err != nil {
		return nil, fmt.Errorf("shuffle: encode batch: %w", err)
	}
	return b, nil
}

func decodeBatch(data []byte) ([][]byte, error) {
	var b batch
	if err := codec.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("shuffle: decode batch: %w", err)
	}
	return b.Blobs, nil
}

// randomPermutation returns a new slice holding items in a uniformly random
// order, using crypto/rand for each swap index the way a security-sensitive
// shuffle must (math/rand would make the permutation predictable).
func randomPermutation(items [][]byte) ([][]byte, error) {
	out := make([][]byte, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, err
		}
		j := int(jBig.Int64())
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
