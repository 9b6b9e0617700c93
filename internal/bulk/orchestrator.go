package bulk

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dreamware/bulknode/internal/archive"
	"github.com/dreamware/bulknode/internal/codec"
	"github.com/dreamware/bulknode/internal/primitives"
	"github.com/dreamware/bulknode/internal/shuffle"
	"github.com/dreamware/bulknode/internal/transport"
)

// defaultPhaseTimeout bounds how long any single network-bound phase may
// block before its PhaseWatchdog aborts the round's context, letting a
// hung peer fail the round instead of wedging it forever.
const defaultPhaseTimeout = 60 * time.Second

// Transport is the network contract the orchestrator depends on. It is
// satisfied by both internal/transport's HTTPTransport and its in-process
// Memory fake; the interface exists so this package can be tested against
// the fake without depending on HTTP specifics.
type Transport interface {
	SendTo(ctx context.Context, addr string, payload []byte) error
	SendFileTo(ctx context.Context, addr, path string) error
	RecvFromN(ctx context.Context, listenAddr string, n int) ([][]byte, []string, error)
	RecvFilesFromN(ctx context.Context, listenAddr string, n int, dir string) ([]string, []string, error)
}

// Result is the round's successful outcome: one reconstructed plaintext
// file per slot, in slot order.
type Result struct {
	RoundID    string
	SlotFiles  []string
	ElapsedSec float64
}

// Orchestrator drives one node through phases 0-4 of a round. It holds no
// state between rounds; a fresh Orchestrator (and a fresh temp directory)
// is expected per round, matching spec.md §5's "all state is per-round".
type Orchestrator struct {
	Config       NodeConfig
	Transport    Transport
	Shuffler     shuffle.Shuffler
	TempDir      string        // scoped temp directory for this round; caller owns cleanup
	PhaseTimeout time.Duration // per-phase network deadline; zero uses defaultPhaseTimeout
}

// logf writes one phase-tagged line through the standard logger, so a
// merged multi-node log stream can be grepped down to one node's phase
// history.
func (o *Orchestrator) logf(phase Phase, format string, args ...any) {
	prefix := fmt.Sprintf("[round %s] node %d phase=%s ", o.Config.RoundID, o.Config.ID, phase)
	log.Printf(prefix+format, args...)
}

// runWithWatchdog bounds fn to a per-phase deadline: if fn has not returned
// by the timeout, the watchdog cancels fn's context so a blocked Transport
// call unblocks instead of hanging the round indefinitely. If fn then
// returns an error and the watchdog had fired, the error is replaced with a
// timeout-tagged PhaseError so callers can tell a deadline apart from an
// ordinary transport failure.
func (o *Orchestrator) runWithWatchdog(parent context.Context, phase Phase, fn func(ctx context.Context) error) error {
	timeout := o.PhaseTimeout
	if timeout <= 0 {
		timeout = defaultPhaseTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	wd := transport.NewPhaseWatchdog(phase.String(), timeout, func(string) { cancel() })
	defer wd.Stop()

	err := fn(ctx)
	if err != nil && wd.Fired() {
		return failf(phase, ErrTransport, "phase timed out after %s: %v", timeout, err)
	}
	return err
}

// keyExchangeRequest is wire message A (spec.md §4.2): non-leader to leader.
type keyExchangeRequest struct {
	ID      int    `cbor:"id"`
	RoundID string `cbor:"round_id"`
	Addr    string `cbor:"addr"`
	PK1     []byte `cbor:"pk1"`
	PK2     []byte `cbor:"pk2"`
}

// keyExchangeReply is wire message B: leader to every non-leader.
type keyExchangeReply struct {
	RoundID string               `cbor:"round_id"`
	Keys    map[int]PublicKeys   `cbor:"keys"`
}

// RunRound executes the full five-phase protocol and returns the
// reconstructed plaintexts, or the first fatal *PhaseError encountered.
func (o *Orchestrator) RunRound(ctx context.Context) (Result, error) {
	start := time.Now()
	cfg := o.Config
	if err := cfg.Validate(); err != nil {
		return Result{}, fail(PhaseKeyExchange, err, "")
	}

	keys, err := GenerateKeyPairBundle(cfg.KeyLen)
	if err != nil {
		return Result{}, fail(PhaseKeyExchange, err, "")
	}

	o.logf(PhaseKeyExchange, "starting, n=%d leader=%v", cfg.N, cfg.IsLeader())
	var dir *Directory
	var peerAddrs []string
	if err := o.runWithWatchdog(ctx, PhaseKeyExchange, func(ctx context.Context) error {
		var err error
		dir, peerAddrs, err = o.phase0KeyExchange(ctx, keys)
		return err
	}); err != nil {
		return Result{}, err
	}
	o.logf(PhaseKeyExchange, "complete, directory has %d entries", dir.Len())

	o.logf(PhaseDescriptorBuild, "starting")
	own, err := BuildDescriptor(cfg, dir, o.TempDir)
	if err != nil {
		return Result{}, err
	}
	o.logf(PhaseDescriptorBuild, "complete, msg_len=%d", own.Descriptor.MsgLen)

	o.logf(PhaseShuffle, "starting")
	var descriptors []Descriptor
	if err := o.runWithWatchdog(ctx, PhaseShuffle, func(ctx context.Context) error {
		var err error
		descriptors, err = o.phase2Shuffle(ctx, own, peerAddrs)
		return err
	}); err != nil {
		return Result{}, err
	}
	o.logf(PhaseShuffle, "complete, %d descriptors", len(descriptors))

	o.logf(PhaseSlotCompute, "starting")
	st := newSlotState(cfg.N)
	for k, desc := range descriptors {
		if err := computeSlotContribution(cfg, keys.Key1.Private, own, desc, k, o.TempDir, st); err != nil {
			return Result{}, err
		}
	}
	if !st.foundSelf {
		return Result{}, fail(PhaseSlotCompute, ErrSelfAbsent, "")
	}

	var outerTarPath string
	if err := o.runWithWatchdog(ctx, PhaseSlotCompute, func(ctx context.Context) error {
		var err error
		outerTarPath, err = o.phase3Aggregate(ctx, cfg, st, peerAddrs)
		return err
	}); err != nil {
		return Result{}, err
	}
	o.logf(PhaseSlotCompute, "complete, aggregated %s", outerTarPath)

	o.logf(PhaseReconstruct, "starting")
	slotFiles, err := o.phase4Reconstruct(cfg, descriptors, outerTarPath)
	if err != nil {
		return Result{}, err
	}
	o.logf(PhaseReconstruct, "complete, %d slots", len(slotFiles))

	result := Result{RoundID: cfg.RoundID, SlotFiles: slotFiles, ElapsedSec: time.Since(start).Seconds()}
	if summary, err := result.Summary(cfg.N); err == nil {
		o.logf(PhaseReconstruct, "round summary: %s", summary)
	}
	return result, nil
}

// phase0KeyExchange implements spec.md §4.2. It returns the completed
// directory and, for the leader only, the id-ordered addresses of every
// other node (used to resolve the shuffle's peer list in phase 2).
func (o *Orchestrator) phase0KeyExchange(ctx context.Context, keys KeyPairBundle) (*Directory, []string, error) {
	cfg := o.Config
	pubKeys, err := keys.PublicKeys()
	if err != nil {
		return nil, nil, fail(PhaseKeyExchange, err, "")
	}

	dir := NewDirectory(cfg.N)
	if err := dir.Put(cfg.ID, pubKeys); err != nil {
		return nil, nil, fail(PhaseKeyExchange, err, "")
	}

	if cfg.IsLeader() {
		return o.phase0Leader(ctx, dir)
	}
	return o.phase0Follower(ctx, dir, pubKeys)
}

func (o *Orchestrator) phase0Leader(ctx context.Context, dir *Directory) (*Directory, []string, error) {
	cfg := o.Config
	if cfg.N == 1 {
		return dir, nil, nil
	}

	payloads, _, err := o.Transport.RecvFromN(ctx, cfg.SelfAddr, cfg.N-1)
	if err != nil {
		return nil, nil, fail(PhaseKeyExchange, ErrTransport, err.Error())
	}

	addrByID := make(map[int]string, cfg.N-1)
	for _, payload := range payloads {
		var req keyExchangeRequest
		if err := codec.Unmarshal(payload, &req); err != nil {
			return nil, nil, fail(PhaseKeyExchange, ErrKey, fmt.Sprintf("decode message A: %v", err))
		}
		if req.RoundID != cfg.RoundID {
			return nil, nil, failf(PhaseKeyExchange, ErrRoundMismatch, "node %d sent round %q, want %q", req.ID, req.RoundID, cfg.RoundID)
		}
		if err := dir.Put(req.ID, PublicKeys{PK1: req.PK1, PK2: req.PK2}); err != nil {
			return nil, nil, fail(PhaseKeyExchange, err, "")
		}
		addrByID[req.ID] = req.Addr
	}

	if !dir.Complete() {
		return nil, nil, failf(PhaseKeyExchange, ErrKey, "directory has %d entries, want %d", dir.Len(), cfg.N)
	}

	reply := keyExchangeReply{RoundID: cfg.RoundID, Keys: dir.Snapshot()}
	replyBytes, err := codec.Marshal(reply)
	if err != nil {
		return nil, nil, fail(PhaseKeyExchange, ErrKey, fmt.Sprintf("encode message B: %v", err))
	}

	peerAddrs := make([]string, 0, cfg.N-1)
	for id := 1; id < cfg.N; id++ {
		addr, ok := addrByID[id]
		if !ok {
			return nil, nil, failf(PhaseKeyExchange, ErrKey, "no address recorded for node %d", id)
		}
		peerAddrs = append(peerAddrs, addr)
	}
	for _, addr := range peerAddrs {
		if err := o.Transport.SendTo(ctx, addr, replyBytes); err != nil {
			return nil, nil, fail(PhaseKeyExchange, ErrTransport, err.Error())
		}
	}

	return dir, peerAddrs, nil
}

func (o *Orchestrator) phase0Follower(ctx context.Context, dir *Directory, ownKeys PublicKeys) (*Directory, []string, error) {
	cfg := o.Config
	req := keyExchangeRequest{ID: cfg.ID, RoundID: cfg.RoundID, Addr: cfg.SelfAddr, PK1: ownKeys.PK1, PK2: ownKeys.PK2}
	reqBytes, err := codec.Marshal(req)
	if err != nil {
		return nil, nil, fail(PhaseKeyExchange, ErrKey, fmt.Sprintf("encode message A: %v", err))
	}
	if err := o.Transport.SendTo(ctx, cfg.LeaderAddr, reqBytes); err != nil {
		return nil, nil, fail(PhaseKeyExchange, ErrTransport, err.Error())
	}

	replies, _, err := o.Transport.RecvFromN(ctx, cfg.SelfAddr, 1)
	if err != nil {
		return nil, nil, fail(PhaseKeyExchange, ErrTransport, err.Error())
	}
	var reply keyExchangeReply
	if err := codec.Unmarshal(replies[0], &reply); err != nil {
		return nil, nil, fail(PhaseKeyExchange, ErrKey, fmt.Sprintf("decode message B: %v", err))
	}
	if reply.RoundID != cfg.RoundID {
		return nil, nil, failf(PhaseKeyExchange, ErrRoundMismatch, "leader broadcast round %q, want %q", reply.RoundID, cfg.RoundID)
	}

	for id, pk := range reply.Keys {
		if _, err := primitives.ParsePublicKey(pk.PK1); err != nil {
			return nil, nil, failf(PhaseKeyExchange, ErrKey, "node %d pk1 failed validation: %v", id, err)
		}
		if _, err := primitives.ParsePublicKey(pk.PK2); err != nil {
			return nil, nil, failf(PhaseKeyExchange, ErrKey, "node %d pk2 failed validation: %v", id, err)
		}
		if err := dir.Put(id, pk); err != nil {
			return nil, nil, fail(PhaseKeyExchange, err, "")
		}
	}
	if !dir.Complete() {
		return nil, nil, failf(PhaseKeyExchange, ErrKey, "directory has %d entries, want %d", dir.Len(), cfg.N)
	}

	return dir, nil, nil
}

// phase2Shuffle implements spec.md §4.4: hand the descriptor blob to the
// shuffle subroutine and decode its permuted output.
func (o *Orchestrator) phase2Shuffle(ctx context.Context, own BuiltDescriptor, peerAddrs []string) ([]Descriptor, error) {
	cfg := o.Config
	blob, err := own.Descriptor.Marshal()
	if err != nil {
		return nil, fail(PhaseShuffle, err, "")
	}

	maxBlobLen := nextPowerOfTwo(len(blob))
	req := shuffle.Request{
		Blob:       blob,
		MaxBlobLen: maxBlobLen,
		SelfID:     cfg.ID,
		N:          cfg.N,
		RoundID:    cfg.RoundID,
		Prev:       cfg.PrevAddr,
		Next:       cfg.NextAddr,
		LeaderAddr: cfg.LeaderAddr,
	}
	if cfg.IsLeader() {
		req = req.WithPeerAddrs(peerAddrs)
	}

	res, err := o.Shuffler.Shuffle(ctx, req)
	if err != nil {
		return nil, fail(PhaseShuffle, ErrTransport, err.Error())
	}
	if len(res.Blobs) != cfg.N {
		return nil, failf(PhaseShuffle, ErrArchive, "shuffle returned %d blobs, want %d", len(res.Blobs), cfg.N)
	}

	descriptors := make([]Descriptor, cfg.N)
	for k, b := range res.Blobs {
		desc, err := UnmarshalDescriptor(b)
		if err != nil {
			return nil, failf(PhaseShuffle, ErrRoundMismatch, "slot %d: %v", k, err)
		}
		if desc.RoundID != cfg.RoundID {
			return nil, failf(PhaseShuffle, ErrRoundMismatch, "slot %d: descriptor round %q, want %q", k, desc.RoundID, cfg.RoundID)
		}
		if desc.AuthorID < 0 || desc.AuthorID >= cfg.N {
			return nil, failf(PhaseShuffle, ErrRoundMismatch, "slot %d: author id %d out of range [0,%d)", k, desc.AuthorID, cfg.N)
		}
		descriptors[k] = desc
	}
	return descriptors, nil
}

// phase3Aggregate implements spec.md §4.5's gather/broadcast half: pack
// this node's per-slot contributions into an inner tar, then either gather
// everyone else's and assemble the outer tar (leader) or ship the inner
// tar and await the assembled outer tar (non-leader).
func (o *Orchestrator) phase3Aggregate(ctx context.Context, cfg NodeConfig, st *slotState, peerAddrs []string) (string, error) {
	ownInner, err := packOwnTar(cfg, st, o.TempDir)
	if err != nil {
		return "", err
	}

	if !cfg.IsLeader() {
		if err := o.Transport.SendFileTo(ctx, cfg.LeaderAddr, ownInner); err != nil {
			return "", fail(PhaseSlotCompute, ErrTransport, err.Error())
		}
		outerPaths, _, err := o.Transport.RecvFilesFromN(ctx, cfg.SelfAddr, 1, o.TempDir)
		if err != nil {
			return "", fail(PhaseSlotCompute, ErrTransport, err.Error())
		}
		return outerPaths[0], nil
	}

	allInner := []string{ownInner}
	if cfg.N > 1 {
		innerPaths, _, err := o.Transport.RecvFilesFromN(ctx, cfg.SelfAddr, cfg.N-1, o.TempDir)
		if err != nil {
			return "", fail(PhaseSlotCompute, ErrTransport, err.Error())
		}
		// Tie-break (spec.md §4.5): own tar is appended last after the
		// N-1 received in arrival order; member names are placeholders
		// regardless, so this ordering carries no semantic weight.
		allInner = append(innerPaths, ownInner)
	}

	outerPath := filepath.Join(o.TempDir, "outer.tar")
	if err := archive.PackOuter(outerPath, allInner); err != nil {
		return "", fail(PhaseSlotCompute, ErrArchive, err.Error())
	}

	for _, addr := range peerAddrs {
		if err := o.Transport.SendFileTo(ctx, addr, outerPath); err != nil {
			return "", fail(PhaseSlotCompute, ErrTransport, err.Error())
		}
	}
	return outerPath, nil
}

// phase4Reconstruct implements spec.md §4.6: unpack the outer tar into N
// inner tars, regroup contributions by slot, and XOR-reconstruct each
// slot's plaintext. It does no network I/O (the outer tar already arrived
// in phase3Aggregate), so unlike the other phases it takes no context and
// runs outside runWithWatchdog.
func (o *Orchestrator) phase4Reconstruct(cfg NodeConfig, descriptors []Descriptor, outerTarPath string) ([]string, error) {
	innerPaths, err := archive.UnpackOuter(o.TempDir, outerTarPath, cfg.N)
	if err != nil {
		return nil, fail(PhaseReconstruct, ErrArchive, err.Error())
	}

	contribBySlot := make([]map[int]string, cfg.N)
	for k := range contribBySlot {
		contribBySlot[k] = make(map[int]string, cfg.N)
	}

	for _, innerPath := range innerPaths {
		contributorID, slotPaths, err := archive.UnpackInner(o.TempDir, innerPath, cfg.N)
		if err != nil {
			return nil, fail(PhaseReconstruct, ErrArchive, err.Error())
		}
		for k, p := range slotPaths {
			contribBySlot[k][contributorID] = p
		}
	}

	slotFiles := make([]string, cfg.N)
	for k := 0; k < cfg.N; k++ {
		outPath := filepath.Join(o.TempDir, fmt.Sprintf("slot-%d.plaintext", k))
		if err := reconstructSlot(descriptors[k], k, contribBySlot[k], outPath); err != nil {
			return nil, err
		}
		slotFiles[k] = outPath
	}
	return slotFiles, nil
}

// nextPowerOfTwo returns 2^ceil(log2(n)), the uniform padding ceiling
// spec.md §4.4 hands to the shuffle subroutine. n=0 maps to 1.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// NewTempDir creates a fresh scoped temp directory for one round, matching
// spec.md §9's "per-round scoped temp directory with guaranteed deletion".
// Callers are responsible for os.RemoveAll once the round (and any
// caller-side inspection of its output files) is finished.
func NewTempDir(roundID string) (string, error) {
	dir, err := os.MkdirTemp("", "bulkround-"+roundID+"-*")
	if err != nil {
		return "", fmt.Errorf("bulk: create round temp dir: %w", err)
	}
	return dir, nil
}
