// Command bulknode runs one participant of a shuffle-plus-bulk anonymous
// data exchange round to completion.
//
// Configuration:
//   - BULKNODE_ID: this node's id, 0..N-1 (required)
//   - BULKNODE_ROUND_FILE: path to the round's YAML membership file (required)
//   - BULKNODE_MSG_FILE: path to this node's plaintext message (required)
//   - BULKNODE_KEY_LEN: RSA modulus length override in bits (default: round file's key_len)
//
// Example usage:
//
//	BULKNODE_ID=1 \
//	BULKNODE_ROUND_FILE=round.yaml \
//	BULKNODE_MSG_FILE=msg.txt \
//	./bulknode
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dreamware/bulknode/config"
	"github.com/dreamware/bulknode/internal/bulk"
	"github.com/dreamware/bulknode/internal/shuffle"
	"github.com/dreamware/bulknode/internal/transport"
)

// logFatal is a variable so tests can intercept fatal termination without
// killing the test process.
var logFatal = log.Fatalf

func main() {
	id := mustGetenvInt("BULKNODE_ID")
	roundFilePath := mustGetenv("BULKNODE_ROUND_FILE")
	msgFile := mustGetenv("BULKNODE_MSG_FILE")

	rf, err := config.Load(roundFilePath)
	if err != nil {
		logFatal("bulknode[%d]: %v", id, err)
		return
	}

	keyLen := rf.KeyLen
	if override := getenv("BULKNODE_KEY_LEN", ""); override != "" {
		n, err := strconv.Atoi(override)
		if err != nil {
			logFatal("bulknode[%d]: invalid BULKNODE_KEY_LEN: %v", id, err)
			return
		}
		keyLen = n
	}

	self, prev, next := rf.AddrOf(id)
	cfg := bulk.NodeConfig{
		ID:         id,
		N:          len(rf.Nodes),
		KeyLen:     keyLen,
		RoundID:    rf.RoundID,
		SelfAddr:   self,
		LeaderAddr: rf.LeaderAddr(),
		PrevAddr:   prev,
		NextAddr:   next,
		MsgFile:    msgFile,
	}

	tmpDir, err := bulk.NewTempDir(rf.RoundID)
	if err != nil {
		logFatal("bulknode[%d]: %v", id, err)
		return
	}
	defer os.RemoveAll(tmpDir)

	tr := transport.HTTPTransport{}
	orch := &bulk.Orchestrator{
		Config:    cfg,
		Transport: tr,
		Shuffler:  shuffle.LeaderShuffle{Transport: tr, ListenAddr: self},
		TempDir:   tmpDir,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("bulknode[%d]: starting round %q (N=%d, leader=%v)", id, cfg.RoundID, cfg.N, cfg.IsLeader())
	result, err := orch.RunRound(ctx)
	if err != nil {
		logFatal("bulknode[%d]: round %q aborted: %v", id, cfg.RoundID, err)
		return
	}

	logSuccess(id, cfg.N, result)
}

// logSuccess emits the structured completion record spec.md §7 requires,
// read entirely from the Result RunRound returned rather than re-measured
// here: round id, N, elapsed wall time, and the size of each output slot
// file.
func logSuccess(id, n int, result bulk.Result) {
	summary, err := result.Summary(n)
	if err != nil {
		log.Printf("bulknode[%d]: round %q complete but failed to stat slot files: %v", id, result.RoundID, err)
		return
	}
	log.Printf("bulknode[%d]: round complete: %s files=%v", id, summary, result.SlotFiles)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}

func mustGetenvInt(k string) int {
	v := mustGetenv(k)
	n, err := strconv.Atoi(v)
	if err != nil {
		logFatal("invalid env %s: %v", k, err)
		return 0
	}
	return n
}
