package bulk

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dreamware/bulknode/internal/shuffle"
	"github.com/dreamware/bulknode/internal/transport"
)

// runRoundCluster wires up n NodeConfigs sharing one in-memory transport and
// one LeaderShuffle each, runs them concurrently, and returns every node's
// Result (zero-value entries on failure) plus any errors in node-id order.
func runRoundCluster(t *testing.T, n int, messages []string) ([]Result, []error) {
	t.Helper()
	mem := transport.NewMemory()
	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = nodeAddr(i)
	}

	tmpRoot := t.TempDir()
	msgFiles := make([]string, n)
	for i, m := range messages {
		path := filepath.Join(tmpRoot, nodeAddr(i)+"-msg.bin")
		if err := os.WriteFile(path, []byte(m), 0o600); err != nil {
			t.Fatalf("write message %d: %v", i, err)
		}
		msgFiles[i] = path
	}

	results := make([]Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			roundTmp := filepath.Join(tmpRoot, "round", addrs[id])
			if err := os.MkdirAll(roundTmp, 0o700); err != nil {
				errs[id] = err
				return
			}
			cfg := NodeConfig{
				ID:         id,
				N:          n,
				KeyLen:     1024,
				RoundID:    "round-test",
				SelfAddr:   addrs[id],
				LeaderAddr: addrs[0],
				MsgFile:    msgFiles[id],
			}
			orch := &Orchestrator{
				Config:    cfg,
				Transport: mem,
				Shuffler:  shuffle.LeaderShuffle{Transport: mem, ListenAddr: addrs[id]},
				TempDir:   roundTmp,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			res, err := orch.RunRound(ctx)
			results[id] = res
			errs[id] = err
		}(i)
	}
	wg.Wait()
	return results, errs
}

func nodeAddr(id int) string {
	return "node-" + string(rune('0'+id))
}

func TestRunRoundThreeNodesHonestRun(t *testing.T) {
	messages := []string{"alpha", "bravo", "charlie"}
	results, errs := runRoundCluster(t, 3, messages)

	for id, err := range errs {
		if err != nil {
			t.Fatalf("node %d: RunRound failed: %v", id, err)
		}
	}

	wantMultiset := append([]string(nil), messages...)
	sort.Strings(wantMultiset)

	for id, res := range results {
		if len(res.SlotFiles) != 3 {
			t.Fatalf("node %d: got %d slot files, want 3", id, len(res.SlotFiles))
		}
		var got []string
		for _, f := range res.SlotFiles {
			b, err := os.ReadFile(f)
			if err != nil {
				t.Fatalf("node %d: read slot file: %v", id, err)
			}
			got = append(got, string(b))
		}
		sort.Strings(got)
		for i := range got {
			if got[i] != wantMultiset[i] {
				t.Fatalf("node %d: reconstructed multiset %v, want %v", id, got, wantMultiset)
			}
		}
	}
}

func TestRunRoundTwoNodesEmptyMessages(t *testing.T) {
	results, errs := runRoundCluster(t, 2, []string{"", ""})
	for id, err := range errs {
		if err != nil {
			t.Fatalf("node %d: RunRound failed: %v", id, err)
		}
	}
	for id, res := range results {
		for k, f := range res.SlotFiles {
			info, err := os.Stat(f)
			if err != nil {
				t.Fatalf("node %d slot %d: stat: %v", id, k, err)
			}
			if info.Size() != 0 {
				t.Fatalf("node %d slot %d: expected empty file, got %d bytes", id, k, info.Size())
			}
		}
	}
}

func TestRunRoundFourNodesAllAgreeOnPlaintextSet(t *testing.T) {
	messages := []string{"one", "two", "three", "four"}
	results, errs := runRoundCluster(t, 4, messages)
	for id, err := range errs {
		if err != nil {
			t.Fatalf("node %d: RunRound failed: %v", id, err)
		}
	}

	var reference []string
	for _, f := range results[0].SlotFiles {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read reference slot file: %v", err)
		}
		reference = append(reference, string(b))
	}
	sort.Strings(reference)

	for id := 1; id < 4; id++ {
		var got []string
		for _, f := range results[id].SlotFiles {
			b, err := os.ReadFile(f)
			if err != nil {
				t.Fatalf("node %d: read slot file: %v", id, err)
			}
			got = append(got, string(b))
		}
		sort.Strings(got)
		for i := range got {
			if got[i] != reference[i] {
				t.Fatalf("node %d disagrees with node 0: %v vs %v", id, got, reference)
			}
		}
	}
}
