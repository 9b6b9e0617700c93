package bulk

import (
	"fmt"
	"os"
	"time"
)

// RoundSummary is the structured completion record assembled from a
// successful Result: which round, how many participants, how long it
// took, and how big each reconstructed slot came out. It exists so a
// round's outcome can be logged as one grep-able line instead of scattered
// across whatever the caller happens to print.
type RoundSummary struct {
	RoundID   string
	N         int
	Elapsed   time.Duration
	SlotSizes []int64
}

func (s RoundSummary) String() string {
	return fmt.Sprintf("round=%s n=%d elapsed=%s slot_sizes=%v", s.RoundID, s.N, s.Elapsed, s.SlotSizes)
}

// Summary stats every slot file and assembles this result's RoundSummary.
// n is the round's participant count, which Result itself does not carry.
func (r Result) Summary(n int) (RoundSummary, error) {
	sizes := make([]int64, len(r.SlotFiles))
	for i, f := range r.SlotFiles {
		info, err := os.Stat(f)
		if err != nil {
			return RoundSummary{}, fmt.Errorf("bulk: stat slot %d file: %w", i, err)
		}
		sizes[i] = info.Size()
	}
	return RoundSummary{
		RoundID:   r.RoundID,
		N:         n,
		Elapsed:   time.Duration(r.ElapsedSec * float64(time.Second)),
		SlotSizes: sizes,
	}, nil
}
