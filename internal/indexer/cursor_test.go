package indexer

import (
	"testing"
	"time"
)

// tps == txn_count / max(1, Δtimestamp) with
// integer division, falling back to wall-clock when the chain timestamp
// does not advance.
func TestComputeTPS(t *testing.T) {
	tests := []struct {
		name            string
		txCount         uint64
		blockTs, prevTs uint64
		want            float64
	}{
		{name: "advancing timestamp", txCount: 10, blockTs: 105, prevTs: 100, want: 2},
		{name: "integer division truncates", txCount: 7, blockTs: 102, prevTs: 100, want: 3},
		{name: "one second delta", txCount: 4, blockTs: 101, prevTs: 100, want: 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTPS(tc.txCount, tc.blockTs, tc.prevTs, time.Now())
			if got != tc.want {
				t.Fatalf("ComputeTPS = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComputeTPSWallClockFallback(t *testing.T) {
	// Chain timestamp did not advance: rate comes from wall-clock elapsed
	// time, clamped to at least one second.
	got := ComputeTPS(6, 100, 100, time.Now().Add(-2*time.Second))
	if got != 3 {
		t.Fatalf("wall-clock fallback = %v, want 3", got)
	}
	got = ComputeTPS(6, 100, 100, time.Now())
	if got != 6 {
		t.Fatalf("sub-second fallback = %v, want 6", got)
	}
}
