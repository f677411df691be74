package benchmark

import "codeberg.org/mutker/excavatorctl/internal/telemetry"

// Tick is one sampling step of a benchmark run.
type Tick struct {
	Index    int
	Snapshot telemetry.Snapshot
	// Totals are the snapshot's per-algorithm totals, computed once.
	Totals []telemetry.AlgorithmSpeed
	Valid  bool
}

// NewTick classifies snapshot. A tick is valid when at least one algorithm
// was reported and every reported total is strictly positive.
func NewTick(index int, snapshot telemetry.Snapshot) Tick {
	totals := snapshot.AlgorithmTotals()
	return Tick{
		Index:    index,
		Snapshot: snapshot,
		Totals:   totals,
		Valid:    validTotals(totals),
	}
}

func validTotals(totals []telemetry.AlgorithmSpeed) bool {
	if len(totals) == 0 {
		return false
	}
	for _, total := range totals {
		if !(total.Speed > 0) {
			return false
		}
	}
	return true
}
