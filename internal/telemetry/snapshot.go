package telemetry

import "time"

// AlgorithmTotals sums speeds per algorithm across devices. Devices are
// visited in snapshot order and algorithms keep the order of their first
// appearance, so the result is deterministic.
func (s Snapshot) AlgorithmTotals() []AlgorithmSpeed {
	var totals []AlgorithmSpeed
	index := make(map[string]int)

	for _, device := range s.Devices {
		for _, sample := range s.Speeds[device] {
			i, ok := index[sample.Algorithm]
			if !ok {
				i = len(totals)
				index[sample.Algorithm] = i
				totals = append(totals, AlgorithmSpeed{Algorithm: sample.Algorithm})
			}
			totals[i].Speed += sample.Speed
		}
	}

	return totals
}

// IsZero reports whether the snapshot is the empty value, meaning nothing
// has been published yet.
func (s Snapshot) IsZero() bool {
	return s.Timestamp.IsZero() && len(s.Devices) == 0 && s.RawResponse == ""
}

// Age returns how long ago the snapshot was taken relative to now.
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(s.Timestamp)
}
