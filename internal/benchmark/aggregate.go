package benchmark

import (
	"codeberg.org/mutker/excavatorctl/internal/telemetry"
	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/store"
)

// Relative accuracy of the dispersion quantiles.
const sketchAccuracy = 0.01

const (
	ReasonNoTicks      = "no ticks collected"
	ReasonNoValidTicks = "no valid ticks"
)

// Dispersion summarizes how far the per-tick speeds of one algorithm
// spread around the mean.
type Dispersion struct {
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// Result is the outcome of a benchmark run.
type Result struct {
	Speeds     []telemetry.AlgorithmSpeed `json:"speeds"`
	Success    bool                       `json:"success"`
	Outcome    Outcome                    `json:"outcome,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
	Dispersion map[string]Dispersion      `json:"dispersion,omitempty"`
	TicksTotal int                        `json:"ticks_total"`
	TicksValid int                        `json:"ticks_valid"`
	TicksUsed  int                        `json:"ticks_used"`
}

// Speed returns the averaged speed of algorithm.
func (r Result) Speed(algorithm string) (float64, bool) {
	for _, s := range r.Speeds {
		if s.Algorithm == algorithm {
			return s.Speed, true
		}
	}
	return 0, false
}

// Aggregate reduces a tick history to one speed per algorithm.
//
// Only valid ticks count. They are grouped by how many algorithms they
// report and the largest group wins; on a tie the group holding the
// earliest tick wins. The first tick of that group fixes which algorithms
// are reported and in what order, and each speed is the arithmetic mean
// over the group.
func Aggregate(ticks []Tick) Result {
	result := Result{TicksTotal: len(ticks)}

	var valid []Tick
	for _, tick := range ticks {
		if tick.Valid {
			valid = append(valid, tick)
		}
	}
	result.TicksValid = len(valid)

	switch {
	case len(ticks) == 0:
		result.Reason = ReasonNoTicks
		return result
	case len(valid) == 0:
		result.Reason = ReasonNoValidTicks
		return result
	}

	group := majorityShape(valid)
	template := group[0].Totals

	result.Speeds = make([]telemetry.AlgorithmSpeed, 0, len(template))
	result.Dispersion = make(map[string]Dispersion, len(template))
	for _, entry := range template {
		mean, spread := reduce(entry.Algorithm, group)
		result.Speeds = append(result.Speeds, telemetry.AlgorithmSpeed{Algorithm: entry.Algorithm, Speed: mean})
		result.Dispersion[entry.Algorithm] = spread
	}
	result.TicksUsed = len(group)
	result.Success = true

	return result
}

// majorityShape returns the valid ticks of the most common algorithm
// count, in tick order.
func majorityShape(valid []Tick) []Tick {
	groups := make(map[int][]Tick)
	var order []int
	for _, tick := range valid {
		shape := len(tick.Totals)
		if _, ok := groups[shape]; !ok {
			order = append(order, shape)
		}
		groups[shape] = append(groups[shape], tick)
	}

	// order follows first appearance, so a strict comparison keeps the
	// group with the earliest tick on ties.
	best := order[0]
	for _, shape := range order[1:] {
		if len(groups[shape]) > len(groups[best]) {
			best = shape
		}
	}
	return groups[best]
}

// reduce averages algorithm over the ticks that report it. A tick of the
// same shape naming a different algorithm set does not contribute.
func reduce(algorithm string, group []Tick) (float64, Dispersion) {
	sketch := newSketch()

	var sum float64
	var n int
	for _, tick := range group {
		for _, total := range tick.Totals {
			if total.Algorithm != algorithm {
				continue
			}
			sum += total.Speed
			n++
			_ = sketch.Add(total.Speed)
		}
	}
	if n == 0 {
		return 0, Dispersion{}
	}

	return sum / float64(n), dispersion(sketch)
}

func newSketch() *ddsketch.DDSketch {
	m, _ := mapping.NewLogarithmicMapping(sketchAccuracy)
	return ddsketch.NewDDSketch(m, store.NewDenseStore(), store.NewDenseStore())
}

func dispersion(sketch *ddsketch.DDSketch) Dispersion {
	var d Dispersion
	if sketch.GetCount() == 0 {
		return d
	}
	d.Min, _ = sketch.GetMinValue()
	d.Median, _ = sketch.GetValueAtQuantile(0.5)
	d.Max, _ = sketch.GetMaxValue()
	return d
}
