package benchmark

import (
	"strings"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/errors"
)

// Tier is a named benchmark depth: how long to run at most and how many
// valid ticks are enough to stop early.
type Tier struct {
	Name       string        `json:"name"`
	Duration   time.Duration `json:"duration"`
	ValidTicks int           `json:"valid_ticks"`
}

var (
	Quick    = Tier{Name: "quick", Duration: 20 * time.Second, ValidTicks: 1}
	Standard = Tier{Name: "standard", Duration: 40 * time.Second, ValidTicks: 3}
	Precise  = Tier{Name: "precise", Duration: 60 * time.Second, ValidTicks: 9}
)

// Tiers returns the built-in tiers from shortest to longest.
func Tiers() []Tier {
	return []Tier{Quick, Standard, Precise}
}

// ParseTier looks a tier up by name, case-insensitively.
func ParseTier(name string) (Tier, error) {
	for _, tier := range Tiers() {
		if strings.EqualFold(tier.Name, strings.TrimSpace(name)) {
			return tier, nil
		}
	}
	return Tier{}, errors.New().WithData(ErrUnknownTier, name)
}

// TickCount is the number of whole tick periods that fit in the tier.
func (t Tier) TickCount(period time.Duration) int {
	if period <= 0 {
		return 0
	}
	return int(t.Duration / period)
}

// Scale stretches the tier duration by factor, for workloads that need
// longer to settle. The required tick count is unchanged. Non-positive
// factors leave the tier as is.
func (t Tier) Scale(factor float64) Tier {
	if factor <= 0 {
		return t
	}
	t.Duration = time.Duration(float64(t.Duration) * factor)
	return t
}

func (t Tier) Validate() error {
	errFactory := errors.New()
	switch {
	case t.Duration <= 0:
		return errFactory.WithData(ErrInvalidTier, t.Name+": duration must be positive")
	case t.ValidTicks <= 0:
		return errFactory.WithData(ErrInvalidTier, t.Name+": valid ticks must be positive")
	}
	return nil
}
