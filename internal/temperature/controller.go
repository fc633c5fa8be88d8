// Package temperature implements the Temperature Controller's step-function
// adaptation: raise on consecutive insufficient verdicts, reset toward base
// on the first sufficient verdict. The step-function shape (fixed
// increment, capped maximum) is grounded on pkg/engine/retry_policy.go's
// GetDelay backoff calculation, adapted from a time delay to a sampling
// temperature.
package temperature

import "github.com/smilemakc/mbflow-inference/internal/domain"

// New returns a TemperatureState seeded at base, for either the code agent
// family (T0=0.1 per spec.md) or the non-code family (T0=0.2).
func New(base, max, step float64) domain.TemperatureState {
	return domain.TemperatureState{
		Base:    base,
		Current: base,
		Max:     max,
		Step:    step,
	}
}

// OnInsufficient raises the temperature by one step, capped at Max, and
// records the raise.
func OnInsufficient(t domain.TemperatureState) domain.TemperatureState {
	t.ConsecutiveRaises++
	next := t.Current + t.Step
	if next > t.Max {
		next = t.Max
	}
	t.Current = next
	return t
}

// OnSufficient resets the temperature to Base on the first sufficient
// verdict following any raises.
func OnSufficient(t domain.TemperatureState) domain.TemperatureState {
	t.Current = t.Base
	t.ConsecutiveRaises = 0
	return t
}

// MaxReached reports whether the temperature is currently pinned at Max.
func MaxReached(t domain.TemperatureState) bool {
	return t.Current >= t.Max
}
