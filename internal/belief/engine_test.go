package belief

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

func TestEntropy_MaxAtOneHalf(t *testing.T) {
	assert.InDelta(t, 1.0, Entropy(0.5), 1e-9)
}

func TestEntropy_MonotonicallyDecreasesAwayFromHalf(t *testing.T) {
	assert.Less(t, Entropy(0.9), Entropy(0.7))
	assert.Less(t, Entropy(0.1), Entropy(0.3))
}

func TestEntropy_ClampsExtremes(t *testing.T) {
	assert.False(t, math.IsInf(Entropy(0), 0))
	assert.False(t, math.IsNaN(Entropy(0)))
	assert.False(t, math.IsInf(Entropy(1), 0))
	assert.False(t, math.IsNaN(Entropy(1)))
}

func TestUpdateOnApprove_IncreasesBelief(t *testing.T) {
	got := UpdateOnApprove(0.5, 0.15, 0.15)
	assert.Greater(t, got, 0.5)
}

func TestUpdateOnReject_DecreasesBelief(t *testing.T) {
	got := UpdateOnReject(0.5, 0.15, 0.15)
	assert.Less(t, got, 0.5)
}

func TestUpdateOnApprove_PerfectCritic(t *testing.T) {
	// alpha=0, beta=0: a noiseless critic's approval is conclusive.
	got := UpdateOnApprove(0.5, 0, 0)
	assert.InDelta(t, 1.0, got, 1e-6)
}

func TestUpdateOnReject_PerfectCritic(t *testing.T) {
	got := UpdateOnReject(0.5, 0, 0)
	assert.InDelta(t, 0.0, got, 1e-6)
}

func TestAcceptProbability_Bounds(t *testing.T) {
	p := AcceptProbability(0.5, 0.15, 0.15)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestEIG_NonNegative(t *testing.T) {
	for _, b := range []float64{0.01, 0.1, 0.5, 0.9, 0.99} {
		gain := EIG(b, 0.15, 0.15)
		assert.GreaterOrEqual(t, gain, 0.0)
	}
}

func TestEIG_ZeroAtCertainty(t *testing.T) {
	// near-certain belief: observing the critic again teaches almost nothing.
	assert.Less(t, EIG(0.999999, 0.15, 0.15), EIG(0.5, 0.15, 0.15))
}

func TestEIG_FullEntropyWithPerfectCriticAtHalf(t *testing.T) {
	// A noiseless critic fully resolves belief in one observation: EIG at
	// b=0.5 with alpha=beta=0 is the full starting entropy (1 bit).
	assert.InDelta(t, 1.0, EIG(0.5, 0, 0), 1e-6)
}

func TestUpdate_AdmittedDrivesApprove(t *testing.T) {
	state := domain.BeliefState{Belief: 0.5, Entropy: Entropy(0.5)}
	got := Update(state, domain.VerdictInsufficient, true, 0.15, 0.15)
	assert.Greater(t, got.Belief, 0.5)
	assert.InDelta(t, Entropy(got.Belief), got.Entropy, 1e-12)
}

func TestUpdate_RejectedDrivesDown(t *testing.T) {
	state := domain.BeliefState{Belief: 0.5, Entropy: Entropy(0.5)}
	got := Update(state, domain.VerdictSufficient, false, 0.15, 0.15)
	assert.Less(t, got.Belief, 0.5)
}

func TestUpdate_VerdictErrorLeavesBeliefUnchanged(t *testing.T) {
	state := domain.BeliefState{Belief: 0.42, Entropy: Entropy(0.42)}
	got := Update(state, domain.VerdictError, true, 0.15, 0.15)
	assert.InDelta(t, 0.42, got.Belief, 1e-12)

	got2 := Update(state, domain.VerdictError, false, 0.15, 0.15)
	assert.InDelta(t, 0.42, got2.Belief, 1e-12)
}
