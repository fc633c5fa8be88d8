// Package belief implements the Bayesian belief update, binary Shannon
// entropy, and Expected Information Gain (EIG) calculations that drive the
// control loop's stopping rule.
package belief

import (
	"math"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

const epsilon = 1e-9

// clamp keeps a probability strictly inside (0, 1) so log2 never blows up.
func clamp(p float64) float64 {
	if p < epsilon {
		return epsilon
	}
	if p > 1-epsilon {
		return 1 - epsilon
	}
	return p
}

// Entropy returns the binary Shannon entropy of belief b, in bits.
func Entropy(b float64) float64 {
	b = clamp(b)
	return -b*math.Log2(b) - (1-b)*math.Log2(1-b)
}

// UpdateOnApprove applies Bayes' rule for a critic "sufficient" observation,
// given the critic's false-accept rate alpha and false-reject rate beta.
//
//	P(sufficient | approve) = b*(1-beta) / (b*(1-beta) + (1-b)*alpha)
func UpdateOnApprove(b, alpha, beta float64) float64 {
	num := b * (1 - beta)
	den := num + (1-b)*alpha
	if den < epsilon {
		return b
	}
	return clamp(num / den)
}

// UpdateOnReject applies Bayes' rule for a critic "insufficient" observation.
//
//	P(sufficient | reject) = b*beta / (b*beta + (1-b)*(1-alpha))
func UpdateOnReject(b, alpha, beta float64) float64 {
	num := b * beta
	den := num + (1-b)*(1-alpha)
	if den < epsilon {
		return b
	}
	return clamp(num / den)
}

// AcceptProbability is the marginal probability that the critic's next
// observation will be "sufficient", under belief b.
//
//	P(approve) = b*(1-beta) + (1-b)*alpha
func AcceptProbability(b, alpha, beta float64) float64 {
	return b*(1-beta) + (1-b)*alpha
}

// EIG computes the Expected Information Gain of an unrealized critic
// observation: the current entropy minus the expected entropy after
// observing either outcome, each outcome weighted by its probability
// (AcceptProbability for approve, its complement for reject).
func EIG(b, alpha, beta float64) float64 {
	accept := AcceptProbability(b, alpha, beta)
	bApprove := UpdateOnApprove(b, alpha, beta)
	bReject := UpdateOnReject(b, alpha, beta)

	expected := accept*Entropy(bApprove) + (1-accept)*Entropy(bReject)
	gain := Entropy(b) - expected
	if gain < 0 {
		return 0
	}
	return gain
}

// Update applies the Bayesian update for one round's observation, returning
// the new BeliefState (Belief and Entropy both refreshed). The noisy
// observation characterized by alpha/beta is the Critic's own admit/reject
// outcome (admitted == true is "approve"), not the Verifier's verdict
// directly — alpha/beta are the Critic's false-accept and false-reject
// rates, so they only calibrate the Critic's own signal. A VerdictError
// round carries no information about correctness (the output is a failure,
// not a wrong-but-present answer) and leaves belief unchanged; it is
// handled by the Router/Debugger path instead.
func Update(state domain.BeliefState, verdict domain.VerifierVerdict, admitted bool, alpha, beta float64) domain.BeliefState {
	switch {
	case verdict == domain.VerdictError:
	case admitted:
		state.Belief = UpdateOnApprove(state.Belief, alpha, beta)
	default:
		state.Belief = UpdateOnReject(state.Belief, alpha, beta)
	}
	state.Entropy = Entropy(state.Belief)
	return state
}
