// Package critic implements the Critic & Memory Gate: it scores a round's
// code artifact and execution output, estimates the critic's own
// false-accept/false-reject rates from a running confusion matrix, and
// decides whether a round is admitted into memory.
package critic

import (
	"strings"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// priorAlpha, priorBeta are spec.md §4.2's initial false-accept/false-reject
// priors (0.15, 0.15), expressed as one pseudo-observation's worth of
// Laplace smoothing so EstimateRates returns exactly these priors before
// any real observations exist and relaxes toward the empirical rate as
// observations accumulate.
const (
	priorAlpha       = 0.15
	priorBeta        = 0.15
	priorPseudoCount = 1.0
)

// EstimateRates returns (alpha, beta): the critic's false-accept rate and
// false-reject rate, moving-averaged from priorAlpha/priorBeta by the
// running confusion matrix (spec.md §4.2, §4.4).
func EstimateRates(stats domain.CriticStats) (alpha, beta float64) {
	alpha = (stats.FalsePositive + priorAlpha*priorPseudoCount) / (stats.FalsePositive + stats.TrueNegative + priorPseudoCount)
	beta = (stats.FalseNegative + priorBeta*priorPseudoCount) / (stats.FalseNegative + stats.TruePositive + priorPseudoCount)
	return alpha, beta
}

// Observe folds one ground-truth-labeled outcome into the running
// confusion matrix. "accepted" is the critic's own verdict (sufficient);
// "actuallySufficient" is determined after the fact, typically once a
// later round's Verifier or the Finalizer confirms or overturns it.
func Observe(stats domain.CriticStats, accepted, actuallySufficient bool) domain.CriticStats {
	switch {
	case accepted && actuallySufficient:
		stats.TruePositive++
	case accepted && !actuallySufficient:
		stats.FalsePositive++
	case !accepted && actuallySufficient:
		stats.FalseNegative++
	default:
		stats.TrueNegative++
	}
	return stats
}

// Inputs bundles everything the Critic's scoring heuristics read for one
// round: execution success, the Verifier's own verdict, the execution
// output, the code artifact, and the prior admitted artifacts for the same
// plan step — the four named components of spec.md §4.1 step 4 / §4.4,
// plus the code-quality sub-heuristic spec.md leaves as an open heuristic.
type Inputs struct {
	ExecSucceeded   bool
	ExecOutput      string
	CodeArtifact    string
	VerifierVerdict domain.VerifierVerdict
	PriorApproved   []string // code source of prior admitted artifacts for this step (the control loop passes the most recent one)
}

// Score computes a scalar plausibility score in [0, 1] from execution
// success, the Verifier's verdict, output plausibility, code-quality
// heuristics, and agreement with prior approved rounds — the concrete
// heuristics the distilled specification leaves abstract, grounded on the
// original benchmark's _calculate_solution_quality / _calculate_code_quality
// / _calculate_domain_expertise family of scoring helpers.
func Score(in Inputs) float64 {
	var score float64

	if in.ExecSucceeded {
		score += 0.3
	}

	score += 0.2 * verdictScore(in.VerifierVerdict)
	score += 0.2 * outputPlausibility(in.ExecOutput)
	score += 0.2 * codeQuality(in.CodeArtifact)
	score += 0.1 * agreementWithPriors(in.CodeArtifact, in.PriorApproved)

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// verdictScore folds the Verifier's own verdict into the critic's score, so
// an insufficient verdict pulls the score down even when execution
// succeeded and the output looks superficially plausible.
func verdictScore(verdict domain.VerifierVerdict) float64 {
	switch verdict {
	case domain.VerdictSufficient:
		return 1
	case domain.VerdictInsufficient:
		return 0
	default:
		return 0
	}
}

// outputPlausibility rewards non-empty output that doesn't look like a bare
// traceback or error string.
func outputPlausibility(out string) float64 {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return 0
	}
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "traceback") || strings.Contains(lower, "exception") || strings.Contains(lower, "panic:") {
		return 0.2
	}
	return 1
}

// codeQuality is a coarse proxy: non-trivial length and absence of
// placeholder markers.
func codeQuality(code string) float64 {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return 0
	}
	if strings.Contains(trimmed, "TODO") || strings.Contains(trimmed, "pass  #") {
		return 0.4
	}
	if len(trimmed) < 20 {
		return 0.5
	}
	return 1
}

// agreementWithPriors rewards incremental edits that keep large contiguous
// regions of previously-admitted code unchanged, per the Incremental Coder
// Discipline (spec.md §4.6): a diff that rewrites everything from scratch
// is a weaker signal than one that visibly builds on prior work.
func agreementWithPriors(code string, priors []string) float64 {
	if len(priors) == 0 {
		return 0.5 // no history to compare against; neutral
	}
	last := priors[len(priors)-1]
	if last == "" {
		return 0.5
	}
	shared := commonLineRatio(last, code)
	return shared
}

func commonLineRatio(a, b string) float64 {
	aLines := strings.Split(a, "\n")
	bSet := make(map[string]struct{}, len(aLines))
	for _, l := range strings.Split(b, "\n") {
		bSet[strings.TrimSpace(l)] = struct{}{}
	}
	if len(aLines) == 0 {
		return 0
	}
	matches := 0
	for _, l := range aLines {
		if _, ok := bSet[strings.TrimSpace(l)]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(aLines))
}

// Gate applies the memory-admission threshold: a round is admitted into
// memory only if its critic score meets or exceeds tauC. Admission is
// monotone — a round once admitted is never retroactively evicted by a
// later round's lower score.
func Gate(score, tauC float64) bool {
	return score >= tauC
}
