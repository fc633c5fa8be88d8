package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

// RouterInput bundles the observable state the Router reasons over.
type RouterInput struct {
	Verdict              domain.VerifierVerdict
	Reason                string
	Belief                float64
	Entropy               float64
	EIG                   float64
	ConsecutiveInsufficient int
	BacktrackBudgetLeft   int
	IdenticalConsecutiveCode bool
}

const routerSystemPrompt = `You are the Router. Decide the next action from the verifier's verdict and the belief/entropy/EIG state.
Respond with JSON: {"decision": "continue"|"add_step"|"fix_step"|"finalize"|"abort", "target_step": int, "reason": string}.
target_step is only meaningful when decision is "fix_step"; use 0 otherwise.
Prefer "fix_step" over "continue" when the same code has now been produced on two consecutive rounds without progress.
Never choose "fix_step" or "add_step" if the backtrack budget left is 0; choose "abort" instead in that case.`

// Route runs the Router role.
func Route(ctx context.Context, llm llmclient.Client, in RouterInput, temperature float64) (domain.RouterOutcome, error) {
	prompt := fmt.Sprintf(
		"verdict=%s reason=%q belief=%.4f entropy=%.4f eig=%.4f consecutive_insufficient=%d backtrack_budget_left=%d identical_consecutive_code=%t",
		in.Verdict, in.Reason, in.Belief, in.Entropy, in.EIG, in.ConsecutiveInsufficient, in.BacktrackBudgetLeft, in.IdenticalConsecutiveCode,
	)
	return generateAndParse(ctx, llm, RoleRouter, routerSystemPrompt, prompt, temperature, parseRouterOutput)
}

func parseRouterOutput(text string) (domain.RouterOutcome, error) {
	var raw struct {
		Decision   domain.RouterDecision `json:"decision"`
		TargetStep int                   `json:"target_step"`
		Reason     string                `json:"reason"`
	}
	if err := json.Unmarshal(extractJSON(text), &raw); err != nil {
		return domain.RouterOutcome{}, fmt.Errorf("router output: %w", err)
	}
	switch raw.Decision {
	case domain.RouterContinue, domain.RouterAddStep, domain.RouterFixStep, domain.RouterFinalize, domain.RouterAbort:
	default:
		return domain.RouterOutcome{}, fmt.Errorf("router output: unknown decision %q", raw.Decision)
	}
	return domain.RouterOutcome{
		Decision:   raw.Decision,
		TargetStep: raw.TargetStep,
		Reason:     raw.Reason,
	}, nil
}
