package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

// VerifierOutput is the Verifier role's structured judgement of one round's
// execution output against the question.
type VerifierOutput struct {
	Verdict domain.VerifierVerdict `json:"verdict"`
	Reason  string                 `json:"reason"`
}

const verifierSystemPrompt = `You are the Verifier. Given the question and the executed output, judge whether the output sufficiently answers the question.
Respond with JSON: {"verdict": "sufficient"|"insufficient"|"error", "reason": string}.
Use "error" only when the output itself shows an execution failure rather than an answer that is merely wrong or incomplete.`

// Verify runs the Verifier role over one round's execution output.
func Verify(ctx context.Context, llm llmclient.Client, question, execOutput, execError string, temperature float64) (VerifierOutput, error) {
	prompt := fmt.Sprintf("Question: %s\n\nOutput:\n%s\n\nError:\n%s\n", question, execOutput, execError)
	return generateAndParse(ctx, llm, RoleVerifier, verifierSystemPrompt, prompt, temperature, parseVerifierOutput)
}

func parseVerifierOutput(text string) (VerifierOutput, error) {
	var out VerifierOutput
	if err := json.Unmarshal(extractJSON(text), &out); err != nil {
		return out, fmt.Errorf("verifier output: %w", err)
	}
	switch out.Verdict {
	case domain.VerdictSufficient, domain.VerdictInsufficient, domain.VerdictError:
	default:
		return out, fmt.Errorf("verifier output: unknown verdict %q", out.Verdict)
	}
	return out, nil
}
