package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

// PlannerOutput is one proposed plan step description.
type PlannerOutput struct {
	StepDescription string `json:"step_description"`
}

const plannerSystemPrompt = `You are the Planner. Given the analysis and the steps already taken, propose the single next concrete step toward answering the question.
Respond with JSON: {"step_description": string}. Keep it to one actionable instruction for the Coder.`

// Plan runs the Planner role, given the Analyzer's output and the plan's
// existing steps (already-done or superseded steps are included for
// context so the Planner doesn't repeat them).
func Plan(ctx context.Context, llm llmclient.Client, analysis AnalyzerOutput, existing domain.Plan, temperature float64) (PlannerOutput, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summary: %s\n", analysis.Summary)
	for _, f := range analysis.Facts {
		fmt.Fprintf(&sb, "Fact: %s\n", f)
	}
	for _, s := range existing.Steps {
		fmt.Fprintf(&sb, "Step %d [%s]: %s\n", s.Index, s.State, s.Description)
	}
	return generateAndParse(ctx, llm, RolePlanner, plannerSystemPrompt, sb.String(), temperature, parsePlannerOutput)
}

func parsePlannerOutput(text string) (PlannerOutput, error) {
	var out PlannerOutput
	if err := json.Unmarshal(extractJSON(text), &out); err != nil {
		return out, fmt.Errorf("planner output: %w", err)
	}
	if strings.TrimSpace(out.StepDescription) == "" {
		return out, fmt.Errorf("planner output: empty step_description")
	}
	return out, nil
}
