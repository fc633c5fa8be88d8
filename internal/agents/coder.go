package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

// CoderOutput is the full source produced by one Coder invocation. The
// Incremental Coder Discipline (spec.md §4.6) requires that unchanged
// regions from the previous artifact for this step be preserved verbatim
// and that new/changed regions carry an inline comment naming the plan
// step index responsible for the change; this package does not enforce
// that textually (it cannot verify intent), it only carries the convention
// into the prompt.
type CoderOutput struct {
	Source string
}

const coderSystemPrompt = `You are the Coder. Write or incrementally revise Python code that carries out the current plan step.
If previous code for this step is supplied, preserve every region it does not need to change, and mark every changed or added region with a comment of the form "# step_%d" naming the current plan step index.
Respond with a single fenced code block and nothing else.`

var codeFence = regexp.MustCompile("(?s)```(?:python)?\\s*\\n(.*?)\\n```")

// Code runs the Coder role for the given plan step, with the previous
// artifact for this step (empty on the first pass).
func Code(ctx context.Context, llm llmclient.Client, step domain.PlanStep, previous string, temperature float64) (CoderOutput, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan step %d: %s\n", step.Index, step.Description)
	if previous != "" {
		fmt.Fprintf(&sb, "\nPrevious code for this step:\n%s\n", previous)
	}
	return generateAndParse(ctx, llm, RoleCoder, coderSystemPrompt, sb.String(), temperature, parseCoderOutput)
}

func parseCoderOutput(text string) (CoderOutput, error) {
	if m := codeFence.FindStringSubmatch(text); m != nil {
		return CoderOutput{Source: m[1]}, nil
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return CoderOutput{}, fmt.Errorf("coder output: empty source")
	}
	return CoderOutput{Source: trimmed}, nil
}
