package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

// AnalyzerOutput is the structured result of one Analyzer invocation: a
// distillation of the context bundle into facts the Planner and Coder can
// act on, plus the difficulty signal that selects the code/non-code
// temperature family.
//
// Fraud-rate-style ratio facts (spec.md's Open Question on exposing both
// "rate over flagged transactions" and "rate over all transactions" readings)
// are surfaced as plain named Facts entries rather than a dedicated field,
// so the Analyzer is free to report either or both readings explicitly
// instead of the engine silently picking one.
type AnalyzerOutput struct {
	Summary        string   `json:"summary"`
	Facts          []string `json:"facts"`
	DifficultyHint string   `json:"difficulty_hint"` // "code" or "non_code"
}

const analyzerSystemPrompt = `You are the Analyzer. Read the question and the supplied documents and files.
Respond with a single JSON object: {"summary": string, "facts": [string], "difficulty_hint": "code"|"non_code"}.
List every numeric fact under more than one plausible denominator when the question's phrasing is ambiguous about what the rate is taken over.`

// Analyze runs the Analyzer role over a context bundle. The prompt carries
// every AnalyzedFile's exact column names, row count, and head preview, and
// every NormalizedDocument's title and content, plus the cross-reference
// index, so the per-file schema facts spec.md §4.3 asks for can actually be
// produced — the Analyzer is the only role ever shown this raw material;
// every downstream agent sees only its distilled AnalyzerOutput.
func Analyze(ctx context.Context, llm llmclient.Client, bundle domain.ContextBundle, temperature float64) (AnalyzerOutput, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", bundle.Question)

	fmt.Fprintf(&sb, "Files (%d):\n", len(bundle.Files))
	for _, f := range bundle.Files {
		fmt.Fprintf(&sb, "- path=%s kind=%s row_count=%d columns=%s\n", f.Path, f.Kind, f.RowCount, strings.Join(f.Columns, ","))
		if f.Preview != "" {
			fmt.Fprintf(&sb, "  preview:\n%s\n", indent(f.Preview, "    "))
		}
	}

	fmt.Fprintf(&sb, "\nDocuments (%d):\n", len(bundle.Documents))
	for _, d := range bundle.Documents {
		fmt.Fprintf(&sb, "- id=%s title=%s\n%s\n", d.ID, d.Title, indent(d.Content, "    "))
	}

	if len(bundle.CrossReferenceIndex) > 0 {
		sb.WriteString("\nCross-reference index (entity -> files/documents):\n")
		entities := make([]string, 0, len(bundle.CrossReferenceIndex))
		for e := range bundle.CrossReferenceIndex {
			entities = append(entities, e)
		}
		sort.Strings(entities)
		for _, e := range entities {
			fmt.Fprintf(&sb, "- %s: %s\n", e, strings.Join(bundle.CrossReferenceIndex[e], ", "))
		}
	}

	return generateAndParse(ctx, llm, RoleAnalyzer, analyzerSystemPrompt, sb.String(), temperature, parseAnalyzerOutput)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func parseAnalyzerOutput(text string) (AnalyzerOutput, error) {
	var out AnalyzerOutput
	if err := json.Unmarshal(extractJSON(text), &out); err != nil {
		return out, fmt.Errorf("analyzer output: %w", err)
	}
	if out.DifficultyHint != "code" && out.DifficultyHint != "non_code" {
		out.DifficultyHint = "non_code"
	}
	return out, nil
}
