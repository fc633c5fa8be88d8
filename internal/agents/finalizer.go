package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

// FormatHints narrows how normalizeAnswer massages the raw answer text,
// grounded on the original benchmark's _normalize_answer /
// _extract_answer_from_response helpers.
type FormatHints struct {
	DecimalPlaces int  // -1 means "no rounding requested"
	IsList        bool // preserve/assert bracketed list form, e.g. "[7]"
}

// FinalizerOutput is the terminal answer text, already normalized.
type FinalizerOutput struct {
	FinalAnswer string `json:"final_answer"`
}

const finalizerSystemPrompt = `You are the Finalizer. Given the question and the most recent sufficient round's output, produce the final answer only.
Respond with JSON: {"final_answer": string}. Do not include explanation.`

// Finalize runs the Finalizer role and normalizes its answer per hints.
func Finalize(ctx context.Context, llm llmclient.Client, question, lastOutput string, hints FormatHints, temperature float64) (FinalizerOutput, error) {
	prompt := fmt.Sprintf("Question: %s\n\nOutput:\n%s\n", question, lastOutput)
	out, err := generateAndParse(ctx, llm, RoleFinalizer, finalizerSystemPrompt, prompt, temperature, parseFinalizerOutput)
	if err != nil {
		return out, err
	}
	out.FinalAnswer = normalizeAnswer(out.FinalAnswer, hints)
	return out, nil
}

func parseFinalizerOutput(text string) (FinalizerOutput, error) {
	var out FinalizerOutput
	if err := json.Unmarshal(extractJSON(text), &out); err != nil {
		return out, fmt.Errorf("finalizer output: %w", err)
	}
	if strings.TrimSpace(out.FinalAnswer) == "" {
		return out, fmt.Errorf("finalizer output: empty final_answer")
	}
	return out, nil
}

var decimalRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// normalizeAnswer rounds bare decimal answers to the requested precision
// and preserves bracketed list form for list-typed answers, matching the
// original benchmark's answer-normalization behavior (Scenario F:
// final_answer == "[7]").
func normalizeAnswer(raw string, hints FormatHints) string {
	trimmed := strings.TrimSpace(raw)

	if hints.IsList {
		inner := trimmed
		if strings.HasPrefix(inner, "[") && strings.HasSuffix(inner, "]") {
			inner = inner[1 : len(inner)-1]
		}
		parts := strings.Split(inner, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}

	if hints.DecimalPlaces >= 0 && decimalRe.MatchString(trimmed) {
		f, err := strconv.ParseFloat(trimmed, 64)
		if err == nil {
			return strconv.FormatFloat(f, 'f', hints.DecimalPlaces, 64)
		}
	}

	return trimmed
}
