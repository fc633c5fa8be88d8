// Package agents implements the Analyzer, Planner, Coder, Verifier, Router,
// Debugger, and Finalizer roles that drive one round of the control loop.
// Executor is a consumed capability (internal/execclient), not an agent
// implemented here.
//
// Every role shares the generate(role, prompt, temperature) -> text
// abstraction from spec.md §4.3, modeled on pkg/executor/executor.go's
// Executor/BaseExecutor pair: a thin capability interface plus a helper
// that adds the shared one-retry-at-+0.1-temperature parse-error policy.
package agents

import (
	"context"
	"fmt"

	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

// Role identifies an agent role for logging and prompt-template selection.
type Role string

const (
	RoleAnalyzer  Role = "analyzer"
	RolePlanner   Role = "planner"
	RoleCoder     Role = "coder"
	RoleVerifier  Role = "verifier"
	RoleRouter    Role = "router"
	RoleDebugger  Role = "debugger"
	RoleFinalizer Role = "finalizer"
)

// retryTemperatureBump is the fixed +0.1 temperature increase applied to
// the single allowed retry after a parse failure (spec.md §4.3).
const retryTemperatureBump = 0.1

// generateAndParse issues one generate call for the given role/prompt/
// temperature, parses its text with parseFn, and on parse failure retries
// exactly once at temperature+0.1 before giving up with
// domain.ErrAgentParseFailed.
func generateAndParse[T any](
	ctx context.Context,
	llm llmclient.Client,
	role Role,
	systemPrompt, userPrompt string,
	temperature float64,
	parseFn func(string) (T, error),
) (T, error) {
	var zero T

	text, err := llm.Generate(ctx, systemPrompt, userPrompt, temperature)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", role, err)
	}
	parsed, perr := parseFn(text)
	if perr == nil {
		return parsed, nil
	}

	// One retry at a bumped temperature, per spec.md's shared parse-error
	// policy.
	retryText, err := llm.Generate(ctx, systemPrompt, userPrompt, temperature+retryTemperatureBump)
	if err != nil {
		return zero, fmt.Errorf("%s retry: %w", role, err)
	}
	parsed, perr = parseFn(retryText)
	if perr != nil {
		return zero, fmt.Errorf("%s: %w: %w", role, domain.ErrAgentParseFailed, perr)
	}
	return parsed, nil
}
