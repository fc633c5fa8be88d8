package agents

import (
	"context"
	"fmt"

	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

// DebuggerOutput is a revised code artifact produced in response to an
// execution failure or timeout. Debugger invocations do not increment
// events_fired (spec.md's Open Question resolved: the Debugger is a
// per-round repair step, not itself an "event").
type DebuggerOutput struct {
	Source string
}

const debuggerSystemPromptError = `You are the Debugger. The previous code failed during execution. Given the code and the error, produce a corrected version.
Respond with a single fenced code block and nothing else.`

const debuggerSystemPromptTimeout = `You are the Debugger. The previous code exceeded its execution timeout. Produce a revised version that does materially less work per call
(smaller loops, sampled/truncated data, early exits) so it completes well inside the timeout, while still making progress on the current plan step.
Respond with a single fenced code block and nothing else.`

// DebugError runs the Debugger role after an execution error.
func DebugError(ctx context.Context, llm llmclient.Client, code, execError string, temperature float64) (DebuggerOutput, error) {
	prompt := fmt.Sprintf("Code:\n%s\n\nError:\n%s\n", code, execError)
	out, err := generateAndParse(ctx, llm, RoleDebugger, debuggerSystemPromptError, prompt, temperature, parseCoderOutput)
	return DebuggerOutput{Source: out.Source}, err
}

// DebugTimeout runs the Debugger role after an execution timeout, which
// must shrink the code's workload rather than merely retry it unchanged.
func DebugTimeout(ctx context.Context, llm llmclient.Client, code string, temperature float64) (DebuggerOutput, error) {
	prompt := fmt.Sprintf("Code:\n%s\n", code)
	out, err := generateAndParse(ctx, llm, RoleDebugger, debuggerSystemPromptTimeout, prompt, temperature, parseCoderOutput)
	return DebuggerOutput{Source: out.Source}, err
}
