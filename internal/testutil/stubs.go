// Package testutil provides deterministic LLM and Executor stubs for
// exercising the control loop without a live model or sandbox, grounded on
// the canned-response pattern in
// _examples/smilemakc-mbflow/pkg/engine/dag_executor_loop_test.go and the
// teacher's own root-level testutil package.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smilemakc/mbflow-inference/internal/execclient"
)

// agentMarkers maps each agent's system-prompt opening line to a short role
// key, so the stub can key canned responses by (role, call index) without
// needing a parallel out-of-band channel.
var agentMarkers = []struct {
	marker string
	role   string
}{
	{"You are the Analyzer.", "analyzer"},
	{"You are the Planner.", "planner"},
	{"You are the Coder.", "coder"},
	{"You are the Verifier.", "verifier"},
	{"You are the Router.", "router"},
	{"You are the Debugger. The previous code failed", "debugger_error"},
	{"You are the Debugger. The previous code exceeded", "debugger_timeout"},
	{"You are the Finalizer.", "finalizer"},
}

func roleOf(systemPrompt string) string {
	for _, m := range agentMarkers {
		if strings.HasPrefix(systemPrompt, m.marker) {
			return m.role
		}
	}
	return "unknown"
}

// StubLLM is a deterministic LLM.generate capability returning canned text
// keyed by (role, call index). Responses exhausts onto its last entry so a
// scenario doesn't need to enumerate every round a role might be called in
// (e.g. a Router asked to "continue" indefinitely).
type StubLLM struct {
	Responses map[string][]string
	calls     map[string]int
}

// NewStubLLM builds a StubLLM from a map of role -> ordered canned
// responses.
func NewStubLLM(responses map[string][]string) *StubLLM {
	return &StubLLM{Responses: responses, calls: map[string]int{}}
}

// Generate implements llmclient.Client.
func (s *StubLLM) Generate(_ context.Context, systemPrompt, _ string, _ float64) (string, error) {
	role := roleOf(systemPrompt)
	list := s.Responses[role]
	if len(list) == 0 {
		return "", fmt.Errorf("stub llm: no canned response for role %q", role)
	}
	idx := s.calls[role]
	s.calls[role]++
	if idx >= len(list) {
		idx = len(list) - 1
	}
	return list[idx], nil
}

// CallCount reports how many times a given role was invoked so far.
func (s *StubLLM) CallCount(role string) int {
	return s.calls[role]
}

// ExecOutcome is one canned result for the StubExecutor to return.
type ExecOutcome struct {
	Result execclient.Result
	Err    error
}

// StubExecutor is a deterministic Executor.run capability returning a
// canned sequence of outcomes, exhausting onto the last one.
type StubExecutor struct {
	Outcomes []ExecOutcome
	calls    int
}

// NewStubExecutor builds a StubExecutor from an ordered outcome sequence.
func NewStubExecutor(outcomes ...ExecOutcome) *StubExecutor {
	return &StubExecutor{Outcomes: outcomes}
}

// Run implements execclient.Executor.
func (s *StubExecutor) Run(_ context.Context, _ string, _ time.Duration) (execclient.Result, error) {
	if len(s.Outcomes) == 0 {
		return execclient.Result{}, fmt.Errorf("stub executor: no canned outcomes configured")
	}
	idx := s.calls
	s.calls++
	if idx >= len(s.Outcomes) {
		idx = len(s.Outcomes) - 1
	}
	o := s.Outcomes[idx]
	return o.Result, o.Err
}

// Calls reports how many times Run has been invoked so far.
func (s *StubExecutor) Calls() int {
	return s.calls
}

// Ok is a convenience constructor for a successful ExecOutcome.
func Ok(stdout string) ExecOutcome {
	return ExecOutcome{Result: execclient.Result{Stdout: stdout}}
}
