package loop_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow-inference/internal/config"
	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/execclient"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow-inference/internal/loop"
	"github.com/smilemakc/mbflow-inference/internal/testutil"
)

func baseConfig() config.SolveConfig {
	cfg := config.DefaultSolveConfig()
	cfg.RoundTimeout = 5 * time.Second
	cfg.ExecutorTimeout = time.Second
	return cfg
}

func bundle(question string) domain.ContextBundle {
	return domain.ContextBundle{Question: question}
}

const planJSON = `{"step_description": "load payments.csv and compute the most common issuing_country"}`

const analyzerJSON = `{"summary": "one payments file", "facts": [], "difficulty_hint": "code"}`

func coderCode(body string) string {
	return "```python\n" + body + "\n```"
}

// Scenario A — easy convergence: one round, sufficient verdict, critic
// approves, Router finalizes.
func TestSolve_ScenarioA_EasyConvergence(t *testing.T) {
	llm := testutil.NewStubLLM(map[string][]string{
		"analyzer":  {analyzerJSON},
		"planner":   {planJSON},
		"coder":     {coderCode("print('NL')")},
		"verifier":  {`{"verdict": "sufficient", "reason": "matches expected top country"}`},
		"router":    {`{"decision": "finalize", "target_step": 0, "reason": "belief is high enough"}`},
		"finalizer": {`{"final_answer": "NL"}`},
	})
	exec := testutil.NewStubExecutor(testutil.Ok("NL"))

	rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, bundle("What is the most common issuing_country in payments.csv?"), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, "NL", rec.FinalAnswer)
	assert.Equal(t, domain.TerminationBeliefThreshold, rec.TerminationCause)
	assert.Equal(t, 1, rec.EventsFired)
	assert.GreaterOrEqual(t, rec.Rounds, 1)
	assert.Greater(t, rec.FinalBelief, 0.5)
	assert.Len(t, rec.Trajectories.BeliefTrajectory, rec.EventsFired+1)
	assert.Len(t, rec.Trajectories.EIGTrajectory, rec.EventsFired+1)
	assert.InDelta(t, 0.5, rec.Trajectories.BeliefTrajectory[0], 1e-9)
}

// Scenario B — recoverable bug: the first executor attempt fails, the
// Debugger fixes it, and the repaired run succeeds within the same round.
func TestSolve_ScenarioB_RecoverableBug(t *testing.T) {
	llm := testutil.NewStubLLM(map[string][]string{
		"analyzer":       {analyzerJSON},
		"planner":        {planJSON},
		"coder":          {coderCode("print(df['issuing_countr'].mode())")},
		"debugger_error": {coderCode("print('NL')")},
		"verifier":       {`{"verdict": "sufficient", "reason": "matches"}`},
		"router":         {`{"decision": "finalize", "target_step": 0, "reason": "done"}`},
		"finalizer":      {`{"final_answer": "NL"}`},
	})
	exec := testutil.NewStubExecutor(
		testutil.ExecOutcome{Err: domain.ErrExecutorFailed, Result: execclient.Result{Stderr: "KeyError: issuing_countr"}},
		testutil.Ok("NL"),
	)

	rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, bundle("q"), baseConfig())
	require.NoError(t, err)

	require.Len(t, rec.History, 1)
	snap := rec.History[0]
	assert.True(t, snap.DebuggerUsed)
	assert.NotEmpty(t, snap.OriginalError)
	assert.Empty(t, snap.ExecError)
	assert.Equal(t, "NL", rec.FinalAnswer)
}

// Scenario C — backtrack via fix_step_N: round 1 verifies insufficient and
// the Router fixes step 1 (the only step so far); round 2 converges.
func TestSolve_ScenarioC_BacktrackFixStep(t *testing.T) {
	llm := testutil.NewStubLLM(map[string][]string{
		"analyzer": {analyzerJSON},
		"planner": {
			planJSON,
			`{"step_description": "recompute using the corrected column name"}`,
		},
		"coder": {
			coderCode("print('DE')"),
			coderCode("print('NL')"),
		},
		"verifier": {
			`{"verdict": "insufficient", "reason": "wrong_value: does not match expectation"}`,
			`{"verdict": "sufficient", "reason": "matches"}`,
		},
		"router": {
			`{"decision": "fix_step", "target_step": 1, "reason": "step 1 produced the wrong value"}`,
			`{"decision": "finalize", "target_step": 0, "reason": "done"}`,
		},
		"finalizer": {`{"final_answer": "NL"}`},
	})
	exec := testutil.NewStubExecutor(testutil.Ok("DE"), testutil.Ok("NL"))

	rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, bundle("q"), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Backtracks)
	assert.Equal(t, "NL", rec.FinalAnswer)
	require.Len(t, rec.History, 2)
	assert.Equal(t, domain.RouterFixStep, rec.History[0].RouterOutcome.Decision)
}

// Scenario D — EIG-floor stop: the Verifier keeps returning "insufficient"
// with the same unclear reason and the critic keeps scoring mid-range, so
// belief drifts and flattens without ever reaching kappa.
func TestSolve_ScenarioD_EIGFloorStop(t *testing.T) {
	insufficient := `{"verdict": "insufficient", "reason": "unclear: ambiguous denominator"}`
	router := `{"decision": "continue", "target_step": 0, "reason": "keep trying"}`

	llm := testutil.NewStubLLM(map[string][]string{
		"analyzer":  {analyzerJSON},
		"planner":   {planJSON},
		"coder":     repeatStrings(coderCode("print('0.42')"), 30),
		"verifier":  repeatStrings(insufficient, 30),
		"router":    repeatStrings(router, 30),
		"finalizer": {`{"final_answer": "0.42"}`},
	})
	exec := testutil.NewStubExecutor(repeatOutcomes(testutil.Ok("0.42"), 30)...)

	cfg := baseConfig()
	cfg.MaxEvents = 30
	cfg.MaxRounds = 30

	rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, bundle("q"), cfg)
	require.NoError(t, err)

	assert.Equal(t, domain.TerminationEIGBelowThreshold, rec.TerminationCause)
	assert.NotEmpty(t, rec.FinalAnswer)
	assert.GreaterOrEqual(t, rec.FinalBelief, 0.6)
}

// Scenario E — budget exhaustion: every round fails with a distinct error
// (so repeated_errors never fires) and the Router always continues, so
// max_events binds first. Execution failure keeps the critic score below
// tauC every round, so every round is a reject and belief falls away from
// both kappa and the EIG floor's belief>=0.6 gate before the budget binds.
func TestSolve_ScenarioE_BudgetExhaustion(t *testing.T) {
	insufficient := `{"verdict": "insufficient", "reason": "wrong_value"}`
	router := `{"decision": "continue", "target_step": 0, "reason": "keep trying"}`

	llm := testutil.NewStubLLM(map[string][]string{
		"analyzer":  {analyzerJSON},
		"planner":   {planJSON},
		"coder":     repeatStrings(coderCode("print('x')"), 10),
		"verifier":  repeatStrings(insufficient, 10),
		"router":    repeatStrings(router, 10),
		"finalizer": {`{"final_answer": "x"}`},
	})
	exec := testutil.NewStubExecutor(
		testutil.ExecOutcome{Err: domain.ErrExecutorFailed, Result: execclient.Result{Stderr: "error A"}},
		testutil.ExecOutcome{Err: domain.ErrExecutorFailed, Result: execclient.Result{Stderr: "error B"}},
		testutil.ExecOutcome{Err: domain.ErrExecutorFailed, Result: execclient.Result{Stderr: "error C"}},
		testutil.ExecOutcome{Err: domain.ErrExecutorFailed, Result: execclient.Result{Stderr: "error D"}},
		testutil.ExecOutcome{Err: domain.ErrExecutorFailed, Result: execclient.Result{Stderr: "error E"}},
	)

	cfg := baseConfig()
	cfg.MaxEvents = 4
	cfg.MaxRounds = 20
	cfg.DebuggerBudgetPerRound = 0

	rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, bundle("q"), cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, rec.EventsFired)
	assert.Equal(t, domain.TerminationMaxEventsReached, rec.TerminationCause)
	assert.Len(t, rec.Trajectories.BeliefTrajectory, 5)
	assert.Len(t, rec.Trajectories.EIGTrajectory, 5)
}

// Scenario F — format discipline: the question demands a list, and the
// Finalizer's bare scalar answer must come back bracketed.
func TestSolve_ScenarioF_FormatDiscipline(t *testing.T) {
	llm := testutil.NewStubLLM(map[string][]string{
		"analyzer":  {analyzerJSON},
		"planner":   {planJSON},
		"coder":     {coderCode("print(7)")},
		"verifier":  {`{"verdict": "sufficient", "reason": "matches"}`},
		"router":    {`{"decision": "finalize", "target_step": 0, "reason": "done"}`},
		"finalizer": {`{"final_answer": "7"}`},
	})
	exec := testutil.NewStubExecutor(testutil.Ok("7"))

	b := bundle("Provide the response in a list.")
	b.Metadata = map[string]any{"is_list": true}

	rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, b, baseConfig())
	require.NoError(t, err)

	assert.Equal(t, "[7]", rec.FinalAnswer)
}

// TestSolve_MaxEventsZero exercises the round-trip/idempotence property
// from spec.md §8: with max_events = 0 the loop must still produce a
// Finalizer answer from the initial artifact and a single-entry belief
// trajectory equal to b0.
func TestSolve_MaxEventsZero(t *testing.T) {
	llm := testutil.NewStubLLM(map[string][]string{
		"analyzer":  {analyzerJSON},
		"planner":   {planJSON},
		"finalizer": {`{"final_answer": "Not Applicable"}`},
	})
	exec := testutil.NewStubExecutor(testutil.Ok(""))

	cfg := baseConfig()
	cfg.MaxEvents = 0
	cfg.MaxRounds = 0

	rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, bundle("q"), cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, rec.EventsFired)
	assert.Equal(t, 0, rec.Rounds)
	assert.Equal(t, domain.TerminationMaxRoundsReached, rec.TerminationCause)
	assert.Equal(t, []float64{0.5}, rec.Trajectories.BeliefTrajectory)
	assert.Equal(t, "Not Applicable", rec.FinalAnswer)
}

// TestSolve_Determinism exercises spec.md §8's "two runs with identical
// inputs and a deterministic LLM produce identical Final Records" property.
func TestSolve_Determinism(t *testing.T) {
	build := func() (domain.ContextBundle, config.SolveConfig) {
		return bundle("What is the most common issuing_country in payments.csv?"), baseConfig()
	}
	run := func() domain.FinalRecord {
		llm := testutil.NewStubLLM(map[string][]string{
			"analyzer":  {analyzerJSON},
			"planner":   {planJSON},
			"coder":     {coderCode("print('NL')")},
			"verifier":  {`{"verdict": "sufficient", "reason": "matches"}`},
			"router":    {`{"decision": "finalize", "target_step": 0, "reason": "done"}`},
			"finalizer": {`{"final_answer": "NL"}`},
		})
		exec := testutil.NewStubExecutor(testutil.Ok("NL"))
		b, cfg := build()
		rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, b, cfg)
		require.NoError(t, err)
		return rec
	}

	r1 := run()
	r2 := run()
	assert.Equal(t, r1.FinalAnswer, r2.FinalAnswer)
	assert.Equal(t, r1.TerminationCause, r2.TerminationCause)
	assert.Equal(t, r1.FinalBelief, r2.FinalBelief)
	assert.Equal(t, r1.Trajectories, r2.Trajectories)
}

// A busy executor stalls the first round without consuming an event or a
// belief-updating step; the second attempt succeeds normally once the
// executor signals ready (spec.md §5 backpressure).
func TestSolve_ExecutorBackpressureStalls(t *testing.T) {
	llm := testutil.NewStubLLM(map[string][]string{
		"analyzer":  {analyzerJSON},
		"planner":   {planJSON},
		"coder":     {coderCode("print('NL')")},
		"verifier":  {`{"verdict": "sufficient", "reason": "matches"}`},
		"router":    {`{"decision": "finalize", "target_step": 0, "reason": "done"}`},
		"finalizer": {`{"final_answer": "NL"}`},
	})
	exec := testutil.NewStubExecutor(
		testutil.ExecOutcome{Err: domain.ErrExecutorBusy},
		testutil.Ok("NL"),
	)
	cfg := baseConfig()
	cfg.RoundTimeout = 200 * time.Millisecond

	rec, err := loop.Solve(context.Background(), loop.Deps{LLM: llm, Executor: exec, Log: testLoggerReal()}, bundle("stalled question"), cfg)
	require.NoError(t, err)

	assert.Equal(t, "NL", rec.FinalAnswer)
	assert.Equal(t, 1, rec.EventsFired)
	assert.GreaterOrEqual(t, rec.Rounds, 2)
	assert.True(t, rec.History[0].Stall)
	assert.False(t, rec.History[len(rec.History)-1].Stall)
	assert.Len(t, rec.Trajectories.BeliefTrajectory, rec.EventsFired+1)
}

func repeatStrings(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func repeatOutcomes(o testutil.ExecOutcome, n int) []testutil.ExecOutcome {
	out := make([]testutil.ExecOutcome, n)
	for i := range out {
		out[i] = o
	}
	return out
}

func testLoggerReal() *logger.Logger {
	return logger.New(config.LoggingConfig{Level: "error", Format: "text"})
}
