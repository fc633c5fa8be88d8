// Package loop implements the unified Plan-Retrieve-Execute control loop:
// solve(question, context_bundle, config) -> FinalRecord. The round
// structure (timed step, panic-safe event notification, bounded retry of a
// sub-operation) is grounded on pkg/engine/dag_executor.go's
// Execute/executeWave/executeNode skeleton, adapted from wave-parallel
// node execution to a single sequential round per spec.md §5's
// single-threaded-cooperative concurrency model.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smilemakc/mbflow-inference/internal/agents"
	"github.com/smilemakc/mbflow-inference/internal/artifact"
	"github.com/smilemakc/mbflow-inference/internal/belief"
	"github.com/smilemakc/mbflow-inference/internal/condition"
	"github.com/smilemakc/mbflow-inference/internal/config"
	"github.com/smilemakc/mbflow-inference/internal/critic"
	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/execclient"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/audit"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
	"github.com/smilemakc/mbflow-inference/internal/planstate"
	"github.com/smilemakc/mbflow-inference/internal/temperature"
)

// RoundEvent is emitted once per completed round, the way
// pkg/engine/event.go's ExecutionEvent is emitted once per node/wave.
type RoundEvent struct {
	Snapshot domain.RoundSnapshot
}

// Notifier receives RoundEvents. Implementations must not block the loop
// for long; Notify is called synchronously between rounds.
type Notifier interface {
	Notify(RoundEvent)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(RoundEvent)

// Notify implements Notifier.
func (f NotifierFunc) Notify(e RoundEvent) { f(e) }

// safeNotify recovers from a panicking Notifier so a misbehaving observer
// can never take down a running task, mirroring
// pkg/engine/dag_executor.go's safeNotify wrapper.
func safeNotify(n Notifier, e RoundEvent, log *logger.Logger) {
	if n == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("notifier panicked", "recover", r)
		}
	}()
	n.Notify(e)
}

// Deps bundles the capabilities and infrastructure solve() needs.
type Deps struct {
	LLM      llmclient.Client
	Executor execclient.Executor
	Recorder artifact.Recorder
	Notifier Notifier
	Log      *logger.Logger
	// Audit is the optional durable per-task audit trail (zerolog-backed).
	// Nil is valid: callers that don't need a durable trail (e.g. tests)
	// simply omit it.
	Audit *audit.Trail
}

// loopState threads everything runRound mutates across rounds, replacing a
// long parameter list with one struct the way pkg/engine/execution_state.go
// bundles a DAG run's mutable state.
type loopState struct {
	machine               *planstate.Machine
	belief                domain.BeliefState
	critic                domain.CriticStats
	tempCode              domain.TemperatureState
	tempNonCode           domain.TemperatureState
	lastCodeByStep        map[int]string
	admittedCodeByStep    map[int]string
	temperatureIncreases  int
	maxTemperatureReached bool
	verifierCalls         int

	prevSuccessOutput    string
	prevSuccessSufficient bool
	consecutiveErrorSig  string
	consecutiveErrorRuns int

	criticScoreSum float64
	criticRounds   int

	stallBackoff time.Duration
}

// nextStallBackoff doubles the previous backoff (starting at a quarter of
// the round timeout, i.e. "halve the cadence" applied twice), capped at the
// round timeout itself so a persistently busy executor cannot stall a round
// past its own deadline.
func nextStallBackoff(prev, roundTimeout time.Duration) time.Duration {
	min := roundTimeout / 4
	if min <= 0 {
		min = 250 * time.Millisecond
	}
	if prev <= 0 {
		return min
	}
	next := prev * 2
	if next > roundTimeout {
		next = roundTimeout
	}
	return next
}

// Solve runs the control loop to completion and returns the FinalRecord.
// It never mutates bundle and always returns within cfg.MaxRounds rounds.
func Solve(ctx context.Context, deps Deps, bundle domain.ContextBundle, cfg config.SolveConfig) (domain.FinalRecord, error) {
	log := deps.Log
	evalr := condition.NewEvaluator()

	analysisStart := time.Now()
	analysis, err := agents.Analyze(ctx, deps.LLM, bundle, cfg.TemperatureBaseNonCode)
	analysisElapsed := time.Since(analysisStart)
	if err != nil {
		return domain.FinalRecord{}, fmt.Errorf("analyzer: %w", err)
	}

	difficulty := cfg.DifficultyHint
	if difficulty == "" {
		difficulty = bundle.DifficultyHint
	}
	if difficulty == "" {
		difficulty = analysis.DifficultyHint
	}

	st := &loopState{
		machine:        planstate.New(cfg.MaxBacktracks),
		belief:         domain.BeliefState{Belief: 0.5, Entropy: belief.Entropy(0.5)},
		tempCode:       temperature.New(cfg.TemperatureBaseCode, cfg.TemperatureMax, cfg.TemperatureStep),
		tempNonCode:    temperature.New(cfg.TemperatureBaseNonCode, cfg.TemperatureMax, cfg.TemperatureStep),
		lastCodeByStep: map[int]string{},
	}

	initialEntropy := st.belief.Entropy
	beliefTrajectory := []float64{st.belief.Belief}
	eigTrajectory := []float64{0}
	temperatureTrajectory := []float64{st.tempCode.Current}
	var history []domain.RoundSnapshot
	var lastExecOutput string

	planningStart := time.Now()
	// Seed the plan with one Planner-supplied step before the round loop so
	// the first round always has an active step to work on.
	planOut, err := agents.Plan(ctx, deps.LLM, analysis, st.machine.Plan(), st.tempNonCode.Current)
	if err != nil {
		return domain.FinalRecord{}, fmt.Errorf("planner (seed): %w", err)
	}
	st.machine.AddStep(planOut.StepDescription, 0)
	planningElapsed := time.Since(planningStart)

	round := 0
	var cause domain.TerminationCause
	iterationStart := time.Now()

roundLoop:
	for {
		select {
		case <-ctx.Done():
			cause = domain.TerminationFatalError
			break roundLoop
		default:
		}

		// Checked before incrementing so a run that terminates on this
		// bound never records more than cfg.MaxRounds rounds (spec.md
		// §3.2 invariant 8 / §8 property 6: rounds ≤ max_rounds).
		if hit, _ := evalr.Eval(condition.ExprMaxRounds, condition.RoundVars{Round: round, MaxRounds: cfg.MaxRounds}); hit {
			cause = domain.TerminationMaxRoundsReached
			break roundLoop
		}
		round++

		roundCtx, cancel := context.WithTimeout(ctx, cfg.RoundTimeout)
		snapshot, fatal, err := runRound(roundCtx, deps, bundle, analysis, st, difficulty, round, cfg)
		cancel()
		if err != nil {
			log.Error("round failed", "round", round, "error", err)
			if fatal {
				cause = domain.TerminationFatalError
				break roundLoop
			}
		}

		history = append(history, snapshot)
		if snapshot.ExecOutput != "" {
			lastExecOutput = snapshot.ExecOutput
		}
		if deps.Recorder != nil {
			if werr := deps.Recorder.WriteRound(snapshot); werr != nil {
				log.Error("failed to record round", "round", round, "error", werr)
			}
		}
		safeNotify(deps.Notifier, RoundEvent{Snapshot: snapshot}, log)
		if deps.Audit != nil {
			deps.Audit.Round(snapshot.Round, snapshot.PlanStepIndex, string(snapshot.VerifierVerdict),
				snapshot.Admitted, snapshot.Belief, snapshot.Entropy, snapshot.EIG, snapshot.Temperature)
		}

		// Backpressure (spec.md §5): a stalled round fired no event and
		// updated no state. Halve firing cadence by backing off before the
		// next attempt, skip the trajectory/stopping/routing bookkeeping
		// below entirely, and retry the same active step.
		if snapshot.Stall {
			st.stallBackoff = nextStallBackoff(st.stallBackoff, cfg.RoundTimeout)
			select {
			case <-ctx.Done():
				cause = domain.TerminationFatalError
				break roundLoop
			case <-time.After(st.stallBackoff):
			}
			continue
		}
		st.stallBackoff = 0

		beliefTrajectory = append(beliefTrajectory, snapshot.Belief)
		eigTrajectory = append(eigTrajectory, snapshot.EIG)
		temperatureTrajectory = append(temperatureTrajectory, snapshot.Temperature)

		// Track the consecutive-identical-error-signature run (spec.md
		// §4.8, §7); the ≥3 threshold itself is an expr guard (below), not
		// a hardcoded branch.
		if snapshot.ExecError != "" {
			if snapshot.ExecError == st.consecutiveErrorSig {
				st.consecutiveErrorRuns++
			} else {
				st.consecutiveErrorSig = snapshot.ExecError
				st.consecutiveErrorRuns = 1
			}
		} else {
			st.consecutiveErrorSig = ""
			st.consecutiveErrorRuns = 0
		}

		sufficient := snapshot.VerifierVerdict == domain.VerdictSufficient

		vars := condition.RoundVars{
			Belief:            st.belief.Belief,
			Entropy:           st.belief.Entropy,
			EIG:               snapshot.EIG,
			EventsFired:       st.belief.EventsFired,
			Round:             round,
			MaxEvents:         cfg.MaxEvents,
			MaxRounds:         cfg.MaxRounds,
			Kappa:             cfg.Kappa,
			EpsilonEIG:        cfg.EpsilonEIG,
			Sufficient:        sufficient,
			ConsecutiveErrors: st.consecutiveErrorRuns,
		}

		if hit, _ := evalr.Eval(condition.ExprRepeatedErrors, vars); hit {
			cause = domain.TerminationRepeatedErrors
			break roundLoop
		}

		// plan_sufficient_agreement: two consecutive rounds produce
		// identical successful output, both verified sufficient.
		if snapshot.ExecError == "" && sufficient &&
			st.prevSuccessSufficient && st.prevSuccessOutput == snapshot.ExecOutput {
			cause = domain.TerminationPlanSufficientAgreement
			break roundLoop
		}
		if snapshot.ExecError == "" {
			st.prevSuccessOutput = snapshot.ExecOutput
			st.prevSuccessSufficient = sufficient
		} else {
			st.prevSuccessSufficient = false
		}

		if hit, _ := evalr.Eval(condition.ExprMaxEvents, vars); hit {
			cause = domain.TerminationMaxEventsReached
			break roundLoop
		}
		if hit, _ := evalr.Eval(condition.ExprBeliefThreshold, vars); hit {
			cause = domain.TerminationBeliefThreshold
			break roundLoop
		}
		if hit, _ := evalr.Eval(condition.ExprLowEIG, vars); hit {
			cause = domain.TerminationEIGBelowThreshold
			break roundLoop
		}

		switch snapshot.RouterOutcome.Decision {
		case domain.RouterFinalize:
			cause = domain.TerminationBeliefThreshold
			break roundLoop
		case domain.RouterAbort:
			st.machine.AbortActiveStep()
			cause = domain.TerminationRouterAbort
			break roundLoop
		case domain.RouterAddStep:
			nextDesc, perr := agents.Plan(ctx, deps.LLM, analysis, st.machine.Plan(), st.tempNonCode.Current)
			if perr != nil {
				cause = domain.TerminationFatalError
				break roundLoop
			}
			st.machine.AddStep(nextDesc.StepDescription, round)
		case domain.RouterFixStep:
			nextDesc, perr := agents.Plan(ctx, deps.LLM, analysis, st.machine.Plan(), st.tempNonCode.Current)
			if perr != nil {
				cause = domain.TerminationFatalError
				break roundLoop
			}
			if ferr := st.machine.FixStep(snapshot.RouterOutcome.TargetStep, nextDesc.StepDescription, round); ferr != nil {
				// Backtrack budget exhaustion escalates to router_abort
				// per spec.md §4.5, not a distinct termination cause.
				st.machine.AbortActiveStep()
				cause = domain.TerminationRouterAbort
				break roundLoop
			}
		case domain.RouterContinue:
			// same step, another pass next round
		}
	}
	iterationElapsed := time.Since(iterationStart)

	hints := formatHintsFor(bundle)
	finalizationStart := time.Now()
	finalOut, ferr := agents.Finalize(ctx, deps.LLM, bundle.Question, lastExecOutput, hints, st.tempNonCode.Current)
	finalAnswer := ""
	if ferr == nil {
		finalAnswer = finalOut.FinalAnswer
	} else {
		// Format-violation-at-Finalize edge case (spec.md §7): Finalize's
		// shared parse-error policy has already retried once with the same
		// prompt at +0.1 temperature (no added format emphasis), so a second
		// failure here returns the safe fallback rather than an invalid
		// string.
		finalAnswer = "Not Applicable"
	}
	finalizationElapsed := time.Since(finalizationStart)

	alphaHat, betaHat := critic.EstimateRates(st.critic)
	approvalRate := 0.0
	if total := st.critic.TruePositive + st.critic.FalsePositive + st.critic.TrueNegative + st.critic.FalseNegative; total > 0 {
		approvalRate = (st.critic.TruePositive + st.critic.FalsePositive) / total
	}
	avgScore := 0.0
	if st.criticRounds > 0 {
		avgScore = st.criticScoreSum / float64(st.criticRounds)
	}

	entropyReduction := initialEntropy - st.belief.Entropy
	totalEIG := 0.0
	for _, v := range eigTrajectory {
		totalEIG += v
	}
	avgEIGPerEvent := 0.0
	if st.belief.EventsFired > 0 {
		avgEIGPerEvent = totalEIG / float64(st.belief.EventsFired)
	}

	record := domain.FinalRecord{
		FinalAnswer:          finalAnswer,
		TerminationCause:     cause,
		EventsFired:          st.belief.EventsFired,
		Rounds:               round,
		VerifierCalls:        st.verifierCalls,
		Backtracks:           st.machine.BacktracksUsed(),
		InitialEntropy:       initialEntropy,
		FinalEntropy:         st.belief.Entropy,
		EntropyReductionBits: entropyReduction,
		TotalEIGBits:         totalEIG,
		AvgEIGPerEventBits:   avgEIGPerEvent,
		FinalBelief:          st.belief.Belief,
		Critic: domain.CriticSummary{
			AlphaHat:     alphaHat,
			BetaHat:      betaHat,
			ApprovalRate: approvalRate,
			AvgScore:     avgScore,
		},
		Temperature: domain.TemperatureSummary{
			Base:       st.tempCode.Base,
			Final:      st.tempCode.Current,
			MaxReached: st.maxTemperatureReached,
			Increases:  st.temperatureIncreases,
		},
		PhaseTimings: domain.PhaseTimings{
			Analysis:     analysisElapsed,
			Planning:     planningElapsed,
			Iteration:    iterationElapsed,
			Finalization: finalizationElapsed,
		},
		Trajectories: domain.Trajectories{
			BeliefTrajectory:      beliefTrajectory,
			EIGTrajectory:         eigTrajectory,
			TemperatureTrajectory: temperatureTrajectory,
		},
		History: history,
	}

	if deps.Recorder != nil {
		if werr := deps.Recorder.WriteFinal(record); werr != nil {
			log.Error("failed to record final", "error", werr)
		}
	}
	if deps.Audit != nil {
		deps.Audit.Termination(string(record.TerminationCause), record.Rounds, record.EventsFired, record.FinalBelief)
	}

	return record, nil
}

// formatHintsFor derives Finalizer normalization hints from the context
// bundle's metadata, defaulting to no rounding / scalar answer form.
func formatHintsFor(bundle domain.ContextBundle) agents.FormatHints {
	hints := agents.FormatHints{DecimalPlaces: -1}
	if bundle.Metadata == nil {
		return hints
	}
	if dp, ok := bundle.Metadata["decimal_places"].(int); ok {
		hints.DecimalPlaces = dp
	}
	if isList, ok := bundle.Metadata["is_list"].(bool); ok {
		hints.IsList = isList
	}
	return hints
}

// runRound executes exactly one iteration of the PRE loop: Coder, Execute
// (with Debugger-mediated repair on error/timeout), Verifier, Critic,
// belief update, and Router. It returns the round's snapshot and whether
// the failure (if any) is fatal to the whole task.
func runRound(
	ctx context.Context,
	deps Deps,
	bundle domain.ContextBundle,
	analysis agents.AnalyzerOutput,
	st *loopState,
	difficulty string,
	round int,
	cfg config.SolveConfig,
) (domain.RoundSnapshot, bool, error) {
	plan := st.machine.Plan()
	active := plan.ActiveStep()
	if active == nil {
		return domain.RoundSnapshot{}, true, domain.ErrNoActiveStep
	}

	codeTemp := &st.tempCode
	if difficulty != "code" {
		codeTemp = &st.tempNonCode
	}

	previous := st.lastCodeByStep[active.Index]
	coderOut, err := agents.Code(ctx, deps.LLM, *active, previous, codeTemp.Current)
	if err != nil {
		return domain.RoundSnapshot{}, false, fmt.Errorf("coder: %w", err)
	}

	identicalConsecutive := previous != "" && previous == coderOut.Source
	st.lastCodeByStep[active.Index] = coderOut.Source

	execResult, execErr := deps.Executor.Run(ctx, coderOut.Source, cfg.ExecutorTimeout)

	// Backpressure (spec.md §5): an overloaded executor does not count as a
	// failed run or an event. The round is recorded with a stall marker
	// carrying forward the current belief/EIG/temperature unchanged, and
	// the loop halves its firing cadence before trying again.
	if errors.Is(execErr, domain.ErrExecutorBusy) {
		return domain.RoundSnapshot{
			Round:         round,
			PlanStepIndex: active.Index,
			Stall:         true,
			Belief:        st.belief.Belief,
			Entropy:       st.belief.Entropy,
			Temperature:   codeTemp.Current,
			RouterOutcome: domain.RouterOutcome{Decision: domain.RouterContinue, Reason: "executor_busy"},
			Timestamp:     time.Now(),
		}, false, nil
	}

	source := coderOut.Source

	var originalError string
	debuggerUsed := false
	if execErr != nil {
		originalError = execErr.Error()
	}

	// Executor-timeout/error edge case: the Debugger must repair or shrink
	// the candidate, not merely retry it unchanged. Debugger invocations
	// do not increment events_fired (spec.md's Open Question #2).
	debugBudget := cfg.DebuggerBudgetPerRound
	for execErr == domain.ErrExecutorTimeout && debugBudget > 0 {
		debugBudget--
		debuggerUsed = true
		debugOut, derr := agents.DebugTimeout(ctx, deps.LLM, source, codeTemp.Current)
		if derr != nil {
			break
		}
		source = debugOut.Source
		execResult, execErr = deps.Executor.Run(ctx, source, cfg.ExecutorTimeout)
	}
	for execErr == domain.ErrExecutorFailed && debugBudget > 0 {
		debugBudget--
		debuggerUsed = true
		debugOut, derr := agents.DebugError(ctx, deps.LLM, source, execResult.Stderr, codeTemp.Current)
		if derr != nil {
			break
		}
		source = debugOut.Source
		execResult, execErr = deps.Executor.Run(ctx, source, cfg.ExecutorTimeout)
	}

	artifactRecord := domain.CodeArtifact{
		PlanStepIndex: active.Index,
		Round:         round,
		Source:        source,
	}

	execErrStr := ""
	if execErr != nil {
		execErrStr = execErr.Error()
		if stderr := strings.TrimSpace(execResult.Stderr); stderr != "" {
			execErrStr += ": " + stderr
		}
	}
	if !debuggerUsed {
		originalError = ""
	}

	verifierOut, verr := agents.Verify(ctx, deps.LLM, bundle.Question, execResult.Stdout, execErrStr, codeTemp.Current)
	if verr != nil {
		return domain.RoundSnapshot{}, false, fmt.Errorf("verifier: %w", verr)
	}
	st.verifierCalls++

	alpha, beta := critic.EstimateRates(st.critic)
	criticScore := critic.Score(critic.Inputs{
		ExecSucceeded:   execErr == nil,
		ExecOutput:      execResult.Stdout,
		CodeArtifact:    source,
		VerifierVerdict: verifierOut.Verdict,
		PriorApproved:   priorApprovedSources(st.admittedCodeByStep[active.Index]),
	})
	admitted := critic.Gate(criticScore, cfg.TauC)
	if admitted {
		if st.admittedCodeByStep == nil {
			st.admittedCodeByStep = map[int]string{}
		}
		st.admittedCodeByStep[active.Index] = source
	}
	st.critic = critic.Observe(st.critic, admitted, verifierOut.Verdict == domain.VerdictSufficient)
	st.criticScoreSum += criticScore
	st.criticRounds++

	st.belief = func(bs domain.BeliefState) domain.BeliefState {
		updated := belief.Update(bs, verifierOut.Verdict, admitted, alpha, beta)
		updated.EventsFired++
		if verifierOut.Verdict == domain.VerdictInsufficient {
			updated.ConsecutiveInsufficient++
		} else {
			updated.ConsecutiveInsufficient = 0
		}
		return updated
	}(st.belief)

	eig := belief.EIG(st.belief.Belief, alpha, beta)

	if verifierOut.Verdict == domain.VerdictInsufficient {
		*codeTemp = temperature.OnInsufficient(*codeTemp)
		st.temperatureIncreases++
		if temperature.MaxReached(*codeTemp) {
			st.maxTemperatureReached = true
		}
	} else {
		*codeTemp = temperature.OnSufficient(*codeTemp)
	}

	routerIn := agents.RouterInput{
		Verdict:                  verifierOut.Verdict,
		Reason:                   verifierOut.Reason,
		Belief:                   st.belief.Belief,
		Entropy:                  st.belief.Entropy,
		EIG:                      eig,
		ConsecutiveInsufficient:  st.belief.ConsecutiveInsufficient,
		BacktrackBudgetLeft:      cfg.MaxBacktracks - st.machine.BacktracksUsed(),
		IdenticalConsecutiveCode: identicalConsecutive,
	}
	routerOut, rerr := agents.Route(ctx, deps.LLM, routerIn, codeTemp.Current)
	if rerr != nil {
		return domain.RoundSnapshot{}, false, fmt.Errorf("router: %w", rerr)
	}

	// Identical-consecutive-code edge case: force progress instead of
	// letting the Router repeat "continue" against unchanged code, and
	// raise temperature one notch (spec.md §4.1).
	if identicalConsecutive && routerOut.Decision == domain.RouterContinue {
		routerOut.Decision = domain.RouterAddStep
		*codeTemp = temperature.OnInsufficient(*codeTemp)
		st.temperatureIncreases++
	}

	snapshot := domain.RoundSnapshot{
		Round:           round,
		PlanStepIndex:   active.Index,
		CodeArtifact:    &artifactRecord,
		ExecOutput:      execResult.Stdout,
		ExecError:       execErrStr,
		OriginalError:   originalError,
		DebuggerUsed:    debuggerUsed,
		VerifierVerdict: verifierOut.Verdict,
		VerifierReason:  verifierOut.Reason,
		CriticScore:     criticScore,
		Admitted:        admitted,
		Belief:          st.belief.Belief,
		Entropy:         st.belief.Entropy,
		EIG:             eig,
		RouterOutcome:   routerOut,
		Temperature:     codeTemp.Current,
		Timestamp:       time.Now(),
	}

	if verifierOut.Verdict == domain.VerdictSufficient {
		_ = st.machine.CompleteActiveStep()
	}

	return snapshot, false, nil
}

// priorApprovedSources wraps the step's most recently admitted code (read
// from st.admittedCodeByStep before the current round's artifact is
// admitted) into the single-element slice critic.Score's agreement
// heuristic expects. Empty until the step has an admitted round.
func priorApprovedSources(previous string) []string {
	if previous == "" {
		return nil
	}
	return []string{previous}
}
