// Package domain defines the core data model shared by the belief engine,
// agents, plan state machine, critic, and control loop.
package domain

import "time"

// ContextBundle is the immutable input handed to a task: the question, the
// supporting documents and files already normalized by the preprocessors,
// and any difficulty hint supplied by the caller.
type ContextBundle struct {
	Question       string
	Documents      []NormalizedDocument
	Files          []AnalyzedFile
	// CrossReferenceIndex maps an entity (currently: a data file's column
	// name) to every file path and document ID that mentions it, so the
	// Planner/Coder can jump from a term in the question straight to the
	// files that carry it instead of scanning every AnalyzedFile/
	// NormalizedDocument in turn. Built once by the Document Normalizer
	// (internal/preprocess.BuildCrossReferenceIndex).
	CrossReferenceIndex map[string][]string
	DifficultyHint      string // "code" or "non_code", see config.SolveConfig.DifficultyHint
	Metadata            map[string]any
}

// NormalizedDocument is the output of the Document Normalizer.
type NormalizedDocument struct {
	ID      string
	Title   string
	Content string
}

// AnalyzedFile is the output of the File Analyzer: a lightweight structural
// summary of an input file, never its full byte content.
type AnalyzedFile struct {
	Path     string
	Kind     string // "csv", "json", "parquet", "text", ...
	Columns  []string
	RowCount int
	Preview  string
}

// PlanStepState is a tagged union over the lifecycle states a PlanStep can
// occupy. Replacing the dynamic "whatever the Planner/Router felt like
// writing into a dict" duck typing of the originating benchmark.
type PlanStepState string

const (
	PlanStepPending    PlanStepState = "pending"
	PlanStepActive     PlanStepState = "active"
	PlanStepDone       PlanStepState = "done"
	PlanStepSuperseded PlanStepState = "superseded"
	PlanStepAborted    PlanStepState = "aborted"
)

// PlanStep is one stable-indexed unit of the Plan. Index never changes once
// assigned; fix_step_N replaces the step at Index N in place and supersedes
// every step whose Index is greater.
type PlanStep struct {
	Index       int
	Description string
	State       PlanStepState
	CreatedRound int
}

// Plan is the ordered, append-mostly list of PlanSteps belonging to a task.
// Invariant: Steps are sorted by Index, Index values are unique and never
// reused, and at most one step is PlanStepActive at a time.
type Plan struct {
	Steps []PlanStep
}

// ActiveStep returns the currently active step, or nil if none is active.
func (p *Plan) ActiveStep() *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].State == PlanStepActive {
			return &p.Steps[i]
		}
	}
	return nil
}

// NextIndex returns the index to assign to the next appended step.
func (p *Plan) NextIndex() int {
	max := 0 // step indices start at 1
	for _, s := range p.Steps {
		if s.Index > max {
			max = s.Index
		}
	}
	return max + 1
}

// CodeArtifact is one version of the Coder's code, scoped to a PlanStep.
type CodeArtifact struct {
	PlanStepIndex int
	Round         int
	Source        string
	Diff          string // unified diff vs. the previous artifact for the same step; the control loop does not fill it, so it is always empty
}

// VerifierVerdict is the tagged union of outcomes the Verifier can report.
// Replaces free-text verdicts with an explicit enum plus a structured reason.
type VerifierVerdict string

const (
	VerdictSufficient   VerifierVerdict = "sufficient"
	VerdictInsufficient VerifierVerdict = "insufficient"
	VerdictError        VerifierVerdict = "error"
)

// RouterDecision is the tagged union of actions the Router can take at the
// end of a round.
type RouterDecision string

const (
	RouterContinue     RouterDecision = "continue"      // same step, another pass
	RouterAddStep      RouterDecision = "add_step"       // append a new PlanStep
	RouterFixStep      RouterDecision = "fix_step"       // fix_step_N, N carried in RouterOutcome.TargetStep
	RouterFinalize     RouterDecision = "finalize"       // belief sufficient, hand off to Finalizer
	RouterAbort        RouterDecision = "abort"          // backtrack budget exhausted or unrecoverable error
)

// RouterOutcome is the structured result of a Router invocation.
type RouterOutcome struct {
	Decision   RouterDecision
	TargetStep int // meaningful only when Decision == RouterFixStep
	Reason     string
}

// TerminationCause is the tagged union of the seven reasons solve() can
// stop (spec.md §4.8, §8 property 3). Exactly one is recorded on the
// FinalRecord for every completed run. TerminationFatalError is an eighth,
// non-loop value reserved for pre-loop/propagated errors (spec.md §7's
// "Corpus unavailable" case) and is never produced by a completed round.
type TerminationCause string

const (
	TerminationBeliefThreshold         TerminationCause = "belief_threshold"
	TerminationPlanSufficientAgreement TerminationCause = "plan_sufficient_agreement"
	TerminationEIGBelowThreshold       TerminationCause = "eig_below_threshold"
	TerminationMaxEventsReached        TerminationCause = "max_events_reached"
	TerminationMaxRoundsReached        TerminationCause = "max_rounds_reached"
	TerminationRepeatedErrors          TerminationCause = "repeated_errors"
	TerminationRouterAbort             TerminationCause = "router_abort"
	TerminationFatalError              TerminationCause = "fatal_error"
)

// BeliefState is the running belief that the current plan step's artifact
// answers the question, and the entropy derived from it.
type BeliefState struct {
	Belief          float64
	Entropy         float64
	EventsFired     int
	ConsecutiveInsufficient int
}

// CriticStats accumulates the Laplace-smoothed confusion-matrix counts used
// to estimate the critic's false-accept rate (alpha) and false-reject rate
// (beta).
type CriticStats struct {
	TruePositive  float64
	FalsePositive float64
	TrueNegative  float64
	FalseNegative float64
}

// TemperatureState is the adaptive sampling temperature for one agent
// family (code-producing vs. non-code-producing roles).
type TemperatureState struct {
	Base               float64
	Current            float64
	Max                float64
	Step               float64
	ConsecutiveRaises  int
}

// RoundSnapshot is the immutable, idempotent-by-round record of everything
// that happened in one iteration of the control loop (spec.md §3.1's Round
// Snapshot entity). DebuggerUsed and OriginalError carry the pre-repair
// error text forward so a round where the Debugger fixed a failing
// candidate still shows the failure it fixed.
type RoundSnapshot struct {
	Round           int
	PlanStepIndex   int
	CodeArtifact    *CodeArtifact
	ExecOutput      string
	ExecError       string
	OriginalError   string // non-empty only when DebuggerUsed and the first attempt failed
	DebuggerUsed    bool
	Stall           bool // set when the round was taken at halved cadence under executor backpressure (spec.md §5)
	VerifierVerdict VerifierVerdict
	VerifierReason  string
	CriticScore     float64
	Admitted        bool
	Belief          float64
	Entropy         float64
	EIG             float64
	RouterOutcome   RouterOutcome
	Temperature     float64
	Timestamp       time.Time
}

// Trajectories bundles the three per-event/per-round series the harness
// consumes (spec.md §6.2): belief and EIG are one entry per event plus the
// seed value, temperature is one entry per round plus the seed value.
type Trajectories struct {
	BeliefTrajectory      []float64
	EIGTrajectory         []float64
	TemperatureTrajectory []float64
}

// CriticSummary is the Final Record's aggregate view of the Critic's
// calibration over the whole task.
type CriticSummary struct {
	AlphaHat     float64
	BetaHat      float64
	ApprovalRate float64
	AvgScore     float64
}

// TemperatureSummary is the Final Record's aggregate view of the
// Temperature Controller over the whole task.
type TemperatureSummary struct {
	Base        float64
	Final       float64
	MaxReached  bool
	Increases   int
}

// PhaseTimings breaks down wall-clock time spent in each of solve()'s major
// phases (spec.md §6.2).
type PhaseTimings struct {
	Analysis     time.Duration
	Planning     time.Duration
	Iteration    time.Duration
	Finalization time.Duration
}

// TokenUsage aggregates LLM token accounting across the task, broken down
// by agent role, when the injected LLM.generate capability reports it.
type TokenUsage struct {
	Prompt  int
	Output  int
	Total   int
	ByAgent map[string]int
}

// FinalRecord is the terminal output of solve() (spec.md §6.2).
type FinalRecord struct {
	FinalAnswer          string
	TerminationCause     TerminationCause
	EventsFired          int
	Rounds               int
	VerifierCalls        int
	Backtracks           int
	InitialEntropy       float64
	FinalEntropy         float64
	EntropyReductionBits float64
	TotalEIGBits         float64
	AvgEIGPerEventBits   float64
	FinalBelief          float64
	Critic               CriticSummary
	Temperature          TemperatureSummary
	PhaseTimings         PhaseTimings
	TokenUsage           TokenUsage
	Trajectories         Trajectories
	History              []RoundSnapshot // full per-round snapshot list, also durable as one file per round via the Artifact Recorder
}
