package domain

import "errors"

// Sentinel errors for the belief-driven control loop, grouped by subsystem
// the way pkg/models/errors.go groups the workflow engine's errors.
var (
	// Plan state machine errors
	ErrStepNotFound        = errors.New("plan step not found")
	ErrNoActiveStep        = errors.New("no active plan step")
	ErrBacktrackExhausted  = errors.New("backtrack budget exhausted")
	ErrInvalidStepIndex    = errors.New("invalid plan step index")

	// Belief/EIG engine errors
	ErrInvalidBelief  = errors.New("belief must be in [0, 1]")
	ErrInvalidAlphaBeta = errors.New("alpha and beta must be in [0, 1)")

	// Agent errors
	ErrAgentParseFailed  = errors.New("agent output failed to parse")
	ErrAgentGenerateFailed = errors.New("agent generate call failed")
	ErrUnknownAgentRole  = errors.New("unknown agent role")

	// Critic & memory gate errors
	ErrCriticScoreOutOfRange = errors.New("critic score out of range")

	// Executor (consumed capability) errors
	ErrExecutorTimeout = errors.New("executor run timed out")
	ErrExecutorFailed  = errors.New("executor run failed")
	ErrExecutorBusy    = errors.New("executor overloaded")

	// LLM (consumed capability) errors
	ErrLLMGenerateFailed = errors.New("llm generate call failed")
	ErrLLMTimeout        = errors.New("llm generate call timed out")

	// Config errors
	ErrInvalidConfig = errors.New("invalid configuration")
)
