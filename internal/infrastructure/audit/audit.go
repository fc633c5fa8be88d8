// Package audit provides a zerolog-backed structured audit trail for round
// events, distinct from the operational log/slog stream in
// internal/infrastructure/logger. Grounded on the sibling snapshot of this
// teacher repository that wires github.com/rs/zerolog for exactly this kind
// of chained-field structured logging (see DESIGN.md).
package audit

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Trail is a per-task audit logger, one line per round.
type Trail struct {
	logger zerolog.Logger
}

// New creates a Trail writing to w (os.Stdout if nil), tagged with taskID.
func New(w io.Writer, taskID string) *Trail {
	if w == nil {
		w = os.Stdout
	}
	logger := zerolog.New(w).With().Timestamp().Str("task_id", taskID).Logger()
	return &Trail{logger: logger}
}

// Round records one round's key fields.
func (t *Trail) Round(round int, planStep int, verdict string, admitted bool, belief, entropy, eig, temperature float64) {
	t.logger.Info().
		Int("round", round).
		Int("plan_step", planStep).
		Str("verdict", verdict).
		Bool("admitted", admitted).
		Float64("belief", belief).
		Float64("entropy", entropy).
		Float64("eig", eig).
		Float64("temperature", temperature).
		Msg("round")
}

// Termination records the task's final outcome.
func (t *Trail) Termination(cause string, rounds, eventsFired int, finalBelief float64) {
	t.logger.Info().
		Str("termination_cause", cause).
		Int("rounds", rounds).
		Int("events_fired", eventsFired).
		Float64("final_belief", finalBelief).
		Msg("terminated")
}
