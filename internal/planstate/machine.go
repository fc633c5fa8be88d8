// Package planstate implements the Plan State Machine: stable step indices,
// fix_step_N surgical replacement with supersession of later steps, and
// bounded backtracking. The bookkeeping style (a small counter struct
// checked against a Max and escalated on exhaustion) is grounded on
// pkg/engine/retry_policy.go's InternalRetryPolicy attempt counting and
// pkg/engine/dag_executor.go's processLoopEdges iteration-limit handling.
package planstate

import (
	"fmt"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// Machine owns a Plan and the backtrack budget for one task.
type Machine struct {
	plan          domain.Plan
	backtracks    int
	maxBacktracks int
	round         int
}

// New creates a Machine with an empty plan and the given backtrack bound
// (the B_max budget, default 3).
func New(maxBacktracks int) *Machine {
	return &Machine{maxBacktracks: maxBacktracks}
}

// Plan returns the current plan snapshot.
func (m *Machine) Plan() domain.Plan {
	return m.plan
}

// AddStep appends a new step, marks it active (deactivating the previous
// active step, if any, as done), and returns its index.
func (m *Machine) AddStep(description string, round int) int {
	if active := m.plan.ActiveStep(); active != nil {
		active.State = domain.PlanStepDone
	}
	idx := m.plan.NextIndex()
	m.plan.Steps = append(m.plan.Steps, domain.PlanStep{
		Index:        idx,
		Description:  description,
		State:        domain.PlanStepActive,
		CreatedRound: round,
	})
	return idx
}

// FixStep replaces the description of the step at index N in place, resets
// it to active, and supersedes every step with a greater index — the
// fix_step_N semantics. It consumes one unit of the backtrack budget and
// returns domain.ErrBacktrackExhausted once the budget is spent, which the
// control loop converts into a router_abort termination.
func (m *Machine) FixStep(n int, newDescription string, round int) error {
	idx := m.indexOf(n)
	if idx < 0 {
		return fmt.Errorf("fix_step_%d: %w", n, domain.ErrInvalidStepIndex)
	}
	if m.backtracks >= m.maxBacktracks {
		return domain.ErrBacktrackExhausted
	}
	m.backtracks++

	if active := m.plan.ActiveStep(); active != nil && active.Index != n {
		active.State = domain.PlanStepDone
	}

	m.plan.Steps[idx].Description = newDescription
	m.plan.Steps[idx].State = domain.PlanStepActive

	for i := range m.plan.Steps {
		if m.plan.Steps[i].Index > n {
			m.plan.Steps[i].State = domain.PlanStepSuperseded
		}
	}
	return nil
}

// BacktracksUsed reports how many of the backtrack budget's units have been
// consumed so far.
func (m *Machine) BacktracksUsed() int {
	return m.backtracks
}

// BacktrackBudgetExhausted reports whether the next fix_step_N call would
// be rejected.
func (m *Machine) BacktrackBudgetExhausted() bool {
	return m.backtracks >= m.maxBacktracks
}

// CompleteActiveStep marks the currently active step done.
func (m *Machine) CompleteActiveStep() error {
	active := m.plan.ActiveStep()
	if active == nil {
		return domain.ErrNoActiveStep
	}
	active.State = domain.PlanStepDone
	return nil
}

// AbortActiveStep marks the currently active step aborted, used when the
// Router escalates to router_abort.
func (m *Machine) AbortActiveStep() {
	if active := m.plan.ActiveStep(); active != nil {
		active.State = domain.PlanStepAborted
	}
}

func (m *Machine) indexOf(n int) int {
	for i, s := range m.plan.Steps {
		if s.Index == n {
			return i
		}
	}
	return -1
}
