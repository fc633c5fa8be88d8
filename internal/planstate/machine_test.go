package planstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

func TestAddStep_FirstStepActive(t *testing.T) {
	m := New(3)
	idx := m.AddStep("load the file", 1)

	assert.Equal(t, 1, idx)
	active := m.Plan().ActiveStep()
	require.NotNil(t, active)
	assert.Equal(t, domain.PlanStepActive, active.State)
	assert.Equal(t, "load the file", active.Description)
}

func TestAddStep_DeactivatesPreviousActive(t *testing.T) {
	m := New(3)
	m.AddStep("step 0", 1)
	m.AddStep("step 1", 2)

	steps := m.Plan().Steps
	require.Len(t, steps, 2)
	assert.Equal(t, domain.PlanStepDone, steps[0].State)
	assert.Equal(t, domain.PlanStepActive, steps[1].State)
}

func TestFixStep_SupersedesLaterSteps(t *testing.T) {
	m := New(3)
	m.AddStep("step 0", 1)
	m.AddStep("step 1", 2)
	m.AddStep("step 2", 3)

	require.NoError(t, m.FixStep(1, "corrected step 1", 4))

	steps := m.Plan().Steps
	assert.Equal(t, "corrected step 1", steps[0].Description)
	assert.Equal(t, domain.PlanStepActive, steps[0].State)
	assert.Equal(t, domain.PlanStepSuperseded, steps[1].State)
	assert.Equal(t, domain.PlanStepSuperseded, steps[2].State)
	assert.Equal(t, 1, m.BacktracksUsed())
}

func TestFixStep_InvalidIndex(t *testing.T) {
	m := New(3)
	m.AddStep("step 0", 1)

	err := m.FixStep(5, "doesn't exist", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidStepIndex))
	assert.Equal(t, 0, m.BacktracksUsed())
}

func TestFixStep_BudgetExhaustion(t *testing.T) {
	m := New(3)
	m.AddStep("step 0", 1)

	require.NoError(t, m.FixStep(1, "v1", 2))
	require.NoError(t, m.FixStep(1, "v2", 3))
	require.NoError(t, m.FixStep(1, "v3", 4))

	err := m.FixStep(1, "v4", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBacktrackExhausted))
	assert.True(t, m.BacktrackBudgetExhausted())
	assert.Equal(t, 3, m.BacktracksUsed())
}

func TestCompleteActiveStep_NoActiveStep(t *testing.T) {
	m := New(3)
	err := m.CompleteActiveStep()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoActiveStep))
}

func TestCompleteActiveStep(t *testing.T) {
	m := New(3)
	m.AddStep("step 0", 1)
	require.NoError(t, m.CompleteActiveStep())
	assert.Equal(t, domain.PlanStepDone, m.Plan().Steps[0].State)
	assert.Nil(t, m.Plan().ActiveStep())
}

func TestAbortActiveStep(t *testing.T) {
	m := New(3)
	m.AddStep("step 0", 1)
	m.AbortActiveStep()
	assert.Equal(t, domain.PlanStepAborted, m.Plan().Steps[0].State)
}
