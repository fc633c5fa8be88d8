package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGetRoundTrips(t *testing.T) {
	c := NewCache(2)
	program, err := c.CompileAndCache(ExprMaxEvents, map[string]interface{}{"events_fired": 0, "max_events": 0})
	require.NoError(t, err)

	got, found := c.Get(ExprMaxEvents)
	assert.True(t, found)
	assert.Same(t, program, got)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(1)
	env := map[string]interface{}{"events_fired": 0, "max_events": 0, "round": 0, "max_rounds": 0}
	_, err := c.CompileAndCache(ExprMaxEvents, env)
	require.NoError(t, err)
	_, err = c.CompileAndCache(ExprMaxRounds, env)
	require.NoError(t, err)

	_, found := c.Get(ExprMaxEvents)
	assert.False(t, found, "oldest entry should have been evicted once capacity was exceeded")
	_, found = c.Get(ExprMaxRounds)
	assert.True(t, found)
}

func TestCache_DefaultsCapacityWhenNonPositive(t *testing.T) {
	c := NewCache(0)
	assert.Equal(t, 64, c.capacity)
}

func TestEvaluator_MaxEvents(t *testing.T) {
	e := NewEvaluator()
	hit, err := e.Eval(ExprMaxEvents, RoundVars{EventsFired: 5, MaxEvents: 5})
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = e.Eval(ExprMaxEvents, RoundVars{EventsFired: 4, MaxEvents: 5})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestEvaluator_BeliefThresholdRequiresSufficientVerdict(t *testing.T) {
	e := NewEvaluator()
	hit, err := e.Eval(ExprBeliefThreshold, RoundVars{Belief: 0.9, Kappa: 0.85, Sufficient: false})
	require.NoError(t, err)
	assert.False(t, hit, "belief above kappa alone must not trigger without a sufficient verdict")

	hit, err = e.Eval(ExprBeliefThreshold, RoundVars{Belief: 0.9, Kappa: 0.85, Sufficient: true})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestEvaluator_LowEIGRequiresConvergedBelief(t *testing.T) {
	e := NewEvaluator()
	hit, err := e.Eval(ExprLowEIG, RoundVars{EIG: 0.001, EpsilonEIG: 0.01, Belief: 0.3})
	require.NoError(t, err)
	assert.False(t, hit, "low EIG in an early, low-belief round is not convergence")

	hit, err = e.Eval(ExprLowEIG, RoundVars{EIG: 0.001, EpsilonEIG: 0.01, Belief: 0.7})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestEvaluator_MaxRounds(t *testing.T) {
	e := NewEvaluator()
	hit, err := e.Eval(ExprMaxRounds, RoundVars{Round: 40, MaxRounds: 40})
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = e.Eval(ExprMaxRounds, RoundVars{Round: 39, MaxRounds: 40})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestEvaluator_RepeatedErrors(t *testing.T) {
	e := NewEvaluator()
	hit, err := e.Eval(ExprRepeatedErrors, RoundVars{ConsecutiveErrors: 3})
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = e.Eval(ExprRepeatedErrors, RoundVars{ConsecutiveErrors: 2})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestEvaluator_InvalidExpressionErrors(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Eval("not a valid expr (", RoundVars{})
	assert.Error(t, err)
}

func TestEvaluator_NonBooleanResultErrors(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Eval("round + max_rounds", RoundVars{Round: 1, MaxRounds: 2})
	assert.Error(t, err)
}
