// Package condition provides an LRU-cached compiler for expr-lang boolean
// expressions, used by the Stopping Rule so its thresholds are data rather
// than hardcoded branches.
// Adapted from pkg/engine/condition_cache.go's ConditionCache /
// ExprConditionEvaluator.
package condition

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Cache is a thread-safe LRU cache for compiled expr-lang programs.
type Cache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

// NewCache creates a condition cache with the given capacity (defaults to
// 64 if capacity <= 0; the stopping rule rarely exceeds a handful of
// distinct expressions per task).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 64
	}
	return &Cache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Get retrieves a compiled program from cache.
func (c *Cache) Get(expression string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, found := c.cache[expression]; found {
		c.lruList.MoveToFront(element)
		return element.Value.(*cacheEntry).program, true
	}
	return nil, false
}

// Put stores a compiled program in cache.
func (c *Cache) Put(expression string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, found := c.cache[expression]; found {
		c.lruList.MoveToFront(element)
		element.Value.(*cacheEntry).program = program
		return
	}
	entry := &cacheEntry{key: expression, program: program}
	element := c.lruList.PushFront(entry)
	c.cache[expression] = element
	if c.lruList.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	oldest := c.lruList.Back()
	if oldest != nil {
		c.lruList.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).key)
	}
}

// CompileAndCache compiles a boolean expression over env's shape and caches
// the result keyed by its source text.
func (c *Cache) CompileAndCache(expression string, env interface{}) (*vm.Program, error) {
	if program, found := c.Get(expression); found {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}
	c.Put(expression, program)
	return program, nil
}

// Evaluator evaluates cached boolean expressions against a round's
// observable state (belief, entropy, EIG, event/round counters).
type Evaluator struct {
	cache *Cache
}

// NewEvaluator creates an Evaluator with its own cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: NewCache(64)}
}

// RoundVars is the variable environment the stopping-rule expressions
// evaluate against.
type RoundVars struct {
	Belief            float64
	Entropy           float64
	EIG               float64
	EventsFired       int
	Round             int
	MaxEvents         int
	MaxRounds         int
	Kappa             float64
	EpsilonEIG        float64
	Sufficient        bool // true when the current round's Verifier verdict is "sufficient"
	ConsecutiveErrors int  // consecutive rounds that failed with the same error signature
}

// Eval compiles (or reuses a cached compile of) expression and runs it
// against vars, requiring a boolean result.
func (e *Evaluator) Eval(expression string, vars RoundVars) (bool, error) {
	env := map[string]interface{}{
		"belief":             vars.Belief,
		"entropy":            vars.Entropy,
		"eig":                vars.EIG,
		"events_fired":       vars.EventsFired,
		"round":              vars.Round,
		"max_events":         vars.MaxEvents,
		"max_rounds":         vars.MaxRounds,
		"kappa":              vars.Kappa,
		"epsilon_eig":        vars.EpsilonEIG,
		"sufficient":         vars.Sufficient,
		"consecutive_errors": vars.ConsecutiveErrors,
	}
	program, err := e.cache.CompileAndCache(expression, env)
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q must return boolean, got %T", expression, result)
	}
	return b, nil
}

// Default stopping-rule expressions, exported as named
// constants so callers (and tests) don't re-derive spec.md's thresholds by
// hand. Each mirrors one clause of spec.md §4.8 verbatim: belief_threshold
// additionally requires the round's Verifier verdict to be sufficient, and
// eig_below_threshold additionally requires belief to have already reached
// 0.6 (convergence without reaching kappa, not merely a low-information
// early round).
const (
	ExprBeliefThreshold = "belief >= kappa && sufficient"
	ExprLowEIG          = "eig < epsilon_eig && belief >= 0.6"
	ExprMaxEvents       = "events_fired >= max_events"
	ExprMaxRounds       = "round >= max_rounds"
	ExprRepeatedErrors  = "consecutive_errors >= 3"
)
