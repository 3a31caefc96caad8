package progress

import (
	"fmt"
	"math"
	"sync"
)

// Goal says which direction is better for a metric.
type Goal int

const (
	Minimize Goal = iota
	Maximize
)

// Sink receives every recorded metric value.
type Sink interface {
	Write(name string, value float64, step int) error
}

// Tracker forwards metric values to a sink and remembers the best value of
// each metric. Metrics minimize unless given another goal.
type Tracker struct {
	mu    sync.Mutex
	sink  Sink
	goals map[string]Goal
	best  map[string]float64
}

// NewTracker returns a Tracker writing to sink, which may be nil.
func NewTracker(sink Sink) *Tracker {
	return &Tracker{
		sink:  sink,
		goals: make(map[string]Goal),
		best:  make(map[string]float64),
	}
}

func (t *Tracker) SetGoal(name string, goal Goal) {
	t.mu.Lock()
	t.goals[name] = goal
	t.mu.Unlock()
}

// Record stores value for name at step and reports whether it is the best
// value seen so far. NaN is never the best. The sink sees every value; a
// sink error is returned alongside the best flag.
func (t *Tracker) Record(name string, value float64, step int) (bool, error) {
	t.mu.Lock()
	isBest := false
	if !math.IsNaN(value) {
		best, seen := t.best[name]
		switch {
		case !seen:
			isBest = true
		case t.goals[name] == Maximize:
			isBest = value > best
		default:
			isBest = value < best
		}
		if isBest {
			t.best[name] = value
		}
	}
	t.mu.Unlock()

	if t.sink == nil {
		return isBest, nil
	}
	if err := t.sink.Write(name, value, step); err != nil {
		return isBest, fmt.Errorf("metric %s at step %d: %w", name, step, err)
	}

	return isBest, nil
}

// Best returns the best value recorded for name.
func (t *Tracker) Best(name string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.best[name]
	return v, ok
}
