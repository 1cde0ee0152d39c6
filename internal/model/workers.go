package model

// RunState is the lifecycle state of a collection run
type RunState string

const (
	StateIdle        RunState = "idle"
	StateDispatching RunState = "dispatching"
	StateCollecting  RunState = "collecting"
	StateAggregating RunState = "aggregating"
	StateDone        RunState = "done"
	StateFailed      RunState = "failed"
)

var runTransitions = map[RunState][]RunState{
	StateIdle:        {StateDispatching},
	StateDispatching: {StateCollecting, StateFailed},
	StateCollecting:  {StateAggregating},
	StateAggregating: {StateDone},
	StateDone:        {StateIdle},
	StateFailed:      {StateIdle},
}

// CanTransition reports whether the run may move from s to next.
func (s RunState) CanTransition(next RunState) bool {
	for _, t := range runTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a run.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}
