package pipeline

import "fmt"

// State is a border removal run's position in its lifecycle
type State string

const (
	StateIdle      State = "idle"
	StateDetecting State = "detecting"
	StateResolving State = "resolving"
	StateCropping  State = "cropping"
	StateDone      State = "done"
	StateAborted   State = "aborted"
)

// Terminal reports whether no further transition can follow s
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// transitions lists the states reachable from each state
var transitions = map[State][]State{
	StateIdle: {
		StateDetecting,
		StateAborted, // Rejected options
	},
	StateDetecting: {
		StateDone,      // No borders, or a software dry run
		StateResolving, // Accelerated strategy
		StateCropping,  // Software strategy
		StateAborted,
	},
	StateResolving: {
		StateCropping,
		StateDone, // Dry run
		StateAborted,
	},
	StateCropping: {
		StateDone,
		StateAborted,
	},
}

// TransitionError reports a transition the state machine does not allow
type TransitionError struct {
	RunID string
	From  State
	To    State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for run %s: %s -> %s", e.RunID, e.From, e.To)
}

func canTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
