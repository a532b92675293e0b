package unit

// State is the lifecycle position of a Unit.
type State uint8

const (
	StatePending    State = iota // constructed, not yet transferring
	StateLoading                 // transfer in flight or finished, awaiting Process
	StateProcessing              // activation and registration running
	StateComplete                // registered
	StateErrored                 // transfer or activation failed
	StateDestroyed               // cancelled externally
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateProcessing:
		return "processing"
	case StateComplete:
		return "complete"
	case StateErrored:
		return "errored"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateErrored || s == StateDestroyed
}

// canAdvance reports whether from -> to is a legal forward transition.
// Destroyed is reachable from every non-terminal state.
func canAdvance(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateLoading:
		return from == StatePending
	case StateProcessing:
		return from == StateLoading
	case StateComplete:
		// Pending -> Complete is the pre-activated short-circuit.
		return from == StateProcessing || from == StatePending
	case StateErrored, StateDestroyed:
		return true
	default:
		return false
	}
}
