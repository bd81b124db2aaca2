package channel

import "time"

// State is the lifecycle state of a session.
type State int

const (
	StateCreated State = iota
	StateConnecting
	StateProvisioning
	StateReady
	StateReconnecting
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateProvisioning:
		return "provisioning"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}

var transitions = map[State][]State{
	StateCreated:      {StateConnecting, StateStopping},
	StateConnecting:   {StateProvisioning, StateReady, StateStopping},
	StateProvisioning: {StateReady, StateReconnecting, StateStopping},
	StateReady:        {StateReconnecting, StateStopping},
	StateReconnecting: {StateReady, StateProvisioning, StateStopping},
	StateStopping:     {StateStopped},
}

// CanTransition reports whether from → to is a legal move. Every
// non-terminal state may move to StateError.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateError {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// parsePeerState maps a peer-reported state name.
func parsePeerState(name string) (State, bool) {
	switch name {
	case "provisioning", "starting":
		return StateProvisioning, true
	case "ready", "running":
		return StateReady, true
	case "stopping":
		return StateStopping, true
	case "stopped", "ended":
		return StateStopped, true
	case "error", "failed":
		return StateError, true
	default:
		return 0, false
	}
}

// Session is a snapshot of the remote desktop session.
type Session struct {
	ID        string
	State     State
	CreatedAt time.Time
}
