package runtime

// State is the lifecycle of a render sequence slot.
type State int32

const (
	// Idle: built, not yet handed to the engine.
	StateIdle State = iota
	// Preparing: units are being prepared, or the sequence is published but
	// the audio thread has not picked it up yet.
	StatePreparing
	// Active: the audio thread is rendering it.
	StateActive
	// Draining: superseded, waiting for the audio thread to move on.
	StateDraining
	// Disposed: released. It will never run again.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}
