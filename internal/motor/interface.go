package motor

// Switch is the operator-facing surface of a motor controller.
type Switch interface {
	// Set applies an operator command unconditionally and returns the new state.
	Set(on bool) State

	// EvaluateAutoCutoff switches the motor off when the tank is full.
	// Returns true only when the state changed.
	EvaluateAutoCutoff(percentage float64) bool

	// Reset forces the motor off.
	Reset()

	// State returns the current state.
	State() State
}

// State is the fill motor's on/off state.
type State bool

const (
	Off State = false
	On  State = true
)

func (s State) String() string {
	if s {
		return "on"
	}
	return "off"
}
