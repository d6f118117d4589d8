// Package motor holds the single authoritative on/off state of the fill motor.
//
// Off→On happens only through an operator command. On→Off happens through an
// operator command, the auto-cutoff rule or a reset. The controller has no
// side effects beyond its own state; callers broadcast transitions.
package motor

import "codeberg.org/mutker/tankctl/internal/tank"

// Controller is not safe for concurrent use; owners serialize access.
type Controller struct {
	state State
}

// NewController returns a controller with the motor off.
func NewController() *Controller {
	return &Controller{state: Off}
}

func (c *Controller) Set(on bool) State {
	c.state = State(on)
	return c.state
}

func (c *Controller) EvaluateAutoCutoff(percentage float64) bool {
	if percentage >= tank.MaxPercentage && c.state == On {
		c.state = Off
		return true
	}
	return false
}

func (c *Controller) Reset() {
	c.state = Off
}

func (c *Controller) State() State {
	return c.state
}

// On is shorthand for State() == On.
func (c *Controller) On() bool {
	return c.state == On
}
