package motor_test

import (
	"testing"

	"codeberg.org/mutker/tankctl/internal/motor"
	"github.com/stretchr/testify/assert"
)

func TestSetIsUnconditional(t *testing.T) {
	c := motor.NewController()
	assert.Equal(t, motor.Off, c.State())

	assert.Equal(t, motor.On, c.Set(true))
	assert.Equal(t, motor.On, c.Set(true))
	assert.Equal(t, motor.Off, c.Set(false))
}

func TestAutoCutoffWithMotorOn(t *testing.T) {
	c := motor.NewController()
	c.Set(true)

	assert.True(t, c.EvaluateAutoCutoff(100.0))
	assert.Equal(t, motor.Off, c.State())
}

func TestAutoCutoffWithMotorOffIsNoop(t *testing.T) {
	c := motor.NewController()

	assert.False(t, c.EvaluateAutoCutoff(100.0))
	assert.Equal(t, motor.Off, c.State())
}

func TestAutoCutoffBelowFull(t *testing.T) {
	c := motor.NewController()
	c.Set(true)

	assert.False(t, c.EvaluateAutoCutoff(99.9))
	assert.True(t, c.On())
}

func TestReset(t *testing.T) {
	c := motor.NewController()
	c.Set(true)
	c.Reset()
	assert.False(t, c.On())

	c.Reset()
	assert.False(t, c.On())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "on", motor.On.String())
	assert.Equal(t, "off", motor.Off.String())
}

var _ motor.Switch = (*motor.Controller)(nil)
