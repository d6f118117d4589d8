// Package event defines the named messages pushed to observers over the
// continuous channel.
package event

import (
	"encoding/json"
	"fmt"

	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/tank"
)

const (
	// NewReading carries one tank.Reading.
	NewReading = "new_reading"

	// MotorUpdate carries the motor state as a bare boolean.
	MotorUpdate = "motor_update"

	// HistoryData replaces the observer's history. An empty array means the
	// history was cleared, which is distinct from a new point arriving.
	HistoryData = "history_data"
)

// Envelope is the wire frame: {"event": name, "data": payload}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newEnvelope(name string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain structs, slices and bools.
		panic(fmt.Sprintf("event: marshal %s: %v", name, err))
	}
	return Envelope{Event: name, Data: data}
}

func Reading(r tank.Reading) Envelope {
	return newEnvelope(NewReading, r)
}

func Motor(on bool) Envelope {
	return newEnvelope(MotorUpdate, on)
}

// History encodes readings oldest first. A nil slice encodes as [].
func History(readings []tank.Reading) Envelope {
	if readings == nil {
		readings = []tank.Reading{}
	}
	return newEnvelope(HistoryData, readings)
}

// Cleared is the history-replaced signal sent after a reset.
func Cleared() Envelope {
	return History(nil)
}

func (e Envelope) DecodeReading() (tank.Reading, error) {
	var r tank.Reading
	if err := e.decode(NewReading, &r); err != nil {
		return tank.Reading{}, err
	}
	return r, nil
}

func (e Envelope) DecodeMotor() (bool, error) {
	var on bool
	if err := e.decode(MotorUpdate, &on); err != nil {
		return false, err
	}
	return on, nil
}

func (e Envelope) DecodeHistory() ([]tank.Reading, error) {
	var readings []tank.Reading
	if err := e.decode(HistoryData, &readings); err != nil {
		return nil, err
	}
	if readings == nil {
		readings = []tank.Reading{}
	}
	return readings, nil
}

func (e Envelope) decode(want string, v any) error {
	if e.Event != want {
		return errors.New().WithData(ErrDecodeEvent, e.Event+" is not "+want)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return errors.New().Wrap(ErrDecodeEvent, err).WithMessage("Failed to decode " + want)
	}
	return nil
}

// Marshal encodes an envelope for a text frame.
func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a text frame.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, errors.New().Wrap(ErrDecodeEvent, err)
	}
	if e.Event == "" {
		return Envelope{}, errors.New().WithData(ErrDecodeEvent, "frame without event name")
	}
	return e, nil
}
