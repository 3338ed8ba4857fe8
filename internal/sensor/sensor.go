// Package sensor decodes the notification payloads of the Adafruit vendor
// services into typed values.
//
// Decoders are pure functions of the payload, except SoundDecoder which needs
// the channel count read once from the accessory. A payload too short for its
// layout yields an error matching ErrInvalidResponseData; decoders never panic.
package sensor

import (
	"errors"
	"fmt"
)

// ErrInvalidResponseData reports a payload that is too short or malformed for its decoder.
var ErrInvalidResponseData = errors.New("invalid response data")

// Decoder turns one notification payload into a value.
type Decoder[T any] func(data []byte) (T, error)

func invalid(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, ErrInvalidResponseData, err)
}

// Vector3 is an accelerometer (m/s²), gyroscope (rad/s) or magnetometer (µT) reading.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Quaternion is a unit orientation quaternion.
type Quaternion struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	W float32 `json:"w"`
}

// SlideSwitch is the position of the board's slide switch.
type SlideSwitch int

const (
	SwitchRight SlideSwitch = iota
	SwitchLeft
)

func (s SlideSwitch) String() string {
	if s == SwitchLeft {
		return "left"
	}
	return "right"
}

func (s SlideSwitch) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ButtonState is the state of a push button.
type ButtonState int

const (
	Released ButtonState = iota
	Pressed
)

func (b ButtonState) String() string {
	if b == Pressed {
		return "pressed"
	}
	return "released"
}

func (b ButtonState) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// ButtonsState is the decoded buttons bitmask.
type ButtonsState struct {
	SlideSwitch SlideSwitch `json:"slide_switch"`
	ButtonA     ButtonState `json:"button_a"`
	ButtonB     ButtonState `json:"button_b"`
}

// Color is a color sensor reading with channels normalized to 0..1.
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

// Amplitudes holds one dBFS value per audio channel.
type Amplitudes []float64
