package sensor

import (
	"github.com/srg/adaboard/internal/codec"
)

// Button bits of the buttons payload.
const (
	slideSwitchBit = 1 << 0
	buttonABit     = 1 << 1
	buttonBBit     = 1 << 2
)

const colorScale = 65535

// DecodeScalar returns the first float of the payload (temperature, humidity, pressure, light).
func DecodeScalar(data []byte) (float32, error) {
	v, err := codec.Float32(data)
	if err != nil {
		return 0, invalid("scalar", err)
	}
	return v, nil
}

// DecodeVector3 decodes x, y, z from the first three floats; extra bytes are ignored.
func DecodeVector3(data []byte) (Vector3, error) {
	f, err := codec.Float32sN(data, 3)
	if err != nil {
		return Vector3{}, invalid("vector", err)
	}
	return Vector3{X: f[0], Y: f[1], Z: f[2]}, nil
}

// DecodeQuaternion decodes a quaternion sent as w, x, y, z.
func DecodeQuaternion(data []byte) (Quaternion, error) {
	f, err := codec.Float32sN(data, 4)
	if err != nil {
		return Quaternion{}, invalid("quaternion", err)
	}
	return Quaternion{X: f[1], Y: f[2], Z: f[3], W: f[0]}, nil
}

// DecodeButtons decodes the int32 buttons bitmask. Bits above bit 2 are ignored.
func DecodeButtons(data []byte) (ButtonsState, error) {
	mask, err := codec.Int32(data)
	if err != nil {
		return ButtonsState{}, invalid("buttons", err)
	}
	return ButtonsFromMask(mask), nil
}

// ButtonsFromMask maps bit 0 to the slide switch, bit 1 to button A and bit 2 to button B.
func ButtonsFromMask(mask int32) ButtonsState {
	var s ButtonsState
	if mask&slideSwitchBit != 0 {
		s.SlideSwitch = SwitchLeft
	}
	if mask&buttonABit != 0 {
		s.ButtonA = Pressed
	}
	if mask&buttonBBit != 0 {
		s.ButtonB = Pressed
	}
	return s
}

// Mask is the inverse of ButtonsFromMask.
func (s ButtonsState) Mask() int32 {
	var mask int32
	if s.SlideSwitch == SwitchLeft {
		mask |= slideSwitchBit
	}
	if s.ButtonA == Pressed {
		mask |= buttonABit
	}
	if s.ButtonB == Pressed {
		mask |= buttonBBit
	}
	return mask
}

// DecodeColor decodes three uint16 channels scaled to 0..1 with alpha 1.
func DecodeColor(data []byte) (Color, error) {
	c, err := codec.Uint16sN(data, 3)
	if err != nil {
		return Color{}, invalid("color", err)
	}
	return Color{
		R: float32(c[0]) / colorScale,
		G: float32(c[1]) / colorScale,
		B: float32(c[2]) / colorScale,
		A: 1,
	}, nil
}
