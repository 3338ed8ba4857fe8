package sensor

import (
	"testing"

	"github.com/srg/adaboard/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoders_ShortPayload(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) error
		min    int
	}{
		{"scalar", func(b []byte) error { _, err := DecodeScalar(b); return err }, 4},
		{"vector3", func(b []byte) error { _, err := DecodeVector3(b); return err }, 12},
		{"quaternion", func(b []byte) error { _, err := DecodeQuaternion(b); return err }, 16},
		{"buttons", func(b []byte) error { _, err := DecodeButtons(b); return err }, 4},
		{"color", func(b []byte) error { _, err := DecodeColor(b); return err }, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for n := 0; n < tt.min; n++ {
				assert.NotPanics(t, func() {
					err := tt.decode(make([]byte, n))
					assert.ErrorIs(t, err, ErrInvalidResponseData, "length %d", n)
					assert.ErrorIs(t, err, codec.ErrShortBuffer, "length %d", n)
				})
			}
			assert.NoError(t, tt.decode(make([]byte, tt.min)))
		})
	}
}

func TestDecodeScalar_UsesFirstFloat(t *testing.T) {
	v, err := DecodeScalar(codec.EncodeFloat32s([]float32{23.5, 99}))
	require.NoError(t, err)
	assert.Equal(t, float32(23.5), v)
}

func TestDecodeVector3_IgnoresExtraBytes(t *testing.T) {
	data := append(codec.EncodeFloat32s([]float32{0.1, -9.81, 3}), 0xDE, 0xAD)
	v, err := DecodeVector3(data)
	require.NoError(t, err)
	assert.Equal(t, Vector3{X: 0.1, Y: -9.81, Z: 3}, v)
}

func TestDecodeQuaternion_Reorders(t *testing.T) {
	// wire order is w, x, y, z
	q, err := DecodeQuaternion(codec.EncodeFloat32s([]float32{1, 0.1, 0.2, 0.3}))
	require.NoError(t, err)
	assert.Equal(t, Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 1}, q)
}

func TestDecodeButtons(t *testing.T) {
	tests := []struct {
		mask int32
		want ButtonsState
	}{
		{0b000, ButtonsState{SwitchRight, Released, Released}},
		{0b111, ButtonsState{SwitchLeft, Pressed, Pressed}},
		{0b010, ButtonsState{SwitchRight, Pressed, Released}},
		{0b001, ButtonsState{SwitchLeft, Released, Released}},
		{0b100, ButtonsState{SwitchRight, Released, Pressed}},
		{0b11111000, ButtonsState{SwitchRight, Released, Released}},
		{-1, ButtonsState{SwitchLeft, Pressed, Pressed}},
	}
	for _, tt := range tests {
		got, err := DecodeButtons(codec.EncodeInt32(tt.mask))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "mask %b", tt.mask)
		assert.Equal(t, tt.mask&0b111, got.Mask())
	}
}

func TestButtonsState_Strings(t *testing.T) {
	s := ButtonsState{SlideSwitch: SwitchLeft, ButtonA: Pressed}
	assert.Equal(t, "left", s.SlideSwitch.String())
	assert.Equal(t, "pressed", s.ButtonA.String())
	assert.Equal(t, "released", s.ButtonB.String())
}

func TestDecodeColor(t *testing.T) {
	c, err := DecodeColor(codec.EncodeUint16s([]uint16{65535, 0, 32768, 7}))
	require.NoError(t, err)
	assert.Equal(t, float32(1), c.R)
	assert.Equal(t, float32(0), c.G)
	assert.InDelta(t, 0.5, c.B, 0.0001)
	assert.Equal(t, float32(1), c.A)
}
