package sensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertQuaternion(t *testing.T, want, got Quaternion) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-6, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-6, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-6, "z")
	assert.InDelta(t, want.W, got.W, 1e-6, "w")
}

func TestQuaternion_Rotated(t *testing.T) {
	identity := Quaternion{W: 1}

	assertQuaternion(t, Quaternion{Y: 1}, FlipQuaternion(identity))
	assertQuaternion(t, Quaternion{Y: 1}, identity.Rotated(math.Pi, Vector3{Y: 5}))

	// two half turns make a full turn, which is -identity
	assertQuaternion(t, Quaternion{W: -1}, FlipQuaternion(FlipQuaternion(identity)))

	assert.Equal(t, identity, identity.Rotated(1, Vector3{}))
}

func TestQuaternion_Euler(t *testing.T) {
	pitch, yaw, roll := Quaternion{W: 1}.Euler()
	assert.InDelta(t, 0, pitch, 1e-9)
	assert.InDelta(t, 0, yaw, 1e-9)
	assert.InDelta(t, 0, roll, 1e-9)

	half := float32(math.Sqrt2 / 2)
	_, yaw, _ = Quaternion{Z: half, W: half}.Euler()
	assert.InDelta(t, math.Pi/2, yaw, 1e-6)
}

func TestFlipAcceleration(t *testing.T) {
	assert.Equal(t, Vector3{X: -1, Y: 2, Z: -3}, FlipAcceleration(Vector3{X: 1, Y: 2, Z: 3}))
}

func TestVector3_Tilt(t *testing.T) {
	x, y := Vector3{Z: 9.81}.Tilt()
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)
}
