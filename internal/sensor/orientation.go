package sensor

import "math"

// Rotated returns q multiplied on the right by a rotation of angle radians about axis.
func (q Quaternion) Rotated(angle float64, axis Vector3) Quaternion {
	n := math.Sqrt(float64(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z))
	if n == 0 {
		return q
	}
	s := math.Sin(angle/2) / n
	r := Quaternion{
		X: float32(float64(axis.X) * s),
		Y: float32(float64(axis.Y) * s),
		Z: float32(float64(axis.Z) * s),
		W: float32(math.Cos(angle / 2)),
	}
	return q.Mul(r)
}

// Mul returns the Hamilton product q·r.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
	}
}

// Euler returns pitch, yaw and roll in radians.
func (q Quaternion) Euler() (pitch, yaw, roll float64) {
	x, y, z, w := float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)
	pitch = math.Asin(math.Max(-1, math.Min(1, 2*(w*y-z*x))))
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	return pitch, yaw, roll
}

// Tilt returns the rotation about x and y implied by a gravity reading.
func (v Vector3) Tilt() (x, y float64) {
	ax, ay, az := float64(v.X), float64(v.Y), float64(v.Z)
	return math.Atan2(ay, az), math.Atan2(-ax, math.Sqrt(ay*ay+az*az))
}

// Back-mounted sensors (the CLUE carries its IMU under the board) report
// mirrored axes; these helpers bring readings back to the front face.

// FlipAcceleration negates x and z.
func FlipAcceleration(v Vector3) Vector3 {
	return Vector3{X: -v.X, Y: v.Y, Z: -v.Z}
}

// FlipQuaternion rotates q by π about the y axis.
func FlipQuaternion(q Quaternion) Quaternion {
	return q.Rotated(math.Pi, Vector3{Y: 1})
}
