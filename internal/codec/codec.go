// Package codec converts little-endian byte buffers to and from the scalar and
// array types used by the Adafruit vendor services.
//
// Every decoder checks the buffer length before touching it and reports a
// short buffer as ErrShortBuffer; no function in this package panics on
// untrusted input. Array decoders drop a trailing partial group silently,
// since accessories are allowed to pad their payloads.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortBuffer is returned when a buffer holds fewer bytes than a value needs.
var ErrShortBuffer = errors.New("short buffer")

func shortBuffer(need, have int) error {
	return fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, need, have)
}

// Uint8 decodes the first byte of data.
func Uint8(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, shortBuffer(1, len(data))
	}
	return data[0], nil
}

// Int16 decodes a little-endian signed 16-bit integer.
func Int16(data []byte) (int16, error) {
	v, err := Uint16(data)
	return int16(v), err
}

// Uint16 decodes a little-endian unsigned 16-bit integer.
func Uint16(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, shortBuffer(2, len(data))
	}
	return binary.LittleEndian.Uint16(data), nil
}

// Int32 decodes a little-endian signed 32-bit integer.
func Int32(data []byte) (int32, error) {
	v, err := Uint32(data)
	return int32(v), err
}

// Uint32 decodes a little-endian unsigned 32-bit integer.
func Uint32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, shortBuffer(4, len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

// Float32 decodes a little-endian IEEE-754 single precision float.
func Float32(data []byte) (float32, error) {
	v, err := Uint32(data)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// Float32s decodes consecutive 4-byte floats. A trailing partial group is dropped.
func Float32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// Int32s decodes consecutive 4-byte signed integers. A trailing partial group is dropped.
func Int32s(data []byte) []int32 {
	out := make([]int32, len(data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// Int16s decodes consecutive 2-byte signed integers. A trailing partial group is dropped.
func Int16s(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// Uint16s decodes consecutive 2-byte unsigned integers. A trailing partial group is dropped.
func Uint16s(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return out
}

// Float32sN decodes exactly n leading floats, failing when the buffer is too short.
func Float32sN(data []byte, n int) ([]float32, error) {
	if len(data) < n*4 {
		return nil, shortBuffer(n*4, len(data))
	}
	return Float32s(data[:n*4]), nil
}

// Uint16sN decodes exactly n leading uint16 values, failing when the buffer is too short.
func Uint16sN(data []byte, n int) ([]uint16, error) {
	if len(data) < n*2 {
		return nil, shortBuffer(n*2, len(data))
	}
	return Uint16s(data[:n*2]), nil
}

// ----------------------------
// Encoders
// ----------------------------

// AppendUint16 appends v in little-endian order.
func AppendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

// AppendInt16 appends v in little-endian order.
func AppendInt16(b []byte, v int16) []byte {
	return binary.LittleEndian.AppendUint16(b, uint16(v))
}

// AppendUint32 appends v in little-endian order.
func AppendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// AppendInt32 appends v in little-endian order.
func AppendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

// AppendFloat32 appends the IEEE-754 bits of v in little-endian order.
func AppendFloat32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

// EncodeInt32 returns the 4-byte little-endian form of v.
func EncodeInt32(v int32) []byte {
	return AppendInt32(make([]byte, 0, 4), v)
}

// EncodeFloat32s returns the little-endian form of values.
func EncodeFloat32s(values []float32) []byte {
	b := make([]byte, 0, len(values)*4)
	for _, v := range values {
		b = AppendFloat32(b, v)
	}
	return b
}

// EncodeInt32s returns the little-endian form of values.
func EncodeInt32s(values []int32) []byte {
	b := make([]byte, 0, len(values)*4)
	for _, v := range values {
		b = AppendInt32(b, v)
	}
	return b
}

// EncodeInt16s returns the little-endian form of values.
func EncodeInt16s(values []int16) []byte {
	b := make([]byte, 0, len(values)*2)
	for _, v := range values {
		b = AppendInt16(b, v)
	}
	return b
}

// EncodeUint16s returns the little-endian form of values.
func EncodeUint16s(values []uint16) []byte {
	b := make([]byte, 0, len(values)*2)
	for _, v := range values {
		b = AppendUint16(b, v)
	}
	return b
}
