package simulated

import (
	"math"

	"github.com/srg/adaboard/internal/codec"
	"github.com/srg/adaboard/internal/service"
)

// sampleLocked renders the current value of kind in its wire format. Caller holds a.mu.
func (a *Accessory) sampleLocked(kind service.Kind) []byte {
	t := a.opts.Now().Sub(a.start).Seconds()
	switch kind {
	case service.Temperature:
		return codec.EncodeFloat32s([]float32{float32(22 + 0.5*math.Sin(t/10))})
	case service.Light:
		return codec.EncodeFloat32s([]float32{float32(150 + 50*math.Sin(t))})
	case service.Humidity:
		return codec.EncodeFloat32s([]float32{float32(45 + 2*math.Sin(t/7))})
	case service.Pressure:
		return codec.EncodeFloat32s([]float32{float32(1013.25 + math.Sin(t/20))})
	case service.Accelerometer:
		return codec.EncodeFloat32s([]float32{float32(0.5 * math.Sin(t)), float32(0.5 * math.Cos(t)), 9.81})
	case service.Gyroscope:
		return codec.EncodeFloat32s([]float32{float32(0.1 * math.Cos(t)), float32(-0.1 * math.Sin(t)), 0})
	case service.Magnetometer:
		return codec.EncodeFloat32s([]float32{float32(20 * math.Cos(t/5)), float32(20 * math.Sin(t/5)), 40})
	case service.Quaternion:
		half := t / 8
		// wire order w, x, y, z
		return codec.EncodeFloat32s([]float32{float32(math.Cos(half)), 0, 0, float32(math.Sin(half))})
	case service.Color:
		return codec.EncodeUint16s([]uint16{
			uint16(32767 + 32767*math.Sin(t)),
			uint16(32767 + 32767*math.Sin(t+2)),
			uint16(32767 + 32767*math.Sin(t+4)),
		})
	case service.Sound:
		const perChannel = 16
		channels := int(a.opts.SoundChannels)
		samples := make([]int16, 0, perChannel*channels)
		for i := 0; i < perChannel; i++ {
			v := int16(3000 * math.Sin(t*440+float64(i)))
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, v)
			}
		}
		return codec.EncodeInt16s(samples)
	case service.Buttons:
		return codec.EncodeInt32(a.buttons)
	}
	return nil
}
