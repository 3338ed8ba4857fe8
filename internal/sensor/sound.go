package sensor

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/srg/adaboard/internal/codec"
)

// ErrChannelsUnknown is returned for sound payloads received before the channel count is known.
var ErrChannelsUnknown = errors.New("sound channel count unknown")

// MaxSoundChannels is the largest channel count an accessory may report.
const MaxSoundChannels = 100

const fullScale = 32767

// SoundDecoder converts interleaved int16 samples into per-channel amplitudes.
// The zero value has no channel count and rejects every payload.
type SoundDecoder struct {
	channels atomic.Int32 // 0 until set
}

// SetChannels caches the channel count read from the accessory (a single byte, 0..100).
func (d *SoundDecoder) SetChannels(n int) error {
	if n < 0 || n > MaxSoundChannels {
		return fmt.Errorf("%w: channel count %d out of range", ErrInvalidResponseData, n)
	}
	d.channels.Store(int32(n) + 1)
	return nil
}

// SetChannelsFrom decodes and caches the channel count characteristic value.
func (d *SoundDecoder) SetChannelsFrom(data []byte) error {
	n, err := codec.Uint8(data)
	if err != nil {
		return invalid("sound channels", err)
	}
	return d.SetChannels(int(n))
}

// Channels returns the cached channel count.
func (d *SoundDecoder) Channels() (int, bool) {
	v := d.channels.Load()
	return int(v) - 1, v != 0
}

// Reset forgets the channel count.
func (d *SoundDecoder) Reset() { d.channels.Store(0) }

// Decode computes 20·log10(mean(|s|)/32767) per channel. A silent channel yields
// -Inf and a channel without samples yields NaN; both are returned as is.
func (d *SoundDecoder) Decode(data []byte) (Amplitudes, error) {
	channels, ok := d.Channels()
	if !ok {
		return nil, ErrChannelsUnknown
	}
	if len(data) < 2 {
		return nil, invalid("sound", fmt.Errorf("%w: need 2 bytes, have %d", codec.ErrShortBuffer, len(data)))
	}

	if channels == 0 {
		return Amplitudes{}, nil
	}

	samples := codec.Int16s(data)
	sums := make([]float64, channels)
	counts := make([]int, channels)
	for i, s := range samples {
		ch := i % channels
		sums[ch] += math.Abs(float64(s))
		counts[ch]++
	}

	out := make(Amplitudes, channels)
	for ch := range out {
		mean := sums[ch] / float64(counts[ch])
		out[ch] = 20 * math.Log10(mean/fullScale)
	}
	return out, nil
}

// ClampAmplitude maps NaN and -Inf to floor and caps values at 0 dBFS.
func ClampAmplitude(v, floor float64) float64 {
	if math.IsNaN(v) || v < floor {
		return floor
	}
	return math.Min(v, 0)
}
