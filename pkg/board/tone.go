package board

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/codec"
	"github.com/srg/adaboard/internal/service"
)

// EncodeTone builds a tone command: [frequency LE u16][duration ms LE u32].
// A zero duration plays until a zero frequency command.
func EncodeTone(frequency uint16, duration time.Duration) []byte {
	ms := duration.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > math.MaxUint32 {
		ms = math.MaxUint32
	}
	b := make([]byte, 0, 6)
	b = codec.AppendUint16(b, frequency)
	return codec.AppendUint32(b, uint32(ms))
}

// ToneGeneratorStartPlaying plays frequency Hz for duration; zero plays until stopped.
func (b *Board) ToneGeneratorStartPlaying(ctx context.Context, frequency uint16, duration time.Duration) error {
	engine, err := b.currentEngine()
	if err != nil {
		return err
	}
	if err := engine.Write(ctx, service.ToneGenerator, EncodeTone(frequency, duration), true); err != nil {
		return err
	}
	b.logger.WithFields(logrus.Fields{
		"frequency": frequency,
		"duration":  duration,
	}).Debug("Tone started")
	return nil
}

// ToneGeneratorStopPlaying silences the tone generator.
func (b *Board) ToneGeneratorStopPlaying(ctx context.Context) error {
	engine, err := b.currentEngine()
	if err != nil {
		return err
	}
	return engine.Write(ctx, service.ToneGenerator, EncodeTone(0, 0), true)
}
