package board

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/neopixel"
	"github.com/srg/adaboard/internal/service"
)

// SequenceOptions tune a light sequence. Zero fields take the board defaults.
type SequenceOptions struct {
	FPS        int
	Speed      float64
	Brightness float64
	Repeating  bool
}

func (b *Board) sequenceDefaults(o SequenceOptions) SequenceOptions {
	if o.FPS <= 0 {
		o.FPS = b.opts.AnimationFPS
	}
	if o.Speed <= 0 {
		o.Speed = b.opts.AnimationSpeed
	}
	if o.Brightness <= 0 {
		o.Brightness = b.opts.AnimationBrightness
	}
	return o
}

// pixelConnection returns the connection once the pixel service is enabled.
func (b *Board) pixelConnection() (*connection, error) {
	c, err := b.current()
	if err != nil {
		return nil, err
	}
	if !c.engine.IsEnabled(service.Neopixels) {
		return nil, fmt.Errorf("%s: %w", service.Neopixels, service.ErrNotEnabled)
	}
	return c, nil
}

// NeopixelPixelCount returns the number of pixels of the connected board.
func (b *Board) NeopixelPixelCount() int {
	c, err := b.current()
	if err != nil {
		return 0
	}
	return c.pixels.Pixels()
}

// NeopixelColors returns the last colors acknowledged by the accessory.
func (b *Board) NeopixelColors() neopixel.Frame {
	c, err := b.current()
	if err != nil {
		return nil
	}
	return c.pixels.Frame()
}

// NeopixelSetAllPixelsColor stops any light sequence and sets every pixel to color.
func (b *Board) NeopixelSetAllPixelsColor(ctx context.Context, color neopixel.RGB) error {
	c, err := b.pixelConnection()
	if err != nil {
		return err
	}
	c.animMu.Lock()
	defer c.animMu.Unlock()
	c.stopAnimation()
	return c.writeFrame(ctx, neopixel.Fill(c.pixels.Pixels(), color))
}

// NeopixelSetPixelColor stops any light sequence and sets the pixels selected
// by mask to color. Unselected pixels keep their colors; when a sequence was
// playing they are turned off first.
func (b *Board) NeopixelSetPixelColor(ctx context.Context, color neopixel.RGB, mask []bool) error {
	c, err := b.pixelConnection()
	if err != nil {
		return err
	}
	// reject a bad mask before touching the running sequence
	if _, err := c.pixels.Masked(color, mask); err != nil {
		return err
	}

	c.animMu.Lock()
	defer c.animMu.Unlock()
	if c.stopAnimation() {
		if err := c.writeFrame(ctx, neopixel.Fill(c.pixels.Pixels(), neopixel.Off)); err != nil {
			return err
		}
	}
	payload, err := c.pixels.Masked(color, mask)
	if err != nil {
		return err
	}
	return c.writePixels(ctx, payload)
}

// NeopixelStartLightSequence replaces the running light sequence with gen.
// The previous sequence is stopped and the pixels turned off before the first
// frame of the new one.
func (b *Board) NeopixelStartLightSequence(ctx context.Context, gen neopixel.Generator, opts SequenceOptions) error {
	c, err := b.pixelConnection()
	if err != nil {
		return err
	}
	opts = b.sequenceDefaults(opts)
	off := neopixel.EncodePixels(0, true, neopixel.Fill(c.pixels.Pixels(), neopixel.Off))

	c.animMu.Lock()
	defer c.animMu.Unlock()

	if c.stopAnimation() {
		if err := c.writePixels(ctx, off); err != nil {
			return err
		}
	}

	log := b.logger.WithField("accessory", c.transport.ID())
	anim, err := neopixel.NewAnimation(gen,
		neopixel.AnimationOptions{FPS: opts.FPS, Speed: opts.Speed, Repeating: opts.Repeating},
		func(t neopixel.Tick) {
			c.writer.Submit(neopixel.EncodePixels(0, true, t.Colors.Scaled(opts.Brightness)))
		},
		func(reason neopixel.StopReason) {
			if reason == neopixel.Finished {
				c.writer.Submit(off)
			}
		},
		b.logger,
	)
	if err != nil {
		return err
	}
	if err := c.writer.Start(c.ctx); err != nil {
		return err
	}
	anim.Start(c.ctx)
	c.animation = anim

	log.WithFields(logrus.Fields{
		"frames":     gen.FrameCount(),
		"fps":        opts.FPS,
		"speed":      opts.Speed,
		"brightness": opts.Brightness,
		"repeating":  opts.Repeating,
	}).Info("Light sequence started")
	return nil
}

// NeopixelStartNamedSequence starts one of the built-in sequences by name.
func (b *Board) NeopixelStartNamedSequence(ctx context.Context, name string, opts SequenceOptions) error {
	gen, err := neopixel.SequenceByName(name, b.NeopixelPixelCount())
	if err != nil {
		return err
	}
	return b.NeopixelStartLightSequence(ctx, gen, opts)
}

// NeopixelFlash plays the one-shot flash cue in color.
func (b *Board) NeopixelFlash(ctx context.Context, color neopixel.RGB) error {
	gen := neopixel.NewFlash(b.NeopixelPixelCount(), color)
	return b.NeopixelStartLightSequence(ctx, gen, SequenceOptions{Speed: b.opts.FlashSpeed, Brightness: 1})
}

// NeopixelStopLightSequence stops the running light sequence and turns the pixels off.
func (b *Board) NeopixelStopLightSequence(ctx context.Context) error {
	c, err := b.pixelConnection()
	if err != nil {
		return err
	}
	c.animMu.Lock()
	defer c.animMu.Unlock()
	c.stopAnimation()
	return c.writeFrame(ctx, neopixel.Fill(c.pixels.Pixels(), neopixel.Off))
}

// IsNeopixelAnimating reports whether a light sequence is playing.
func (b *Board) IsNeopixelAnimating() bool {
	c, err := b.current()
	if err != nil {
		return false
	}
	c.animMu.Lock()
	defer c.animMu.Unlock()
	if c.animation == nil {
		return false
	}
	select {
	case <-c.animation.Done():
		return false
	default:
		return true
	}
}

// NeopixelMetrics returns the frame writer counters of the current connection.
func (b *Board) NeopixelMetrics() neopixel.FrameWriterMetrics {
	c, err := b.current()
	if err != nil {
		return neopixel.FrameWriterMetrics{}
	}
	return c.writer.Metrics()
}

// stopAnimation stops the animation and the frame writer; no frame is written
// after it returns. It reports whether an animation was playing. Caller holds animMu.
func (c *connection) stopAnimation() bool {
	anim := c.animation
	c.animation = nil
	if anim != nil {
		anim.Stop()
	}
	c.writer.Stop()
	return anim != nil
}

func (c *connection) writeFrame(ctx context.Context, frame neopixel.Frame) error {
	return c.writePixels(ctx, neopixel.EncodePixels(0, true, frame))
}

// writePixels sends one pixel payload and records it once acknowledged.
func (c *connection) writePixels(ctx context.Context, payload []byte) error {
	if err := c.engine.Write(ctx, service.Neopixels, payload, true); err != nil {
		return err
	}
	c.pixels.CommitPayload(payload)
	return nil
}
