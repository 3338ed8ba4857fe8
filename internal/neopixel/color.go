// Package neopixel drives the NeoPixel ring of a board: color frames, light
// sequence generators, the animation clock and the pixel write payload.
package neopixel

import (
	"fmt"
	"strconv"
	"strings"
)

// RGB is one pixel color.
type RGB struct {
	R, G, B uint8
}

// Off is the color of an unlit pixel.
var Off = RGB{}

// Frame is the color of every pixel, in pixel order.
type Frame []RGB

// Fill returns a frame of n pixels set to c.
func Fill(n int, c RGB) Frame {
	f := make(Frame, n)
	for i := range f {
		f[i] = c
	}
	return f
}

// Scaled multiplies every channel by brightness (0..1), truncating.
func (f Frame) Scaled(brightness float64) Frame {
	brightness = clamp01(brightness)
	out := make(Frame, len(f))
	for i, c := range f {
		out[i] = c.Scaled(brightness)
	}
	return out
}

func (c RGB) Scaled(brightness float64) RGB {
	return RGB{
		R: uint8(float64(c.R) * brightness),
		G: uint8(float64(c.G) * brightness),
		B: uint8(float64(c.B) * brightness),
	}
}

// Lerp blends c towards to by fraction f (0..1), truncating each channel.
func (c RGB) Lerp(to RGB, f float64) RGB {
	mix := func(a, b uint8) uint8 {
		return uint8(float64(a)*(1-f) + float64(b)*f)
	}
	return RGB{R: mix(c.R, to.R), G: mix(c.G, to.G), B: mix(c.B, to.B)}
}

// Blend interpolates two frames pixel by pixel. The result has the length of from.
func Blend(from, to Frame, f float64) Frame {
	out := make(Frame, len(from))
	for i := range from {
		target := from[i]
		if i < len(to) {
			target = to[i]
		}
		out[i] = from[i].Lerp(target, f)
	}
	return out
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// rgbf builds a color from 0..1 components the way palettes are defined.
func rgbf(r, g, b float64) RGB {
	return RGB{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255)}
}

var namedColors = map[string]RGB{
	"off":     Off,
	"black":   Off,
	"white":   {255, 255, 255},
	"red":     {255, 0, 0},
	"green":   {0, 255, 0},
	"blue":    {0, 0, 255},
	"yellow":  {255, 255, 0},
	"cyan":    {0, 255, 255},
	"magenta": {255, 0, 255},
	"orange":  {255, 99, 0},
	"purple":  {128, 0, 255},
}

// ParseColor accepts a color name, "#rrggbb" / "rrggbb", or "r,g,b" with decimal components.
func ParseColor(s string) (RGB, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	if parts := strings.Split(s, ","); len(parts) == 3 {
		var c [3]uint8
		for i, p := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return Off, fmt.Errorf("invalid color %q: %w", s, err)
			}
			c[i] = uint8(v)
		}
		return RGB{c[0], c[1], c[2]}, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return Off, fmt.Errorf("invalid color %q: expected a name, #rrggbb or r,g,b", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Off, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
