package neopixel

import (
	"fmt"
	"sort"
)

// Generator produces the frames of a light sequence.
type Generator interface {
	FrameCount() int
	// IsCyclic reports whether the last frame blends smoothly back into frame 0.
	IsCyclic() bool
	ColorsForFrame(frame int) Frame
}

var (
	rotatePalette = []RGB{
		rgbf(0.4, 0.4, 1), rgbf(0.1058823529, 0.1058823529, 1), rgbf(0, 0, 1), rgbf(0, 0, 0.06274509804),
		Off, Off, Off, Off, Off, Off,
	}
	pulsePalette = []RGB{
		rgbf(0, 1, 0), rgbf(0, 0.7843137255, 0.06274509804), rgbf(0, 0.7058823529, 0.1254901961),
		rgbf(0, 0.5882352941, 0.4980392157), rgbf(0, 0.2509803922, 0.4980392157), rgbf(0, 0.1254901961, 0.4980392157),
		rgbf(0, 0, 0.3137254902), rgbf(0, 0, 0.2509803922), rgbf(0, 0, 0.06274509804), rgbf(0, 0, 0.03137254902),
	}
	sizzlePalette = []RGB{
		rgbf(1, 0.3921568627, 0), rgbf(1, 0.3921568627, 0), rgbf(1, 0.1568627451, 0), rgbf(1, 0.1568627451, 0),
		rgbf(0.4980392157, 0.1254901961, 0), rgbf(0.4980392157, 0.03137254902, 0), rgbf(0.3137254902, 0, 0),
		rgbf(0.2509803922, 0, 0), rgbf(0.06274509804, 0, 0), Off,
	}
	sweepPalette = []RGB{
		rgbf(1, 0, 0.7843137255), rgbf(0.7843137255, 0, 0.4980392157), rgbf(0.1254901961, 0, 0.4980392157),
		rgbf(0.06274509804, 0, 0.2509803922), rgbf(0.03137254902, 0, 0.1254901961), rgbf(0, 0, 0.06274509804),
		rgbf(0, 0, 0.06274509804), rgbf(0, 0, 0.03137254902), Off, Off,
	}
)

// paletteSequence is a cyclic generator over a fixed palette.
type paletteSequence struct {
	pixels  int
	palette []RGB
	frames  int
	colorAt func(s *paletteSequence, frame, pixel int) RGB
}

func (s *paletteSequence) FrameCount() int { return s.frames }
func (s *paletteSequence) IsCyclic() bool  { return true }

func (s *paletteSequence) ColorsForFrame(frame int) Frame {
	frame = mod(frame, s.frames)
	f := make(Frame, s.pixels)
	for i := range f {
		f[i] = s.colorAt(s, frame, i)
	}
	return f
}

// NewRotate shifts the palette one pixel per frame.
func NewRotate(pixels int) Generator {
	return &paletteSequence{
		pixels:  pixels,
		palette: rotatePalette,
		frames:  len(rotatePalette),
		colorAt: func(s *paletteSequence, frame, i int) RGB {
			return s.palette[(frame+i)%len(s.palette)]
		},
	}
}

// NewPulse fades every pixel through the palette and back.
func NewPulse(pixels int) Generator {
	return &paletteSequence{
		pixels:  pixels,
		palette: pulsePalette,
		frames:  2 * len(pulsePalette),
		colorAt: func(s *paletteSequence, frame, _ int) RGB {
			if frame >= s.frames/2 {
				frame = s.frames - 1 - frame
			}
			return s.palette[frame]
		},
	}
}

// NewSizzle runs even pixels backwards and odd pixels forwards through the palette, then reverses.
func NewSizzle(pixels int) Generator {
	return &paletteSequence{
		pixels:  pixels,
		palette: sizzlePalette,
		frames:  2 * len(sizzlePalette),
		colorAt: func(s *paletteSequence, frame, i int) RGB {
			half := s.frames / 2
			var even, odd int
			if frame >= half {
				even, odd = frame%half, s.frames-1-frame
			} else {
				even, odd = half-1-frame, frame
			}
			if i%2 == 0 {
				return s.palette[even]
			}
			return s.palette[odd]
		},
	}
}

// NewSweep rotates the palette from the middle outwards on both sides.
func NewSweep(pixels int) Generator {
	return &paletteSequence{
		pixels:  pixels,
		palette: sweepPalette,
		frames:  len(sweepPalette),
		colorAt: func(s *paletteSequence, frame, i int) RGB {
			if i >= s.pixels/2 {
				i = s.pixels - 1 - i
				if i >= s.pixels/2 {
					// middle pixel of an odd ring stays dark
					return Off
				}
			}
			return s.palette[(frame+i)%len(s.palette)]
		},
	}
}

const flashFrames = 8

type flash struct {
	pixels int
	base   RGB
}

// NewFlash fades base in and out once over 8 frames; it does not repeat smoothly.
func NewFlash(pixels int, base RGB) Generator {
	return &flash{pixels: pixels, base: base}
}

func (f *flash) FrameCount() int { return flashFrames }
func (f *flash) IsCyclic() bool  { return false }

func (f *flash) ColorsForFrame(frame int) Frame {
	factor := float64(frame) / flashFrames
	var c RGB
	if factor < 0.5 {
		c = Off.Lerp(f.base, factor*2)
	} else {
		c = f.base.Lerp(Off, (factor-0.5)*2)
	}
	return Fill(f.pixels, c)
}

// Sequences maps sequence names to constructors.
var Sequences = map[string]func(pixels int) Generator{
	"rotate": NewRotate,
	"pulse":  NewPulse,
	"sizzle": NewSizzle,
	"sweep":  NewSweep,
}

// SequenceByName builds a named sequence for a ring of the given size.
func SequenceByName(name string, pixels int) (Generator, error) {
	ctor, ok := Sequences[name]
	if !ok {
		return nil, fmt.Errorf("unknown light sequence %q (known: %v)", name, SequenceNames())
	}
	return ctor(pixels), nil
}

// SequenceNames returns the known sequence names, sorted.
func SequenceNames() []string {
	names := make([]string, 0, len(Sequences))
	for n := range Sequences {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
