package neopixel

import (
	"fmt"
	"sync"

	"github.com/srg/adaboard/internal/codec"
)

// BytesPerPixel is the size of one pixel on the wire.
const BytesPerPixel = 3

// Write flags of the pixel payload.
const (
	FlagSave  uint8 = 0
	FlagFlush uint8 = 1
)

// WireBytes returns the pixel bytes in wire channel order: G, R, B.
func (f Frame) WireBytes() []byte {
	b := make([]byte, 0, len(f)*BytesPerPixel)
	for _, c := range f {
		b = append(b, c.G, c.R, c.B)
	}
	return b
}

// EncodePixels builds a pixel write: [offset LE u16][flag u8][G,R,B per pixel].
// offset is in bytes from the first pixel.
func EncodePixels(offset uint16, flush bool, frame Frame) []byte {
	return encodeRaw(offset, flush, frame.WireBytes())
}

func encodeRaw(offset uint16, flush bool, pixelData []byte) []byte {
	flag := FlagSave
	if flush {
		flag = FlagFlush
	}
	b := make([]byte, 0, 3+len(pixelData))
	b = codec.AppendUint16(b, offset)
	b = append(b, flag)
	return append(b, pixelData...)
}

// PixelOffset is the byte offset of pixel index.
func PixelOffset(index int) uint16 {
	return uint16(index * BytesPerPixel)
}

// PixelState remembers the last pixel bytes acknowledged by the accessory, so a
// masked write can resend the colors of pixels it does not touch.
type PixelState struct {
	mu     sync.Mutex
	pixels int
	data   []byte
}

// NewPixelState starts with every pixel off.
func NewPixelState(pixels int) *PixelState {
	return &PixelState{pixels: pixels, data: make([]byte, pixels*BytesPerPixel)}
}

func (s *PixelState) Pixels() int { return s.pixels }

// Commit records pixel bytes that were written at offset.
func (s *PixelState) Commit(offset uint16, pixelData []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(offset) >= len(s.data) {
		return
	}
	copy(s.data[offset:], pixelData)
}

// CommitPayload records a full pixel write payload as built by EncodePixels.
func (s *PixelState) CommitPayload(payload []byte) {
	if len(payload) < 3 {
		return
	}
	offset, _ := codec.Uint16(payload)
	s.Commit(offset, payload[3:])
}

// Frame returns the current colors.
func (s *PixelState) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := make(Frame, s.pixels)
	for i := range f {
		p := s.data[i*BytesPerPixel:]
		f[i] = RGB{R: p[1], G: p[0], B: p[2]}
	}
	return f
}

// Masked builds a flush payload starting at pixel 0 where pixels selected by
// mask take color and every other pixel keeps its last written bytes. Pixels
// beyond the mask are not included.
func (s *PixelState) Masked(color RGB, mask []bool) ([]byte, error) {
	if len(mask) == 0 {
		return nil, fmt.Errorf("empty pixel mask")
	}
	if len(mask) > s.pixels {
		return nil, fmt.Errorf("pixel mask has %d entries, board has %d pixels", len(mask), s.pixels)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, 0, len(mask)*BytesPerPixel)
	for i, selected := range mask {
		if selected {
			data = append(data, color.G, color.R, color.B)
			continue
		}
		data = append(data, s.data[i*BytesPerPixel:(i+1)*BytesPerPixel]...)
	}
	return encodeRaw(0, true, data), nil
}

// Reset forgets the written colors.
func (s *PixelState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
}

// MaskOf returns a mask of the given size selecting indices.
func MaskOf(size int, indices ...int) ([]bool, error) {
	mask := make([]bool, size)
	for _, i := range indices {
		if i < 0 || i >= size {
			return nil, fmt.Errorf("pixel %d out of range 0..%d", i, size-1)
		}
		mask[i] = true
	}
	return mask, nil
}
