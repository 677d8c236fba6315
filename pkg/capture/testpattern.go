package capture

import (
	"image"
	"image/color"
	"sync/atomic"
)

// TestPatternSource synthesizes camera frames for sessions without a real
// camera. Each frame shifts a color gradient so the stream visibly moves.
type TestPatternSource struct {
	frame atomic.Uint64
}

// NewTestPatternSource returns a ready source.
func NewTestPatternSource() *TestPatternSource {
	return &TestPatternSource{}
}

// NextFrame renders the next gradient frame.
func (s *TestPatternSource) NextFrame() (image.Image, error) {
	n := s.frame.Add(1)
	img := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	shift := uint8(n * 3)
	for y := 0; y < FrameHeight; y++ {
		for x := 0; x < FrameWidth; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*255/FrameWidth) + shift,
				G: uint8(y * 255 / FrameHeight),
				B: shift,
				A: 255,
			})
		}
	}
	return img, nil
}

// Close is a no-op; the source holds no resources.
func (s *TestPatternSource) Close() error { return nil }
