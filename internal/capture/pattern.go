package capture

import (
	"context"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
)

// PatternSource generates color bars with a moving bright square.
// It needs no hardware and is what the monitor falls back to in demos and tests.
type PatternSource struct {
	FPS  float64
	Size image.Point // Overrides the ideal resolution when non-zero
}

// Name implements Source.
func (p *PatternSource) Name() string { return "pattern" }

// Open implements Source.
func (p *PatternSource) Open(ctx context.Context, ideal image.Point) (Stream, error) {
	size := p.Size
	if size.X <= 0 || size.Y <= 0 {
		size = ideal
	}
	if size.X <= 0 || size.Y <= 0 {
		size = DefaultIdeal
	}

	st := &patternStream{frameStore: newFrameStore(), size: size}
	// The first frame is published synchronously so Ready returns at once.
	st.publish(st.render(0))

	go st.run(ctx, paceInterval(p.FPS))
	return st, nil
}

type patternStream struct {
	*frameStore
	size image.Point
}

var barColors = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255}, // White
	{R: 255, G: 255, B: 0, A: 255},   // Yellow
	{R: 0, G: 255, B: 255, A: 255},   // Cyan
	{R: 0, G: 255, B: 0, A: 255},     // Green
	{R: 255, G: 0, B: 255, A: 255},   // Magenta
	{R: 255, G: 0, B: 0, A: 255},     // Red
	{R: 0, G: 0, B: 255, A: 255},     // Blue
	{R: 0, G: 0, B: 0, A: 255},       // Black
}

func (s *patternStream) render(step int) *image.RGBA {
	w, h := s.size.X, s.size.Y
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	barWidth := max(1, w/len(barColors))
	for i, c := range barColors {
		x0 := i * barWidth
		x1 := x0 + barWidth
		if i == len(barColors)-1 {
			x1 = w
		}
		draw.Draw(img, image.Rect(x0, 0, x1, h), &image.Uniform{C: c}, image.Point{}, draw.Src)
	}

	side := max(8, min(w, h)/5)
	span := max(1, w-side)
	x := (step * 4) % span
	y := (h - side) / 2
	draw.Draw(img, image.Rect(x, y, x+side, y+side),
		&image.Uniform{C: color.RGBA{R: 240, G: 200, B: 170, A: 255}}, image.Point{}, draw.Src)

	return img
}

func (s *patternStream) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	step := 1
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.publish(s.render(step))
			step++
		}
	}
}

// Close implements Stream.
func (s *patternStream) Close() error {
	s.shutdown()
	return nil
}
