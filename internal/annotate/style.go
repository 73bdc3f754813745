package annotate

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// LabelPad is the padding around label text, in pixels.
const LabelPad = 6

var (
	boxColor   = color.RGBA{R: 255, A: 255}
	tabColor   = color.NRGBA{R: 255, A: 217} // rgba(255,0,0,0.85)
	labelColor = color.White
)

// Style holds the stroke and font metrics for one layer size.
type Style struct {
	LineWidth int
	FontSize  int
}

// StyleFor scales the style from the smaller layer dimension.
func StyleFor(size image.Point) Style {
	m := float64(min(size.X, size.Y))
	return Style{
		LineWidth: max(2, int(math.Round(m/250))),
		FontSize:  max(14, int(math.Round(m/35))),
	}
}

var (
	fontOnce sync.Once
	goFont   *opentype.Font
	fontErr  error
)

// newFace returns a Go Regular face of the given pixel size.
// Faces are not safe for concurrent use; the Renderer owns its own.
func newFace(px int) (font.Face, error) {
	fontOnce.Do(func() {
		goFont, fontErr = opentype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("parse label font: %w", fontErr)
	}
	return opentype.NewFace(goFont, &opentype.FaceOptions{
		Size:    float64(px),
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
