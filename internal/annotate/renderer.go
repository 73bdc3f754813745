// Package annotate draws detection results onto an overlay layer that is
// composited over the live view.
package annotate

import (
	"fmt"
	"image"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/internal/logger"
	"github.com/dj-oyu/facecam/pkg/types"
)

// Label describes one drawn annotation in layer coordinates.
type Label struct {
	Rank int
	Text string
	Box  image.Rectangle // after reflection
	Tab  image.Rectangle
}

// Renderer owns the annotation layer. All methods are safe for concurrent use.
type Renderer struct {
	mu     sync.Mutex
	layer  *image.RGBA
	style  Style
	face   font.Face
	labels []Label
}

// NewRenderer allocates a transparent layer of the given size.
func NewRenderer(size image.Point) *Renderer {
	r := &Renderer{}
	r.Reset(size)
	return r
}

// Reset reallocates the layer. Called once per session start, never mid-session.
func (r *Renderer) Reset(size image.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if size.X <= 0 || size.Y <= 0 {
		size = capture.DefaultIdeal
	}
	if r.layer != nil && r.layer.Bounds().Size() == size {
		r.clearLocked()
		return
	}

	r.layer = image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	r.style = StyleFor(size)
	r.labels = nil
	if r.face != nil {
		r.face.Close()
	}
	face, err := newFace(r.style.FontSize)
	if err != nil {
		logger.Warn("Annotate", "Falling back to bitmap label font: %v", err)
		face = basicfont.Face7x13
	}
	r.face = face
}

// Size returns the layer dimensions.
func (r *Renderer) Size() image.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layer.Bounds().Size()
}

// Style returns the metrics in use for the current layer.
func (r *Renderer) Style() Style {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.style
}

// Clear erases the annotation layer.
func (r *Renderer) Clear() {
	r.mu.Lock()
	r.clearLocked()
	r.mu.Unlock()
}

func (r *Renderer) clearLocked() {
	draw.Draw(r.layer, r.layer.Bounds(), image.Transparent, image.Point{}, draw.Src)
	r.labels = nil
}

// DrawBoxes clears the layer and draws every box in order with a rank label.
// When mirrored is set, x coordinates are reflected about the layer width.
func (r *Renderer) DrawBoxes(boxes []types.Box, mirrored bool) []Label {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearLocked()
	w := float64(r.layer.Bounds().Dx())

	labels := make([]Label, 0, len(boxes))
	for i, b := range boxes {
		if mirrored {
			b = ReflectBox(b, w)
		}
		labels = append(labels, r.drawOne(i+1, b))
	}
	r.labels = labels
	return append([]Label(nil), labels...)
}

func (r *Renderer) drawOne(rank int, b types.Box) Label {
	rect := pixelRect(b)
	strokeRect(r.layer, rect, r.style.LineWidth)

	text := fmt.Sprintf("#%d %.1f%%", rank, roundHalfUp(b.Score*100))
	tw := font.MeasureString(r.face, text).Ceil()
	th := r.style.FontSize + LabelPad

	x1, y1 := rect.Min.X, rect.Min.Y
	top := max(0, y1-th)
	tab := image.Rect(x1, top, x1+tw+LabelPad*2, top+th)
	draw.Draw(r.layer, tab, image.NewUniform(tabColor), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  r.layer,
		Src:  image.NewUniform(labelColor),
		Face: r.face,
		Dot:  fixed.P(x1+LabelPad, max(14, y1-LabelPad)),
	}
	d.DrawString(text)

	return Label{Rank: rank, Text: text, Box: rect, Tab: tab}
}

// pixelRect rounds a box to the nearest pixel edges.
func pixelRect(b types.Box) image.Rectangle {
	return image.Rect(
		int(math.Round(b.X1)), int(math.Round(b.Y1)),
		int(math.Round(b.X2)), int(math.Round(b.Y2)),
	)
}

// roundHalfUp rounds to one decimal with ties going up, so 6.25 prints as 6.3.
func roundHalfUp(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

// strokeRect draws an outline of width lw centered on r's edges.
func strokeRect(dst draw.Image, r image.Rectangle, lw int) {
	half := lw / 2
	outer := image.Rect(r.Min.X-half, r.Min.Y-half, r.Max.X+lw-half, r.Max.Y+lw-half)
	src := image.NewUniform(boxColor)

	inner := outer.Inset(lw)
	if inner.Empty() {
		draw.Draw(dst, outer, src, image.Point{}, draw.Over)
		return
	}
	for _, band := range []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y),
		image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y),
		image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y),
		image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y),
	} {
		draw.Draw(dst, band, src, image.Point{}, draw.Over)
	}
}

// Labels returns the annotations currently on the layer.
func (r *Renderer) Labels() []Label {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Label(nil), r.labels...)
}

// Composite returns a new image of the layer size: live scaled to fit,
// flipped when mirrored, with the annotation layer drawn over it.
// A nil live frame is treated as black.
func (r *Renderer) Composite(live image.Image, mirrored bool) *image.RGBA {
	out := image.NewRGBA(image.Rectangle{Max: r.Size()})
	if live != nil {
		capture.Blit(out, live, mirrored)
	} else {
		draw.Draw(out, out.Bounds(), image.Black, image.Point{}, draw.Src)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	draw.Draw(out, out.Bounds(), r.layer, image.Point{}, draw.Over)
	return out
}
