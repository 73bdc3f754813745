package capture

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// DefaultJPEGQuality matches the upload quality of 0.85.
const DefaultJPEGQuality = 85

// FrameBuffer is the off-screen buffer frames are snapshotted into before upload.
// Its size is fixed at creation; sources reporting another size are scaled.
type FrameBuffer struct {
	buf *image.RGBA
}

// NewFrameBuffer allocates a buffer of the given size.
func NewFrameBuffer(size image.Point) *FrameBuffer {
	return &FrameBuffer{buf: image.NewRGBA(image.Rect(0, 0, size.X, size.Y))}
}

// Size returns the buffer dimensions.
func (b *FrameBuffer) Size() image.Point {
	return b.buf.Bounds().Size()
}

// Snapshot draws src into the buffer, flipped horizontally when mirror is set.
// The returned image is the buffer itself and is only valid until the next call.
func (b *FrameBuffer) Snapshot(src image.Image, mirror bool) *image.RGBA {
	Blit(b.buf, src, mirror)
	return b.buf
}

// Blit replaces dst with src scaled to dst's bounds, optionally mirrored.
func Blit(dst *image.RGBA, src image.Image, mirror bool) {
	dr := dst.Bounds()
	sr := src.Bounds()

	draw.Draw(dst, dr, image.Transparent, image.Point{}, draw.Src)

	sameSize := sr.Size() == dr.Size()
	if !mirror {
		if sameSize {
			draw.Copy(dst, dr.Min, src, sr, draw.Src, nil)
		} else {
			draw.ApproxBiLinear.Scale(dst, dr, src, sr, draw.Src, nil)
		}
		return
	}

	var interp draw.Transformer = draw.ApproxBiLinear
	if sameSize {
		interp = draw.NearestNeighbor
	}
	interp.Transform(dst, MirrorTransform(sr, dr.Dx(), dr.Dy()), src, sr, draw.Src, nil)
}

// MirrorTransform maps src onto a w×h destination with x' = w - x.
func MirrorTransform(sr image.Rectangle, w, h int) f64.Aff3 {
	sx := float64(w) / float64(sr.Dx())
	sy := float64(h) / float64(sr.Dy())
	return f64.Aff3{
		-sx, 0, float64(w) + sx*float64(sr.Min.X),
		0, sy, -sy * float64(sr.Min.Y),
	}
}

// EncodeJPEG compresses img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
