package types

import (
	"image"
	"time"
)

// Frame is a single decoded frame delivered by a capture stream
type Frame struct {
	Image     image.Image // Decoded pixels, native resolution
	Timestamp time.Time   // When the frame arrived from the source
	Seq       uint64      // Sequential frame number within the stream
}

// Width returns the frame width in pixels
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// CapturedFrame is a snapshot taken by the capture loop and encoded for upload.
// Mirrored is recorded once at capture time and travels with the frame so the
// render step never has to guess how the uploaded pixels were oriented.
type CapturedFrame struct {
	Image      *image.RGBA // Frame Buffer contents after the optional mirror
	JPEG       []byte      // Encoded upload payload
	Mirrored   bool        // True if Image was flipped horizontally
	Seq        uint64      // Tick sequence within the session
	CapturedAt time.Time
}
