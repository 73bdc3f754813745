package annotate

import "github.com/dj-oyu/facecam/pkg/types"

// ReflectBox maps a box through x' = w - x. Applying it twice is the identity.
func ReflectBox(b types.Box, w float64) types.Box {
	b.X1, b.X2 = w-b.X2, w-b.X1
	return b
}

// NeedsReflection decides whether boxes must be reflected at draw time.
// Boxes are in the pixel space of the uploaded frame; they only need flipping
// when the display orientation differs from the orientation at capture.
func NeedsReflection(capturedMirrored, displayMirrored bool) bool {
	return capturedMirrored != displayMirrored
}
