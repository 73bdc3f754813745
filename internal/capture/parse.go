package capture

import (
	"fmt"
	"os"
	"strings"
)

// ParseSource builds a Source from a -source flag value:
//
//	pattern              synthetic color bars
//	http(s)://...        MJPEG network camera
//	mjpeg:<url>          same, explicit
//	dir:<path> or <path> directory of still images
func ParseSource(raw string, fps float64) (Source, error) {
	switch {
	case raw == "" || raw == "pattern":
		return &PatternSource{FPS: fps}, nil
	case strings.HasPrefix(raw, "mjpeg:"):
		return &MJPEGSource{URL: strings.TrimPrefix(raw, "mjpeg:")}, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return &MJPEGSource{URL: raw}, nil
	case strings.HasPrefix(raw, "dir:"):
		return &DirSource{Dir: strings.TrimPrefix(raw, "dir:"), FPS: fps}, nil
	}

	if info, err := os.Stat(raw); err == nil && info.IsDir() {
		return &DirSource{Dir: raw, FPS: fps}, nil
	}
	return nil, fmt.Errorf("unknown capture source %q", raw)
}
