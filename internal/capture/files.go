package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // still frames
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dj-oyu/facecam/internal/logger"
)

// DirSource replays the still images of a directory in name order, looping.
type DirSource struct {
	Dir string
	FPS float64
}

// Name implements Source.
func (d *DirSource) Name() string { return "dir " + d.Dir }

// Open implements Source.
func (d *DirSource) Open(ctx context.Context, _ image.Point) (Stream, error) {
	paths, err := listImages(d.Dir)
	if err != nil {
		return nil, &PermissionError{Source: d.Name(), Err: err}
	}
	if len(paths) == 0 {
		return nil, &PermissionError{Source: d.Name(), Err: errors.New("no images found")}
	}

	first, err := decodeFile(paths[0])
	if err != nil {
		return nil, &PermissionError{Source: d.Name(), Err: err}
	}

	st := &dirStream{frameStore: newFrameStore(), paths: paths}
	st.publish(first)

	go st.run(ctx, paceInterval(d.FPS))
	return st, nil
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

type dirStream struct {
	*frameStore
	paths []string
}

func (s *dirStream) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := 1
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.done:
			return
		case <-ticker.C:
			if len(s.paths) == 1 {
				continue
			}
			path := s.paths[next%len(s.paths)]
			next++
			img, err := decodeFile(path)
			if err != nil {
				logger.Warn("Capture", "skipping %s: %v", path, err)
				continue
			}
			s.publish(img)
		}
	}
}

// Close implements Stream.
func (s *dirStream) Close() error {
	s.shutdown()
	return nil
}
