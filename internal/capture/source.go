package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/dj-oyu/facecam/pkg/types"
)

// DefaultIdeal is the resolution requested from sources that can negotiate one.
var DefaultIdeal = image.Pt(640, 480)

// ErrStreamClosed is returned by Ready after Close.
var ErrStreamClosed = errors.New("capture: stream closed")

// Source opens capture streams.
//
// Open must fail with *PermissionError when the device is denied, missing,
// or unreachable. ctx bounds the lifetime of the returned stream.
// Open is allowed to return before any frame is known; callers use
// Stream.Ready to wait for concrete dimensions.
type Source interface {
	Name() string
	Open(ctx context.Context, ideal image.Point) (Stream, error)
}

// Stream is a running capture.
//
// Implementations must guarantee:
//   - Ready blocks until the first frame arrives, the stream fails, or ctx ends
//   - Latest is safe from any goroutine and never blocks
//   - Close is idempotent and releases the underlying device
type Stream interface {
	Ready(ctx context.Context) (image.Point, error)
	Latest() (types.Frame, bool)
	Close() error
}

// PermissionError reports that a capture device could not be acquired.
type PermissionError struct {
	Source string
	Err    error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("capture: %s denied or unavailable: %v", e.Source, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// frameStore holds the latest frame of a stream and signals readiness once.
type frameStore struct {
	mu      sync.Mutex
	frame   types.Frame
	has     bool
	seq     uint64
	err     error
	ready   chan struct{}
	readyOK sync.Once
	done    chan struct{}
	closed  sync.Once
}

func newFrameStore() *frameStore {
	return &frameStore{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (s *frameStore) publish(img image.Image) {
	s.mu.Lock()
	s.seq++
	s.frame = types.Frame{Image: img, Timestamp: time.Now(), Seq: s.seq}
	s.has = true
	s.mu.Unlock()
	s.readyOK.Do(func() { close(s.ready) })
}

// fail records a terminal error. Ready callers still waiting get it.
func (s *frameStore) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.shutdown()
}

func (s *frameStore) shutdown() {
	s.closed.Do(func() { close(s.done) })
}

func (s *frameStore) Ready(ctx context.Context) (image.Point, error) {
	select {
	case <-s.ready:
		f, _ := s.Latest()
		return image.Pt(f.Width(), f.Height()), nil
	case <-s.done:
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err == nil {
			err = ErrStreamClosed
		}
		return image.Point{}, err
	case <-ctx.Done():
		return image.Point{}, ctx.Err()
	}
}

func (s *frameStore) Latest() (types.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.has
}

// paceInterval converts a frame rate to a generator period (30fps when unset).
func paceInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 30
	}
	return time.Duration(float64(time.Second) / fps)
}
