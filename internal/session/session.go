package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/pkg/types"
)

// Session is one acquisition of the capture source. It lives from a
// successful Start to the next Stop and is owned by the Controller.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time

	stream  capture.Stream
	buffer  *capture.FrameBuffer
	quality int

	inFlight atomic.Bool
	stopped  atomic.Bool
	seq      atomic.Uint64

	release context.CancelFunc // ends the stream context

	// tick loop, replaced on config changes; guarded by Controller.opMu
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

func newSession(stream capture.Stream, buffer *capture.FrameBuffer, cfg Config) *Session {
	return &Session{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		stream:    stream,
		buffer:    buffer,
		quality:   cfg.JPEGQuality,
	}
}

// InFlight reports whether a detect request is outstanding.
func (s *Session) InFlight() bool { return s.inFlight.Load() }

// capture snapshots the latest stream frame into the frame buffer and encodes it.
// The mirror flag is read per capture and recorded on the frame.
func (s *Session) capture(mirror bool) (*types.CapturedFrame, bool, error) {
	frame, ok := s.stream.Latest()
	if !ok || frame.Image == nil {
		return nil, false, nil
	}

	img := s.buffer.Snapshot(frame.Image, mirror)
	data, err := capture.EncodeJPEG(img, s.quality)
	if err != nil {
		return nil, true, err
	}
	return &types.CapturedFrame{
		Image:      img,
		JPEG:       data,
		Mirrored:   mirror,
		Seq:        s.seq.Add(1),
		CapturedAt: time.Now(),
	}, true, nil
}
