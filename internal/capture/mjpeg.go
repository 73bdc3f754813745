package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // MJPEG parts
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dj-oyu/facecam/internal/logger"
)

// MJPEGSource reads a multipart/x-mixed-replace JPEG stream, the format most
// network cameras (and facecam's own /stream) serve.
// The camera negotiates its own resolution; the ideal size is ignored.
type MJPEGSource struct {
	URL    string
	Client *http.Client
}

// Name implements Source.
func (m *MJPEGSource) Name() string { return "mjpeg " + m.URL }

// Open implements Source.
func (m *MJPEGSource) Open(ctx context.Context, _ image.Point) (Stream, error) {
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, m.URL, nil)
	if err != nil {
		cancel()
		return nil, &PermissionError{Source: m.Name(), Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, &PermissionError{Source: m.Name(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, &PermissionError{Source: m.Name(), Err: fmt.Errorf("camera answered %s", resp.Status)}
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return nil, &PermissionError{
			Source: m.Name(),
			Err:    fmt.Errorf("not an MJPEG stream (content-type %q)", resp.Header.Get("Content-Type")),
		}
	}

	st := &mjpegStream{
		frameStore: newFrameStore(),
		body:       resp.Body,
		cancel:     cancel,
		name:       m.Name(),
	}
	go st.read(multipart.NewReader(resp.Body, params["boundary"]))
	return st, nil
}

type mjpegStream struct {
	*frameStore
	body   io.ReadCloser
	cancel context.CancelFunc
	name   string
}

func (s *mjpegStream) read(mr *multipart.Reader) {
	defer s.body.Close()
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			s.fail(fmt.Errorf("mjpeg read: %w", err))
			return
		}

		img, _, err := image.Decode(part)
		part.Close()
		if err != nil {
			logger.Debug("Capture", "%s: skipping undecodable part: %v", s.name, err)
			continue
		}
		s.publish(img)
	}
}

// Close implements Stream.
func (s *mjpegStream) Close() error {
	s.cancel()
	s.shutdown()
	return nil
}
