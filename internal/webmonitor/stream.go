package webmonitor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/internal/logger"
)

// blankTimeout is how long an MJPEG client waits for a frame before the
// blank frame is repeated to keep the connection alive.
const blankTimeout = 5 * time.Second

// blankJPEG renders color bars shown while no session is running.
func blankJPEG(width, height, quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
	colors := []color.RGBA{
		{R: 255, G: 255, B: 255, A: 255},
		{R: 255, G: 255, B: 0, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 255, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
		{R: 0, G: 0, B: 255, A: 255},
		{R: 0, G: 0, B: 0, A: 255},
	}

	barWidth := width / len(colors)
	for i, c := range colors {
		x1 := (i + 1) * barWidth
		if i == len(colors)-1 {
			x1 = width
		}
		bar := image.Rect(i*barWidth, 0, x1, height)
		draw.Draw(img, bar, image.NewUniform(c), image.Point{}, draw.Src)
	}

	return capture.EncodeJPEG(img, quality)
}

// streamMJPEGFromChannel streams MJPEG from a channel (fanout pattern).
func streamMJPEGFromChannel(ctx context.Context, w http.ResponseWriter, frameCh <-chan []byte, blank []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	timer := time.NewTimer(blankTimeout)
	defer timer.Stop()

	for {
		var jpegData []byte
		select {
		case <-ctx.Done():
			return
		case data, ok := <-frameCh:
			if !ok {
				// Channel closed, client should disconnect
				return
			}
			jpegData = data
			if jpegData == nil {
				jpegData = blank
			}
		case <-timer.C:
			jpegData = blank
		}
		timer.Reset(blankTimeout)

		header := fmt.Sprintf("--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData))
		if _, err := w.Write([]byte(header)); err != nil {
			logger.Debug("MJPEG", "Client disconnected during write: %v", err)
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			logger.Debug("MJPEG", "Client disconnected during frame write: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during delimiter write: %v", err)
			return
		}
		flusher.Flush()
	}
}

// wantsProtobuf reports whether the client asked for protobuf payloads.
func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf") ||
		r.URL.Query().Get("format") == "protobuf"
}

// sseStream writes pre-serialized events to an EventSource client.
type sseStream struct {
	w           http.ResponseWriter
	flusher     http.Flusher
	useProtobuf bool
	name        string
}

func newSSEStream(w http.ResponseWriter, useProtobuf bool, name string) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseStream{w: w, flusher: flusher, useProtobuf: useProtobuf, name: name}, true
}

func (s *sseStream) send(event *SerializedEvent) error {
	data := event.JSONData
	if s.useProtobuf {
		data = event.ProtobufData
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// run forwards events until the channel closes or the client goes away.
func (s *sseStream) run(ctx context.Context, eventCh <-chan *SerializedEvent, keepalive time.Duration) {
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := s.send(event); err != nil {
				logger.Debug(s.name, "Client disconnected during event write: %v", err)
				return
			}
			ticker.Reset(keepalive)
		case <-ticker.C:
			// Send keepalive comment to prevent timeout
			if _, err := fmt.Fprintf(s.w, ": keepalive\n\n"); err != nil {
				logger.Debug(s.name, "Client disconnected during keepalive: %v", err)
				return
			}
			s.flusher.Flush()
		}
	}
}
