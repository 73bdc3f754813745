package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/internal/logger"
	"github.com/dj-oyu/facecam/internal/metrics"
	"github.com/dj-oyu/facecam/internal/session"
	"github.com/dj-oyu/facecam/pkg/types"
)

// hub fans values out to subscribers. Slow subscribers miss values instead
// of blocking the producer.
type hub[T any] struct {
	name    string
	mu      sync.Mutex
	clients map[int]chan T
	nextID  int
}

func newHub[T any](name string) *hub[T] {
	return &hub[T]{name: name, clients: make(map[int]chan T)}
}

// Subscribe adds a new client and returns its channel.
func (h *hub[T]) Subscribe() (int, <-chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan T, 2) // Buffer 2 values to avoid blocking
	h.clients[id] = ch

	logger.Debug(h.name, "Client #%d subscribed (total clients: %d)", id, len(h.clients))
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (h *hub[T]) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
		logger.Debug(h.name, "Client #%d unsubscribed (remaining clients: %d)", id, len(h.clients))
	}
}

// Len returns the number of subscribers.
func (h *hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub[T]) broadcast(v T) (sent, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.clients {
		select {
		case ch <- v:
			sent++
		default:
			dropped++
		}
	}
	return sent, dropped
}

func (h *hub[T]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
}

// LiveViewer supplies the annotated live frame, nil while idle.
type LiveViewer interface {
	LiveView() *image.RGBA
}

// FrameBroadcaster renders the annotated live view at the target rate and
// fans the JPEG frames out to MJPEG clients.
type FrameBroadcaster struct {
	*hub[[]byte]
	view     LiveViewer
	monitor  *Monitor
	metrics  *metrics.Metrics
	interval time.Duration
	quality  int
	blank    []byte

	stopOnce  sync.Once
	stop      chan struct{}
	skipCount int
}

// NewFrameBroadcaster creates a broadcaster. blank is sent while no session runs.
func NewFrameBroadcaster(view LiveViewer, monitor *Monitor, m *metrics.Metrics, interval time.Duration, quality int, blank []byte) *FrameBroadcaster {
	return &FrameBroadcaster{
		hub:      newHub[[]byte]("FrameBroadcaster"),
		view:     view,
		monitor:  monitor,
		metrics:  m,
		interval: interval,
		quality:  quality,
		blank:    blank,
		stop:     make(chan struct{}),
	}
}

// Subscribe adds an MJPEG client.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	id, ch := fb.hub.Subscribe()
	fb.metrics.StreamClients.Store(uint64(fb.Len()))
	return id, ch
}

// Unsubscribe removes an MJPEG client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.hub.Unsubscribe(id)
	n := fb.Len()
	fb.metrics.StreamClients.Store(uint64(n))
	if n == 0 {
		logger.Info("FrameBroadcaster", "No clients remaining - frame generation will be skipped")
	}
}

// Start begins the frame generation loop.
func (fb *FrameBroadcaster) Start() {
	go fb.run()
}

// Stop halts the broadcaster.
func (fb *FrameBroadcaster) Stop() {
	fb.stopOnce.Do(func() {
		close(fb.stop)
		fb.closeAll()
	})
}

func (fb *FrameBroadcaster) run() {
	ticker := time.NewTicker(fb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-fb.stop:
			return
		case <-ticker.C:
		}

		if fb.Len() == 0 {
			fb.skipCount++
			if fb.skipCount%100 == 0 {
				logger.Debug("FrameBroadcaster", "No clients connected (idle for %d cycles)", fb.skipCount)
			}
			continue
		}
		fb.skipCount = 0

		sent, _ := fb.broadcast(fb.renderFrame())
		if sent > 0 {
			fb.monitor.RecordFrame()
		}
	}
}

// renderFrame encodes the current annotated view, or the blank frame while idle.
func (fb *FrameBroadcaster) renderFrame() []byte {
	img := fb.view.LiveView()
	if img == nil {
		return fb.blank
	}
	data, err := capture.EncodeJPEG(img, fb.quality)
	if err != nil {
		logger.Warn("FrameBroadcaster", "JPEG encode failed: %v", err)
		return fb.blank
	}
	return data
}

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // google.protobuf.Struct, base64 encoded for SSE
}

// RawProtobuf returns the undecorated protobuf bytes.
func (e *SerializedEvent) RawProtobuf() ([]byte, error) {
	return base64.StdEncoding.DecodeString(string(e.ProtobufData))
}

// serializeEvent encodes v as JSON and as a protobuf Struct of the same document.
func serializeEvent(v any) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}

	st := &structpb.Struct{}
	if err := st.UnmarshalJSON(jsonData); err != nil {
		return nil, fmt.Errorf("build protobuf struct: %w", err)
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// DetectionBroadcaster is the capture loop sink feeding /api/detections/*.
type DetectionBroadcaster struct {
	*hub[*SerializedEvent]
	monitor *Monitor
	metrics *metrics.Metrics
}

// NewDetectionBroadcaster creates a broadcaster for detection events.
func NewDetectionBroadcaster(monitor *Monitor, m *metrics.Metrics) *DetectionBroadcaster {
	return &DetectionBroadcaster{
		hub:     newHub[*SerializedEvent]("DetectionBroadcaster"),
		monitor: monitor,
		metrics: m,
	}
}

// Publish implements session.Sink.
func (db *DetectionBroadcaster) Publish(ev types.DetectionEvent) {
	db.monitor.RecordDetection(ev)

	if db.Len() == 0 {
		return
	}
	event, err := serializeEvent(ev)
	if err != nil {
		logger.Error("DetectionBroadcaster", "Serialize event: %v", err)
		return
	}
	sent, dropped := db.broadcast(event)
	db.metrics.EventsPublished.Add(uint64(sent))
	db.metrics.EventsDropped.Add(uint64(dropped))
}

// Stop closes all client channels.
func (db *DetectionBroadcaster) Stop() {
	db.closeAll()
}

var _ session.Sink = (*DetectionBroadcaster)(nil)

// StatusBroadcaster pushes status payloads on every change and periodically.
type StatusBroadcaster struct {
	*hub[*SerializedEvent]
	snapshot func() StatusPayload
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStatusBroadcaster creates a broadcaster for status events.
func NewStatusBroadcaster(snapshot func() StatusPayload, interval time.Duration) *StatusBroadcaster {
	return &StatusBroadcaster{
		hub:      newHub[*SerializedEvent]("StatusBroadcaster"),
		snapshot: snapshot,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the periodic status loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster.
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() {
		close(sb.stop)
		sb.closeAll()
	})
}

// Notify is registered as a controller status listener.
func (sb *StatusBroadcaster) Notify(session.Status) {
	sb.push()
}

func (sb *StatusBroadcaster) run() {
	logger.Info("StatusBroadcaster", "Starting status event broadcaster (interval=%v)...", sb.interval)
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			sb.push()
		}
	}
}

func (sb *StatusBroadcaster) push() {
	if sb.Len() == 0 {
		return
	}
	event, err := serializeEvent(sb.snapshot())
	if err != nil {
		logger.Error("StatusBroadcaster", "Serialize status: %v", err)
		return
	}
	sb.broadcast(event)
}
