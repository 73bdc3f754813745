package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/internal/detect"
	"github.com/dj-oyu/facecam/internal/logger"
	"github.com/dj-oyu/facecam/internal/metrics"
	"github.com/dj-oyu/facecam/internal/session"
)

// RecordStore reads the detection history kept by the detector service.
type RecordStore interface {
	Records(ctx context.Context, baseURL string, limit, offset int) (*detect.RecordPage, error)
	Record(ctx context.Context, baseURL string, id int64) (*detect.Record, error)
	Stats(ctx context.Context, baseURL string) (*detect.RecordStats, error)
}

// Server serves the control page, live streams and the control API.
type Server struct {
	cfg        Config
	controller *session.Controller
	records    RecordStore
	metrics    *metrics.Metrics
	monitor    *Monitor

	frames     *FrameBroadcaster
	detections *DetectionBroadcaster
	statuses   *StatusBroadcaster
}

// NewServer returns a configured monitor server and starts its broadcasters.
// records may be nil, in which case /api/records* answer 503.
func NewServer(cfg Config, controller *session.Controller, records RecordStore) (*Server, error) {
	cfg = cfg.withDefaults()

	size := controller.Renderer().Size()
	blank, err := blankJPEG(size.X, size.Y, cfg.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("render blank frame: %w", err)
	}

	m := controller.Metrics()
	monitor := NewMonitor(cfg.TargetFPS, cfg.HistorySize)

	s := &Server{
		cfg:        cfg,
		controller: controller,
		records:    records,
		metrics:    m,
		monitor:    monitor,
		frames:     NewFrameBroadcaster(controller, monitor, m, cfg.frameInterval(), cfg.JPEGQuality, blank),
		detections: NewDetectionBroadcaster(monitor, m),
	}
	s.statuses = NewStatusBroadcaster(s.statusPayload, cfg.StatusInterval)

	controller.AddSink(s.detections)
	controller.OnStatus(s.statuses.Notify)

	s.frames.Start()
	s.statuses.Start()
	logger.Info("WebMonitor", "Broadcasters started (fps=%d, status every %v)", cfg.TargetFPS, cfg.StatusInterval)

	return s, nil
}

// Close stops the broadcasters, which ends every open stream.
func (s *Server) Close() {
	s.frames.Stop()
	s.statuses.Stop()
	s.detections.Stop()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/detections/stream", s.handleDetectionsStream)
	mux.HandleFunc("/api/detections/ws", s.handleDetectionsWS)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/camera/start", s.handleCameraStart)
	mux.HandleFunc("/api/camera/stop", s.handleCameraStop)
	mux.HandleFunc("/api/overlay/clear", s.handleOverlayClear)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/records", s.handleRecords)
	mux.HandleFunc("/api/records/stats", s.handleRecordStats)
	mux.HandleFunc("/api/records/{id}", s.handleRecord)
	mux.Handle("/metrics", s.metrics.Handler())

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.frames.Subscribe()
	defer s.frames.Unsubscribe(id)
	streamMJPEGFromChannel(r.Context(), w, frameCh, s.frames.blank)
}

func (s *Server) statusPayload() StatusPayload {
	stats, latest, history := s.monitor.Snapshot()
	stats.StreamClients = s.metrics.StreamClients.Load()

	return StatusPayload{
		Status:          s.controller.Status(),
		Config:          configPayload(s.controller.Config()),
		Source:          s.controller.Source().Name(),
		Monitor:         stats,
		Loop:            s.loopStats(),
		LatestDetection: latest,
		History:         history,
		Timestamp:       float64(time.Now().UnixMilli()) / 1000,
	}
}

func (s *Server) loopStats() LoopStats {
	m := s.metrics
	return LoopStats{
		TicksFired:      m.TicksFired.Load(),
		TicksDropped:    m.TicksDropped.Load(),
		RequestsSent:    m.RequestsSent.Load(),
		DetectionErrors: m.DetectionErrors.Load(),
		TransportErrors: m.TransportErrors.Load(),
		InFlight:        m.InFlight.Load() == 1,
		LastLatencyMS:   m.RequestLatencyMs.Load(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.statuses.Subscribe()
	defer s.statuses.Unsubscribe(id)

	stream, ok := newSSEStream(w, wantsProtobuf(r), "StatusSSE")
	if !ok {
		return
	}

	// Send the current status immediately so the page does not wait a period
	first, err := serializeEvent(s.statusPayload())
	if err != nil {
		logger.Error("StatusSSE", "Serialize status: %v", err)
		return
	}
	if err := stream.send(first); err != nil {
		return
	}
	stream.run(r.Context(), eventCh, s.cfg.KeepaliveInterval)
}

func (s *Server) handleDetectionsStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.detections.Subscribe()
	defer s.detections.Unsubscribe(id)

	stream, ok := newSSEStream(w, wantsProtobuf(r), "DetectionSSE")
	if !ok {
		return
	}
	stream.run(r.Context(), eventCh, s.cfg.KeepaliveInterval)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.controller.HealthCheck(r.Context()))
}

func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.controller.Start(r.Context()); err != nil {
		code := http.StatusInternalServerError
		var perr *capture.PermissionError
		if errors.As(err, &perr) {
			code = http.StatusServiceUnavailable
		}
		writeJSONWithStatus(w, map[string]any{
			"error":  err.Error(),
			"status": s.controller.Status(),
		}, code)
		return
	}
	writeJSON(w, s.controller.Status())
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.controller.Stop()
	writeJSON(w, s.controller.Status())
}

func (s *Server) handleOverlayClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.controller.ClearOverlay())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, configPayload(s.controller.Config()))
	case http.MethodPost:
		var payload ConfigPayload
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&payload); err != nil {
			writeJSONWithStatus(w, map[string]any{"error": "Invalid config: " + err.Error()}, http.StatusBadRequest)
			return
		}
		applied := s.controller.SetConfig(payload.apply(s.controller.Config()))
		logger.Info("WebMonitor", "Config updated: base=%s interval=%dms mirror=%v", applied.BaseURL, applied.IntervalMS(), applied.Mirror)
		writeJSON(w, configPayload(applied))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) proxyContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.ProxyTimeout)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.records == nil {
		writeJSONWithStatus(w, map[string]any{"error": "records are not configured"}, http.StatusServiceUnavailable)
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	ctx, cancel := s.proxyContext(r)
	defer cancel()
	page, err := s.records.Records(ctx, s.controller.Config().BaseURL, limit, offset)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, page)
}

func (s *Server) handleRecordStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.records == nil {
		writeJSONWithStatus(w, map[string]any{"error": "records are not configured"}, http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := s.proxyContext(r)
	defer cancel()
	stats, err := s.records.Stats(ctx, s.controller.Config().BaseURL)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.records == nil {
		writeJSONWithStatus(w, map[string]any{"error": "records are not configured"}, http.StatusServiceUnavailable)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		writeJSONWithStatus(w, map[string]any{"error": "invalid record id"}, http.StatusBadRequest)
		return
	}

	ctx, cancel := s.proxyContext(r)
	defer cancel()
	rec, err := s.records.Record(ctx, s.controller.Config().BaseURL, id)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, rec)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

// writeUpstreamError relays detector errors with their status code and maps
// transport failures to 502.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var derr *detect.DetectionError
	if errors.As(err, &derr) {
		msg := derr.Message
		if msg == "" {
			msg = http.StatusText(derr.StatusCode)
		}
		writeJSONWithStatus(w, map[string]any{"error": msg}, derr.StatusCode)
		return
	}
	writeJSONWithStatus(w, map[string]any{"error": "detector unavailable: " + err.Error()}, http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
