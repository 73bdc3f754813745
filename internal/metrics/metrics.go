package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the capture loop counters
type Metrics struct {
	// Tick accounting
	TicksFired   atomic.Uint64
	TicksDropped atomic.Uint64 // Skipped because a request was still in flight
	TicksIdle    atomic.Uint64 // Fired with no active stream

	// Capture and upload
	FramesCaptured    atomic.Uint64
	EncodeErrors      atomic.Uint64
	RequestsSent      atomic.Uint64
	RequestsSucceeded atomic.Uint64
	DetectionErrors   atomic.Uint64
	TransportErrors   atomic.Uint64
	InFlight          atomic.Uint64 // 0 or 1

	// Results
	FacesLast        atomic.Uint64
	FacesTotal       atomic.Uint64
	RequestLatencyMs atomic.Uint64 // Latency of the last completed request

	// Session lifecycle
	SessionActive   atomic.Uint64 // 0 = idle, 1 = running
	SessionsStarted atomic.Uint64
	AcquireFailures atomic.Uint64

	// Monitor fan-out
	StreamClients   atomic.Uint64
	EventsPublished atomic.Uint64
	EventsDropped   atomic.Uint64

	// MQTT emitter
	MQTTPublished atomic.Uint64
	MQTTErrors    atomic.Uint64
	MQTTConnected atomic.Uint64

	latency  prometheus.Histogram
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "facecam_detect_request_seconds",
			Help:    "Round-trip time of POST /detect",
			Buckets: []float64{0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2},
		}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) gauge(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	m.gauge("facecam_ticks_fired_total", "Total capture loop ticks", &m.TicksFired)
	m.gauge("facecam_ticks_dropped_total", "Ticks skipped because a request was in flight", &m.TicksDropped)
	m.gauge("facecam_ticks_idle_total", "Ticks fired without an active stream", &m.TicksIdle)

	m.gauge("facecam_frames_captured_total", "Frames snapshotted into the frame buffer", &m.FramesCaptured)
	m.gauge("facecam_encode_errors_total", "Frame buffer JPEG encode failures", &m.EncodeErrors)
	m.gauge("facecam_requests_sent_total", "Total POST /detect requests issued", &m.RequestsSent)
	m.gauge("facecam_requests_succeeded_total", "Total POST /detect requests answered with 2xx", &m.RequestsSucceeded)
	m.gauge("facecam_detection_errors_total", "Total non-2xx answers from /detect", &m.DetectionErrors)
	m.gauge("facecam_transport_errors_total", "Total network or decode failures talking to /detect", &m.TransportErrors)
	m.gauge("facecam_request_in_flight", "Detect request outstanding (0 or 1)", &m.InFlight)

	m.gauge("facecam_faces_last", "Faces in the last detection response", &m.FacesLast)
	m.gauge("facecam_faces_total", "Faces summed over all detection responses", &m.FacesTotal)
	m.gauge("facecam_request_latency_ms", "Latency of the last detect request in milliseconds", &m.RequestLatencyMs)

	m.gauge("facecam_session_active", "Capture session running (0=idle, 1=running)", &m.SessionActive)
	m.gauge("facecam_sessions_started_total", "Capture sessions started", &m.SessionsStarted)
	m.gauge("facecam_acquire_failures_total", "Capture device acquisition failures", &m.AcquireFailures)

	m.gauge("facecam_stream_clients", "Connected MJPEG clients", &m.StreamClients)
	m.gauge("facecam_events_published_total", "Detection events delivered to sinks", &m.EventsPublished)
	m.gauge("facecam_events_dropped_total", "Detection events dropped by slow sinks", &m.EventsDropped)

	m.gauge("facecam_mqtt_published_total", "Messages published to the MQTT broker", &m.MQTTPublished)
	m.gauge("facecam_mqtt_errors_total", "MQTT publish failures and queue overflows", &m.MQTTErrors)
	m.gauge("facecam_mqtt_connected", "MQTT broker connection up (0 or 1)", &m.MQTTConnected)

	m.registry.MustRegister(m.latency)
}

// ObserveRequest records the outcome latency of one detect request
func (m *Metrics) ObserveRequest(d time.Duration) {
	m.RequestLatencyMs.Store(uint64(d.Milliseconds()))
	m.latency.Observe(d.Seconds())
}

// ObserveFaces records the face count of a successful response
func (m *Metrics) ObserveFaces(count int) {
	if count < 0 {
		count = 0
	}
	m.FacesLast.Store(uint64(count))
	m.FacesTotal.Add(uint64(count))
}

// SetInFlight mirrors the session in-flight flag
func (m *Metrics) SetInFlight(v bool) {
	m.InFlight.Store(boolToUint(v))
}

// SetSessionActive mirrors the controller state
func (m *Metrics) SetSessionActive(v bool) {
	m.SessionActive.Store(boolToUint(v))
}

// Gatherer exposes the private registry
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolToUint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
