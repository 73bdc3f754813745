package webmonitor

import (
	"time"

	"github.com/dj-oyu/facecam/internal/session"
	"github.com/dj-oyu/facecam/pkg/types"
)

// ConfigPayload is the JSON shape of GET/POST /api/config.
// Pointer fields let a POST update a subset.
type ConfigPayload struct {
	BaseURL    *string `json:"base_url,omitempty"`
	IntervalMS *int64  `json:"interval_ms,omitempty"`
	Mirror     *bool   `json:"mirror,omitempty"`
}

func configPayload(cfg session.Config) ConfigPayload {
	base, interval, mirror := cfg.BaseURL, cfg.IntervalMS(), cfg.Mirror
	return ConfigPayload{BaseURL: &base, IntervalMS: &interval, Mirror: &mirror}
}

// apply merges the set fields into cfg.
func (p ConfigPayload) apply(cfg session.Config) session.Config {
	if p.BaseURL != nil {
		cfg.BaseURL = *p.BaseURL
	}
	if p.IntervalMS != nil {
		cfg.Interval = session.FloorInterval(time.Duration(*p.IntervalMS) * time.Millisecond)
	}
	if p.Mirror != nil {
		cfg.Mirror = *p.Mirror
	}
	return cfg
}

// MonitorStats summarizes what the monitor has served.
type MonitorStats struct {
	FramesStreamed  uint64  `json:"frames_streamed"`
	CurrentFPS      float64 `json:"current_fps"`
	TargetFPS       int     `json:"target_fps"`
	StreamClients   uint64  `json:"stream_clients"`
	DetectionEvents uint64  `json:"detection_events"`
}

// LoopStats is the capture loop subset of the metrics.
type LoopStats struct {
	TicksFired      uint64 `json:"ticks_fired"`
	TicksDropped    uint64 `json:"ticks_dropped"`
	RequestsSent    uint64 `json:"requests_sent"`
	DetectionErrors uint64 `json:"detection_errors"`
	TransportErrors uint64 `json:"transport_errors"`
	InFlight        bool   `json:"in_flight"`
	LastLatencyMS   uint64 `json:"last_latency_ms"`
}

// StatusPayload is the JSON shape of /api/status and its SSE stream.
type StatusPayload struct {
	Status          session.Status         `json:"status"`
	Config          ConfigPayload          `json:"config"`
	Source          string                 `json:"source"`
	Monitor         MonitorStats           `json:"monitor"`
	Loop            LoopStats              `json:"loop"`
	LatestDetection *types.DetectionEvent  `json:"latest_detection"`
	History         []types.DetectionEvent `json:"detection_history"`
	Timestamp       float64                `json:"timestamp"`
}
