package webmonitor

import (
	"sync"
	"time"

	"github.com/dj-oyu/facecam/pkg/types"
)

// Monitor keeps the statistics shown by /api/status: streamed frame rate and
// a short history of detection events with at least one face.
type Monitor struct {
	targetFPS   int
	historySize int

	mu              sync.Mutex
	framesStreamed  uint64
	windowStart     time.Time
	windowFrames    int
	currentFPS      float64
	detectionEvents uint64
	latest          *types.DetectionEvent
	history         []types.DetectionEvent
}

// NewMonitor creates a Monitor with the given target FPS and history size.
func NewMonitor(targetFPS, historySize int) *Monitor {
	return &Monitor{
		targetFPS:   targetFPS,
		historySize: historySize,
		windowStart: time.Now(),
	}
}

// RecordFrame counts one frame sent to MJPEG clients.
func (m *Monitor) RecordFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.framesStreamed++
	m.windowFrames++
	if elapsed := time.Since(m.windowStart); elapsed >= time.Second {
		m.currentFPS = float64(m.windowFrames) / elapsed.Seconds()
		m.windowFrames = 0
		m.windowStart = time.Now()
	}
}

// RecordDetection stores a detection event.
func (m *Monitor) RecordDetection(ev types.DetectionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.detectionEvents++
	m.latest = &ev
	if ev.Count > 0 {
		m.history = append([]types.DetectionEvent{ev}, m.history...)
		if len(m.history) > m.historySize {
			m.history = m.history[:m.historySize]
		}
	}
}

// Snapshot returns the stats, the latest event and a copy of the history.
func (m *Monitor) Snapshot() (MonitorStats, *types.DetectionEvent, []types.DetectionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MonitorStats{
		FramesStreamed:  m.framesStreamed,
		CurrentFPS:      m.currentFPS,
		TargetFPS:       m.targetFPS,
		DetectionEvents: m.detectionEvents,
	}

	var latest *types.DetectionEvent
	if m.latest != nil {
		cp := *m.latest
		latest = &cp
	}
	history := make([]types.DetectionEvent, len(m.history))
	copy(history, m.history)
	return stats, latest, history
}
