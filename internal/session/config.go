package session

import (
	"time"

	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/internal/detect"
)

const (
	// MinInterval is the floor for the tick period.
	MinInterval = 200 * time.Millisecond
	// DefaultInterval is used when no interval is configured.
	DefaultInterval = 400 * time.Millisecond
	// DefaultAcquireTimeout bounds how long Start waits for the first frame.
	DefaultAcquireTimeout = 10 * time.Second
	// DefaultBaseURL is where the detection service listens by default.
	DefaultBaseURL = "http://127.0.0.1:8000"
)

// Config is the operator-facing configuration of the capture loop.
type Config struct {
	BaseURL        string        `json:"base_url"`
	Interval       time.Duration `json:"-"`
	Mirror         bool          `json:"mirror"`
	AcquireTimeout time.Duration `json:"-"`
	JPEGQuality    int           `json:"-"`
}

// DefaultConfig returns the defaults: local detector, 400ms, mirrored selfie view.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Interval:       DefaultInterval,
		Mirror:         true,
		AcquireTimeout: DefaultAcquireTimeout,
		JPEGQuality:    capture.DefaultJPEGQuality,
	}
}

// ClampInterval applies the default to an unset interval and the floor to the rest.
// It back-fills zero-value configs; operator input goes through FloorInterval.
func ClampInterval(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultInterval
	}
	return FloorInterval(d)
}

// FloorInterval raises an explicitly requested interval to MinInterval.
// An explicit zero or negative value means "as fast as allowed".
func FloorInterval(d time.Duration) time.Duration {
	return max(d, MinInterval)
}

// normalize back-fills zero values and enforces the interval floor.
func (c Config) normalize() Config {
	def := DefaultConfig()
	c.BaseURL = detect.NormalizeBaseURL(c.BaseURL)
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	c.Interval = ClampInterval(c.Interval)
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
	return c
}

// IntervalMS returns the tick period in milliseconds.
func (c Config) IntervalMS() int64 {
	return c.Interval.Milliseconds()
}
