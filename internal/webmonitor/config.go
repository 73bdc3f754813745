package webmonitor

import "time"

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr              string
	TargetFPS         int           // MJPEG frame rate of /stream
	StatusInterval    time.Duration // periodic status push on /api/status/stream
	KeepaliveInterval time.Duration // SSE comment / websocket ping period
	HistorySize       int           // detection events kept for /api/status
	ProxyTimeout      time.Duration // /api/records* upstream timeout
	JPEGQuality       int
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		TargetFPS:         15,
		StatusInterval:    2 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		HistorySize:       8,
		ProxyTimeout:      5 * time.Second,
		JPEGQuality:       75,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = def.TargetFPS
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = def.StatusInterval
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.ProxyTimeout <= 0 {
		c.ProxyTimeout = def.ProxyTimeout
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
	return c
}

func (c Config) frameInterval() time.Duration {
	return time.Second / time.Duration(c.TargetFPS)
}
