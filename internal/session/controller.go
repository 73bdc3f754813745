// Package session runs the capture loop: it owns the active capture session,
// fires ticks, uploads frames to the detector and hands results to the renderer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/dj-oyu/facecam/internal/annotate"
	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/internal/detect"
	"github.com/dj-oyu/facecam/internal/logger"
	"github.com/dj-oyu/facecam/internal/metrics"
	"github.com/dj-oyu/facecam/pkg/types"
)

// HealthChecker probes the detector.
type HealthChecker interface {
	Health(ctx context.Context, baseURL string) (detect.HealthResult, error)
}

// Sink receives a DetectionEvent after every successful tick.
// Publish must not block.
type Sink interface {
	Publish(event types.DetectionEvent)
}

// Options wires the Controller's collaborators. Zero values are filled in.
type Options struct {
	Source    capture.Source
	Detector  detect.Detector
	Health    HealthChecker
	Renderer  *annotate.Renderer
	Metrics   *metrics.Metrics
	NewTicker TickerFactory
}

// Controller owns at most one Session at a time.
type Controller struct {
	source    capture.Source
	detector  detect.Detector
	health    HealthChecker
	renderer  *annotate.Renderer
	metrics   *metrics.Metrics
	newTicker TickerFactory

	// opMu serializes Start, Stop and SetConfig.
	opMu sync.Mutex

	mu        sync.Mutex
	cfg       Config
	sess      *Session
	status    Status
	sinks     []Sink
	listeners []func(Status)
}

// NewController creates an idle controller.
func NewController(cfg Config, opts Options) *Controller {
	if opts.Source == nil {
		opts.Source = &capture.PatternSource{}
	}
	if opts.Detector == nil {
		opts.Detector = detect.NewClient(0)
	}
	if opts.Health == nil {
		if hc, ok := opts.Detector.(HealthChecker); ok {
			opts.Health = hc
		} else {
			opts.Health = detect.NewClient(0)
		}
	}
	if opts.Renderer == nil {
		opts.Renderer = annotate.NewRenderer(capture.DefaultIdeal)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}

	return &Controller{
		source:    opts.Source,
		detector:  opts.Detector,
		health:    opts.Health,
		renderer:  opts.Renderer,
		metrics:   opts.Metrics,
		newTicker: opts.NewTicker,
		cfg:       cfg.normalize(),
		status: Status{
			State:     StateIdle,
			Message:   MsgStopped,
			OK:        true,
			UpdatedAt: time.Now(),
		},
	}
}

// AddSink registers a receiver for detection events.
func (c *Controller) AddSink(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

// OnStatus registers a callback invoked after every status change.
func (c *Controller) OnStatus(fn func(Status)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Config returns the current configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Renderer returns the annotation renderer.
func (c *Controller) Renderer() *annotate.Renderer { return c.renderer }

// Metrics returns the controller's counters.
func (c *Controller) Metrics() *metrics.Metrics { return c.metrics }

// Source returns the capture source.
func (c *Controller) Source() capture.Source { return c.source }

// Current returns the active session, or nil when idle.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Start acquires the capture source and begins ticking. A running session
// is fully stopped first. Acquisition failures are returned as
// *capture.PermissionError and leave the controller in StateFailed.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Current() != nil {
		c.stop()
	}

	cfg := c.Config()
	c.update(func(st *Status) {
		st.State = StateAcquiring
		st.Message = msgAcquiring
		st.OK = true
		st.Detail = ""
		st.Faces = 0
		st.SessionID = ""
	})

	s, size, err := c.acquire(ctx, cfg)
	if err != nil {
		c.metrics.AcquireFailures.Add(1)
		logger.Warn("Session", "Camera acquisition failed: %v", err)
		c.update(func(st *Status) {
			st.State = StateFailed
			st.Message = MsgPermission
			st.OK = false
			st.Detail = err.Error()
		})
		return err
	}

	c.renderer.Reset(size)

	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()

	c.startLoop(s, cfg.Interval)
	c.metrics.SessionsStarted.Add(1)
	c.metrics.SetSessionActive(true)

	logger.Info("Session", "Session %s started (%dx%d, interval=%v, mirror=%v, source=%s)",
		s.ID, size.X, size.Y, cfg.Interval, cfg.Mirror, c.source.Name())
	c.update(func(st *Status) {
		st.State = StateRunning
		st.Message = MsgCameraStarted
		st.OK = true
		st.Detail = MsgCameraStarted
		st.SessionID = s.ID.String()
	})
	return nil
}

// acquire opens the source and waits for its dimensions within the acquire timeout.
func (c *Controller) acquire(ctx context.Context, cfg Config) (*Session, image.Point, error) {
	name := c.source.Name()

	acqCtx, cancelAcq := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancelAcq()

	// The stream outlives the acquire context, but must not outlive a timeout.
	streamCtx, release := context.WithCancel(context.Background())
	unhook := context.AfterFunc(acqCtx, release)

	stream, err := c.source.Open(streamCtx, capture.DefaultIdeal)
	if err != nil {
		unhook()
		release()
		return nil, image.Point{}, asPermissionError(name, err)
	}

	size, err := stream.Ready(acqCtx)
	if err == nil && (size.X <= 0 || size.Y <= 0) {
		err = fmt.Errorf("source reported no frame dimensions")
	}
	if err == nil && !unhook() {
		err = acqCtx.Err()
	}
	if err != nil {
		unhook()
		stream.Close()
		release()
		return nil, image.Point{}, asPermissionError(name, err)
	}

	s := newSession(stream, capture.NewFrameBuffer(size), cfg)
	s.release = release
	return s, size, nil
}

func asPermissionError(name string, err error) error {
	var perr *capture.PermissionError
	if errors.As(err, &perr) {
		return err
	}
	return &capture.PermissionError{Source: name, Err: err}
}

// Stop ends the active session, if any, and reports "stopped".
// It never fails and is a no-op apart from the status when idle.
func (c *Controller) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stop()
}

func (c *Controller) stop() {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	if s != nil {
		// The in-flight guard is per session. A request of the old session may
		// still be open after a restart; its response is discarded in finish.
		s.stopped.Store(true)
		s.inFlight.Store(false)
	}
	c.renderer.Clear()
	c.mu.Unlock()

	if s != nil {
		c.stopLoop(s)
		if err := s.stream.Close(); err != nil {
			logger.Warn("Session", "Closing stream of session %s: %v", s.ID, err)
		}
		if s.release != nil {
			s.release()
		}
		logger.Info("Session", "Session %s stopped", s.ID)
	}

	c.metrics.SetSessionActive(false)
	c.metrics.SetInFlight(false)
	c.update(func(st *Status) {
		st.State = StateIdle
		st.Message = MsgStopped
		st.OK = true
		st.Faces = 0
		st.SessionID = ""
	})
}

// SetConfig applies a new configuration. When running, the tick loop is
// restarted with the new interval. A mirror change takes effect on the next
// capture and on the live view immediately; the overlay drawn in the old
// orientation is cleared.
func (c *Controller) SetConfig(cfg Config) Config {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cfg = cfg.normalize()
	c.mu.Lock()
	flipped := c.cfg.Mirror != cfg.Mirror
	c.cfg = cfg
	s := c.sess
	if s != nil && flipped {
		c.renderer.Clear()
	}
	c.mu.Unlock()

	if s != nil {
		c.stopLoop(s)
		c.startLoop(s, cfg.Interval)
		logger.Info("Session", "Tick loop of session %s restarted (interval=%v)", s.ID, cfg.Interval)
	}
	return cfg
}

// startLoop and stopLoop are called with opMu held.
func (c *Controller) startLoop(s *Session, interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.loopCancel = cancel
	s.loopDone = done

	ticker := c.newTicker(ClampInterval(interval))
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				c.tick(s)
			}
		}
	}()
}

func (c *Controller) stopLoop(s *Session) {
	if s.loopCancel == nil {
		return
	}
	s.loopCancel()
	<-s.loopDone
	s.loopCancel = nil
	s.loopDone = nil
}

// tick captures one frame and starts its upload unless a request is outstanding.
func (c *Controller) tick(s *Session) {
	c.metrics.TicksFired.Add(1)
	if s.stopped.Load() {
		c.metrics.TicksIdle.Add(1)
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		c.metrics.TicksDropped.Add(1)
		logger.Debug("Session", "Tick dropped, request still in flight")
		return
	}

	cfg := c.Config()
	frame, ok, err := s.capture(cfg.Mirror)
	if err != nil {
		c.metrics.EncodeErrors.Add(1)
		logger.Warn("Session", "Frame encode failed: %v", err)
		s.inFlight.Store(false)
		return
	}
	if !ok {
		c.metrics.TicksIdle.Add(1)
		s.inFlight.Store(false)
		return
	}

	c.metrics.FramesCaptured.Add(1)
	c.metrics.RequestsSent.Add(1)
	c.metrics.SetInFlight(true)

	go c.upload(s, frame, cfg.BaseURL)
}

func (c *Controller) upload(s *Session, frame *types.CapturedFrame, base string) {
	start := time.Now()
	resp, err := c.detector.Detect(context.Background(), base, frame.JPEG)
	latency := time.Since(start)
	c.metrics.ObserveRequest(latency)

	c.finish(s, frame, resp, err, latency)
}

// finish applies the outcome of one request. A response of a session that is
// no longer current is discarded without drawing.
func (c *Controller) finish(s *Session, frame *types.CapturedFrame, resp *types.DetectionResponse, err error, latency time.Duration) {
	c.mu.Lock()
	defer s.inFlight.Store(false)

	if c.sess != s || s.stopped.Load() {
		c.mu.Unlock()
		logger.Debug("Session", "Discarding late response of session %s", s.ID)
		return
	}
	c.metrics.SetInFlight(false)

	if err != nil {
		c.renderer.Clear()
		msg, detail := MsgRequestError, err.Error()
		var derr *detect.DetectionError
		if errors.As(err, &derr) {
			c.metrics.DetectionErrors.Add(1)
			msg = MsgDetectFailed
			if len(derr.Body) > 0 {
				detail = string(derr.Body)
			}
		} else {
			c.metrics.TransportErrors.Add(1)
		}
		logger.Warn("Session", "Tick %d of session %s: %v", frame.Seq, s.ID, err)
		c.setLocked(func(st *Status) {
			st.Message = msg
			st.OK = false
			st.Detail = detail
			st.Faces = 0
		})
		status, listeners := c.status, c.listeners
		c.mu.Unlock()
		notify(listeners, status)
		return
	}

	// boxes are in the captured orientation; the display may have flipped since
	c.renderer.DrawBoxes(resp.Faces, annotate.NeedsReflection(frame.Mirrored, c.cfg.Mirror))
	c.metrics.RequestsSucceeded.Add(1)
	c.metrics.ObserveFaces(resp.Count)

	detail, _ := json.MarshalIndent(resp, "", "  ")
	c.setLocked(func(st *Status) {
		st.Message = fmt.Sprintf(msgRunningPattern, resp.Count)
		st.OK = true
		st.Detail = string(detail)
		st.Faces = resp.Count
	})

	size := frame.Image.Bounds().Size()
	event := types.DetectionEvent{
		SessionID: s.ID.String(),
		Seq:       frame.Seq,
		Count:     resp.Count,
		Faces:     resp.Faces,
		Mirrored:  frame.Mirrored,
		Width:     size.X,
		Height:    size.Y,
		LatencyMS: latency.Milliseconds(),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	status, listeners, sinks := c.status, c.listeners, c.sinks
	c.mu.Unlock()

	notify(listeners, status)
	for _, sink := range sinks {
		sink.Publish(event)
	}
}

// HealthCheck probes GET {base}/health and reports the answer as status.
func (c *Controller) HealthCheck(ctx context.Context) Status {
	base := c.Config().BaseURL
	res, err := c.health.Health(ctx, base)
	if err != nil {
		logger.Warn("Session", "Health check failed: %v", err)
		return c.update(func(st *Status) {
			st.Message = MsgHealthFailed
			st.OK = false
			st.Detail = err.Error()
		})
	}
	return c.update(func(st *Status) {
		st.Message = fmt.Sprintf(msgHealthPattern, res.Body)
		st.OK = res.OK()
		st.Detail = res.Body
	})
}

// ClearOverlay erases the annotation layer and the diagnostic detail.
func (c *Controller) ClearOverlay() Status {
	c.renderer.Clear()
	return c.update(func(st *Status) {
		st.Message = MsgCleared
		st.OK = true
		st.Detail = ""
	})
}

// LiveView composites the latest frame of the active session with the
// annotation layer. It returns nil while idle or before the first frame.
func (c *Controller) LiveView() *image.RGBA {
	s := c.Current()
	if s == nil {
		return nil
	}
	frame, ok := s.stream.Latest()
	if !ok || frame.Image == nil {
		return nil
	}
	return c.renderer.Composite(frame.Image, c.Config().Mirror)
}

func (c *Controller) update(fn func(*Status)) Status {
	c.mu.Lock()
	c.setLocked(fn)
	status, listeners := c.status, c.listeners
	c.mu.Unlock()

	notify(listeners, status)
	return status
}

func (c *Controller) setLocked(fn func(*Status)) {
	fn(&c.status)
	c.status.UpdatedAt = time.Now()
}

func notify(listeners []func(Status), st Status) {
	for _, fn := range listeners {
		fn(st)
	}
}
