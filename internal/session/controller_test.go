package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/internal/detect"
	"github.com/dj-oyu/facecam/pkg/types"
)

// --- fakes ---

type manualTicker struct {
	ch      chan time.Time
	period  time.Duration
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

type tickerSet struct {
	mu  sync.Mutex
	all []*manualTicker
}

func (ts *tickerSet) factory(d time.Duration) Ticker {
	tk := &manualTicker{ch: make(chan time.Time), period: d}
	ts.mu.Lock()
	ts.all = append(ts.all, tk)
	ts.mu.Unlock()
	return tk
}

func (ts *tickerSet) created() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.all)
}

func (ts *tickerSet) active() []*manualTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []*manualTicker
	for _, tk := range ts.all {
		if !tk.stopped.Load() {
			out = append(out, tk)
		}
	}
	return out
}

func (ts *tickerSet) fire(t *testing.T) {
	t.Helper()
	act := ts.active()
	if len(act) != 1 {
		t.Fatalf("active tickers = %d, want 1", len(act))
	}
	select {
	case act[0].ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("tick was not consumed")
	}
}

type result struct {
	resp *types.DetectionResponse
	err  error
}

type fakeDetector struct {
	mu      sync.Mutex
	calls   int
	active  int
	peak    int
	hold    bool
	gates   []chan struct{}
	results []result
	uploads [][]byte
}

func (f *fakeDetector) Detect(ctx context.Context, baseURL string, data []byte) (*types.DetectionResponse, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.active++
	f.peak = max(f.peak, f.active)
	f.uploads = append(f.uploads, data)
	var gate chan struct{}
	if f.hold {
		gate = make(chan struct{})
		f.gates = append(f.gates, gate)
	}
	res := result{resp: &types.DetectionResponse{Faces: []types.Box{}}}
	if len(f.results) > 0 {
		res = f.results[min(i, len(f.results)-1)]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return res.resp, res.err
}

func (f *fakeDetector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDetector) peakOutstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func (f *fakeDetector) release(i int) {
	f.mu.Lock()
	g := f.gates[i]
	f.mu.Unlock()
	close(g)
}

func (f *fakeDetector) upload(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[i]
}

type fakeHealth struct {
	res detect.HealthResult
	err error
}

func (f fakeHealth) Health(context.Context, string) (detect.HealthResult, error) {
	return f.res, f.err
}

// stillSource serves one fixed frame: red left half, blue right half.
type stillSource struct {
	size    image.Point
	openErr error
	never   bool // never report a frame
}

func (s *stillSource) Name() string { return "still" }

func (s *stillSource) Open(ctx context.Context, _ image.Point) (capture.Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	size := s.size
	if size == (image.Point{}) {
		size = image.Pt(64, 48)
	}
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= size.X/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return &stillStream{img: img, never: s.never, closed: make(chan struct{})}, nil
}

type stillStream struct {
	img    *image.RGBA
	never  bool
	once   sync.Once
	closed chan struct{}
}

func (s *stillStream) Ready(ctx context.Context) (image.Point, error) {
	if !s.never {
		return s.img.Bounds().Size(), nil
	}
	select {
	case <-ctx.Done():
		return image.Point{}, ctx.Err()
	case <-s.closed:
		return image.Point{}, capture.ErrStreamClosed
	}
}

func (s *stillStream) Latest() (types.Frame, bool) {
	if s.never {
		return types.Frame{}, false
	}
	return types.Frame{Image: s.img, Timestamp: time.Now(), Seq: 1}, true
}

func (s *stillStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []types.DetectionEvent
}

func (r *recordingSink) Publish(ev types.DetectionEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) first() types.DetectionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[0]
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// --- helpers ---

type harness struct {
	c       *Controller
	det     *fakeDetector
	tickers *tickerSet
}

func newHarness(t *testing.T, cfg Config, det *fakeDetector, src capture.Source) *harness {
	t.Helper()
	if src == nil {
		src = &stillSource{}
	}
	ts := &tickerSet{}
	c := NewController(cfg, Options{
		Source:    src,
		Detector:  det,
		Health:    fakeHealth{res: detect.HealthResult{StatusCode: 200, Body: "ok"}},
		NewTicker: ts.factory,
	})
	t.Cleanup(c.Stop)
	return &harness{c: c, det: det, tickers: ts}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// fireIdle waits for the previous request to settle, then fires one tick.
func (h *harness) fireIdle(t *testing.T) {
	t.Helper()
	if s := h.c.Current(); s != nil {
		waitFor(t, "in-flight cleared", func() bool { return !s.InFlight() })
	}
	h.tickers.fire(t)
}

func messageIs(c *Controller, msg string) func() bool {
	return func() bool { return c.Status().Message == msg }
}

func oneFace() result {
	return result{resp: &types.DetectionResponse{
		Count: 1,
		Faces: []types.Box{{X1: 10, Y1: 10, X2: 30, Y2: 30, Score: 0.973}},
	}}
}

// --- tests ---

func TestClampInterval(t *testing.T) {
	cases := []struct {
		in, want time.Duration
	}{
		{0, DefaultInterval},
		{-5 * time.Millisecond, MinInterval},
		{50 * time.Millisecond, MinInterval},
		{200 * time.Millisecond, 200 * time.Millisecond},
		{201 * time.Millisecond, 201 * time.Millisecond},
		{time.Second, time.Second},
	}
	for _, tc := range cases {
		if got := ClampInterval(tc.in); got != tc.want {
			t.Fatalf("ClampInterval(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFloorInterval(t *testing.T) {
	cases := []struct {
		in, want time.Duration
	}{
		{0, MinInterval},
		{-time.Second, MinInterval},
		{199 * time.Millisecond, MinInterval},
		{250 * time.Millisecond, 250 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := FloorInterval(tc.in); got != tc.want {
			t.Fatalf("FloorInterval(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestConfigNormalize(t *testing.T) {
	c := NewController(Config{BaseURL: "http://det:9000///", Interval: 10 * time.Millisecond}, Options{})
	cfg := c.Config()
	if cfg.BaseURL != "http://det:9000" {
		t.Fatalf("base url = %q", cfg.BaseURL)
	}
	if cfg.Interval != MinInterval {
		t.Fatalf("interval = %v, want floor", cfg.Interval)
	}
	if cfg.AcquireTimeout != DefaultAcquireTimeout || cfg.JPEGQuality != capture.DefaultJPEGQuality {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestStopNeverStartedIsNoop(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeDetector{}, nil)
	h.c.Stop()
	h.c.Stop()

	st := h.c.Status()
	if st.State != StateIdle || st.Message != MsgStopped || !st.OK {
		t.Fatalf("status = %+v", st)
	}
	if h.tickers.created() != 0 {
		t.Fatalf("stop created %d tickers", h.tickers.created())
	}
}

func TestStartReportsRunning(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeDetector{}, &stillSource{size: image.Pt(320, 240)})
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	st := h.c.Status()
	if st.State != StateRunning || st.Message != MsgCameraStarted || st.SessionID == "" {
		t.Fatalf("status = %+v", st)
	}
	if h.c.Renderer().Size() != image.Pt(320, 240) {
		t.Fatalf("layer size = %v", h.c.Renderer().Size())
	}
	if got := h.tickers.active()[0].period; got != DefaultInterval {
		t.Fatalf("ticker period = %v", got)
	}
	if h.c.Metrics().SessionActive.Load() != 1 {
		t.Fatalf("session gauge not set")
	}
	if h.c.LiveView() == nil {
		t.Fatalf("live view nil while running")
	}
}

func TestStartTwiceHasOneActiveTimer(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeDetector{}, nil)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := h.c.Current()
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if h.tickers.created() != 2 {
		t.Fatalf("tickers created = %d, want 2", h.tickers.created())
	}
	if n := len(h.tickers.active()); n != 1 {
		t.Fatalf("active tickers = %d, want 1", n)
	}
	if cur := h.c.Current(); cur == first || cur.ID == first.ID {
		t.Fatalf("second start reused the session")
	}
	if h.c.Metrics().SessionsStarted.Load() != 2 {
		t.Fatalf("sessions started = %d", h.c.Metrics().SessionsStarted.Load())
	}
}

func TestAtMostOneOutstandingRequest(t *testing.T) {
	det := &fakeDetector{hold: true}
	h := newHarness(t, DefaultConfig(), det, nil)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 5; i++ {
		h.tickers.fire(t)
	}
	waitFor(t, "first request", func() bool { return det.callCount() == 1 })
	waitFor(t, "dropped ticks", func() bool { return h.c.Metrics().TicksDropped.Load() == 4 })
	if det.callCount() != 1 {
		t.Fatalf("calls while in flight = %d, want 1", det.callCount())
	}
	if !h.c.Current().InFlight() {
		t.Fatalf("in-flight flag not set")
	}

	det.release(0)
	waitFor(t, "in-flight cleared", func() bool { return !h.c.Current().InFlight() })

	h.tickers.fire(t)
	waitFor(t, "second request", func() bool { return det.callCount() == 2 })
	det.release(1)

	if det.peakOutstanding() != 1 {
		t.Fatalf("peak outstanding = %d, want 1", det.peakOutstanding())
	}
}

func TestDetectFailureClearsOverlayAndKeepsTicking(t *testing.T) {
	det := &fakeDetector{results: []result{
		oneFace(),
		{err: &detect.DetectionError{Op: "detect", StatusCode: 500, Body: []byte(`{"error":"boom"}`)}},
		oneFace(),
	}}
	h := newHarness(t, DefaultConfig(), det, nil)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.tickers.fire(t)
	waitFor(t, "first result", messageIs(h.c, "running: faces=1"))
	if n := len(h.c.Renderer().Labels()); n != 1 {
		t.Fatalf("labels = %d, want 1", n)
	}

	h.fireIdle(t)
	waitFor(t, "detect failure", messageIs(h.c, MsgDetectFailed))
	st := h.c.Status()
	if st.OK || st.Detail != `{"error":"boom"}` {
		t.Fatalf("status = %+v", st)
	}
	if n := len(h.c.Renderer().Labels()); n != 0 {
		t.Fatalf("labels after failure = %d, want 0", n)
	}
	if h.c.Metrics().DetectionErrors.Load() != 1 {
		t.Fatalf("detection errors = %d", h.c.Metrics().DetectionErrors.Load())
	}

	h.fireIdle(t)
	waitFor(t, "next tick", func() bool { return det.callCount() == 3 })
	waitFor(t, "recovered", messageIs(h.c, "running: faces=1"))
}

func TestTransportErrorReportsRequestError(t *testing.T) {
	det := &fakeDetector{results: []result{{err: &detect.TransportError{Op: "detect", Err: errors.New("connection refused")}}}}
	h := newHarness(t, DefaultConfig(), det, nil)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.tickers.fire(t)
	waitFor(t, "request error", messageIs(h.c, MsgRequestError))
	if h.c.Status().OK {
		t.Fatalf("transport error reported ok")
	}
	if h.c.Metrics().TransportErrors.Load() != 1 {
		t.Fatalf("transport errors = %d", h.c.Metrics().TransportErrors.Load())
	}
	if h.c.Status().State != StateRunning {
		t.Fatalf("transport error ended the session")
	}
}

func TestLateResponseAfterStopIsDiscarded(t *testing.T) {
	det := &fakeDetector{hold: true, results: []result{oneFace()}}
	h := newHarness(t, DefaultConfig(), det, nil)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.tickers.fire(t)
	waitFor(t, "first request", func() bool { return det.callCount() == 1 })
	h.c.Stop()

	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	h.tickers.fire(t)
	waitFor(t, "second request", func() bool { return det.callCount() == 2 })
	newer := h.c.Current()

	det.release(0)
	time.Sleep(50 * time.Millisecond)

	if n := len(h.c.Renderer().Labels()); n != 0 {
		t.Fatalf("late response drew %d labels", n)
	}
	if msg := h.c.Status().Message; msg != MsgCameraStarted {
		t.Fatalf("late response changed status to %q", msg)
	}
	if !newer.InFlight() {
		t.Fatalf("late response cleared the newer session's in-flight flag")
	}

	det.release(1)
	waitFor(t, "newer response", messageIs(h.c, "running: faces=1"))
}

func TestSetConfigRestartsLoopWithFloor(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeDetector{}, nil)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	cfg := h.c.Config()
	cfg.Interval = 20 * time.Millisecond
	cfg.BaseURL = "http://other:8000/"
	applied := h.c.SetConfig(cfg)

	if applied.Interval != MinInterval || applied.BaseURL != "http://other:8000" {
		t.Fatalf("applied = %+v", applied)
	}
	act := h.tickers.active()
	if len(act) != 1 || h.tickers.created() != 2 {
		t.Fatalf("tickers created=%d active=%d", h.tickers.created(), len(act))
	}
	if act[0].period != MinInterval {
		t.Fatalf("period = %v, want %v", act[0].period, MinInterval)
	}
}

func TestSetConfigWhileIdleDoesNotTick(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeDetector{}, nil)
	h.c.SetConfig(Config{Interval: time.Second})
	if h.tickers.created() != 0 {
		t.Fatalf("idle SetConfig created a ticker")
	}
	if h.c.Config().Interval != time.Second {
		t.Fatalf("interval = %v", h.c.Config().Interval)
	}
}

func TestAcquireFailureIsPermissionError(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeDetector{}, &stillSource{openErr: errors.New("no device")})
	err := h.c.Start(context.Background())

	var perr *capture.PermissionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PermissionError", err)
	}
	st := h.c.Status()
	if st.State != StateFailed || st.Message != MsgPermission || st.OK {
		t.Fatalf("status = %+v", st)
	}
	if h.tickers.created() != 0 {
		t.Fatalf("failed start created a ticker")
	}
	if h.c.Metrics().AcquireFailures.Load() != 1 {
		t.Fatalf("acquire failures = %d", h.c.Metrics().AcquireFailures.Load())
	}
}

func TestAcquireTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AcquireTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg, &fakeDetector{}, &stillSource{never: true})

	err := h.c.Start(context.Background())
	var perr *capture.PermissionError
	if !errors.As(err, &perr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want PermissionError wrapping deadline", err)
	}
	if h.c.Current() != nil {
		t.Fatalf("session kept after timeout")
	}
}

func TestMirrorIsAppliedOnce(t *testing.T) {
	for _, mirror := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.Mirror = mirror
		det := &fakeDetector{results: []result{oneFace()}}
		sink := &recordingSink{}
		h := newHarness(t, cfg, det, &stillSource{size: image.Pt(64, 48)})
		h.c.AddSink(sink)
		if err := h.c.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}

		h.tickers.fire(t)
		waitFor(t, "event", func() bool { return sink.count() == 1 })

		img, err := jpeg.Decode(bytes.NewReader(det.upload(0)))
		if err != nil {
			t.Fatalf("decode upload: %v", err)
		}
		r, _, b, _ := img.At(2, 24).RGBA()
		leftIsBlue := b > r
		if leftIsBlue != mirror {
			t.Fatalf("mirror=%v: uploaded left edge blue=%v", mirror, leftIsBlue)
		}

		// boxes come back in the uploaded frame's space and must not be flipped again
		labels := h.c.Renderer().Labels()
		if len(labels) != 1 || labels[0].Box.Min.X != 10 || labels[0].Box.Max.X != 30 {
			t.Fatalf("mirror=%v: labels = %+v", mirror, labels)
		}
		if ev := sink.first(); ev.Mirrored != mirror || ev.Width != 64 || ev.SessionID != h.c.Current().ID.String() {
			t.Fatalf("event = %+v", ev)
		}
		h.c.Stop()
	}
}

// leftEdgeIsBlue reports whether the left edge of img shows the right half of stillSource.
func leftEdgeIsBlue(t *testing.T, img image.Image) bool {
	t.Helper()
	h := img.Bounds().Dy()
	r, _, b, _ := img.At(2, h/2).RGBA()
	return b > r
}

func decodeUpload(t *testing.T, det *fakeDetector, i int) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(det.upload(i)))
	if err != nil {
		t.Fatalf("decode upload %d: %v", i, err)
	}
	return img
}

func TestMirrorToggleWhileRunning(t *testing.T) {
	det := &fakeDetector{results: []result{oneFace()}}
	sink := &recordingSink{}
	h := newHarness(t, DefaultConfig(), det, &stillSource{size: image.Pt(64, 48)})
	h.c.AddSink(sink)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.tickers.fire(t)
	waitFor(t, "first event", func() bool { return sink.count() == 1 })
	if !leftEdgeIsBlue(t, decodeUpload(t, det, 0)) {
		t.Fatalf("first upload not mirrored")
	}
	if !leftEdgeIsBlue(t, h.c.LiveView()) {
		t.Fatalf("live view not mirrored")
	}

	cfg := h.c.Config()
	cfg.Mirror = false
	h.c.SetConfig(cfg)
	if n := len(h.c.Renderer().Labels()); n != 0 {
		t.Fatalf("overlay kept %d labels across the flip", n)
	}
	if leftEdgeIsBlue(t, h.c.LiveView()) {
		t.Fatalf("live view still mirrored after toggle")
	}

	h.fireIdle(t)
	waitFor(t, "second event", func() bool { return sink.count() == 2 })
	if leftEdgeIsBlue(t, decodeUpload(t, det, 1)) {
		t.Fatalf("upload after toggle is still mirrored")
	}
	labels := h.c.Renderer().Labels()
	if len(labels) != 1 || labels[0].Box.Min.X != 10 || labels[0].Box.Max.X != 30 {
		t.Fatalf("labels = %+v", labels)
	}
	sink.mu.Lock()
	ev := sink.events[1]
	sink.mu.Unlock()
	if ev.Mirrored {
		t.Fatalf("event after toggle reports mirrored")
	}
}

func TestMirrorToggleDuringRequestReflectsLateBoxes(t *testing.T) {
	det := &fakeDetector{hold: true, results: []result{oneFace()}}
	sink := &recordingSink{}
	h := newHarness(t, DefaultConfig(), det, &stillSource{size: image.Pt(64, 48)})
	h.c.AddSink(sink)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.tickers.fire(t)
	waitFor(t, "request", func() bool { return det.callCount() == 1 })

	cfg := h.c.Config()
	cfg.Mirror = false
	h.c.SetConfig(cfg)
	if !h.c.Current().InFlight() {
		t.Fatalf("config change cleared the in-flight flag")
	}

	det.release(0)
	waitFor(t, "result", messageIs(h.c, "running: faces=1"))

	// captured mirrored, displayed plain: [10,30] lands on [64-30, 64-10]
	labels := h.c.Renderer().Labels()
	if len(labels) != 1 || labels[0].Box.Min.X != 34 || labels[0].Box.Max.X != 54 {
		t.Fatalf("labels = %+v", labels)
	}
	waitFor(t, "event", func() bool { return sink.count() == 1 })
	if !sink.first().Mirrored {
		t.Fatalf("event should carry the capture orientation")
	}
}

func TestInFlightGuardIsPerSession(t *testing.T) {
	det := &fakeDetector{hold: true}
	h := newHarness(t, DefaultConfig(), det, nil)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.tickers.fire(t)
	waitFor(t, "first request", func() bool { return det.callCount() == 1 })

	h.c.Stop()
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	h.tickers.fire(t)
	waitFor(t, "second request", func() bool { return det.callCount() == 2 })

	if got := det.peakOutstanding(); got != 2 {
		t.Fatalf("peak outstanding across sessions = %d, want 2", got)
	}
	if h.c.Metrics().TicksDropped.Load() != 0 {
		t.Fatalf("new session dropped a tick for the old session's request")
	}
	det.release(0)
	det.release(1)
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeDetector{}, nil)
	st := h.c.HealthCheck(context.Background())
	if st.Message != "health: ok" || !st.OK || st.Detail != "ok" {
		t.Fatalf("status = %+v", st)
	}

	h.c.health = fakeHealth{res: detect.HealthResult{StatusCode: 503, Body: "loading"}}
	if st := h.c.HealthCheck(context.Background()); st.Message != "health: loading" || st.OK {
		t.Fatalf("status = %+v", st)
	}

	h.c.health = fakeHealth{err: &detect.TransportError{Op: "health", Err: errors.New("refused")}}
	if st := h.c.HealthCheck(context.Background()); st.Message != MsgHealthFailed || st.OK {
		t.Fatalf("status = %+v", st)
	}
}

func TestClearOverlay(t *testing.T) {
	det := &fakeDetector{results: []result{oneFace()}}
	h := newHarness(t, DefaultConfig(), det, nil)
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.tickers.fire(t)
	waitFor(t, "result", messageIs(h.c, "running: faces=1"))

	st := h.c.ClearOverlay()
	if st.Message != MsgCleared || st.Detail != "" {
		t.Fatalf("status = %+v", st)
	}
	if len(h.c.Renderer().Labels()) != 0 {
		t.Fatalf("overlay not cleared")
	}
}

func TestStatusListener(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &fakeDetector{}, nil)
	var mu sync.Mutex
	var seen []string
	h.c.OnStatus(func(st Status) {
		mu.Lock()
		seen = append(seen, st.Message)
		mu.Unlock()
	})

	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.c.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{msgAcquiring, MsgCameraStarted, MsgStopped}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}
