package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"gate-monitor/internal/domain/monitor"
	"gate-monitor/internal/gateway"
)

// fakeScheduler records timers instead of arming them, so tests fire
// them in a deterministic order.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	loops  []*fakeLoop
}

type fakeTimer struct {
	delay     time.Duration
	seq       int
	fn        func()
	fired     bool
	cancelled bool
}

type fakeLoop struct {
	interval time.Duration
	fn       func()
	stopped  bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (f *fakeScheduler) After(d time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{delay: d, seq: len(f.timers), fn: fn}
	f.timers = append(f.timers, t)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		t.cancelled = true
	}
}

func (f *fakeScheduler) Every(d time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeLoop{interval: d, fn: fn}
	f.loops = append(f.loops, l)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		l.stopped = true
	}
}

func (f *fakeScheduler) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeScheduler) advanceClock(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// fireTimers runs every pending one-shot timer in delay order (stable
// on scheduling order), the way a real clock would.
func (f *fakeScheduler) fireTimers() {
	f.mu.Lock()
	pending := make([]*fakeTimer, 0, len(f.timers))
	for _, t := range f.timers {
		if !t.fired && !t.cancelled {
			t.fired = true
			pending = append(pending, t)
		}
	}
	f.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].delay != pending[j].delay {
			return pending[i].delay < pending[j].delay
		}
		return pending[i].seq < pending[j].seq
	})
	for _, t := range pending {
		t.fn()
	}
}

// timerDelays lists scheduled (non-cancelled) one-shot delays in
// scheduling order.
func (f *fakeScheduler) timerDelays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, 0, len(f.timers))
	for _, t := range f.timers {
		if !t.cancelled {
			out = append(out, t.delay)
		}
	}
	return out
}

// tickLoops runs every active repeating loop once.
func (f *fakeScheduler) tickLoops() {
	f.mu.Lock()
	active := make([]*fakeLoop, 0, len(f.loops))
	for _, l := range f.loops {
		if !l.stopped {
			active = append(active, l)
		}
	}
	f.mu.Unlock()

	for _, l := range active {
		l.fn()
	}
}

func (f *fakeScheduler) activeLoops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, l := range f.loops {
		if !l.stopped {
			n++
		}
	}
	return n
}

// fakeGateway is an in-memory collaborator backend.
type fakeGateway struct {
	mu sync.Mutex

	cameras map[string][]monitor.Camera
	listErr error

	connectErrs  map[int64]error
	connectOrder []int64

	streamsStarted []string
	streamErr      error

	runtime []monitor.RuntimeInfo

	captureFn func(req gateway.CaptureRequest) (*monitor.DetectionResult, error)
	captures  []gateway.CaptureRequest

	updates   []monitor.HistoryUpdate
	updateErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		cameras:     make(map[string][]monitor.Camera),
		connectErrs: make(map[int64]error),
	}
}

func (g *fakeGateway) ListCameras(ctx context.Context, gate string) ([]monitor.Camera, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.cameras[gate], nil
}

func (g *fakeGateway) ConnectCamera(ctx context.Context, cam monitor.Camera) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.connectErrs[cam.ID]; err != nil {
		return "", err
	}
	g.connectOrder = append(g.connectOrder, cam.ID)
	return "sess-" + cam.Name, nil
}

func (g *fakeGateway) StartStream(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.streamErr != nil {
		return g.streamErr
	}
	g.streamsStarted = append(g.streamsStarted, sessionID)
	return nil
}

func (g *fakeGateway) RuntimeInfo(ctx context.Context) ([]monitor.RuntimeInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runtime, nil
}

func (g *fakeGateway) CaptureAndProcess(ctx context.Context, req gateway.CaptureRequest) (*monitor.DetectionResult, error) {
	g.mu.Lock()
	g.captures = append(g.captures, req)
	fn := g.captureFn
	g.mu.Unlock()
	if fn == nil {
		return nil, gateway.ErrNoVehicle
	}
	return fn(req)
}

func (g *fakeGateway) UpdateHistory(ctx context.Context, update monitor.HistoryUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, update)
	return g.updateErr
}

func (g *fakeGateway) connectedOrder() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int64, len(g.connectOrder))
	copy(out, g.connectOrder)
	return out
}

func (g *fakeGateway) historyUpdates() []monitor.HistoryUpdate {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]monitor.HistoryUpdate, len(g.updates))
	copy(out, g.updates)
	return out
}

// memStore is an in-memory SessionStore that round-trips through JSON
// the same way the real repository does.
type memStore struct {
	mu   sync.Mutex
	blob []byte
}

func (s *memStore) SavePending(ctx context.Context, pending *monitor.PendingDetection) error {
	blob, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = blob
	return nil
}

func (s *memStore) LoadPending(ctx context.Context) (*monitor.PendingDetection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blob == nil {
		return nil, nil
	}
	var pending monitor.PendingDetection
	if err := json.Unmarshal(s.blob, &pending); err != nil {
		return nil, err
	}
	return &pending, nil
}

func (s *memStore) ClearPending(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = nil
	return nil
}

func (s *memStore) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob == nil
}

func strPtr(s string) *string { return &s }
