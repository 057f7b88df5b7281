package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gate-monitor/internal/domain/monitor"
	"gate-monitor/internal/gateway"
)

// StreamSupervisor opens connections and starts streams for the
// cameras of the active gate, and polls stream metadata for whichever
// session is currently focused in the view.
type StreamSupervisor struct {
	gw           gateway.Gateway
	registry     *SessionRegistry
	events       *EventLog
	scheduler    Scheduler
	log          zerolog.Logger
	stagger      time.Duration
	pollInterval time.Duration

	mu       sync.Mutex
	pending  []func() // cancel funcs for staggered connect timers
	stopPoll func()
	watched  string
	info     *monitor.StreamInfo
}

func NewStreamSupervisor(
	gw gateway.Gateway,
	registry *SessionRegistry,
	events *EventLog,
	scheduler Scheduler,
	stagger, pollInterval time.Duration,
	log zerolog.Logger,
) *StreamSupervisor {
	return &StreamSupervisor{
		gw:           gw,
		registry:     registry,
		events:       events,
		scheduler:    scheduler,
		stagger:      stagger,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "supervisor").Logger(),
	}
}

// ConnectGate schedules a connect attempt for every camera at the gate
// that has no live session yet. Attempts are staggered at index*stagger
// so N cameras do not all open sockets in the same tick. Failures are
// logged and non-fatal; a failed camera is retried only on the next
// ConnectGate call. valid reports whether the view that requested the
// connect is still current; results arriving for a stale view are
// dropped. onConnected, if non-nil, fires after a session is recorded.
func (s *StreamSupervisor) ConnectGate(
	ctx context.Context,
	gate string,
	cameras []monitor.Camera,
	valid func() bool,
	onConnected func(cam monitor.Camera, sessionID string),
) {
	idx := 0
	for _, cam := range cameras {
		if s.registry.Connected(cam.ID) || s.registry.Connecting(cam.ID) {
			continue
		}
		s.registry.SetConnecting(cam.ID, true)

		cam := cam
		delay := time.Duration(idx) * s.stagger
		idx++

		s.mu.Lock()
		cancel := s.scheduler.After(delay, func() {
			s.connectOne(ctx, gate, cam, valid, onConnected)
		})
		s.pending = append(s.pending, cancel)
		s.mu.Unlock()
	}

	if idx > 0 {
		s.log.Info().Str("gate", gate).Int("cameras", idx).Msg("scheduled camera connects")
	}
}

func (s *StreamSupervisor) connectOne(
	ctx context.Context,
	gate string,
	cam monitor.Camera,
	valid func() bool,
	onConnected func(cam monitor.Camera, sessionID string),
) {
	defer s.registry.SetConnecting(cam.ID, false)

	sessionID, err := s.gw.ConnectCamera(ctx, cam)
	if err != nil {
		s.log.Error().Err(err).Str("camera", cam.Name).Str("gate", gate).Msg("camera connect failed")
		s.events.Append(fmt.Sprintf("Failed to connect camera %s", cam.Name), monitor.EventError)
		return
	}

	if valid != nil && !valid() {
		s.log.Warn().
			Str("camera", cam.Name).
			Str("gate", gate).
			Msg("discarding session for a gate no longer in view")
		return
	}

	s.registry.Put(cam.ID, sessionID)

	if err := s.gw.StartStream(ctx, sessionID); err != nil {
		s.log.Error().Err(err).Str("camera", cam.Name).Str("session_id", sessionID).Msg("stream start failed")
		s.events.Append(fmt.Sprintf("Failed to start stream for %s", cam.Name), monitor.EventError)
		return
	}

	s.events.Append(fmt.Sprintf("Camera %s connected", cam.Name), monitor.EventSuccess)
	if onConnected != nil {
		onConnected(cam, sessionID)
	}
}

// Watch starts the stream-metadata poll for the given session,
// replacing any previous poll. An empty session id only tears down.
func (s *StreamSupervisor) Watch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	s.watched = sessionID
	s.info = nil
	if sessionID == "" {
		return
	}

	s.stopPoll = s.scheduler.Every(s.pollInterval, s.pollOnce)
}

// Unwatch tears down the metadata poll entirely.
func (s *StreamSupervisor) Unwatch() {
	s.Watch("")
}

func (s *StreamSupervisor) pollOnce() {
	s.mu.Lock()
	sessionID := s.watched
	s.mu.Unlock()
	if sessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
	defer cancel()

	infos, err := s.gw.RuntimeInfo(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("stream info poll failed")
		return
	}

	for _, ri := range infos {
		if ri.SessionID != sessionID {
			continue
		}
		info := ri.StreamInfo

		s.mu.Lock()
		changed := s.watched == sessionID && (s.info == nil || *s.info != info)
		if s.watched == sessionID {
			s.info = &info
		}
		s.mu.Unlock()

		if changed && info.Resolution != "" {
			s.events.Append(fmt.Sprintf("Stream %s @ %.0f fps", info.Resolution, info.FPS), monitor.EventInfo)
		}
		return
	}
}

// StreamInfo returns the last polled metadata for the watched session,
// or nil when nothing is focused or no poll has completed yet.
func (s *StreamSupervisor) StreamInfo() *monitor.StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return nil
	}
	info := *s.info
	return &info
}

// Teardown cancels staggered connects that have not fired and stops the
// metadata poll.
func (s *StreamSupervisor) Teardown() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	stop := s.stopPoll
	s.stopPoll = nil
	s.watched = ""
	s.info = nil
	s.mu.Unlock()

	for _, cancel := range pending {
		cancel()
	}
	if stop != nil {
		stop()
	}
}
