package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-monitor/internal/domain/monitor"
)

func newSupervisorForTest(gw *fakeGateway) (*StreamSupervisor, *SessionRegistry, *EventLog, *fakeScheduler) {
	sched := newFakeScheduler()
	registry := NewSessionRegistry()
	events := NewEventLog(sched)
	sup := NewStreamSupervisor(gw, registry, events, sched, 500*time.Millisecond, 5*time.Second, zerolog.Nop())
	return sup, registry, events, sched
}

func gateCameras() []monitor.Camera {
	return []monitor.Camera{
		{ID: 1, Name: "front", Tag: monitor.TagFront},
		{ID: 2, Name: "side", Tag: monitor.TagSide},
		{ID: 3, Name: "grid-a"},
		{ID: 4, Name: "grid-b"},
	}
}

func TestConnectGate_StaggersInListOrder(t *testing.T) {
	gw := newFakeGateway()
	sup, registry, _, sched := newSupervisorForTest(gw)

	sup.ConnectGate(context.Background(), "Cổng A", gateCameras(), nil, nil)

	// One timer per camera at increasing offsets of the stagger.
	delays := sched.timerDelays()
	require.Len(t, delays, 4)
	for i, d := range delays {
		assert.Equal(t, time.Duration(i)*500*time.Millisecond, d)
	}

	sched.fireTimers()

	assert.Equal(t, []int64{1, 2, 3, 4}, gw.connectedOrder())
	for _, id := range []int64{1, 2, 3, 4} {
		assert.True(t, registry.Connected(id))
		assert.False(t, registry.Connecting(id))
	}
}

func TestConnectGate_StartsStreamAfterConnect(t *testing.T) {
	gw := newFakeGateway()
	sup, _, _, sched := newSupervisorForTest(gw)

	sup.ConnectGate(context.Background(), "Cổng A", gateCameras()[:1], nil, nil)
	sched.fireTimers()

	assert.Equal(t, []string{"sess-front"}, gw.streamsStarted)
}

func TestConnectGate_SkipsAlreadyConnected(t *testing.T) {
	gw := newFakeGateway()
	sup, registry, _, sched := newSupervisorForTest(gw)
	registry.Put(1, "sess-old")

	sup.ConnectGate(context.Background(), "Cổng A", gateCameras()[:2], nil, nil)

	// Only camera 2 is scheduled, and at offset zero.
	delays := sched.timerDelays()
	require.Len(t, delays, 1)
	assert.Equal(t, time.Duration(0), delays[0])
}

func TestConnectGate_FailureIsLoggedAndNonFatal(t *testing.T) {
	gw := newFakeGateway()
	gw.connectErrs[1] = errors.New("unreachable")
	sup, registry, events, sched := newSupervisorForTest(gw)

	sup.ConnectGate(context.Background(), "Cổng A", gateCameras()[:2], nil, nil)
	sched.fireTimers()

	assert.False(t, registry.Connected(1))
	assert.False(t, registry.Connecting(1))
	// The other camera still connects.
	assert.True(t, registry.Connected(2))

	entries := events.Entries()
	require.NotEmpty(t, entries)
	found := false
	for _, e := range entries {
		if e.Type == monitor.EventError {
			found = true
		}
	}
	assert.True(t, found, "expected an error event for the failed camera")
}

func TestConnectGate_StaleViewDiscardsSession(t *testing.T) {
	gw := newFakeGateway()
	sup, registry, _, sched := newSupervisorForTest(gw)

	sup.ConnectGate(context.Background(), "Cổng A", gateCameras()[:1], func() bool { return false }, nil)
	sched.fireTimers()

	assert.False(t, registry.Connected(1))
	assert.Empty(t, gw.streamsStarted)
}

func TestConnectGate_RetryOnlyOnReinvocation(t *testing.T) {
	gw := newFakeGateway()
	gw.connectErrs[1] = errors.New("unreachable")
	sup, registry, _, sched := newSupervisorForTest(gw)
	cams := gateCameras()[:1]

	sup.ConnectGate(context.Background(), "Cổng A", cams, nil, nil)
	sched.fireTimers()
	require.False(t, registry.Connected(1))
	require.Len(t, gw.connectedOrder(), 0)

	// No automatic retry happens; a second ConnectGate attempts again.
	gw.connectErrs = map[int64]error{}
	sup.ConnectGate(context.Background(), "Cổng A", cams, nil, nil)
	sched.fireTimers()

	assert.True(t, registry.Connected(1))
}

func TestWatch_PollsFocusedSession(t *testing.T) {
	gw := newFakeGateway()
	gw.runtime = []monitor.RuntimeInfo{
		{SessionID: "sess-front", StreamInfo: monitor.StreamInfo{Resolution: "1920x1080", FPS: 25}},
		{SessionID: "sess-side", StreamInfo: monitor.StreamInfo{Resolution: "1280x720", FPS: 15}},
	}
	sup, _, _, sched := newSupervisorForTest(gw)

	sup.Watch("sess-front")
	sched.tickLoops()

	info := sup.StreamInfo()
	require.NotNil(t, info)
	assert.Equal(t, "1920x1080", info.Resolution)
	assert.InDelta(t, 25, info.FPS, 0.01)
}

func TestWatch_ReplacingFocusDropsOldPoll(t *testing.T) {
	gw := newFakeGateway()
	sup, _, _, sched := newSupervisorForTest(gw)

	sup.Watch("sess-a")
	require.Equal(t, 1, sched.activeLoops())

	sup.Watch("sess-b")
	assert.Equal(t, 1, sched.activeLoops())
	assert.Nil(t, sup.StreamInfo(), "stale metadata must be discarded on focus change")

	sup.Unwatch()
	assert.Equal(t, 0, sched.activeLoops())
}

func TestTeardown_CancelsPendingConnects(t *testing.T) {
	gw := newFakeGateway()
	sup, registry, _, sched := newSupervisorForTest(gw)

	sup.ConnectGate(context.Background(), "Cổng A", gateCameras(), nil, nil)
	sup.Teardown()
	sched.fireTimers()

	assert.Empty(t, gw.connectedOrder())
	assert.Empty(t, registry.Sessions())
}
