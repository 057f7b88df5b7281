package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"gate-monitor/internal/domain/monitor"
	"gate-monitor/internal/gateway"
)

var (
	// ErrNoGate rejects operations before a gate has been selected.
	ErrNoGate = errors.New("no gate selected")
	// ErrNoFrontCamera means no camera at the gate resolved to the
	// plate-recognition role, so detection is unavailable.
	ErrNoFrontCamera = errors.New("no connected front camera")
)

// ViewState is the derived, UI-facing snapshot of the monitor view.
type ViewState struct {
	Gate       string                      `json:"gate"`
	Cameras    []monitor.Camera            `json:"cameras"`
	Main       *monitor.Camera             `json:"main_camera,omitempty"`
	Grid       []monitor.Camera            `json:"grid_cameras"`
	FrontID    *int64                      `json:"front_camera_id,omitempty"`
	SideID     *int64                      `json:"side_camera_id,omitempty"`
	Sessions   []monitor.ConnectionSession `json:"sessions"`
	StreamInfo *monitor.StreamInfo         `json:"stream_info,omitempty"`
	Phase      string                      `json:"phase"`
	Pending    *monitor.PendingDetection   `json:"pending_detection,omitempty"`
	CanCapture bool                        `json:"can_capture"`
	CanReview  bool                        `json:"can_review"`
}

// GateController wires camera discovery, role resolution, connection
// supervision and the detection workflow together for one selected
// gate, and exposes the derived view state the dashboard renders.
type GateController struct {
	gw         gateway.Gateway
	registry   *SessionRegistry
	supervisor *StreamSupervisor
	workflow   *DetectionWorkflow
	events     *EventLog
	log        zerolog.Logger
	gridSize   int

	mu      sync.Mutex
	epoch   uint64
	gate    string
	cameras []monitor.Camera
	roles   RoleAssignment
	focus   int
}

func NewGateController(
	gw gateway.Gateway,
	registry *SessionRegistry,
	supervisor *StreamSupervisor,
	workflow *DetectionWorkflow,
	events *EventLog,
	gridSize int,
	log zerolog.Logger,
) *GateController {
	if gridSize <= 0 {
		gridSize = 4
	}
	return &GateController{
		gw:         gw,
		registry:   registry,
		supervisor: supervisor,
		workflow:   workflow,
		events:     events,
		gridSize:   gridSize,
		log:        log.With().Str("component", "controller").Logger(),
	}
}

// Start restores any unresolved detection from the session store before
// anything else, then selects the initial gate when one is configured.
func (c *GateController) Start(ctx context.Context, defaultGate string) error {
	if err := c.workflow.Restore(ctx); err != nil {
		c.log.Error().Err(err).Msg("session restore failed")
	}
	if defaultGate == "" {
		return nil
	}
	return c.SelectGate(ctx, defaultGate)
}

// SelectGate switches the view to a gate: previous sessions and the
// stream watch are dropped, the camera list is refetched, roles are
// recomputed, focus resets to the first camera and every camera is
// scheduled to connect. In-flight work for the previous gate is fenced
// off by the epoch bump: its late results are discarded on arrival.
func (c *GateController) SelectGate(ctx context.Context, gate string) error {
	if gate == "" {
		return fmt.Errorf("%w: empty gate name", ErrNoGate)
	}

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.gate = gate
	c.focus = 0
	c.cameras = nil
	c.roles = RoleAssignment{}
	c.mu.Unlock()

	c.registry.Reset()
	c.supervisor.Unwatch()

	cameras, err := c.gw.ListCameras(ctx, gate)
	if err != nil {
		c.events.Append(fmt.Sprintf("Failed to load cameras for %s", gate), monitor.EventError)
		return fmt.Errorf("failed to select gate %q: %w", gate, err)
	}

	roles := ResolveRoles(cameras)

	c.mu.Lock()
	if c.epoch != epoch {
		// Another SelectGate won the race; drop this result.
		c.mu.Unlock()
		return nil
	}
	c.cameras = cameras
	c.roles = roles
	c.mu.Unlock()

	c.log.Info().
		Str("gate", gate).
		Int("cameras", len(cameras)).
		Bool("front_resolved", roles.Front != nil).
		Bool("side_resolved", roles.Side != nil).
		Msg("gate selected")
	c.events.Append(fmt.Sprintf("Viewing gate %s (%d cameras)", gate, len(cameras)), monitor.EventInfo)
	if roles.Front == nil {
		c.events.Append("No plate camera resolved, detection unavailable", monitor.EventWarning)
	}

	c.connectCurrent(ctx, gate, cameras, epoch)
	return nil
}

// Refresh refetches the camera list for the current gate and retries
// any camera still without a session. Existing sessions are kept.
func (c *GateController) Refresh(ctx context.Context) error {
	c.mu.Lock()
	gate := c.gate
	epoch := c.epoch
	c.mu.Unlock()
	if gate == "" {
		return ErrNoGate
	}

	cameras, err := c.gw.ListCameras(ctx, gate)
	if err != nil {
		return fmt.Errorf("failed to refresh gate %q: %w", gate, err)
	}
	roles := ResolveRoles(cameras)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	c.cameras = cameras
	c.roles = roles
	if c.focus >= len(cameras) {
		c.focus = 0
	}
	c.mu.Unlock()

	c.connectCurrent(ctx, gate, cameras, epoch)
	return nil
}

func (c *GateController) connectCurrent(ctx context.Context, gate string, cameras []monitor.Camera, epoch uint64) {
	valid := func() bool { return c.currentEpoch() == epoch }
	c.supervisor.ConnectGate(ctx, gate, cameras, valid, func(cam monitor.Camera, sessionID string) {
		// Point the metadata poll at the focused camera as soon as its
		// session exists.
		c.mu.Lock()
		focused := c.epoch == epoch && len(c.cameras) > c.focus && c.cameras[c.focus].ID == cam.ID
		c.mu.Unlock()
		if focused {
			c.supervisor.Watch(sessionID)
		}
	})
}

func (c *GateController) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Focus moves the main slot to the camera at idx and re-points the
// stream-metadata poll, tearing it down when the camera has no session.
func (c *GateController) Focus(idx int) error {
	c.mu.Lock()
	if idx < 0 || idx >= len(c.cameras) {
		c.mu.Unlock()
		return fmt.Errorf("focus index %d out of range", idx)
	}
	c.focus = idx
	cam := c.cameras[idx]
	c.mu.Unlock()

	if sessionID, ok := c.registry.Get(cam.ID); ok {
		c.supervisor.Watch(sessionID)
	} else {
		c.supervisor.Unwatch()
	}
	return nil
}

// TriggerCapture runs the detection pipeline against the resolved
// front/side sessions of the current gate.
func (c *GateController) TriggerCapture(ctx context.Context) (*monitor.PendingDetection, error) {
	c.mu.Lock()
	gate := c.gate
	roles := c.roles
	epoch := c.epoch
	c.mu.Unlock()

	if gate == "" {
		return nil, ErrNoGate
	}
	if roles.Front == nil {
		return nil, ErrNoFrontCamera
	}
	frontSession, ok := c.registry.Get(roles.Front.ID)
	if !ok {
		return nil, ErrNoFrontCamera
	}

	var sideSession *string
	if roles.Side != nil {
		if id, ok := c.registry.Get(roles.Side.ID); ok {
			sideSession = &id
		}
	}

	valid := func() bool { return c.currentEpoch() == epoch }
	return c.workflow.Trigger(ctx, gate, frontSession, sideSession, valid)
}

func (c *GateController) Confirm(ctx context.Context) error {
	return c.workflow.Confirm(ctx, c.currentGate())
}

func (c *GateController) Reject(ctx context.Context) error {
	return c.workflow.Reject(ctx, c.currentGate())
}

func (c *GateController) Edit(ctx context.Context, req EditRequest) error {
	return c.workflow.Edit(ctx, c.currentGate(), req)
}

func (c *GateController) currentGate() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate
}

// ViewState assembles the derived state the dashboard needs: the main
// slot, up to gridSize grid slots, role assignment and whether the
// capture trigger and review actions are currently available.
func (c *GateController) ViewState() ViewState {
	c.mu.Lock()
	gate := c.gate
	cameras := make([]monitor.Camera, len(c.cameras))
	copy(cameras, c.cameras)
	roles := c.roles
	focus := c.focus
	c.mu.Unlock()

	state := ViewState{
		Gate:     gate,
		Cameras:  cameras,
		Grid:     []monitor.Camera{},
		Sessions: c.registry.Sessions(),
	}

	if focus < len(cameras) && len(cameras) > 0 {
		main := cameras[focus]
		state.Main = &main
	}
	for i, cam := range cameras {
		if i == focus {
			continue
		}
		if len(state.Grid) == c.gridSize {
			break
		}
		state.Grid = append(state.Grid, cam)
	}

	if roles.Front != nil {
		id := roles.Front.ID
		state.FrontID = &id
	}
	if roles.Side != nil {
		id := roles.Side.ID
		state.SideID = &id
	}

	state.StreamInfo = c.supervisor.StreamInfo()

	phase := c.workflow.Phase()
	state.Phase = phase.String()
	state.Pending = c.workflow.Pending()

	frontConnected := roles.Front != nil && c.registry.Connected(roles.Front.ID)
	state.CanCapture = phase == PhaseIdle && frontConnected
	state.CanReview = phase == PhaseReviewing && state.Pending != nil && state.Pending.TimeIn != ""

	return state
}

// Events exposes the operational log for the events endpoint.
func (c *GateController) Events() []monitor.EventLogEntry {
	return c.events.Entries()
}

// Close tears down timers and polls on shutdown.
func (c *GateController) Close() {
	c.supervisor.Teardown()
}
