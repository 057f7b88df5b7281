package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gate-monitor/internal/domain/monitor"
	"gate-monitor/internal/gateway"
)

var (
	// ErrCaptureInFlight rejects a trigger while a capture is running.
	ErrCaptureInFlight = errors.New("capture already in flight")
	// ErrReviewPending rejects a trigger while a detection awaits review.
	ErrReviewPending = errors.New("a detection is pending review")
	// ErrNoPending rejects review actions when nothing is pending.
	ErrNoPending = errors.New("no pending detection")
	// ErrStaleResult marks a capture that completed after the view
	// moved to another gate; its result is discarded.
	ErrStaleResult = errors.New("detection result arrived for a stale gate view")
)

// Phase is the workflow's explicit state. Exactly one value holds at a
// time; contradictory flag combinations cannot be represented.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCapturing
	PhaseReviewing
)

func (p Phase) String() string {
	switch p {
	case PhaseCapturing:
		return "capturing"
	case PhaseReviewing:
		return "reviewing"
	default:
		return "idle"
	}
}

// SessionStore persists the pending detection across restarts. Saves
// and clears happen only at workflow transition boundaries.
type SessionStore interface {
	SavePending(ctx context.Context, pending *monitor.PendingDetection) error
	LoadPending(ctx context.Context) (*monitor.PendingDetection, error)
	ClearPending(ctx context.Context) error
}

// Notifier publishes detection lifecycle notices to downstream systems.
type Notifier interface {
	PublishDetection(notice monitor.DetectionNotice) error
}

// EditRequest carries the operator's corrections for the pending
// detection. The update always targets the existing history row.
type EditRequest struct {
	Plate  string                `json:"plate"`
	Status monitor.HistoryStatus `json:"status"`
	Verify monitor.VerifyState   `json:"verify"`
	Note   string                `json:"note"`
}

// DetectionWorkflow drives the capture pipeline and the human review of
// its result: Idle -> Capturing -> Reviewing -> Idle.
type DetectionWorkflow struct {
	gw       gateway.Gateway
	store    SessionStore
	events   *EventLog
	notifier Notifier
	log      zerolog.Logger

	mu      sync.Mutex
	phase   Phase
	pending *monitor.PendingDetection
}

func NewDetectionWorkflow(
	gw gateway.Gateway,
	store SessionStore,
	events *EventLog,
	notifier Notifier,
	log zerolog.Logger,
) *DetectionWorkflow {
	return &DetectionWorkflow{
		gw:       gw,
		store:    store,
		events:   events,
		notifier: notifier,
		log:      log.With().Str("component", "workflow").Logger(),
	}
}

func (w *DetectionWorkflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Pending returns a copy of the detection awaiting review, or nil.
func (w *DetectionWorkflow) Pending() *monitor.PendingDetection {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return nil
	}
	p := *w.pending
	return &p
}

// Restore loads a previously stored pending detection, typically after
// a restart mid-review. It must run before the first gate selection.
func (w *DetectionWorkflow) Restore(ctx context.Context) error {
	pending, err := w.store.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore pending detection: %w", err)
	}
	if pending == nil {
		return nil
	}

	w.mu.Lock()
	w.pending = pending
	w.phase = PhaseReviewing
	w.mu.Unlock()

	w.log.Info().Str("time_in", pending.TimeIn).Msg("restored pending detection")
	w.events.Append(fmt.Sprintf("Restored unresolved detection %s", plateOrUnknown(pending.Detection)), monitor.EventWarning)
	return nil
}

// Trigger runs one capture-and-process cycle against the resolved
// front/side sessions. It is single-flight: a second trigger while one
// is running, or while a detection awaits review, is rejected rather
// than queued. valid reports whether the requesting gate view is still
// current when the pipeline responds; stale results are discarded.
func (w *DetectionWorkflow) Trigger(
	ctx context.Context,
	gate string,
	frontSessionID string,
	sideSessionID *string,
	valid func() bool,
) (*monitor.PendingDetection, error) {
	w.mu.Lock()
	switch w.phase {
	case PhaseCapturing:
		w.mu.Unlock()
		return nil, ErrCaptureInFlight
	case PhaseReviewing:
		w.mu.Unlock()
		return nil, ErrReviewPending
	}
	w.phase = PhaseCapturing
	w.mu.Unlock()

	w.events.Append("Detection started", monitor.EventInfo)

	result, err := w.gw.CaptureAndProcess(ctx, gateway.CaptureRequest{
		Gate:           gate,
		FrontSessionID: frontSessionID,
		SideSessionID:  sideSessionID,
	})
	if err != nil {
		w.mu.Lock()
		w.phase = PhaseIdle
		w.mu.Unlock()

		if errors.Is(err, gateway.ErrNoVehicle) {
			w.events.Append("No vehicle detected", monitor.EventWarning)
			return nil, err
		}
		w.log.Error().Err(err).Str("gate", gate).Msg("capture pipeline failed")
		w.events.Append("Detection failed", monitor.EventError)
		return nil, err
	}

	if valid != nil && !valid() {
		w.mu.Lock()
		w.phase = PhaseIdle
		w.mu.Unlock()

		w.log.Warn().Str("gate", gate).Str("time_in", result.TimeIn).Msg("discarding late detection result")
		w.events.Append("Discarded detection result for a previous gate", monitor.EventWarning)
		return nil, ErrStaleResult
	}

	// The backend is authoritative for the row key: the pending record
	// is built straight from its response, so later confirm/reject/edit
	// calls reference the row it actually wrote.
	pending := &monitor.PendingDetection{
		Detection:   *result,
		SnapshotURL: result.SnapshotURL,
		TimeIn:      result.TimeIn,
	}
	if result.FrontImage != "" {
		pending.CapturedImages = append(pending.CapturedImages, result.FrontImage)
	}
	if result.SideImage != "" {
		pending.CapturedImages = append(pending.CapturedImages, result.SideImage)
	}
	// TimeIn is the join key and is never generated locally, but the
	// evidence identifier may be absent on older backends.
	if pending.Detection.UUID == "" {
		pending.Detection.UUID = uuid.NewString()
	}

	w.mu.Lock()
	w.pending = pending
	w.phase = PhaseReviewing
	w.mu.Unlock()

	w.logFindings(result)

	if err := w.store.SavePending(ctx, pending); err != nil {
		w.log.Error().Err(err).Str("time_in", pending.TimeIn).Msg("failed to persist pending detection")
	}
	w.notify("captured", gate, pending)

	out := *pending
	return &out, nil
}

func (w *DetectionWorkflow) logFindings(result *monitor.DetectionResult) {
	if result.PlateNumber != nil && *result.PlateNumber != "" {
		w.events.Append(fmt.Sprintf("Plate detected: %s", *result.PlateNumber), monitor.EventSuccess)
	} else {
		w.events.Append("Plate not readable", monitor.EventWarning)
	}
	if result.Color != nil && *result.Color != "" {
		w.events.Append(fmt.Sprintf("Vehicle color: %s", *result.Color), monitor.EventInfo)
	}
	if result.WheelCount > 0 {
		w.events.Append(fmt.Sprintf("Wheel count: %d", result.WheelCount), monitor.EventInfo)
	}
	if result.Matched {
		msg := "Vehicle matched in registry"
		if result.Registered != nil && result.Registered.Owner != "" {
			msg = fmt.Sprintf("Vehicle matched in registry: %s", result.Registered.Owner)
		}
		w.events.Append(msg, monitor.EventSuccess)
	} else {
		w.events.Append("Vehicle not found in registry", monitor.EventWarning)
	}
}

// Confirm marks the history row entered and verified, then clears the
// pending detection regardless of the update outcome. An update failure
// is surfaced to the caller for display but never blocks the clear: an
// operator must not get stuck on a row the backend will not accept.
func (w *DetectionWorkflow) Confirm(ctx context.Context, gate string) error {
	pending, err := w.takePending()
	if err != nil {
		return err
	}

	updateErr := w.gw.UpdateHistory(ctx, monitor.HistoryUpdate{
		TimeIn: pending.TimeIn,
		Plate:  plateOrUnknown(pending.Detection),
		Status: monitor.StatusEntered,
		Verify: monitor.VerifyVerified,
	})
	if updateErr != nil {
		w.log.Error().Err(updateErr).Str("time_in", pending.TimeIn).Msg("confirm update failed")
		w.events.Append("Failed to update history record", monitor.EventError)
	} else {
		w.events.Append(fmt.Sprintf("Entry confirmed: %s", plateOrUnknown(pending.Detection)), monitor.EventSuccess)
	}

	w.clear(ctx)
	w.notify("confirmed", gate, pending)
	return updateErr
}

// Reject marks the history row entry-pending, unverified and rejected,
// then clears with the same fire-and-forget semantics as Confirm.
func (w *DetectionWorkflow) Reject(ctx context.Context, gate string) error {
	pending, err := w.takePending()
	if err != nil {
		return err
	}

	updateErr := w.gw.UpdateHistory(ctx, monitor.HistoryUpdate{
		TimeIn: pending.TimeIn,
		Plate:  plateOrUnknown(pending.Detection),
		Status: monitor.StatusPending,
		Verify: monitor.VerifyRejected,
	})
	if updateErr != nil {
		w.log.Error().Err(updateErr).Str("time_in", pending.TimeIn).Msg("reject update failed")
		w.events.Append("Failed to update history record", monitor.EventError)
	} else {
		w.events.Append(fmt.Sprintf("Entry rejected: %s", plateOrUnknown(pending.Detection)), monitor.EventWarning)
	}

	w.clear(ctx)
	w.notify("rejected", gate, pending)
	return updateErr
}

// Edit applies the operator's corrections to the existing history row.
// It never creates a new row: the update targets the TimeIn assigned at
// capture. The plate is upper-cased before submission.
func (w *DetectionWorkflow) Edit(ctx context.Context, gate string, req EditRequest) error {
	pending, err := w.takePending()
	if err != nil {
		return err
	}

	plate := strings.ToUpper(strings.TrimSpace(req.Plate))
	if plate == "" {
		plate = plateOrUnknown(pending.Detection)
	}
	status := req.Status
	if status == "" {
		status = monitor.StatusEntered
	}
	verify := req.Verify
	if verify == "" {
		verify = monitor.VerifyVerified
	}

	updateErr := w.gw.UpdateHistory(ctx, monitor.HistoryUpdate{
		TimeIn: pending.TimeIn,
		Plate:  plate,
		Status: status,
		Verify: verify,
		Note:   req.Note,
	})
	if updateErr != nil {
		w.log.Error().Err(updateErr).Str("time_in", pending.TimeIn).Msg("edit update failed")
		w.events.Append("Failed to update history record", monitor.EventError)
	} else {
		w.events.Append(fmt.Sprintf("Entry edited: %s", plate), monitor.EventSuccess)
	}

	pending.Detection.PlateNumber = &plate
	w.clear(ctx)
	w.notify("edited", gate, pending)
	return updateErr
}

// takePending snapshots the reviewed detection under the guard every
// review action shares: a no-op without a pending TimeIn.
func (w *DetectionWorkflow) takePending() (*monitor.PendingDetection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil || w.pending.TimeIn == "" {
		return nil, ErrNoPending
	}
	p := *w.pending
	return &p, nil
}

// clear drops the pending detection and removes the stored blob so a
// later restart cannot resurrect a resolved record.
func (w *DetectionWorkflow) clear(ctx context.Context) {
	w.mu.Lock()
	w.pending = nil
	w.phase = PhaseIdle
	w.mu.Unlock()

	if err := w.store.ClearPending(ctx); err != nil {
		w.log.Error().Err(err).Msg("failed to clear stored pending detection")
	}
}

func (w *DetectionWorkflow) notify(kind, gate string, pending *monitor.PendingDetection) {
	if w.notifier == nil {
		return
	}
	notice := monitor.DetectionNotice{
		Type:    kind,
		Gate:    gate,
		Plate:   plateOrUnknown(pending.Detection),
		TimeIn:  pending.TimeIn,
		Matched: pending.Detection.Matched,
		Time:    time.Now(),
	}
	if err := w.notifier.PublishDetection(notice); err != nil {
		w.log.Warn().Err(err).Str("type", kind).Msg("detection notice publish failed")
	}
}

func plateOrUnknown(d monitor.DetectionResult) string {
	if d.PlateNumber != nil && *d.PlateNumber != "" {
		return *d.PlateNumber
	}
	return "UNKNOWN"
}
