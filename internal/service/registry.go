package service

import (
	"sync"

	"gate-monitor/internal/domain/monitor"
)

// SessionRegistry maps camera ids to live backend session ids. Entries
// exist only for cameras whose connect call succeeded during the
// current view lifetime; a gate switch resets the registry and every
// camera reconnects.
type SessionRegistry struct {
	mu         sync.RWMutex
	sessions   map[int64]string
	connecting map[int64]bool
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions:   make(map[int64]string),
		connecting: make(map[int64]bool),
	}
}

func (r *SessionRegistry) Put(cameraID int64, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[cameraID] = sessionID
}

func (r *SessionRegistry) Get(cameraID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessions[cameraID]
	return id, ok
}

func (r *SessionRegistry) Drop(cameraID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cameraID)
}

func (r *SessionRegistry) SetConnecting(cameraID int64, connecting bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if connecting {
		r.connecting[cameraID] = true
	} else {
		delete(r.connecting, cameraID)
	}
}

func (r *SessionRegistry) Connecting(cameraID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connecting[cameraID]
}

// Connected reports whether the camera has a live session.
func (r *SessionRegistry) Connected(cameraID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[cameraID]
	return ok
}

// Sessions returns a snapshot of all live sessions.
func (r *SessionRegistry) Sessions() []monitor.ConnectionSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]monitor.ConnectionSession, 0, len(r.sessions))
	for camID, sessID := range r.sessions {
		out = append(out, monitor.ConnectionSession{CameraID: camID, SessionID: sessID})
	}
	return out
}

// Reset drops every session and connecting flag.
func (r *SessionRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[int64]string)
	r.connecting = make(map[int64]bool)
}
