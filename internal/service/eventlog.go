package service

import (
	"sync"

	"gate-monitor/internal/domain/monitor"
)

// maxLogEntries bounds the operational event log.
const maxLogEntries = 50

// EventLog is a bounded, most-recent-first record of human-readable
// operational events. It is deliberately not persisted: a fresh view
// starts with an empty log.
type EventLog struct {
	mu        sync.Mutex
	entries   []monitor.EventLogEntry
	scheduler Scheduler
}

func NewEventLog(scheduler Scheduler) *EventLog {
	return &EventLog{scheduler: scheduler}
}

// Append prepends an entry, suppressing an immediate duplicate of the
// same message within the same clock second. Polling loops fire the
// same event repeatedly; without this guard the log fills with noise.
func (l *EventLog) Append(message string, kind monitor.EventType) {
	entry := monitor.EventLogEntry{
		Time:    l.scheduler.Now().Format("15:04:05"),
		Message: message,
		Type:    kind,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) > 0 {
		last := l.entries[0]
		if last.Message == entry.Message && last.Time == entry.Time {
			return
		}
	}

	l.entries = append([]monitor.EventLogEntry{entry}, l.entries...)
	if len(l.entries) > maxLogEntries {
		l.entries = l.entries[:maxLogEntries]
	}
}

// Entries returns a copy, most recent first.
func (l *EventLog) Entries() []monitor.EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]monitor.EventLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
