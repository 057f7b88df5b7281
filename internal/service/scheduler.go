package service

import (
	"time"
)

// Scheduler owns every timer the orchestrator uses. The view controller
// starts and stops work through it on lifecycle boundaries, and tests
// substitute a fake to drive time deterministically.
type Scheduler interface {
	// After runs fn once after d. The returned func cancels the run if
	// it has not fired yet.
	After(d time.Duration, fn func()) (cancel func())
	// Every runs fn repeatedly at interval d until the returned stop
	// func is called.
	Every(d time.Duration, fn func()) (stop func())
	Now() time.Time
}

type clockScheduler struct{}

// NewScheduler returns a Scheduler backed by real timers.
func NewScheduler() Scheduler {
	return clockScheduler{}
}

func (clockScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

func (clockScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func (clockScheduler) Now() time.Time {
	return time.Now()
}
