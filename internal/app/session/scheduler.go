package session

import (
	"time"

	"github.com/bep/debounce"
)

// scheduler coalesces renegotiation triggers and owns the channel-down retry timer.
// Methods are called from the session loop only; fire callbacks run on timer goroutines.
type scheduler struct {
	debounced  func(func())
	fire       func()
	retryDelay time.Duration
	retryFire  func()
	retry      *time.Timer
}

func newScheduler(window, retryDelay time.Duration, fire, retryFire func()) *scheduler {
	return &scheduler{
		debounced:  debounce.New(window),
		fire:       fire,
		retryDelay: retryDelay,
		retryFire:  retryFire,
	}
}

// Trigger restarts the debounce window; the attempt fires once the window passes quietly.
func (s *scheduler) Trigger() { s.debounced(s.fire) }

// ArmRetry replaces any armed retry with a fresh one-shot timer.
func (s *scheduler) ArmRetry() {
	if s.retry != nil {
		s.retry.Stop()
	}
	s.retry = time.AfterFunc(s.retryDelay, s.retryFire)
}

// Cancel drops a pending debounced attempt and the retry timer.
func (s *scheduler) Cancel() {
	s.debounced(func() {})
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}
