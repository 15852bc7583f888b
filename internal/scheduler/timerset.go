// Package scheduler owns the per-ticket inactivity timers, the workspace
// unclaimed-ticket sweep, and the automation controller lifecycle.
package scheduler

import (
	"sync"
	"time"
)

// timerPair holds the pending warning and auto-close timers for one channel.
// At most one of each exists per channel at any time.
type timerPair struct {
	warning   *time.Timer
	autoClose *time.Timer
}

// TimerSet maps channel ids to their pending timer pairs. All mutation goes
// through the mutex so a message arriving concurrently with a timer firing
// can never leave two live timers for the same channel.
type TimerSet struct {
	mu    sync.Mutex
	pairs map[string]*timerPair
}

// NewTimerSet builds an empty timer set.
func NewTimerSet() *TimerSet {
	return &TimerSet{pairs: make(map[string]*timerPair)}
}

// Reset atomically cancels any pending timers for the channel and arms new
// ones. A zero duration leaves the corresponding timer unarmed (policy
// disabled). The warning timer is one-shot; it does not re-arm itself.
func (s *TimerSet) Reset(channelID string, warningAfter, autoCloseAfter time.Duration, onWarning, onAutoClose func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(channelID)

	pair := &timerPair{}
	if warningAfter > 0 && onWarning != nil {
		pair.warning = time.AfterFunc(warningAfter, onWarning)
	}
	if autoCloseAfter > 0 && onAutoClose != nil {
		pair.autoClose = time.AfterFunc(autoCloseAfter, onAutoClose)
	}
	if pair.warning == nil && pair.autoClose == nil {
		return
	}
	s.pairs[channelID] = pair
}

// Cancel stops and removes any pending timers for the channel.
func (s *TimerSet) Cancel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(channelID)
}

// CancelAll stops every pending timer.
func (s *TimerSet) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.pairs {
		s.cancelLocked(id)
	}
}

// Pending reports whether the channel has any armed timer. Exposed for the
// controller and tests.
func (s *TimerSet) Pending(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pairs[channelID]
	return ok
}

func (s *TimerSet) cancelLocked(channelID string) {
	pair, ok := s.pairs[channelID]
	if !ok {
		return
	}
	if pair.warning != nil {
		pair.warning.Stop()
	}
	if pair.autoClose != nil {
		pair.autoClose.Stop()
	}
	delete(s.pairs, channelID)
}
