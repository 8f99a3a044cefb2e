// Copyright 2015 Comcast Cable Communications Management, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// End Copyright

// Package timer holds a pattern's initial delay and fires a single
// callback once that delay elapses, independently of any recurring
// cron schedule. A delay is always a plain duration, never a cron
// field, so it gets its own small service instead of a cron entry.
package timer

import (
	"sync"
	"time"
)

// Service schedules one-shot, delayed callbacks and lets any of them be
// cancelled before they fire.
type Service struct {
	mu      sync.Mutex
	pending map[uint64]*time.Timer
	nextID  uint64
}

// NewService creates an empty Service.
func NewService() *Service {
	return &Service{pending: make(map[uint64]*time.Timer)}
}

// AddTimeout arranges for fn to run once, after delay elapses. It
// returns an id that Cancel accepts. A delay of zero or less runs fn on
// the next scheduler tick via time.AfterFunc(0, ...), matching
// time.AfterFunc's own zero-delay behavior.
func (s *Service) AddTimeout(delay time.Duration, fn func()) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	// A zero delay can fire before this function returns; the callback
	// blocks on the mutex until the pending entry is in place.
	s.pending[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		fn()
	})
	return id
}

// Cancel stops the pending timeout with the given id, if it hasn't
// already fired. It reports whether a pending timeout was actually
// stopped.
func (s *Service) Cancel(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)
	return t.Stop()
}

// Pending returns the number of timeouts not yet fired or cancelled.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
