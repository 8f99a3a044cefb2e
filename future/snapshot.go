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

package future

import (
	"encoding/json"
	"errors"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/cronfuture/cronfuture/logging"
)

// Snapshot is an immutable view of a Handle frozen at the moment one
// tick completed. Last() always returns that tick's own (result, error)
// pair, even if later ticks complete while a listener is still looking
// at this Snapshot. Every other accessor delegates to the live Handle
// through a back-reference, so e.g. CallCount or Statistics may reflect
// ticks that completed after this Snapshot was handed out.
type Snapshot struct {
	h   *Handle
	res interface{}
	err error
}

// Last returns the result and/or error of the specific tick this
// Snapshot was taken for.
func (s *Snapshot) Last() (interface{}, error) { return s.res, s.err }

// ID delegates to the live Handle's ID.
func (s *Snapshot) ID() string { return s.h.ID() }

// Pattern delegates to the live Handle's Pattern.
func (s *Snapshot) Pattern() *Pattern { return s.h.Pattern() }

// CallCount delegates to the live Handle's CallCount.
func (s *Snapshot) CallCount() int64 { return s.h.CallCount() }

// IsDone delegates to the live Handle's IsDone.
func (s *Snapshot) IsDone() bool { return s.h.IsDone() }

// IsCancelled delegates to the live Handle's IsCancelled.
func (s *Snapshot) IsCancelled() bool { return s.h.IsCancelled() }

// Statistics delegates to the live Handle's Statistics.
func (s *Snapshot) Statistics() StatisticsSnapshot { return s.h.Statistics() }

// Get delegates to the live Handle's Get. It does not replay this
// Snapshot's own tick, it awaits the Handle's next one.
func (s *Snapshot) Get() (interface{}, error) { return s.h.Get() }

// GetTimeout delegates to the live Handle's GetTimeout.
func (s *Snapshot) GetTimeout(d time.Duration) (interface{}, error) { return s.h.GetTimeout(d) }

// PersistedSnapshot is the wire-format payload for a terminal Handle:
// cancellation flag, last result or error, execution statistics, and
// the notification policy. The pattern, registration id, delay, call
// budget, and call count are deliberately not carried: the remote
// view is a frozen snapshot of the last outcome only, not a resumable
// schedule.
type PersistedSnapshot struct {
	Cancelled    bool               `json:"cancelled" yaml:"cancelled"`
	LastResult   interface{}        `json:"lastResult,omitempty" yaml:"lastResult,omitempty"`
	LastError    string             `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	Statistics   StatisticsSnapshot `json:"statistics" yaml:"statistics"`
	SyncNotify   bool               `json:"syncNotify" yaml:"syncNotify"`
	ConcurNotify bool               `json:"concurNotify" yaml:"concurNotify"`

	// The following are local conveniences, not part of the wire
	// contract. They let cmd/cronfuturectl key a Store by id and print
	// a human-readable pattern, but Restore never reads them back.
	ID            string    `json:"id,omitempty" yaml:"id,omitempty"`
	Pattern       string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	CallCount     int64     `json:"callCount,omitempty" yaml:"callCount,omitempty"`
	ScheduledAt   time.Time `json:"scheduledAt,omitempty" yaml:"scheduledAt,omitempty"`
	DescheduledAt time.Time `json:"descheduledAt,omitempty" yaml:"descheduledAt,omitempty"`
}

// JSON renders the PersistedSnapshot as indented JSON.
func (s *PersistedSnapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// YAML renders the PersistedSnapshot as YAML.
func (s *PersistedSnapshot) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// ParsePersistedSnapshotJSON decodes a PersistedSnapshot previously
// rendered by JSON.
func ParsePersistedSnapshotJSON(data []byte) (*PersistedSnapshot, error) {
	var s PersistedSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParsePersistedSnapshotYAML decodes a PersistedSnapshot previously
// rendered by YAML.
func ParsePersistedSnapshotYAML(data []byte) (*PersistedSnapshot, error) {
	var s PersistedSnapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Persist returns h's terminal wire state. Calling Persist on a Handle
// that hasn't reached a terminal state is legal (it simply reports the
// most recent tick's outcome, if any), but Restore always reconstructs
// a *done* Handle regardless.
func (h *Handle) Persist() *PersistedSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	ps := &PersistedSnapshot{
		Cancelled:     h.cancelled,
		Statistics:    h.stats.snapshot(),
		SyncNotify:    h.listeners.syncNotify,
		ConcurNotify:  h.listeners.concurNotify,
		ID:            h.id,
		Pattern:       h.pattern.String(),
		CallCount:     h.callCnt,
		ScheduledAt:   h.scheduledAt,
		DescheduledAt: h.descheduledAt,
	}
	if h.hasRun {
		ps.LastResult = h.lastRes
		if h.lastErr != nil {
			ps.LastError = h.lastErr.Error()
		}
	}
	return ps
}

// Restore reconstructs a detached, terminal Handle from a previously
// Persisted snapshot: done=true, an already-open gate, no cron
// registration, no task reference, and no listeners.
// cancelled, lastRes, lastErr, syncNotify, concurNotify, and stats are
// carried over from ps; everything else (pattern, id, delay, maxCalls,
// callCnt) starts from its zero value, since the wire contract never
// carried it.
func Restore(ps *PersistedSnapshot) *Handle {
	gate := newResultGate()
	close(gate.ch)

	h := &Handle{
		pattern:   &Pattern{},
		stats:     restoreStatistics(ps.Statistics),
		listeners: newListenerRegistry(ps.SyncNotify, ps.ConcurNotify, nil, logging.Discard),
		log:       logging.Discard,
		done:      true,
		cancelled: ps.Cancelled,
		resGate:   gate,
	}
	if ps.LastResult != nil || ps.LastError != "" {
		h.hasRun = true
		h.lastRes = ps.LastResult
		if ps.LastError != "" {
			h.lastErr = errors.New(ps.LastError)
		}
	}
	return h
}
