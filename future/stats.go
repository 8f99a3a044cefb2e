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
	"sync"
	"time"
)

// statistics is the per-Handle execution counter set: create time,
// execution count, last/total run and idle times, and a running flag.
// Mutex-guarded rather than atomic, so a Statistics read never observes
// a half-updated record (e.g. totalExecutionTime incremented but
// executionCount not yet). Kept as its own lock rather than folded into
// the Handle's mutex because nothing outside onStart/onEnd/snapshot
// ever needs stats and Handle state updated atomically together.
type statistics struct {
	mu sync.Mutex

	createTime    time.Time
	lastStartTime time.Time
	lastEndTime   time.Time

	executionCount     int64
	errorCount         int64
	totalExecutionTime time.Duration
	lastExecutionTime  time.Duration
	totalIdleTime      time.Duration
	lastIdleTime       time.Duration

	running bool
}

func newStatistics() *statistics {
	return &statistics{createTime: time.Now()}
}

// onStart records the beginning of a tick and the idle gap since the
// previous tick ended, or since construction for the handle's first
// tick.
func (s *statistics) onStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	from := s.createTime
	if !s.lastEndTime.IsZero() {
		from = s.lastEndTime
	}
	idle := now.Sub(from)
	s.lastIdleTime = idle
	s.totalIdleTime += idle
	s.lastStartTime = now
	s.running = true
}

// onEnd records the completion of a tick.
func (s *statistics) onEnd(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.lastEndTime = now
	s.executionCount++
	dur := now.Sub(s.lastStartTime)
	s.totalExecutionTime += dur
	s.lastExecutionTime = dur
	if err != nil {
		s.errorCount++
	}
	s.running = false
}

func (s *statistics) executionCount64() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executionCount
}

// StatisticsSnapshot is the serializable view of a Handle's execution
// counters, embedded in PersistedSnapshot.
type StatisticsSnapshot struct {
	CreateTime           time.Time     `json:"createTime" yaml:"createTime"`
	LastStartTime        time.Time     `json:"lastStartTime,omitempty" yaml:"lastStartTime,omitempty"`
	LastEndTime          time.Time     `json:"lastEndTime,omitempty" yaml:"lastEndTime,omitempty"`
	ExecutionCount       int64         `json:"executionCount" yaml:"executionCount"`
	ErrorCount           int64         `json:"errorCount" yaml:"errorCount"`
	TotalExecutionTime   time.Duration `json:"totalExecutionTime" yaml:"totalExecutionTime"`
	LastExecutionTime    time.Duration `json:"lastExecutionTime" yaml:"lastExecutionTime"`
	AverageExecutionTime time.Duration `json:"averageExecutionTime" yaml:"averageExecutionTime"`
	TotalIdleTime        time.Duration `json:"totalIdleTime" yaml:"totalIdleTime"`
	LastIdleTime         time.Duration `json:"lastIdleTime" yaml:"lastIdleTime"`
	AverageIdleTime      time.Duration `json:"averageIdleTime" yaml:"averageIdleTime"`
	Running              bool          `json:"running" yaml:"running"`
}

func (s *statistics) snapshot() StatisticsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var avgExec, avgIdle time.Duration
	if s.executionCount > 0 {
		avgExec = s.totalExecutionTime / time.Duration(s.executionCount)
		avgIdle = s.totalIdleTime / time.Duration(s.executionCount)
	}
	return StatisticsSnapshot{
		CreateTime:           s.createTime,
		LastStartTime:        s.lastStartTime,
		LastEndTime:          s.lastEndTime,
		ExecutionCount:       s.executionCount,
		ErrorCount:           s.errorCount,
		TotalExecutionTime:   s.totalExecutionTime,
		LastExecutionTime:    s.lastExecutionTime,
		AverageExecutionTime: avgExec,
		TotalIdleTime:        s.totalIdleTime,
		LastIdleTime:         s.lastIdleTime,
		AverageIdleTime:      avgIdle,
		Running:              s.running,
	}
}

// restoreStatistics rebuilds a detached statistics record from a
// previously-taken StatisticsSnapshot, for Restore. The rebuilt record
// is never started again; onStart/onEnd are never called on it.
func restoreStatistics(snap StatisticsSnapshot) *statistics {
	return &statistics{
		createTime:         snap.CreateTime,
		lastStartTime:      snap.LastStartTime,
		lastEndTime:        snap.LastEndTime,
		executionCount:     snap.ExecutionCount,
		errorCount:         snap.ErrorCount,
		totalExecutionTime: snap.TotalExecutionTime,
		lastExecutionTime:  snap.LastExecutionTime,
		totalIdleTime:      snap.TotalIdleTime,
		lastIdleTime:       snap.LastIdleTime,
		running:            false,
	}
}
