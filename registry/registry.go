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

// Package registry tracks scheduled-task handles: a handle notifies the
// registry when it is scheduled and descheduled, and callers introspect
// recently-finished handles here without holding a reference to them.
// The "recent" view is bounded by an LRU so long-running processes with
// many short-lived handles don't accumulate history without limit.
package registry

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Info is a lightweight, read-only description of a registered handle,
// stable after the handle is descheduled.
type Info struct {
	ID          string
	Pattern     string
	Scheduled   time.Time
	Descheduled time.Time
	CallCount   int64
	Cancelled   bool
}

// Registry tracks every live handle and keeps a bounded history of
// recently-descheduled ones.
type Registry struct {
	mu     sync.RWMutex
	live   map[string]Info
	recent *lru.Cache
}

// New creates a Registry whose "recent" view holds at most recentSize
// entries. recentSize <= 0 defaults to 256.
func New(recentSize int) *Registry {
	if recentSize <= 0 {
		recentSize = 256
	}
	cache, _ := lru.New(recentSize)
	return &Registry{
		live:   make(map[string]Info),
		recent: cache,
	}
}

// OnScheduled records that a handle with the given id and pattern has
// entered the live set.
func (r *Registry) OnScheduled(id, pattern string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[id] = Info{ID: id, Pattern: pattern, Scheduled: at}
}

// OnDescheduled moves a handle out of the live set and into the bounded
// recent history, stamping its final call count and cancellation state.
func (r *Registry) OnDescheduled(id string, at time.Time, callCount int64, cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.live[id]
	if !ok {
		info = Info{ID: id}
	}
	delete(r.live, id)
	info.Descheduled = at
	info.CallCount = callCount
	info.Cancelled = cancelled
	r.recent.Add(id, info)
}

// Live returns a snapshot of every handle currently registered as live.
func (r *Registry) Live() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.live))
	for _, info := range r.live {
		out = append(out, info)
	}
	return out
}

// Recent returns a snapshot of the bounded, most-recently-descheduled
// handles, most recent first.
func (r *Registry) Recent() []Info {
	keys := r.recent.Keys()
	out := make([]Info, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if v, ok := r.recent.Peek(keys[i]); ok {
			out = append(out, v.(Info))
		}
	}
	return out
}

// LiveCount returns the number of currently-live handles.
func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
