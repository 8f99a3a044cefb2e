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

	"github.com/cronfuture/cronfuture/logging"
)

// Listener is notified with a frozen Snapshot of every completed tick
// of a Handle. A panicking Listener is recovered and logged; it never
// affects the tick runner or other listeners.
type Listener func(snap *Snapshot)

// ListenerID identifies a registered Listener so it can later be
// removed by identity, which a bare Go func value cannot be compared
// for under ==.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// listenerRegistry fans a single tick's outcome out to every registered
// Listener, according to a fixed sync/async x serial/concurrent policy
// chosen at construction time. Dispatch copies the listener slice under
// the lock and then calls out with the lock released, so a listener can
// safely call back into the registry or the Handle.
type listenerRegistry struct {
	mu           sync.Mutex
	listeners    []listenerEntry
	nextID       ListenerID
	syncNotify   bool
	concurNotify bool
	pool         Dispatcher
	log          logging.Logger
}

func newListenerRegistry(syncNotify, concurNotify bool, pool Dispatcher, log logging.Logger) *listenerRegistry {
	if log == nil {
		log = logging.Discard
	}
	return &listenerRegistry{
		syncNotify:   syncNotify,
		concurNotify: concurNotify,
		pool:         pool,
		log:          log,
	}
}

// count returns the number of currently registered listeners.
func (r *listenerRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// add appends l and returns its ListenerID.
func (r *listenerRegistry) add(l Listener) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, listenerEntry{id: id, fn: l})
	return id
}

// remove drops the listeners identified by ids, if present. Removing an
// unknown or already-removed id is a no-op.
func (r *listenerRegistry) remove(ids ...ListenerID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[ListenerID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.listeners[:0]
	for _, e := range r.listeners {
		if !drop[e.id] {
			kept = append(kept, e)
		}
	}
	r.listeners = kept
}

// dispatch delivers snap to every registered listener according to the
// registry's policy, and returns how many listeners were notified.
//
//   - syncNotify && !concurNotify:  caller's goroutine, one at a time.
//   - syncNotify && concurNotify:   caller's goroutine blocks until all
//     listeners, fired concurrently, return.
//   - !syncNotify && !concurNotify: one pool goroutine runs every
//     listener in order; dispatch returns immediately.
//   - !syncNotify && concurNotify:  each listener gets its own pool
//     goroutine; dispatch returns immediately.
func (r *listenerRegistry) dispatch(snap *Snapshot) int {
	r.mu.Lock()
	ls := make([]listenerEntry, len(r.listeners))
	copy(ls, r.listeners)
	r.mu.Unlock()

	if len(ls) == 0 {
		return 0
	}

	switch {
	case r.syncNotify && !r.concurNotify:
		for _, e := range ls {
			r.safeCall(e.fn, snap)
		}
	case r.syncNotify && r.concurNotify:
		var wg sync.WaitGroup
		wg.Add(len(ls))
		for _, e := range ls {
			e := e
			go func() {
				defer wg.Done()
				r.safeCall(e.fn, snap)
			}()
		}
		wg.Wait()
	case !r.syncNotify && r.concurNotify:
		for _, e := range ls {
			e := e
			r.submit("future.listener", func() { r.safeCall(e.fn, snap) })
		}
	default: // async, serial
		r.submit("future.listener.serial", func() {
			for _, e := range ls {
				r.safeCall(e.fn, snap)
			}
		})
	}

	return len(ls)
}

// deliverOne delivers snap to a single listener, respecting syncNotify
// (caller's goroutine vs. the worker pool) but not concurNotify, which
// only governs fan-out across multiple listeners. It is used for the
// one-shot catch-up delivery in AddListener.
func (r *listenerRegistry) deliverOne(l Listener, snap *Snapshot) {
	if r.syncNotify {
		r.safeCall(l, snap)
		return
	}
	r.submit("future.listener.catchup", func() { r.safeCall(l, snap) })
}

// submit hands fn to the worker pool, or to a plain goroutine when no
// pool was configured. safeCall inside fn already isolates panics.
func (r *listenerRegistry) submit(op string, fn func()) {
	if r.pool != nil {
		r.pool.Run(op, fn)
		return
	}
	go fn()
}

func (r *listenerRegistry) safeCall(l Listener, snap *Snapshot) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Log(logging.ERROR|logging.LISTENER, "listener.dispatch", "panic", p)
		}
	}()
	l(snap)
}
