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

// Package cronengine parses and validates bare cron expressions,
// predicts their next firing instant, and drives repeated invocation of
// a registered callback. It has no notion of handles, futures,
// listeners, or the extended "{delay,maxCalls}" syntax; those live one
// layer up, in package future, and one-shot delays belong to package
// timer. A sorted timeline plus a single time.Timer drives the next
// fire; a shared Broadcaster gives coarse, process-wide suspend/resume.
package cronengine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/cronfuture/cronfuture/logging"
)

// EntryID identifies a single registration with an Engine. It is never
// reused while the Engine is alive.
type EntryID uint64

// entry is one scheduled callback awaiting its next firing.
type entry struct {
	id   EntryID
	expr *cronexpr.Expression
	next time.Time
	fn   func()
}

// timeline is the time-ordered list of pending entries, sorted
// ascending by next firing time.
type timeline []*entry

func (tl timeline) Len() int           { return len(tl) }
func (tl timeline) Swap(i, j int)      { tl[i], tl[j] = tl[j], tl[i] }
func (tl timeline) Less(i, j int) bool { return tl[i].next.Before(tl[j].next) }

func (tl timeline) search(t time.Time) int {
	return sort.Search(len(tl), func(i int) bool { return t.Before(tl[i].next) })
}

// Broadcaster lets multiple Engines be suspended and resumed together,
// e.g. for maintenance windows. Every reader of Get() hears a closed
// channel when the state toggles, then re-fetches the new channel.
type Broadcaster struct {
	mu        sync.RWMutex
	suspended bool
	c         chan struct{}
}

// NewBroadcaster creates a Broadcaster in the resumed state.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{c: make(chan struct{})}
}

// Get returns the broadcaster's current channel and whether it is
// currently suspended.
func (b *Broadcaster) Get() (<-chan struct{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.c, b.suspended
}

// Suspend broadcasts suspension to every Engine sharing this Broadcaster.
func (b *Broadcaster) Suspend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toggle()
	b.suspended = true
}

// Resume broadcasts resumption to every Engine sharing this Broadcaster.
func (b *Broadcaster) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toggle()
	b.suspended = false
}

func (b *Broadcaster) toggle() {
	close(b.c)
	b.c = make(chan struct{})
}

// SysBroadcaster is the default, process-wide shared Broadcaster.
var SysBroadcaster = NewBroadcaster()

// Engine is a small in-memory cron driver: parse, validate, predict,
// and repeatedly invoke callbacks on their matching instants.
//
// Not persistent, not fair across entries, not intended to hold more
// than a modest number of live entries per instance.
type Engine struct {
	mu        sync.Mutex
	tl        timeline
	byID      map[EntryID]*entry
	nextID    EntryID
	timer     *time.Timer
	broadcast *Broadcaster

	// Capacity is the approximate maximum number of pending entries;
	// 0 means unbounded.
	Capacity int

	log logging.Logger

	control   chan string
	started   bool
	suspended bool
}

// New creates an Engine. If broadcaster is nil, SysBroadcaster is used.
func New(broadcaster *Broadcaster, capacity int, log logging.Logger) *Engine {
	if broadcaster == nil {
		broadcaster = SysBroadcaster
	}
	if log == nil {
		log = logging.Discard
	}
	return &Engine{
		byID:      make(map[EntryID]*entry),
		timer:     time.NewTimer(0),
		broadcast: broadcaster,
		Capacity:  capacity,
		log:       log,
	}
}

// Validate reports whether expr is a syntactically valid bare cron
// expression, without registering anything. Five, six and seven fields
// are accepted: six adds a trailing year field, and seven adds a leading
// seconds field as well.
func Validate(expr string) error {
	_, err := cronexpr.Parse(expr)
	return err
}

// Next returns the next instant strictly after from that expr matches;
// from itself is never returned, even when it matches.
func Next(expr string, from time.Time) (time.Time, error) {
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.Next(from), nil
}

// Start launches the Engine's processing goroutine. It returns once
// the goroutine has been started; a second Start on a running Engine is
// a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.control = make(chan string, 10)
	e.started = true
	e.mu.Unlock()

	e.log.Log(logging.INFO|logging.CRON, "Engine.Start")
	go e.run()
}

// Stop halts the Engine's processing loop. Registered entries are not
// removed; nothing fires while the loop is stopped.
func (e *Engine) Stop() {
	e.send("kill")
}

// Suspend pauses this one Engine's firing without affecting other
// Engines on the same Broadcaster. Entries stay registered; their
// missed instants are simply skipped.
func (e *Engine) Suspend() {
	e.send("suspend")
}

// Resume undoes a prior Suspend. Resuming a never-suspended Engine is
// a no-op.
func (e *Engine) Resume() {
	e.send("resume")
}

func (e *Engine) send(cmd string) {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	ctl := e.control
	e.mu.Unlock()
	ctl <- cmd
}

// Schedule registers fn to run on every instant expr matches, starting
// from the next one after now. It returns an EntryID that Deschedule
// accepts later.
func (e *Engine) Schedule(expr string, fn func()) (EntryID, error) {
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return 0, fmt.Errorf("cronengine: invalid expression %q: %w", expr, err)
	}

	ent := &entry{expr: parsed, fn: fn}
	ent.next = parsed.Next(time.Now().UTC())

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Capacity > 0 && len(e.tl) >= e.Capacity {
		return 0, fmt.Errorf("cronengine: capacity limit (%d) reached", e.Capacity)
	}

	e.nextID++
	ent.id = e.nextID
	e.byID[ent.id] = ent
	e.insertLocked(ent)

	e.log.Log(logging.INFO|logging.CRON, "Engine.Schedule", "id", ent.id, "expr", expr, "next", ent.next)
	return ent.id, nil
}

// Deschedule removes the entry with the given id, if present. It is
// safe to call more than once or with an unknown id.
func (e *Engine) Deschedule(id EntryID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(id)
	e.log.Log(logging.INFO|logging.CRON, "Engine.Deschedule", "id", id)
}

func (e *Engine) insertLocked(ent *entry) {
	at := e.tl.search(ent.next)
	e.tl = append(e.tl, nil)
	copy(e.tl[at+1:], e.tl[at:])
	e.tl[at] = ent
	e.resetTimerLocked()
}

func (e *Engine) removeLocked(id EntryID) {
	delete(e.byID, id)
	for i, ent := range e.tl {
		if ent.id == id {
			e.tl = append(e.tl[:i], e.tl[i+1:]...)
			break
		}
	}
	e.resetTimerLocked()
}

func (e *Engine) resetTimerLocked() {
	if e.suspended || len(e.tl) == 0 {
		e.timer.Stop()
		return
	}
	delta := time.Until(e.tl[0].next)
	if delta < 0 {
		delta = 0
	}
	e.timer.Stop()
	e.timer.Reset(delta)
}

func (e *Engine) run() error {
	broadcast, suspended := e.broadcast.Get()
	if suspended {
		e.setSuspended(true)
	}

loop:
	for {
		select {
		case <-broadcast:
			broadcast, suspended = e.broadcast.Get()
			e.setSuspended(suspended)

		case cmd := <-e.control:
			switch cmd {
			case "suspend":
				e.setSuspended(true)
			case "resume":
				e.setSuspended(false)
			case "kill":
				e.mu.Lock()
				e.timer.Stop()
				e.mu.Unlock()
				break loop
			}

		case <-e.timer.C:
			now := time.Now()
			e.mu.Lock()
			if e.suspended {
				// A fire already queued when suspension landed.
				e.mu.Unlock()
				continue
			}
			if len(e.tl) > 0 && !now.Before(e.tl[0].next) {
				ent := e.tl[0]
				e.tl = e.tl[1:]
				go e.fire(ent)
				// Recurring: recompute the next occurrence and
				// reinsert immediately so the entry stays live
				// until the caller explicitly Deschedules it.
				ent.next = ent.expr.Next(time.Now().UTC())
				e.insertLocked(ent)
			} else {
				e.resetTimerLocked()
			}
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
	return nil
}

// setSuspended flips the engine-local suspension flag and stops or
// rearms the timer to match. Resuming when not suspended is a no-op.
func (e *Engine) setSuspended(suspended bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if suspended == e.suspended {
		return
	}
	e.suspended = suspended
	if suspended {
		e.timer.Stop()
	} else {
		e.resetTimerLocked()
	}
}

func (e *Engine) fire(ent *entry) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Log(logging.ERROR|logging.CRON, "Engine.fire", "id", ent.id, "panic", r)
		}
	}()
	ent.fn()
}

// PendingCount returns the number of entries currently registered.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tl)
}
