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

// Package future implements the scheduled-task future: a Handle binds
// a user computation to a recurring schedule driven by a shared cron
// engine, and presents a future-like contract over the most recent
// invocation: blocking/timed get, cancellation, completion listeners,
// and a point-in-time snapshot.
package future

import (
	"fmt"
	"sync"
	"time"

	"github.com/cronfuture/cronfuture/cronengine"
	"github.com/cronfuture/cronfuture/logging"
)

// Task is the user computation a Handle repeatedly invokes. A panicking
// Task is recovered and reported as an *InterruptedError rather than
// crashing the tick runner.
type Task func() (interface{}, error)

// Options configures a Handle's listener dispatch policy. Both fields
// default, via config.Config, to the process-wide settings, but can be
// overridden per Handle.
type Options struct {
	// SyncNotify, when true, runs listeners on the tick's own
	// goroutine; when false, hands them to the shared worker pool.
	SyncNotify bool
	// ConcurNotify, when true, runs every listener independently
	// (concurrently under SyncNotify, one pool job each under async);
	// when false, listeners run one after another.
	ConcurNotify bool
}

// Handle is the mutex-guarded state machine behind a single scheduled
// task. A single mutex owns every mutable field; Get and GetTimeout
// block on a single-use gate that is closed exactly once per completed
// invocation and replaced with a fresh one for the next.
type Handle struct {
	mu sync.Mutex

	id      string
	pattern *Pattern
	task    Task

	stats     *statistics
	listeners *listenerRegistry

	engine   Engine
	timerSvc DelayTimer
	reg      SchedulerRegistry
	log      logging.Logger

	entryID  cronengine.EntryID
	hasEntry bool

	timeoutID  uint64
	hasTimeout bool

	running     bool
	callCnt     int64
	cancelled   bool
	done        bool
	descheduled bool
	hasRun      bool

	lastRes interface{}
	lastErr error

	// lastNotifiedExecCnt is the execution count at which listeners
	// were most recently notified; it prevents double delivery when a
	// listener is added between a tick's exit and its own
	// registration.
	lastNotifiedExecCnt int64
	// lastDispatchCount is how many listeners the most recent dispatch
	// was sent to, exposed via LastListenerExecutionCount
	// for fan-out observability (a different thing from
	// lastNotifiedExecCnt, which counts ticks, not listeners).
	lastDispatchCount int

	resGate *resultGate

	scheduledAt   time.Time
	descheduledAt time.Time
}

// resultGate is the single-use gate waiters in Get/GetTimeout block on.
// The goroutine that retires a gate (a tick's Exit, or Cancel when no
// tick is running) freezes the outcome into the gate's fields before
// closing ch, so every waiter observes the outcome its own gate was
// released for, not whatever a later tick may have stored on the
// Handle by the time the waiter reacquires the mutex. The field writes
// happen-before the close, and waiters only read after ch is closed.
type resultGate struct {
	ch        chan struct{}
	res       interface{}
	err       error
	cancelled bool
}

func newResultGate() *resultGate {
	return &resultGate{ch: make(chan struct{})}
}

// newHandle builds a Handle in its initial, not-yet-started state. Use
// Scheduler.Schedule to build and start one.
func newHandle(id string, pattern *Pattern, task Task, engine Engine, timerSvc DelayTimer, reg SchedulerRegistry, pool Dispatcher, opts Options, log logging.Logger) *Handle {
	if log == nil {
		log = logging.Discard
	}
	return &Handle{
		id:          id,
		pattern:     pattern,
		task:        task,
		stats:       newStatistics(),
		listeners:   newListenerRegistry(opts.SyncNotify, opts.ConcurNotify, pool, log),
		engine:      engine,
		timerSvc:    timerSvc,
		reg:         reg,
		log:         log,
		resGate:     newResultGate(),
		scheduledAt: time.Now(),
	}
}

// start registers the Handle with the delayed-start coordinator if its
// pattern carries an initial delay, or schedules it on the cron engine
// immediately otherwise.
func (h *Handle) start() {
	if h.reg != nil {
		h.reg.OnScheduled(h.id, h.pattern.String(), h.scheduledAt)
	}
	if h.pattern.Delay > 0 {
		h.mu.Lock()
		h.timeoutID = h.timerSvc.AddTimeout(h.pattern.Delay, h.onDelayElapsed)
		h.hasTimeout = true
		h.mu.Unlock()
		return
	}
	h.scheduleCron()
}

func (h *Handle) onDelayElapsed() {
	h.mu.Lock()
	h.hasTimeout = false
	h.mu.Unlock()
	h.scheduleCron()
}

func (h *Handle) scheduleCron() {
	h.mu.Lock()
	if h.cancelled || h.done {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	id, err := h.engine.Schedule(h.pattern.Cron, h.tick)
	if err != nil {
		h.log.Log(logging.ERROR|logging.FUTURE, "Handle.scheduleCron", "id", h.id, "err", err)
		h.finishSchedulingFailure(err)
		return
	}

	h.mu.Lock()
	h.entryID = id
	h.hasEntry = true
	orphaned := h.descheduled
	h.mu.Unlock()

	// Cancel may have run its deschedule pass while the registration
	// was in flight, before entryID was recorded; in that case the
	// entry just created is already dead and must be dropped here.
	if orphaned {
		h.engine.Deschedule(id)
	}
}

// finishSchedulingFailure marks a Handle done (without ever ticking)
// when the underlying engine rejects its cron expression or is at
// capacity. This can only happen if the engine's own validation is
// stricter than ParsePattern's, or the engine is full; either way the
// Handle must still reach a terminal state rather than hang forever.
func (h *Handle) finishSchedulingFailure(err error) {
	h.mu.Lock()
	h.done = true
	h.lastErr = err
	h.hasRun = true
	gate := h.resGate
	gate.err = err
	h.resGate = newResultGate()
	h.mu.Unlock()
	close(gate.ch)
	h.deschedule()
}

// tick is the enter/execute/exit runner the cron engine invokes on
// every matching instant. Enter applies overlap suppression: if the
// previous invocation is still running, this tick is skipped entirely
// rather than queued. A Handle is a singleton current computation,
// never a queue of pending ones.
func (h *Handle) tick() {
	if !h.enter() {
		return
	}
	result, err := h.executeTask()
	h.exit(result, err)
}

func (h *Handle) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.done {
		return false
	}
	if h.running {
		h.log.Log(logging.WARN|logging.FUTURE, "Handle.tick", "id", h.id, "skipped", "previous invocation still running")
		return false
	}
	h.running = true
	h.stats.onStart()
	return true
}

func (h *Handle) executeTask() (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InterruptedError{Recovered: r}
			h.log.Log(logging.ERROR|logging.FUTURE, "Handle.executeTask", "id", h.id, "panic", r)
		}
	}()
	result, err = h.task()
	return
}

func (h *Handle) exit(result interface{}, err error) {
	h.mu.Lock()
	h.stats.onEnd(err)
	h.callCnt++
	h.lastRes = result
	h.lastErr = err
	h.hasRun = true
	h.running = false

	callCnt := h.callCnt
	maxCalls := h.pattern.MaxCalls
	if (maxCalls > 0 && callCnt >= int64(maxCalls)) || h.cancelled {
		h.done = true
	}
	terminal := h.done

	// Claim this tick for dispatch here, inside the critical section,
	// so a listener added between this Exit and the dispatch below
	// can't also receive the same tick as a catch-up in AddListener.
	// A tick with nobody listening stays unclaimed: a listener added
	// afterwards then observes the gap and catches up on registration.
	execCnt := h.stats.executionCount64()
	notify := execCnt > h.lastNotifiedExecCnt && h.listeners.count() > 0
	if notify {
		h.lastNotifiedExecCnt = execCnt
	}

	// Freeze this tick's outcome into the gate taken at enter and
	// install a fresh gate for the next tick. Waiters that took a
	// reference to the old gate observe this tick's own outcome, even
	// if a later tick completes before they reacquire any lock.
	gate := h.resGate
	gate.res = result
	gate.err = err
	h.resGate = newResultGate()
	h.mu.Unlock()

	close(gate.ch)

	if notify {
		snap := &Snapshot{h: h, res: result, err: err}
		dispatched := h.listeners.dispatch(snap)
		h.mu.Lock()
		h.lastDispatchCount = dispatched
		h.mu.Unlock()
	}

	if terminal {
		h.deschedule()
	}
}

// deschedule removes the Handle from the cron engine and/or the delay
// coordinator and records its departure from the scheduler registry.
// It is idempotent: cancellation racing with a maxCalls-triggered
// completion will only deschedule once.
func (h *Handle) deschedule() {
	h.mu.Lock()
	if h.descheduled {
		h.mu.Unlock()
		return
	}
	h.descheduled = true
	entryID, hasEntry := h.entryID, h.hasEntry
	timeoutID, hasTimeout := h.timeoutID, h.hasTimeout
	h.descheduledAt = time.Now()
	callCnt := h.callCnt
	cancelled := h.cancelled
	h.mu.Unlock()

	if hasEntry {
		h.engine.Deschedule(entryID)
	}
	if hasTimeout {
		h.timerSvc.Cancel(timeoutID)
	}
	if h.reg != nil {
		h.reg.OnDescheduled(h.id, h.descheduledAt, callCnt, cancelled)
	}
}

// ID returns the Handle's identifier, stable for its lifetime.
func (h *Handle) ID() string { return h.id }

// Pattern returns the Handle's parsed schedule.
func (h *Handle) Pattern() *Pattern { return h.pattern }

// Get blocks until the Handle's next tick completes and returns that
// tick's outcome; if the Handle is already done it returns the terminal
// last outcome immediately. If the Handle is already cancelled when Get
// is called, it returns ErrCancelled immediately without waiting, even
// if a tick is currently running. A caller already blocked inside Get
// when Cancel is invoked receives the running tick's own result if one
// was in flight (the tick still completes and releases the gate), or
// ErrCancelled if none was, since a gate retired by Cancel carries no
// tick outcome.
//
// A Pattern with MaxCalls == 0 (unlimited) never reaches a terminal
// state; callers of such a Handle get the result of whichever tick
// next completes.
func (h *Handle) Get() (interface{}, error) {
	return h.get(nil)
}

// GetTimeout behaves like Get but returns ErrTimeout if no tick
// completes within d.
func (h *Handle) GetTimeout(d time.Duration) (interface{}, error) {
	t := time.NewTimer(d)
	defer t.Stop()
	return h.get(t.C)
}

func (h *Handle) get(deadline <-chan time.Time) (interface{}, error) {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return nil, ErrCancelled
	}
	if h.done {
		res, err := h.lastRes, h.lastErr
		h.mu.Unlock()
		return res, err
	}
	gate := h.resGate
	h.mu.Unlock()

	if deadline == nil {
		<-gate.ch
	} else {
		select {
		case <-gate.ch:
		case <-deadline:
			return nil, ErrTimeout
		}
	}

	if gate.cancelled {
		return nil, ErrCancelled
	}
	return gate.res, gate.err
}

// Last returns the result and error of the most recently completed
// execution without blocking. hasRun is false if the Handle has never
// executed its task.
func (h *Handle) Last() (result interface{}, err error, hasRun bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastRes, h.lastErr, h.hasRun
}

// Cancel marks the Handle cancelled and deschedules it. It returns
// false if the Handle was already done, and true if it was already
// cancelled but the cancelling tick has not yet finished. A goroutine
// currently inside Execute is allowed to finish; Cancel does not
// interrupt a running task. The running tick's own Exit phase sets
// done and releases the gate once it completes, rather than Cancel
// doing it directly, since the gate must only ever be closed once per
// tick.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return false
	}
	if h.cancelled {
		h.mu.Unlock()
		return true
	}
	h.cancelled = true
	running := h.running
	var gate *resultGate
	if !running {
		h.done = true
		gate = h.resGate
		gate.cancelled = true
		h.resGate = newResultGate()
	}
	h.mu.Unlock()

	if gate != nil {
		close(gate.ch)
	}
	h.deschedule()
	return true
}

// IsDone reports whether the Handle has reached a terminal state,
// whether by exhausting its call budget or by cancellation.
func (h *Handle) IsDone() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done || h.cancelled
}

// IsCancelled reports whether the Handle was cancelled. It remains true
// forever after Cancel succeeds, even once the Handle is also done.
func (h *Handle) IsCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// NextExecutionTime predicts the next instant the Handle's cron
// expression matches, from now. ok is false if the Handle is already
// done or cancelled and no further firing will happen.
func (h *Handle) NextExecutionTime() (next time.Time, ok bool, err error) {
	times, err := h.NextExecutionTimesFrom(1, time.Now())
	if err != nil || len(times) == 0 {
		return time.Time{}, false, err
	}
	return times[0], true, nil
}

// NextExecutionTimes predicts the next n firing instants from now. A
// done or cancelled Handle returns an empty slice.
func (h *Handle) NextExecutionTimes(n int) ([]time.Time, error) {
	return h.NextExecutionTimesFrom(n, time.Now())
}

// NextExecutionTimesFrom predicts the next n firing instants strictly
// after from; from itself is not returned even when it matches. from is
// clamped to no earlier than the Handle's creation
// time plus its initial delay, since nothing can fire while the
// delayed-start coordinator still holds the registration back.
//
// Documented quirk (an intentionally retained Open Question, see
// DESIGN.md): when the Handle's pattern carries a MaxCalls budget, n is
// capped at the pattern's total MaxCalls, not at the calls actually
// remaining (MaxCalls - current call count). A live Handle with
// MaxCalls=5 that has already executed 3 times and is asked for
// NextExecutionTimesFrom(5, now) still returns 5 predicted times, three
// of which it will never actually reach.
func (h *Handle) NextExecutionTimesFrom(n int, from time.Time) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}

	h.mu.Lock()
	if h.done || h.cancelled {
		h.mu.Unlock()
		return nil, nil
	}
	earliest := h.scheduledAt.Add(h.pattern.Delay)
	maxCalls := h.pattern.MaxCalls
	h.mu.Unlock()

	if maxCalls > 0 && n > maxCalls {
		n = maxCalls
	}
	if from.Before(earliest) {
		from = earliest
	}

	times := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		next, err := cronengine.Next(h.pattern.Cron, from)
		if err != nil {
			return nil, err
		}
		times = append(times, next)
		from = next
	}
	return times, nil
}

// Statistics returns a snapshot of the Handle's per-invocation
// counters: execution count, error count, total/last/average execution
// and idle times.
func (h *Handle) Statistics() StatisticsSnapshot {
	return h.stats.snapshot()
}

// AddListener registers l to be notified on every future completed
// tick, and returns a ListenerID that can later be passed to
// RemoveListener. If a completed tick was never delivered to anyone
// before l registered, l is delivered that tick's outcome once,
// immediately, as a catch-up; l is never notified twice for the same
// tick.
func (h *Handle) AddListener(l Listener) ListenerID {
	// Read state and append in one critical section. A tick whose Exit
	// runs after this section counts l and dispatches to it. A tick whose
	// Exit ran before it either claimed itself for dispatch (then there
	// is no catch-up here) or stayed unclaimed because nobody was
	// listening, and the catch-up below covers l. l never receives the
	// same tick twice.
	h.mu.Lock()
	execCnt := h.stats.executionCount64()
	catchUp := h.hasRun && execCnt > h.lastNotifiedExecCnt
	res, err := h.lastRes, h.lastErr
	id := h.listeners.add(l)
	h.mu.Unlock()

	if catchUp {
		snap := &Snapshot{h: h, res: res, err: err}
		h.listeners.deliverOne(l, snap)
	}
	return id
}

// RemoveListener unregisters the listeners identified by ids, if
// still present. Removing an unknown or already-removed id is a
// no-op.
func (h *Handle) RemoveListener(ids ...ListenerID) {
	h.listeners.remove(ids...)
}

// LastListenerExecutionCount returns how many listeners the most recent
// tick dispatch was sent to. A tick that completes with no listener
// registered dispatches nothing and leaves this value unchanged; under
// async notification the listeners may not have run yet. It is mainly
// useful for tests asserting dispatch fan-out.
func (h *Handle) LastListenerExecutionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastDispatchCount
}

// CallCount returns the number of times the Handle's task has been
// invoked so far.
func (h *Handle) CallCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callCnt
}

// String renders a short human-readable summary, useful for logging.
func (h *Handle) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("Handle{id=%s pattern=%s calls=%d done=%v cancelled=%v}",
		h.id, h.pattern, h.callCnt, h.done, h.cancelled)
}
