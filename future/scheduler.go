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
	"fmt"
	"sync/atomic"

	"github.com/cronfuture/cronfuture/cronengine"
	"github.com/cronfuture/cronfuture/logging"
	"github.com/cronfuture/cronfuture/registry"
	"github.com/cronfuture/cronfuture/timer"
	"github.com/cronfuture/cronfuture/workerpool"
)

// Scheduler is the process-wide entry point: it owns the shared cron
// engine, delayed-start coordinator, scheduler registry, and listener
// worker pool that every Handle it creates is wired to.
type Scheduler struct {
	engine   *cronengine.Engine
	timerSvc *timer.Service
	reg      *registry.Registry
	pool     *workerpool.Pool
	log      logging.Logger

	defaultOpts Options

	seq uint64
}

// NewScheduler builds a Scheduler from its already-constructed
// collaborators. Passing a nil registry or logger is fine; a nil pool
// means every async listener dispatch spawns its own unbounded
// goroutine.
func NewScheduler(engine *cronengine.Engine, timerSvc *timer.Service, reg *registry.Registry, pool *workerpool.Pool, defaultOpts Options, log logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Discard
	}
	return &Scheduler{
		engine:      engine,
		timerSvc:    timerSvc,
		reg:         reg,
		pool:        pool,
		log:         log,
		defaultOpts: defaultOpts,
	}
}

// Schedule parses patternStr and creates a new Handle bound to task,
// starting it immediately (subject to any initial delay the pattern
// carries).
func (s *Scheduler) Schedule(patternStr string, task Task) (*Handle, error) {
	return s.ScheduleWithOptions(patternStr, task, s.defaultOpts)
}

// ScheduleWithOptions behaves like Schedule but overrides the
// Scheduler's default listener dispatch policy for this one Handle.
func (s *Scheduler) ScheduleWithOptions(patternStr string, task Task, opts Options) (*Handle, error) {
	pattern, err := ParsePattern(patternStr)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("cronfuture-%d", atomic.AddUint64(&s.seq, 1))
	var disp Dispatcher
	if s.pool != nil {
		disp = s.pool
	}
	var reg SchedulerRegistry
	if s.reg != nil {
		reg = s.reg
	}
	h := newHandle(id, pattern, task, s.engine, s.timerSvc, reg, disp, opts, s.log)
	h.start()

	s.log.Log(logging.INFO|logging.FUTURE, "Scheduler.Schedule", "id", id, "pattern", pattern)
	return h, nil
}

// Registry returns the Scheduler's scheduler registry, or nil if none
// was configured.
func (s *Scheduler) Registry() *registry.Registry { return s.reg }
