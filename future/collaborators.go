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
	"time"

	"github.com/cronfuture/cronfuture/cronengine"
)

// Engine is everything a Handle needs from a cron engine: register a
// recurring callback and tear it down again. *cronengine.Engine
// satisfies this without any glue.
type Engine interface {
	Schedule(expr string, fn func()) (cronengine.EntryID, error)
	Deschedule(id cronengine.EntryID)
}

// DelayTimer is everything a Handle needs from the delayed-start
// coordinator. *timer.Service satisfies this.
type DelayTimer interface {
	AddTimeout(delay time.Duration, fn func()) uint64
	Cancel(id uint64) bool
}

// Dispatcher runs a function asynchronously, recovering its panics.
// *workerpool.Pool satisfies this.
type Dispatcher interface {
	Run(op string, fn func())
}

// SchedulerRegistry is everything a Handle needs from the surrounding
// scheduler registry: notify it of the two lifecycle transitions that
// matter outside the Handle itself. *registry.Registry satisfies this.
type SchedulerRegistry interface {
	OnScheduled(id, pattern string, at time.Time)
	OnDescheduled(id string, at time.Time, callCount int64, cancelled bool)
}
