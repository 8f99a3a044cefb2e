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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cronfuture/cronfuture/cronengine"
	"github.com/cronfuture/cronfuture/registry"
	"github.com/cronfuture/cronfuture/timer"
	"github.com/cronfuture/cronfuture/workerpool"
)

func TestSchedulerEndToEndRunsToCompletion(t *testing.T) {
	engine := cronengine.New(nil, 0, nil)
	engine.Start()
	defer engine.Stop()

	reg := registry.New(8)
	sched := NewScheduler(engine, timer.NewService(), reg, workerpool.New(0, nil), Options{}, nil)

	h, err := sched.Schedule("{0,2} * * * * * * *", func() (interface{}, error) {
		return "ok", nil
	})
	assert.NoError(t, err)

	res, err := h.GetTimeout(5 * time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "ok", res)

	deadline := time.Now().Add(5 * time.Second)
	for (!h.IsDone() || reg.LiveCount() != 0) && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	assert.True(t, h.IsDone())
	assert.EqualValues(t, 2, h.CallCount())
	assert.Equal(t, 0, reg.LiveCount())
	assert.Len(t, reg.Recent(), 1)
}

func TestSchedulerRejectsInvalidPattern(t *testing.T) {
	engine := cronengine.New(nil, 0, nil)
	sched := NewScheduler(engine, timer.NewService(), nil, workerpool.New(0, nil), Options{}, nil)

	_, err := sched.Schedule("garbage", func() (interface{}, error) { return nil, nil })
	assert.Error(t, err)
	var ipe *InvalidPatternError
	assert.ErrorAs(t, err, &ipe)
}

func TestSchedulerDelayDefersCronRegistration(t *testing.T) {
	engine := cronengine.New(nil, 0, nil)
	engine.Start()
	defer engine.Stop()

	sched := NewScheduler(engine, timer.NewService(), nil, workerpool.New(0, nil), Options{}, nil)

	_, err := sched.Schedule("{1,*} * * * * * *", func() (interface{}, error) {
		return nil, nil
	})
	assert.NoError(t, err)

	// Until the delay elapses the handle must not be registered with
	// the cron engine at all.
	assert.Equal(t, 0, engine.PendingCount())

	deadline := time.Now().Add(3 * time.Second)
	for engine.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	assert.Equal(t, 1, engine.PendingCount())
}

func TestSchedulerCancelBeforeDelayElapsesSkipsRegistration(t *testing.T) {
	engine := cronengine.New(nil, 0, nil)
	engine.Start()
	defer engine.Stop()

	timerSvc := timer.NewService()
	sched := NewScheduler(engine, timerSvc, nil, workerpool.New(0, nil), Options{}, nil)

	var calls int32
	h, err := sched.Schedule("{2,*} * * * * * *", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, timerSvc.Pending())

	assert.True(t, h.Cancel())
	assert.Equal(t, 0, timerSvc.Pending())
	assert.Equal(t, 0, engine.PendingCount())

	_, err = h.Get()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestSchedulerCancelStopsFurtherTicks(t *testing.T) {
	engine := cronengine.New(nil, 0, nil)
	engine.Start()
	defer engine.Stop()

	sched := NewScheduler(engine, timer.NewService(), nil, workerpool.New(0, nil), Options{}, nil)

	var calls int32
	h, err := sched.Schedule("* * * * * * *", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	assert.NoError(t, err)

	time.Sleep(1200 * time.Millisecond)
	assert.True(t, h.Cancel())

	seenAfterCancel := atomic.LoadInt32(&calls)
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, seenAfterCancel, atomic.LoadInt32(&calls))
}
