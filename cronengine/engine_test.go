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

package cronengine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsGarbage(t *testing.T) {
	assert.Error(t, Validate("not a cron expression"))
	assert.NoError(t, Validate("* * * * * * *"))
}

func TestNextPredictsFutureInstant(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := Next("0 0 0 2 * * *", from)
	assert.NoError(t, err)
	assert.True(t, next.After(from))
	assert.Equal(t, 2, next.Day())
}

func TestEngineFiresRegisteredCallback(t *testing.T) {
	e := New(nil, 0, nil)
	e.Start()
	defer e.Stop()

	ch := make(chan struct{}, 1)
	_, err := e.Schedule("* * * * * * *", func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	assert.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestEngineDeschedulePreventsFurtherFiring(t *testing.T) {
	e := New(nil, 0, nil)
	e.Start()
	defer e.Stop()

	id, err := e.Schedule("* * * * * * *", func() {})
	assert.NoError(t, err)
	assert.Equal(t, 1, e.PendingCount())

	e.Deschedule(id)
	assert.Equal(t, 0, e.PendingCount())
}

func TestEngineCapacityLimit(t *testing.T) {
	e := New(nil, 1, nil)
	e.Start()
	defer e.Stop()

	_, err := e.Schedule("* * * * * * *", func() {})
	assert.NoError(t, err)

	_, err = e.Schedule("* * * * * * *", func() {})
	assert.Error(t, err)
}

func TestEngineSuspendResume(t *testing.T) {
	e := New(NewBroadcaster(), 0, nil)
	e.Start()
	defer e.Stop()

	e.Suspend()

	var count int32
	_, err := e.Schedule("* * * * * * *", func() { atomic.AddInt32(&count, 1) })
	assert.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&count))

	e.Resume()

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&count) == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	assert.NotZero(t, atomic.LoadInt32(&count))
}

func TestBroadcasterSuspendStopsEngine(t *testing.T) {
	b := NewBroadcaster()
	e := New(b, 0, nil)
	e.Start()
	defer e.Stop()

	b.Suspend()
	defer b.Resume()

	var count int32
	_, err := e.Schedule("* * * * * * *", func() { atomic.AddInt32(&count, 1) })
	assert.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&count))
}
