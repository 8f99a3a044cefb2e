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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistRestoreRoundTrip(t *testing.T) {
	h := newTestHandle(t, "{0,1} * * * * * *", func() (interface{}, error) {
		return "payload", nil
	}, Options{SyncNotify: true, ConcurNotify: true})

	h.tick()
	assert.True(t, h.IsDone())

	data, err := h.Persist().JSON()
	assert.NoError(t, err)

	ps, err := ParsePersistedSnapshotJSON(data)
	assert.NoError(t, err)
	assert.False(t, ps.Cancelled)
	assert.True(t, ps.SyncNotify)
	assert.True(t, ps.ConcurNotify)
	assert.EqualValues(t, 1, ps.Statistics.ExecutionCount)

	restored := Restore(ps)
	assert.True(t, restored.IsDone())
	assert.False(t, restored.IsCancelled())

	res, err := restored.Get()
	assert.NoError(t, err)
	assert.Equal(t, "payload", res)
}

func TestPersistRestoreCarriesError(t *testing.T) {
	wantErr := errors.New("task blew up")
	h := newTestHandle(t, "{0,1} * * * * * *", func() (interface{}, error) {
		return nil, wantErr
	}, Options{})

	h.tick()

	data, err := h.Persist().YAML()
	assert.NoError(t, err)

	ps, err := ParsePersistedSnapshotYAML(data)
	assert.NoError(t, err)

	restored := Restore(ps)
	assert.True(t, restored.IsDone())

	_, err, hasRun := restored.Last()
	assert.True(t, hasRun)
	assert.EqualError(t, err, "task blew up")
}

func TestRestoreCancelledHandle(t *testing.T) {
	h := newTestHandle(t, "* * * * * * *", func() (interface{}, error) {
		return nil, nil
	}, Options{})

	assert.True(t, h.Cancel())

	ps, err := ParsePersistedSnapshotJSON(mustJSON(t, h))
	assert.NoError(t, err)
	assert.True(t, ps.Cancelled)

	restored := Restore(ps)
	assert.True(t, restored.IsDone())
	assert.True(t, restored.IsCancelled())

	_, err = restored.Get()
	assert.ErrorIs(t, err, ErrCancelled)
}

func mustJSON(t *testing.T, h *Handle) []byte {
	t.Helper()
	data, err := h.Persist().JSON()
	assert.NoError(t, err)
	return data
}

func TestSnapshotFreezesTickOutcomeButReadsLiveCounters(t *testing.T) {
	results := []interface{}{"first", "second"}
	var n int
	h := newTestHandle(t, "* * * * * * *", func() (interface{}, error) {
		r := results[n]
		n++
		return r, nil
	}, Options{SyncNotify: true})

	var snaps []*Snapshot
	h.AddListener(func(snap *Snapshot) { snaps = append(snaps, snap) })

	h.tick()
	h.tick()

	assert.Len(t, snaps, 2)

	// Each snapshot's Last is frozen to its own tick.
	res, err := snaps[0].Last()
	assert.NoError(t, err)
	assert.Equal(t, "first", res)
	res, _ = snaps[1].Last()
	assert.Equal(t, "second", res)

	// Delegated accessors read live state through the back-reference.
	assert.EqualValues(t, 2, snaps[0].CallCount())
	assert.EqualValues(t, 2, snaps[0].Statistics().ExecutionCount)
}
