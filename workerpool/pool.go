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

// Package workerpool dispatches fire-and-forget work with a bounded
// number of concurrently running goroutines and panic isolation.
package workerpool

import (
	"sync"

	"github.com/cronfuture/cronfuture/logging"
)

// Pool runs submitted functions on a bounded number of goroutines.
// A Pool with size 0 is unbounded: every Run spawns its own goroutine.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
	log logging.Logger
}

// New creates a Pool that runs at most size functions concurrently.
// size <= 0 means unbounded.
func New(size int, log logging.Logger) *Pool {
	if log == nil {
		log = logging.Discard
	}
	p := &Pool{log: log}
	if size > 0 {
		p.sem = make(chan struct{}, size)
	}
	return p
}

// Run submits fn to run on some goroutine, asynchronously. If the pool
// is bounded and currently saturated, Run blocks until a slot frees up.
// A panicking fn is recovered and logged; it never crashes the caller
// or the pool.
func (p *Pool) Run(op string, fn func()) {
	if p.sem != nil {
		p.sem <- struct{}{}
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.sem != nil {
			defer func() { <-p.sem }()
		}
		defer func() {
			if r := recover(); r != nil {
				p.log.Log(logging.ERROR|logging.FUTURE, op, "panic", r)
			}
		}()
		fn()
	}()
}

// Wait blocks until every function submitted so far has returned. It is
// intended for tests and graceful shutdown, not steady-state use.
func (p *Pool) Wait() {
	p.wg.Wait()
}
