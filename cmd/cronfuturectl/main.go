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

// cronfuturectl is a small demonstration binary: it schedules one
// sample task from a pattern given on the command line, prints its
// snapshot every second until the task reaches a terminal state, and
// persists the final snapshot to the configured snapshot store.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tidwall/pretty"

	"github.com/cronfuture/cronfuture/config"
	"github.com/cronfuture/cronfuture/cronengine"
	"github.com/cronfuture/cronfuture/future"
	"github.com/cronfuture/cronfuture/logging"
	"github.com/cronfuture/cronfuture/registry"
	"github.com/cronfuture/cronfuture/store"
	"github.com/cronfuture/cronfuture/timer"
	"github.com/cronfuture/cronfuture/workerpool"
)

func main() {
	pattern := flag.String("pattern", "{1,5} * * * * * *", "extended cron pattern: \"{delay,maxCalls} cron\"")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cronfuturectl: loading config: %v", err)
	}

	logger := logging.NewStandardLogger(cfg.LogLevel())

	snapStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("cronfuturectl: opening store: %v", err)
	}
	defer snapStore.Close()

	engine := cronengine.New(nil, cfg.EngineCapacity, logger)
	engine.Start()
	defer engine.Stop()

	timerSvc := timer.NewService()
	reg := registry.New(cfg.RegistryRecentSize)
	pool := workerpool.New(cfg.WorkerPoolSize, logger)

	sched := future.NewScheduler(engine, timerSvc, reg, pool, future.Options{
		SyncNotify:   cfg.SyncNotify,
		ConcurNotify: cfg.ConcurNotify,
	}, logger)

	var n int
	h, err := sched.Schedule(*pattern, func() (interface{}, error) {
		n++
		return fmt.Sprintf("tick #%d", n), nil
	})
	if err != nil {
		log.Fatalf("cronfuturectl: scheduling %q: %v", *pattern, err)
	}

	h.AddListener(func(snap *future.Snapshot) {
		result, err := snap.Last()
		logger.Log(logging.INFO|logging.FUTURE, "tick", "result", result, "err", err)
	})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for !h.IsDone() {
		<-ticker.C
		printSnapshot(h)
	}
	printSnapshot(h)

	snap := h.Persist()
	data, err := snap.JSON()
	if err != nil {
		log.Fatalf("cronfuturectl: encoding snapshot: %v", err)
	}
	if err := snapStore.Put(snap.ID, data); err != nil {
		log.Fatalf("cronfuturectl: persisting snapshot: %v", err)
	}

	fmt.Fprintf(os.Stderr, "saved snapshot %s to %s store\n", snap.ID, cfg.StoreBackend)
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "bolt":
		return store.OpenBolt(cfg.StorePath)
	default:
		return store.NewMemory(), nil
	}
}

func printSnapshot(h *future.Handle) {
	snap := h.Persist()
	data, err := snap.JSON()
	if err != nil {
		log.Printf("cronfuturectl: encoding snapshot: %v", err)
		return
	}
	os.Stdout.Write(pretty.Color(pretty.Pretty(data), nil))
}
