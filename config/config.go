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

// Package config holds the process-wide, boot-time settings for a
// cronfuture deployment: notification policy defaults, worker-pool
// sizing, the snapshot store backend, and log verbosity.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"github.com/cronfuture/cronfuture/logging"
)

// Config are read-only, boot-time settings. Once loaded, these values
// don't change for the life of the process.
type Config struct {
	// SyncNotify is the default value for a Handle's syncNotify flag
	// when the caller doesn't override it (see future.Options).
	SyncNotify bool `envconfig:"sync_notify" default:"false"`

	// ConcurNotify is the default value for a Handle's concurNotify
	// flag.
	ConcurNotify bool `envconfig:"concur_notify" default:"false"`

	// WorkerPoolSize bounds the number of goroutines the shared
	// workerpool.Pool will run concurrently. 0 means unbounded.
	WorkerPoolSize int `envconfig:"worker_pool_size" default:"32"`

	// EngineCapacity is the approximate maximum number of pending
	// cron entries a single cronengine.Engine will accept. 0 means
	// unbounded.
	EngineCapacity int `envconfig:"engine_capacity" default:"0"`

	// RegistryRecentSize bounds the registry's bounded LRU of
	// recently-descheduled handles kept for introspection.
	RegistryRecentSize int `envconfig:"registry_recent_size" default:"256"`

	// StoreBackend selects the snapshot store implementation: "mem"
	// or "bolt".
	StoreBackend string `envconfig:"store_backend" default:"mem"`

	// StorePath is the bolt database file path, used only when
	// StoreBackend is "bolt".
	StorePath string `envconfig:"store_path" default:"cronfuture.db"`

	// Verbosity controls which log severities reach the standard
	// logger. One of "debug", "info", "warn", "error".
	Verbosity string `envconfig:"verbosity" default:"info"`
}

// Load reads configuration from the environment using the "CRONFUTURE"
// prefix, e.g. CRONFUTURE_STORE_BACKEND=bolt.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("cronfuture", &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// LogLevel maps the Verbosity string to a logging.Level bitmask.
func (c *Config) LogLevel() logging.Level {
	switch c.Verbosity {
	case "debug":
		return logging.DEBUG | logging.INFO | logging.WARN | logging.ERROR
	case "warn":
		return logging.WARN | logging.ERROR
	case "error":
		return logging.ERROR
	default:
		return logging.INFO | logging.WARN | logging.ERROR
	}
}
