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

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cronfuture/cronfuture/logging"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("CRONFUTURE_STORE_BACKEND")
	os.Unsetenv("CRONFUTURE_WORKER_POOL_SIZE")

	c, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "mem", c.StoreBackend)
	assert.Equal(t, 32, c.WorkerPoolSize)
	assert.Equal(t, 0, c.EngineCapacity)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	os.Setenv("CRONFUTURE_STORE_BACKEND", "bolt")
	defer os.Unsetenv("CRONFUTURE_STORE_BACKEND")

	c, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "bolt", c.StoreBackend)
}

func TestLogLevelMapping(t *testing.T) {
	c := &Config{Verbosity: "debug"}
	assert.Equal(t, logging.DEBUG|logging.INFO|logging.WARN|logging.ERROR, c.LogLevel())

	c = &Config{Verbosity: "error"}
	assert.Equal(t, logging.ERROR, c.LogLevel())

	c = &Config{Verbosity: "bogus"}
	assert.Equal(t, logging.INFO|logging.WARN|logging.ERROR, c.LogLevel())
}
