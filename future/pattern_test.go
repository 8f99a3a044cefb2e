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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePatternBareCron(t *testing.T) {
	p, err := ParsePattern("1-59/2 * * * * * *")
	assert.NoError(t, err)
	assert.Equal(t, time.Duration(0), p.Delay)
	assert.Equal(t, 0, p.MaxCalls)
	assert.Equal(t, "1-59/2 * * * * * *", p.Cron)
}

func TestParsePatternExtended(t *testing.T) {
	p, err := ParsePattern("{5,10} * * * * * *")
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Second, p.Delay)
	assert.Equal(t, 10, p.MaxCalls)
	assert.Equal(t, "* * * * * *", p.Cron)
}

func TestParsePatternWildcardFields(t *testing.T) {
	p, err := ParsePattern("{*,*} * * * * * *")
	assert.NoError(t, err)
	assert.Equal(t, time.Duration(0), p.Delay)
	assert.Equal(t, 0, p.MaxCalls)
}

func TestParsePatternWhitespace(t *testing.T) {
	p, err := ParsePattern("  { 120 , 3 }   * * * * * * ")
	assert.NoError(t, err)
	assert.Equal(t, 120*time.Second, p.Delay)
	assert.Equal(t, 3, p.MaxCalls)
}

func TestParsePatternUnterminatedBrace(t *testing.T) {
	_, err := ParsePattern("{5,10 * * * * * *")
	assert.Error(t, err)
	var ipe *InvalidPatternError
	assert.ErrorAs(t, err, &ipe)
}

func TestParsePatternBadDelay(t *testing.T) {
	_, err := ParsePattern("{notanumber,10} * * * * * *")
	assert.Error(t, err)
}

func TestParsePatternNegativeMaxCalls(t *testing.T) {
	_, err := ParsePattern("{5,-1} * * * * * *")
	assert.Error(t, err)
}

// A literal 0 maxCalls is an error: unbounded is only expressible via
// "*", never as a number.
func TestParsePatternZeroMaxCallsForbidden(t *testing.T) {
	_, err := ParsePattern("{*, 0} * * * * * *")
	assert.Error(t, err)
	var ipe *InvalidPatternError
	assert.ErrorAs(t, err, &ipe)
}

func TestParsePatternNonNumericMaxCalls(t *testing.T) {
	_, err := ParsePattern("{5,abc} * * * * * *")
	assert.Error(t, err)
}

func TestParsePatternMissingCron(t *testing.T) {
	_, err := ParsePattern("{5,10}")
	assert.Error(t, err)
}

func TestParsePatternInvalidCron(t *testing.T) {
	_, err := ParsePattern("not a cron expression at all")
	assert.Error(t, err)
}

func TestPatternStringRoundTrip(t *testing.T) {
	p, err := ParsePattern("{5,10} * * * * * *")
	assert.NoError(t, err)
	assert.Equal(t, "{5,10} * * * * * *", p.String())

	bare, err := ParsePattern("* * * * * * *")
	assert.NoError(t, err)
	assert.Equal(t, "* * * * * * *", bare.String())
}

func TestParsePatternSpacedPrefix(t *testing.T) {
	p, err := ParsePattern("{5, 3} */1 * * * * *")
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Second, p.Delay)
	assert.Equal(t, 3, p.MaxCalls)
	assert.Equal(t, "*/1 * * * * * *", p.Cron)
}
