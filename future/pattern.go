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
	"strconv"
	"strings"
	"time"

	"github.com/cronfuture/cronfuture/cronengine"
)

// Pattern is a parsed "{delay,maxCalls} cron" extended schedule: an
// optional initial delay and call budget, layered on top of a bare
// cron expression. The brace prefix is entirely optional; a bare cron
// expression is a valid Pattern with Delay 0 and MaxCalls 0 (unlimited).
type Pattern struct {
	Delay    time.Duration
	MaxCalls int
	Cron     string
}

// ParsePattern parses s into a Pattern. The accepted grammar is:
//
//	extended   = [ "{" delayField "," maxCallsField "}" ] cron
//	delayField = "*" | non-negative-decimal-integer   (seconds)
//	maxCallsField = "*" | non-negative-decimal-integer (count)
//	cron       = a bare cron expression
//
// A missing prefix means Delay=0, MaxCalls=0 (unbounded). delayField
// "*" means Delay=0; otherwise it is parsed as a count of seconds.
// maxCallsField "*" means MaxCalls=0 (unbounded); a parsed maxCallsField
// that is literally 0 is an error, since the grammar reserves "*" as the
// only spelling of "unbounded", so "{5,0} ..." is rejected even though
// 0 and "*" would otherwise mean the same thing.
func ParsePattern(s string) (*Pattern, error) {
	raw := s
	s = strings.TrimSpace(s)
	p := &Pattern{}

	if strings.HasPrefix(s, "{") {
		end := strings.Index(s, "}")
		if end < 0 {
			return nil, &InvalidPatternError{Pattern: raw, Err: fmt.Errorf("unterminated '{' prefix")}
		}
		prefix := s[1:end]
		rest := strings.TrimSpace(s[end+1:])

		parts := strings.SplitN(prefix, ",", 2)
		if len(parts) != 2 {
			return nil, &InvalidPatternError{Pattern: raw, Err: fmt.Errorf("expected \"{delay,maxCalls}\", got %q", prefix)}
		}

		delayField := strings.TrimSpace(parts[0])
		maxCallsField := strings.TrimSpace(parts[1])

		delay, err := parseDelayField(delayField)
		if err != nil {
			return nil, &InvalidPatternError{Pattern: raw, Err: err}
		}

		maxCalls, err := parseMaxCallsField(maxCallsField)
		if err != nil {
			return nil, &InvalidPatternError{Pattern: raw, Err: err}
		}

		p.Delay = delay
		p.MaxCalls = maxCalls
		s = rest
	}

	if s == "" {
		return nil, &InvalidPatternError{Pattern: raw, Err: fmt.Errorf("missing cron expression")}
	}
	if err := cronengine.Validate(s); err != nil {
		return nil, &InvalidPatternError{Pattern: raw, Err: err}
	}
	p.Cron = s
	return p, nil
}

// parseDelayField decodes the "delay" half of the extended prefix: "*"
// means no delay; otherwise the field is a non-negative decimal integer
// count of seconds.
func parseDelayField(field string) (time.Duration, error) {
	if field == "*" {
		return 0, nil
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", field, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("delay must be >= 0, got %d", n)
	}
	return time.Duration(n) * time.Second, nil
}

// parseMaxCallsField decodes the "maxCalls" half of the extended prefix:
// "*" means unbounded (MaxCalls=0); otherwise the field is a decimal
// integer count, and a literal 0 is rejected because "*" is the only
// accepted spelling of "unbounded".
func parseMaxCallsField(field string) (int, error) {
	if field == "*" {
		return 0, nil
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("invalid maxCalls %q: %w", field, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("maxCalls must be >= 0, got %d", n)
	}
	if n == 0 {
		return 0, fmt.Errorf("maxCalls literal 0 is forbidden; use \"*\" for unbounded")
	}
	return n, nil
}

// String renders the Pattern back to its canonical textual form. A
// Pattern with no delay and no call budget renders as bare cron.
func (p *Pattern) String() string {
	if p.Delay == 0 && p.MaxCalls == 0 {
		return p.Cron
	}
	delayField := "*"
	if p.Delay > 0 {
		delayField = strconv.Itoa(int(p.Delay / time.Second))
	}
	maxCallsField := "*"
	if p.MaxCalls > 0 {
		maxCallsField = strconv.Itoa(p.MaxCalls)
	}
	return fmt.Sprintf("{%s,%s} %s", delayField, maxCallsField, p.Cron)
}
