// Copyright 2025 AUTHORS
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

// Package logdaemon is the logging back end: a request/reply broker
// serving log-write and log-read requests, plus a publish/subscribe
// feed of live records. It owns the per-app log files; everything else
// in the process logs through pkg/logclient.
package logdaemon

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Level is one of the four recognized severities.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// levelFromInt maps the numeric level carried on the wire to a Level.
// The thresholds follow the common 10/20/30/40 logging numbering, which
// is what existing emitters send.
func levelFromInt(n int) Level {
	switch {
	case n >= 40:
		return LevelError
	case n >= 30:
		return LevelWarning
	case n >= 20:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// Record is one structured log entry.
type Record struct {
	Level     Level
	Tag       string
	Msg       string
	App       string // "" means the root logger
	NoPublish bool
	Timestamp time.Time
}

var ansiEscape = regexp.MustCompile(`\[\d+m`)

// stripANSI removes the "[NNm" part of color escapes before formatting;
// the ESC byte that precedes it is left in place.
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

const dateTimeLayout = "2006-01-02 15:04:05"

// FormatLine renders r as
// "YYYY-MM-DD HH:MM:SS,fff LEVEL: - tag: message\n". The comma-separated
// millisecond suffix is not a layout Go's time.Parse fractional-second
// token can express (that token requires a leading period), so it is
// formatted and parsed by hand in ParseLineTimestamp below.
func (r Record) FormatLine() string {
	ts := r.Timestamp.Format(dateTimeLayout) + fmt.Sprintf(",%03d", r.Timestamp.Nanosecond()/1e6)
	return fmt.Sprintf("%s %s: - %s: %s\n", ts, r.Level, r.Tag, stripANSI(r.Msg))
}

// ParseLineTimestamp extracts and parses the leading
// "YYYY-MM-DD HH:MM:SS,fff" prefix of a formatted log line, its first
// two whitespace-separated tokens.
func ParseLineTimestamp(line string) (time.Time, bool) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return time.Time{}, false
	}
	datePart, timePart := fields[0], fields[1]

	msStr := ""
	if idx := strings.IndexByte(timePart, ','); idx >= 0 {
		msStr = timePart[idx+1:]
		timePart = timePart[:idx]
	}

	t, err := time.Parse(dateTimeLayout, datePart+" "+timePart)
	if err != nil {
		return time.Time{}, false
	}
	if msStr != "" {
		var ms int
		if _, err := fmt.Sscanf(msStr, "%d", &ms); err == nil {
			t = t.Add(time.Duration(ms) * time.Millisecond)
		}
	}
	return t, true
}
