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

package logclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/repoforge/repoforge/pkg/logdaemon"
)

// HistoryReader serves the historical half of a log stream.
// logdaemon.Daemon satisfies it directly.
type HistoryReader interface {
	HandleGet(req logdaemon.GetRequest) logdaemon.Response
}

// LiveSubscriber serves the live half of a log stream.
// logdaemon.Daemon satisfies it directly.
type LiveSubscriber interface {
	Subscribe(topic string) (ch chan logdaemon.Record, cancel func())
}

// AppLogStreamer serves a single logical stream combining an app's
// recorded history with its live feed: on connect, replay history since
// the requested timestamp, then forward every subsequently published
// record.
type AppLogStreamer struct {
	reader HistoryReader
	live   LiveSubscriber
}

// NewAppLogStreamer builds a streamer over reader and live, typically
// both satisfied by the same *logdaemon.Daemon.
func NewAppLogStreamer(reader HistoryReader, live LiveSubscriber) *AppLogStreamer {
	return &AppLogStreamer{reader: reader, live: live}
}

// Stream returns a channel of formatted log lines for app: first its
// recorded history since sinceISO (empty string means "from the
// beginning"), then every record subsequently published to app's live
// topic, until ctx is canceled. The channel is closed when ctx is done;
// callers must drain it to avoid leaking the subscription goroutine.
//
// Live records whose embedded timestamp is not strictly greater than
// the last historical line's are dropped, so the overlap window between
// the historical read and the live subscribe does not duplicate lines.
func (s *AppLogStreamer) Stream(ctx context.Context, app, sinceISO string, filtered bool) (<-chan string, error) {
	out := make(chan string, 64)

	// Subscribe before the historical snapshot is taken: a record
	// published in between would otherwise be in neither the history
	// reply nor the live channel. The overlap this opens instead is
	// handled by the lastSeen filter below.
	ch, cancel := s.live.Subscribe(app)

	hist := s.reader.HandleGet(logdaemon.GetRequest{Type: "get", App: app, Since: sinceISO, Filtered: filtered})
	var historyLines []string
	if hist.Type == "success" && hist.Msg != "" {
		historyLines = strings.Split(hist.Msg, "\n")
	}

	go func() {
		defer close(out)
		defer cancel()

		var lastSeen time.Time
		for _, line := range historyLines {
			if ts, ok := logdaemon.ParseLineTimestamp(line); ok && ts.After(lastSeen) {
				lastSeen = ts
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case rec, ok := <-ch:
				if !ok {
					return
				}
				if !rec.Timestamp.Truncate(time.Millisecond).After(lastSeen) {
					continue
				}
				select {
				case out <- strings.TrimSuffix(rec.FormatLine(), "\n"):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// StaticLog returns app's recorded history since sinceISO as a single
// newline-joined string.
func (s *AppLogStreamer) StaticLog(app, sinceISO string) (string, error) {
	resp := s.reader.HandleGet(logdaemon.GetRequest{Type: "get", App: app, Since: sinceISO, Filtered: true})
	if resp.Type != "success" {
		return "", fmt.Errorf("logclient: static log %s: %s", app, resp.Msg)
	}
	return resp.Msg, nil
}
