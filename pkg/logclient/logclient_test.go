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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/repoforge/repoforge/pkg/logdaemon"
)

type fakeSink struct {
	mu  sync.Mutex
	got []logdaemon.LogRequest
}

func (s *fakeSink) HandleLog(req logdaemon.LogRequest) logdaemon.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, req)
	return logdaemon.Response{Type: "success"}
}

func (s *fakeSink) all() []logdaemon.LogRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]logdaemon.LogRequest, len(s.got))
	copy(out, s.got)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestClientEnqueuesAndDrains(t *testing.T) {
	sink := &fakeSink{}
	c := New(sink)

	c.Info("builder", "building", "myapp")
	c.Error("builder", "boom", "myapp")

	waitFor(t, func() bool { return len(sink.all()) == 2 })

	got := sink.all()
	if got[0].Level != LevelInfo || got[0].Msg != "building" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Level != LevelError || got[1].Msg != "boom" {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestNoPublishSetsFlag(t *testing.T) {
	sink := &fakeSink{}
	c := New(sink)

	c.NoPublish("WARNING", "builder", "retrying", "myapp")

	waitFor(t, func() bool { return len(sink.all()) == 1 })
	got := sink.all()[0]
	if !got.NoPublish || got.Level != LevelWarning {
		t.Errorf("got = %+v, want NoPublish=true Level=%d", got, LevelWarning)
	}
}

func TestShutdownFlushesQueue(t *testing.T) {
	sink := &fakeSink{}
	c := New(sink)

	for i := 0; i < 50; i++ {
		c.Debug("t", "line", "app")
	}
	c.Shutdown(context.Background())

	if got := len(sink.all()); got != 50 {
		t.Errorf("after Shutdown, sink received %d records, want 50", got)
	}
}

func TestWriteStreamForwardsLines(t *testing.T) {
	sink := &fakeSink{}
	c := New(sink)

	r := strings.NewReader("line one\nline two\n")
	c.WriteStream("subproc", LevelInfo, r, "myapp")

	waitFor(t, func() bool { return len(sink.all()) == 2 })
	got := sink.all()
	if got[0].Msg != "line one" || got[1].Msg != "line two" {
		t.Errorf("got = %+v", got)
	}
}

type fakeDaemon struct {
	historyMsg string
}

func (d *fakeDaemon) HandleGet(req logdaemon.GetRequest) logdaemon.Response {
	return logdaemon.Response{Type: "success", Msg: d.historyMsg}
}

type fakeLive struct {
	ch chan logdaemon.Record
}

func (l *fakeLive) Subscribe(topic string) (chan logdaemon.Record, func()) {
	return l.ch, func() { close(l.ch) }
}

func TestAppLogStreamerHistoryThenLive(t *testing.T) {
	hist := &fakeDaemon{historyMsg: "2026-07-31 09:00:00,000 INFO: - t: old line"}
	live := &fakeLive{ch: make(chan logdaemon.Record, 1)}
	s := NewAppLogStreamer(hist, live)

	ctx, cancel := context.WithCancel(context.Background())
	out, err := s.Stream(ctx, "myapp", "", false)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	first := <-out
	if !strings.Contains(first, "old line") {
		t.Errorf("first line = %q, want it to contain 'old line'", first)
	}

	newer := time.Date(2026, 7, 31, 9, 0, 1, 0, time.UTC)
	live.ch <- logdaemon.Record{Level: logdaemon.LevelInfo, Tag: "t", Msg: "new line", App: "myapp", Timestamp: newer}
	second := <-out
	if !strings.Contains(second, "new line") {
		t.Errorf("second line = %q, want it to contain 'new line'", second)
	}

	cancel()
	for range out {
	}
}

// A live record whose timestamp is not strictly newer than the last
// historical line is a replay from the overlap window and must not be
// emitted twice.
func TestAppLogStreamerDropsReplayedHistory(t *testing.T) {
	hist := &fakeDaemon{historyMsg: "2026-07-31 09:00:00,500 INFO: - t: old line"}
	live := &fakeLive{ch: make(chan logdaemon.Record, 2)}
	s := NewAppLogStreamer(hist, live)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := s.Stream(ctx, "myapp", "", false)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	<-out // historical line

	replayed := time.Date(2026, 7, 31, 9, 0, 0, 500e6, time.UTC)
	fresh := time.Date(2026, 7, 31, 9, 0, 0, 501e6, time.UTC)
	live.ch <- logdaemon.Record{Level: logdaemon.LevelInfo, Tag: "t", Msg: "old line", App: "myapp", Timestamp: replayed}
	live.ch <- logdaemon.Record{Level: logdaemon.LevelInfo, Tag: "t", Msg: "fresh line", App: "myapp", Timestamp: fresh}

	got := <-out
	if !strings.Contains(got, "fresh line") {
		t.Errorf("got = %q, want the replayed record skipped and 'fresh line' next", got)
	}

	cancel()
	for range out {
	}
}
