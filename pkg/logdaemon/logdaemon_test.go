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

package logdaemon

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestFormatLineParseLineTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2026, 7, 31, 10, 20, 30, 456000000, time.UTC)
	rec := Record{Level: LevelInfo, Tag: "builder", Msg: "hello", Timestamp: ts}

	line := rec.FormatLine()
	if !strings.Contains(line, "2026-07-31 10:20:30,456") {
		t.Fatalf("FormatLine() = %q, want a 2026-07-31 10:20:30,456 prefix", line)
	}
	if !strings.Contains(line, "INFO: - builder: hello") {
		t.Fatalf("FormatLine() = %q, missing level/tag/msg segment", line)
	}

	got, ok := ParseLineTimestamp(line)
	if !ok {
		t.Fatalf("ParseLineTimestamp(%q) failed to parse", line)
	}
	if !got.Equal(ts) {
		t.Errorf("ParseLineTimestamp(%q) = %v, want %v", line, got, ts)
	}
}

func TestFormatLineStripsANSI(t *testing.T) {
	rec := Record{Level: LevelError, Tag: "t", Msg: "bad\x1b[31mcolor\x1b[0m thing"}
	line := rec.FormatLine()
	if strings.Contains(line, "[31m") || strings.Contains(line, "[0m") {
		t.Errorf("FormatLine() = %q, want ANSI escapes stripped", line)
	}
}

func TestLevelFromInt(t *testing.T) {
	cases := []struct {
		n    int
		want Level
	}{
		{50, LevelError},
		{40, LevelError},
		{30, LevelWarning},
		{20, LevelInfo},
		{10, LevelDebug},
		{0, LevelDebug},
	}
	for _, c := range cases {
		if got := levelFromInt(c.n); got != c.want {
			t.Errorf("levelFromInt(%d) = %v, want %v", c.n, got, c.want)
		}
	}
}

func TestHubSubscribePublish(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe("myapp")
	defer cancel()

	rec := Record{Level: LevelInfo, Tag: "t", Msg: "m", App: "myapp"}
	h.publish("myapp", rec)

	select {
	case got := <-ch:
		if got.Msg != "m" {
			t.Errorf("published record msg = %q, want m", got.Msg)
		}
	default:
		t.Fatal("subscriber did not receive published record")
	}
}

func TestHubPublishToOtherTopicDoesNotDeliver(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe("appA")
	defer cancel()

	h.publish("appB", Record{Tag: "t", Msg: "m"})

	select {
	case <-ch:
		t.Fatal("subscriber to appA received a record published to appB")
	default:
	}
}

func TestHubPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	h := newHub()
	_, cancel := h.subscribe("root")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < hubBufferSize+10; i++ {
			h.publish("root", Record{Tag: "t", Msg: "m"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked with a full subscriber buffer")
	}
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d := New(t.TempDir())
	return d
}

func TestHandleLogRejectsMalformedRequest(t *testing.T) {
	d := newTestDaemon(t)
	cases := []LogRequest{
		{Level: 20},                             // missing tag and msg
		{Level: 20, Tag: "t"},                   // missing msg
		{Tag: "t", Msg: "m"},                    // missing level
		{Level: -1, Tag: "t", Msg: "m"},         // nonsense level
	}
	for _, req := range cases {
		if resp := d.HandleLog(req); resp.Type != "error" {
			t.Errorf("HandleLog(%+v) = %+v, want an error response", req, resp)
		}
	}
}

func TestHandleLogRootVsApp(t *testing.T) {
	d := newTestDaemon(t)

	if resp := d.HandleLog(LogRequest{Level: 20, Tag: "sys", Msg: "root line"}); resp.Type != "success" {
		t.Fatalf("HandleLog(root) = %+v", resp)
	}
	if resp := d.HandleLog(LogRequest{Level: 20, Tag: "b", Msg: "app line", App: "myapp"}); resp.Type != "success" {
		t.Fatalf("HandleLog(app) = %+v", resp)
	}

	got := d.HandleGet(GetRequest{App: "myapp"})
	if got.Type != "success" || !strings.Contains(got.Msg, "app line") {
		t.Errorf("HandleGet(myapp) = %+v, want it to contain 'app line'", got)
	}
}

func TestHandleLogNoPublishSkipsFilteredAndHub(t *testing.T) {
	d := newTestDaemon(t)
	ch, cancel := d.Subscribe("myapp")
	defer cancel()

	if resp := d.HandleLog(LogRequest{Level: 20, Tag: "b", Msg: "silent", App: "myapp", NoPublish: true}); resp.Type != "success" {
		t.Fatalf("HandleLog = %+v", resp)
	}

	select {
	case rec := <-ch:
		t.Fatalf("subscriber received a no_publish record: %+v", rec)
	default:
	}

	raw := d.HandleGet(GetRequest{App: "myapp", Filtered: false})
	if !strings.Contains(raw.Msg, "silent") {
		t.Error("raw log is missing a no_publish record, but it must always be written")
	}
	filtered := d.HandleGet(GetRequest{App: "myapp", Filtered: true})
	if strings.Contains(filtered.Msg, "silent") {
		t.Error("filtered log contains a no_publish record, but it must be excluded")
	}
}

func TestHandleGetMissingAppIsError(t *testing.T) {
	d := newTestDaemon(t)
	resp := d.HandleGet(GetRequest{})
	if resp.Type != "error" {
		t.Errorf("HandleGet(no app) = %+v, want an error response", resp)
	}
}

func TestHandleGetSinceFiltersOlderLines(t *testing.T) {
	d := newTestDaemon(t)
	base := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	times := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}
	for i, ts := range times {
		d.Now = func() time.Time { return ts }
		d.HandleLog(LogRequest{Level: 20, Tag: "t", Msg: fmt.Sprintf("line-%d", i), App: "myapp"})
	}

	resp := d.HandleGet(GetRequest{App: "myapp", Since: base.Add(time.Minute).Format(time.RFC3339)})
	if resp.Type != "success" {
		t.Fatalf("HandleGet: %+v", resp)
	}
	if strings.Contains(resp.Msg, "line-0") || strings.Contains(resp.Msg, "line-1") {
		t.Errorf("HandleGet(since) returned lines at or before the threshold: %q", resp.Msg)
	}
	if !strings.Contains(resp.Msg, "line-2") {
		t.Errorf("HandleGet(since) is missing the line strictly after the threshold: %q", resp.Msg)
	}
}
