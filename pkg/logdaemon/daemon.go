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
	"time"
)

// Response is the broker's reply envelope:
// {type: "success"|"error", msg}.
type Response struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

func success(msg string) Response { return Response{Type: "success", Msg: msg} }
func errResp(format string, args ...interface{}) Response {
	return Response{Type: "error", Msg: fmt.Sprintf(format, args...)}
}

// LogRequest is the log_writer worker's request contract.
type LogRequest struct {
	Type      string `json:"type"`
	Level     int    `json:"level"`
	Tag       string `json:"tag"`
	Msg       string `json:"msg"`
	App       string `json:"app,omitempty"`
	NoPublish bool   `json:"no_publish,omitempty"`
}

// GetRequest is the log_reader worker's request contract.
type GetRequest struct {
	Type     string `json:"type"`
	App      string `json:"app"`
	Since    string `json:"since,omitempty"`
	Filtered bool   `json:"filtered,omitempty"`
}

// Daemon hosts both the log_writer and log_reader workers and the live
// pub/sub topic, in-process. Now is overridable for tests.
type Daemon struct {
	files *files
	hub   *hub
	Now   func() time.Time
}

// New constructs a Daemon persisting files under logsRoot ({HOME_DIR}/logs/binder).
func New(logsRoot string) *Daemon {
	return &Daemon{files: newFiles(logsRoot), hub: newHub(), Now: time.Now}
}

// HandleLog implements the log_writer request contract.
func (d *Daemon) HandleLog(req LogRequest) Response {
	if req.Level <= 0 || req.Tag == "" || req.Msg == "" {
		return errResp("malformed log record: level, tag and msg are required")
	}

	rec := Record{
		Level:     levelFromInt(req.Level),
		Tag:       req.Tag,
		Msg:       req.Msg,
		App:       req.App,
		NoPublish: req.NoPublish,
		Timestamp: d.Now(),
	}
	line := rec.FormatLine()

	if rec.App == "" {
		if err := d.files.append(d.files.rootLogPath(), line); err != nil {
			return errResp("%v", err)
		}
		if !rec.NoPublish {
			d.hub.publish("root", rec)
		}
		return success("logged")
	}

	// Raw always receives the record.
	if err := d.files.append(d.files.appLogPath(rec.App, false), line); err != nil {
		return errResp("%v", err)
	}
	// Filtered and the publish stream receive it only when NoPublish is
	// absent.
	if !rec.NoPublish {
		if err := d.files.append(d.files.appLogPath(rec.App, true), line); err != nil {
			return errResp("%v", err)
		}
		d.hub.publish(rec.App, rec)
	}
	return success("logged")
}

// HandleGet implements the log_reader request contract.
func (d *Daemon) HandleGet(req GetRequest) Response {
	if req.App == "" {
		return errResp("missing app")
	}

	var since timeOrZero
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return errResp("malformed since timestamp: %v", err)
		}
		since = timeOrZero{t: t, set: true}
	}

	content, err := d.files.readSince(d.files.appLogPath(req.App, req.Filtered), since)
	if err != nil {
		return errResp("%v", err)
	}
	return success(content)
}

// Subscribe attaches a live subscriber to topic ("root" or an app name).
// The returned cancel func must be called when the subscriber
// disconnects.
func (d *Daemon) Subscribe(topic string) (ch chan Record, cancel func()) {
	return d.hub.subscribe(topic)
}
