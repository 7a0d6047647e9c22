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

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestAPIClientGetAndPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/capacity":
			json.NewEncoder(w).Encode(map[string]any{"capacity": 12, "running": 3})
		case r.Method == http.MethodPost && r.URL.Path == "/apps/acme/notebooks":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]any{"success": "build enqueued"})
		case r.Method == http.MethodGet && r.URL.Path == "/apps/acme/missing/status":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"error": "app not found"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL)

	resp, err := c.get(context.Background(), "/capacity", nil)
	if err != nil {
		t.Fatalf("get /capacity: %v", err)
	}
	if resp["capacity"].(float64) != 12 {
		t.Fatalf("capacity = %v, want 12", resp["capacity"])
	}

	resp, err = c.post(context.Background(), "/apps/acme/notebooks", map[string]any{"services": []string{}})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp["success"] != "build enqueued" {
		t.Fatalf("success = %v", resp["success"])
	}

	_, err = c.get(context.Background(), "/apps/acme/missing/status", nil)
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}

func TestAPIClientGetInto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"name": "acme/notebooks", "build_state": "completed"},
		})
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL)
	var recs []appRecordView
	if err := c.getInto(context.Background(), "/apps", nil, &recs); err != nil {
		t.Fatalf("getInto: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "acme/notebooks" {
		t.Fatalf("recs = %+v", recs)
	}
}

func TestAPIClientGetIntoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"error": "cluster controller not enabled"})
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL)
	var recs []runningAppView
	err := c.getInto(context.Background(), "/running", nil, &recs)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestAPIClientGetText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("line one\nline two\n"))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL)
	text, err := c.getText(context.Background(), "/apps/acme/notebooks/logs/static", nil)
	if err != nil {
		t.Fatalf("getText: %v", err)
	}
	if text != "line one\nline two\n" {
		t.Fatalf("text = %q", text)
	}
}

func TestAPIClientFollowLogs(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.WriteMessage(websocket.TextMessage, []byte("world"))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lines []string
	err := c.followLogs(ctx, "/apps/acme/notebooks/logs/live", nil, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("followLogs: %v", err)
	}
	if len(lines) != 2 || lines[0] != "hello" || lines[1] != "world" {
		t.Fatalf("lines = %v", lines)
	}
}
