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

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/repoforge/repoforge/pkg/websocketutil"
)

var logUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Log streaming is read by the same dashboard the API serves; every
	// origin is accepted, and no origin check runs ahead of this handler.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sinceOrLastBuild returns the query string's since parameter, or,
// when absent, the app's last build time, so the static and live log
// endpoints default to logs from the current build.
func (s *Server) sinceOrLastBuild(name, since string) string {
	if since != "" {
		return since
	}
	rec, ok, err := s.apps.Find(name)
	if err != nil || !ok || rec.LastBuildTime.IsZero() {
		return ""
	}
	return rec.LastBuildTime.Format(time.RFC3339)
}

// handleLogsStatic implements GET /apps/{org}/{repo}/logs/static.
func (s *Server) handleLogsStatic(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log daemon not enabled")
		return
	}
	name := appName(chi.URLParam(r, "org"), chi.URLParam(r, "repo"))
	since := s.sinceOrLastBuild(name, r.URL.Query().Get("since"))

	result, err := s.pool.dispatch(r.Context(), func() (interface{}, error) {
		return s.logs.StaticLog(name, since)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(result.(string)))
}

// handleLogsLive implements GET /apps/{org}/{repo}/logs/live: upgrades to
// a WebSocket and forwards history-then-live log lines, one binary frame
// per line, until the client disconnects, a write fails, or the request
// context ends.
func (s *Server) handleLogsLive(w http.ResponseWriter, r *http.Request) {
	if s.streamer == nil {
		writeError(w, http.StatusServiceUnavailable, "log daemon not enabled")
		return
	}
	name := appName(chi.URLParam(r, "org"), chi.URLParam(r, "repo"))
	since := s.sinceOrLastBuild(name, r.URL.Query().Get("since"))
	filtered := r.URL.Query().Get("filtered") != "false"

	conn, err := logUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	lines, err := s.streamer.Stream(ctx, name, since, filtered)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("error: "+err.Error()))
		_ = conn.Close()
		return
	}

	rw := websocketutil.NewConnReadWriteCloser(ctx, conn)
	defer rw.Close()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := rw.Write([]byte(line)); err != nil {
				return
			}
		case <-rw.DoneCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
