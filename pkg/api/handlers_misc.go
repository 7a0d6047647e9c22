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
	"net/http"
	"sort"

	"github.com/repoforge/repoforge/pkg/cluster"
)

// handleListApps implements GET /apps: every known AppRecord, sorted by
// name.
func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	recs, err := s.apps.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	writeJSON(w, http.StatusOK, recs)
}

// handleListServices implements GET /services.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	if s.services == nil {
		writeError(w, http.StatusServiceUnavailable, "service registry not enabled")
		return
	}
	recs, err := s.services.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].FullName() < recs[j].FullName() })
	writeJSON(w, http.StatusOK, recs)
}

// handleRunning implements GET /running: the currently deployed apps,
// dispatched through the bounded worker pool since it touches the
// orchestrator.
func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	if s.clusterI == nil {
		writeError(w, http.StatusServiceUnavailable, "cluster controller not enabled")
		return
	}
	result, err := s.pool.dispatch(r.Context(), func() (interface{}, error) {
		return s.clusterI.RunningApps(r.Context())
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result.([]cluster.RunningApp))
}

// handleCapacity implements GET /capacity: {capacity, running}.
// capacity is the cached node-pod budget; running is the number of apps
// RunningApps reports: non-system namespaces whose notebook image could
// be read.
func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	if s.clusterI == nil {
		writeError(w, http.StatusServiceUnavailable, "cluster controller not enabled")
		return
	}
	result, err := s.pool.dispatch(r.Context(), func() (interface{}, error) {
		capacity, err := s.clusterI.Capacity(r.Context())
		if err != nil {
			return nil, err
		}
		running, err := s.clusterI.RunningApps(r.Context())
		if err != nil {
			return nil, err
		}
		return map[string]int{"capacity": capacity, "running": len(running)}, nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
