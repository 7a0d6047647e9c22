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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/repoforge/repoforge/pkg/apprecord"
	"github.com/repoforge/repoforge/pkg/cluster"
	"github.com/repoforge/repoforge/pkg/tmpl"
)

// rejectedSpecFields carries client-supplied fields the API derives
// itself and refuses to accept.
var rejectedSpecFields = []string{"name", "repo", "repo_url"}

func appName(org, repo string) string {
	return strings.ToLower(org + "-" + repo)
}

func repoURL(org, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s", org, repo)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolveServices turns an app's admitted service full-names into the
// {name, version} pairs the Cluster Controller needs to render each
// service's manifests. names are matched against the Service Registry's
// FullName() rather than split on "-", since both a service's name and
// its version may themselves contain hyphens.
func (s *Server) resolveServices(names []string) ([]cluster.ServiceRef, error) {
	if len(names) == 0 {
		return nil, nil
	}
	recs, err := s.services.List()
	if err != nil {
		return nil, err
	}
	byFullName := make(map[string]cluster.ServiceRef, len(recs))
	for _, rec := range recs {
		byFullName[rec.FullName()] = cluster.ServiceRef{Name: rec.Spec.Name, Version: rec.Spec.Version}
	}
	refs := make([]cluster.ServiceRef, 0, len(names))
	for _, name := range names {
		ref, ok := byFullName[name]
		if !ok {
			return nil, fmt.Errorf("unknown service %q", name)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// handleStatus implements GET /apps/{org}/{repo}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := appName(chi.URLParam(r, "org"), chi.URLParam(r, "repo"))
	rec, ok, err := s.apps.Find(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown app")
		return
	}
	state := strings.ToLower(string(rec.BuildState))
	if state == "" {
		state = "unknown"
	}
	writeJSON(w, http.StatusOK, map[string]string{"build_status": state})
}

// handleCreate implements POST /apps/{org}/{repo}: admits a build
// request, rejects any client-supplied name/repo field, and enqueues
// the derived AppSpec.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "malformed app specification")
		return
	}
	for _, field := range rejectedSpecFields {
		if _, present := raw[field]; present {
			writeError(w, http.StatusBadRequest, "malformed app specification")
			return
		}
	}

	var body struct {
		Services         []string `json:"services"`
		Dependencies     []string `json:"dependencies"`
		DockerfilePath   string   `json:"dockerfile_path"`
		NotebooksPath    string   `json:"notebooks_path"`
		RequirementsPath string   `json:"requirements_path"`
	}
	remarshaled, _ := json.Marshal(raw)
	if err := json.Unmarshal(remarshaled, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed app specification")
		return
	}

	org, repo := chi.URLParam(r, "org"), chi.URLParam(r, "repo")
	spec := apprecord.AppSpec{
		Name:             appName(org, repo),
		RepoURL:          repoURL(org, repo),
		Services:         body.Services,
		Dependencies:     body.Dependencies,
		DockerfilePath:   body.DockerfilePath,
		NotebooksPath:    body.NotebooksPath,
		RequirementsPath: body.RequirementsPath,
	}

	// A full queue is reported in the body, not as a transport error:
	// 200 with {error}, not a 5xx.
	if err := s.builds.Enqueue(spec); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": "build queue full"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"success": "app submitted to build queue"})
}

// handleGetOrDeploy implements GET /apps/{org}/{repo}: if the app has
// finished building, triggers (or reuses) its deploy and redirects;
// otherwise answers 404.
func (s *Server) handleGetOrDeploy(w http.ResponseWriter, r *http.Request) {
	name := appName(chi.URLParam(r, "org"), chi.URLParam(r, "repo"))
	rec, ok, err := s.apps.Find(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok || rec.BuildState != apprecord.StateCompleted {
		writeError(w, http.StatusNotFound, "no app available to deploy")
		return
	}
	if s.deployer == nil {
		writeError(w, http.StatusServiceUnavailable, "deploys are not enabled")
		return
	}

	if rec.DeploymentID != "" {
		writeJSON(w, http.StatusOK, map[string]string{"redirect_url": fmt.Sprintf("https://%s/%s", s.cfg.ClusterHost, rec.DeploymentID)})
		return
	}

	services, err := s.resolveServices(rec.Spec.Services)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deploymentID := s.cfg.IDGenerator()
	appParams := tmpl.Namespace("app", tmpl.Params{
		"name":            rec.Name,
		"notebooks-image": rec.Name,
		"notebooks-port":  "8888",
		"repo-url":        rec.Spec.RepoURL,
	})
	result, err := s.pool.dispatch(r.Context(), func() (interface{}, error) {
		return s.deployer.Deploy(r.Context(), rec.Name, deploymentID, appParams, services, s.cfg.DeployMode)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	url := result.(string)
	if err := s.apps.SetDeploymentID(rec.Name, deploymentID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect_url": url})
}
