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

// Package apprecord is the application registry: it persists
// AppRecords, performs atomic build-state transitions and enforces the
// single-flight-per-name build discipline.
package apprecord

import "time"

// BuildState is one node of the build-state DAG: NONE -> BUILDING ->
// {COMPLETED, FAILED} -> BUILDING ...
type BuildState string

const (
	StateNone      BuildState = "NONE"
	StateBuilding  BuildState = "BUILDING"
	StateCompleted BuildState = "COMPLETED"
	StateFailed    BuildState = "FAILED"
)

// AppSpec is the admitted, user-supplied build request. Name is never
// accepted from the client: the API layer derives it from the URL's
// org/repo segments and rejects a spec carrying Repo/Name explicitly.
type AppSpec struct {
	Name             string   `json:"name"`
	RepoURL          string   `json:"repo_url"`
	Services         []string `json:"services,omitempty"`
	Dependencies     []string `json:"dependencies,omitempty"`
	DockerfilePath   string   `json:"dockerfile_path,omitempty"`
	NotebooksPath    string   `json:"notebooks_path,omitempty"`
	RequirementsPath string   `json:"requirements_path,omitempty"`
	RebuildBase      bool     `json:"rebuild_base,omitempty"`
}

// Recognized dependency tokens.
const (
	DepRequirementsTxt = "requirements.txt"
	DepEnvironmentYML  = "environment.yml"
	DepDockerfile      = "dockerfile"
)

// HasDependency reports whether token is present in spec.Dependencies.
func (s AppSpec) HasDependency(token string) bool {
	for _, d := range s.Dependencies {
		if d == token {
			return true
		}
	}
	return false
}

// AppRecord is the persistent record for one app. Dir is the app's
// on-disk working directory, {HOME_DIR}/apps/{name}.
type AppRecord struct {
	Name          string     `json:"name"`
	Spec          AppSpec    `json:"spec"`
	Dir           string     `json:"dir"`
	BuildState    BuildState `json:"build_state"`
	LastBuildTime time.Time  `json:"last_build_time,omitempty"`
	DeploymentID  string     `json:"deployment_id,omitempty"`
}
