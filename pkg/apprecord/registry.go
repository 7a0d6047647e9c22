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

package apprecord

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// stateFile is the content of {dir}/build/.build_state: everything about
// an AppRecord that changes after creation.
type stateFile struct {
	BuildState    BuildState `json:"build_state"`
	LastBuildTime time.Time  `json:"last_build_time,omitempty"`
	DeploymentID  string     `json:"deployment_id,omitempty"`
}

// Registry is the filesystem-backed application registry. It is safe
// for concurrent use; per-name operations are linearized by a lock
// striped on the app name.
type Registry struct {
	appsDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	mirror *sqliteMirror // optional, may be nil
}

// New returns a Registry rooted at appsDir, creating it if necessary.
// If dbPath is non-empty, an optional sqlite mirror of last_build_time
// is opened alongside it.
func New(appsDir string, dbPath string) (*Registry, error) {
	if err := os.MkdirAll(appsDir, 0755); err != nil {
		return nil, fmt.Errorf("apprecord: create apps dir: %w", err)
	}
	r := &Registry{
		appsDir: appsDir,
		locks:   make(map[string]*sync.Mutex),
	}
	if dbPath != "" {
		m, err := openSQLiteMirror(dbPath)
		if err != nil {
			return nil, fmt.Errorf("apprecord: open timestamp mirror: %w", err)
		}
		r.mirror = m
	}
	return r, nil
}

func (r *Registry) lockFor(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

func (r *Registry) appDir(name string) string     { return filepath.Join(r.appsDir, name) }
func (r *Registry) specPath(name string) string    { return filepath.Join(r.appDir(name), "spec.json") }
func (r *Registry) buildDir(name string) string    { return filepath.Join(r.appDir(name), "build") }
func (r *Registry) statePath(name string) string   { return filepath.Join(r.buildDir(name), ".build_state") }
func (r *Registry) repoDir(name string) string     { return filepath.Join(r.appDir(name), "repo") }

// writeAtomic writes data to path by writing to a temp sibling then
// renaming over the target, so readers never observe a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func readState(path string) (stateFile, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return stateFile{BuildState: StateNone}, nil
	}
	if err != nil {
		return stateFile{}, err
	}
	var s stateFile
	if err := json.Unmarshal(b, &s); err != nil {
		return stateFile{}, err
	}
	return s, nil
}

func writeState(path string, s stateFile) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return writeAtomic(path, b)
}

// Create is idempotent by spec.Name: if a record already exists its
// stored spec is overwritten, its build state is left untouched, and
// its working directory is created if missing.
func (r *Registry) Create(spec AppSpec) (*AppRecord, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("apprecord: spec.Name must not be empty")
	}
	lock := r.lockFor(spec.Name)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(r.repoDir(spec.Name), 0755); err != nil {
		return nil, fmt.Errorf("apprecord: create app dir: %w", err)
	}
	b, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(r.specPath(spec.Name), b); err != nil {
		return nil, fmt.Errorf("apprecord: write spec: %w", err)
	}

	st, err := readState(r.statePath(spec.Name))
	if err != nil {
		return nil, fmt.Errorf("apprecord: read state: %w", err)
	}

	return &AppRecord{
		Name:          spec.Name,
		Spec:          spec,
		Dir:           r.appDir(spec.Name),
		BuildState:    st.BuildState,
		LastBuildTime: st.LastBuildTime,
		DeploymentID:  st.DeploymentID,
	}, nil
}

// Find returns the record for name, or ok=false if none exists.
func (r *Registry) Find(name string) (rec *AppRecord, ok bool, err error) {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	return r.findLocked(name)
}

func (r *Registry) findLocked(name string) (*AppRecord, bool, error) {
	b, err := os.ReadFile(r.specPath(name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("apprecord: read spec: %w", err)
	}
	var spec AppSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, false, fmt.Errorf("apprecord: decode spec: %w", err)
	}
	st, err := readState(r.statePath(name))
	if err != nil {
		return nil, false, fmt.Errorf("apprecord: read state: %w", err)
	}
	return &AppRecord{
		Name:          name,
		Spec:          spec,
		Dir:           r.appDir(name),
		BuildState:    st.BuildState,
		LastBuildTime: st.LastBuildTime,
		DeploymentID:  st.DeploymentID,
	}, true, nil
}

// List enumerates every AppRecord, sorted by name.
func (r *Registry) List() ([]*AppRecord, error) {
	entries, err := os.ReadDir(r.appsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("apprecord: list apps dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*AppRecord
	for _, name := range names {
		rec, ok, err := r.Find(name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetBuildState returns the current build state for name (StateNone if
// the app has no record at all).
func (r *Registry) GetBuildState(name string) (BuildState, error) {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	st, err := readState(r.statePath(name))
	if err != nil {
		return "", fmt.Errorf("apprecord: read state: %w", err)
	}
	return st.BuildState, nil
}

// UpdateBuildState atomically transitions name's build state. A
// transition into BUILDING stamps last_build_time in the same write.
func (r *Registry) UpdateBuildState(name string, state BuildState) error {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	st, err := readState(r.statePath(name))
	if err != nil {
		return fmt.Errorf("apprecord: read state: %w", err)
	}
	st.BuildState = state
	if state == StateBuilding {
		st.LastBuildTime = now()
		if r.mirror != nil {
			if err := r.mirror.stampBuildTime(name, st.LastBuildTime); err != nil {
				return fmt.Errorf("apprecord: mirror stamp: %w", err)
			}
		}
	}
	return writeState(r.statePath(name), st)
}

// SetDeploymentID persists the opaque per-deploy identifier assigned by
// the Cluster Controller.
func (r *Registry) SetDeploymentID(name, deploymentID string) error {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	st, err := readState(r.statePath(name))
	if err != nil {
		return fmt.Errorf("apprecord: read state: %w", err)
	}
	st.DeploymentID = deploymentID
	return writeState(r.statePath(name), st)
}

// StampBuildTime sets last_build_time to the current time independent
// of any state transition (used e.g. by an operator-triggered rebuild
// of the shared base image).
func (r *Registry) StampBuildTime(name string) error {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	st, err := readState(r.statePath(name))
	if err != nil {
		return fmt.Errorf("apprecord: read state: %w", err)
	}
	st.LastBuildTime = now()
	if r.mirror != nil {
		if err := r.mirror.stampBuildTime(name, st.LastBuildTime); err != nil {
			return fmt.Errorf("apprecord: mirror stamp: %w", err)
		}
	}
	return writeState(r.statePath(name), st)
}

// LastBuildTime returns the stored last_build_time for name.
func (r *Registry) LastBuildTime(name string) (time.Time, error) {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	st, err := readState(r.statePath(name))
	if err != nil {
		return time.Time{}, fmt.Errorf("apprecord: read state: %w", err)
	}
	return st.LastBuildTime, nil
}

// RepoDir is {dir}/repo, where the Builder clones the app's source.
func (r *Registry) RepoDir(name string) string { return r.repoDir(name) }

// BuildDir is {dir}/build, the build context directory.
func (r *Registry) BuildDir(name string) string { return r.buildDir(name) }

// Close releases the optional sqlite mirror, if one is open.
func (r *Registry) Close() error {
	if r.mirror != nil {
		return r.mirror.close()
	}
	return nil
}

// now is a seam over time.Now so tests can't accidentally depend on wall
// clock skew across assertions; production always uses the real clock.
var now = time.Now
