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

package svcregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-cmp/cmp"
)

// Registry enumerates services laid out as
// {root}/{name}/{version}/(conf.json, components/*.json, deployments/*.json, client?).
type Registry struct {
	root string
}

// New returns a Registry rooted at root.
func New(root string) *Registry {
	return &Registry{root: root}
}

// List enumerates every service version found on disk.
func (r *Registry) List() ([]*Record, error) {
	nameEntries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("svcregistry: list services root: %w", err)
	}

	var out []*Record
	for _, ne := range nameEntries {
		if !ne.IsDir() {
			continue
		}
		nameDir := filepath.Join(r.root, ne.Name())
		versionEntries, err := os.ReadDir(nameDir)
		if err != nil {
			return nil, fmt.Errorf("svcregistry: list versions of %s: %w", ne.Name(), err)
		}
		for _, ve := range versionEntries {
			if !ve.IsDir() {
				continue
			}
			rec, err := r.load(ne.Name(), ve.Name())
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out, nil
}

func (r *Registry) versionDir(name, version string) string {
	return filepath.Join(r.root, name, version)
}

func (r *Registry) load(name, version string) (*Record, error) {
	path := r.versionDir(name, version)

	confPath := filepath.Join(path, "conf.json")
	b, err := os.ReadFile(confPath)
	if err != nil {
		return nil, fmt.Errorf("svcregistry: read %s: %w", confPath, err)
	}
	var spec Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("svcregistry: decode %s: %w", confPath, err)
	}
	spec.Name = name
	spec.Version = version

	deployments, err := readJSONDir(filepath.Join(path, "deployments"), true)
	if err != nil {
		return nil, fmt.Errorf("svcregistry: read deployments for %s-%s: %w", name, version, err)
	}
	components, err := readJSONDir(filepath.Join(path, "components"), false)
	if err != nil {
		return nil, fmt.Errorf("svcregistry: read components for %s-%s: %w", name, version, err)
	}

	var client string
	if spec.Client != "" {
		cb, err := os.ReadFile(filepath.Join(path, spec.Client))
		if err != nil {
			return nil, fmt.Errorf("svcregistry: read client snippet for %s-%s: %w", name, version, err)
		}
		client = string(cb)
	}

	lastBuild, err := readLastBuild(path)
	if err != nil {
		return nil, fmt.Errorf("svcregistry: read last build for %s-%s: %w", name, version, err)
	}

	return &Record{
		Path:        path,
		Spec:        spec,
		LastBuild:   lastBuild,
		Deployments: deployments,
		Components:  components,
		Client:      client,
	}, nil
}

// readJSONDir reads every file in dir into a map keyed by filename.
// When stripExt is true the key drops the trailing ".json" (matching
// Service.deployments, keyed by mode name); otherwise the key is the
// full filename (matching Service.components, keyed by "name.json").
func readJSONDir(dir string, stripExt bool) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		key := e.Name()
		if stripExt {
			key = strings.TrimSuffix(key, filepath.Ext(key))
		}
		out[key] = string(b)
	}
	return out, nil
}

func lastBuildPath(versionDir string) string {
	return filepath.Join(versionDir, ".last_build.json")
}

func readLastBuild(versionDir string) (*Spec, error) {
	b, err := os.ReadFile(lastBuildPath(versionDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Spec
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns the service record for name/version. If version is
// empty, the highest semver version registered under name is returned.
func (r *Registry) Get(name, version string) (*Record, error) {
	if version != "" {
		rec, err := r.load(name, version)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}

	versionEntries, err := os.ReadDir(filepath.Join(r.root, name))
	if err != nil {
		return nil, fmt.Errorf("svcregistry: service %s not found: %w", name, err)
	}

	var best *semver.Version
	var bestRaw string
	for _, ve := range versionEntries {
		if !ve.IsDir() {
			continue
		}
		v, err := semver.NewVersion(ve.Name())
		if err != nil {
			continue // non-semver version directories are ignored for "highest" selection
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = ve.Name()
		}
	}
	if best == nil {
		return nil, fmt.Errorf("svcregistry: no semver-parseable version of service %s found", name)
	}
	return r.load(name, bestRaw)
}

// Changed reports whether rec's current Spec differs structurally from
// its LastBuild; an unchanged spec lets a build be skipped.
func Changed(rec *Record) bool {
	if rec.LastBuild == nil {
		return true
	}
	return !cmp.Equal(rec.Spec, *rec.LastBuild)
}

// SaveLastBuild persists rec.Spec as the new LastBuild marker,
// atomically (temp-file-then-rename).
func (r *Registry) SaveLastBuild(rec *Record) error {
	b, err := json.MarshalIndent(rec.Spec, "", "  ")
	if err != nil {
		return err
	}
	dir := rec.Path
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-lastbuild-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, lastBuildPath(dir)); err != nil {
		return err
	}
	spec := rec.Spec
	rec.LastBuild = &spec
	return nil
}
