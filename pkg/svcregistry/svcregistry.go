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

// Package svcregistry enumerates reusable service definitions on disk
// and renders their per-deployment manifests.
package svcregistry

// Image is one buildable image belonging to a service.
type Image struct {
	Name string `json:"name"`
}

// Spec is the content of {services_root}/{name}/{version}/conf.json.
type Spec struct {
	Name       string            `json:"name"`
	Version    string            `json:"version"`
	Images     []Image           `json:"images,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Client     string            `json:"client,omitempty"`
}

// Record is one versioned ServiceRecord: its Spec, its rendered
// deployment/component templates, and the last spec it was successfully
// built with (nil if never built).
type Record struct {
	Path        string
	Spec        Spec
	LastBuild   *Spec
	Deployments map[string]string // mode -> raw template text
	Components  map[string]string // "{component}.json" -> raw template text
	Client      string            // raw client snippet, "" if none
}

// FullName is name + "-" + version, the Service Registry's unique key.
func (r *Record) FullName() string { return r.Spec.Name + "-" + r.Spec.Version }
