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

// Package imageregistry serves the private container registry that the
// builder worker pool pushes images to, built on
// github.com/google/go-containerregistry/pkg/registry. That package has
// no push-completion hook, so one is synthesized here with a thin
// ResponseWriter wrapper that watches for a successful manifest PUT.
package imageregistry

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/go-containerregistry/pkg/registry"
)

// OnPush is called after a manifest PUT succeeds, with the repository
// name and tag/digest reference pushed.
type OnPush func(repo, reference string)

// Registry is an http.Handler serving the Docker/OCI Registry HTTP API
// v2 surface, backed by on-disk blob storage.
type Registry struct {
	handler http.Handler
	onPush  OnPush
}

var manifestPath = regexp.MustCompile(`^/v2/(.+)/manifests/([^/]+)$`)

// New constructs a Registry persisting blobs under blobsRoot. onPush may
// be nil.
func New(blobsRoot string, onPush OnPush) (*Registry, error) {
	if err := os.MkdirAll(blobsRoot, 0700); err != nil {
		return nil, fmt.Errorf("imageregistry: create blobs root: %w", err)
	}
	bh := registry.NewDiskBlobHandler(blobsRoot)
	h := registry.New(registry.WithBlobHandler(bh))
	return &Registry{handler: h, onPush: onPush}, nil
}

// ServeHTTP implements http.Handler.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.handler.ServeHTTP(rec, req)

	if r.onPush == nil || req.Method != http.MethodPut || rec.status/100 != 2 {
		return
	}
	if m := manifestPath.FindStringSubmatch(req.URL.Path); m != nil {
		r.onPush(m[1], m[2])
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// ImageRef formats a fully-qualified image reference for repo under
// registryName, tagged with tag.
func ImageRef(registryName, repo, tag string) string {
	return filepath.ToSlash(filepath.Join(registryName, repo)) + ":" + tag
}
