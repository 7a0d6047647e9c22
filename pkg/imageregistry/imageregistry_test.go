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

package imageregistry

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubHandler always writes the given status.
type stubHandler struct{ status int }

func (s stubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) { w.WriteHeader(s.status) }

func TestOnPushFiresOnSuccessfulManifestPut(t *testing.T) {
	var gotRepo, gotRef string
	r := &Registry{
		handler: stubHandler{status: http.StatusCreated},
		onPush: func(repo, reference string) {
			gotRepo = repo
			gotRef = reference
		},
	}

	req := httptest.NewRequest(http.MethodPut, "/v2/acme/demo/manifests/latest", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if gotRepo != "acme/demo" || gotRef != "latest" {
		t.Errorf("onPush called with (%q, %q), want (acme/demo, latest)", gotRepo, gotRef)
	}
}

func TestOnPushDoesNotFireOnFailedPut(t *testing.T) {
	fired := false
	r := &Registry{
		handler: stubHandler{status: http.StatusBadRequest},
		onPush:  func(repo, reference string) { fired = true },
	}

	req := httptest.NewRequest(http.MethodPut, "/v2/acme/demo/manifests/latest", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if fired {
		t.Error("onPush fired despite a non-2xx response")
	}
}

func TestOnPushIgnoresNonManifestPaths(t *testing.T) {
	fired := false
	r := &Registry{
		handler: stubHandler{status: http.StatusCreated},
		onPush:  func(repo, reference string) { fired = true },
	}

	req := httptest.NewRequest(http.MethodPut, "/v2/acme/demo/blobs/uploads/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if fired {
		t.Error("onPush fired for a blob upload path")
	}
}

func TestImageRef(t *testing.T) {
	got := ImageRef("registry.local/proj", "acme-demo", "latest")
	want := "registry.local/proj/acme-demo:latest"
	if got != want {
		t.Errorf("ImageRef() = %q, want %q", got, want)
	}
}
