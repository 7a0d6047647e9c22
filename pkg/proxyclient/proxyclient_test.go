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

package proxyclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".proxy_info")
	if err := WriteInfo(path, srv.URL+"/api/routes", "s3cr3t"); err != nil {
		t.Fatalf("WriteInfo: %v", err)
	}
	return New(path)
}

func TestRegister(t *testing.T) {
	var gotAuth, gotPath, gotTarget string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotTarget = body["target"]
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.Register("abc123", "http://10.0.0.1:8888"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if gotAuth != "token s3cr3t" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "token s3cr3t")
	}
	if gotPath != "/api/routes/abc123" {
		t.Errorf("path = %q, want /api/routes/abc123", gotPath)
	}
	if gotTarget != "http://10.0.0.1:8888" {
		t.Errorf("target = %q, want http://10.0.0.1:8888", gotTarget)
	}
}

func TestRegisterNon201IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.Register("abc123", "http://10.0.0.1:8888"); err == nil {
		t.Error("Register returned nil error for a 500 response")
	}
}

func TestRemove(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.Remove("abc123"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
	if gotPath != "/api/routes/abc123" {
		t.Errorf("path = %q, want /api/routes/abc123", gotPath)
	}
}

func TestInactiveRoutesUsesQueryParameter(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("inactive_since")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"/abc123": map[string]string{"target": "http://10.0.0.1:8888"},
			"/def456": map[string]string{"target": "http://10.0.0.2:8888"},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	routes, err := c.InactiveRoutes("2026-07-31T00:00:00Z")
	if err != nil {
		t.Fatalf("InactiveRoutes: %v", err)
	}
	if gotQuery != "2026-07-31T00:00:00Z" {
		t.Errorf("inactive_since query param = %q, want 2026-07-31T00:00:00Z", gotQuery)
	}
	if len(routes) != 2 {
		t.Fatalf("InactiveRoutes returned %d routes, want 2", len(routes))
	}
	for _, r := range routes {
		if r == "abc123" || r == "def456" {
			continue
		}
		t.Errorf("unexpected route key %q (leading slash should be stripped)", r)
	}
}

func TestWriteInfoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".proxy_info")
	if err := WriteInfo(path, "http://proxy.example/api/routes", "tok"); err != nil {
		t.Fatalf("WriteInfo: %v", err)
	}
	c := New(path)
	url, token, err := c.readInfo()
	if err != nil {
		t.Fatalf("readInfo: %v", err)
	}
	if url != "http://proxy.example/api/routes" || token != "tok" {
		t.Errorf("readInfo() = (%q, %q), want (http://proxy.example/api/routes, tok)", url, token)
	}
}
