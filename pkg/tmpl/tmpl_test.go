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

package tmpl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRenderString(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		params Params
		want   string
	}{
		{
			name:   "simple substitution",
			in:     "image: {{app.notebooks-image}}",
			params: Params{"app.notebooks-image": "gcr.io/proj/app:latest"},
			want:   "image: gcr.io/proj/app:latest",
		},
		{
			name:   "missing key left untouched",
			in:     "port: {{app.notebooks-port}}, name: {{app.name}}",
			params: Params{"app.name": "org-repo"},
			want:   "port: {{app.notebooks-port}}, name: org-repo",
		},
		{
			name:   "substituted value is not rescanned",
			in:     "{{a}}",
			params: Params{"a": "{{b}}", "b": "oops"},
			want:   "{{b}}",
		},
		{
			name:   "no placeholders",
			in:     "just plain text",
			params: Params{"unused": "x"},
			want:   "just plain text",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RenderString(tc.in, tc.params)
			if got != tc.want {
				t.Errorf("RenderString(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNamespace(t *testing.T) {
	got := Namespace("app", Params{"name": "org-repo", "id": "abc123"})
	want := Params{"app.name": "org-repo", "app.id": "abc123"}
	if len(got) != len(want) {
		t.Fatalf("Namespace() returned %d keys, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Namespace()[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestMergePrecedence(t *testing.T) {
	a := Params{"x": "from-a", "y": "from-a"}
	b := Params{"y": "from-b"}
	got := Merge(a, b)
	if got["x"] != "from-a" || got["y"] != "from-b" {
		t.Errorf("Merge() = %+v, want x=from-a y=from-b", got)
	}
}

func TestRenderFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deployment.json")
	original := `{"name": "{{app.name}}", "image": "{{app.notebooks-image}}"}`
	if err := os.WriteFile(path, []byte(original), 0644); err != nil {
		t.Fatal(err)
	}

	params := Params{"app.name": "org-repo", "app.notebooks-image": "gcr.io/p/app:latest"}
	if err := RenderFile(path, params); err != nil {
		t.Fatalf("RenderFile: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"name": "org-repo", "image": "gcr.io/p/app:latest"}`
	if string(got) != want {
		t.Errorf("rendered file = %q, want %q", got, want)
	}

	// Rendering again with the same params is a no-op: no {{key}} tokens
	// remain to substitute.
	if err := RenderFile(path, params); err != nil {
		t.Fatalf("second RenderFile: %v", err)
	}
	got2, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got2) != want {
		t.Errorf("second render changed file: got %q", got2)
	}
}

func TestRenderTree(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "manifests")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	f1 := filepath.Join(dir, "a.json")
	f2 := filepath.Join(sub, "b.json")
	if err := os.WriteFile(f1, []byte("{{app.name}}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f2, []byte("{{app.name}}-b"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RenderTree(dir, Params{"app.name": "org-repo"}); err != nil {
		t.Fatalf("RenderTree: %v", err)
	}

	for path, want := range map[string]string{f1: "org-repo", f2: "org-repo-b"} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}
