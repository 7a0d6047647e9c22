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

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrefsSaveAndLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	p := &prefs{Host: "http://example:8080"}
	if err := p.save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := &prefs{}
	if err := loaded.load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Host != "http://example:8080" {
		t.Fatalf("Host = %q, want http://example:8080", loaded.Host)
	}

	if _, err := os.Stat(filepath.Join(home, ".repoforge", "ctl-prefs.json")); err != nil {
		t.Fatalf("prefs file not written: %v", err)
	}
}

func TestPrefsLoadMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	p := &prefs{}
	if err := p.load(); !os.IsNotExist(err) {
		t.Fatalf("load on missing file = %v, want os.IsNotExist", err)
	}
}

func TestFlagPrefSetMarksChanged(t *testing.T) {
	p := &prefs{Host: "http://localhost:8080"}
	v := p.HostValue()

	if err := v.Set("http://localhost:8080"); err != nil {
		t.Fatalf("Set (no-op): %v", err)
	}
	if p.changed {
		t.Fatal("setting the same value must not mark prefs changed")
	}

	if err := v.Set("http://remote:9090"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !p.changed {
		t.Fatal("setting a new value must mark prefs changed")
	}
	if p.Host != "http://remote:9090" {
		t.Fatalf("Host = %q", p.Host)
	}
	if v.String() != "http://remote:9090" {
		t.Fatalf("String() = %q", v.String())
	}
	if v.Type() != "string" {
		t.Fatalf("Type() = %q, want string", v.Type())
	}
}

func TestStdRW(t *testing.T) {
	var rw stdRW
	// stdRW just forwards to os.Stdin/os.Stdout; confirm it satisfies
	// io.ReadWriter without panicking on a zero-length write.
	if _, err := rw.Write(nil); err != nil {
		t.Fatalf("Write(nil): %v", err)
	}
}
