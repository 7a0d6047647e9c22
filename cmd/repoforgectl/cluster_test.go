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
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
)

// installFakeScript drops an executable named clusterUpScript/
// clusterDownScript on PATH, so runClusterUp/runClusterDown's fixed
// script names resolve without a real operator environment.
func installFakeScript(t *testing.T, name string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell script only supported on POSIX")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatalf("write fake script: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRunClusterUp(t *testing.T) {
	installFakeScript(t, clusterUpScript)

	cmd := &cobra.Command{Use: "up"}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runClusterUp(cmd); err != nil {
		t.Fatalf("runClusterUp: %v", err)
	}
	if got := out.String(); got != "cluster is up\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestRunClusterDownSkipsScriptWithoutConfirmation(t *testing.T) {
	// No fake script installed: if Confirm were bypassed and the script
	// actually ran, this would fail with "executable file not found".
	// runClusterDown reads the confirmation from os.Stdin directly
	// (cmdutil.Confirm's contract), so the test substitutes it with a pipe.
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	origStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = origStdin }()

	go func() {
		w.WriteString("n\n")
		w.Close()
	}()

	cmd := &cobra.Command{Use: "down"}
	cmd.Flags().Bool("yes", false, "")
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runClusterDown(cmd); err != nil {
		t.Fatalf("runClusterDown: %v", err)
	}
	if got := out.String(); got != "this will tear down the cluster, proxy and registry [y/N]: aborted\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestRunClusterDownWithYesRunsScript(t *testing.T) {
	installFakeScript(t, clusterDownScript)

	cmd := &cobra.Command{Use: "down"}
	cmd.Flags().Bool("yes", false, "")
	if err := cmd.Flags().Set("yes", "true"); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runClusterDown(cmd); err != nil {
		t.Fatalf("runClusterDown: %v", err)
	}
	if got := out.String(); got != "cluster is down\n" {
		t.Fatalf("output = %q", got)
	}
}
