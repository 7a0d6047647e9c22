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

// Command repoforgectl is the operator's terminal client for
// repoforged's HTTP/WebSocket API. Flag defaults persist to a prefs
// file so a host set once sticks across invocations.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/repoforge/repoforge/pkg/cli"
)

const defaultHost = "http://localhost:8080"

var loadedPrefs prefs

type prefs struct {
	changed bool   `json:"-"`
	Host    string `json:"host"`
}

// flagPref binds a persisted preference to a pflag so "--host" both
// overrides and, once saved, remembers the operator's usual repoforged.
type flagPref[T comparable] struct {
	t       *T
	changed *bool
	typ     string
}

func (fp flagPref[T]) Set(v T) error {
	if *fp.t == v {
		return nil
	}
	*fp.t = v
	*fp.changed = true
	return nil
}

func (fp flagPref[T]) Type() string {
	if fp.typ != "" {
		return fp.typ
	}
	return "string"
}

func (fp flagPref[T]) String() string { return fmt.Sprint(*fp.t) }

func (p *prefs) HostValue() pflag.Value {
	return flagPref[string]{t: &p.Host, changed: &p.changed}
}

func prefsFile() string {
	return filepath.Join(os.Getenv("HOME"), ".repoforge", "ctl-prefs.json")
}

func (p *prefs) save() error {
	if err := os.MkdirAll(filepath.Dir(prefsFile()), 0755); err != nil {
		return err
	}
	j, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(prefsFile(), j, 0600)
}

func (p *prefs) load() error {
	j, err := os.ReadFile(prefsFile())
	if err != nil {
		return err
	}
	return json.Unmarshal(j, p)
}

func init() {
	if err := loadedPrefs.load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("failed to load preferences: %v", err)
		}
	}
	if host := os.Getenv("REPOFORGE_HOST"); host != "" {
		loadedPrefs.Host = host
	}
	if loadedPrefs.Host == "" {
		loadedPrefs.Host = defaultHost
	}
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	handler := cli.NewCommandHandler(stdRW{}, run)
	root := handler.RootCmd("repoforgectl")
	root.PersistentFlags().VarP(loadedPrefs.HostValue(), "host", "H", "repoforged base URL")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if loadedPrefs.changed {
			if err := loadedPrefs.save(); err != nil {
				log.Printf("failed to save preferences: %v", err)
			}
		}
		return nil
	}
	return root
}

// stdRW wires cobra's input/output to the process's own stdin/stdout.
type stdRW struct{}

func (stdRW) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdRW) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
