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

// Package cli builds the repoforgectl command tree. A single generic
// RunE dispatches every leaf command by name: version and cluster
// up/down run locally, every other subcommand issues one HTTP call
// against a running repoforged; cmd/repoforgectl wires the concrete
// dispatcher.
package cli

import (
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// CommandHandler builds the repoforgectl command tree. client carries
// the process's stdin/stdout so cobra's own I/O (help text, prompts)
// goes where the operator expects, independent of how RunE talks to the
// daemon.
type CommandHandler struct {
	client io.ReadWriter
	runE   RunE
}

// RunE is the generic dispatcher every leaf command shares; the caller
// (cmd/repoforgectl) switches on cmd.CalledAs() to pick the local action
// or the HTTP call.
type RunE func(cmd *cobra.Command, args []string) error

// NewCommandHandler returns a handler that wires runE onto every command
// RootCmd builds.
func NewCommandHandler(client io.ReadWriter, runE RunE) *CommandHandler {
	return &CommandHandler{client, runE}
}

// RootCmd builds the full repoforgectl command tree.
func (h *CommandHandler) RootCmd(name string) *cobra.Command {
	cmd := &cobra.Command{
		Use: name,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetIn(h.client)
	cmd.SetOutput(h.client)

	cmd.AddCommand(
		h.buildCmd(),
		h.statusCmd(),
		h.deployCmd(),
		h.logsCmd(),
		h.appsCmd(),
		h.servicesCmd(),
		h.runningCmd(),
		h.capacityCmd(),
		h.clusterCmd(),
		h.versionCmd(),
	)

	return cmd
}

// VersionCommit returns the commit hash of the current build.
func VersionCommit() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var dirty bool
	var commit string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if commit == "" {
		return "dev"
	}
	if len(commit) >= 9 {
		commit = commit[:9]
	}
	if dirty {
		commit += "+dirty"
	}
	return commit
}

func (h *CommandHandler) versionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "version",
		Short: "Show the repoforgectl client version (the server is not queried)",
		RunE:  h.runE,
	}
	c.Flags().Bool("json", false, "Output as JSON")
	return c
}

// buildCmd implements POST /apps/{org}/{repo}.
func (h *CommandHandler) buildCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "build <org>/<repo>",
		Short: "Submit a repository to the build queue",
		Args:  cobra.ExactArgs(1),
		RunE:  h.runE,
	}
	c.Flags().StringSlice("service", nil, "Service full name (name-version) to deploy alongside the app")
	c.Flags().StringSlice("dependency", nil, `Recognized dependency token ("requirements.txt", "environment.yml", "dockerfile")`)
	c.Flags().String("dockerfile-path", "", "Path to the repository's Dockerfile, if dependency=dockerfile")
	c.Flags().String("notebooks-path", "", "Path within the repository to mount as $HOME/notebooks")
	c.Flags().String("requirements-path", "", "Path to requirements.txt within the repository")
	return c
}

// statusCmd implements GET /apps/{org}/{repo}/status.
func (h *CommandHandler) statusCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "status <org>/<repo>",
		Short: "Show an app's build status",
		Args:  cobra.ExactArgs(1),
		RunE:  h.runE,
	}
	c.Flags().String("format", "text", "Output format (text, json)")
	return c
}

// deployCmd implements GET /apps/{org}/{repo} (triggers a deploy and
// prints the resulting redirect URL).
func (h *CommandHandler) deployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <org>/<repo>",
		Short: "Deploy a completed build and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE:  h.runE,
	}
}

// appsCmd implements GET /apps.
func (h *CommandHandler) appsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "Enumerate app records",
		RunE:  h.runE,
	}
}

// clusterCmd groups the operator-local cluster lifecycle commands:
// these have no HTTP counterpart; the shared RunE (cmd/repoforgectl's
// run) dispatches "up" and "down" to local handlers instead of an HTTP
// call.
func (h *CommandHandler) clusterCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "cluster",
		Short: "Bring the backing cluster up or down",
	}
	c.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Bring up the cluster, proxy and private registry",
		RunE:  h.runE,
	})
	down := &cobra.Command{
		Use:   "down",
		Short: "Tear down the cluster, proxy and private registry",
		RunE:  h.runE,
	}
	down.Flags().Bool("yes", false, "Skip the confirmation prompt")
	c.AddCommand(down)
	return c
}

// logsCmd implements GET /apps/{org}/{repo}/logs/static and the
// live WebSocket variant when --follow is set.
func (h *CommandHandler) logsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "logs <org>/<repo>",
		Short: "Show (or follow) an app's build/run logs",
		Args:  cobra.ExactArgs(1),
		RunE:  h.runE,
	}
	c.Flags().BoolP("follow", "f", false, "Stream logs live instead of printing history and exiting")
	c.Flags().String("since", "", "Only show log lines after this RFC3339 timestamp")
	c.Flags().Bool("filtered", true, "With --follow, show the filtered (publish-eligible) log rather than the raw log; without --follow the filtered log is always shown")
	return c
}

// servicesCmd implements GET /services.
func (h *CommandHandler) servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List registered services",
		RunE:  h.runE,
	}
}

// runningCmd implements GET /running.
func (h *CommandHandler) runningCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "List running deployments",
		RunE:  h.runE,
	}
}

// capacityCmd implements GET /capacity.
func (h *CommandHandler) capacityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capacity",
		Short: "Show cluster pod capacity and running count",
		RunE:  h.runE,
	}
}
