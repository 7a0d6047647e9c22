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
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/repoforge/repoforge/pkg/cli"
)

// run is the single dispatcher every repoforgectl leaf command shares:
// switch on cmd.CalledAs() for the commands that run locally, otherwise
// fall through to one HTTP request against repoforged.
func run(cmd *cobra.Command, args []string) error {
	client := newAPIClient(loadedPrefs.Host)

	switch cmd.CalledAs() {
	case "up":
		return runClusterUp(cmd)
	case "down":
		return runClusterDown(cmd)
	case "version":
		return runVersion(cmd)
	case "build":
		return runBuild(cmd, client, args[0])
	case "status":
		return runStatus(cmd, client, args[0])
	case "deploy":
		return runDeploy(cmd, client, args[0])
	case "logs":
		return runLogs(cmd, client, args[0])
	case "apps":
		return runApps(cmd, client)
	case "services":
		return runServices(cmd, client)
	case "running":
		return runRunning(cmd, client)
	case "capacity":
		return runCapacity(cmd, client)
	}
	return fmt.Errorf("repoforgectl: unrecognized command %q", cmd.CalledAs())
}

func splitOrgRepo(spec string) (string, string, error) {
	org, repo, ok := strings.Cut(spec, "/")
	if !ok || org == "" || repo == "" {
		return "", "", fmt.Errorf("expected <org>/<repo>, got %q", spec)
	}
	return org, repo, nil
}

func runVersion(cmd *cobra.Command) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"client": cli.VersionCommit()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "repoforgectl %s\n", cli.VersionCommit())
	return nil
}

func runBuild(cmd *cobra.Command, c *apiClient, spec string) error {
	org, repo, err := splitOrgRepo(spec)
	if err != nil {
		return err
	}
	services, _ := cmd.Flags().GetStringSlice("service")
	deps, _ := cmd.Flags().GetStringSlice("dependency")
	dockerfilePath, _ := cmd.Flags().GetString("dockerfile-path")
	notebooksPath, _ := cmd.Flags().GetString("notebooks-path")
	requirementsPath, _ := cmd.Flags().GetString("requirements-path")

	body := map[string]any{
		"services":          services,
		"dependencies":      deps,
		"dockerfile_path":    dockerfilePath,
		"notebooks_path":     notebooksPath,
		"requirements_path":  requirementsPath,
	}
	resp, err := c.post(cmd.Context(), fmt.Sprintf("/apps/%s/%s", org, repo), body)
	if err != nil {
		return err
	}
	if errMsg, ok := resp["error"].(string); ok && errMsg != "" {
		color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), errMsg)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp["success"])
	return nil
}

func runStatus(cmd *cobra.Command, c *apiClient, spec string) error {
	org, repo, err := splitOrgRepo(spec)
	if err != nil {
		return err
	}
	resp, err := c.get(cmd.Context(), fmt.Sprintf("/apps/%s/%s/status", org, repo), nil)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	status, _ := resp["build_status"].(string)
	colored := status
	switch status {
	case "completed":
		colored = color.GreenString(status)
	case "failed":
		colored = color.RedString(status)
	case "building":
		colored = color.YellowString(status)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", spec, colored)
	return nil
}

func runDeploy(cmd *cobra.Command, c *apiClient, spec string) error {
	org, repo, err := splitOrgRepo(spec)
	if err != nil {
		return err
	}
	resp, err := c.get(cmd.Context(), fmt.Sprintf("/apps/%s/%s", org, repo), nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp["redirect_url"])
	return nil
}

func runLogs(cmd *cobra.Command, c *apiClient, spec string) error {
	org, repo, err := splitOrgRepo(spec)
	if err != nil {
		return err
	}
	since, _ := cmd.Flags().GetString("since")
	filtered, _ := cmd.Flags().GetBool("filtered")
	follow, _ := cmd.Flags().GetBool("follow")

	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}

	if !follow {
		text, err := c.getText(cmd.Context(), fmt.Sprintf("/apps/%s/%s/logs/static", org, repo), q)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}

	if !filtered {
		q.Set("filtered", "false")
	}
	return c.followLogs(cmd.Context(), fmt.Sprintf("/apps/%s/%s/logs/live", org, repo), q, func(line string) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	})
}

// appRecordView mirrors apprecord.AppRecord's wire shape, kept local so
// the client doesn't pull in the server-side package for a handful of
// display fields.
type appRecordView struct {
	Name         string `json:"name"`
	BuildState   string `json:"build_state"`
	DeploymentID string `json:"deployment_id,omitempty"`
}

// serviceRecordView mirrors the fields of svcregistry.Record that matter
// for a listing: its Spec's Name/Version, via FullName on the server.
type serviceRecordView struct {
	Spec struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"Spec"`
}

type runningAppView struct {
	DeploymentID string `json:"DeploymentID"`
	Image        string `json:"Image"`
}

func runApps(cmd *cobra.Command, c *apiClient) error {
	var recs []appRecordView
	if err := c.getInto(cmd.Context(), "/apps", nil, &recs); err != nil {
		return err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBUILD STATE\tDEPLOYMENT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.BuildState, r.DeploymentID)
	}
	return tw.Flush()
}

func runServices(cmd *cobra.Command, c *apiClient) error {
	var recs []serviceRecordView
	if err := c.getInto(cmd.Context(), "/services", nil, &recs); err != nil {
		return err
	}
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Spec.Name+"-"+r.Spec.Version)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}

func runRunning(cmd *cobra.Command, c *apiClient) error {
	var apps []runningAppView
	if err := c.getInto(cmd.Context(), "/running", nil, &apps); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "DEPLOYMENT\tIMAGE")
	for _, a := range apps {
		fmt.Fprintf(tw, "%s\t%s\n", a.DeploymentID, a.Image)
	}
	return tw.Flush()
}

func runCapacity(cmd *cobra.Command, c *apiClient) error {
	resp, err := c.get(cmd.Context(), "/capacity", nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "capacity: %v  running: %v\n", resp["capacity"], resp["running"])
	return nil
}
