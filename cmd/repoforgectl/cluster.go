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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repoforge/repoforge/pkg/cmdutil"
)

// clusterUpScript and clusterDownScript are the operator-supplied
// external scripts cluster up/down shell out to; bring-up/tear-down of
// the orchestrator itself stays outside this binary.
const (
	clusterUpScript   = "repoforge-cluster-up.sh"
	clusterDownScript = "repoforge-cluster-down.sh"
)

// runClusterUp brings up the backing cluster, proxy and private registry
// by running the operator's bring-up script interactively.
func runClusterUp(cmd *cobra.Command) error {
	c := cmdutil.NewStdCmd(clusterUpScript)
	if err := c.Run(); err != nil {
		return fmt.Errorf("cluster up: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cluster is up")
	return nil
}

// runClusterDown tears the cluster down after an explicit confirmation,
// unless --yes was passed.
func runClusterDown(cmd *cobra.Command) error {
	skip, _ := cmd.Flags().GetBool("yes")
	if !skip {
		ok, err := cmdutil.Confirm(os.Stdin, cmd.OutOrStdout(), "this will tear down the cluster, proxy and registry")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		}
	}
	c := cmdutil.NewStdCmd(clusterDownScript)
	if err := c.Run(); err != nil {
		return fmt.Errorf("cluster down: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cluster is down")
	return nil
}
