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
	"context"
	"fmt"
	"os/exec"
)

// sshNodePuller is the concrete pkg/cluster.NodePuller: it runs `docker
// pull` on the target node over SSH. Preload's fan-out (pkg/cluster's
// preload.go) runs one pull per node concurrently, without a limit, and
// returns the first failure, so this stays a thin exec wrapper.
type sshNodePuller struct {
	// SSHUser, if set, is passed as user@node; empty uses the node name
	// alone and relies on the local SSH config for the user.
	SSHUser string
}

func (p *sshNodePuller) Pull(ctx context.Context, node, image string) error {
	target := node
	if p.SSHUser != "" {
		target = p.SSHUser + "@" + node
	}
	cmd := exec.CommandContext(ctx, "ssh", target, "docker", "pull", image)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ssh %s docker pull %s: %w: %s", target, image, err, out)
	}
	return nil
}
