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
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/repoforge/repoforge/pkg/builder"
)

// gitFetcher is the concrete pkg/builder.RepoFetcher: a shallow clone
// via the git CLI rather than a Go git library.
type gitFetcher struct{}

func (gitFetcher) Fetch(ctx context.Context, repoURL, destDir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repoURL, destDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if isNotFoundErr(stderr.String()) {
			return builder.ErrRepoNotFound
		}
		return fmt.Errorf("git clone %s: %w: %s", repoURL, err, stderr.String())
	}
	return nil
}

func isNotFoundErr(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") || strings.Contains(lower, "404")
}
