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

package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/repoforge/repoforge/pkg/apprecord"
)

const dockerfileName = "Dockerfile"

// assembleDockerfile either adapts the repository's own build file or
// synthesizes one from scratch, depending on spec.Dependencies.
func (p *Pool) assembleDockerfile(spec apprecord.AppSpec, repoDir, buildDir string) error {
	if spec.HasDependency(apprecord.DepDockerfile) {
		return p.adaptRepoDockerfile(spec, repoDir, buildDir)
	}
	return p.synthesizeDockerfile(spec, repoDir, buildDir)
}

// adaptRepoDockerfile reads the repository's own Dockerfile, strips any
// existing FROM directive, and pins the result onto the configured base
// image, followed by the user-switch, notebooks-mount and suffix
// directives.
func (p *Pool) adaptRepoDockerfile(spec apprecord.AppSpec, repoDir, buildDir string) error {
	srcPath := spec.DockerfilePath
	if srcPath == "" {
		srcPath = dockerfileName
	}
	raw, err := os.ReadFile(filepath.Join(repoDir, srcPath))
	if err != nil {
		return fmt.Errorf("read repository %s: %w", srcPath, err)
	}

	lines := strings.Split(string(raw), "\n")
	var body []string
	strippedFrom := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strippedFrom && strings.HasPrefix(strings.ToUpper(trimmed), "FROM ") {
			strippedFrom = true
			if !strings.Contains(trimmed, p.cfg.BaseImage) {
				p.logger.Warn("build", fmt.Sprintf("repository Dockerfile FROM directive %q does not reference the configured base image %q", trimmed, p.cfg.BaseImage), spec.Name)
			}
			continue
		}
		body = append(body, line)
	}

	// The repository is flattened into the build context for this
	// variant, so "." is the repo root.
	notebooksSrc := spec.NotebooksPath
	if notebooksSrc == "" {
		notebooksSrc = "."
	}

	var out strings.Builder
	fmt.Fprintf(&out, "FROM %s\n", p.cfg.BaseImage)
	out.WriteString(strings.Join(body, "\n"))
	out.WriteString("\n")
	fmt.Fprintf(&out, "USER %s\n", p.cfg.DockerUser)
	fmt.Fprintf(&out, "ADD %s $HOME/notebooks\n", notebooksSrc)
	if p.cfg.SuffixSnippet != "" {
		out.WriteString(p.cfg.SuffixSnippet)
		out.WriteString("\n")
	}

	return os.WriteFile(filepath.Join(buildDir, dockerfileName), []byte(out.String()), 0644)
}

// synthesizeDockerfile builds the entire build file from scratch, in
// dependency order: requirements.txt, then environment.yml, then each
// service's client snippet, then the notebooks-mount directive and
// suffix snippet.
func (p *Pool) synthesizeDockerfile(spec apprecord.AppSpec, repoDir, buildDir string) error {
	var out strings.Builder
	fmt.Fprintf(&out, "FROM %s\n", p.cfg.BaseImage)

	if spec.HasDependency(apprecord.DepRequirementsTxt) {
		reqPath := spec.RequirementsPath
		if reqPath == "" {
			reqPath = "requirements.txt"
		}
		fmt.Fprintf(&out, "ADD repo/%s requirements.txt\n", reqPath)
		out.WriteString("COPY handle-requirements.py /tmp/handle-requirements.py\n")
		out.WriteString("RUN python /tmp/handle-requirements.py requirements.txt\n")
		// handle-requirements.py tolerates either installer failing
		// individually and only exits non-zero if neither produced an
		// importable environment, which fails this RUN step in turn.
	}

	if spec.HasDependency(apprecord.DepEnvironmentYML) {
		out.WriteString("ADD repo/environment.yml environment.yml\n")
		out.WriteString("RUN conda env create -f environment.yml\n")
		out.WriteString("RUN conda run -n $(head -1 environment.yml | cut -d' ' -f2) python -m ipykernel install --user\n")
	}

	for _, snippet := range p.cfg.ClientSnippets {
		out.WriteString(snippet)
		out.WriteString("\n")
	}

	fmt.Fprintf(&out, "USER %s\n", p.cfg.DockerUser)
	// The repository sits under repo/ in a synthesized context, so the
	// notebooks default is the repo itself.
	notebooksSrc := spec.NotebooksPath
	if notebooksSrc == "" {
		notebooksSrc = "repo"
	}
	fmt.Fprintf(&out, "ADD %s $HOME/notebooks\n", notebooksSrc)

	if p.cfg.SuffixSnippet != "" {
		out.WriteString(p.cfg.SuffixSnippet)
		out.WriteString("\n")
	}

	return os.WriteFile(filepath.Join(buildDir, dockerfileName), []byte(out.String()), 0644)
}
