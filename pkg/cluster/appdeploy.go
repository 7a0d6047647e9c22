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

package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/repoforge/repoforge/pkg/env"
	"github.com/repoforge/repoforge/pkg/svcregistry"
	"github.com/repoforge/repoforge/pkg/tmpl"
)

// deployEnv is the small set of identifying facts written to each
// deployment's .env file, for service containers that read their
// surrounding app's identity from the environment rather than a mounted
// manifest.
type deployEnv struct {
	AppName      string `env:"APP_NAME"`
	DeploymentID string `env:"APP_DEPLOYMENT_ID"`
	RepoURL      string `env:"APP_REPO_URL"`
}

// ServiceGetter is the narrow slice of the service registry an app
// deploy needs.
type ServiceGetter interface {
	Get(name, version string) (*svcregistry.Record, error)
}

// ServiceRef names one service an app deploys alongside its notebook pod.
type ServiceRef struct {
	Name    string
	Version string // "" selects the highest available version
}

// AppDeployer assembles an app's per-deploy manifest directory and
// hands it to the Controller.
type AppDeployer struct {
	Services      ServiceGetter
	Controller    *Controller
	DeployRoot    string            // {HOME_DIR}/apps/{name}/deploy lives under here
	NamespaceTmpl string            // shipped namespace.json template text
	NotebookTmpl  string            // shipped notebook pod/service template text
	TypeTemplates map[string]string // shared manifest-type templates (pod.json, service.json, ...)
	DockerUser    string
}

// Deploy renders appName's namespace, notebook pod, and every service
// in services under deploymentID's manifest directory, then applies it
// via the Controller, which polls for the pod IP and registers the
// proxy route.
func (d *AppDeployer) Deploy(ctx context.Context, appName, deploymentID string, appParams tmpl.Params, services []ServiceRef, mode string) (string, error) {
	deployDir := filepath.Join(d.DeployRoot, appName, "deploy")
	if err := os.RemoveAll(deployDir); err != nil {
		return "", fmt.Errorf("cluster: appdeploy %s: clean deploy dir: %w", appName, err)
	}
	if err := os.MkdirAll(deployDir, 0755); err != nil {
		return "", fmt.Errorf("cluster: appdeploy %s: create deploy dir: %w", appName, err)
	}

	nsParams := tmpl.Merge(appParams, tmpl.Params{"name": deploymentID})
	namespaceJSON := tmpl.RenderString(d.NamespaceTmpl, nsParams)
	if err := os.WriteFile(filepath.Join(deployDir, "namespace.json"), []byte(namespaceJSON), 0644); err != nil {
		return "", fmt.Errorf("cluster: appdeploy %s: write namespace.json: %w", appName, err)
	}

	if d.NotebookTmpl != "" {
		notebookJSON := tmpl.RenderString(d.NotebookTmpl, nsParams)
		if err := os.WriteFile(filepath.Join(deployDir, "notebook-pod.json"), []byte(notebookJSON), 0644); err != nil {
			return "", fmt.Errorf("cluster: appdeploy %s: write notebook-pod.json: %w", appName, err)
		}
	}

	if err := env.Write(filepath.Join(deployDir, ".env"), deployEnv{
		AppName:      appName,
		DeploymentID: deploymentID,
		RepoURL:      appParams["app.repo-url"],
	}); err != nil {
		return "", fmt.Errorf("cluster: appdeploy %s: write .env: %w", appName, err)
	}

	for _, ref := range services {
		rec, err := d.Services.Get(ref.Name, ref.Version)
		if err != nil {
			return "", fmt.Errorf("cluster: appdeploy %s: service %s: %w", appName, ref.Name, err)
		}
		manifests, err := svcregistry.RenderDeployment(rec, mode, appParams, d.TypeTemplates, d.DockerUser)
		if err != nil {
			return "", fmt.Errorf("cluster: appdeploy %s: render %s: %w", appName, rec.FullName(), err)
		}
		for _, m := range manifests {
			if err := os.WriteFile(filepath.Join(deployDir, m.Filename), []byte(m.Content), 0644); err != nil {
				return "", fmt.Errorf("cluster: appdeploy %s: write %s: %w", appName, m.Filename, err)
			}
		}
	}

	return d.Controller.Deploy(ctx, deploymentID, deployDir)
}
