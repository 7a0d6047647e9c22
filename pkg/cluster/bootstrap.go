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
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/repoforge/repoforge/pkg/tmpl"
)

// ExternalCluster starts and stops the underlying cluster itself (e.g.
// a `kube-up.sh`/`kube-down.sh`-style external script).
type ExternalCluster interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// URLProbe resolves a cluster-exposed service's externally reachable
// URL with a single query; it returns "" until the URL is assigned.
// Bootstrap.Up retries it (URLPollAttempts times, URLPollPause apart).
type URLProbe interface {
	ProxyURL(ctx context.Context) (string, error)
	RegistryURL(ctx context.Context) (string, error)
}

// Bootstrap holds everything cluster bring-up needs beyond the
// Controller itself: a manifest directory for the proxy's own
// deployment and one for the registry's.
type Bootstrap struct {
	Cluster         ExternalCluster
	Probe           URLProbe
	Orchestrator    Orchestrator
	ProxyDeployDir  string // shipped proxy deployment template directory
	RegistryDir     string // shipped registry manifest directory
	URLPollAttempts int           // default 5
	URLPollPause    time.Duration // default 20s
}

// DefaultBootstrap fills in the bring-up retry loop defaults.
func DefaultBootstrap() Bootstrap {
	return Bootstrap{URLPollAttempts: 5, URLPollPause: 20 * time.Second}
}

// generateToken produces an opaque bearer token for the proxy's auth
// from crypto/rand, never from anything an outsider could reproduce.
func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}

// Up runs the one-shot cluster bring-up sequence: start the external
// cluster, launch the proxy and persist its {url, token}, then launch the
// private registry and persist its URL. It does not preload the base
// image onto the nodes. Starting the log daemon and installing the idle-reaper belong to the
// supervisor and are not duplicated here.
func (b *Bootstrap) Up(ctx context.Context, proxyInfoPath, registryInfoPath string) error {
	if err := b.Cluster.Start(ctx); err != nil {
		return fmt.Errorf("cluster: bring-up: start cluster: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("cluster: bring-up: generate proxy token: %w", err)
	}
	if err := b.launchProxy(ctx, token); err != nil {
		return fmt.Errorf("cluster: bring-up: launch proxy: %w", err)
	}
	proxyURL, err := b.pollURL(ctx, b.Probe.ProxyURL)
	if err != nil {
		return fmt.Errorf("cluster: bring-up: %w", err)
	}
	if err := writeTwoLineInfo(proxyInfoPath, proxyURL, token); err != nil {
		return fmt.Errorf("cluster: bring-up: persist proxy info: %w", err)
	}

	if err := b.launchRegistry(ctx); err != nil {
		return fmt.Errorf("cluster: bring-up: launch registry: %w", err)
	}
	registryURL, err := b.pollURL(ctx, b.Probe.RegistryURL)
	if err != nil {
		return fmt.Errorf("cluster: bring-up: %w", err)
	}
	if err := os.WriteFile(registryInfoPath, []byte(registryURL+"\n"), 0600); err != nil {
		return fmt.Errorf("cluster: bring-up: persist registry info: %w", err)
	}

	return nil
}

func (b *Bootstrap) pollURL(ctx context.Context, probe func(context.Context) (string, error)) (string, error) {
	for i := 0; i < b.URLPollAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.URLPollPause):
		}
		url, err := probe(ctx)
		if err == nil && url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("could not obtain URL after %d attempts", b.URLPollAttempts)
}

// launchProxy renders every template in ProxyDeployDir with the proxy's
// auth token and applies each resulting manifest, mirroring
// _launch_proxy_server's clean-then-render-then-create loop.
func (b *Bootstrap) launchProxy(ctx context.Context, token string) error {
	return b.launchTemplateDir(ctx, b.ProxyDeployDir, tmpl.Params{"token": token})
}

// launchRegistry applies every manifest in RegistryDir verbatim (no
// templating, mirroring _launch_registry_server).
func (b *Bootstrap) launchRegistry(ctx context.Context) error {
	entries, err := os.ReadDir(b.RegistryDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := b.Orchestrator.CreateManifest(ctx, filepath.Join(b.RegistryDir, e.Name()), ""); err != nil {
			return fmt.Errorf("create %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (b *Bootstrap) launchTemplateDir(ctx context.Context, dir string, params tmpl.Params) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	renderedDir, err := os.MkdirTemp("", "cluster-deploy-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(renderedDir)

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		dst := filepath.Join(renderedDir, e.Name())
		if err := os.WriteFile(dst, []byte(tmpl.RenderString(string(raw), params)), 0644); err != nil {
			return err
		}
		names = append(names, e.Name())
	}

	for _, name := range names {
		if err := b.Orchestrator.CreateManifest(ctx, filepath.Join(renderedDir, name), ""); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil
}

func writeTwoLineInfo(path, url, token string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%s\n%s\n", url, token)), 0600)
}
