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

// Package cluster is the cluster controller: it deploys a rendered
// manifest set onto the orchestrator, registers the resulting pod with
// the front-end proxy, reaps idle deployments, and answers
// capacity/running-apps queries.
package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Orchestrator is the narrow capability interface the Controller
// needs from the cluster orchestrator: an opaque resource API that
// creates namespaces and manifests and reports pod IP/readiness.
type Orchestrator interface {
	// CreateManifest applies the manifest file at path. namespace is
	// empty for cluster-scoped resources (e.g. namespace.json itself).
	CreateManifest(ctx context.Context, path, namespace string) error
	// PodIP returns the notebook pod's IP within namespace, or ok=false
	// if it has not been assigned one yet.
	PodIP(ctx context.Context, namespace string) (ip string, ok bool, err error)
	// DeleteNamespace tears down every resource in namespace.
	DeleteNamespace(ctx context.Context, namespace string) error
	// Namespaces lists every namespace currently on the cluster.
	Namespaces(ctx context.Context) ([]string, error)
	// NotebookImage returns the image reference running in namespace's
	// notebook pod.
	NotebookImage(ctx context.Context, namespace string) (string, error)
	// NodeCapacities returns each non-control-plane node's pod capacity,
	// keyed by node name.
	NodeCapacities(ctx context.Context) (map[string]int, error)
	// Nodes lists every worker node name (control-plane excluded).
	Nodes(ctx context.Context) ([]string, error)
}

// ProxyClient is the narrow capability interface the Controller needs
// from the front-end proxy client.
type ProxyClient interface {
	Register(deploymentID, targetURL string) error
	Remove(deploymentID string) error
	InactiveRoutes(thresholdISO string) ([]string, error)
}

// NodePuller pulls image onto a single node's local image store.
type NodePuller interface {
	Pull(ctx context.Context, node, image string) error
}

// Logger is the same narrow logging capability pkg/builder depends on.
type Logger interface {
	Info(tag, msg, app string)
	Warn(tag, msg, app string)
	Error(tag, msg, app string)
}

// Config holds the Controller's static, operator-supplied settings.
type Config struct {
	ClusterHost               string   // user-facing host the deployment URL is built against
	RegistryName              string
	NotebookPort              int      // default 8888
	RegisterRetries           int      // default 30
	RegisterRetryPause        time.Duration // default 1s
	SystemNamespaces          []string // never touched by GC or deploy-looking operations
	CapacityPollPeriod        time.Duration // default 1h
}

// DefaultConfig returns every option at its default.
func DefaultConfig() Config {
	return Config{
		NotebookPort:       8888,
		RegisterRetries:    30,
		RegisterRetryPause: time.Second,
		SystemNamespaces:   []string{"default", "kube-system"},
		CapacityPollPeriod: time.Hour,
	}
}

// Controller is the Cluster Controller.
type Controller struct {
	cfg    Config
	orch   Orchestrator
	proxy  ProxyClient
	puller NodePuller
	logger Logger

	capacity capacityCache
}

// New builds a Controller. puller may be nil if Preload is never called.
func New(cfg Config, orch Orchestrator, proxy ProxyClient, puller NodePuller, logger Logger) *Controller {
	return &Controller{cfg: cfg, orch: orch, proxy: proxy, puller: puller, logger: logger}
}

func (c *Controller) isSystemNamespace(ns string) bool {
	for _, sys := range c.cfg.SystemNamespaces {
		if sys == ns {
			return true
		}
	}
	return false
}

// Deploy applies deployDir's rendered manifests under namespace
// deploymentID, registers a proxy route, and returns the user-facing
// URL. The namespace manifest goes first; its failure aborts the whole
// deploy.
func (c *Controller) Deploy(ctx context.Context, deploymentID, deployDir string) (string, error) {
	namespacePath := filepath.Join(deployDir, "namespace.json")
	if _, err := os.Stat(namespacePath); err != nil {
		return "", fmt.Errorf("cluster: deploy %s: missing namespace.json: %w", deploymentID, err)
	}
	if err := c.orch.CreateManifest(ctx, namespacePath, ""); err != nil {
		return "", fmt.Errorf("cluster: deploy %s: create namespace: %w", deploymentID, err)
	}

	entries, err := os.ReadDir(deployDir)
	if err != nil {
		return "", fmt.Errorf("cluster: deploy %s: read deploy dir: %w", deploymentID, err)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == "namespace.json" {
			continue
		}
		path := filepath.Join(deployDir, e.Name())
		if err := c.orch.CreateManifest(ctx, path, deploymentID); err != nil {
			// Applies are independent; a single manifest's failure is
			// logged but does not abort the deploy.
			if c.logger != nil {
				c.logger.Error("cluster", fmt.Sprintf("could not apply %s: %v", path, err), deploymentID)
			}
		}
	}

	if err := c.registerRoute(ctx, deploymentID); err != nil {
		return "", err
	}

	return fmt.Sprintf("https://%s/%s", c.cfg.ClusterHost, deploymentID), nil
}

// registerRoute polls for the notebook pod's IP and registers a proxy
// route against it, retrying up to cfg.RegisterRetries times.
func (c *Controller) registerRoute(ctx context.Context, deploymentID string) error {
	var lastErr error
	for i := 0; i < c.cfg.RegisterRetries; i++ {
		ip, ok, err := c.orch.PodIP(ctx, deploymentID)
		if err == nil && ok {
			target := fmt.Sprintf("http://%s:%d", ip, c.cfg.NotebookPort)
			if err := c.proxy.Register(deploymentID, target); err == nil {
				return nil
			} else {
				lastErr = err
			}
		} else if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RegisterRetryPause):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("pod never reported an IP address")
	}
	return fmt.Errorf("cluster: register route for %s: %w", deploymentID, lastErr)
}

// StopApp removes deploymentID's proxy route, then tears down its
// namespace. Route-before-resources stops new traffic before
// teardown.
func (c *Controller) StopApp(ctx context.Context, deploymentID string) error {
	if c.isSystemNamespace(deploymentID) {
		return fmt.Errorf("cluster: refusing to stop system namespace %q", deploymentID)
	}
	if err := c.proxy.Remove(deploymentID); err != nil && c.logger != nil {
		c.logger.Warn("cluster", fmt.Sprintf("could not remove proxy route for %s: %v", deploymentID, err), deploymentID)
	}
	if err := c.orch.DeleteNamespace(ctx, deploymentID); err != nil {
		return fmt.Errorf("cluster: stop %s: %w", deploymentID, err)
	}
	return nil
}

// ReapIdle queries the proxy for routes inactive since thresholdISO
// and stops each corresponding app, skipping system namespaces.
func (c *Controller) ReapIdle(ctx context.Context, thresholdISO string) error {
	routes, err := c.proxy.InactiveRoutes(thresholdISO)
	if err != nil {
		return fmt.Errorf("cluster: reap idle: %w", err)
	}
	for _, deploymentID := range routes {
		if c.isSystemNamespace(deploymentID) {
			continue
		}
		if err := c.StopApp(ctx, deploymentID); err != nil && c.logger != nil {
			c.logger.Error("cluster", fmt.Sprintf("could not reap idle app %s: %v", deploymentID, err), "")
		}
	}
	return nil
}

// RunningApp is one running deployment's identity.
type RunningApp struct {
	DeploymentID string
	Image        string
}

// RunningApps enumerates non-system namespaces and their notebook
// image.
func (c *Controller) RunningApps(ctx context.Context) ([]RunningApp, error) {
	namespaces, err := c.orch.Namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: running apps: %w", err)
	}

	var out []RunningApp
	for _, ns := range namespaces {
		if c.isSystemNamespace(ns) {
			continue
		}
		image, err := c.orch.NotebookImage(ctx, ns)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("cluster", fmt.Sprintf("could not get notebook image for %s: %v", ns, err), ns)
			}
			continue
		}
		out = append(out, RunningApp{DeploymentID: ns, Image: image})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeploymentID < out[j].DeploymentID })
	return out, nil
}
