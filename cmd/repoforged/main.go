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

// Command repoforged is the daemon process: it wires the application
// registry, service registry, log daemon, log client, builder worker
// pool, cluster controller, proxy client and the HTTP/WebSocket API
// into one process and runs them under the supervisor. A
// one-shot "bootstrap" subcommand instead runs cluster bring-up
// (pkg/cluster.Bootstrap) and exits.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/repoforge/repoforge/pkg/api"
	"github.com/repoforge/repoforge/pkg/apprecord"
	"github.com/repoforge/repoforge/pkg/builder"
	"github.com/repoforge/repoforge/pkg/cluster"
	"github.com/repoforge/repoforge/pkg/config"
	"github.com/repoforge/repoforge/pkg/imageregistry"
	"github.com/repoforge/repoforge/pkg/logclient"
	"github.com/repoforge/repoforge/pkg/logdaemon"
	"github.com/repoforge/repoforge/pkg/proxyclient"
	"github.com/repoforge/repoforge/pkg/supervisor"
	"github.com/repoforge/repoforge/pkg/svcregistry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("repoforged: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "bootstrap" {
		if err := runBootstrap(cfg); err != nil {
			log.Fatalf("repoforged: bootstrap: %v", err)
		}
		return
	}

	if err := serve(cfg); err != nil {
		log.Fatalf("repoforged: %v", err)
	}
}

func serve(cfg *config.Config) error {
	for _, dir := range []string{cfg.AppsDir(), cfg.ServicesDir(), cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	apps, err := apprecord.New(cfg.AppsDir(), "")
	if err != nil {
		return fmt.Errorf("apprecord: %w", err)
	}
	defer apps.Close()

	services := svcregistry.New(cfg.ServicesDir())

	logDaemon := logdaemon.New(cfg.LogsDir())
	logClient := logclient.New(logDaemon)
	defer logClient.Shutdown(context.Background())
	streamer := logclient.NewAppLogStreamer(logDaemon, logDaemon)

	orch := newKubectlOrchestrator()
	proxy := proxyclient.New(cfg.ProxyInfoPath())
	puller := &sshNodePuller{SSHUser: os.Getenv("NODE_SSH_USER")}

	clusterCfg := cluster.DefaultConfig()
	clusterCfg.ClusterHost = os.Getenv("CLUSTER_HOST")
	clusterCfg.RegistryName = cfg.RegistryName()
	if cfg.Options.CapacityPollPeriodSeconds > 0 {
		clusterCfg.CapacityPollPeriod = time.Duration(cfg.Options.CapacityPollPeriodSeconds) * time.Second
	}
	controller := cluster.New(clusterCfg, orch, proxy, puller, logClient)

	deployer := &cluster.AppDeployer{
		Services:      services,
		Controller:    controller,
		DeployRoot:    cfg.AppsDir(),
		NamespaceTmpl: readTemplateOrEmpty(filepath.Join(cfg.HomeDir, "templates", "namespace.json")),
		NotebookTmpl:  readTemplateOrEmpty(filepath.Join(cfg.HomeDir, "templates", "notebook.json")),
		TypeTemplates: readTypeTemplates(filepath.Join(cfg.HomeDir, "templates", "manifests")),
		DockerUser:    os.Getenv("DOCKER_USER"),
	}

	buildCfg := builder.Config{
		QueueCapacity:    cfg.Options.QueueCapacity,
		Workers:          cfg.Options.BuilderWorkers,
		RegistryName:     cfg.RegistryName(),
		ImageTemplateDir: filepath.Join(cfg.HomeDir, "image-template"),
		Preload:          cfg.Options.Preload,
		DockerUser:       os.Getenv("DOCKER_USER"),
	}
	tool := &dockerBuildTool{CacheDir: filepath.Join(cfg.HomeDir, "build-cache")}
	builderPool := builder.New(buildCfg, apps, gitFetcher{}, tool, controller, logClient)

	blobsRoot := filepath.Join(cfg.HomeDir, "registry-blobs")
	imgRegistry, err := imageregistry.New(blobsRoot, func(repo, reference string) {
		logClient.Info("registry", fmt.Sprintf("pushed %s:%s", repo, reference), "")
	})
	if err != nil {
		return fmt.Errorf("imageregistry: %w", err)
	}
	go serveImageRegistry(imgRegistry)

	apiCfg := api.Config{
		AllowOrigin: cfg.Options.AllowOrigin,
		ClusterHost: clusterCfg.ClusterHost,
	}
	apiServer := api.New(apiCfg, apps, builderPool, services, controller, deployer, streamer, streamer)

	sup := supervisor.New(supervisor.Config{
		Addr:              fmt.Sprintf(":%d", cfg.Options.APIPort),
		CronPeriod:        time.Duration(cfg.Options.CronPeriodMinutes) * time.Minute,
		InactiveThreshold: time.Duration(cfg.Options.InactiveThresholdMinutes) * time.Minute,
	}, apiServer.Router(), builderPool, controller, logClient)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return sup.Run(ctx)
}

func runBootstrap(cfg *config.Config) error {
	orch := newKubectlOrchestrator()
	bootstrap := cluster.DefaultBootstrap()
	bootstrap.Orchestrator = orch
	bootstrap.Cluster = scriptCluster{
		UpScript:   envOr("CLUSTER_UP_SCRIPT", "repoforge-cluster-up.sh"),
		DownScript: envOr("CLUSTER_DOWN_SCRIPT", "repoforge-cluster-down.sh"),
	}
	bootstrap.Probe = kubectlURLProbe{
		ProxyNamespace:    envOr("PROXY_NAMESPACE", "repoforge-system"),
		ProxyService:      envOr("PROXY_SERVICE", "repoforge-proxy"),
		RegistryNamespace: envOr("REGISTRY_NAMESPACE", "repoforge-system"),
		RegistryService:   envOr("REGISTRY_SERVICE", "repoforge-registry"),
	}
	bootstrap.ProxyDeployDir = filepath.Join(cfg.HomeDir, "templates", "proxy")
	bootstrap.RegistryDir = filepath.Join(cfg.HomeDir, "templates", "registry")

	return bootstrap.Up(context.Background(), cfg.ProxyInfoPath(), cfg.RegistryInfoPath())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readTemplateOrEmpty(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

// readTypeTemplates loads every *.json file under dir into a map keyed by
// its base name without extension (e.g. "pod.json" -> "pod"), the shared
// manifest-type templates AppDeployer renders per service.
func readTypeTemplates(dir string) map[string]string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		out[name[:len(name)-len(ext)]] = string(b)
	}
	return out
}

// serveImageRegistry runs the private container registry the builder
// pushes to on its own listener, independent of the main API port.
func serveImageRegistry(reg *imageregistry.Registry) {
	addr := envOr("REGISTRY_ADDR", ":5000")
	log.Printf("repoforged: image registry listening on %s", addr)
	if err := http.ListenAndServe(addr, reg); err != nil {
		log.Printf("repoforged: image registry: %v", err)
	}
}
