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

// Package api is the HTTP/WebSocket surface: it sits above every other
// component, applies admission control to build requests, answers
// status/listing queries, and streams build logs.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/repoforge/repoforge/pkg/apprecord"
	"github.com/repoforge/repoforge/pkg/cluster"
	"github.com/repoforge/repoforge/pkg/svcregistry"
	"github.com/repoforge/repoforge/pkg/tmpl"
)

// AppRegistry is the narrow capability interface the API needs from the
// Application Registry.
type AppRegistry interface {
	Find(name string) (*apprecord.AppRecord, bool, error)
	List() ([]*apprecord.AppRecord, error)
	SetDeploymentID(name, deploymentID string) error
}

// BuildQueue is the narrow capability interface the API needs from the
// Builder Worker Pool.
type BuildQueue interface {
	Enqueue(spec apprecord.AppSpec) error
}

// ServiceLister is the narrow capability interface the API needs from
// the Service Registry.
type ServiceLister interface {
	List() ([]*svcregistry.Record, error)
}

// ClusterInfo is the narrow capability interface the API needs from the
// Cluster Controller for read-only queries.
type ClusterInfo interface {
	RunningApps(ctx context.Context) ([]cluster.RunningApp, error)
	Capacity(ctx context.Context) (int, error)
}

// Deployer triggers a deploy for a COMPLETED app and returns its
// user-facing URL.
type Deployer interface {
	Deploy(ctx context.Context, appName, deploymentID string, appParams tmpl.Params, services []cluster.ServiceRef, mode string) (string, error)
}

// LogHistory serves historical log lines.
type LogHistory interface {
	StaticLog(app string, sinceISO string) (string, error)
}

// LogStreamer serves the combined history+live log stream.
type LogStreamer interface {
	Stream(ctx context.Context, app, sinceISO string, filtered bool) (<-chan string, error)
}

// Config holds the API's operator-supplied settings.
type Config struct {
	AllowOrigin  bool
	ClusterHost  string
	DeployMode   string // default "single-node"
	WorkerPool   int    // bounded dispatch pool size, default 32
	IDGenerator  func() string
}

// Server wires every component the API dispatches to.
type Server struct {
	cfg Config

	apps     AppRegistry
	builds   BuildQueue
	services ServiceLister
	clusterI ClusterInfo
	deployer Deployer
	logs     LogHistory
	streamer LogStreamer

	pool *workerPool
}

// New builds a Server. A nil services, clusterI, deployer, logs or
// streamer disables the endpoints that check for it (the corresponding
// handler responds 503); apps and builds are used without a nil check
// and must be set.
func New(cfg Config, apps AppRegistry, builds BuildQueue, services ServiceLister, clusterI ClusterInfo, deployer Deployer, logs LogHistory, streamer LogStreamer) *Server {
	if cfg.DeployMode == "" {
		cfg.DeployMode = "single-node"
	}
	if cfg.WorkerPool <= 0 {
		cfg.WorkerPool = 32
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = defaultDeploymentID
	}
	return &Server{
		cfg: cfg, apps: apps, builds: builds, services: services,
		clusterI: clusterI, deployer: deployer, logs: logs, streamer: streamer,
		pool: newWorkerPool(cfg.WorkerPool),
	}
}

// Router builds the chi.Mux serving every endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	if s.cfg.AllowOrigin {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		}))
	}

	r.Route("/apps/{org}/{repo}", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleGetOrDeploy)
		r.Get("/logs/static", s.handleLogsStatic)
		r.Get("/logs/live", s.handleLogsLive)
	})
	r.Get("/apps", s.handleListApps)
	r.Get("/services", s.handleListServices)
	r.Get("/running", s.handleRunning)
	r.Get("/capacity", s.handleCapacity)

	return r
}

// defaultDeploymentID returns a short opaque id. Two deploys in the
// same instant must not collide, so it is random rather than
// time-derived.
func defaultDeploymentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
