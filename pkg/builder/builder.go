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

// Package builder is the build worker pool: a bounded job queue
// drained by a fixed pool of workers that each clone a repository,
// assemble a container build context, invoke the external builder
// tool, push the result and optionally preload it.
package builder

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/repoforge/repoforge/pkg/apprecord"
	"github.com/repoforge/repoforge/pkg/targz"
	"github.com/repoforge/repoforge/pkg/tmpl"
)

// ErrQueueFull is returned by Enqueue when the bounded queue has no
// available slot; producers fail fast rather than block.
var ErrQueueFull = errors.New("build queue full")

// AppRegistry is the narrow view of the application registry a builder
// job needs.
type AppRegistry interface {
	Create(spec apprecord.AppSpec) (*apprecord.AppRecord, error)
	Find(name string) (*apprecord.AppRecord, bool, error)
	GetBuildState(name string) (apprecord.BuildState, error)
	UpdateBuildState(name string, state apprecord.BuildState) error
	StampBuildTime(name string) error
	SetDeploymentID(name, deploymentID string) error
	RepoDir(name string) string
	BuildDir(name string) string
}

// RepoFetcher fetches a spec's source repository into destDir. It must
// return ErrRepoNotFound when the remote reports the repository
// doesn't exist. Any Fetch error, this one included, fails the build;
// nothing retries a fetch.
type RepoFetcher interface {
	Fetch(ctx context.Context, repoURL, destDir string) error
}

// ErrRepoNotFound is returned by a RepoFetcher when the source URL
// resolves to a 404 or equivalent not-found condition.
var ErrRepoNotFound = errors.New("repository not found")

// BuildTool is the opaque external container build tool: it accepts a
// context directory and an image tag.
type BuildTool interface {
	Build(ctx context.Context, contextDir, tag string, noCache bool) error
	Push(ctx context.Context, tag string) error
}

// Preloader asks the cluster controller to pull an image onto every
// node.
type Preloader interface {
	Preload(ctx context.Context, image string) error
}

// Logger is the narrow view of the log client a builder job writes
// through. NoPublish marks log traffic that should be file-only, not
// streamed on the live topic.
type Logger interface {
	Debug(tag, msg, app string)
	Info(tag, msg, app string)
	Warn(tag, msg, app string)
	Error(tag, msg, app string)
	NoPublish(level, tag, msg, app string)
}

// Config holds the Builder's static, operator-supplied settings.
type Config struct {
	QueueCapacity    int    // recognized option queue.capacity, default 50
	Workers          int    // recognized option builder.workers, default 10
	BaseImage        string // the shared base image every built App layers on
	RegistryName     string // the private registry host/path prefix
	ImageTemplateDir string // the shipped image-template tree to copy into every build context
	Preload          bool   // recognized option preload, default true
	ClientSnippets   []string // per-service client snippets appended to a synthesized Dockerfile
	SuffixSnippet    string   // the shipped suffix snippet appended to every assembled Dockerfile
	DockerUser       string   // the user switched to after the base-image directive
}

// Pool is the Builder Worker Pool.
type Pool struct {
	cfg       Config
	registry  AppRegistry
	fetcher   RepoFetcher
	tool      BuildTool
	preloader Preloader
	logger    Logger

	queue chan apprecord.AppSpec

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Pool. Start must be called before jobs are drained.
func New(cfg Config, registry AppRegistry, fetcher RepoFetcher, tool BuildTool, preloader Preloader, logger Logger) *Pool {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	return &Pool{
		cfg:       cfg,
		registry:  registry,
		fetcher:   fetcher,
		tool:      tool,
		preloader: preloader,
		logger:    logger,
		queue:     make(chan apprecord.AppSpec, cfg.QueueCapacity),
	}
}

// Start launches the fixed worker pool. Each worker pulls specs off the
// queue until ctx is canceled and the queue is drained.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.workerLoop(ctx)
		}()
	}
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		select {
		case spec, ok := <-p.queue:
			if !ok {
				return
			}
			// Shutdown never preempts a job already running.
			p.runJob(context.WithoutCancel(ctx), spec)
		case <-ctx.Done():
			// Drain whatever is already buffered before exiting, so an
			// admitted job is never silently lost on shutdown.
			for {
				select {
				case spec, ok := <-p.queue:
					if !ok {
						return
					}
					p.runJob(context.Background(), spec)
				default:
					return
				}
			}
		}
	}
}

// Stop signals every worker to finish in-flight and buffered jobs, then
// waits for them to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	close(p.queue)
	p.wg.Wait()
}

// Enqueue attempts a non-blocking enqueue of spec, so the HTTP layer
// never blocks on build completion.
func (p *Pool) Enqueue(spec apprecord.AppSpec) error {
	select {
	case p.queue <- spec:
		return nil
	default:
		return ErrQueueFull
	}
}

// runJob executes the full per-job protocol, never propagating a panic
// or error out of the pool: every failure path converges on
// build_state=FAILED plus a terminal log record.
func (p *Pool) runJob(ctx context.Context, spec apprecord.AppSpec) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("build", fmt.Sprintf("panic: %v", r), spec.Name)
			_ = p.registry.UpdateBuildState(spec.Name, apprecord.StateBuilding)
			_ = p.registry.UpdateBuildState(spec.Name, apprecord.StateFailed)
		}
	}()

	// Step 1: create/update the record; single-flight check.
	if _, err := p.registry.Create(spec); err != nil {
		p.logger.Error("build", fmt.Sprintf("create record: %v", err), spec.Name)
		return
	}
	state, err := p.registry.GetBuildState(spec.Name)
	if err != nil {
		p.logger.Error("build", fmt.Sprintf("read state: %v", err), spec.Name)
		return
	}
	if state == apprecord.StateBuilding {
		p.logger.Info("build", "build already in progress, skipping", spec.Name)
		return
	}

	// Step 2: transition into BUILDING (stamps last_build_time).
	if err := p.registry.UpdateBuildState(spec.Name, apprecord.StateBuilding); err != nil {
		p.logger.Error("build", fmt.Sprintf("transition to building: %v", err), spec.Name)
		return
	}

	if err := p.build(ctx, spec); err != nil {
		p.logger.Error("build", fmt.Sprintf("build failed: %v", err), spec.Name)
		_ = p.registry.UpdateBuildState(spec.Name, apprecord.StateFailed)
		return
	}

	if err := p.registry.UpdateBuildState(spec.Name, apprecord.StateCompleted); err != nil {
		p.logger.Error("build", fmt.Sprintf("transition to completed: %v", err), spec.Name)
		return
	}
	p.logger.Info("build", "build completed", spec.Name)
}

// build runs steps 3-8 of the per-job protocol, short-circuiting on the
// first failure.
func (p *Pool) build(ctx context.Context, spec apprecord.AppSpec) error {
	repoDir := p.registry.RepoDir(spec.Name)
	buildDir := p.registry.BuildDir(spec.Name)

	// Step 3: clean clone.
	if err := os.RemoveAll(repoDir); err != nil {
		return fmt.Errorf("clean repo dir: %w", err)
	}
	if err := p.fetcher.Fetch(ctx, spec.RepoURL, repoDir); err != nil {
		if errors.Is(err, ErrRepoNotFound) {
			return fmt.Errorf("repository not found: %s", spec.RepoURL)
		}
		return fmt.Errorf("fetch repository: %w", err)
	}
	p.logger.Info("build", "repository cloned", spec.Name)

	// Step 4: recreate the build context directory and render the
	// shipped image-template tree with the spec as parameters.
	if err := os.RemoveAll(buildDir); err != nil {
		return fmt.Errorf("clean build dir: %w", err)
	}
	if err := copyTree(p.cfg.ImageTemplateDir, buildDir); err != nil {
		return fmt.Errorf("copy image template tree: %w", err)
	}
	specParams := specParameters(spec)
	if err := tmpl.RenderTree(buildDir, tmpl.Namespace("app", specParams)); err != nil {
		return fmt.Errorf("render build context: %w", err)
	}

	// Step 5: optional base image rebuild, as a distinct loggable step.
	// Runs before the repo joins the context, so a flattened repo file
	// can never shadow the template tree's own base Dockerfile.
	if spec.RebuildBase {
		p.logger.Info("build-base", "rebuilding shared base image", spec.Name)
		if err := p.tool.Build(ctx, buildDir, p.cfg.BaseImage, true); err != nil {
			return fmt.Errorf("build base image: %w", err)
		}
		if err := p.tool.Push(ctx, p.cfg.BaseImage); err != nil {
			return fmt.Errorf("push base image: %w", err)
		}
		if err := p.registry.StampBuildTime(spec.Name); err != nil {
			return fmt.Errorf("stamp base image build time: %w", err)
		}
	}

	// The cloned repository joins the context after rendering, so its
	// files are never treated as templates. A repository-supplied
	// Dockerfile addresses its own files relative to the repo root, so
	// the repo is flattened into the context for that variant; a
	// synthesized Dockerfile addresses them under repo/ instead.
	repoDst := filepath.Join(buildDir, "repo")
	if spec.HasDependency(apprecord.DepDockerfile) {
		repoDst = buildDir
	}
	if err := copyDir(repoDir, repoDst); err != nil {
		return fmt.Errorf("copy repository into build context: %w", err)
	}

	// Step 6: assemble the Dockerfile.
	if err := p.assembleDockerfile(spec, repoDir, buildDir); err != nil {
		return fmt.Errorf("assemble build file: %w", err)
	}

	tag := fmt.Sprintf("%s/%s:latest", p.cfg.RegistryName, spec.Name)
	if err := p.tool.Build(ctx, buildDir, tag, true); err != nil {
		return fmt.Errorf("build image: %w", err)
	}

	// Step 7: push.
	if err := p.tool.Push(ctx, tag); err != nil {
		return fmt.Errorf("push image: %w", err)
	}
	p.logger.Info("build", fmt.Sprintf("pushed %s", tag), spec.Name)

	// Step 8: optional preload. The pull targets the newly built app
	// image, not the base image the nodes already carry.
	if p.cfg.Preload && p.preloader != nil {
		if err := p.preloader.Preload(ctx, tag); err != nil {
			// Preload failure does not fail the build; it only means the
			// first launch is slower.
			p.logger.NoPublish("WARNING", "preload", fmt.Sprintf("preload failed: %v", err), spec.Name)
		} else {
			p.logger.Info("preload", fmt.Sprintf("preloaded %s to all nodes", tag), spec.Name)
		}
	}

	return nil
}

// specParameters derives the parameter map that gets namespaced under
// "app." for template rendering.
func specParameters(spec apprecord.AppSpec) tmpl.Params {
	return tmpl.Params{
		"name":             spec.Name,
		"notebooks-image":  spec.Name,
		"notebooks-port":   "8888",
		"repo-url":         spec.RepoURL,
	}
}

// copyTree materializes the shipped image-template tree into a fresh
// build context. src may name a directory, copied
// recursively, or a .tar.gz/.tgz archive, extracted in place; shipping
// the template tree as a single archive avoids a build-dependent
// directory layout on the host running repoforged.
func copyTree(src, dst string) error {
	if src == "" {
		return os.MkdirAll(dst, 0755)
	}
	if strings.HasSuffix(src, ".tar.gz") || strings.HasSuffix(src, ".tgz") {
		return extractTarGz(src, dst)
	}
	return copyDir(src, dst)
}

// extractTarGz unpacks the archive at src into dst.
func extractTarGz(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	return targz.ReadFile(f, func(hdr *tar.Header, r io.Reader) error {
		target := filepath.Join(dst, hdr.Name)
		if hdr.FileInfo().IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, r)
		return err
	})
}

// copyDir recursively copies every file under src into dst, creating
// directories as needed.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
