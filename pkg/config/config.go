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

// Package config loads repoforged's static configuration: the mandatory
// environment variables and the recognized options file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Options holds the recognized tunables, each with a default filled in
// by DefaultOptions.
type Options struct {
	QueueCapacity             int    `yaml:"queue.capacity"`
	BuilderWorkers            int    `yaml:"builder.workers"`
	AllowOrigin               bool   `yaml:"allow_origin"`
	Preload                   bool   `yaml:"preload"`
	APIPort                   int    `yaml:"api.port"`
	CronPeriodMinutes         int    `yaml:"cron_period_minutes"`
	InactiveThresholdMinutes  int    `yaml:"inactive_threshold_minutes"`
	CapacityPollPeriodSeconds int    `yaml:"capacity_poll_period_seconds"`
	OrchestratorProvider      string `yaml:"-"`
}

// DefaultOptions returns every option at its default.
func DefaultOptions() Options {
	return Options{
		QueueCapacity:             50,
		BuilderWorkers:            10,
		AllowOrigin:               true,
		Preload:                   true,
		APIPort:                   8080,
		CronPeriodMinutes:         5,
		InactiveThresholdMinutes:  30,
		CapacityPollPeriodSeconds: 3600,
		OrchestratorProvider:      "gce",
	}
}

// Config is the fully resolved configuration for a repoforged process.
type Config struct {
	// HomeDir is the root for all persisted state (HOME_DIR).
	HomeDir string
	// Project identifies the private registry path (PROJECT).
	Project string
	Options Options
}

// Load resolves HOME_DIR, PROJECT and ORCHESTRATOR_PROVIDER from the
// environment and merges an optional options file at
// {HOME_DIR}/config.yaml over the defaults. A missing PROJECT is fatal;
// the caller should exit. A missing HOME_DIR is not an error: it
// defaults to ~/.repoforge.
func Load() (*Config, error) {
	home := os.Getenv("HOME_DIR")
	if home == "" {
		expanded, err := homedir.Expand("~/.repoforge")
		if err != nil {
			return nil, fmt.Errorf("HOME_DIR not set and could not resolve default: %w", err)
		}
		home = expanded
	}
	project := os.Getenv("PROJECT")
	if project == "" {
		return nil, fmt.Errorf("PROJECT environment variable must be set")
	}

	opts := DefaultOptions()
	if provider := os.Getenv("ORCHESTRATOR_PROVIDER"); provider != "" {
		opts.OrchestratorProvider = provider
	}

	optsPath := filepath.Join(home, "config.yaml")
	if b, err := os.ReadFile(optsPath); err == nil {
		if err := yaml.Unmarshal(b, &opts); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", optsPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", optsPath, err)
	}

	return &Config{HomeDir: home, Project: project, Options: opts}, nil
}

// AppsDir is {HOME_DIR}/apps.
func (c *Config) AppsDir() string { return filepath.Join(c.HomeDir, "apps") }

// ServicesDir is {HOME_DIR}/services.
func (c *Config) ServicesDir() string { return filepath.Join(c.HomeDir, "services") }

// LogsDir is {HOME_DIR}/logs/binder.
func (c *Config) LogsDir() string { return filepath.Join(c.HomeDir, "logs", "binder") }

// ProxyInfoPath is {HOME_DIR}/.proxy_info.
func (c *Config) ProxyInfoPath() string { return filepath.Join(c.HomeDir, ".proxy_info") }

// RegistryInfoPath is {HOME_DIR}/.registry_info.
func (c *Config) RegistryInfoPath() string { return filepath.Join(c.HomeDir, ".registry_info") }

// RegistryName is the private registry path for built images,
// provider-agnostic.
func (c *Config) RegistryName() string {
	return fmt.Sprintf("registry.local/%s", c.Project)
}
