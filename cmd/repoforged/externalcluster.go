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
)

// scriptCluster is the concrete pkg/cluster.ExternalCluster: cluster
// bring-up/tear-down is delegated to operator-supplied scripts, the
// same scripts cmd/repoforgectl's "cluster up/down" runs for an
// operator driving things by hand.
type scriptCluster struct {
	UpScript, DownScript string
}

func (s scriptCluster) Start(ctx context.Context) error {
	return exec.CommandContext(ctx, s.UpScript).Run()
}

func (s scriptCluster) Stop(ctx context.Context) error {
	return exec.CommandContext(ctx, s.DownScript).Run()
}

// kubectlURLProbe resolves the proxy/registry Services' externally
// reachable address via `kubectl get svc`, the same kubectl-CLI approach
// kubectlOrchestrator uses.
type kubectlURLProbe struct {
	ProxyNamespace, ProxyService       string
	RegistryNamespace, RegistryService string
}

func (p kubectlURLProbe) ProxyURL(ctx context.Context) (string, error) {
	return serviceExternalURL(ctx, p.ProxyNamespace, p.ProxyService)
}

func (p kubectlURLProbe) RegistryURL(ctx context.Context) (string, error) {
	return serviceExternalURL(ctx, p.RegistryNamespace, p.RegistryService)
}

func serviceExternalURL(ctx context.Context, namespace, service string) (string, error) {
	cmd := exec.CommandContext(ctx, "kubectl", "get", "svc", service, "-n", namespace,
		"-o", "jsonpath={.status.loadBalancer.ingress[0].ip}")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("kubectl get svc %s -n %s: %w: %s", service, namespace, err, stderr.String())
	}
	ip := strings.TrimSpace(stdout.String())
	if ip == "" {
		return "", nil
	}
	return "https://" + ip, nil
}
