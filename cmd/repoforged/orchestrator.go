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
	"encoding/json"
	"fmt"
	"os/exec"
)

// kubectlOrchestrator is the concrete pkg/cluster.Orchestrator. The
// orchestrator is treated as an opaque resource API that creates
// namespaces and manifests and reports pod IP/readiness, driven here
// through the kubectl CLI.
type kubectlOrchestrator struct {
	// ControlPlaneLabel marks a node as control-plane (excluded from
	// Nodes/NodeCapacities), default "node-role.kubernetes.io/control-plane".
	ControlPlaneLabel string
}

func newKubectlOrchestrator() *kubectlOrchestrator {
	return &kubectlOrchestrator{ControlPlaneLabel: "node-role.kubernetes.io/control-plane"}
}

func (o *kubectlOrchestrator) kubectl(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "kubectl", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("kubectl %v: %w: %s", args, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (o *kubectlOrchestrator) CreateManifest(ctx context.Context, path, namespace string) error {
	args := []string{"apply", "-f", path}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}
	_, err := o.kubectl(ctx, args...)
	return err
}

type podList struct {
	Items []struct {
		Status struct {
			Phase string `json:"phase"`
			PodIP string `json:"podIP"`
		} `json:"status"`
		Spec struct {
			Containers []struct {
				Image string `json:"image"`
			} `json:"containers"`
		} `json:"spec"`
	} `json:"items"`
}

func (o *kubectlOrchestrator) pods(ctx context.Context, namespace string) (podList, error) {
	var list podList
	out, err := o.kubectl(ctx, "get", "pods", "-n", namespace, "-o", "json")
	if err != nil {
		return list, err
	}
	if err := json.Unmarshal(out, &list); err != nil {
		return list, fmt.Errorf("kubectl get pods -n %s: decode: %w", namespace, err)
	}
	return list, nil
}

func (o *kubectlOrchestrator) PodIP(ctx context.Context, namespace string) (string, bool, error) {
	list, err := o.pods(ctx, namespace)
	if err != nil {
		return "", false, err
	}
	for _, p := range list.Items {
		if p.Status.Phase == "Running" && p.Status.PodIP != "" {
			return p.Status.PodIP, true, nil
		}
	}
	return "", false, nil
}

func (o *kubectlOrchestrator) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := o.kubectl(ctx, "delete", "namespace", namespace, "--ignore-not-found")
	return err
}

type namespaceList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	} `json:"items"`
}

func (o *kubectlOrchestrator) Namespaces(ctx context.Context) ([]string, error) {
	out, err := o.kubectl(ctx, "get", "namespaces", "-o", "json")
	if err != nil {
		return nil, err
	}
	var list namespaceList
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, fmt.Errorf("kubectl get namespaces: decode: %w", err)
	}
	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Metadata.Name)
	}
	return names, nil
}

func (o *kubectlOrchestrator) NotebookImage(ctx context.Context, namespace string) (string, error) {
	list, err := o.pods(ctx, namespace)
	if err != nil {
		return "", err
	}
	for _, p := range list.Items {
		if len(p.Spec.Containers) > 0 {
			return p.Spec.Containers[0].Image, nil
		}
	}
	return "", fmt.Errorf("kubectl: no pod with a container found in namespace %s", namespace)
}

type nodeList struct {
	Items []struct {
		Metadata struct {
			Name   string            `json:"name"`
			Labels map[string]string `json:"labels"`
		} `json:"metadata"`
		Status struct {
			Allocatable struct {
				Pods string `json:"pods"`
			} `json:"allocatable"`
		} `json:"status"`
	} `json:"items"`
}

func (o *kubectlOrchestrator) nodes(ctx context.Context) (nodeList, error) {
	var list nodeList
	out, err := o.kubectl(ctx, "get", "nodes", "-o", "json")
	if err != nil {
		return list, err
	}
	if err := json.Unmarshal(out, &list); err != nil {
		return list, fmt.Errorf("kubectl get nodes: decode: %w", err)
	}
	return list, nil
}

func (o *kubectlOrchestrator) isControlPlane(labels map[string]string) bool {
	_, ok := labels[o.ControlPlaneLabel]
	return ok
}

func (o *kubectlOrchestrator) NodeCapacities(ctx context.Context) (map[string]int, error) {
	list, err := o.nodes(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, n := range list.Items {
		if o.isControlPlane(n.Metadata.Labels) {
			continue
		}
		var pods int
		fmt.Sscanf(n.Status.Allocatable.Pods, "%d", &pods)
		out[n.Metadata.Name] = pods
	}
	return out, nil
}

func (o *kubectlOrchestrator) Nodes(ctx context.Context) ([]string, error) {
	list, err := o.nodes(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range list.Items {
		if o.isControlPlane(n.Metadata.Labels) {
			continue
		}
		names = append(names, n.Metadata.Name)
	}
	return names, nil
}
