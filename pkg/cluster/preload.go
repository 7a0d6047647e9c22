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

	"github.com/containerd/stargz-snapshotter/estargz"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"golang.org/x/sync/errgroup"
)

// Preload asks every worker node to pull image into its local image
// store, concurrently, and waits for all of them.
//
// Before fanning out, it checks whether the pushed manifest already
// carries an eStargz TOC annotation (the marker the containerd
// stargz-snapshotter ecosystem uses for lazy, on-demand layer pulls): if
// every layer is lazy-pullable, an eager pull onto each node buys
// nothing, so Preload skips the fan-out and returns immediately.
func (c *Controller) Preload(ctx context.Context, image string) error {
	if c.puller == nil {
		return fmt.Errorf("cluster: preload: no NodePuller configured")
	}

	if lazy, err := isLazyPullable(image); err == nil && lazy {
		if c.logger != nil {
			c.logger.Info("cluster", fmt.Sprintf("%s is eStargz lazy-pullable, skipping eager node preload", image), "")
		}
		return nil
	}

	nodes, err := c.orch.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("cluster: preload %s: list nodes: %w", image, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, node := range nodes {
		node := node
		g.Go(func() error {
			if err := c.puller.Pull(gctx, node, image); err != nil {
				return fmt.Errorf("preload %s onto %s: %w", image, node, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// isLazyPullable reports whether every layer of ref's manifest carries
// the eStargz TOC digest annotation.
func isLazyPullable(ref string) (bool, error) {
	r, err := name.ParseReference(ref)
	if err != nil {
		return false, err
	}
	img, err := remote.Image(r)
	if err != nil {
		return false, err
	}
	manifest, err := img.Manifest()
	if err != nil {
		return false, err
	}
	if len(manifest.Layers) == 0 {
		return false, nil
	}
	for _, layer := range manifest.Layers {
		if _, ok := layer.Annotations[estargz.TOCJSONDigestAnnotation]; !ok {
			return false, nil
		}
	}
	return true, nil
}
