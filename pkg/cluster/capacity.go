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
	"sync"
	"time"
)

// capacityCache caches the summed node capacity for
// cfg.CapacityPollPeriod. Caching it here, rather than in pkg/api,
// means every caller of Capacity shares one cache regardless of how
// many HTTP handlers ask.
type capacityCache struct {
	mu       sync.Mutex
	value    int
	fetched  time.Time
}

// Capacity returns the sum of per-node pod capacity across every
// non-control-plane node, refreshing at most once per
// cfg.CapacityPollPeriod.
func (c *Controller) Capacity(ctx context.Context) (int, error) {
	c.capacity.mu.Lock()
	defer c.capacity.mu.Unlock()

	if !c.capacity.fetched.IsZero() && time.Since(c.capacity.fetched) < c.cfg.CapacityPollPeriod {
		return c.capacity.value, nil
	}

	perNode, err := c.orch.NodeCapacities(ctx)
	if err != nil {
		return 0, fmt.Errorf("cluster: capacity: %w", err)
	}
	total := 0
	for _, n := range perNode {
		total += n
	}

	c.capacity.value = total
	c.capacity.fetched = time.Now()
	return total, nil
}
