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

package api

import "context"

// workerPool bounds how many Registry/Cluster/LogReader calls the API
// dispatches at once, so a burst of requests can't pile up unbounded
// goroutines behind slow backends. The build enqueue stays on the
// calling goroutine; it is already non-blocking.
type workerPool struct {
	sem chan struct{}
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{sem: make(chan struct{}, size)}
}

// dispatch runs fn once a slot is free, or returns ctx.Err() if the
// caller gives up first.
func (p *workerPool) dispatch(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn()
}
