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

// Package logclient is the in-process logging front end: callers
// enqueue records onto a local in-memory queue; a background goroutine
// drains the queue into a Sink (the in-process log daemon, or a broker
// connection for an out-of-process caller).
package logclient

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/repoforge/repoforge/pkg/logdaemon"
)

// numeric levels carried on the wire, following the common
// 10/20/30/40 logging numbering.
const (
	LevelDebug   = 10
	LevelInfo    = 20
	LevelWarning = 30
	LevelError   = 40
)

// Sink accepts a fully-formed log_writer request. logdaemon.Daemon
// satisfies it directly (in-process); a Broker connection can satisfy it
// for an out-of-process caller.
type Sink interface {
	HandleLog(req logdaemon.LogRequest) logdaemon.Response
}

const queueCapacity = 4096

// Client is the Log Client: debug/info/warn/error(tag, msg, app?) enqueue
// onto an in-memory channel; a single background goroutine drains it into
// sink. Satisfies pkg/builder.Logger.
type Client struct {
	sink  Sink
	queue chan logdaemon.LogRequest

	wg   sync.WaitGroup
	done chan struct{}
}

// New starts the background drain goroutine against sink.
func New(sink Sink) *Client {
	c := &Client{
		sink:  sink,
		queue: make(chan logdaemon.LogRequest, queueCapacity),
		done:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.drain()
	return c
}

func (c *Client) drain() {
	defer c.wg.Done()
	for req := range c.queue {
		c.sink.HandleLog(req)
	}
}

func (c *Client) enqueue(level int, tag, msg, app string, noPublish bool) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.queue <- logdaemon.LogRequest{Type: "log", Level: level, Tag: tag, Msg: msg, App: app, NoPublish: noPublish}:
	case <-c.done:
	}
}

// Debug enqueues a DEBUG-level record.
func (c *Client) Debug(tag, msg, app string) { c.enqueue(LevelDebug, tag, msg, app, false) }

// Info enqueues an INFO-level record.
func (c *Client) Info(tag, msg, app string) { c.enqueue(LevelInfo, tag, msg, app, false) }

// Warn enqueues a WARNING-level record.
func (c *Client) Warn(tag, msg, app string) { c.enqueue(LevelWarning, tag, msg, app, false) }

// Error enqueues an ERROR-level record.
func (c *Client) Error(tag, msg, app string) { c.enqueue(LevelError, tag, msg, app, false) }

// NoPublish enqueues a record at the given named level (DEBUG, INFO,
// WARNING or ERROR) that is written to the raw log only, never to the
// filtered log or the live topic. Satisfies pkg/builder.Logger.
func (c *Client) NoPublish(level, tag, msg, app string) {
	c.enqueue(numericLevel(level), tag, msg, app, true)
}

func numericLevel(name string) int {
	switch name {
	case "ERROR":
		return LevelError
	case "WARNING":
		return LevelWarning
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Shutdown closes the queue and blocks until the drain goroutine has
// flushed every already-enqueued record, or ctx expires first. The
// flush is best-effort: records enqueued after Shutdown are dropped.
func (c *Client) Shutdown(ctx context.Context) {
	close(c.done)
	close(c.queue)

	flushed := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
	case <-ctx.Done():
	}
}

// WriteStream reads r line-by-line and forwards each line as a log
// record at level, tagged tag, attributed to app. It blocks until r is
// exhausted, so callers run it in its own goroutine per stream.
func (c *Client) WriteStream(tag string, level int, r io.Reader, app string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		c.enqueue(level, tag, scanner.Text(), app, false)
	}
}
