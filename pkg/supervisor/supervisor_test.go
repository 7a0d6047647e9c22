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

package supervisor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

type fakeBuilds struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	stopHang time.Duration
}

func (b *fakeBuilds) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
}

func (b *fakeBuilds) Stop() {
	if b.stopHang > 0 {
		time.Sleep(b.stopHang)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

type fakeReaper struct {
	mu         sync.Mutex
	thresholds []string
}

func (r *fakeReaper) ReapIdle(ctx context.Context, thresholdISO string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thresholds = append(r.thresholds, thresholdISO)
	return nil
}

type fakeLogger struct {
	mu    sync.Mutex
	infos []string
	errs  []string
}

func (l *fakeLogger) Info(tag, msg, app string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *fakeLogger) Error(tag, msg, app string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// TestRunServesAndShutsDownCleanly starts a Supervisor, hits its handler
// over HTTP, cancels the context and checks every component stopped.
func TestRunServesAndShutsDownCleanly(t *testing.T) {
	addr := freePort(t)
	builds := &fakeBuilds{}
	reaper := &fakeReaper{}
	logger := &fakeLogger{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s := New(Config{
		Addr:          addr,
		CronPeriod:    10 * time.Millisecond,
		ShutdownGrace: time.Second,
	}, mux, builds, reaper, logger)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	waitForServing(t, addr)

	resp, err := http.Get(fmt.Sprintf("http://%s/ping", addr))
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	time.Sleep(30 * time.Millisecond) // let the reaper tick at least once
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	builds.mu.Lock()
	defer builds.mu.Unlock()
	if !builds.started || !builds.stopped {
		t.Fatalf("builds lifecycle not exercised: started=%v stopped=%v", builds.started, builds.stopped)
	}

	reaper.mu.Lock()
	defer reaper.mu.Unlock()
	if len(reaper.thresholds) == 0 {
		t.Fatal("reaper never ticked")
	}
}

// TestShutdownRespectsGracePeriod checks that a builder pool which never
// finishes stopping does not hang Run forever.
func TestShutdownRespectsGracePeriod(t *testing.T) {
	addr := freePort(t)
	builds := &fakeBuilds{stopHang: 500 * time.Millisecond}
	logger := &fakeLogger{}

	s := New(Config{
		Addr:          addr,
		ShutdownGrace: 50 * time.Millisecond,
	}, http.NewServeMux(), builds, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	waitForServing(t, addr)
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not honor the shutdown grace period")
	}
}

func waitForServing(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never started listening on %s", addr)
}
