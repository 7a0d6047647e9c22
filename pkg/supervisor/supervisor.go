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

// Package supervisor owns the process's long-lived components: it
// starts the HTTP/WebSocket API, the builder worker pool and the
// idle-app reaper, then on signal shuts down in order: close WebSocket
// handlers, stop the idle-reaper, stop accepting new builds by shutting
// down the HTTP server, then wait for in-flight builder workers up to a
// bounded grace period. cmd/repoforged wires the concrete components in.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// BuilderPool is the narrow view of the Builder Worker Pool the
// supervisor needs: start its workers, then stop and wait for in-flight
// jobs to finish.
type BuilderPool interface {
	Start(ctx context.Context)
	Stop()
}

// IdleReaper is the narrow view of the cluster controller the
// supervisor needs to run the periodic idle-app GC.
type IdleReaper interface {
	ReapIdle(ctx context.Context, thresholdISO string) error
}

// Logger is the narrow logging capability the supervisor reports its own
// lifecycle events through.
type Logger interface {
	Info(tag, msg, app string)
	Error(tag, msg, app string)
}

// Config holds the Supervisor's operator-supplied settings.
type Config struct {
	Addr              string        // HTTP listen address, e.g. ":8080"
	CronPeriod        time.Duration // recognized option cron_period_minutes
	InactiveThreshold time.Duration // recognized option inactive_threshold_minutes
	ShutdownGrace     time.Duration // bounded grace period for in-flight builder workers, default 2m
}

// Supervisor owns the process's long-lived components and the ordered
// shutdown sequence.
type Supervisor struct {
	cfg     Config
	handler http.Handler
	builds  BuilderPool
	reaper  IdleReaper
	logger  Logger

	srv *http.Server
}

// New builds a Supervisor. builds and reaper may be nil, disabling the
// corresponding lifecycle step (a repoforged running API-only, for
// instance, passes a nil reaper).
func New(cfg Config, handler http.Handler, builds BuilderPool, reaper IdleReaper, logger Logger) *Supervisor {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 2 * time.Minute
	}
	if cfg.CronPeriod <= 0 {
		cfg.CronPeriod = 5 * time.Minute
	}
	if cfg.InactiveThreshold <= 0 {
		cfg.InactiveThreshold = 30 * time.Minute
	}
	return &Supervisor{cfg: cfg, handler: handler, builds: builds, reaper: reaper, logger: logger}
}

// Run starts every component and blocks until ctx is canceled (typically
// by a signal handler the caller installs around ctx), then runs the
// documented shutdown sequence and returns once every component has
// stopped or the grace period elapsed.
func (s *Supervisor) Run(ctx context.Context) error {
	// WebSocket handlers derive their context from each request's
	// context, which in turn derives from the server's BaseContext;
	// canceling runCtx below closes every live handler individually.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	s.srv = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.handler,
		BaseContext: func(net.Listener) context.Context {
			return runCtx
		},
	}

	if s.builds != nil {
		s.builds.Start(runCtx)
	}

	reaperCtx, cancelReaper := context.WithCancel(runCtx)
	defer cancelReaper()
	reaperDone := make(chan struct{})
	if s.reaper != nil {
		go func() {
			defer close(reaperDone)
			s.runReaper(reaperCtx)
		}()
	} else {
		close(reaperDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()
	s.logf("supervisor: listening on %s", s.cfg.Addr)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		cancelRun()
		return err
	}

	return s.shutdown(runCtx, cancelRun, cancelReaper, reaperDone, serveErr)
}

// shutdown runs the five shutdown steps in order.
func (s *Supervisor) shutdown(runCtx context.Context, cancelRun, cancelReaper context.CancelFunc, reaperDone chan struct{}, serveErr chan error) error {
	s.logf("supervisor: shutdown initiated")

	// (a) Ask each WebSocket handler to close: cancel the shared request
	// context every handler's stream loop selects on.
	cancelRun()

	// (b) Stop the idle-reaper.
	cancelReaper()
	<-reaperDone

	// (c) Stop accepting new builds. The API is a single HTTP surface, so
	// this collapses into shutting the listener down: no further request,
	// build or otherwise, is accepted after this point.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logError("supervisor: http shutdown: %v", err)
	}
	<-serveErr

	// (d) Wait for in-flight builder workers up to the bounded grace
	// period; workers are not preempted.
	if s.builds != nil {
		stopped := make(chan struct{})
		go func() {
			s.builds.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
			s.logf("supervisor: builder workers drained")
		case <-time.After(s.cfg.ShutdownGrace):
			s.logError("supervisor: grace period elapsed with builder workers still running", nil)
		}
	}

	// (e) Stop the event loop: Run's caller returns once this method
	// returns.
	s.logf("supervisor: shutdown complete")
	return nil
}

func (s *Supervisor) runReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CronPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			threshold := time.Now().Add(-s.cfg.InactiveThreshold).UTC().Format(time.RFC3339)
			if err := s.reaper.ReapIdle(ctx, threshold); err != nil {
				s.logError("supervisor: idle reap: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if s.logger != nil {
		s.logger.Info("supervisor", msg, "")
		return
	}
	log.Println(msg)
}

func (s *Supervisor) logError(format string, err error) {
	var msg string
	if err != nil {
		msg = fmt.Sprintf(format, err)
	} else {
		msg = format
	}
	if s.logger != nil {
		s.logger.Error("supervisor", msg, "")
		return
	}
	log.Println(msg)
}
