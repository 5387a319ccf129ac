// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package viewport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bootstrap defaults.
const (
	DefaultInitMaxAttempts   = 3
	DefaultInitRetryDelay    = 500 * time.Millisecond
	DefaultInitMaxRetryDelay = 5 * time.Second
)

// BootstrapState is the state of engine initialization.
type BootstrapState int

const (
	BootstrapIdle BootstrapState = iota
	BootstrapInFlight
	BootstrapReady
	BootstrapFailed
)

// String returns the state name.
func (s BootstrapState) String() string {
	switch s {
	case BootstrapIdle:
		return "idle"
	case BootstrapInFlight:
		return "in-flight"
	case BootstrapReady:
		return "ready"
	case BootstrapFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BootstrapConfig bounds initialization retries.
type BootstrapConfig struct {
	// MaxAttempts is the number of failed attempts after which Ensure fails
	// fast until Reset.
	MaxAttempts int
	// RetryDelay is the wait before the first retry; each further retry
	// doubles it. Zero retries immediately.
	RetryDelay time.Duration
	// MaxRetryDelay caps the doubled delay.
	MaxRetryDelay time.Duration
}

// DefaultBootstrapConfig returns the default retry bounds.
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		MaxAttempts:   DefaultInitMaxAttempts,
		RetryDelay:    DefaultInitRetryDelay,
		MaxRetryDelay: DefaultInitMaxRetryDelay,
	}
}

// calculateBackoff returns the wait before attempt n+1 after n failures:
// RetryDelay * 2^(n-1), capped at MaxRetryDelay.
func calculateBackoff(failures int, cfg BootstrapConfig) time.Duration {
	if failures <= 0 || cfg.RetryDelay <= 0 {
		return 0
	}
	shift := failures - 1
	if shift > 30 {
		shift = 30
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(shift))
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}

type initTask struct {
	done chan struct{}
	err  error
}

// Bootstrap runs engine initialization at most once at a time. Concurrent
// callers attach to the in-flight task instead of starting another.
type Bootstrap struct {
	init   func(ctx context.Context) error
	cfg    BootstrapConfig
	logger *zap.Logger

	mu          sync.Mutex
	state       BootstrapState
	failures    int
	attempts    int
	lastErr     error
	lastFailure time.Time
	task        *initTask
}

// NewBootstrap creates a bootstrap around init.
func NewBootstrap(init func(ctx context.Context) error, cfg BootstrapConfig, logger *zap.Logger) *Bootstrap {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultInitMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{init: init, cfg: cfg, logger: logger}
}

// Ensure returns nil once the engine is initialized. It starts an attempt
// when idle or failed below the limit, attaches to an attempt in flight and
// fails fast with ErrInitializationExhausted after MaxAttempts failures.
// Cancelling ctx abandons the wait; the attempt itself runs to completion.
func (b *Bootstrap) Ensure(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case BootstrapReady:
		b.mu.Unlock()
		return nil
	case BootstrapInFlight:
		t := b.task
		b.mu.Unlock()
		return wait(ctx, t)
	case BootstrapFailed:
		if b.failures >= b.cfg.MaxAttempts {
			err := &InitializationError{Attempt: b.failures, Exhausted: true, Err: b.lastErr}
			b.mu.Unlock()
			return err
		}
	}

	delay := calculateBackoff(b.failures, b.cfg) - time.Since(b.lastFailure)
	t := &initTask{done: make(chan struct{})}
	b.task = t
	b.state = BootstrapInFlight
	b.attempts++
	attempt := b.failures + 1
	b.mu.Unlock()

	go b.run(context.WithoutCancel(ctx), t, attempt, delay)
	return wait(ctx, t)
}

func wait(ctx context.Context, t *initTask) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bootstrap) run(ctx context.Context, t *initTask, attempt int, delay time.Duration) {
	if delay > 0 {
		b.logger.Debug("Delaying engine initialization retry",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		<-timer.C
	}

	start := time.Now()
	err := b.init(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.task = nil
	if err != nil {
		b.failures++
		b.lastErr = err
		b.lastFailure = time.Now()
		b.state = BootstrapFailed
		t.err = &InitializationError{Attempt: b.failures, Err: err}
		b.logger.Error("Engine initialization failed",
			zap.Int("attempt", b.failures),
			zap.Int("max_attempts", b.cfg.MaxAttempts),
			zap.Error(err))
	} else {
		b.state = BootstrapReady
		b.failures = 0
		b.lastErr = nil
		b.logger.Info("Engine initialized",
			zap.Int("attempt", attempt),
			zap.Duration("duration", time.Since(start)))
	}
	close(t.done)
}

// Reset re-arms retries after exhaustion. An attempt in flight keeps running
// and its result still applies, counted from zero failures.
func (b *Bootstrap) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.lastErr = nil
	b.lastFailure = time.Time{}
	if b.state == BootstrapFailed {
		b.state = BootstrapIdle
	}
	b.logger.Info("Engine bootstrap reset", zap.String("state", b.state.String()))
}

// State returns the current state and the consecutive failure count.
func (b *Bootstrap) State() (BootstrapState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failures
}

// Attempts returns the number of attempts started.
func (b *Bootstrap) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
