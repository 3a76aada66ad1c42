// Copyright 2025-2026 Patrick J. Scruggs
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

package slogbaggageasync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pjscruggs/slogbaggage"
)

const (
	defaultQueueSize = 1024

	envAsyncEnabled       = "SLOGBAGGAGE_ASYNC_ENABLED"
	envAsyncQueueSize     = "SLOGBAGGAGE_ASYNC_QUEUE_SIZE"
	envAsyncDropMode      = "SLOGBAGGAGE_ASYNC_DROP_MODE"
	envAsyncWorkers       = "SLOGBAGGAGE_ASYNC_WORKERS"
	envAsyncBatchSize     = "SLOGBAGGAGE_ASYNC_BATCH_SIZE"
	envAsyncFlushInterval = "SLOGBAGGAGE_ASYNC_FLUSH_INTERVAL"
	envAsyncFlushTimeout  = "SLOGBAGGAGE_ASYNC_FLUSH_TIMEOUT"
)

// DropMode controls how the sink behaves when the queue is full.
type DropMode int

const (
	// DropModeBlock blocks the caller when the queue is full.
	DropModeBlock DropMode = iota
	// DropModeDropNewest drops the incoming snapshot when the queue is full.
	DropModeDropNewest
	// DropModeDropOldest drops the oldest queued snapshot when the queue is full.
	DropModeDropOldest
)

// ErrFlushTimeout indicates Close returned before the queue was fully drained.
var ErrFlushTimeout = errors.New("slogbaggageasync: flush timeout")

// DropHandler observes dropped snapshots.
type DropHandler func(ctx context.Context, snap *slogbaggage.Snapshot)

// Config controls async sink behaviour.
type Config struct {
	Enabled       bool
	QueueSize     int
	WorkerCount   int
	BatchSize     int
	DropMode      DropMode
	OnDrop        DropHandler
	ErrorWriter   io.Writer
	FlushInterval time.Duration
	FlushTimeout  time.Duration
	Metrics       *slogbaggage.Metrics

	workerStarter func(func())
}

// Option customizes async sink configuration.
type Option func(*Config)

// WithEnabled toggles the async wrapper on or off.
func WithEnabled(enabled bool) Option {
	return func(cfg *Config) {
		cfg.Enabled = enabled
	}
}

// WithQueueSize adjusts the queue capacity. Zero yields an unbuffered queue.
func WithQueueSize(size int) Option {
	return func(cfg *Config) {
		cfg.QueueSize = size
	}
}

// WithWorkerCount configures the number of worker goroutines. With more than
// one worker, snapshots may reach the inner sink out of order.
func WithWorkerCount(count int) Option {
	return func(cfg *Config) {
		cfg.WorkerCount = count
	}
}

// WithBatchSize sets how many queued snapshots a worker drains per wake-up.
// Values less than 1 default to 1.
func WithBatchSize(size int) Option {
	return func(cfg *Config) {
		cfg.BatchSize = size
	}
}

// WithDropMode sets the queue overflow strategy.
func WithDropMode(mode DropMode) Option {
	return func(cfg *Config) {
		cfg.DropMode = mode
	}
}

// WithOnDrop registers a callback invoked when a snapshot is dropped.
func WithOnDrop(fn DropHandler) Option {
	return func(cfg *Config) {
		cfg.OnDrop = fn
	}
}

// WithErrorWriter directs worker errors and panic reports to w. Use nil to
// silence error reporting.
func WithErrorWriter(w io.Writer) Option {
	return func(cfg *Config) {
		cfg.ErrorWriter = w
	}
}

// WithFlushInterval flushes an inner sink implementing
// [slogbaggage.Flusher] every interval. Zero disables periodic flushing.
func WithFlushInterval(interval time.Duration) Option {
	return func(cfg *Config) {
		cfg.FlushInterval = interval
	}
}

// WithFlushTimeout limits how long Close waits for workers to finish.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(cfg *Config) {
		cfg.FlushTimeout = timeout
	}
}

// WithMetrics counts dropped snapshots in m under the inner sink's name.
func WithMetrics(m *slogbaggage.Metrics) Option {
	return func(cfg *Config) {
		cfg.Metrics = m
	}
}

// WithEnv overlays configuration from environment variables.
func WithEnv() Option {
	return func(cfg *Config) {
		applyEnv(cfg)
	}
}

// Sink is an async [slogbaggage.Sink] wrapper. Snapshots are immutable, so
// they are queued as-is and delivered to the inner sink by worker goroutines.
type Sink struct {
	inner    slogbaggage.Sink
	dropMode DropMode
	onDrop   DropHandler
	metrics  *slogbaggage.Metrics
	state    *asyncState
}

var (
	_ slogbaggage.Sink    = (*Sink)(nil)
	_ slogbaggage.Flusher = (*Sink)(nil)
)

type asyncState struct {
	queue        chan queuedSnapshot
	wg           sync.WaitGroup
	closed       atomic.Bool
	flushTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
	closer       func() error
	flusher      slogbaggage.Flusher
	stopTicker   chan struct{}
	tickerDone   chan struct{}
	errWriter    io.Writer
}

type queuedSnapshot struct {
	ctx  context.Context
	snap *slogbaggage.Snapshot
}

// Wrap returns an async sink around inner unless disabled, in which case inner
// is returned unchanged.
func Wrap(inner slogbaggage.Sink, opts ...Option) slogbaggage.Sink {
	cfg := buildConfig(opts)
	if !cfg.Enabled {
		return inner
	}
	return newSink(inner, cfg)
}

// newSink constructs a Sink and spins up workers according to cfg.
func newSink(inner slogbaggage.Sink, cfg Config) *Sink {
	state := &asyncState{
		queue:        make(chan queuedSnapshot, cfg.QueueSize),
		flushTimeout: cfg.FlushTimeout,
		closer:       closerFor(inner),
		errWriter:    cfg.ErrorWriter,
	}
	state.flusher, _ = inner.(slogbaggage.Flusher)

	logError := func(format string, args ...any) {
		if state.errWriter == nil {
			return
		}
		_, _ = fmt.Fprintf(state.errWriter, format, args...)
	}

	start := func() {
		workerCount := cfg.WorkerCount
		batchSize := cfg.BatchSize
		state.wg.Add(workerCount)
		deliver := func(item queuedSnapshot) {
			defer func() {
				if r := recover(); r != nil {
					logError("slogbaggageasync: recovered panic from sink %q: %v\n", inner.Name(), r)
				}
			}()

			if err := inner.Deliver(item.ctx, item.snap); err != nil {
				logError("slogbaggageasync: sink %q error: %v\n", inner.Name(), err)
			}
		}

		for range workerCount {
			go func() {
				defer state.wg.Done()
				for item := range state.queue {
					deliver(item)
				drain:
					for n := 1; n < batchSize; n++ {
						select {
						case next, ok := <-state.queue:
							if !ok {
								return
							}
							deliver(next)
						default:
							break drain
						}
					}
				}
			}()
		}
	}

	if cfg.workerStarter != nil {
		cfg.workerStarter(start)
	} else {
		start()
	}

	if state.flusher != nil && cfg.FlushInterval > 0 {
		state.stopTicker = make(chan struct{})
		state.tickerDone = make(chan struct{})
		go func() {
			defer close(state.tickerDone)
			ticker := time.NewTicker(cfg.FlushInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := state.flusher.Flush(context.Background()); err != nil {
						logError("slogbaggageasync: flush sink %q: %v\n", inner.Name(), err)
					}
				case <-state.stopTicker:
					return
				}
			}
		}()
	}

	return &Sink{
		inner:    inner,
		dropMode: cfg.DropMode,
		onDrop:   cfg.OnDrop,
		metrics:  cfg.Metrics,
		state:    state,
	}
}

// Name reports the inner sink's name.
func (s *Sink) Name() string { return s.inner.Name() }

// Deliver enqueues snap for async delivery. The context's values are kept but
// its cancellation is not, since delivery happens after the caller returns.
func (s *Sink) Deliver(ctx context.Context, snap *slogbaggage.Snapshot) error {
	if ctx == nil {
		ctx = context.Background()
	}
	item := queuedSnapshot{ctx: context.WithoutCancel(ctx), snap: snap}
	if s.state.closed.Load() {
		s.dropped(item)
		return nil
	}
	return s.enqueue(item)
}

// Flush forwards to the inner sink when it implements [slogbaggage.Flusher].
// Queued snapshots are not waited for.
func (s *Sink) Flush(ctx context.Context) error {
	if s.state.flusher == nil {
		return nil
	}
	return s.state.flusher.Flush(ctx)
}

func (s *Sink) dropped(item queuedSnapshot) {
	s.metrics.IncDropped(s.inner.Name())
	if s.onDrop != nil && item.snap != nil {
		s.onDrop(item.ctx, item.snap)
	}
}

// evictOldest removes the head of queue and reports it as dropped. Nothing is
// counted when workers drained the queue first.
func (s *Sink) evictOldest(queue chan queuedSnapshot) bool {
	select {
	case evicted := <-queue:
		s.dropped(evicted)
		return true
	default:
		return false
	}
}

// enqueue routes a snapshot into the queue respecting drop policies and
// recovers from closed channels.
func (s *Sink) enqueue(item queuedSnapshot) (err error) {
	defer func() {
		if recover() != nil {
			s.dropped(item)
			err = nil
		}
	}()

	queue := s.state.queue

	switch s.dropMode {
	case DropModeDropNewest:
		select {
		case queue <- item:
		default:
			s.dropped(item)
		}
	case DropModeDropOldest:
		select {
		case queue <- item:
		default:
			s.evictOldest(queue)
			select {
			case queue <- item:
			default:
				s.dropped(item)
			}
		}
	default:
		queue <- item
	}
	return nil
}

// Close drains the queue, flushes and then closes the inner sink if it
// exposes Close. It runs once; later calls return the first result.
func (s *Sink) Close() error {
	if s.state == nil {
		return nil
	}

	s.state.closeOnce.Do(func() {
		if s.state.closed.CompareAndSwap(false, true) {
			close(s.state.queue)
		}
		if s.state.stopTicker != nil {
			close(s.state.stopTicker)
			<-s.state.tickerDone
		}

		done := make(chan struct{})
		go func() {
			s.state.wg.Wait()
			close(done)
		}()

		if s.state.flushTimeout > 0 {
			select {
			case <-done:
			case <-time.After(s.state.flushTimeout):
				s.state.closeErr = ErrFlushTimeout
			}
		} else {
			<-done
		}

		var errs []error
		if s.state.closeErr != nil {
			errs = append(errs, s.state.closeErr)
		}
		if s.state.flusher != nil && s.state.closeErr == nil {
			if err := s.state.flusher.Flush(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
		if s.state.closer != nil {
			if err := s.state.closer(); err != nil {
				errs = append(errs, err)
			}
		}
		s.state.closeErr = errors.Join(errs...)
	})

	return s.state.closeErr
}

// closerFor extracts a Close function from inner when available.
func closerFor(inner slogbaggage.Sink) func() error {
	type errorCloser interface {
		Close() error
	}

	if c, ok := inner.(errorCloser); ok {
		return c.Close
	}
	if c, ok := inner.(interface{ Close() }); ok {
		return func() error {
			c.Close()
			return nil
		}
	}
	return nil
}

// buildConfig applies options with defaults and clamps invalid values.
func buildConfig(opts []Option) Config {
	cfg := Config{
		Enabled:     true,
		QueueSize:   defaultQueueSize,
		WorkerCount: 1,
		BatchSize:   1,
		DropMode:    DropModeBlock,
		ErrorWriter: os.Stderr,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.QueueSize < 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval < 0 {
		cfg.FlushInterval = 0
	}

	return cfg
}

// applyEnv overlays configuration from environment variables.
func applyEnv(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv(envAsyncEnabled)); raw != "" {
		if enabled, ok := parseAsyncBool(raw); ok {
			cfg.Enabled = enabled
		}
	}

	if raw := strings.TrimSpace(os.Getenv(envAsyncQueueSize)); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			cfg.QueueSize = size
		}
	}

	if raw := strings.TrimSpace(os.Getenv(envAsyncWorkers)); raw != "" {
		if workers, err := strconv.Atoi(raw); err == nil {
			cfg.WorkerCount = workers
		}
	}

	if raw := strings.TrimSpace(os.Getenv(envAsyncBatchSize)); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			cfg.BatchSize = size
		}
	}

	if raw := strings.TrimSpace(os.Getenv(envAsyncDropMode)); raw != "" {
		switch strings.ToLower(raw) {
		case "block":
			cfg.DropMode = DropModeBlock
		case "drop_newest", "drop-newest":
			cfg.DropMode = DropModeDropNewest
		case "drop_oldest", "drop-oldest":
			cfg.DropMode = DropModeDropOldest
		}
	}

	if raw := strings.TrimSpace(os.Getenv(envAsyncFlushInterval)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.FlushInterval = d
		}
	}

	if raw := strings.TrimSpace(os.Getenv(envAsyncFlushTimeout)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.FlushTimeout = d
		}
	}
}

// parseAsyncBool accepts yes/on/1/true and no/off/0/false tokens.
func parseAsyncBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "on":
		return true, true
	case "0", "f", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
