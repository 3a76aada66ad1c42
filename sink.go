// Copyright 2026 Patrick J. Scruggs
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

package slogbaggage

import (
	"context"
	"log/slog"
)

// Sink consumes finished snapshots. Deliver is called synchronously on the
// emitting goroutine; a sink that needs to do slow work should queue the
// snapshot (see the slogbaggageasync package). Sinks must be comparable,
// which in practice means pointer receivers.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, snap *Snapshot) error
}

// Flusher is implemented by sinks that buffer output.
type Flusher interface {
	Flush(ctx context.Context) error
}

type funcSink struct {
	name string
	fn   func(context.Context, *Snapshot) error
}

// NewSinkFunc adapts fn into a Sink named name.
func NewSinkFunc(name string, fn func(context.Context, *Snapshot) error) Sink {
	return &funcSink{name: name, fn: fn}
}

// Name implements Sink.
func (s *funcSink) Name() string { return s.name }

// Deliver implements Sink.
func (s *funcSink) Deliver(ctx context.Context, snap *Snapshot) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, snap)
}

// HandlerSink forwards snapshots to a slog.Handler, so any slog handler
// (text, JSON or a Cloud Logging handler) can act as a console or file sink.
type HandlerSink struct {
	name    string
	handler slog.Handler
}

// NewHandlerSink wraps h.
func NewHandlerSink(name string, h slog.Handler) *HandlerSink {
	return &HandlerSink{name: name, handler: h}
}

// Name implements Sink.
func (s *HandlerSink) Name() string { return s.name }

// Deliver implements Sink using [Snapshot.Record].
func (s *HandlerSink) Deliver(ctx context.Context, snap *Snapshot) error {
	if s.handler == nil || !s.handler.Enabled(ctx, snap.Level()) {
		return nil
	}
	return s.handler.Handle(ctx, snap.Record())
}

// Close closes the wrapped handler when it exposes Close.
func (s *HandlerSink) Close() error {
	if closer := closerFor(s.handler); closer != nil {
		return closer()
	}
	return nil
}

// closerFor extracts a Close function from v when available.
func closerFor(v any) func() error {
	type errorCloser interface {
		Close() error
	}

	if c, ok := v.(errorCloser); ok {
		return c.Close
	}
	if c, ok := v.(interface{ Close() }); ok {
		return func() error {
			c.Close()
			return nil
		}
	}
	return nil
}
