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

package slogbaggageotel

import (
	"context"
	"errors"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// StartRequirer is implemented by span processors that can declare they do
// not need OnStart.
type StartRequirer interface {
	StartRequired() bool
}

// EndRequirer is implemented by span processors that can declare they do not
// need OnEnd.
type EndRequirer interface {
	EndRequired() bool
}

// SpanChain runs span processors in order. OnStart and OnEnd skip members
// that declare the hook unneeded; members that declare nothing receive both.
type SpanChain struct {
	procs []sdktrace.SpanProcessor
}

var (
	_ sdktrace.SpanProcessor = (*SpanChain)(nil)
	_ StartRequirer          = (*SpanChain)(nil)
	_ EndRequirer            = (*SpanChain)(nil)
)

// NewSpanChain returns a chain over procs. Nil entries are ignored.
func NewSpanChain(procs ...sdktrace.SpanProcessor) *SpanChain {
	c := &SpanChain{procs: make([]sdktrace.SpanProcessor, 0, len(procs))}
	for _, p := range procs {
		if p != nil {
			c.procs = append(c.procs, p)
		}
	}
	return c
}

// Len reports the number of processors in the chain.
func (c *SpanChain) Len() int { return len(c.procs) }

// OnStart implements sdktrace.SpanProcessor.
func (c *SpanChain) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	for _, p := range c.procs {
		if wantsStart(p) {
			p.OnStart(parent, s)
		}
	}
}

// OnEnd implements sdktrace.SpanProcessor.
func (c *SpanChain) OnEnd(s sdktrace.ReadOnlySpan) {
	for _, p := range c.procs {
		if wantsEnd(p) {
			p.OnEnd(s)
		}
	}
}

// StartRequired reports whether any member needs OnStart.
func (c *SpanChain) StartRequired() bool {
	for _, p := range c.procs {
		if wantsStart(p) {
			return true
		}
	}
	return false
}

// EndRequired reports whether any member needs OnEnd.
func (c *SpanChain) EndRequired() bool {
	for _, p := range c.procs {
		if wantsEnd(p) {
			return true
		}
	}
	return false
}

// Shutdown shuts down every member and joins their errors.
func (c *SpanChain) Shutdown(ctx context.Context) error {
	var errs []error
	for _, p := range c.procs {
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForceFlush flushes every member and joins their errors.
func (c *SpanChain) ForceFlush(ctx context.Context) error {
	var errs []error
	for _, p := range c.procs {
		if err := p.ForceFlush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func wantsStart(p sdktrace.SpanProcessor) bool {
	if r, ok := p.(StartRequirer); ok {
		return r.StartRequired()
	}
	return true
}

func wantsEnd(p sdktrace.SpanProcessor) bool {
	if r, ok := p.(EndRequirer); ok {
		return r.EndRequired()
	}
	return true
}

// WithSpanProcessors registers procs with a tracer provider as one
// [SpanChain], preserving their order.
func WithSpanProcessors(procs ...sdktrace.SpanProcessor) sdktrace.TracerProviderOption {
	return sdktrace.WithSpanProcessor(NewSpanChain(procs...))
}

// WithLogProcessors returns one provider option per processor, in order. The
// log SDK already hands every processor the same record in registration order.
func WithLogProcessors(procs ...sdklog.Processor) []sdklog.LoggerProviderOption {
	opts := make([]sdklog.LoggerProviderOption, 0, len(procs))
	for _, p := range procs {
		if p != nil {
			opts = append(opts, sdklog.WithProcessor(p))
		}
	}
	return opts
}
