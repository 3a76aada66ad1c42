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

	"go.opentelemetry.io/contrib/processors/baggagecopy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pjscruggs/slogbaggage"
)

// AttributePrefix is prepended to every baggage key copied onto a record.
const AttributePrefix = "baggage."

// SpanProcessor copies baggage onto spans when they start.
//
// It only acts on span start. Its OnEnd panics with
// [slogbaggage.ErrUnsupportedHook], so register it through [WithSpanProcessors]
// or a [SpanChain], which honour [SpanProcessor.EndRequired].
type SpanProcessor struct {
	filter baggagecopy.Filter
}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

// NewSpanProcessor returns a span processor that copies the members accepted
// by filter. A nil filter accepts every member.
func NewSpanProcessor(filter baggagecopy.Filter) *SpanProcessor {
	return &SpanProcessor{filter: filter}
}

// OnStart sets one "baggage.<key>" attribute per member of the baggage in
// parent. An attribute already present under that name is overwritten.
func (p *SpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	members := filteredMembers(parent, p.filter)
	if len(members) == 0 {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(members))
	for _, m := range members {
		attrs = append(attrs, attribute.String(AttributePrefix+m.Key(), m.Value()))
	}
	s.SetAttributes(attrs...)
}

// OnEnd panics. A SpanProcessor declares through EndRequired that it never
// needs the end hook, so reaching it means the processor was wired directly
// into a tracer provider instead of through a [SpanChain].
func (p *SpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {
	panic(slogbaggage.ErrUnsupportedHook)
}

// StartRequired reports true.
func (p *SpanProcessor) StartRequired() bool { return true }

// EndRequired reports false.
func (p *SpanProcessor) EndRequired() bool { return false }

// Shutdown is a no-op.
func (p *SpanProcessor) Shutdown(context.Context) error { return nil }

// ForceFlush is a no-op.
func (p *SpanProcessor) ForceFlush(context.Context) error { return nil }

// LogProcessor copies baggage onto log records when they are emitted.
type LogProcessor struct {
	filter baggagecopy.Filter
}

var _ sdklog.Processor = (*LogProcessor)(nil)

// NewLogProcessor returns a log processor that copies the members accepted by
// filter. A nil filter accepts every member.
func NewLogProcessor(filter baggagecopy.Filter) *LogProcessor {
	return &LogProcessor{filter: filter}
}

// OnEmit adds one "baggage.<key>" attribute per member of the baggage in ctx.
// Records deduplicate keys with the last write winning, so the processor's
// value replaces an attribute of the same name.
func (p *LogProcessor) OnEmit(ctx context.Context, record *sdklog.Record) error {
	if record == nil {
		return nil
	}
	members := filteredMembers(ctx, p.filter)
	if len(members) == 0 {
		return nil
	}
	attrs := make([]otellog.KeyValue, 0, len(members))
	for _, m := range members {
		attrs = append(attrs, otellog.String(AttributePrefix+m.Key(), m.Value()))
	}
	record.AddAttributes(attrs...)
	return nil
}

// Enabled reports true for every record.
func (p *LogProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool {
	return true
}

// Shutdown is a no-op.
func (p *LogProcessor) Shutdown(context.Context) error { return nil }

// ForceFlush is a no-op.
func (p *LogProcessor) ForceFlush(context.Context) error { return nil }

// AttributesFromContext returns the baggage in ctx as prefixed attributes, in
// key order. It is meant for metric instruments; every distinct baggage value
// becomes a new time series, so only use it with low-cardinality baggage.
func AttributesFromContext(ctx context.Context) []attribute.KeyValue {
	members := filteredMembers(ctx, nil)
	if len(members) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(members))
	for _, m := range members {
		attrs = append(attrs, attribute.String(AttributePrefix+m.Key(), m.Value()))
	}
	return attrs
}

// filteredMembers returns the accepted members of the baggage in ctx sorted by
// key.
func filteredMembers(ctx context.Context, filter baggagecopy.Filter) []baggage.Member {
	all := slogbaggage.MembersFromContext(ctx)
	if len(all) == 0 {
		return nil
	}
	if filter == nil {
		filter = baggagecopy.AllowAllMembers
	}
	out := all[:0]
	for _, m := range all {
		if m.Key() != "" && filter(m) {
			out = append(out, m)
		}
	}
	return out
}
