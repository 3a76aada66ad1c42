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

package slogbaggagepubsub

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	googclientPrefix = "googclient_"
	baggageKey       = "baggage"
)

// Inject writes the baggage and trace context current in ctx into
// msg.Attributes, creating the map when something is written.
func Inject(ctx context.Context, msg *Message, opts ...Option) {
	if msg == nil {
		return
	}
	msg.Attributes = InjectAttributes(ctx, msg.Attributes, opts...)
}

// InjectAttributes writes the baggage and trace context current in ctx into
// attrs and returns the map. A nil attrs is only allocated when the
// propagator emits at least one key.
func InjectAttributes(ctx context.Context, attrs map[string]string, opts ...Option) map[string]string {
	return injectAttributes(ctx, attrs, applyOptions(opts))
}

func injectAttributes(ctx context.Context, attrs map[string]string, cfg *config) map[string]string {
	if ctx == nil {
		return attrs
	}
	cfg.propagator().Inject(ctx, lazyCarrier{attrs: &attrs, allowBaggage: cfg.propagateBaggage})
	if cfg.googClientInjection {
		propagation.TraceContext{}.Inject(ctx, lazyCarrier{attrs: &attrs, prefix: googclientPrefix})
	}
	return attrs
}

// Extract reads baggage and trace context from msg.Attributes into ctx and
// returns the updated context plus the extracted span context.
func Extract(ctx context.Context, msg *Message, opts ...Option) (context.Context, trace.SpanContext) {
	if msg == nil {
		if ctx == nil {
			ctx = context.Background()
		}
		return ctx, trace.SpanContextFromContext(ctx)
	}
	return ExtractAttributes(ctx, msg.Attributes, opts...)
}

// ExtractAttributes reads baggage and trace context from attrs into ctx. The
// returned span context is the remote parent found in attrs, or the span
// context already on ctx when attrs carry none.
func ExtractAttributes(ctx context.Context, attrs map[string]string, opts ...Option) (context.Context, trace.SpanContext) {
	return extractAttributes(ctx, attrs, applyOptions(opts))
}

func extractAttributes(ctx context.Context, attrs map[string]string, cfg *config) (context.Context, trace.SpanContext) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(attrs) == 0 {
		return ctx, trace.SpanContextFromContext(ctx)
	}

	ctx = cfg.propagator().Extract(ctx, newExtractCarrier(attrs, "", cfg.propagateBaggage, cfg.caseInsensitiveExtraction))
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() && sc.IsRemote() {
		return ctx, sc
	}

	if cfg.googClientExtraction {
		fallback := propagation.TraceContext{}.Extract(ctx, newExtractCarrier(attrs, googclientPrefix, false, cfg.caseInsensitiveExtraction))
		if fsc := trace.SpanContextFromContext(fallback); fsc.IsValid() {
			return fallback, fsc
		}
	}
	return ctx, sc
}

func newExtractCarrier(attrs map[string]string, prefix string, allowBaggage, caseInsensitive bool) propagation.TextMapCarrier {
	if caseInsensitive {
		return &caseInsensitiveCarrier{attrs: attrs, prefix: prefix, allowBaggage: allowBaggage}
	}
	return strictCarrier{attrs: attrs, prefix: prefix, allowBaggage: allowBaggage}
}

// lazyCarrier allocates the attribute map on first Set.
type lazyCarrier struct {
	attrs        *map[string]string
	prefix       string
	allowBaggage bool
}

func (c lazyCarrier) Get(key string) string {
	if c.attrs == nil || *c.attrs == nil {
		return ""
	}
	key = strings.ToLower(key)
	if !c.allowBaggage && key == baggageKey {
		return ""
	}
	return (*c.attrs)[c.prefix+key]
}

func (c lazyCarrier) Set(key, value string) {
	if c.attrs == nil {
		return
	}
	key = strings.ToLower(key)
	if !c.allowBaggage && key == baggageKey {
		return
	}
	if *c.attrs == nil {
		*c.attrs = make(map[string]string)
	}
	(*c.attrs)[c.prefix+key] = value
}

func (c lazyCarrier) Keys() []string {
	if c.attrs == nil {
		return nil
	}
	return mapKeys(*c.attrs)
}

// strictCarrier matches keys exactly.
type strictCarrier struct {
	attrs        map[string]string
	prefix       string
	allowBaggage bool
}

func (c strictCarrier) Get(key string) string {
	if !c.allowBaggage && strings.EqualFold(key, baggageKey) {
		return ""
	}
	return c.attrs[c.prefix+key]
}

func (c strictCarrier) Set(key, value string) {
	if c.attrs == nil || (!c.allowBaggage && strings.EqualFold(key, baggageKey)) {
		return
	}
	c.attrs[c.prefix+key] = value
}

func (c strictCarrier) Keys() []string { return mapKeys(c.attrs) }

// caseInsensitiveCarrier folds attribute keys to lower case on lookup.
type caseInsensitiveCarrier struct {
	attrs        map[string]string
	prefix       string
	allowBaggage bool
	lower        map[string]string
}

func (c *caseInsensitiveCarrier) Get(key string) string {
	lowerKey := strings.ToLower(key)
	if !c.allowBaggage && lowerKey == baggageKey {
		return ""
	}
	full := strings.ToLower(c.prefix) + lowerKey
	if value, ok := c.attrs[full]; ok {
		return value
	}
	if c.lower == nil {
		c.lower = make(map[string]string, len(c.attrs))
		for k, v := range c.attrs {
			c.lower[strings.ToLower(k)] = v
		}
	}
	return c.lower[full]
}

func (c *caseInsensitiveCarrier) Set(key, value string) {
	lowerKey := strings.ToLower(key)
	if c.attrs == nil || (!c.allowBaggage && lowerKey == baggageKey) {
		return
	}
	c.attrs[strings.ToLower(c.prefix)+lowerKey] = value
}

func (c *caseInsensitiveCarrier) Keys() []string { return mapKeys(c.attrs) }

func mapKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
