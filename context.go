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

package slogbaggage

import (
	"context"
	"log/slog"
	"maps"
)

type contextKey int

const (
	loggerContextKey contextKey = iota
	propertiesContextKey
)

// ContextWithLogger returns a child context that stores logger so handlers can
// retrieve a request-scoped logger later in the call chain.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves a logger stored in ctx via ContextWithLogger. If no logger
// is found, slog.Default() is returned to ensure callers always receive a
// usable logger.
func Logger(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// WithProperties returns a child context whose context-property map is the
// map already stored in ctx overlaid with props. Values set in an inner scope
// shadow outer values with the same key. The caller's map is copied.
func WithProperties(ctx context.Context, props map[string]string) context.Context {
	if ctx == nil || len(props) == 0 {
		return ctx
	}
	merged := make(map[string]string, len(props))
	if outer, ok := ctx.Value(propertiesContextKey).(map[string]string); ok {
		maps.Copy(merged, outer)
	}
	for k, v := range props {
		if k == "" {
			continue
		}
		merged[k] = v
	}
	return context.WithValue(ctx, propertiesContextKey, merged)
}

// PropertiesFromContext returns a copy of the context-property map stored in
// ctx, or nil when none was set.
func PropertiesFromContext(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	props, ok := ctx.Value(propertiesContextKey).(map[string]string)
	if !ok {
		return nil
	}
	return maps.Clone(props)
}

// eventProperties returns the context-property map of ctx layered over the
// properties held by lc. Context properties shadow logger properties.
func eventProperties(ctx context.Context, lc *LoggerContext) map[string]string {
	props := PropertiesFromContext(ctx)
	if lc == nil || len(lc.Properties) == 0 {
		return props
	}
	out := maps.Clone(lc.Properties)
	maps.Copy(out, props)
	return out
}

// ContextWithBaggageProperties copies the baggage current in ctx into its
// context-property map, so events logged under ctx carry the baggage as
// properties. Keys already present in the map keep their values. A nil filter
// copies every member.
func ContextWithBaggageProperties(ctx context.Context, filter func(Member) bool) context.Context {
	bag := BaggageFromContext(ctx)
	if bag.Len() == 0 {
		return ctx
	}
	existing := PropertiesFromContext(ctx)
	add := make(map[string]string, bag.Len())
	bag.Each(func(key, value string) bool {
		if _, taken := existing[key]; taken {
			return true
		}
		if filter == nil || filter(Member{Key: key, Value: value}) {
			add[key] = value
		}
		return true
	})
	return WithProperties(ctx, add)
}
