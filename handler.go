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
	"strings"
)

// HandlerOption configures a [Handler].
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	levelVar      *slog.LevelVar
	loggerName    *string
	loggerContext *LoggerContext
	noContext     bool
	detectCtx     context.Context
}

// WithHandlerLevelVar shares levelVar with the handler so the minimum level
// can be changed at runtime. Its current value is replaced by the configured
// level when the handler is built.
func WithHandlerLevelVar(levelVar *slog.LevelVar) HandlerOption {
	return func(o *handlerOptions) {
		if levelVar != nil {
			o.levelVar = levelVar
		}
	}
}

// WithHandlerLoggerName overrides the logger name stamped on events.
func WithHandlerLoggerName(name string) HandlerOption {
	return func(o *handlerOptions) {
		o.loggerName = &name
	}
}

// WithHandlerLoggerContext sets the logger context carried by events. By
// default the handler uses [DefaultLoggerContext] for the logger name.
func WithHandlerLoggerContext(lc *LoggerContext) HandlerOption {
	return func(o *handlerOptions) {
		o.loggerContext = lc
		o.noContext = lc == nil
	}
}

// WithHandlerRuntimeProperties builds the default logger context from
// [DetectRuntimeProperties], so events also carry the project, zone and
// instance read from the metadata server. ctx bounds the lookups made while
// the handler is built.
func WithHandlerRuntimeProperties(ctx context.Context) HandlerOption {
	return func(o *handlerOptions) {
		if ctx == nil {
			ctx = context.Background()
		}
		o.detectCtx = ctx
	}
}

// Handler is a slog.Handler that converts records into events and passes them
// to an [Interceptor]. Record attributes become structured pairs, with group
// names joined by ".". The context-property map is [PropertiesFromContext]
// layered over the logger context's properties, so runtime properties such as
// host.name reach every sink unless the context shadows them. The first attribute holding an error becomes the
// event error instead of a structured pair.
type Handler struct {
	interceptor   *Interceptor
	levelVar      *slog.LevelVar
	loggerName    string
	loggerContext *LoggerContext

	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler builds a slog front-end for icpt.
//
// Example:
//
//	logger := slog.New(slogbaggage.NewHandler(icpt))
//	ctx := slogbaggage.WithProperties(ctx, map[string]string{"tenant": "acme"})
//	logger.InfoContext(ctx, "hello", "someKey", 93)
func NewHandler(icpt *Interceptor, opts ...HandlerOption) *Handler {
	builder := &handlerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(builder)
		}
	}

	cfg := icpt.Config()
	name := cfg.LoggerName
	if builder.loggerName != nil {
		name = *builder.loggerName
	}

	lc := builder.loggerContext
	if lc == nil && !builder.noContext {
		if builder.detectCtx != nil {
			lc = NewLoggerContext(name, DetectRuntimeProperties(builder.detectCtx))
		} else {
			lc = DefaultLoggerContext(name)
		}
	}

	levelVar := builder.levelVar
	if levelVar == nil {
		levelVar = new(slog.LevelVar)
	}
	levelVar.Set(cfg.Level)

	return &Handler{
		interceptor:   icpt,
		levelVar:      levelVar,
		loggerName:    name,
		loggerContext: lc,
	}
}

// Interceptor returns the interceptor fed by h.
func (h *Handler) Interceptor() *Interceptor { return h.interceptor }

// SetLevel changes the minimum level accepted by h and every handler derived
// from it.
func (h *Handler) SetLevel(level slog.Level) { h.levelVar.Set(level) }

// Level returns the current minimum level.
func (h *Handler) Level() slog.Level { return h.levelVar.Level() }

// LevelVar exposes the shared level variable.
func (h *Handler) LevelVar() *slog.LevelVar { return h.levelVar }

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.levelVar.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ev := NewEvent(r.Level, r.Message).
		SetTime(r.Time).
		SetCaller(CallerFromPC(r.PC)).
		SetLoggerName(h.loggerName).
		SetLoggerContext(h.loggerContext).
		SetProperties(eventProperties(ctx, h.loggerContext))

	for _, a := range h.attrs {
		addPair(ev, a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(prefix, a, func(flat slog.Attr) { addPair(ev, flat) })
		return true
	})

	return h.interceptor.Append(ctx, ev)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := h.clone()
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		flattenAttr(prefix, a, func(flat slog.Attr) { clone.attrs = append(clone.attrs, flat) })
	}
	return clone
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

// Close closes the interceptor and its sinks.
func (h *Handler) Close() error {
	return h.interceptor.Close()
}

func (h *Handler) clone() *Handler {
	return &Handler{
		interceptor:   h.interceptor,
		levelVar:      h.levelVar,
		loggerName:    h.loggerName,
		loggerContext: h.loggerContext,
		attrs:         append([]slog.Attr(nil), h.attrs...),
		groups:        append([]string(nil), h.groups...),
	}
}

// flattenAttr passes a to emit, expanding groups into dotted keys. Empty
// attrs are dropped and groups with an empty key are inlined, as slog handlers
// do.
func flattenAttr(prefix string, a slog.Attr, emit func(slog.Attr)) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return
		}
		next := prefix
		if a.Key != "" {
			next = qualify(prefix, a.Key)
		}
		for _, child := range group {
			flattenAttr(next, child, emit)
		}
		return
	}
	emit(slog.Attr{Key: qualify(prefix, a.Key), Value: a.Value})
}

// addPair records a as a structured pair, or as the event error when it is the
// first error-valued attribute.
func addPair(ev *Event, a slog.Attr) {
	if ev.Err() == nil {
		if err := extractErrorFromValue(a.Value); err != nil {
			ev.SetErr(err)
			return
		}
	}
	ev.AddAttrs(a)
}

// extractErrorFromValue unwraps an error from a slog.Value when possible.
func extractErrorFromValue(v slog.Value) error {
	v = v.Resolve()
	if v.Kind() != slog.KindAny {
		return nil
	}
	if err, ok := v.Any().(error); ok {
		return err
	}
	return nil
}

func qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
