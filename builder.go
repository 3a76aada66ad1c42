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
	"maps"
	"runtime"
)

// Appender accepts finished events. [Interceptor] implements it.
type Appender interface {
	Append(ctx context.Context, ev EventReader) error
}

var _ Appender = (*Interceptor)(nil)

// EventBuilder assembles an event with positional "{}" arguments and
// structured pairs, for code written against fluent logging APIs.
//
//	err := slogbaggage.At(slog.LevelInfo).
//		Message("user {} logged in").
//		Arg(user).
//		KeyValue("someKey", 93).
//		Log(ctx, icpt)
type EventBuilder struct {
	ev    *Event
	props map[string]string
}

// At starts an event at level.
func At(level slog.Level) *EventBuilder {
	return &EventBuilder{ev: NewEvent(level, "")}
}

// Message sets the message template.
func (b *EventBuilder) Message(msg string) *EventBuilder {
	b.ev.SetMessage(msg)
	return b
}

// Arg appends positional arguments.
func (b *EventBuilder) Arg(args ...any) *EventBuilder {
	b.ev.AddArgs(args...)
	return b
}

// KeyValue appends a structured pair.
func (b *EventBuilder) KeyValue(key string, value any) *EventBuilder {
	b.ev.AddKeyValue(key, value)
	return b
}

// Err attaches err as the event error.
func (b *EventBuilder) Err(err error) *EventBuilder {
	b.ev.SetErr(err)
	return b
}

// Property sets a context property on this event only. It shadows a property
// of the same key found in the context passed to Log.
func (b *EventBuilder) Property(key, value string) *EventBuilder {
	if key == "" {
		return b
	}
	if b.props == nil {
		b.props = make(map[string]string)
	}
	b.props[key] = value
	return b
}

// Logger sets the logger name and context.
func (b *EventBuilder) Logger(name string, lc *LoggerContext) *EventBuilder {
	b.ev.SetLoggerName(name).SetLoggerContext(lc)
	return b
}

// Event returns the event built so far. The caller location is only recorded
// by Log.
func (b *EventBuilder) Event() *Event { return b.ev }

// Log records the caller of Log, fills the context-property map from ctx over
// the logger context's properties and hands the event to app.
func (b *EventBuilder) Log(ctx context.Context, app Appender) error {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	b.ev.SetCaller(CallerFromPC(pcs[0]))

	props := eventProperties(ctx, b.ev.LoggerContext())
	if len(b.props) > 0 {
		if props == nil {
			props = make(map[string]string, len(b.props))
		}
		maps.Copy(props, b.props)
	}
	b.ev.SetProperties(props)

	if ctx == nil {
		ctx = context.Background()
	}
	return app.Append(ctx, b.ev)
}
