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
	"log/slog"
	"maps"
	"runtime"
	"time"
)

// Caller identifies where a log event originated.
type Caller struct {
	PC       uintptr
	Function string
	File     string
	Line     int
}

// CallerFromPC resolves a program counter such as slog.Record.PC.
func CallerFromPC(pc uintptr) Caller {
	if pc == 0 {
		return Caller{}
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return Caller{
		PC:       pc,
		Function: frame.Function,
		File:     frame.File,
		Line:     frame.Line,
	}
}

// IsZero reports whether no caller information is present.
func (c Caller) IsZero() bool {
	return c.PC == 0 && c.Function == "" && c.File == "" && c.Line == 0
}

// LoggerContext describes the logging front-end that produced an event.
type LoggerContext struct {
	Name       string
	BirthTime  time.Time
	Properties map[string]string
}

// NewLoggerContext returns a descriptor born now.
func NewLoggerContext(name string, props map[string]string) *LoggerContext {
	return &LoggerContext{
		Name:       name,
		BirthTime:  time.Now(),
		Properties: maps.Clone(props),
	}
}

// clone deep-copies lc.
func (lc *LoggerContext) clone() *LoggerContext {
	if lc == nil {
		return nil
	}
	return &LoggerContext{
		Name:       lc.Name,
		BirthTime:  lc.BirthTime,
		Properties: maps.Clone(lc.Properties),
	}
}

// EventReader is the read side of a log event. Both the mutable [Event] and
// the immutable [Snapshot] implement it.
type EventReader interface {
	Time() time.Time
	Level() slog.Level
	Message() string
	// Args returns the positional arguments in order.
	Args() []any
	// KeyValues returns the structured key/value pairs in order.
	KeyValues() []slog.Attr
	// Properties returns the context-property map.
	Properties() map[string]string
	Caller() Caller
	LoggerName() string
	LoggerContext() *LoggerContext
	Err() error
}

// Event is a mutable log event owned by the call path that builds it. Pass it
// to an [Interceptor] once; sinks only ever see the resulting [Snapshot].
type Event struct {
	time          time.Time
	level         slog.Level
	message       string
	args          []any
	keyValues     []slog.Attr
	properties    map[string]string
	caller        Caller
	loggerName    string
	loggerContext *LoggerContext
	err           error
}

var _ EventReader = (*Event)(nil)

// NewEvent returns an event stamped with the current time.
func NewEvent(level slog.Level, msg string) *Event {
	return &Event{time: time.Now(), level: level, message: msg}
}

// Time implements EventReader.
func (e *Event) Time() time.Time { return e.time }

// Level implements EventReader.
func (e *Event) Level() slog.Level { return e.level }

// Message implements EventReader.
func (e *Event) Message() string { return e.message }

// Args implements EventReader.
func (e *Event) Args() []any { return e.args }

// KeyValues implements EventReader.
func (e *Event) KeyValues() []slog.Attr { return e.keyValues }

// Properties implements EventReader.
func (e *Event) Properties() map[string]string { return e.properties }

// Caller implements EventReader.
func (e *Event) Caller() Caller { return e.caller }

// LoggerName implements EventReader.
func (e *Event) LoggerName() string { return e.loggerName }

// LoggerContext implements EventReader.
func (e *Event) LoggerContext() *LoggerContext { return e.loggerContext }

// Err implements EventReader.
func (e *Event) Err() error { return e.err }

// SetTime overrides the event timestamp.
func (e *Event) SetTime(t time.Time) *Event {
	e.time = t
	return e
}

// SetMessage replaces the message template.
func (e *Event) SetMessage(msg string) *Event {
	e.message = msg
	return e
}

// AddArgs appends positional arguments.
func (e *Event) AddArgs(args ...any) *Event {
	e.args = append(e.args, args...)
	return e
}

// AddKeyValue appends a structured pair.
func (e *Event) AddKeyValue(key string, value any) *Event {
	e.keyValues = append(e.keyValues, slog.Any(key, value))
	return e
}

// AddAttrs appends structured pairs.
func (e *Event) AddAttrs(attrs ...slog.Attr) *Event {
	e.keyValues = append(e.keyValues, attrs...)
	return e
}

// SetProperties replaces the context-property map. The map is not copied;
// the interceptor copies it when it builds a snapshot.
func (e *Event) SetProperties(props map[string]string) *Event {
	e.properties = props
	return e
}

// PutProperty stores a single context property.
func (e *Event) PutProperty(key, value string) *Event {
	if e.properties == nil {
		e.properties = make(map[string]string)
	}
	e.properties[key] = value
	return e
}

// SetCaller records the origin of the event.
func (e *Event) SetCaller(c Caller) *Event {
	e.caller = c
	return e
}

// SetLoggerName sets the name of the emitting logger.
func (e *Event) SetLoggerName(name string) *Event {
	e.loggerName = name
	return e
}

// SetLoggerContext attaches the logger-context descriptor.
func (e *Event) SetLoggerContext(lc *LoggerContext) *Event {
	e.loggerContext = lc
	return e
}

// SetErr attaches an error to the event.
func (e *Event) SetErr(err error) *Event {
	e.err = err
	return e
}
