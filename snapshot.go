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
	"bytes"
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"time"
)

const (
	// PropertiesKey is the attribute group under which snapshots expose their
	// context-property map when rendered as a slog record or JSON.
	PropertiesKey = "properties"
	// ArgsKey holds positional arguments that are not key/value arguments.
	ArgsKey = "args"
	// LoggerKey holds the logger name.
	LoggerKey = "logger"
	// ErrorKey holds the event error.
	ErrorKey = "error"
)

// Snapshot is the immutable form of a log event handed to sinks. Every
// accessor returns a copy, so a sink may retain a Snapshot, process it on
// another goroutine or serialize it long after the emitting call returned.
type Snapshot struct {
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

var _ EventReader = (*Snapshot)(nil)

// NewSnapshot copies every field of ev into a new Snapshot without merging.
func NewSnapshot(ev EventReader) *Snapshot {
	props := maps.Clone(ev.Properties())
	if props == nil {
		props = map[string]string{}
	}
	return &Snapshot{
		time:          ev.Time(),
		level:         ev.Level(),
		message:       ev.Message(),
		args:          slices.Clone(ev.Args()),
		keyValues:     slices.Clone(ev.KeyValues()),
		properties:    props,
		caller:        ev.Caller(),
		loggerName:    ev.LoggerName(),
		loggerContext: ev.LoggerContext().clone(),
		err:           ev.Err(),
	}
}

// Time implements EventReader.
func (s *Snapshot) Time() time.Time { return s.time }

// Level implements EventReader.
func (s *Snapshot) Level() slog.Level { return s.level }

// Message implements EventReader and returns the unformatted template.
func (s *Snapshot) Message() string { return s.message }

// FormattedMessage returns the message with "{}" placeholders replaced by
// positional arguments.
func (s *Snapshot) FormattedMessage() string { return formatMessage(s.message, s.args) }

// Args implements EventReader.
func (s *Snapshot) Args() []any { return slices.Clone(s.args) }

// NumArgs reports the number of positional arguments.
func (s *Snapshot) NumArgs() int { return len(s.args) }

// KeyValues implements EventReader.
func (s *Snapshot) KeyValues() []slog.Attr { return slices.Clone(s.keyValues) }

// Properties implements EventReader.
func (s *Snapshot) Properties() map[string]string { return maps.Clone(s.properties) }

// Property returns a single context property.
func (s *Snapshot) Property(key string) (string, bool) {
	v, ok := s.properties[key]
	return v, ok
}

// Caller implements EventReader.
func (s *Snapshot) Caller() Caller { return s.caller }

// LoggerName implements EventReader.
func (s *Snapshot) LoggerName() string { return s.loggerName }

// LoggerContext implements EventReader.
func (s *Snapshot) LoggerContext() *LoggerContext { return s.loggerContext.clone() }

// Err implements EventReader.
func (s *Snapshot) Err() error { return s.err }

// Record renders the snapshot as a slog.Record. Key/value arguments become
// attributes, remaining positional arguments are grouped under [ArgsKey],
// structured pairs not already present as key/value arguments follow, and the
// property map is grouped under [PropertiesKey].
func (s *Snapshot) Record() slog.Record {
	rec := slog.NewRecord(s.time, s.level, s.FormattedMessage(), s.caller.PC)

	if s.loggerName != "" {
		rec.AddAttrs(slog.String(LoggerKey, s.loggerName))
	}

	emitted := make(map[string]struct{}, len(s.args))
	var plain []any
	for _, arg := range s.args {
		if kv, ok := arg.(KeyValueArg); ok {
			rec.AddAttrs(slog.Any(kv.Key, kv.Value))
			emitted[kv.Key] = struct{}{}
			continue
		}
		plain = append(plain, arg)
	}
	if len(plain) > 0 {
		rec.AddAttrs(slog.Any(ArgsKey, plain))
	}
	for _, a := range s.keyValues {
		if _, dup := emitted[a.Key]; dup {
			continue
		}
		rec.AddAttrs(a)
	}
	if len(s.properties) > 0 {
		rec.AddAttrs(slog.Attr{Key: PropertiesKey, Value: slog.GroupValue(s.propertyAttrs()...)})
	}
	if s.err != nil {
		rec.AddAttrs(slog.Any(ErrorKey, s.err))
	}
	return rec
}

// propertyAttrs returns the property map as attrs sorted by key.
func (s *Snapshot) propertyAttrs() []slog.Attr {
	keys := make([]string, 0, len(s.properties))
	for k := range s.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, s.properties[k]))
	}
	return attrs
}

type snapshotCallerJSON struct {
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

type snapshotJSON struct {
	Time       time.Time           `json:"time"`
	Level      string              `json:"level"`
	Message    string              `json:"message"`
	Logger     string              `json:"logger,omitempty"`
	Caller     *snapshotCallerJSON `json:"caller,omitempty"`
	Args       []any               `json:"args,omitempty"`
	KeyValues  map[string]any      `json:"keyValues,omitempty"`
	Properties map[string]string   `json:"properties,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Time:       s.time,
		Level:      s.level.String(),
		Message:    s.FormattedMessage(),
		Logger:     s.loggerName,
		Args:       s.args,
		Properties: s.properties,
	}
	if !s.caller.IsZero() {
		out.Caller = &snapshotCallerJSON{
			Function: s.caller.Function,
			File:     s.caller.File,
			Line:     s.caller.Line,
		}
	}
	if len(s.keyValues) > 0 {
		out.KeyValues = make(map[string]any, len(s.keyValues))
		for _, a := range s.keyValues {
			out.KeyValues[a.Key] = a.Value.Resolve().Any()
		}
	}
	if s.err != nil {
		out.Error = s.err.Error()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
