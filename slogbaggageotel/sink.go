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
	"log/slog"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/pjscruggs/slogbaggage"
)

// Attribute keys for caller metadata, following the OpenTelemetry code.*
// semantic conventions.
const (
	codeFunctionKey = "code.function.name"
	codeFileKey     = "code.file.path"
	codeLineKey     = "code.line.number"
	exceptionKey    = "exception.message"
)

// Sink emits snapshots into an OpenTelemetry logger so the provider's
// processor chain, including [LogProcessor], runs on interceptor output.
//
// The record body is the formatted message. Context properties and key/value
// arguments become string attributes, in that order, followed by caller
// attributes and the event error.
type Sink struct {
	name   string
	logger otellog.Logger
}

var _ slogbaggage.Sink = (*Sink)(nil)

// NewSink returns a sink named name that emits through a logger obtained from
// provider.
func NewSink(name string, provider otellog.LoggerProvider) *Sink {
	return &Sink{
		name: name,
		logger: provider.Logger(slogbaggage.InstrumentationName,
			otellog.WithInstrumentationVersion(slogbaggage.Version),
		),
	}
}

// Name implements slogbaggage.Sink.
func (s *Sink) Name() string { return s.name }

// Deliver implements slogbaggage.Sink. The baggage in ctx reaches the log
// processors unchanged.
func (s *Sink) Deliver(ctx context.Context, snap *slogbaggage.Snapshot) error {
	if snap == nil {
		return nil
	}
	sev := Severity(snap.Level())
	if !s.logger.Enabled(ctx, otellog.EnabledParameters{Severity: sev}) {
		return nil
	}

	var rec otellog.Record
	rec.SetTimestamp(snap.Time())
	rec.SetObservedTimestamp(time.Now())
	rec.SetSeverity(sev)
	rec.SetSeverityText(snap.Level().String())
	rec.SetBody(otellog.StringValue(snap.FormattedMessage()))
	rec.AddAttributes(snapshotAttributes(snap)...)

	s.logger.Emit(ctx, rec)
	return nil
}

// Severity maps a slog level onto the OpenTelemetry severity scale. slog's
// levels are spaced four apart starting at DEBUG=-4, matching the four
// sub-levels of each OpenTelemetry severity starting at DEBUG=5.
func Severity(level slog.Level) otellog.Severity {
	sev := int(level) + int(otellog.SeverityInfo1)
	switch {
	case sev < int(otellog.SeverityTrace1):
		return otellog.SeverityTrace1
	case sev > int(otellog.SeverityFatal4):
		return otellog.SeverityFatal4
	}
	return otellog.Severity(sev)
}

func snapshotAttributes(snap *slogbaggage.Snapshot) []otellog.KeyValue {
	props := snap.Properties()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]otellog.KeyValue, 0, len(keys)+snap.NumArgs()+4)
	for _, k := range keys {
		attrs = append(attrs, otellog.String(k, props[k]))
	}
	for _, arg := range snap.Args() {
		if kv, ok := arg.(slogbaggage.KeyValueArg); ok {
			attrs = append(attrs, otellog.String(kv.Key, kv.RenderedValue()))
		}
	}
	if c := snap.Caller(); !c.IsZero() {
		if c.Function != "" {
			attrs = append(attrs, otellog.String(codeFunctionKey, c.Function))
		}
		if c.File != "" {
			attrs = append(attrs, otellog.String(codeFileKey, c.File), otellog.Int(codeLineKey, c.Line))
		}
	}
	if err := snap.Err(); err != nil {
		attrs = append(attrs, otellog.String(exceptionKey, err.Error()))
	}
	return attrs
}
