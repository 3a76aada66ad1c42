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
	"log/slog"
	"strconv"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pjscruggs/slogbaggage"
)

// TestSessionScenario runs the full pipeline: baggage on spans, structured
// pairs merged by the interceptor, and the augmented snapshot emitted through
// the log processor chain.
func TestSessionScenario(t *testing.T) {
	t.Parallel()

	ctx := contextWithBaggage(t, context.Background(), map[string]string{"session_id": "42"})

	spanAttrs := startAndEnd(t, ctx, nil, NewSpanProcessor(nil))
	if spanAttrs["baggage.session_id"] != "42" {
		t.Fatalf("span baggage.session_id = %q, want 42", spanAttrs["baggage.session_id"])
	}

	lp, recorder := newLoggerProvider(t, NewLogProcessor(nil))
	var delivered *slogbaggage.Snapshot
	capture := slogbaggage.NewSinkFunc("capture", func(_ context.Context, snap *slogbaggage.Snapshot) error {
		delivered = snap
		return nil
	})
	icpt, err := slogbaggage.NewInterceptor(
		slogbaggage.WithMergeStructuredIntoContext(true),
		slogbaggage.WithMergeStructuredIntoArguments(true),
		slogbaggage.WithSinks(NewSink("otel", lp), capture),
	)
	if err != nil {
		t.Fatalf("NewInterceptor returned %v", err)
	}
	t.Cleanup(func() { _ = icpt.Close() })

	ev := slogbaggage.NewEvent(slog.LevelInfo, "hello").AddKeyValue("someKey", 93)
	if err := icpt.Append(ctx, ev); err != nil {
		t.Fatalf("Append returned %v", err)
	}

	if v, ok := delivered.Property("someKey"); !ok || v != "93" {
		t.Fatalf("snapshot property someKey = %q (present %v), want 93", v, ok)
	}
	args := delivered.Args()
	if len(args) == 0 {
		t.Fatalf("snapshot has no arguments")
	}
	if last, ok := args[len(args)-1].(slogbaggage.KeyValueArg); !ok || last.String() != "someKey=93" {
		t.Fatalf("last argument = %v, want someKey=93", args[len(args)-1])
	}

	records := recorder.all()
	if len(records) != 1 {
		t.Fatalf("recorded %d log records, want 1", len(records))
	}
	rec := records[0]
	if got := rec.Body().AsString(); got != "hello" {
		t.Fatalf("body = %q, want hello", got)
	}
	if rec.Severity() != otellog.SeverityInfo1 {
		t.Fatalf("severity = %v, want %v", rec.Severity(), otellog.SeverityInfo1)
	}
	attrs := recordAttributes(rec)
	if attrs["baggage.session_id"] != "42" {
		t.Fatalf("log baggage.session_id = %q, want 42", attrs["baggage.session_id"])
	}
	if attrs["someKey"] != "93" {
		t.Fatalf("log someKey = %q, want 93", attrs["someKey"])
	}
	if got := rec.InstrumentationScope().Name; got != slogbaggage.InstrumentationName {
		t.Fatalf("scope name = %q, want %q", got, slogbaggage.InstrumentationName)
	}
}

// TestSinkCallerAndError verifies caller and error attributes.
func TestSinkCallerAndError(t *testing.T) {
	t.Parallel()

	lp, recorder := newLoggerProvider(t)
	sink := NewSink("otel", lp)
	if sink.Name() != "otel" {
		t.Fatalf("Name() = %q, want otel", sink.Name())
	}

	ev := slogbaggage.NewEvent(slog.LevelError, "failed").
		SetCaller(slogbaggage.Caller{PC: 1, Function: "pkg.Fn", File: "/src/file.go", Line: 12}).
		SetErr(errors.New("boom"))
	if err := sink.Deliver(context.Background(), slogbaggage.NewSnapshot(ev)); err != nil {
		t.Fatalf("Deliver returned %v", err)
	}
	if err := sink.Deliver(context.Background(), nil); err != nil {
		t.Fatalf("Deliver(nil) returned %v", err)
	}

	records := recorder.all()
	if len(records) != 1 {
		t.Fatalf("recorded %d log records, want 1", len(records))
	}
	attrs := recordAttributes(records[0])
	want := map[string]string{
		codeFunctionKey: "pkg.Fn",
		codeFileKey:     "/src/file.go",
		codeLineKey:     strconv.Itoa(12),
		exceptionKey:    "boom",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Fatalf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
	if records[0].Severity() != otellog.SeverityError1 {
		t.Fatalf("severity = %v, want %v", records[0].Severity(), otellog.SeverityError1)
	}
}

// TestSinkRendersLiteralKeyValueArgs verifies pairs built as struct literals
// are emitted with their rendered value.
func TestSinkRendersLiteralKeyValueArgs(t *testing.T) {
	t.Parallel()

	lp, recorder := newLoggerProvider(t)
	sink := NewSink("otel", lp)

	ev := slogbaggage.NewEvent(slog.LevelInfo, "literal").
		AddArgs(slogbaggage.KeyValueArg{Key: "a", Value: 7}, "plain")
	if err := sink.Deliver(context.Background(), slogbaggage.NewSnapshot(ev)); err != nil {
		t.Fatalf("Deliver returned %v", err)
	}

	records := recorder.all()
	if len(records) != 1 {
		t.Fatalf("recorded %d log records, want 1", len(records))
	}
	if got := recordAttributes(records[0])["a"]; got != "7" {
		t.Fatalf("attribute a = %q, want 7", got)
	}
}

// TestSeverityMapping covers the slog to OpenTelemetry severity mapping.
func TestSeverityMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level slog.Level
		want  otellog.Severity
	}{
		{slog.LevelDebug, otellog.SeverityDebug1},
		{slog.LevelInfo, otellog.SeverityInfo1},
		{slog.LevelInfo + 2, otellog.SeverityInfo3},
		{slog.LevelWarn, otellog.SeverityWarn1},
		{slog.LevelError, otellog.SeverityError1},
		{slog.Level(-100), otellog.SeverityTrace1},
		{slog.Level(100), otellog.SeverityFatal4},
	}
	for _, tc := range cases {
		if got := Severity(tc.level); got != tc.want {
			t.Fatalf("Severity(%v) = %v, want %v", tc.level, got, tc.want)
		}
	}
}

// TestSpanProcessorDirectRegistrationPanicsOnEnd documents that bypassing the
// chain reaches the unsupported hook.
func TestSpanProcessorDirectRegistrationPanicsOnEnd(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(NewSpanProcessor(nil)))
	_, span := tp.Tracer("test").Start(context.Background(), "op")

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("span.End() did not panic")
		}
	}()
	span.End()
}
