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

package slogbaggage_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/pjscruggs/slogbaggage"
)

var testCaller = slogbaggage.Caller{PC: 42, Function: "example.com/svc.Handle", File: "svc.go", Line: 17}

// sessionEvent builds the event used by the merge tests.
func sessionEvent() *slogbaggage.Event {
	return slogbaggage.NewEvent(slog.LevelInfo, "hello {}").
		AddArgs("bob").
		AddKeyValue("someKey", 93).
		SetProperties(map[string]string{"tenant": "acme"}).
		SetCaller(testCaller).
		SetLoggerName("svc").
		SetLoggerContext(slogbaggage.NewLoggerContext("svc", map[string]string{"host.name": "h1"}))
}

// TestAugmentMergesIntoContextAndArguments verifies both merge switches and
// that the caller location survives unchanged.
func TestAugmentMergesIntoContextAndArguments(t *testing.T) {
	t.Parallel()

	icpt := newTestInterceptor(t, nil,
		slogbaggage.WithMergeStructuredIntoContext(true),
		slogbaggage.WithMergeStructuredIntoArguments(true),
	)
	ev := sessionEvent()

	snap, err := icpt.Augment(ev)
	if err != nil {
		t.Fatalf("Augment returned %v", err)
	}

	wantProps := map[string]string{"tenant": "acme", "someKey": "93"}
	if diff := cmp.Diff(wantProps, snap.Properties()); diff != "" {
		t.Fatalf("properties mismatch (-want +got):\n%s", diff)
	}
	args := snap.Args()
	if len(args) != 2 {
		t.Fatalf("len(Args) = %d, want 2", len(args))
	}
	kv, ok := args[1].(slogbaggage.KeyValueArg)
	if !ok {
		t.Fatalf("last argument = %T, want KeyValueArg", args[1])
	}
	if kv.Key != "someKey" || kv.RenderedValue() != "93" || kv.String() != "someKey=93" {
		t.Fatalf("KeyValueArg = %+v (%s)", kv, kv)
	}
	if snap.Caller() != testCaller {
		t.Fatalf("Caller = %+v, want %+v", snap.Caller(), testCaller)
	}
	if got := snap.FormattedMessage(); got != "hello bob" {
		t.Fatalf("FormattedMessage = %q, want %q", got, "hello bob")
	}
	lc := snap.LoggerContext()
	if lc == nil || lc.Name != "svc" {
		t.Fatalf("LoggerContext = %+v, want name svc", lc)
	}
	if diff := cmp.Diff(wantProps, lc.Properties); diff != "" {
		t.Fatalf("logger context properties mismatch (-want +got):\n%s", diff)
	}

	if _, leaked := ev.Properties()["someKey"]; leaked {
		t.Fatalf("Augment mutated the event property map")
	}
	if len(ev.Args()) != 1 {
		t.Fatalf("Augment mutated the event arguments")
	}
}

// TestAugmentKeepsExistingProperty verifies a structured pair never overrides
// a property already present on the event.
func TestAugmentKeepsExistingProperty(t *testing.T) {
	t.Parallel()

	icpt := newTestInterceptor(t, nil,
		slogbaggage.WithMergeStructuredIntoContext(true),
		slogbaggage.WithMergeStructuredIntoArguments(true),
	)
	ev := sessionEvent().SetProperties(map[string]string{"someKey": "preset"})

	snap, err := icpt.Augment(ev)
	if err != nil {
		t.Fatalf("Augment returned %v", err)
	}
	if got, _ := snap.Property("someKey"); got != "preset" {
		t.Fatalf("someKey property = %q, want preset", got)
	}
	kv := snap.Args()[1].(slogbaggage.KeyValueArg)
	if kv.RenderedValue() != "93" {
		t.Fatalf("argument value = %q, want 93", kv.RenderedValue())
	}
}

// TestAugmentMergeSwitches covers every switch combination.
func TestAugmentMergeSwitches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		intoCtx    bool
		intoArgs   bool
		wantProps  map[string]string
		wantArgLen int
	}{
		{"neither", false, false, map[string]string{"tenant": "acme"}, 1},
		{"context only", true, false, map[string]string{"tenant": "acme", "someKey": "93"}, 1},
		{"arguments only", false, true, map[string]string{"tenant": "acme"}, 2},
		{"both", true, true, map[string]string{"tenant": "acme", "someKey": "93"}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			icpt := newTestInterceptor(t, nil,
				slogbaggage.WithMergeStructuredIntoContext(tc.intoCtx),
				slogbaggage.WithMergeStructuredIntoArguments(tc.intoArgs),
			)
			snap, err := icpt.Augment(sessionEvent())
			if err != nil {
				t.Fatalf("Augment returned %v", err)
			}
			if diff := cmp.Diff(tc.wantProps, snap.Properties()); diff != "" {
				t.Fatalf("properties mismatch (-want +got):\n%s", diff)
			}
			if got := snap.NumArgs(); got != tc.wantArgLen {
				t.Fatalf("NumArgs = %d, want %d", got, tc.wantArgLen)
			}
			if diff := cmp.Diff(tc.wantProps, snap.LoggerContext().Properties); diff != "" {
				t.Fatalf("logger context properties mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestAugmentProperties checks the merge invariants over random inputs.
func TestAugmentProperties(t *testing.T) {
	t.Parallel()

	born := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	rapid.Check(t, func(rt *rapid.T) {
		original := rapid.MapOfN(rapid.StringMatching(`[a-d]{1,2}`), rapid.StringMatching(`[a-z]{0,3}`), 0, 4).Draw(rt, "props")
		positional := rapid.SliceOfN(rapid.StringMatching(`[a-z]{0,4}`), 0, 4).Draw(rt, "args")
		keys := rapid.SliceOfN(rapid.StringMatching(`[a-d]{1,2}`), 0, 6).Draw(rt, "keys")
		values := rapid.SliceOfN(rapid.IntRange(-100, 100), len(keys), len(keys)).Draw(rt, "values")
		intoCtx := rapid.Bool().Draw(rt, "intoCtx")
		intoArgs := rapid.Bool().Draw(rt, "intoArgs")

		icpt, err := slogbaggage.NewInterceptor(
			slogbaggage.WithMergeStructuredIntoContext(intoCtx),
			slogbaggage.WithMergeStructuredIntoArguments(intoArgs),
		)
		if err != nil {
			rt.Fatalf("NewInterceptor returned %v", err)
		}

		lc := &slogbaggage.LoggerContext{Name: "svc", BirthTime: born, Properties: map[string]string{"stale": "x"}}
		ev := slogbaggage.NewEvent(slog.LevelWarn, "m").
			SetCaller(testCaller).
			SetProperties(original).
			SetLoggerContext(lc)
		for _, a := range positional {
			ev.AddArgs(a)
		}
		for i, k := range keys {
			ev.AddKeyValue(k, values[i])
		}

		snap, err := icpt.Augment(ev)
		if err != nil {
			rt.Fatalf("Augment returned %v", err)
		}

		want := make(map[string]string, len(original))
		for k, v := range original {
			want[k] = v
		}
		if intoCtx {
			for i, k := range keys {
				if _, exists := original[k]; !exists {
					want[k] = strconv.Itoa(values[i])
				}
			}
		}
		if diff := cmp.Diff(want, snap.Properties()); diff != "" {
			rt.Fatalf("properties mismatch (-want +got):\n%s", diff)
		}

		wantArgs := make([]string, 0, len(positional)+len(keys))
		wantArgs = append(wantArgs, positional...)
		if intoArgs {
			for i, k := range keys {
				wantArgs = append(wantArgs, k+"="+strconv.Itoa(values[i]))
			}
		}
		gotArgs := make([]string, 0, snap.NumArgs())
		for i, a := range snap.Args() {
			switch v := a.(type) {
			case string:
				if i >= len(positional) {
					rt.Fatalf("argument %d = %q, want a key/value pair", i, v)
				}
				gotArgs = append(gotArgs, v)
			case slogbaggage.KeyValueArg:
				if i < len(positional) {
					rt.Fatalf("argument %d = %v, want original argument", i, v)
				}
				gotArgs = append(gotArgs, v.String())
			default:
				rt.Fatalf("argument %d has type %T", i, a)
			}
		}
		if diff := cmp.Diff(wantArgs, gotArgs); diff != "" {
			rt.Fatalf("arguments mismatch (-want +got):\n%s", diff)
		}

		if snap.Caller() != testCaller {
			rt.Fatalf("Caller = %+v, want %+v", snap.Caller(), testCaller)
		}
		if len(snap.KeyValues()) != len(keys) {
			rt.Fatalf("len(KeyValues) = %d, want %d", len(snap.KeyValues()), len(keys))
		}

		gotLC := snap.LoggerContext()
		if gotLC == nil {
			rt.Fatalf("LoggerContext = nil, want inherited descriptor")
		}
		if !gotLC.BirthTime.Equal(born) || gotLC.Name != "svc" {
			rt.Fatalf("LoggerContext = %s born %v, want svc born %v", gotLC.Name, gotLC.BirthTime, born)
		}
		if diff := cmp.Diff(want, gotLC.Properties); diff != "" {
			rt.Fatalf("logger context properties mismatch (-want +got):\n%s", diff)
		}
		if lc.Properties["stale"] != "x" || len(lc.Properties) != 1 {
			rt.Fatalf("source logger context mutated: %v", lc.Properties)
		}
	})
}

// TestAppendMergeFaultReachesNoSink verifies an unrenderable value rejects the
// event before any sink sees it.
func TestAppendMergeFaultReachesNoSink(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value any
	}{
		{"panicking stringer", explodingStringer{}},
		{"failing text marshaler", failingText{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sink := newCaptureSink("capture")
			metrics := slogbaggage.NewMetrics()
			icpt := newTestInterceptor(t, []slogbaggage.Sink{sink},
				slogbaggage.WithMergeStructuredIntoContext(true),
				slogbaggage.WithMetrics(metrics),
			)

			ev := slogbaggage.NewEvent(slog.LevelInfo, "x").AddKeyValue("bad", tc.value)
			err := icpt.Append(context.Background(), ev)

			var mergeErr *slogbaggage.MergeError
			if !errors.As(err, &mergeErr) || mergeErr.Key != "bad" {
				t.Fatalf("Append error = %v, want MergeError for key bad", err)
			}
			if n := len(sink.snapshots()); n != 0 {
				t.Fatalf("sink received %d snapshots, want 0", n)
			}
			if got := metrics.SnapshotMergeFaults(); got != 1 {
				t.Fatalf("merge faults = %d, want 1", got)
			}
		})
	}
}

// TestAppendWithoutMergeSkipsRendering verifies values are not rendered when
// both switches are off.
func TestAppendWithoutMergeSkipsRendering(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink("capture")
	icpt := newTestInterceptor(t, []slogbaggage.Sink{sink})
	ev := slogbaggage.NewEvent(slog.LevelInfo, "x").AddKeyValue("bad", explodingStringer{})
	if err := icpt.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append returned %v", err)
	}
	if n := len(sink.snapshots()); n != 1 {
		t.Fatalf("sink received %d snapshots, want 1", n)
	}
}

// TestAugmentRejectsNilEvent covers the nil guard.
func TestAugmentRejectsNilEvent(t *testing.T) {
	t.Parallel()

	icpt := newTestInterceptor(t, nil)
	var mergeErr *slogbaggage.MergeError
	if _, err := icpt.Augment(nil); !errors.As(err, &mergeErr) {
		t.Fatalf("Augment(nil) error = %v, want MergeError", err)
	}
}

// faultySinks returns a healthy sink, a failing sink, a panicking sink and a
// second healthy sink.
func faultySinks() (first, failing, panicking, last *captureSink) {
	first = newCaptureSink("first")
	failing = newCaptureSink("failing")
	failing.err = errors.New("disk full")
	panicking = newCaptureSink("panicking")
	panicking.panicValue = "kaboom"
	last = newCaptureSink("last")
	return first, failing, panicking, last
}

// TestFanOutIsolatesSinkFaults verifies every policy keeps delivering to the
// remaining sinks and surfaces faults as configured.
func TestFanOutIsolatesSinkFaults(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		policy        slogbaggage.FaultPolicy
		wantErr       bool
		wantCallbacks []string
		wantLog       bool
	}{
		{"suppress", slogbaggage.FaultSuppress, false, nil, false},
		{"report", slogbaggage.FaultReport, false, []string{"failing", "panicking"}, true},
		{"return", slogbaggage.FaultReturn, true, []string{"failing", "panicking"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			first, failing, panicking, last := faultySinks()
			metrics := slogbaggage.NewMetrics()
			var diag bytes.Buffer
			var callbacks []string
			icpt := newTestInterceptor(t, []slogbaggage.Sink{first, failing, panicking, last},
				slogbaggage.WithFaultPolicy(tc.policy),
				slogbaggage.WithMetrics(metrics),
				slogbaggage.WithInternalLogger(slog.New(slog.NewTextHandler(&diag, nil))),
				slogbaggage.WithOnSinkFault(func(_ context.Context, sink string, _ error) {
					callbacks = append(callbacks, sink)
				}),
			)

			err := icpt.Append(context.Background(), slogbaggage.NewEvent(slog.LevelInfo, "x"))
			if (err != nil) != tc.wantErr {
				t.Fatalf("Append error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, slogbaggage.ErrSinkPanic) {
					t.Fatalf("Append error %v does not wrap ErrSinkPanic", err)
				}
				var sinkErr *slogbaggage.SinkError
				if !errors.As(err, &sinkErr) {
					t.Fatalf("Append error %v is not a SinkError", err)
				}
			}
			if len(first.snapshots()) != 1 || len(last.snapshots()) != 1 {
				t.Fatalf("healthy sinks received %d/%d snapshots, want 1/1", len(first.snapshots()), len(last.snapshots()))
			}
			if diff := cmp.Diff(tc.wantCallbacks, callbacks); diff != "" {
				t.Fatalf("fault callbacks mismatch (-want +got):\n%s", diff)
			}
			if got := strings.Contains(diag.String(), "sink delivery failed"); got != tc.wantLog {
				t.Fatalf("diagnostic logged = %v, want %v (%q)", got, tc.wantLog, diag.String())
			}

			if diff := cmp.Diff(map[string]uint64{"first": 1, "last": 1}, metrics.SnapshotDelivered()); diff != "" {
				t.Fatalf("delivered mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(map[string]uint64{"failing": 1, "panicking": 1}, metrics.SnapshotFailed()); diff != "" {
				t.Fatalf("failed mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(map[string]uint64{"panicking": 1}, metrics.SnapshotPanics()); diff != "" {
				t.Fatalf("panics mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestAppendUsesMembershipAtCallTime verifies a sink attached or detached
// during delivery only affects later events.
func TestAppendUsesMembershipAtCallTime(t *testing.T) {
	t.Parallel()

	late := newCaptureSink("late")
	second := newCaptureSink("second")
	trigger := newCaptureSink("trigger")
	icpt := newTestInterceptor(t, []slogbaggage.Sink{trigger, second})
	trigger.onDeliver = func() {
		_ = icpt.Registry().Attach(late)
		icpt.Registry().Detach(second)
	}

	if err := icpt.Append(context.Background(), slogbaggage.NewEvent(slog.LevelInfo, "first")); err != nil {
		t.Fatalf("Append returned %v", err)
	}
	if n := len(late.snapshots()); n != 0 {
		t.Fatalf("late sink received %d snapshots during the attaching event, want 0", n)
	}
	if n := len(second.snapshots()); n != 1 {
		t.Fatalf("detached sink received %d snapshots, want 1", n)
	}

	if err := icpt.Append(context.Background(), slogbaggage.NewEvent(slog.LevelInfo, "second")); err != nil {
		t.Fatalf("Append returned %v", err)
	}
	if n := len(late.snapshots()); n != 1 {
		t.Fatalf("late sink received %d snapshots, want 1", n)
	}
	if n := len(second.snapshots()); n != 1 {
		t.Fatalf("detached sink received %d snapshots after detach, want 1", n)
	}
}

// TestInterceptorCloseRejectsEvents verifies Close detaches and closes sinks
// once and later appends fail.
func TestInterceptorCloseRejectsEvents(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink("capture")
	sink.closeErr = errors.New("already gone")
	icpt, err := slogbaggage.NewInterceptor(slogbaggage.WithSinks(sink))
	if err != nil {
		t.Fatalf("NewInterceptor returned %v", err)
	}

	first := icpt.Close()
	var sinkErr *slogbaggage.SinkError
	if !errors.As(first, &sinkErr) || sinkErr.Sink != "capture" {
		t.Fatalf("Close error = %v, want SinkError for capture", first)
	}
	if second := icpt.Close(); second != first {
		t.Fatalf("second Close = %v, want %v", second, first)
	}
	if n := sink.closeCount(); n != 1 {
		t.Fatalf("sink closed %d times, want 1", n)
	}
	if icpt.Registry().Len() != 0 {
		t.Fatalf("registry still holds %d sinks", icpt.Registry().Len())
	}
	if err := icpt.Append(context.Background(), slogbaggage.NewEvent(slog.LevelInfo, "x")); !errors.Is(err, slogbaggage.ErrClosed) {
		t.Fatalf("Append after Close = %v, want ErrClosed", err)
	}
	if err := icpt.Deliver(context.Background(), nil); !errors.Is(err, slogbaggage.ErrClosed) {
		t.Fatalf("Deliver after Close = %v, want ErrClosed", err)
	}
}

// TestInterceptorsChain verifies an interceptor can act as a sink of another.
func TestInterceptorsChain(t *testing.T) {
	t.Parallel()

	leaf := newCaptureSink("leaf")
	inner := newTestInterceptor(t, []slogbaggage.Sink{leaf}, slogbaggage.WithName("inner"))
	outer := newTestInterceptor(t, []slogbaggage.Sink{inner}, slogbaggage.WithMergeStructuredIntoContext(true))

	if inner.Name() != "inner" {
		t.Fatalf("Name = %q, want inner", inner.Name())
	}
	if err := outer.Append(context.Background(), sessionEvent()); err != nil {
		t.Fatalf("Append returned %v", err)
	}
	snaps := leaf.snapshots()
	if len(snaps) != 1 {
		t.Fatalf("leaf received %d snapshots, want 1", len(snaps))
	}
	if got, _ := snaps[0].Property("someKey"); got != "93" {
		t.Fatalf("someKey = %q, want 93", got)
	}
	if err := inner.Deliver(context.Background(), nil); err != nil {
		t.Fatalf("Deliver(nil) = %v, want nil", err)
	}
}

type flushingSink struct {
	*captureSink
	flushes int
	err     error
}

func (f *flushingSink) Flush(context.Context) error {
	f.flushes++
	return f.err
}

// TestInterceptorFlush verifies Flush reaches every flusher and joins errors.
func TestInterceptorFlush(t *testing.T) {
	t.Parallel()

	ok := &flushingSink{captureSink: newCaptureSink("ok")}
	bad := &flushingSink{captureSink: newCaptureSink("bad"), err: errors.New("stuck")}
	plain := newCaptureSink("plain")
	icpt := newTestInterceptor(t, []slogbaggage.Sink{ok, plain, bad})

	err := icpt.Flush(context.Background())
	var sinkErr *slogbaggage.SinkError
	if !errors.As(err, &sinkErr) || sinkErr.Sink != "bad" {
		t.Fatalf("Flush error = %v, want SinkError for bad", err)
	}
	if ok.flushes != 1 || bad.flushes != 1 {
		t.Fatalf("flush counts = %d/%d, want 1/1", ok.flushes, bad.flushes)
	}
}
