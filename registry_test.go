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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/pjscruggs/slogbaggage"
)

// sliceSink has a non-comparable dynamic type.
type sliceSink []string

func (sliceSink) Name() string { return "slice" }

func (sliceSink) Deliver(context.Context, *slogbaggage.Snapshot) error { return nil }

// valueSink has a comparable type whose values may not be comparable.
type valueSink struct {
	meta any
}

func (valueSink) Name() string { return "value" }

func (valueSink) Deliver(context.Context, *slogbaggage.Snapshot) error { return nil }

// names lists the registry membership by sink name.
func names(r *slogbaggage.Registry) []string {
	var out []string
	r.Each(func(s slogbaggage.Sink) bool {
		out = append(out, s.Name())
		return true
	})
	return out
}

// TestRegistryAttachDeduplicates verifies attachment order and identity-based
// deduplication.
func TestRegistryAttachDeduplicates(t *testing.T) {
	t.Parallel()

	r := slogbaggage.NewRegistry()
	a, b := newCaptureSink("a"), newCaptureSink("b")
	twin := newCaptureSink("a")

	for _, s := range []slogbaggage.Sink{a, b, a, twin} {
		if err := r.Attach(s); err != nil {
			t.Fatalf("Attach(%s) returned %v", s.Name(), err)
		}
	}
	if got := fmt.Sprint(names(r)); got != "[a b a]" {
		t.Fatalf("membership = %s, want [a b a]", got)
	}
	if !r.IsAttached(twin) || !r.IsAttached(a) {
		t.Fatalf("IsAttached reported a missing sink")
	}
}

// TestRegistryRejectsInvalidSinks covers nil and non-comparable sinks.
func TestRegistryRejectsInvalidSinks(t *testing.T) {
	t.Parallel()

	r := slogbaggage.NewRegistry()
	if err := r.Attach(nil); !errors.Is(err, slogbaggage.ErrNilSink) {
		t.Fatalf("Attach(nil) = %v, want ErrNilSink", err)
	}
	if err := r.Attach(sliceSink{"x"}); !errors.Is(err, slogbaggage.ErrSinkNotComparable) {
		t.Fatalf("Attach(sliceSink) = %v, want ErrSinkNotComparable", err)
	}
	if r.Detach(sliceSink{"x"}) || r.IsAttached(sliceSink{"x"}) {
		t.Fatalf("non-comparable sink reported as attached")
	}
	if r.Detach(nil) || r.IsAttached(nil) {
		t.Fatalf("nil sink reported as attached")
	}

	if err := r.Attach(valueSink{meta: []int{1}}); !errors.Is(err, slogbaggage.ErrSinkNotComparable) {
		t.Fatalf("Attach(valueSink with slice) = %v, want ErrSinkNotComparable", err)
	}
	if err := r.Attach(valueSink{meta: []int{2}}); !errors.Is(err, slogbaggage.ErrSinkNotComparable) {
		t.Fatalf("second Attach(valueSink with slice) = %v, want ErrSinkNotComparable", err)
	}
	if err := r.Attach(valueSink{meta: 7}); err != nil {
		t.Fatalf("Attach(valueSink with int) = %v", err)
	}
	if r.IsAttached(valueSink{meta: []int{1}}) || r.Detach(valueSink{meta: []int{1}}) {
		t.Fatalf("valueSink holding a slice reported as attached")
	}
	if !r.Detach(valueSink{meta: 7}) {
		t.Fatalf("Detach(valueSink with int) = false, want true")
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

// TestRegistryDetach covers detaching by identity and by name.
func TestRegistryDetach(t *testing.T) {
	t.Parallel()

	r := slogbaggage.NewRegistry()
	a, b, c := newCaptureSink("a"), newCaptureSink("b"), newCaptureSink("c")
	for _, s := range []slogbaggage.Sink{a, b, c} {
		_ = r.Attach(s)
	}

	if !r.Detach(b) {
		t.Fatalf("Detach(b) = false, want true")
	}
	if r.Detach(b) {
		t.Fatalf("second Detach(b) = true, want false")
	}
	if !r.DetachByName("c") || r.DetachByName("c") {
		t.Fatalf("DetachByName(c) did not remove exactly once")
	}
	if got := fmt.Sprint(names(r)); got != "[a]" {
		t.Fatalf("membership = %s, want [a]", got)
	}
	if b.closeCount() != 0 || c.closeCount() != 0 {
		t.Fatalf("Detach closed a sink")
	}
}

// TestRegistryDetachAllClosesSinks verifies DetachAll empties the registry and
// joins close errors.
func TestRegistryDetachAllClosesSinks(t *testing.T) {
	t.Parallel()

	r := slogbaggage.NewRegistry()
	a, b := newCaptureSink("a"), newCaptureSink("b")
	b.closeErr = errors.New("close failed")
	plain := slogbaggage.NewSinkFunc("plain", nil)
	for _, s := range []slogbaggage.Sink{a, plain, b} {
		_ = r.Attach(s)
	}

	err := r.DetachAll()
	var sinkErr *slogbaggage.SinkError
	if !errors.As(err, &sinkErr) || sinkErr.Sink != "b" {
		t.Fatalf("DetachAll error = %v, want SinkError for b", err)
	}
	if a.closeCount() != 1 || b.closeCount() != 1 {
		t.Fatalf("close counts = %d/%d, want 1/1", a.closeCount(), b.closeCount())
	}
	if r.Len() != 0 || r.Sinks() != nil {
		t.Fatalf("registry not empty after DetachAll")
	}
	if err := r.DetachAll(); err != nil {
		t.Fatalf("DetachAll on empty registry = %v", err)
	}
}

// TestRegistryLookupAndEach covers lookups, early termination and copies.
func TestRegistryLookupAndEach(t *testing.T) {
	t.Parallel()

	r := slogbaggage.NewRegistry()
	a, b := newCaptureSink("a"), newCaptureSink("b")
	_ = r.Attach(a)
	_ = r.Attach(b)

	if got, ok := r.Lookup("b"); !ok || got != slogbaggage.Sink(b) {
		t.Fatalf("Lookup(b) = %v, %v", got, ok)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatalf("Lookup(missing) reported found")
	}

	visits := 0
	r.Each(func(slogbaggage.Sink) bool {
		visits++
		return false
	})
	if visits != 1 {
		t.Fatalf("Each visited %d sinks after stop, want 1", visits)
	}

	sinks := r.Sinks()
	sinks[0] = nil
	if first, _ := r.Lookup("a"); first == nil || r.Len() != 2 {
		t.Fatalf("Sinks returned shared storage")
	}
}

// TestRegistryConcurrentMembership races attach, detach and fan-out.
func TestRegistryConcurrentMembership(t *testing.T) {
	t.Parallel()

	stable := newCaptureSink("stable")
	icpt := newTestInterceptor(t, []slogbaggage.Sink{stable})

	var delivered atomic.Int64
	counting := slogbaggage.NewSinkFunc("counting", func(context.Context, *slogbaggage.Snapshot) error {
		delivered.Add(1)
		return nil
	})

	const events = 200
	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < events; i++ {
			if err := icpt.Registry().Attach(counting); err != nil {
				return err
			}
			icpt.Registry().Detach(counting)
		}
		return nil
	})
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; i < events; i++ {
				if err := icpt.Append(context.Background(), slogbaggage.NewEvent(slog.LevelInfo, "x")); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent use returned %v", err)
	}

	if n := len(stable.snapshots()); n != 4*events {
		t.Fatalf("stable sink received %d snapshots, want %d", n, 4*events)
	}
	if n := delivered.Load(); n > 4*events {
		t.Fatalf("counting sink received %d snapshots, more than %d events", n, 4*events)
	}
}
