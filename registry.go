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
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
)

// Registry is an ordered set of sinks. Membership changes publish a new
// immutable slice, so readers iterating a membership they already loaded
// never observe a concurrent Attach or Detach.
type Registry struct {
	mu    sync.Mutex
	sinks atomic.Pointer[[]Sink]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// load returns the current membership. The slice must not be modified.
func (r *Registry) load() []Sink {
	if p := r.sinks.Load(); p != nil {
		return *p
	}
	return nil
}

// publish installs next as the membership. Callers hold r.mu.
func (r *Registry) publish(next []Sink) {
	if len(next) == 0 {
		r.sinks.Store(nil)
		return
	}
	r.sinks.Store(&next)
}

// Attach appends s unless it is already attached.
func (r *Registry) Attach(s Sink) error {
	if s == nil {
		return ErrNilSink
	}
	if !reflect.ValueOf(s).Comparable() {
		return fmt.Errorf("%w: %T", ErrSinkNotComparable, s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	for _, existing := range current {
		if sameSink(existing, s) {
			return nil
		}
	}
	next := make([]Sink, len(current), len(current)+1)
	copy(next, current)
	r.publish(append(next, s))
	return nil
}

// Detach removes s and reports whether it was attached. The sink is not
// closed.
func (r *Registry) Detach(s Sink) bool {
	if s == nil {
		return false
	}
	return r.removeFirst(func(existing Sink) bool { return sameSink(existing, s) })
}

// DetachByName removes the first sink named name and reports whether one was
// found. The sink is not closed.
func (r *Registry) DetachByName(name string) bool {
	return r.removeFirst(func(existing Sink) bool { return existing.Name() == name })
}

// removeFirst drops the first member matching match.
func (r *Registry) removeFirst(match func(Sink) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	for i, existing := range current {
		if !match(existing) {
			continue
		}
		next := make([]Sink, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		r.publish(next)
		return true
	}
	return false
}

// DetachAll empties the registry, closing every sink that implements
// io.Closer. The registry keeps no reference to any sink afterwards. Errors
// from Close are joined.
func (r *Registry) DetachAll() error {
	r.mu.Lock()
	detached := r.load()
	r.publish(nil)
	r.mu.Unlock()

	var errs []error
	for _, s := range detached {
		c, ok := s.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// IsAttached reports whether s is attached.
func (r *Registry) IsAttached(s Sink) bool {
	if s == nil {
		return false
	}
	for _, existing := range r.load() {
		if sameSink(existing, s) {
			return true
		}
	}
	return false
}

// Lookup returns the first sink named name.
func (r *Registry) Lookup(name string) (Sink, bool) {
	for _, existing := range r.load() {
		if existing.Name() == name {
			return existing, true
		}
	}
	return nil, false
}

// Each visits sinks in attachment order until visit returns false. The
// membership is fixed when Each starts.
func (r *Registry) Each(visit func(Sink) bool) {
	for _, s := range r.load() {
		if !visit(s) {
			return
		}
	}
}

// Sinks returns a copy of the current membership in attachment order.
func (r *Registry) Sinks() []Sink {
	current := r.load()
	if len(current) == 0 {
		return nil
	}
	return append([]Sink(nil), current...)
}

// Len reports the number of attached sinks.
func (r *Registry) Len() int { return len(r.load()) }

// sameSink compares sink identity. Comparability is checked on the values,
// not only their types, since a comparable struct may hold a slice in an
// interface field. Attach rejects such sinks, but one may still be supplied
// to Detach or IsAttached directly.
func sameSink(a, b Sink) bool {
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		return false
	}
	return a == b
}
