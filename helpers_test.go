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
	"sync"
	"testing"

	"github.com/pjscruggs/slogbaggage"
)

// captureSink records every snapshot it receives.
type captureSink struct {
	name string

	mu         sync.Mutex
	snaps      []*slogbaggage.Snapshot
	err        error
	panicValue any
	onDeliver  func()
	closed     int
	closeErr   error
}

func newCaptureSink(name string) *captureSink {
	return &captureSink{name: name}
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Deliver(_ context.Context, snap *slogbaggage.Snapshot) error {
	if s.onDeliver != nil {
		s.onDeliver()
	}
	if s.panicValue != nil {
		panic(s.panicValue)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func (s *captureSink) snapshots() []*slogbaggage.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*slogbaggage.Snapshot(nil), s.snaps...)
}

func (s *captureSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// newTestInterceptor builds an interceptor with the given sinks and options,
// failing the test on error.
func newTestInterceptor(t *testing.T, sinks []slogbaggage.Sink, opts ...slogbaggage.Option) *slogbaggage.Interceptor {
	t.Helper()

	opts = append([]slogbaggage.Option{slogbaggage.WithSinks(sinks...)}, opts...)
	icpt, err := slogbaggage.NewInterceptor(opts...)
	if err != nil {
		t.Fatalf("NewInterceptor returned %v", err)
	}
	t.Cleanup(func() { _ = icpt.Close() })
	return icpt
}

// explodingStringer panics when rendered.
type explodingStringer struct{}

func (explodingStringer) String() string { panic("boom") }

// failingText fails to marshal.
type failingText struct{}

func (failingText) MarshalText() ([]byte, error) { return nil, errors.New("cannot marshal") }
