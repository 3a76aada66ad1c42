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
)

var (
	// ErrUnsupportedHook is the panic value used when a processor lifecycle
	// hook is invoked after the processor declared it unneeded. It always
	// indicates a wiring bug.
	ErrUnsupportedHook = errors.New("slogbaggage: unsupported lifecycle hook")

	// ErrNilSink is returned when a nil sink is attached.
	ErrNilSink = errors.New("slogbaggage: nil sink")

	// ErrSinkNotComparable is returned when a sink's dynamic type cannot be
	// compared for identity. Use pointer receivers for sink implementations.
	ErrSinkNotComparable = errors.New("slogbaggage: sink type is not comparable")

	// ErrSinkPanic wraps values recovered from a panicking sink.
	ErrSinkPanic = errors.New("slogbaggage: sink panicked")

	// ErrClosed is returned by an interceptor after Close.
	ErrClosed = errors.New("slogbaggage: interceptor closed")

	// ErrInvalidConfig reports an unparsable configuration value.
	ErrInvalidConfig = errors.New("slogbaggage: invalid configuration")
)

// MergeError reports a structured value that could not be rendered while an
// event was being augmented. No sink receives an event that produced a
// MergeError.
type MergeError struct {
	Key string
	Err error
}

// Error implements error.
func (e *MergeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("slogbaggage: augment event: %v", e.Err)
	}
	return fmt.Sprintf("slogbaggage: render structured value %q: %v", e.Key, e.Err)
}

// Unwrap exposes the underlying rendering error.
func (e *MergeError) Unwrap() error { return e.Err }

// SinkError reports a failure raised by a single sink during fan-out.
type SinkError struct {
	Sink string
	Err  error
}

// Error implements error.
func (e *SinkError) Error() string {
	return fmt.Sprintf("slogbaggage: sink %q: %v", e.Sink, e.Err)
}

// Unwrap exposes the sink's error.
func (e *SinkError) Unwrap() error { return e.Err }
