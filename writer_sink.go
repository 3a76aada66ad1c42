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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// SwitchableWriter is an io.Writer whose destination can be replaced while
// writes are in flight. [WriterSink] uses it so a log file can be reopened
// after rotation without rebuilding the sink.
type SwitchableWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSwitchableWriter returns a writer directed at w, or io.Discard when w is
// nil.
func NewSwitchableWriter(w io.Writer) *SwitchableWriter {
	if w == nil {
		w = io.Discard
	}
	return &SwitchableWriter{w: w}
}

// Write sends p to the current destination.
func (sw *SwitchableWriter) Write(p []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.w == nil {
		return 0, os.ErrClosed
	}
	n, err := sw.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("write via switchable writer: %w", err)
	}
	return n, nil
}

// Swap installs w and returns the previous destination without closing it. A
// nil w routes writes to io.Discard.
func (sw *SwitchableWriter) Swap(w io.Writer) io.Writer {
	if w == nil {
		w = io.Discard
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	prev := sw.w
	sw.w = w
	return prev
}

// Current returns the current destination.
func (sw *SwitchableWriter) Current() io.Writer {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w
}

// Close closes the current destination when it is an io.Closer and routes
// later writes to io.Discard.
func (sw *SwitchableWriter) Close() error {
	prev := sw.Swap(io.Discard)
	if c, ok := prev.(io.Closer); ok && !isStdStream(prev) {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close current writer: %w", err)
		}
	}
	return nil
}

var _ io.WriteCloser = (*SwitchableWriter)(nil)

// WriterSink writes each snapshot as one JSON line.
type WriterSink struct {
	name string
	out  *SwitchableWriter
	path string

	bufPool sync.Pool
}

// NewWriterSink writes JSON lines to w. The sink closes w on Close when w is an
// io.Closer other than stdout or stderr.
func NewWriterSink(name string, w io.Writer) *WriterSink {
	return &WriterSink{
		name:    name,
		out:     NewSwitchableWriter(w),
		bufPool: sync.Pool{New: func() any { return new(bytes.Buffer) }},
	}
}

// OpenFileSink appends JSON lines to the file at path, creating it when needed.
// Use [WriterSink.Reopen] after external log rotation.
func OpenFileSink(name, path string) (*WriterSink, error) {
	f, err := openLogFile(path)
	if err != nil {
		return nil, err
	}
	s := NewWriterSink(name, f)
	s.path = path
	return s, nil
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("slogbaggage: open log file %q: %w", path, err)
	}
	return f, nil
}

// Name implements [Sink].
func (s *WriterSink) Name() string { return s.name }

// Deliver implements [Sink].
func (s *WriterSink) Deliver(_ context.Context, snap *Snapshot) error {
	buf := s.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer s.bufPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err := s.out.Write(buf.Bytes())
	return err
}

// Reopen reopens the file passed to [OpenFileSink] and closes the previous
// handle. It is a no-op for sinks built with [NewWriterSink].
func (s *WriterSink) Reopen() error {
	if s.path == "" {
		return nil
	}
	f, err := openLogFile(s.path)
	if err != nil {
		return err
	}
	prev := s.out.Swap(f)
	if c, ok := prev.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("slogbaggage: close previous log file: %w", err)
		}
	}
	return nil
}

// Close closes the underlying writer.
func (s *WriterSink) Close() error {
	return s.out.Close()
}

// isStdStream reports whether w is stdout or stderr.
func isStdStream(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return f == os.Stdout || f == os.Stderr
}
