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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// Interceptor augments log events with their structured pairs and fans the
// resulting [Snapshot] out to the sinks in its [Registry].
//
// An Interceptor is itself a [Sink], so interceptors can be chained.
type Interceptor struct {
	name           string
	cfg            Config
	registry       *Registry
	metrics        *Metrics
	onSinkFault    func(context.Context, string, error)
	internalLogger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ Sink = (*Interceptor)(nil)

// NewInterceptor builds an interceptor. Settings are resolved from defaults,
// then SLOGBAGGAGE_* environment variables, then the TOML file named by
// [WithConfigFile] or SLOGBAGGAGE_CONFIG_FILE, then explicit options.
//
// Example:
//
//	icpt, err := slogbaggage.NewInterceptor(
//		slogbaggage.WithMergeStructuredIntoContext(true),
//		slogbaggage.WithSinks(slogbaggage.NewHandlerSink("console", slog.NewTextHandler(os.Stderr, nil))),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := slog.New(slogbaggage.NewHandler(icpt))
func NewInterceptor(opts ...Option) (*Interceptor, error) {
	builder := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(builder)
		}
	}

	internalLogger := builder.internalLogger
	if internalLogger == nil {
		internalLogger = slog.New(slog.DiscardHandler)
	}

	cfg, path := loadConfigFromEnv(internalLogger)
	if builder.configFile != nil {
		path = strings.TrimSpace(*builder.configFile)
	}
	if path != "" {
		fc, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		fc.apply(&cfg)
	}
	applyOptions(&cfg, builder)

	registry := builder.registry
	if registry == nil {
		registry = NewRegistry()
	}
	for _, s := range builder.sinks {
		if err := registry.Attach(s); err != nil {
			return nil, err
		}
	}

	name := builder.name
	if name == "" {
		name = "slogbaggage"
	}

	return &Interceptor{
		name:           name,
		cfg:            cfg,
		registry:       registry,
		metrics:        builder.metrics,
		onSinkFault:    builder.onSinkFault,
		internalLogger: internalLogger,
	}, nil
}

// Name implements [Sink].
func (i *Interceptor) Name() string { return i.name }

// Config returns the resolved configuration.
func (i *Interceptor) Config() Config { return i.cfg }

// Registry returns the sink registry fed by the interceptor.
func (i *Interceptor) Registry() *Registry { return i.registry }

// Metrics returns the metrics container, which may be nil.
func (i *Interceptor) Metrics() *Metrics { return i.metrics }

// Augment builds the snapshot for ev without delivering it. The caller
// location is read before anything else and copied unchanged.
//
// With MergeStructuredIntoContext, every structured pair whose key is absent
// from the event's own property map is stringified into the snapshot's map;
// pre-existing properties keep their values. With
// MergeStructuredIntoArguments, one [KeyValueArg] per pair is appended to the
// positional arguments in pair order. A non-nil logger context is replaced by
// one carrying the merged property map.
//
// A failure to render a value, or a panic raised by ev, is returned as a
// *[MergeError].
func (i *Interceptor) Augment(ev EventReader) (snap *Snapshot, err error) {
	if ev == nil {
		return nil, &MergeError{Err: errors.New("nil event")}
	}
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = &MergeError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	caller := ev.Caller()
	pairs := ev.KeyValues()
	original := ev.Properties()

	mergeContext := i.cfg.MergeStructuredIntoContext
	mergeArgs := i.cfg.MergeStructuredIntoArguments

	var rendered []string
	if mergeContext || mergeArgs {
		rendered = make([]string, len(pairs))
		for idx, pair := range pairs {
			s, err := Stringify(pair.Value)
			if err != nil {
				return nil, &MergeError{Key: pair.Key, Err: err}
			}
			rendered[idx] = s
		}
	}

	props := maps.Clone(original)
	if props == nil {
		props = make(map[string]string)
	}
	if mergeContext {
		for idx, pair := range pairs {
			if pair.Key == "" {
				continue
			}
			if _, exists := original[pair.Key]; exists {
				continue
			}
			props[pair.Key] = rendered[idx]
		}
	}

	args := slices.Clone(ev.Args())
	if mergeArgs {
		for idx, pair := range pairs {
			args = append(args, KeyValueArg{
				Key:      pair.Key,
				Value:    pair.Value.Resolve().Any(),
				rendered: rendered[idx],
			})
		}
	}

	var loggerContext *LoggerContext
	if lc := ev.LoggerContext(); lc != nil {
		loggerContext = &LoggerContext{
			Name:       lc.Name,
			BirthTime:  lc.BirthTime,
			Properties: maps.Clone(props),
		}
	}

	return &Snapshot{
		time:          ev.Time(),
		level:         ev.Level(),
		message:       ev.Message(),
		args:          args,
		keyValues:     slices.Clone(pairs),
		properties:    props,
		caller:        caller,
		loggerName:    ev.LoggerName(),
		loggerContext: loggerContext,
		err:           ev.Err(),
	}, nil
}

// Append augments ev and delivers the snapshot to every sink attached when
// Append was called, in attachment order. A merge fault is returned before any
// sink sees the event. Sink faults are handled according to the configured
// [FaultPolicy].
func (i *Interceptor) Append(ctx context.Context, ev EventReader) error {
	if i.closed.Load() {
		return ErrClosed
	}
	sinks := i.registry.load()

	snap, err := i.Augment(ev)
	if err != nil {
		i.metrics.IncMergeFault()
		logDiagnostic(i.internalLogger, slog.LevelDebug, "event augmentation failed", slog.Any("error", err))
		return err
	}
	i.metrics.IncAppended()
	return i.fanOut(ctx, sinks, snap)
}

// Deliver implements [Sink] by forwarding an already built snapshot to every
// attached sink.
func (i *Interceptor) Deliver(ctx context.Context, snap *Snapshot) error {
	if i.closed.Load() {
		return ErrClosed
	}
	if snap == nil {
		return nil
	}
	return i.fanOut(ctx, i.registry.load(), snap)
}

// Flush flushes every attached sink that implements [Flusher].
func (i *Interceptor) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range i.registry.load() {
		f, ok := s.(Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(ctx); err != nil {
			errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// Close rejects further events and detaches every sink, closing those that
// implement io.Closer. It runs once; later calls return the first result.
func (i *Interceptor) Close() error {
	i.closeOnce.Do(func() {
		i.closed.Store(true)
		i.closeErr = i.registry.DetachAll()
	})
	return i.closeErr
}

// fanOut delivers snap to sinks in order. Every sink is attempted regardless of
// faults raised by earlier ones.
func (i *Interceptor) fanOut(ctx context.Context, sinks []Sink, snap *Snapshot) error {
	if ctx == nil {
		ctx = context.Background()
	}
	policy := i.cfg.SinkFaults

	var faults []error
	for _, s := range sinks {
		err := deliverIsolated(ctx, s, snap)
		if err == nil {
			i.metrics.IncDelivered(s.Name())
			continue
		}
		i.metrics.IncFailed(s.Name(), errors.Is(err, ErrSinkPanic))
		if policy == FaultSuppress {
			continue
		}
		if policy == FaultReport {
			logDiagnostic(i.internalLogger, slog.LevelWarn, "sink delivery failed",
				slog.String("sink", s.Name()),
				slog.Any("error", err),
			)
		}
		if i.onSinkFault != nil {
			i.onSinkFault(ctx, s.Name(), err)
		}
		faults = append(faults, err)
	}

	if policy == FaultReturn {
		return errors.Join(faults...)
	}
	return nil
}

// deliverIsolated calls s.Deliver, converting panics into a *SinkError that
// wraps ErrSinkPanic.
func deliverIsolated(ctx context.Context, s Sink, snap *Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &SinkError{Sink: s.Name(), Err: fmt.Errorf("%w: %v", ErrSinkPanic, r)}
		}
	}()
	if err := s.Deliver(ctx, snap); err != nil {
		return &SinkError{Sink: s.Name(), Err: err}
	}
	return nil
}
