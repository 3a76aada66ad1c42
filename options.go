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
	"log/slog"
)

// Option configures an [Interceptor].
type Option func(*options)

type options struct {
	mergeIntoContext   *bool
	mergeIntoArguments *bool
	sinkFaults         *FaultPolicy
	loggerName         *string
	level              *slog.Level
	configFile         *string
	name               string
	registry           *Registry
	sinks              []Sink
	metrics            *Metrics
	onSinkFault        func(context.Context, string, error)
	internalLogger     *slog.Logger
}

// WithMergeStructuredIntoContext toggles merging structured pairs into the
// context-property map.
func WithMergeStructuredIntoContext(enabled bool) Option {
	return func(o *options) {
		o.mergeIntoContext = &enabled
	}
}

// WithMergeStructuredIntoArguments toggles appending structured pairs to the
// positional arguments.
func WithMergeStructuredIntoArguments(enabled bool) Option {
	return func(o *options) {
		o.mergeIntoArguments = &enabled
	}
}

// WithFaultPolicy selects how sink faults are surfaced.
func WithFaultPolicy(policy FaultPolicy) Option {
	return func(o *options) {
		o.sinkFaults = &policy
	}
}

// WithOnSinkFault registers a callback invoked for every sink fault unless the
// policy is [FaultSuppress]. It runs on the emitting goroutine.
func WithOnSinkFault(fn func(ctx context.Context, sink string, err error)) Option {
	return func(o *options) {
		o.onSinkFault = fn
	}
}

// WithLoggerName sets the name of the default logger context.
func WithLoggerName(name string) Option {
	return func(o *options) {
		o.loggerName = &name
	}
}

// WithLevel sets the minimum level accepted by handlers built on the
// interceptor.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = &level
	}
}

// WithConfigFile loads settings from a TOML file. File settings override the
// environment and are overridden by explicit options.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configFile = &path
	}
}

// WithName sets the name the interceptor reports when attached as a sink of
// another interceptor.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithRegistry shares an existing registry instead of creating one.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithSinks attaches sinks in order when the interceptor is built.
func WithSinks(sinks ...Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithMetrics records delivery counters into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithInternalLogger injects an internal logger used for configuration
// diagnostics and sink fault reports.
func WithInternalLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.internalLogger = logger
	}
}

// applyOptions merges explicit options into cfg.
func applyOptions(cfg *Config, o *options) {
	if o.mergeIntoContext != nil {
		cfg.MergeStructuredIntoContext = *o.mergeIntoContext
	}
	if o.mergeIntoArguments != nil {
		cfg.MergeStructuredIntoArguments = *o.mergeIntoArguments
	}
	if o.sinkFaults != nil {
		cfg.SinkFaults = *o.sinkFaults
	}
	if o.loggerName != nil {
		cfg.LoggerName = *o.loggerName
	}
	if o.level != nil {
		cfg.Level = *o.level
	}
}
