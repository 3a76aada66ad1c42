// Copyright 2025-2026 Patrick J. Scruggs
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

package slogbaggagegrpc

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/slogbaggage"
)

// AttrEnricher can append additional attributes to the request-scoped logger.
type AttrEnricher func(ctx context.Context, info *RequestInfo) []slog.Attr

// Option configures gRPC interceptors and helper functions.
type Option func(*config)

type config struct {
	logger            *slog.Logger
	enableOTel        bool
	tracerProvider    trace.TracerProvider
	propagators       propagation.TextMapPropagator
	filters           []otelgrpc.Filter
	attrEnrichers     []AttrEnricher
	includePeer       bool
	includeSizes      bool
	baggageProperties bool
	baggageFilter     func(slogbaggage.Member) bool
}

// defaultConfig returns the baseline configuration for the gRPC helpers.
func defaultConfig() *config {
	return &config{
		logger:       slog.Default(),
		enableOTel:   true,
		includePeer:  true,
		includeSizes: true,
	}
}

// applyOptions applies the provided Option list, starting from defaultConfig.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

func (cfg *config) propagator() propagation.TextMapPropagator {
	if cfg.propagators != nil {
		return cfg.propagators
	}
	return otel.GetTextMapPropagator()
}

// WithLogger overrides the base logger used to derive per-RPC loggers.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = slog.Default()
			return
		}
		cfg.logger = logger
	}
}

// WithPropagators sets the text map propagator used for extracting metadata
// (server) or injecting metadata (client). When omitted, the global propagator
// is used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
	}
}

// WithTracerProvider configures the tracer provider used by the otelgrpc
// stats handlers.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithOTel enables or disables automatic otelgrpc stats handlers. Enabled by
// default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithFilter appends an otelgrpc filter applied before spans are created.
func WithFilter(filter otelgrpc.Filter) Option {
	return func(cfg *config) {
		if filter != nil {
			cfg.filters = append(cfg.filters, filter)
		}
	}
}

// WithAttrEnricher registers a callback for adding attributes to derived
// loggers.
func WithAttrEnricher(enricher AttrEnricher) Option {
	return func(cfg *config) {
		if enricher != nil {
			cfg.attrEnrichers = append(cfg.attrEnrichers, enricher)
		}
	}
}

// WithPeerInfo toggles inclusion of the peer address attribute. Enabled by
// default.
func WithPeerInfo(enabled bool) Option {
	return func(cfg *config) {
		cfg.includePeer = enabled
	}
}

// WithPayloadSizes toggles recording of request and response message sizes.
// Enabled by default.
func WithPayloadSizes(enabled bool) Option {
	return func(cfg *config) {
		cfg.includeSizes = enabled
	}
}

// WithBaggageProperties copies incoming baggage into the context-property map
// on server interceptors. Disabled by default.
func WithBaggageProperties(enabled bool) Option {
	return func(cfg *config) {
		cfg.baggageProperties = enabled
	}
}

// WithBaggageFilter restricts which members [WithBaggageProperties] copies.
func WithBaggageFilter(filter func(slogbaggage.Member) bool) Option {
	return func(cfg *config) {
		cfg.baggageFilter = filter
	}
}
