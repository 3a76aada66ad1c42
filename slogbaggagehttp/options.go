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

package slogbaggagehttp

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/slogbaggage"
)

// AttrEnricher can append additional attributes to the request-scoped logger.
// Returned attributes are appended in call order.
type AttrEnricher func(*http.Request, *RequestScope) []slog.Attr

// Option configures HTTP middleware or transport behaviour.
type Option func(*config)

type config struct {
	logger            *slog.Logger
	enableOTel        bool
	tracerProvider    trace.TracerProvider
	propagators       propagation.TextMapPropagator
	publicEndpoint    bool
	spanNameFormatter func(string, *http.Request) string
	filters           []otelhttp.Filter
	attrEnrichers     []AttrEnricher
	routeGetter       func(*http.Request) string
	includeClientIP   bool
	baggageProperties bool
	baggageFilter     func(slogbaggage.Member) bool
}

// defaultConfig returns the baseline configuration for the HTTP helpers.
func defaultConfig() *config {
	return &config{
		logger:          slog.Default(),
		enableOTel:      true,
		includeClientIP: true,
	}
}

// applyOptions applies the provided options on top of defaultConfig.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// propagator returns the configured propagator or the global one.
func (cfg *config) propagator() propagation.TextMapPropagator {
	if cfg.propagators != nil {
		return cfg.propagators
	}
	return otel.GetTextMapPropagator()
}

// WithLogger sets the base logger used to derive per-request loggers. When
// nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = slog.Default()
			return
		}
		cfg.logger = logger
	}
}

// WithPropagators supplies the propagator used to extract (server) or inject
// (client) baggage and trace context. When omitted, the global propagator is
// used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
	}
}

// WithTracerProvider installs the tracer provider used by otelhttp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithOTel enables or disables otelhttp instrumentation. It is enabled by
// default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithPublicEndpoint toggles the otelhttp public endpoint hint. Public
// endpoints start new root spans but still extract baggage.
func WithPublicEndpoint(enabled bool) Option {
	return func(cfg *config) {
		cfg.publicEndpoint = enabled
	}
}

// WithSpanNameFormatter customizes otelhttp span naming.
func WithSpanNameFormatter(formatter func(string, *http.Request) string) Option {
	return func(cfg *config) {
		cfg.spanNameFormatter = formatter
	}
}

// WithFilter appends an otelhttp filter applied to inbound requests prior to
// span creation.
func WithFilter(filter otelhttp.Filter) Option {
	return func(cfg *config) {
		if filter != nil {
			cfg.filters = append(cfg.filters, filter)
		}
	}
}

// WithAttrEnricher registers a callback that can add attributes to the derived
// logger.
func WithAttrEnricher(enricher AttrEnricher) Option {
	return func(cfg *config) {
		if enricher != nil {
			cfg.attrEnrichers = append(cfg.attrEnrichers, enricher)
		}
	}
}

// WithRouteGetter overrides how the middleware resolves the route template for
// a request. By default the http.ServeMux pattern is used when present.
func WithRouteGetter(fn func(*http.Request) string) Option {
	return func(cfg *config) {
		cfg.routeGetter = fn
	}
}

// WithClientIP toggles inclusion of the client IP attribute on the derived
// logger. The default is true.
func WithClientIP(enabled bool) Option {
	return func(cfg *config) {
		cfg.includeClientIP = enabled
	}
}

// WithBaggageProperties copies the request's baggage into the
// context-property map, so every event logged while serving the request
// carries it. Disabled by default.
func WithBaggageProperties(enabled bool) Option {
	return func(cfg *config) {
		cfg.baggageProperties = enabled
	}
}

// WithBaggageFilter restricts which baggage members [WithBaggageProperties]
// copies.
func WithBaggageFilter(filter func(slogbaggage.Member) bool) Option {
	return func(cfg *config) {
		cfg.baggageFilter = filter
	}
}
