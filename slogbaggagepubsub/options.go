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

package slogbaggagepubsub

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/slogbaggage"
)

const defaultConsumerSpanName = "pubsub.process"

// AttrEnricher can append additional attributes to the derived message logger.
type AttrEnricher func(context.Context, *Message, *MessageInfo) []slog.Attr

// Option configures slogbaggagepubsub behavior.
type Option func(*config)

type config struct {
	logger                    *slog.Logger
	subscriptionID            string
	topicID                   string
	enableOTel                bool
	tracerProvider            trace.TracerProvider
	propagators               propagation.TextMapPropagator
	propagateBaggage          bool
	caseInsensitiveExtraction bool
	spanName                  string
	spanAttributes            []attribute.KeyValue
	logMessageID              bool
	logDeliveryAttempt        bool
	baggageProperties         bool
	baggageFilter             func(slogbaggage.Member) bool
	attrEnrichers             []AttrEnricher
	googClientExtraction      bool
	googClientInjection       bool
}

func defaultConfig() *config {
	return &config{
		logger:             slog.Default(),
		enableOTel:         true,
		propagateBaggage:   true,
		spanName:           defaultConsumerSpanName,
		logDeliveryAttempt: true,
	}
}

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

// WithLogger sets the base logger used to derive per-message loggers.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = slog.Default()
			return
		}
		cfg.logger = logger
	}
}

// WithSubscriptionID sets the subscription identifier used for span and logger
// enrichment.
func WithSubscriptionID(subscriptionID string) Option {
	return func(cfg *config) {
		cfg.subscriptionID = strings.TrimSpace(subscriptionID)
	}
}

// WithTopicID sets the topic identifier used for span and logger enrichment.
func WithTopicID(topicID string) Option {
	return func(cfg *config) {
		cfg.topicID = strings.TrimSpace(topicID)
	}
}

// WithOTel enables or disables the consumer span started around the handler.
// Baggage is extracted either way. Enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithTracerProvider installs the tracer provider used for consumer spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithPropagators supplies the TextMapPropagator used for injection and
// extraction. When omitted, otel.GetTextMapPropagator() is used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
	}
}

// WithBaggagePropagation controls whether the `baggage` attribute is written
// and read. Enabled by default. Disable it for topics whose consumers are
// outside the trust boundary.
func WithBaggagePropagation(enabled bool) Option {
	return func(cfg *config) {
		cfg.propagateBaggage = enabled
	}
}

// WithCaseInsensitiveExtraction treats propagation keys as case-insensitive
// during extraction. Disabled by default because message attributes are
// case-sensitive.
func WithCaseInsensitiveExtraction(enabled bool) Option {
	return func(cfg *config) {
		cfg.caseInsensitiveExtraction = enabled
	}
}

// WithSpanName overrides the consumer span name.
func WithSpanName(name string) Option {
	return func(cfg *config) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		cfg.spanName = name
	}
}

// WithSpanAttributes appends attributes applied to consumer spans.
func WithSpanAttributes(attrs ...attribute.KeyValue) Option {
	return func(cfg *config) {
		cfg.spanAttributes = append(cfg.spanAttributes, attrs...)
	}
}

// WithLogMessageID controls whether derived loggers include the message ID.
// Disabled by default because message IDs are high cardinality.
func WithLogMessageID(enabled bool) Option {
	return func(cfg *config) {
		cfg.logMessageID = enabled
	}
}

// WithLogDeliveryAttempt controls whether derived loggers include the delivery
// attempt when known. Enabled by default.
func WithLogDeliveryAttempt(enabled bool) Option {
	return func(cfg *config) {
		cfg.logDeliveryAttempt = enabled
	}
}

// WithBaggageProperties copies the extracted baggage into the
// context-property map seen by the handler. Disabled by default.
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

// WithAttrEnricher registers a callback that can add attributes to the derived
// message logger.
func WithAttrEnricher(enricher AttrEnricher) Option {
	return func(cfg *config) {
		if enricher != nil {
			cfg.attrEnrichers = append(cfg.attrEnrichers, enricher)
		}
	}
}

// WithGoogClientCompat enables both [WithGoogClientExtraction] and
// [WithGoogClientInjection].
func WithGoogClientCompat(enabled bool) Option {
	return func(cfg *config) {
		cfg.googClientExtraction = enabled
		cfg.googClientInjection = enabled
	}
}

// WithGoogClientExtraction falls back to `googclient_`-prefixed trace keys
// when the standard keys carry no valid span context.
func WithGoogClientExtraction(enabled bool) Option {
	return func(cfg *config) {
		cfg.googClientExtraction = enabled
	}
}

// WithGoogClientInjection writes `googclient_`-prefixed trace keys in
// addition to the standard ones.
func WithGoogClientInjection(enabled bool) Option {
	return func(cfg *config) {
		cfg.googClientInjection = enabled
	}
}
