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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/slogbaggage"
)

const instrumentationName = "github.com/pjscruggs/slogbaggage/slogbaggagepubsub"

// Message is the broker-neutral view of a delivered message.
type Message struct {
	ID              string
	Data            []byte
	Attributes      map[string]string
	OrderingKey     string
	PublishTime     time.Time
	DeliveryAttempt *int
}

// HandlerFunc processes one message.
type HandlerFunc func(ctx context.Context, msg *Message) error

type messageInfoKey struct{}

// MessageInfo captures message metadata surfaced to handlers via context.
type MessageInfo struct {
	SubscriptionID string
	TopicID        string
	MessageID      string
	OrderingKey    string
	PublishTime    time.Time

	// Baggage is the baggage extracted from the message attributes.
	Baggage slogbaggage.Baggage

	RemoteTraceID string
	RemoteSpanID  string

	deliveryAttempt  int
	hasDeliveryCount bool
}

// InfoFromContext retrieves the MessageInfo attached by WrapHandler.
func InfoFromContext(ctx context.Context) (*MessageInfo, bool) {
	if ctx == nil {
		return nil, false
	}
	info, ok := ctx.Value(messageInfoKey{}).(*MessageInfo)
	return info, ok && info != nil
}

// DeliveryAttempt returns the delivery attempt count and whether it is known.
func (mi *MessageInfo) DeliveryAttempt() (int, bool) {
	if mi == nil {
		return 0, false
	}
	return mi.deliveryAttempt, mi.hasDeliveryCount
}

// WrapHandler wraps a message handler so it runs with the producer's baggage
// current. Attributes on the message take precedence over baggage and trace
// context already present on the callback context.
//
// Building the wrapper calls [slogbaggage.EnsurePropagation].
func WrapHandler(handler HandlerFunc, opts ...Option) HandlerFunc {
	slogbaggage.EnsurePropagation()
	cfg := applyOptions(opts)
	tracer := resolveTracer(cfg)

	return func(ctx context.Context, msg *Message) error {
		if handler == nil {
			return nil
		}
		var attrs map[string]string
		if msg != nil {
			attrs = msg.Attributes
		}
		ctx, remote := extractAttributes(ctx, attrs, cfg)
		if cfg.baggageProperties {
			ctx = slogbaggage.ContextWithBaggageProperties(ctx, cfg.baggageFilter)
		}

		info := newMessageInfo(ctx, cfg, msg, remote)
		ctx = context.WithValue(ctx, messageInfoKey{}, info)

		var span trace.Span
		if cfg.enableOTel {
			ctx, span = tracer.Start(ctx, cfg.spanName,
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(consumerSpanAttrs(cfg, info, msg)...),
			)
			defer span.End()
		}

		logAttrs := info.loggerAttrs(cfg, msg)
		for _, enricher := range cfg.attrEnrichers {
			if extra := enricher(ctx, msg, info); len(extra) > 0 {
				logAttrs = append(logAttrs, extra...)
			}
		}
		ctx = slogbaggage.ContextWithLogger(ctx, loggerWithAttrs(cfg.logger, logAttrs))

		err := handler(ctx, msg)
		if err != nil && span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

func resolveTracer(cfg *config) trace.Tracer {
	if cfg.tracerProvider != nil {
		return cfg.tracerProvider.Tracer(instrumentationName)
	}
	return otel.Tracer(instrumentationName)
}

func newMessageInfo(ctx context.Context, cfg *config, msg *Message, remote trace.SpanContext) *MessageInfo {
	info := &MessageInfo{
		SubscriptionID: cfg.subscriptionID,
		TopicID:        cfg.topicID,
		Baggage:        slogbaggage.BaggageFromContext(ctx),
	}
	if remote.IsValid() && remote.IsRemote() {
		info.RemoteTraceID = remote.TraceID().String()
		info.RemoteSpanID = remote.SpanID().String()
	}
	if msg == nil {
		return info
	}
	info.MessageID = msg.ID
	info.OrderingKey = msg.OrderingKey
	info.PublishTime = msg.PublishTime
	if msg.DeliveryAttempt != nil {
		info.deliveryAttempt = *msg.DeliveryAttempt
		info.hasDeliveryCount = true
	}
	return info
}

func consumerSpanAttrs(cfg *config, info *MessageInfo, msg *Message) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 8+len(cfg.spanAttributes))
	attrs = append(attrs,
		semconv.MessagingSystemGCPPubsub,
		semconv.MessagingOperationName("process"),
		semconv.MessagingOperationTypeDeliver,
	)
	if info.SubscriptionID != "" {
		attrs = append(attrs, semconv.MessagingDestinationName(info.SubscriptionID))
	}
	if info.TopicID != "" {
		attrs = append(attrs, semconv.MessagingDestinationPublishName(info.TopicID))
	}
	if msg != nil {
		if msg.ID != "" {
			attrs = append(attrs, semconv.MessagingMessageID(msg.ID))
		}
		if len(msg.Data) > 0 {
			attrs = append(attrs, semconv.MessagingMessageBodySize(len(msg.Data)))
		}
		if msg.OrderingKey != "" {
			attrs = append(attrs, semconv.MessagingGCPPubsubMessageOrderingKey(msg.OrderingKey))
		}
		if msg.DeliveryAttempt != nil {
			attrs = append(attrs, semconv.MessagingGCPPubsubMessageDeliveryAttempt(*msg.DeliveryAttempt))
		}
	}
	return append(attrs, cfg.spanAttributes...)
}

func (mi *MessageInfo) loggerAttrs(cfg *config, msg *Message) []slog.Attr {
	attrs := []slog.Attr{
		slog.String(string(semconv.MessagingSystemGCPPubsub.Key), semconv.MessagingSystemGCPPubsub.Value.AsString()),
		slog.String(string(semconv.MessagingOperationNameKey), "process"),
	}
	if mi.SubscriptionID != "" {
		attrs = append(attrs, slog.String(string(semconv.MessagingDestinationNameKey), mi.SubscriptionID))
	}
	if mi.TopicID != "" {
		attrs = append(attrs, slog.String(string(semconv.MessagingDestinationPublishNameKey), mi.TopicID))
	}
	if mi.RemoteTraceID != "" {
		attrs = append(attrs, slog.String("pubsub.remote.trace_id", mi.RemoteTraceID))
	}
	if msg == nil {
		return attrs
	}
	if cfg.logMessageID && msg.ID != "" {
		attrs = append(attrs, slog.String(string(semconv.MessagingMessageIDKey), msg.ID))
	}
	if cfg.logDeliveryAttempt && msg.DeliveryAttempt != nil {
		attemptKV := semconv.MessagingGCPPubsubMessageDeliveryAttempt(*msg.DeliveryAttempt)
		attrs = append(attrs, slog.Int(string(attemptKV.Key), *msg.DeliveryAttempt))
	}
	return attrs
}

func loggerWithAttrs(base *slog.Logger, attrs []slog.Attr) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if len(attrs) == 0 {
		return base
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return base.With(args...)
}
