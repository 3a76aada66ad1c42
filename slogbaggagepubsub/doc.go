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

// Package slogbaggagepubsub carries baggage across message broker boundaries.
//
// A publish is not a call, so baggage does not flow the way it does for HTTP
// or gRPC. slogbaggagepubsub helps by:
//   - Injecting the baggage and trace context current in ctx into message
//     attributes before publishing (W3C `baggage`, `traceparent` and
//     `tracestate` with the default propagator).
//   - Extracting them from message attributes on the consumer side, so the
//     handler runs with the producer's baggage current.
//   - Optionally starting a consumer span around message processing. Span
//     processors see the extracted baggage when the span starts.
//   - Deriving a message-scoped *slog.Logger, storing it on the context via
//     slogbaggage.ContextWithLogger, and exposing a MessageInfo snapshot via
//     InfoFromContext.
//
// The package does not depend on a broker client. Callers convert the
// delivered message into a [Message]; for Cloud Pub/Sub that is a copy of
// ID, Data, Attributes, OrderingKey, PublishTime and DeliveryAttempt.
//
// The Go Pub/Sub client writes trace context under `googclient_`-prefixed
// attribute keys. Enable WithGoogClientCompat to read and write those keys
// as well.
package slogbaggagepubsub
