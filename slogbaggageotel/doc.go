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

// Package slogbaggageotel copies OpenTelemetry baggage onto spans and log
// records as they are created. Every member becomes a string attribute named
// "baggage.<key>", so baggage never overwrites an attribute the application set
// under the bare key.
//
// Span processors are registered through [WithSpanProcessors], which places
// them in a [SpanChain] that only calls the lifecycle hooks each processor asks
// for:
//
//	tp := sdktrace.NewTracerProvider(
//		slogbaggageotel.WithSpanProcessors(
//			slogbaggageotel.NewSpanProcessor(nil),
//			sdktrace.NewBatchSpanProcessor(exporter),
//		),
//	)
//
// Log processors run in registration order on the same *sdklog.Record:
//
//	lp := sdklog.NewLoggerProvider(
//		slogbaggageotel.WithLogProcessors(
//			slogbaggageotel.NewLogProcessor(nil),
//			sdklog.NewBatchProcessor(logExporter),
//		)...,
//	)
//
// [Sink] bridges interceptor output into such a provider so augmented
// snapshots pass through the same processor chain.
package slogbaggageotel
