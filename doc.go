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

// Package slogbaggage enriches telemetry with ambient context. It copies
// OpenTelemetry baggage onto spans and log records, and it augments log events
// with their structured key/value pairs before fanning an immutable
// [Snapshot] out to any number of sinks.
//
// ⚠️ This module is untested, and not recommended for any production use. ⚠️
//
// The pieces are:
//   - [Baggage], [WithBaggage] and [RunWithBaggage] read and scope the
//     baggage carried by a context.Context.
//   - [WithProperties] scopes a context-property map, the values every event
//     logged under that context starts from.
//   - [Interceptor] merges structured pairs into the property map and/or the
//     positional arguments of an event, builds a [Snapshot] that keeps the
//     original caller location, and delivers it to the sinks of its
//     [Registry] in attachment order. Properties that were already present
//     keep their values.
//   - [Handler] is a slog front-end that feeds an Interceptor. [EventBuilder]
//     is a fluent front-end for "{}"-style message templates.
//   - [HandlerSink], [WriterSink] and [NewSinkFunc] adapt slog handlers,
//     writers and functions into sinks.
//
// A sink that fails or panics never prevents delivery to the other sinks.
// [FaultPolicy] controls whether such faults are dropped, logged or returned.
//
// # Subpackages
//
//   - [github.com/pjscruggs/slogbaggage/slogbaggageotel] provides the span
//     and log processors that write "baggage."-prefixed attributes, a
//     processor chain that honours hook declarations, and an OpenTelemetry
//     log sink.
//   - [github.com/pjscruggs/slogbaggage/slogbaggageasync] wraps a sink with
//     a bounded queue and background workers.
//   - [github.com/pjscruggs/slogbaggage/slogbaggagehttp] and
//     [github.com/pjscruggs/slogbaggage/slogbaggagegrpc] extract incoming
//     baggage into the request context.
//   - [github.com/pjscruggs/slogbaggage/slogbaggagepubsub] carries baggage
//     in message attributes and scopes it to message handlers.
//
// # Quick Start
//
//	icpt, err := slogbaggage.NewInterceptor(
//	    slogbaggage.WithMergeStructuredIntoContext(true),
//	    slogbaggage.WithMergeStructuredIntoArguments(true),
//	    slogbaggage.WithSinks(slogbaggage.NewWriterSink("stdout", os.Stdout)),
//	)
//	if err != nil {
//	    log.Fatalf("create interceptor: %v", err)
//	}
//	defer icpt.Close()
//
//	logger := slog.New(slogbaggage.NewHandler(icpt))
//	logger.InfoContext(ctx, "hello", "someKey", 93)
//
// # Configuration
//
// Settings resolve from defaults, then environment variables
// (SLOGBAGGAGE_MERGE_INTO_CONTEXT, SLOGBAGGAGE_MERGE_INTO_ARGUMENTS,
// SLOGBAGGAGE_SINK_FAULTS, SLOGBAGGAGE_LOGGER_NAME, SLOGBAGGAGE_LEVEL), then a
// TOML file named by SLOGBAGGAGE_CONFIG_FILE or [WithConfigFile], then
// explicit options. Both merge switches default to false.
package slogbaggage
