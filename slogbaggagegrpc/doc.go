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

// Package slogbaggagegrpc scopes baggage to gRPC calls.
//
// Server interceptors extract baggage and trace context from incoming
// metadata, optionally copy the baggage into the context-property map and
// attach a request-scoped logger together with a [RequestInfo]. Client
// interceptors inject the baggage current in the call context into outgoing
// metadata. When [WithOTel] is enabled (the default) [ServerOptions] and
// [DialOptions] also install otelgrpc stats handlers, so spans started for
// each RPC pass through the span processors with the caller's baggage.
//
// Typical usage:
//
//	server := grpc.NewServer(
//	    slogbaggagegrpc.ServerOptions(
//	        slogbaggagegrpc.WithBaggageProperties(true),
//	    )...,
//	)
//
//	conn, err := grpc.NewClient(
//	    target,
//	    append(
//	        []grpc.DialOption{grpc.WithTransportCredentials(creds)},
//	        slogbaggagegrpc.DialOptions()...,
//	    )...,
//	)
package slogbaggagegrpc
