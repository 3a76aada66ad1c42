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
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"
)

// RequestInfo captures per-RPC metadata such as method, sizes, latency and
// status.
type RequestInfo struct {
	fullMethod string
	service    string
	method     string
	kind       string
	client     bool
	start      time.Time
	status     atomic.Uint32
	latencyNS  atomic.Int64
	reqBytes   atomic.Int64
	respBytes  atomic.Int64
	peer       atomic.Value
}

const unsetLatencySentinel = int64(-1)

type requestInfoKey struct{}

// InfoFromContext retrieves the RequestInfo attached by the interceptors.
func InfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	if ctx == nil {
		return nil, false
	}
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok && info != nil
}

// newRequestInfo constructs a RequestInfo with derived service and method details.
func newRequestInfo(fullMethod, kind string, client bool, start time.Time) *RequestInfo {
	service, method := splitFullMethod(fullMethod)
	info := &RequestInfo{
		fullMethod: fullMethod,
		service:    service,
		method:     method,
		kind:       kind,
		client:     client,
		start:      start,
	}
	info.status.Store(uint32(codes.OK))
	info.latencyNS.Store(unsetLatencySentinel)
	return info
}

// FullMethod returns the full RPC name, "/service/method".
func (ri *RequestInfo) FullMethod() string { return ri.fullMethod }

// Service returns the service name component of the method.
func (ri *RequestInfo) Service() string { return ri.service }

// Method returns the method name component.
func (ri *RequestInfo) Method() string { return ri.method }

// Kind returns unary, client_stream, server_stream or bidi_stream.
func (ri *RequestInfo) Kind() string { return ri.kind }

// IsClient reports whether the RPC was observed on the client side.
func (ri *RequestInfo) IsClient() bool { return ri.client }

// Peer returns the recorded remote peer address, if any.
func (ri *RequestInfo) Peer() string {
	if s, ok := ri.peer.Load().(string); ok {
		return s
	}
	return ""
}

// Status returns the recorded gRPC status code.
func (ri *RequestInfo) Status() codes.Code { return codes.Code(ri.status.Load()) }

// Latency returns the recorded latency or the elapsed time if the RPC has not
// finished.
func (ri *RequestInfo) Latency() time.Duration {
	if ns := ri.latencyNS.Load(); ns != unsetLatencySentinel {
		return time.Duration(ns)
	}
	return time.Since(ri.start)
}

// RequestBytes returns the total encoded size of request messages.
func (ri *RequestInfo) RequestBytes() int64 { return ri.reqBytes.Load() }

// ResponseBytes returns the total encoded size of response messages.
func (ri *RequestInfo) ResponseBytes() int64 { return ri.respBytes.Load() }

func (ri *RequestInfo) setPeer(peer string) { ri.peer.Store(peer) }

func (ri *RequestInfo) recordRequest(msg any) {
	if size := messageSize(msg); size > 0 {
		ri.reqBytes.Add(size)
	}
}

func (ri *RequestInfo) recordResponse(msg any) {
	if size := messageSize(msg); size > 0 {
		ri.respBytes.Add(size)
	}
}

// finalize stores the terminal status code and latency for the request.
func (ri *RequestInfo) finalize(code codes.Code, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	ri.status.Store(uint32(code))
	ri.latencyNS.Store(duration.Nanoseconds())
}

// loggerAttrs returns the attributes attached to the request-scoped logger.
func (ri *RequestInfo) loggerAttrs(cfg *config) []slog.Attr {
	attrs := make([]slog.Attr, 0, 5)
	attrs = append(attrs, slog.String("rpc.system", "grpc"))
	if ri.service != "" {
		attrs = append(attrs, slog.String("rpc.service", ri.service))
	}
	if ri.method != "" {
		attrs = append(attrs, slog.String("rpc.method", ri.method))
	}
	if ri.kind != "" {
		attrs = append(attrs, slog.String("grpc.type", ri.kind))
	}
	if cfg.includePeer {
		if p := ri.Peer(); p != "" {
			attrs = append(attrs, slog.String("network.peer.address", p))
		}
	}
	return attrs
}

// splitFullMethod splits "/pkg.Service/Method" into its components.
func splitFullMethod(full string) (service, method string) {
	if !strings.HasPrefix(full, "/") {
		return "", strings.TrimSpace(full)
	}
	full = strings.TrimPrefix(full, "/")
	if service, method, ok := strings.Cut(full, "/"); ok {
		return service, method
	}
	return full, ""
}

// messageSize returns the encoded size of a gRPC message when possible.
func messageSize(msg any) int64 {
	switch m := msg.(type) {
	case nil:
		return 0
	case proto.Message:
		return int64(proto.Size(m))
	case interface{ Size() int }:
		return int64(m.Size())
	default:
		return 0
	}
}
