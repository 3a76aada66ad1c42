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
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pjscruggs/slogbaggage"
)

// metadataCarrier adapts gRPC metadata to propagation.TextMapCarrier.
type metadataCarrier struct {
	metadata.MD
}

// Get returns the first value for the provided metadata key.
func (mc metadataCarrier) Get(key string) string {
	values := mc.MD.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Set stores the value under the provided metadata key.
func (mc metadataCarrier) Set(key, value string) {
	mc.MD.Set(key, value)
}

// Keys reports all metadata keys present in the carrier.
func (mc metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc.MD))
	for k := range mc.MD {
		keys = append(keys, k)
	}
	return keys
}

// UnaryServerInterceptor makes the caller's baggage current for unary RPC
// handlers and derives a request-scoped logger.
//
// Building the interceptor calls [slogbaggage.EnsurePropagation].
func UnaryServerInterceptor(opts ...Option) grpc.UnaryServerInterceptor {
	slogbaggage.EnsurePropagation()
	cfg := applyOptions(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		requestInfo := newRequestInfo(info.FullMethod, "unary", false, start)
		ctx = prepareServerContext(ctx, cfg, requestInfo)
		if cfg.includeSizes {
			requestInfo.recordRequest(req)
		}

		resp, err := handler(ctx, req)
		if cfg.includeSizes && err == nil {
			requestInfo.recordResponse(resp)
		}
		requestInfo.finalize(status.Code(err), time.Since(start))
		return resp, err
	}
}

// StreamServerInterceptor makes the caller's baggage current for streaming
// RPC handlers and derives a request-scoped logger.
//
// Building the interceptor calls [slogbaggage.EnsurePropagation].
func StreamServerInterceptor(opts ...Option) grpc.StreamServerInterceptor {
	slogbaggage.EnsurePropagation()
	cfg := applyOptions(opts)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		requestInfo := newRequestInfo(info.FullMethod, streamKind(info.IsClientStream, info.IsServerStream), false, start)
		ctx := prepareServerContext(ss.Context(), cfg, requestInfo)

		err := handler(srv, &serverStream{ServerStream: ss, ctx: ctx, info: requestInfo, cfg: cfg})
		requestInfo.finalize(status.Code(err), time.Since(start))
		return err
	}
}

// UnaryClientInterceptor injects the baggage current in the call context into
// outgoing metadata and derives a logger per RPC.
//
// Building the interceptor calls [slogbaggage.EnsurePropagation].
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	slogbaggage.EnsurePropagation()
	cfg := applyOptions(opts)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		start := time.Now()
		requestInfo := newRequestInfo(method, "unary", true, start)
		if cfg.includeSizes {
			requestInfo.recordRequest(req)
		}
		ctx = injectOutgoing(attachLogger(ctx, cfg, requestInfo), cfg)

		err := invoker(ctx, method, req, reply, cc, callOpts...)
		if cfg.includeSizes && err == nil {
			requestInfo.recordResponse(reply)
		}
		requestInfo.finalize(status.Code(err), time.Since(start))
		return err
	}
}

// StreamClientInterceptor injects the baggage current in the call context
// into outgoing metadata for streaming RPCs.
//
// Building the interceptor calls [slogbaggage.EnsurePropagation].
func StreamClientInterceptor(opts ...Option) grpc.StreamClientInterceptor {
	slogbaggage.EnsurePropagation()
	cfg := applyOptions(opts)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := time.Now()
		requestInfo := newRequestInfo(method, streamKind(desc.ClientStreams, desc.ServerStreams), true, start)
		ctx = injectOutgoing(attachLogger(ctx, cfg, requestInfo), cfg)

		cs, err := streamer(ctx, desc, cc, method, callOpts...)
		if err != nil {
			requestInfo.finalize(status.Code(err), time.Since(start))
			return nil, err
		}
		return &clientStream{ClientStream: cs, cfg: cfg, info: requestInfo, start: start}, nil
	}
}

// ServerOptions returns grpc.ServerOptions that install the otelgrpc stats
// handler and the server interceptors.
func ServerOptions(opts ...Option) []grpc.ServerOption {
	cfg := applyOptions(opts)
	var serverOpts []grpc.ServerOption
	if cfg.enableOTel {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(statsHandlerOptions(cfg)...)))
	}
	return append(serverOpts,
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(opts...)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(opts...)),
	)
}

// DialOptions returns grpc.DialOptions that install the otelgrpc stats
// handler and the client interceptors.
func DialOptions(opts ...Option) []grpc.DialOption {
	cfg := applyOptions(opts)
	var dialOpts []grpc.DialOption
	if cfg.enableOTel {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler(statsHandlerOptions(cfg)...)))
	}
	return append(dialOpts,
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(opts...)),
		grpc.WithChainStreamInterceptor(StreamClientInterceptor(opts...)),
	)
}

// statsHandlerOptions configures otelgrpc instrumentation.
func statsHandlerOptions(cfg *config) []otelgrpc.Option {
	var opts []otelgrpc.Option
	if cfg.tracerProvider != nil {
		opts = append(opts, otelgrpc.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagators != nil {
		opts = append(opts, otelgrpc.WithPropagators(cfg.propagators))
	}
	for _, f := range cfg.filters {
		opts = append(opts, otelgrpc.WithFilter(f))
	}
	return opts
}

// prepareServerContext extracts baggage from incoming metadata, seeds the
// property map when configured and attaches the logger and RequestInfo.
func prepareServerContext(ctx context.Context, cfg *config, info *RequestInfo) context.Context {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = cfg.propagator().Extract(ctx, metadataCarrier{md})
	}
	if cfg.baggageProperties {
		ctx = slogbaggage.ContextWithBaggageProperties(ctx, cfg.baggageFilter)
	}
	if cfg.includePeer {
		if addr, ok := peerAddress(ctx); ok {
			info.setPeer(addr)
		}
	}
	return attachLogger(ctx, cfg, info)
}

// injectOutgoing writes the context's baggage and trace context into a copy
// of the outgoing metadata.
func injectOutgoing(ctx context.Context, cfg *config) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.New(nil)
	}
	cfg.propagator().Inject(ctx, metadataCarrier{md})
	return metadata.NewOutgoingContext(ctx, md)
}

// attachLogger adds a request-scoped logger and RequestInfo to the context.
func attachLogger(ctx context.Context, cfg *config, info *RequestInfo) context.Context {
	attrs := info.loggerAttrs(cfg)
	for _, enricher := range cfg.attrEnrichers {
		if extra := enricher(ctx, info); len(extra) > 0 {
			attrs = append(attrs, extra...)
		}
	}
	ctx = slogbaggage.ContextWithLogger(ctx, loggerWithAttrs(cfg.logger, attrs))
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// peerAddress extracts the remote host portion of the peer address.
func peerAddress(ctx context.Context) (string, bool) {
	pr, ok := peer.FromContext(ctx)
	if !ok || pr == nil || pr.Addr == nil {
		return "", false
	}
	addr := pr.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host, true
	}
	return addr, true
}

// streamKind converts stream direction flags into a kind string.
func streamKind(clientStreams, serverStreams bool) string {
	switch {
	case clientStreams && serverStreams:
		return "bidi_stream"
	case clientStreams:
		return "client_stream"
	case serverStreams:
		return "server_stream"
	default:
		return "unary"
	}
}

type serverStream struct {
	grpc.ServerStream
	ctx  context.Context
	info *RequestInfo
	cfg  *config
}

// Context returns the request context for the wrapped server stream.
func (s *serverStream) Context() context.Context { return s.ctx }

// RecvMsg records inbound payload sizes.
func (s *serverStream) RecvMsg(m any) error {
	err := s.ServerStream.RecvMsg(m)
	if err == nil && s.cfg.includeSizes {
		s.info.recordRequest(m)
	}
	return err
}

// SendMsg records outbound payload sizes.
func (s *serverStream) SendMsg(m any) error {
	if s.cfg.includeSizes {
		s.info.recordResponse(m)
	}
	return s.ServerStream.SendMsg(m)
}

type clientStream struct {
	grpc.ClientStream
	cfg   *config
	info  *RequestInfo
	start time.Time
	once  sync.Once
}

// SendMsg records outbound payload sizes and finalizes the request on error.
func (c *clientStream) SendMsg(m any) error {
	if c.cfg.includeSizes {
		c.info.recordRequest(m)
	}
	err := c.ClientStream.SendMsg(m)
	if err != nil {
		c.finish(status.Code(err))
	}
	return err
}

// RecvMsg records inbound payload sizes and finalizes the request when the
// stream ends.
func (c *clientStream) RecvMsg(m any) error {
	err := c.ClientStream.RecvMsg(m)
	switch {
	case err == nil:
		if c.cfg.includeSizes {
			c.info.recordResponse(m)
		}
	case errors.Is(err, io.EOF):
		c.finish(codes.OK)
	default:
		c.finish(status.Code(err))
	}
	return err
}

// finish finalizes the RequestInfo exactly once.
func (c *clientStream) finish(code codes.Code) {
	c.once.Do(func() {
		c.info.finalize(code, time.Since(c.start))
	})
}

// loggerWithAttrs returns a logger augmented with the supplied attributes.
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
