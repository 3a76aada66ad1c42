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

// Package slogbaggagehttp scopes baggage to HTTP requests. [Middleware]
// extracts baggage and trace context from incoming headers before otelhttp
// starts the server span, so the span processors see the caller's baggage, and
// can seed the context-property map from it. [Transport] injects the baggage
// current in an outgoing request's context.
package slogbaggagehttp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/pjscruggs/slogbaggage"
)

const instrumentationName = "github.com/pjscruggs/slogbaggage/slogbaggagehttp"

// Middleware returns an http.Handler middleware that makes the request's
// baggage current for the handler chain and derives a request-scoped logger.
//
// Building the middleware calls [slogbaggage.EnsurePropagation].
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	slogbaggage.EnsurePropagation()
	cfg := applyOptions(opts)

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		handlerChain := wrapWithOTel(cfg, buildLoggingHandler(cfg, next))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := cfg.propagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			handlerChain.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildLoggingHandler constructs the logging middleware around the next handler.
func buildLoggingHandler(cfg *config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		scope := newRequestScope(r, start, cfg)

		if cfg.baggageProperties {
			ctx = slogbaggage.ContextWithBaggageProperties(ctx, cfg.baggageFilter)
		}

		attrs := scope.loggerAttrs()
		for _, enricher := range cfg.attrEnrichers {
			if extra := enricher(r, scope); len(extra) > 0 {
				attrs = append(attrs, extra...)
			}
		}
		ctx = slogbaggage.ContextWithLogger(ctx, loggerWithAttrs(cfg.logger, attrs))
		ctx = context.WithValue(ctx, requestScopeKey{}, scope)
		r = r.WithContext(ctx)

		wrapped, recorder := wrapResponseWriter(w, scope)
		defer func() {
			scope.finalize(recorder.Status(), recorder.BytesWritten(), time.Since(start))
		}()

		next.ServeHTTP(wrapped, r)
	})
}

// wrapWithOTel wraps handler with otelhttp middleware when enabled.
func wrapWithOTel(cfg *config, handler http.Handler) http.Handler {
	if !cfg.enableOTel {
		return handler
	}
	return otelhttp.NewHandler(handler, instrumentationName, otelOptions(cfg)...)
}

// otelOptions builds OpenTelemetry handler options from configuration.
func otelOptions(cfg *config) []otelhttp.Option {
	var otelOpts []otelhttp.Option
	if cfg.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagators != nil {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
	}
	if cfg.publicEndpoint {
		otelOpts = append(otelOpts, otelhttp.WithPublicEndpointFn(func(*http.Request) bool {
			return true
		}))
	}
	if cfg.spanNameFormatter != nil {
		otelOpts = append(otelOpts, otelhttp.WithSpanNameFormatter(cfg.spanNameFormatter))
	}
	for _, filter := range cfg.filters {
		otelOpts = append(otelOpts, otelhttp.WithFilter(filter))
	}
	return otelOpts
}

// RequestScope captures request metadata surfaced to handlers via context.
type RequestScope struct {
	start    time.Time
	method   string
	target   string
	route    string
	clientIP string
	outbound bool

	status    atomic.Int64
	respBytes atomic.Int64
	latencyNS atomic.Int64
}

const unsetLatencySentinel = int64(-1)

// newRequestScope builds a RequestScope describing an inbound request.
func newRequestScope(r *http.Request, start time.Time, cfg *config) *RequestScope {
	scope := &RequestScope{
		start:  start,
		method: r.Method,
		route:  r.Pattern,
	}
	if r.URL != nil {
		scope.target = r.URL.Path
	}
	if cfg.routeGetter != nil {
		scope.route = strings.TrimSpace(cfg.routeGetter(r))
	}
	if cfg.includeClientIP {
		scope.clientIP = extractIP(r.RemoteAddr)
	}
	scope.latencyNS.Store(unsetLatencySentinel)
	return scope
}

// loggerAttrs assembles the attributes attached to the request-scoped logger.
func (rs *RequestScope) loggerAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 4)
	if rs.method != "" {
		attrs = append(attrs, slog.String("http.method", rs.method))
	}
	if rs.target != "" {
		attrs = append(attrs, slog.String("http.target", rs.target))
	}
	if rs.route != "" {
		attrs = append(attrs, slog.String("http.route", rs.route))
	}
	if rs.clientIP != "" {
		key := "network.peer.ip"
		if rs.outbound {
			key = "server.address"
		}
		attrs = append(attrs, slog.String(key, rs.clientIP))
	}
	return attrs
}

// Method returns the request method.
func (rs *RequestScope) Method() string { return rs.method }

// Target returns the request path.
func (rs *RequestScope) Target() string { return rs.target }

// Route returns the resolved route template, if any.
func (rs *RequestScope) Route() string { return rs.route }

// ClientIP returns the peer address of an inbound request or the host of an
// outbound one.
func (rs *RequestScope) ClientIP() string { return rs.clientIP }

// Start returns the time the request began processing.
func (rs *RequestScope) Start() time.Time { return rs.start }

// Status returns the response status code with a default of 200.
func (rs *RequestScope) Status() int {
	code := rs.status.Load()
	if code == 0 {
		return http.StatusOK
	}
	return int(code)
}

// ResponseSize returns the number of bytes written to the client.
func (rs *RequestScope) ResponseSize() int64 { return rs.respBytes.Load() }

// Latency returns the latency and whether it is final.
func (rs *RequestScope) Latency() (time.Duration, bool) {
	ns := rs.latencyNS.Load()
	if ns != unsetLatencySentinel {
		return time.Duration(ns), true
	}
	return time.Since(rs.start), false
}

func (rs *RequestScope) setStatus(code int) {
	if code <= 0 {
		code = http.StatusOK
	}
	rs.status.Store(int64(code))
}

func (rs *RequestScope) addResponseBytes(delta int64) {
	if delta > 0 {
		rs.respBytes.Add(delta)
	}
}

// finalize stores the terminal status, byte count, and latency for the request.
func (rs *RequestScope) finalize(status int, bytes int64, d time.Duration) {
	rs.setStatus(status)
	if bytes >= 0 {
		rs.respBytes.Store(bytes)
	}
	if d < 0 {
		d = 0
	}
	rs.latencyNS.Store(d.Nanoseconds())
}

type requestScopeKey struct{}

// ScopeFromContext returns the RequestScope stored by [Middleware] or
// [Transport].
func ScopeFromContext(ctx context.Context) (*RequestScope, bool) {
	if ctx == nil {
		return nil, false
	}
	scope, ok := ctx.Value(requestScopeKey{}).(*RequestScope)
	return scope, ok && scope != nil
}

type responseRecorder struct {
	http.ResponseWriter
	scope        *RequestScope
	status       int
	wroteHeader  bool
	bytesWritten int64
}

// wrapResponseWriter decorates w to capture the status and body size.
func wrapResponseWriter(w http.ResponseWriter, scope *RequestScope) (http.ResponseWriter, *responseRecorder) {
	rec := &responseRecorder{
		ResponseWriter: w,
		scope:          scope,
		status:         http.StatusOK,
	}
	scope.setStatus(http.StatusOK)
	return rec, rec
}

// WriteHeader records the status code before delegating to the wrapped writer.
func (rr *responseRecorder) WriteHeader(status int) {
	if !rr.wroteHeader {
		rr.status = status
		rr.scope.setStatus(status)
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(status)
}

// Write records bytes written and forwards the call to the underlying writer.
func (rr *responseRecorder) Write(p []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	n, err := rr.ResponseWriter.Write(p)
	if n > 0 {
		rr.bytesWritten += int64(n)
		rr.scope.addResponseBytes(int64(n))
	}
	if err != nil {
		return n, fmt.Errorf("write response body: %w", err)
	}
	return n, nil
}

// ReadFrom streams data from src while tracking bytes.
func (rr *responseRecorder) ReadFrom(src io.Reader) (int64, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	n, err := io.Copy(rr.ResponseWriter, src)
	if n > 0 {
		rr.bytesWritten += n
		rr.scope.addResponseBytes(n)
	}
	if err != nil {
		return n, fmt.Errorf("copy response body: %w", err)
	}
	return n, nil
}

// Status returns the HTTP status code that was written to the client.
func (rr *responseRecorder) Status() int { return rr.status }

// BytesWritten reports the cumulative number of bytes sent to the client.
func (rr *responseRecorder) BytesWritten() int64 { return rr.bytesWritten }

// Unwrap exposes the underlying ResponseWriter for http.ResponseController.
func (rr *responseRecorder) Unwrap() http.ResponseWriter { return rr.ResponseWriter }

// Flush forwards to the underlying writer when supported.
func (rr *responseRecorder) Flush() {
	if flusher, ok := rr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack delegates to the wrapped Hijacker when supported.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rr.ResponseWriter.(http.Hijacker); ok {
		conn, rw, err := hijacker.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, rw, nil
	}
	return nil, nil, http.ErrNotSupported
}

// extractIP returns the host part of addr.
func extractIP(addr string) string {
	if host, _, err := net.SplitHostPort(strings.TrimSpace(addr)); err == nil {
		return host
	}
	return strings.TrimSpace(addr)
}

// loggerWithAttrs returns base enriched with attrs.
func loggerWithAttrs(base *slog.Logger, attrs []slog.Attr) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if len(attrs) == 0 {
		return base
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return base.With(args...)
}
