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
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/pjscruggs/slogbaggage"
)

// Transport returns an http.RoundTripper that injects the baggage and trace
// context of each request's context into its headers and derives a logger per
// outbound request. When otelhttp instrumentation is enabled the result is
// wrapped with otelhttp.NewTransport so client spans are recorded as well.
//
// Building the transport calls [slogbaggage.EnsurePropagation].
func Transport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	slogbaggage.EnsurePropagation()
	cfg := applyOptions(opts)
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = roundTripper{base: base, cfg: cfg}
	if cfg.enableOTel {
		var otelOpts []otelhttp.Option
		if cfg.tracerProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
		}
		if cfg.propagators != nil {
			otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
		}
		rt = otelhttp.NewTransport(rt, otelOpts...)
	}
	return rt
}

type roundTripper struct {
	base http.RoundTripper
	cfg  *config
}

// RoundTrip injects baggage, attaches a request logger and forwards to the
// base transport.
func (t roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("round trip nil request")
	}

	cfg := t.cfg
	ctx := req.Context()
	scope := newClientScope(req, time.Now(), cfg)

	attrs := scope.loggerAttrs()
	for _, enricher := range cfg.attrEnrichers {
		if extra := enricher(req, scope); len(extra) > 0 {
			attrs = append(attrs, extra...)
		}
	}
	ctx = slogbaggage.ContextWithLogger(ctx, loggerWithAttrs(slogbaggage.Logger(ctx), attrs))
	ctx = context.WithValue(ctx, requestScopeKey{}, scope)

	req = req.Clone(ctx)
	cfg.propagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(scope.Start())
	if resp != nil {
		scope.finalize(resp.StatusCode, resp.ContentLength, elapsed)
		if err != nil {
			return resp, fmt.Errorf("round trip request: %w", err)
		}
		return resp, nil
	}

	scope.finalize(0, 0, elapsed)
	if err != nil {
		return nil, fmt.Errorf("round trip request: %w", err)
	}
	return nil, errors.New("round trip request: received no response and no error")
}

// newClientScope builds a RequestScope describing the outbound HTTP request.
func newClientScope(req *http.Request, start time.Time, cfg *config) *RequestScope {
	scope := &RequestScope{
		start:    start,
		method:   req.Method,
		outbound: true,
	}
	if req.URL != nil {
		scope.target = req.URL.Path
	}
	if cfg.includeClientIP {
		scope.clientIP = outboundHost(req)
	}
	scope.latencyNS.Store(unsetLatencySentinel)
	return scope
}

// outboundHost extracts the host name from the outbound request.
func outboundHost(req *http.Request) string {
	host := req.Host
	if req.URL != nil && req.URL.Host != "" {
		host = req.URL.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
