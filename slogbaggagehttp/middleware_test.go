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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pjscruggs/slogbaggage"
	"github.com/pjscruggs/slogbaggage/slogbaggageotel"
)

var testPropagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// TestMiddlewareExtractsBaggageIntoContext verifies the handler sees the
// request baggage, the seeded properties and a request-scoped logger.
func TestMiddlewareExtractsBaggageIntoContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var (
		gotBaggage map[string]string
		gotProps   map[string]string
		gotScope   *RequestScope
	)
	handler := Middleware(
		WithLogger(base),
		WithOTel(false),
		WithPropagators(testPropagator),
		WithBaggageProperties(true),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBaggage = slogbaggage.BaggageFromContext(r.Context()).Map()
		gotProps = slogbaggage.PropertiesFromContext(r.Context())
		gotScope, _ = ScopeFromContext(r.Context())
		slogbaggage.Logger(r.Context()).Info("handled")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/widgets", nil)
	req.RemoteAddr = "198.51.100.10:12345"
	req.Header.Set("baggage", "session_id=42,tenant=acme")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	want := map[string]string{"session_id": "42", "tenant": "acme"}
	if diff := cmp.Diff(want, gotBaggage); diff != "" {
		t.Fatalf("baggage mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, gotProps); diff != "" {
		t.Fatalf("properties mismatch (-want +got):\n%s", diff)
	}
	if gotScope == nil {
		t.Fatalf("scope missing from context")
	}
	if gotScope.Method() != http.MethodGet || gotScope.Target() != "/widgets" {
		t.Fatalf("scope = %s %s, want GET /widgets", gotScope.Method(), gotScope.Target())
	}
	if gotScope.ClientIP() != "198.51.100.10" {
		t.Fatalf("scope.ClientIP = %q", gotScope.ClientIP())
	}
	if gotScope.Status() != http.StatusTeapot {
		t.Fatalf("scope.Status = %d, want %d", gotScope.Status(), http.StatusTeapot)
	}
	if gotScope.ResponseSize() != int64(len("short and stout")) {
		t.Fatalf("scope.ResponseSize = %d", gotScope.ResponseSize())
	}
	if _, final := gotScope.Latency(); !final {
		t.Fatalf("latency not finalized")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["http.method"] != http.MethodGet || entry["http.target"] != "/widgets" {
		t.Fatalf("log entry missing request attributes: %v", entry)
	}
}

// TestMiddlewareWithoutBaggageProperties leaves the property map untouched.
func TestMiddlewareWithoutBaggageProperties(t *testing.T) {
	t.Parallel()

	var gotProps map[string]string
	handler := Middleware(WithOTel(false), WithPropagators(testPropagator))(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			gotProps = slogbaggage.PropertiesFromContext(r.Context())
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("baggage", "session_id=42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotProps != nil {
		t.Fatalf("properties = %v, want nil", gotProps)
	}
}

// TestMiddlewareBaggageFilter copies only accepted members.
func TestMiddlewareBaggageFilter(t *testing.T) {
	t.Parallel()

	var gotProps map[string]string
	handler := Middleware(
		WithOTel(false),
		WithPropagators(testPropagator),
		WithBaggageProperties(true),
		WithBaggageFilter(func(m slogbaggage.Member) bool { return m.Key == "tenant" }),
	)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotProps = slogbaggage.PropertiesFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("baggage", "session_id=42,tenant=acme")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if diff := cmp.Diff(map[string]string{"tenant": "acme"}, gotProps); diff != "" {
		t.Fatalf("properties mismatch (-want +got):\n%s", diff)
	}
}

// TestMiddlewareServerSpanCarriesBaggage verifies the span processor sees the
// extracted baggage when otelhttp starts the server span.
func TestMiddlewareServerSpanCarriesBaggage(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(slogbaggageotel.WithSpanProcessors(
		slogbaggageotel.NewSpanProcessor(nil),
		recorder,
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	handler := Middleware(
		WithTracerProvider(tp),
		WithPropagators(testPropagator),
		WithRouteGetter(func(*http.Request) string { return "/widgets/{id}" }),
	)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		if scope, _ := ScopeFromContext(r.Context()); scope.Route() != "/widgets/{id}" {
			t.Errorf("scope.Route = %q", scope.Route())
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/widgets/7", nil)
	req.Header.Set("baggage", "session_id=42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(ended))
	}
	var found bool
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "baggage.session_id" && kv.Value.AsString() == "42" {
			found = true
		}
	}
	if !found {
		t.Fatalf("server span attributes %v missing baggage.session_id", ended[0].Attributes())
	}
}

// TestMiddlewareAttrEnricherAndNilNext covers enrichers and the nil handler
// fallback.
func TestMiddlewareAttrEnricherAndNilNext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Middleware(
		WithLogger(base),
		WithOTel(false),
		WithClientIP(false),
		WithAttrEnricher(func(r *http.Request, _ *RequestScope) []slog.Attr {
			return []slog.Attr{slog.String("tenant", r.Header.Get("X-Tenant"))}
		}),
	)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		slogbaggage.Logger(r.Context()).Info("hi")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant", "acme")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"tenant":"acme"`) {
		t.Fatalf("log output %q missing enriched attribute", out)
	}
	if strings.Contains(out, "network.peer.ip") {
		t.Fatalf("log output %q includes client IP despite WithClientIP(false)", out)
	}

	rr := httptest.NewRecorder()
	Middleware(WithOTel(false))(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("nil next status = %d, want 404", rr.Code)
	}
}
