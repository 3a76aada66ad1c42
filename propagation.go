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

package slogbaggage

import (
	"os"
	"strconv"
	"strings"
	"sync"

	gcppropagator "github.com/GoogleCloudPlatform/opentelemetry-operations-go/propagator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const envPropagatorAutoSet = "SLOGBAGGAGE_PROPAGATOR_AUTOSET"

var installPropagatorOnce sync.Once

// EnsurePropagation installs a composite OpenTelemetry text map propagator
// that carries W3C baggage alongside trace context, so baggage set by a caller
// reaches the contexts seen by the processors in this module. The
// configuration is applied at most once per process and is skipped when
// SLOGBAGGAGE_PROPAGATOR_AUTOSET is set to a false value.
//
// The installed propagator order is:
//  1. CloudTraceOneWayPropagator (extracts X-Cloud-Trace-Context only)
//  2. TraceContext (W3C traceparent/tracestate)
//  3. Baggage
//
// The HTTP and gRPC subpackages call EnsurePropagation when their middleware
// is built. Applications remain free to override the global propagator
// afterwards with otel.SetTextMapPropagator.
func EnsurePropagation() {
	installPropagatorOnce.Do(func() {
		if !autoSetEnabled() {
			return
		}
		otel.SetTextMapPropagator(Propagator())
	})
}

// Propagator returns the composite propagator installed by
// [EnsurePropagation] without installing it.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		gcppropagator.CloudTraceOneWayPropagator{},
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// autoSetEnabled reports whether automatic propagator installation is enabled.
// Unparsable values leave it enabled.
func autoSetEnabled() bool {
	raw := strings.TrimSpace(os.Getenv(envPropagatorAutoSet))
	if raw == "" {
		return true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return b
}
