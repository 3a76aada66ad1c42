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

package slogbaggage_test

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pjscruggs/slogbaggage"
)

// writeConfig writes a TOML file into a temporary directory.
func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "slogbaggage.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile returned %v", err)
	}
	return path
}

// TestParseConfig covers top-level keys, the [slogbaggage] table and typed
// levels.
func TestParseConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want slogbaggage.Config
	}{
		{
			name: "top level",
			body: "merge_structured_into_context = true\nsink_faults = \"return\"\nlevel = \"debug\"\n",
			want: slogbaggage.Config{MergeStructuredIntoContext: true, SinkFaults: slogbaggage.FaultReturn, LoggerName: "default", Level: slog.LevelDebug},
		},
		{
			name: "table",
			body: "[slogbaggage]\nmerge_structured_into_arguments = true\nlogger_name = \"orders\"\nlevel = 8\n",
			want: slogbaggage.Config{MergeStructuredIntoArguments: true, SinkFaults: slogbaggage.FaultReport, LoggerName: "orders", Level: slog.LevelError},
		},
		{
			name: "empty",
			body: "",
			want: slogbaggage.Config{SinkFaults: slogbaggage.FaultReport, LoggerName: "default", Level: slog.LevelInfo},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			icpt := newTestInterceptor(t, nil, slogbaggage.WithConfigFile(writeConfig(t, tc.body)))
			if diff := cmp.Diff(tc.want, icpt.Config()); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestParseConfigRejectsInvalidValues verifies typed errors for bad input.
func TestParseConfigRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		"merge_structured_into_context = \"yes\"",
		"sink_faults = \"sometimes\"",
		"sink_faults = 3",
		"logger_name = 5",
		"level = \"loud\"",
		"level = true",
		"this is not toml",
	} {
		if _, err := slogbaggage.ParseConfig([]byte(body)); !errors.Is(err, slogbaggage.ErrInvalidConfig) {
			t.Fatalf("ParseConfig(%q) error = %v, want ErrInvalidConfig", body, err)
		}
	}
}

// TestNewInterceptorMissingConfigFile verifies a missing file fails the build.
func TestNewInterceptorMissingConfigFile(t *testing.T) {
	t.Parallel()

	_, err := slogbaggage.NewInterceptor(slogbaggage.WithConfigFile(filepath.Join(t.TempDir(), "absent.toml")))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("NewInterceptor error = %v, want os.ErrNotExist", err)
	}
}

// TestParseLevelAndPolicy covers the spellings accepted by both parsers.
func TestParseLevelAndPolicy(t *testing.T) {
	t.Parallel()

	levels := map[string]slog.Level{
		"debug": slog.LevelDebug, " INFO ": slog.LevelInfo, "warning": slog.LevelWarn,
		"error": slog.LevelError, "-2": slog.Level(-2), "info+2": slog.Level(2),
	}
	for in, want := range levels {
		got, err := slogbaggage.ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := slogbaggage.ParseLevel("verbose"); !errors.Is(err, slogbaggage.ErrInvalidConfig) {
		t.Fatalf("ParseLevel(verbose) error = %v", err)
	}

	policies := map[string]slogbaggage.FaultPolicy{
		"suppress": slogbaggage.FaultSuppress, "ignore": slogbaggage.FaultSuppress,
		"report": slogbaggage.FaultReport, "LOG": slogbaggage.FaultReport,
		"return": slogbaggage.FaultReturn, "join": slogbaggage.FaultReturn,
	}
	for in, want := range policies {
		got, err := slogbaggage.ParseFaultPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseFaultPolicy(%q) = %v, %v; want %v", in, got, err, want)
		}
		if back, _ := slogbaggage.ParseFaultPolicy(got.String()); back != got {
			t.Fatalf("ParseFaultPolicy(%q.String()) = %v", got, back)
		}
	}
	if got := slogbaggage.FaultPolicy(9).String(); got != "FaultPolicy(9)" {
		t.Fatalf("String = %q", got)
	}
}

// TestConfigFromEnvironment verifies SLOGBAGGAGE_* variables are applied.
func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("SLOGBAGGAGE_MERGE_INTO_CONTEXT", "true")
	t.Setenv("SLOGBAGGAGE_MERGE_INTO_ARGUMENTS", "1")
	t.Setenv("SLOGBAGGAGE_SINK_FAULTS", "suppress")
	t.Setenv("SLOGBAGGAGE_LOGGER_NAME", "env-name")
	t.Setenv("SLOGBAGGAGE_LEVEL", "warn")

	icpt := newTestInterceptor(t, nil)
	want := slogbaggage.Config{
		MergeStructuredIntoContext:   true,
		MergeStructuredIntoArguments: true,
		SinkFaults:                   slogbaggage.FaultSuppress,
		LoggerName:                   "env-name",
		Level:                        slog.LevelWarn,
	}
	if diff := cmp.Diff(want, icpt.Config()); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

// TestConfigInvalidEnvironmentIgnored verifies bad values keep defaults and
// are reported.
func TestConfigInvalidEnvironmentIgnored(t *testing.T) {
	t.Setenv("SLOGBAGGAGE_MERGE_INTO_CONTEXT", "maybe")
	t.Setenv("SLOGBAGGAGE_SINK_FAULTS", "sometimes")
	t.Setenv("SLOGBAGGAGE_LEVEL", "loud")

	var diag bytes.Buffer
	icpt := newTestInterceptor(t, nil, slogbaggage.WithInternalLogger(slog.New(slog.NewTextHandler(&diag, nil))))
	cfg := icpt.Config()
	if cfg.MergeStructuredIntoContext || cfg.SinkFaults != slogbaggage.FaultReport || cfg.Level != slog.LevelInfo {
		t.Fatalf("config = %+v, want defaults", cfg)
	}
	for _, msg := range []string{"invalid boolean environment variable", "invalid sink fault policy", "invalid log level environment variable"} {
		if !strings.Contains(diag.String(), msg) {
			t.Fatalf("diagnostics %q missing %q", diag.String(), msg)
		}
	}
}

// TestConfigPrecedence verifies options override the file, which overrides
// the environment.
func TestConfigPrecedence(t *testing.T) {
	path := writeConfig(t, "merge_structured_into_context = false\nmerge_structured_into_arguments = true\nlogger_name = \"file\"\n")
	t.Setenv("SLOGBAGGAGE_MERGE_INTO_CONTEXT", "true")
	t.Setenv("SLOGBAGGAGE_LOGGER_NAME", "env")
	t.Setenv("SLOGBAGGAGE_SINK_FAULTS", "return")
	t.Setenv("SLOGBAGGAGE_CONFIG_FILE", path)

	icpt := newTestInterceptor(t, nil, slogbaggage.WithMergeStructuredIntoArguments(false))
	want := slogbaggage.Config{
		MergeStructuredIntoContext:   false,
		MergeStructuredIntoArguments: false,
		SinkFaults:                   slogbaggage.FaultReturn,
		LoggerName:                   "file",
		Level:                        slog.LevelInfo,
	}
	if diff := cmp.Diff(want, icpt.Config()); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}
