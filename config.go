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

package slogbaggage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
)

const (
	envMergeIntoContext   = "SLOGBAGGAGE_MERGE_INTO_CONTEXT"
	envMergeIntoArguments = "SLOGBAGGAGE_MERGE_INTO_ARGUMENTS"
	envSinkFaults         = "SLOGBAGGAGE_SINK_FAULTS"
	envLoggerName         = "SLOGBAGGAGE_LOGGER_NAME"
	envLevel              = "SLOGBAGGAGE_LEVEL"
	envConfigFile         = "SLOGBAGGAGE_CONFIG_FILE"
)

const (
	tomlMergeIntoContext   = "merge_structured_into_context"
	tomlMergeIntoArguments = "merge_structured_into_arguments"
	tomlSinkFaults         = "sink_faults"
	tomlLoggerName         = "logger_name"
	tomlLevel              = "level"
)

// FaultPolicy selects what the interceptor does with a fault raised by one
// sink. Every policy isolates the fault: the remaining sinks still receive the
// snapshot.
type FaultPolicy int

const (
	// FaultReport isolates sink faults and reports each one through the
	// internal logger and the OnSinkFault callback. It is the default.
	FaultReport FaultPolicy = iota
	// FaultSuppress isolates sink faults and discards them.
	FaultSuppress
	// FaultReturn isolates sink faults, finishes the fan-out and then returns
	// every fault joined with errors.Join.
	FaultReturn
)

// String returns the configuration spelling of p.
func (p FaultPolicy) String() string {
	switch p {
	case FaultSuppress:
		return "suppress"
	case FaultReport:
		return "report"
	case FaultReturn:
		return "return"
	default:
		return "FaultPolicy(" + strconv.Itoa(int(p)) + ")"
	}
}

// ParseFaultPolicy parses the configuration spelling of a fault policy.
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "suppress", "silent", "ignore":
		return FaultSuppress, nil
	case "report", "log", "warn":
		return FaultReport, nil
	case "return", "propagate", "join":
		return FaultReturn, nil
	default:
		return FaultReport, fmt.Errorf("%w: sink fault policy %q", ErrInvalidConfig, s)
	}
}

// ParseLevel parses a slog level name ("debug", "info", "warn", "error") or a
// numeric level.
func ParseLevel(s string) (slog.Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	switch trimmed {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	if lv, err := strconv.Atoi(trimmed); err == nil {
		return slog.Level(lv), nil
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(trimmed)); err == nil {
		return lv, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: level %q", ErrInvalidConfig, s)
}

// Config is the resolved interceptor configuration.
type Config struct {
	// MergeStructuredIntoContext inserts stringified structured pairs into the
	// snapshot's context-property map. Existing properties keep their values.
	MergeStructuredIntoContext bool
	// MergeStructuredIntoArguments appends one KeyValueArg per structured
	// pair to the snapshot's positional arguments.
	MergeStructuredIntoArguments bool
	// SinkFaults selects the sink fault policy.
	SinkFaults FaultPolicy
	// LoggerName names the default logger context.
	LoggerName string
	// Level is the minimum level accepted by the slog front-end.
	Level slog.Level
}

// FileConfig holds the settings present in a TOML configuration file. Keys
// absent from the file are nil.
type FileConfig struct {
	MergeStructuredIntoContext   *bool
	MergeStructuredIntoArguments *bool
	SinkFaults                   *FaultPolicy
	LoggerName                   *string
	Level                        *slog.Level
}

// LoadConfigFile reads a TOML configuration file. Keys may appear at the top
// level or inside a [slogbaggage] table.
//
//	merge_structured_into_context = true
//	merge_structured_into_arguments = true
//	sink_faults = "report"
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("slogbaggage: read config file %q: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses TOML configuration text. See LoadConfigFile.
func ParseConfig(data []byte) (*FileConfig, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if sub, ok := tree.Get("slogbaggage").(*toml.Tree); ok {
		tree = sub
	}

	fc := &FileConfig{}
	if fc.MergeStructuredIntoContext, err = treeBool(tree, tomlMergeIntoContext); err != nil {
		return nil, err
	}
	if fc.MergeStructuredIntoArguments, err = treeBool(tree, tomlMergeIntoArguments); err != nil {
		return nil, err
	}
	if raw, err := treeString(tree, tomlSinkFaults); err != nil {
		return nil, err
	} else if raw != nil {
		policy, err := ParseFaultPolicy(*raw)
		if err != nil {
			return nil, err
		}
		fc.SinkFaults = &policy
	}
	if fc.LoggerName, err = treeString(tree, tomlLoggerName); err != nil {
		return nil, err
	}
	if tree.Has(tomlLevel) {
		var lv slog.Level
		switch v := tree.Get(tomlLevel).(type) {
		case string:
			if lv, err = ParseLevel(v); err != nil {
				return nil, err
			}
		case int64:
			lv = slog.Level(v)
		default:
			return nil, fmt.Errorf("%w: %s must be a string or integer, got %T", ErrInvalidConfig, tomlLevel, v)
		}
		fc.Level = &lv
	}
	return fc, nil
}

// treeBool returns the boolean at key, or nil when absent.
func treeBool(tree *toml.Tree, key string) (*bool, error) {
	if !tree.Has(key) {
		return nil, nil
	}
	b, ok := tree.Get(key).(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidConfig, key)
	}
	return &b, nil
}

// treeString returns the string at key, or nil when absent.
func treeString(tree *toml.Tree, key string) (*string, error) {
	if !tree.Has(key) {
		return nil, nil
	}
	s, ok := tree.Get(key).(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidConfig, key)
	}
	return &s, nil
}

// apply overlays the keys present in fc onto cfg.
func (fc *FileConfig) apply(cfg *Config) {
	if fc == nil {
		return
	}
	if fc.MergeStructuredIntoContext != nil {
		cfg.MergeStructuredIntoContext = *fc.MergeStructuredIntoContext
	}
	if fc.MergeStructuredIntoArguments != nil {
		cfg.MergeStructuredIntoArguments = *fc.MergeStructuredIntoArguments
	}
	if fc.SinkFaults != nil {
		cfg.SinkFaults = *fc.SinkFaults
	}
	if fc.LoggerName != nil {
		cfg.LoggerName = *fc.LoggerName
	}
	if fc.Level != nil {
		cfg.Level = *fc.Level
	}
}

// defaultConfig returns the configuration used before any overrides.
func defaultConfig() Config {
	return Config{
		SinkFaults: FaultReport,
		LoggerName: "default",
		Level:      slog.LevelInfo,
	}
}

// loadConfigFromEnv overlays SLOGBAGGAGE_* environment variables on the
// defaults and returns the config file path named by the environment, if any.
// Invalid values are logged and ignored.
func loadConfigFromEnv(logger *slog.Logger) (Config, string) {
	cfg := defaultConfig()

	cfg.MergeStructuredIntoContext = parseBoolEnv(os.Getenv(envMergeIntoContext), cfg.MergeStructuredIntoContext, logger)
	cfg.MergeStructuredIntoArguments = parseBoolEnv(os.Getenv(envMergeIntoArguments), cfg.MergeStructuredIntoArguments, logger)
	cfg.Level = parseLevelEnv(os.Getenv(envLevel), cfg.Level, logger)

	if raw := strings.TrimSpace(os.Getenv(envSinkFaults)); raw != "" {
		policy, err := ParseFaultPolicy(raw)
		if err != nil {
			logDiagnostic(logger, slog.LevelWarn, "invalid sink fault policy", slog.String("value", raw))
		} else {
			cfg.SinkFaults = policy
		}
	}
	if name := strings.TrimSpace(os.Getenv(envLoggerName)); name != "" {
		cfg.LoggerName = name
	}

	return cfg, strings.TrimSpace(os.Getenv(envConfigFile))
}

// parseBoolEnv interprets truthy environment variable values with validation
// diagnostics.
func parseBoolEnv(value string, current bool, logger *slog.Logger) bool {
	if strings.TrimSpace(value) == "" {
		return current
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		logDiagnostic(logger, slog.LevelWarn, "invalid boolean environment variable", slog.String("value", value), slog.Any("error", err))
		return current
	}
	return b
}

// parseLevelEnv parses slog levels from environment variables, retaining the
// current level on failure.
func parseLevelEnv(value string, current slog.Level, logger *slog.Logger) slog.Level {
	if strings.TrimSpace(value) == "" {
		return current
	}
	lv, err := ParseLevel(value)
	if err != nil {
		logDiagnostic(logger, slog.LevelWarn, "invalid log level environment variable", slog.String("value", value))
		return current
	}
	return lv
}

// logDiagnostic emits internal diagnostic messages, guarding against nil
// loggers in tests.
func logDiagnostic(logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
