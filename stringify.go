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
	"encoding"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Stringify renders a structured value the way it is stored in a
// context-property map. Protobuf messages render as protojson, text
// marshalers through MarshalText, errors through Error and Stringers through
// String. Failures and panics raised by those methods are returned as errors.
func Stringify(v any) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = ""
			err = fmt.Errorf("render %T: panic: %v", v, r)
		}
	}()
	return stringify(v)
}

// stringify performs the type switch behind Stringify without panic recovery.
func stringify(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "<nil>", nil
	case string:
		return x, nil
	case KeyValueArg:
		return x.String(), nil
	case slog.Value:
		return stringifySlogValue(x)
	case slog.LogValuer:
		return stringifySlogValue(slog.AnyValue(x))
	case proto.Message:
		b, err := protojson.Marshal(x)
		if err != nil {
			return "", fmt.Errorf("render %T: %w", v, err)
		}
		return string(b), nil
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return "", fmt.Errorf("render %T: %w", v, err)
		}
		return string(b), nil
	case error:
		return x.Error(), nil
	case fmt.Stringer:
		return x.String(), nil
	case json.RawMessage:
		return string(x), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// stringifySlogValue resolves LogValuers and renders groups as key=value
// lists.
func stringifySlogValue(v slog.Value) (string, error) {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindAny:
		return stringify(v.Any())
	case slog.KindGroup:
		var b strings.Builder
		b.WriteByte('[')
		for i, a := range v.Group() {
			if i > 0 {
				b.WriteByte(' ')
			}
			s, err := stringifySlogValue(a.Value)
			if err != nil {
				return "", err
			}
			b.WriteString(a.Key)
			b.WriteByte('=')
			b.WriteString(s)
		}
		b.WriteByte(']')
		return b.String(), nil
	default:
		return v.String(), nil
	}
}

// formatMessage substitutes "{}" placeholders in template with rendered args,
// in order. Surplus placeholders are left as-is; surplus args are ignored. A
// backslash escapes a placeholder.
func formatMessage(template string, args []any) string {
	if len(args) == 0 || !strings.Contains(template, "{}") {
		return template
	}
	var b strings.Builder
	b.Grow(len(template) + 16*len(args))
	next := 0
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c == '\\' && i+2 < len(template) && template[i+1] == '{' && template[i+2] == '}' {
			b.WriteString("{}")
			i += 2
			continue
		}
		if c == '{' && i+1 < len(template) && template[i+1] == '}' && next < len(args) {
			s, err := Stringify(args[next])
			if err != nil {
				s = fmt.Sprintf("%v", args[next])
			}
			b.WriteString(s)
			next++
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
