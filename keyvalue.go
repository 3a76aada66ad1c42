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
	"encoding/json"
	"fmt"
	"log/slog"
)

// KeyValueArg is a positional argument that carries a structured pair. The
// interceptor appends one per structured pair when merging into arguments.
// Its text form is "key=value".
type KeyValueArg struct {
	Key   string
	Value any

	rendered string
}

// NewKeyValueArg renders value eagerly so the argument stays stable even if
// value is mutated later.
func NewKeyValueArg(key string, value any) (KeyValueArg, error) {
	rendered, err := Stringify(value)
	if err != nil {
		return KeyValueArg{}, &MergeError{Key: key, Err: err}
	}
	return KeyValueArg{Key: key, Value: value, rendered: rendered}, nil
}

// String implements fmt.Stringer.
func (kv KeyValueArg) String() string {
	return kv.Key + "=" + kv.RenderedValue()
}

// RenderedValue returns the value as rendered when the argument was built.
// An argument built as a struct literal is rendered on demand; a value that
// cannot be stringified falls back to its fmt form.
func (kv KeyValueArg) RenderedValue() string {
	if kv.rendered != "" || kv.Value == nil {
		return kv.rendered
	}
	if s, err := Stringify(kv.Value); err == nil {
		return s
	}
	return fmt.Sprint(kv.Value)
}

// LogValue renders the pair as a single-attribute group, so slog handlers
// print it as key=value.
func (kv KeyValueArg) LogValue() slog.Value {
	return slog.GroupValue(slog.Any(kv.Key, kv.Value))
}

// MarshalJSON emits the pair as a single-field object, {"key": value}.
func (kv KeyValueArg) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{kv.Key: kv.Value})
}
