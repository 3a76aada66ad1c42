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
	"sort"

	"go.opentelemetry.io/otel/baggage"
)

// Member is a single baggage entry.
type Member struct {
	Key   string
	Value string
}

// Baggage is an immutable, ordered view of the baggage carried by a context.
// The zero value is empty and ready to use.
type Baggage struct {
	members []Member
}

// NewBaggage builds a Baggage from members in the order given. Members with an
// empty key are skipped. A repeated key keeps its first position and takes the
// last value.
func NewBaggage(members ...Member) Baggage {
	if len(members) == 0 {
		return Baggage{}
	}
	out := make([]Member, 0, len(members))
	index := make(map[string]int, len(members))
	for _, m := range members {
		if m.Key == "" {
			continue
		}
		if i, ok := index[m.Key]; ok {
			out[i].Value = m.Value
			continue
		}
		index[m.Key] = len(out)
		out = append(out, m)
	}
	return Baggage{members: out}
}

// FromOTelBaggage converts OpenTelemetry baggage. OpenTelemetry does not
// define a member order, so members are sorted by key to keep attribute
// emission deterministic.
func FromOTelBaggage(b baggage.Baggage) Baggage {
	return fromSortedMembers(sortedMembers(b))
}

// BaggageFromContext returns the baggage current in ctx.
func BaggageFromContext(ctx context.Context) Baggage {
	return fromSortedMembers(MembersFromContext(ctx))
}

// MembersFromContext returns the OpenTelemetry members of the baggage current
// in ctx, sorted by key, with member properties intact. It is the accessor
// behind [BaggageFromContext] and the baggage processors.
func MembersFromContext(ctx context.Context) []baggage.Member {
	if ctx == nil {
		return nil
	}
	return sortedMembers(baggage.FromContext(ctx))
}

func sortedMembers(b baggage.Baggage) []baggage.Member {
	members := b.Members()
	if len(members) == 0 {
		return nil
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Key() < members[j].Key()
	})
	return members
}

func fromSortedMembers(otelMembers []baggage.Member) Baggage {
	if len(otelMembers) == 0 {
		return Baggage{}
	}
	members := make([]Member, 0, len(otelMembers))
	for _, m := range otelMembers {
		members = append(members, Member{Key: m.Key(), Value: m.Value()})
	}
	return NewBaggage(members...)
}

// Len reports the number of members.
func (b Baggage) Len() int { return len(b.members) }

// Members returns a copy of the members in order.
func (b Baggage) Members() []Member {
	if len(b.members) == 0 {
		return nil
	}
	return append([]Member(nil), b.members...)
}

// Get returns the value stored for key.
func (b Baggage) Get(key string) (string, bool) {
	for _, m := range b.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

// Each calls fn for every member in order until fn returns false.
func (b Baggage) Each(fn func(key, value string) bool) {
	for _, m := range b.members {
		if !fn(m.Key, m.Value) {
			return
		}
	}
}

// Map returns the members as a new map.
func (b Baggage) Map() map[string]string {
	out := make(map[string]string, len(b.members))
	for _, m := range b.members {
		out[m.Key] = m.Value
	}
	return out
}

// WithBaggage returns a child of ctx whose baggage carries members on top of
// whatever baggage ctx already holds. ctx itself is never modified, so the
// previous baggage is back in effect as soon as the caller stops using the
// returned context.
func WithBaggage(ctx context.Context, members ...Member) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	bag := baggage.FromContext(ctx)
	for _, m := range members {
		member, err := baggage.NewMemberRaw(m.Key, m.Value)
		if err != nil {
			return ctx, fmt.Errorf("slogbaggage: baggage member %q: %w", m.Key, err)
		}
		bag, err = bag.SetMember(member)
		if err != nil {
			return ctx, fmt.Errorf("slogbaggage: set baggage member %q: %w", m.Key, err)
		}
	}
	return baggage.ContextWithBaggage(ctx, bag), nil
}

// RunWithBaggage runs fn with members current. The baggage is scoped to fn:
// it is not visible through ctx before or after the call, including when fn
// returns an error or panics.
func RunWithBaggage(ctx context.Context, members []Member, fn func(context.Context) error) error {
	scoped, err := WithBaggage(ctx, members...)
	if err != nil {
		return err
	}
	return fn(scoped)
}
