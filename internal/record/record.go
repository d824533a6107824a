// Copyright 2024 MIMIRO AS
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

// Package record holds the field-name keyed asset representation that flows between
// the mapping, aggregation and enrichment stages.
package record

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Record is one asset (or nested object) as a flat field-name to value mapping.
// Values are strings, time.Time, nested Records, slices of those, or a *Set when a
// field turned out to be multi-valued during aggregation.
type Record map[string]any

// Copy returns a shallow copy of r.
func (r Record) Copy() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether the field is present with a non-empty value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && !IsEmpty(v)
}

// String returns the field as a string if it holds one.
func (r Record) String(field string) (string, bool) {
	s, ok := r[field].(string)
	return s, ok
}

// Without returns a copy of r with the given fields removed.
func (r Record) Without(fields ...string) Record {
	out := r.Copy()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// IsEmpty reports whether v counts as absent: nil, zero values, and empty
// strings, slices and maps.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(*Set); ok {
		return s == nil || s.Len() == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return rv.IsZero()
}

// Key returns the canonical comparison key of a scalar value. Times compare by
// instant regardless of location.
func Key(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return "s:" + t
	case time.Time:
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return "s:" + t.String()
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// Equal compares two scalar values by canonical key.
func Equal(a, b any) bool {
	if _, ok := a.(*Set); ok {
		return false
	}
	if _, ok := b.(*Set); ok {
		return false
	}
	return Key(a) == Key(b)
}

// Set is an unordered collection of distinct scalar values.
type Set struct {
	items map[string]any
}

func NewSet(values ...any) *Set {
	s := &Set{items: make(map[string]any, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was not already present.
func (s *Set) Add(v any) bool {
	k := Key(v)
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = v
	return true
}

func (s *Set) Contains(v any) bool {
	_, ok := s.items[Key(v)]
	return ok
}

func (s *Set) Len() int {
	return len(s.items)
}

// Sorted returns the values in ascending canonical key order.
func (s *Set) Sorted() []any {
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = s.items[k]
	}
	return out
}

// MarshalJSON writes the set as a sorted array.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// Normalize turns decoded JSON objects into Records and arrays into []any, at any
// depth. Other values are returned unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(Record, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case Record:
		return Normalize(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	}
	return v
}
