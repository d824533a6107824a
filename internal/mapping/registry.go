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

package mapping

import (
	"context"
	"fmt"

	"github.com/knakk/rdf"

	"github.com/mimiro-io/catalogue-api/internal/record"
)

// Field binds a record field name to its attribute.
type Field struct {
	Name string
	Attr Attribute
}

// Registry is an immutable, ordered field table. Build it once at startup.
type Registry struct {
	fields []Field
	byName map[string]Attribute
	byPred map[string]string
}

func NewRegistry(fields ...Field) *Registry {
	r := &Registry{
		fields: fields,
		byName: make(map[string]Attribute, len(fields)),
		byPred: make(map[string]string, len(fields)),
	}
	for _, f := range fields {
		if _, dup := r.byName[f.Name]; dup {
			panic(fmt.Sprintf("mapping: duplicate field %q", f.Name))
		}
		r.byName[f.Name] = f.Attr
		p := f.Attr.Predicate().String()
		if _, seen := r.byPred[p]; !seen {
			r.byPred[p] = f.Name
		}
	}
	return r
}

func (r *Registry) Lookup(field string) (Attribute, bool) {
	a, ok := r.byName[field]
	return a, ok
}

// FieldFor returns the first field mapped to the given predicate IRI.
func (r *Registry) FieldFor(predicate string) (string, bool) {
	f, ok := r.byPred[predicate]
	return f, ok
}

// Triples maps every known, non-empty field of rec to triples about subject.
// Fields follow declaration order; unknown fields are skipped. Converter errors
// are returned unchanged, wrapped with the field name.
func (r *Registry) Triples(ctx context.Context, subject rdf.Subject, rec record.Record) ([]rdf.Triple, error) {
	var out []rdf.Triple
	for _, f := range r.fields {
		v, ok := rec[f.Name]
		if !ok || record.IsEmpty(v) {
			continue
		}
		var (
			t   []rdf.Triple
			err error
		)
		switch a := f.Attr.(type) {
		case Simple:
			t, err = a.triples(ctx, subject, v)
		case List:
			t, err = a.triples(ctx, subject, v)
		case Object:
			t, err = a.triples(ctx, subject, v)
		case ObjectList:
			t, err = a.triples(ctx, subject, v)
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out = append(out, t...)
	}
	return out, nil
}

// Revert applies the read-side inverse of each field that declares one. Sets are
// reverted element by element.
func (r *Registry) Revert(rec record.Record) record.Record {
	out := rec.Copy()
	for field, v := range rec {
		var rev Reverter
		switch a := r.byName[field].(type) {
		case Simple:
			rev = a.Revert
		case List:
			rev = a.Revert
		}
		if rev == nil {
			continue
		}
		if s, ok := v.(*record.Set); ok {
			reverted := record.NewSet()
			for _, el := range s.Sorted() {
				reverted.Add(rev(el))
			}
			out[field] = reverted
			continue
		}
		out[field] = rev(v)
	}
	return out
}
