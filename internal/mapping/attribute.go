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

// Package mapping converts asset records into RDF triples using a static, declarative
// table of field attributes.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/knakk/rdf"

	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

var (
	ErrUnsupportedValue  = errors.New("unsupported value")
	ErrMissingIdentifier = errors.New("missing object identifier")
	ErrNotAnObject       = errors.New("value is not an object")
)

// Converter turns one field value into an RDF object. Converters may consult the
// store, so they receive the request context.
type Converter func(ctx context.Context, v any) (rdf.Object, error)

// Reverter turns a value read back from the store into its record form.
type Reverter func(v any) any

// IDFunc derives the subject of a nested object from the nested record.
type IDFunc func(rec record.Record) (rdf.Subject, error)

// Attribute is one of Simple, List, Object or ObjectList.
type Attribute interface {
	Predicate() rdf.IRI
	attribute()
}

// Simple emits one triple (subject, predicate, convert(value)).
type Simple struct {
	Pred    rdf.IRI
	Convert Converter
	Revert  Reverter
}

// List emits one triple per element of the value.
type List struct {
	Pred    rdf.IRI
	Convert Converter
	Revert  Reverter
}

// Object links the subject to a nested record and maps the nested fields with
// Attributes, using the nested subject. ID defaults to a fresh blank node.
type Object struct {
	Pred       rdf.IRI
	Attributes *Registry
	ID         IDFunc
	Type       rdf.IRI
}

// ObjectList applies Object to every element of a list of nested records.
type ObjectList struct {
	Object
}

func (a Simple) Predicate() rdf.IRI     { return a.Pred }
func (a List) Predicate() rdf.IRI       { return a.Pred }
func (a Object) Predicate() rdf.IRI     { return a.Pred }
func (a ObjectList) Predicate() rdf.IRI { return a.Pred }

func (Simple) attribute()     {}
func (List) attribute()       {}
func (Object) attribute()     {}
func (ObjectList) attribute() {}

func (a Simple) triples(ctx context.Context, subject rdf.Subject, v any) ([]rdf.Triple, error) {
	obj, err := convert(ctx, a.Convert, v)
	if err != nil {
		return nil, err
	}
	return []rdf.Triple{{Subj: subject, Pred: a.Pred, Obj: obj}}, nil
}

func (a List) triples(ctx context.Context, subject rdf.Subject, v any) ([]rdf.Triple, error) {
	var out []rdf.Triple
	for _, el := range elements(v) {
		if record.IsEmpty(el) {
			continue
		}
		obj, err := convert(ctx, a.Convert, el)
		if err != nil {
			return nil, err
		}
		out = append(out, rdf.Triple{Subj: subject, Pred: a.Pred, Obj: obj})
	}
	return out, nil
}

func (a Object) triples(ctx context.Context, subject rdf.Subject, v any) ([]rdf.Triple, error) {
	nested, ok := asRecord(v)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotAnObject, v)
	}
	ref, err := a.subject(nested)
	if err != nil {
		return nil, err
	}
	out := []rdf.Triple{{Subj: subject, Pred: a.Pred, Obj: ref.(rdf.Object)}}
	if a.Type != (rdf.IRI{}) {
		out = append(out, rdf.Triple{Subj: ref, Pred: vocab.RDFType, Obj: a.Type})
	}
	if a.Attributes != nil {
		inner, err := a.Attributes.Triples(ctx, ref, nested)
		if err != nil {
			return nil, err
		}
		out = append(out, inner...)
	}
	return out, nil
}

func (a ObjectList) triples(ctx context.Context, subject rdf.Subject, v any) ([]rdf.Triple, error) {
	var out []rdf.Triple
	for _, el := range elements(v) {
		if record.IsEmpty(el) {
			continue
		}
		t, err := a.Object.triples(ctx, subject, el)
		if err != nil {
			return nil, err
		}
		out = append(out, t...)
	}
	return out, nil
}

func (a Object) subject(nested record.Record) (rdf.Subject, error) {
	if a.ID != nil {
		return a.ID(nested)
	}
	return FreshBlank()
}

// FreshBlank mints an anonymous node with a unique label.
func FreshBlank() (rdf.Blank, error) {
	return rdf.NewBlank("b" + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// IDFromField takes the nested subject from an IRI held in the given field.
func IDFromField(field string) IDFunc {
	return func(rec record.Record) (rdf.Subject, error) {
		s, ok := rec.String(field)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingIdentifier, field)
		}
		return rdf.NewIRI(s)
	}
}

func convert(ctx context.Context, c Converter, v any) (rdf.Object, error) {
	if c != nil {
		return c(ctx, v)
	}
	return Term(v)
}

// elements flattens a list-shaped value. A scalar counts as a single element.
func elements(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case *record.Set:
		return t.Sorted()
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []record.Record:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out
	}
	return []any{v}
}

func asRecord(v any) (record.Record, bool) {
	switch t := v.(type) {
	case record.Record:
		return t, true
	case map[string]any:
		return record.Record(t), true
	}
	return nil, false
}
