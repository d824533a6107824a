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

// Package store is the boundary to the triple store: a small executor contract
// over named, parameterised SPARQL templates.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/knakk/rdf"

	"github.com/mimiro-io/catalogue-api/internal/record"
)

var (
	ErrStore           = errors.New("failed to query triple store")
	ErrUnknownTemplate = errors.New("unknown query template")
)

// Bindings are template parameters. Values are inserted verbatim, so they must be
// rendered with IRI, IRIs or Literal first.
type Bindings map[string]string

// Executor runs named query and update templates.
type Executor interface {
	// Query returns one flat record per solution, in result order.
	Query(ctx context.Context, template string, bindings Bindings) ([]record.Record, error)
	Update(ctx context.Context, template string, bindings Bindings) error
}

// IRI renders s as a SPARQL IRI reference.
func IRI(s string) (string, error) {
	iri, err := rdf.NewIRI(s)
	if err != nil {
		return "", err
	}
	return iri.Serialize(rdf.NTriples), nil
}

// IRIs renders a space separated list of IRI references, as used in VALUES blocks.
func IRIs(values []string) (string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		iri, err := IRI(v)
		if err != nil {
			return "", err
		}
		out = append(out, iri)
	}
	return strings.Join(out, " "), nil
}

// Literal renders s as a quoted, escaped string literal.
func Literal(s string) string {
	l, _ := rdf.NewLiteral(s)
	return l.Serialize(rdf.NTriples)
}
