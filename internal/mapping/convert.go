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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knakk/rdf"

	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

const dateLayout = "2006-01-02"

// Term is the default conversion of a scalar value. Dates become xsd:date literals
// without time of day, strings and UUIDs quoted literals.
func Term(v any) (rdf.Object, error) {
	switch t := v.(type) {
	case rdf.IRI:
		return t, nil
	case rdf.Blank:
		return t, nil
	case rdf.Literal:
		return t, nil
	case time.Time:
		return rdf.NewTypedLiteral(t.Format(dateLayout), vocab.XSDDate), nil
	case *time.Time:
		return Term(*t)
	case string:
		return rdf.NewLiteral(t)
	case uuid.UUID:
		return rdf.NewLiteral(t.String())
	case int, int32, int64, float64, bool:
		return rdf.NewLiteral(t)
	case fmt.Stringer:
		return rdf.NewLiteral(t.String())
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// AsIRI converts a URI-valued field into an IRI reference.
func AsIRI(_ context.Context, v any) (rdf.Object, error) {
	switch t := v.(type) {
	case rdf.IRI:
		return t, nil
	case string:
		return rdf.NewIRI(strings.TrimSpace(t))
	case fmt.Stringer:
		return rdf.NewIRI(t.String())
	}
	return nil, fmt.Errorf("%w: %T is not a uri", ErrUnsupportedValue, v)
}

// AsDate converts a time or an ISO date string into an xsd:date literal.
func AsDate(_ context.Context, v any) (rdf.Object, error) {
	switch t := v.(type) {
	case time.Time:
		return Term(t)
	case string:
		for _, layout := range []string{dateLayout, time.RFC3339Nano} {
			if d, err := time.Parse(layout, t); err == nil {
				return Term(d)
			}
		}
		return nil, fmt.Errorf("%w: %q is not a date", ErrUnsupportedValue, t)
	}
	return Term(v)
}

// IRIReverter turns an IRI read from the store back into a record value.
func IRIReverter(fn func(iri string) string) Reverter {
	return func(v any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		return fn(s)
	}
}
