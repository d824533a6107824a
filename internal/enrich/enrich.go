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

// Package enrich normalises aggregated asset records before they are returned:
// list fields become lists, organisation ids become organisations and summary
// views get a summary.
package enrich

import (
	"fmt"
	"reflect"

	"github.com/mimiro-io/catalogue-api/internal/orgs"
	"github.com/mimiro-io/catalogue-api/internal/record"
)

// Projection selects the view an asset is enriched for.
type Projection int

const (
	Detail Projection = iota
	Summary
)

const summaryLength = 100

// ListFields are always returned as lists, whatever shape aggregation left them in.
var ListFields = []string{
	"keyword",
	"alternativeTitle",
	"relatedAssets",
	"theme",
	"servesDataset",
	"distribution",
	"mediaType",
	"creator",
}

type OrganisationLookup interface {
	Lookup(id string) (orgs.Organisation, error)
}

type Enricher struct {
	orgs OrganisationLookup
}

func New(directory OrganisationLookup) *Enricher {
	return &Enricher{orgs: directory}
}

// Enrich returns a normalised copy of rec. An organisation id missing from the
// directory is an error. Enriching an enriched record is a no-op.
func (e *Enricher) Enrich(rec record.Record, p Projection) (record.Record, error) {
	out := rec.Copy()
	ForceLists(out)

	if v, ok := out["organisation"]; ok {
		o, err := e.resolve(v)
		if err != nil {
			return nil, fmt.Errorf("organisation: %w", err)
		}
		out["organisation"] = o
	}
	if v, ok := out["creator"].([]any); ok {
		creators := make([]any, len(v))
		for i, c := range v {
			o, err := e.resolve(c)
			if err != nil {
				return nil, fmt.Errorf("creator: %w", err)
			}
			creators[i] = o
		}
		out["creator"] = creators
	}

	if p == Summary {
		if desc, ok := out.String("description"); ok && !out.Has("summary") {
			out["summary"] = truncate(desc, summaryLength)
		}
		delete(out, "description")
	}
	return out, nil
}

func (e *Enricher) resolve(v any) (orgs.Organisation, error) {
	switch t := v.(type) {
	case orgs.Organisation:
		return t, nil
	case string:
		return e.orgs.Lookup(t)
	}
	return orgs.Organisation{}, fmt.Errorf("%w: %v", orgs.ErrUnknownOrganisation, v)
}

// ForceLists rewrites every list field present in rec as a []any. Sets are
// sorted, scalars wrapped. Absent fields stay absent.
func ForceLists(rec record.Record) {
	for _, field := range ListFields {
		v, ok := rec[field]
		if !ok || v == nil {
			continue
		}
		rec[field] = asList(v)
	}
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case *record.Set:
		return t.Sorted()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
