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

// Package schema validates asset records against the create-asset JSON Schemas
// plus the date rules a schema cannot express.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mimiro-io/catalogue-api/internal/record"
)

//go:embed schemas/*.json
var schemas embed.FS

const (
	msgRequired      = "Field required"
	msgInvalidOption = "Invalid option for field"
	msgPastDate      = "date must be in the past"
	msgDateOrder     = "created date must be before modified date"
	rootField        = "(root)"
	dateLayout       = "2006-01-02"
)

// FieldError is one invalid or missing value.
type FieldError struct {
	Field        string   `json:"field"`
	Message      string   `json:"message"`
	Value        any      `json:"value"`
	ValidOptions []string `json:"valid_options,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type Validator struct {
	schemas map[string]*gojsonschema.Schema
	enums   map[string][]string
	now     func() time.Time
}

func NewValidator() (*Validator, error) {
	v := &Validator{
		schemas: map[string]*gojsonschema.Schema{},
		enums:   map[string][]string{},
		now:     time.Now,
	}
	for assetType, file := range map[string]string{
		"Dataset":     "schemas/dataset.json",
		"DataService": "schemas/dataservice.json",
	} {
		b, err := schemas.ReadFile(file)
		if err != nil {
			return nil, err
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		if err != nil {
			return nil, fmt.Errorf("unable to load schema %s: %w", file, err)
		}
		v.schemas[assetType] = s

		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, err
		}
		collectEnums(doc, v.enums)
	}
	return v, nil
}

// collectEnums indexes enum options by property name. Property names that share an
// enum across schemas share the entry.
func collectEnums(node map[string]any, out map[string][]string) {
	props, _ := node["properties"].(map[string]any)
	for name, p := range props {
		prop, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if enum, ok := prop["enum"].([]any); ok && name != "type" {
			opts := make([]string, 0, len(enum))
			for _, e := range enum {
				opts = append(opts, fmt.Sprint(e))
			}
			out[name] = opts
		}
		collectEnums(prop, out)
		if items, ok := prop["items"].(map[string]any); ok {
			collectEnums(items, out)
		}
	}
}

// Validate returns every problem with rec, sorted by field. An empty result means
// rec is valid.
func (v *Validator) Validate(rec record.Record) []FieldError {
	assetType, _ := rec.String("type")
	s, ok := v.schemas[assetType]
	if !ok {
		return []FieldError{{
			Field:        "type",
			Message:      msgInvalidOption,
			Value:        rec["type"],
			ValidOptions: []string{"DataService", "Dataset"},
		}}
	}

	doc := Document(rec)
	var errs []FieldError
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		errs = append(errs, FieldError{Field: rootField, Message: err.Error(), Value: ""})
	} else {
		for _, re := range result.Errors() {
			errs = append(errs, v.fieldError(re))
		}
	}
	errs = append(errs, v.checkDates(rec)...)

	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Field != errs[j].Field {
			return errs[i].Field < errs[j].Field
		}
		return errs[i].Message < errs[j].Message
	})
	return errs
}

func (v *Validator) fieldError(re gojsonschema.ResultError) FieldError {
	switch re.Type() {
	case "required":
		property, _ := re.Details()["property"].(string)
		return FieldError{Field: join(re.Field(), property), Message: msgRequired, Value: ""}
	case "enum":
		return FieldError{
			Field:        re.Field(),
			Message:      msgInvalidOption,
			Value:        re.Value(),
			ValidOptions: v.enums[leaf(re.Field())],
		}
	}
	return FieldError{Field: re.Field(), Message: re.Description(), Value: re.Value()}
}

func (v *Validator) checkDates(rec record.Record) []FieldError {
	var errs []FieldError
	now := v.now()
	past := func(field string, value any) {
		if d, ok := asDate(value); ok && d.After(now) {
			errs = append(errs, FieldError{Field: field, Message: msgPastDate, Value: value})
		}
	}
	for _, f := range []string{"created", "modified", "issued"} {
		past(f, rec[f])
	}
	if dists, ok := rec["distributions"].([]any); ok {
		for i, d := range dists {
			dr, ok := d.(record.Record)
			if !ok {
				continue
			}
			past(fmt.Sprintf("distributions.%d.modified", i), dr["modified"])
			past(fmt.Sprintf("distributions.%d.issued", i), dr["issued"])
		}
	}
	created, okC := asDate(rec["created"])
	modified, okM := asDate(rec["modified"])
	if okC && okM && created.After(modified) {
		errs = append(errs, FieldError{Field: "created", Message: msgDateOrder, Value: rec["created"]})
	}
	return errs
}

func asDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		d, err := time.Parse(dateLayout, t)
		return d, err == nil
	}
	return time.Time{}, false
}

func join(parent, property string) string {
	if parent == "" || parent == rootField {
		return property
	}
	return parent + "." + property
}

func leaf(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		return field[i+1:]
	}
	return field
}

// Document converts a record into plain JSON values: dates become ISO date
// strings, sets sorted arrays and nested records maps.
func Document(v any) any {
	switch t := v.(type) {
	case record.Record:
		return Document(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Document(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Document(val)
		}
		return out
	case *record.Set:
		return Document(t.Sorted())
	case time.Time:
		return t.Format(dateLayout)
	}
	return v
}
