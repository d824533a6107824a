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

// Package publish turns uploaded CSV tables and create-asset requests into stored
// assets, reporting every problem found instead of stopping at the first.
package publish

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/schema"
)

type Scope string

const (
	ScopeFile  Scope = "FILE"
	ScopeAsset Scope = "ASSET"
	ScopeField Scope = "FIELD"
	ScopeBatch Scope = "BATCH"
)

const (
	msgInvalidColumns   = "File does not have the expected columns"
	msgInconsistentRows = "Rows for the same dataset should be identical apart from distribution"
	msgInvalidAsset     = "Asset failed validation"
	msgNoMatchingRecord = "Invalid option - no matching record found in database"
	msgCannotStore      = "Can't store asset data"
	msgFailedToSave     = "Failed to save data to database"
	msgUnreadableFile   = "Could not read file"
	locationUnknown     = "unknown"
	extraMismatched     = "mismatched_fields"
	extraMissingColumns = "missing_columns"
	extraUnexpectedCols = "unexpected_columns"
	extraValidOptions   = "valid_options"
)

// ErrorInfo is one reported problem. Field errors only appear as sub errors of an
// asset error.
type ErrorInfo struct {
	Scope     Scope          `json:"scope"`
	Location  string         `json:"location"`
	Message   string         `json:"message"`
	Value     any            `json:"value,omitempty"`
	Extras    map[string]any `json:"extras,omitempty"`
	SubErrors []ErrorInfo    `json:"sub_errors,omitempty"`
}

// MarshalJSON always writes the value of a field error, even when it is empty.
func (e ErrorInfo) MarshalJSON() ([]byte, error) {
	type plain ErrorInfo
	if e.Scope != ScopeField {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		Value any `json:"value"`
	}{plain: plain(e), Value: e.Value})
}

func (e ErrorInfo) Error() string {
	if len(e.SubErrors) == 0 {
		return fmt.Sprintf("%s %s: %s", e.Scope, e.Location, e.Message)
	}
	return fmt.Sprintf("%s %s: %s (%d problems)", e.Scope, e.Location, e.Message, len(e.SubErrors))
}

// ErrorCollector accumulates errors across a batch.
type ErrorCollector struct {
	errs []ErrorInfo
}

func (c *ErrorCollector) Add(errs ...ErrorInfo) {
	c.errs = append(c.errs, errs...)
}

func (c *ErrorCollector) HasErrors() bool {
	return len(c.errs) > 0
}

// Errors returns the collected errors, never nil.
func (c *ErrorCollector) Errors() []ErrorInfo {
	if c.errs == nil {
		return []ErrorInfo{}
	}
	return c.errs
}

func fieldError(fe schema.FieldError) ErrorInfo {
	e := ErrorInfo{Scope: ScopeField, Location: fe.Field, Message: fe.Message, Value: fe.Value}
	if len(fe.ValidOptions) > 0 {
		e.Extras = map[string]any{extraValidOptions: fe.ValidOptions}
	}
	return e
}

func noMatchingRecord(field string, value any) ErrorInfo {
	return ErrorInfo{Scope: ScopeField, Location: field, Message: msgNoMatchingRecord, Value: value}
}

func assetError(location string, subErrors []ErrorInfo) ErrorInfo {
	return ErrorInfo{Scope: ScopeAsset, Location: location, Message: msgInvalidAsset, SubErrors: subErrors}
}

// assetLocation names an asset by external identifier, falling back to its title.
func assetLocation(rec record.Record) string {
	if id, ok := rec.String("externalIdentifier"); ok && id != "" {
		return id
	}
	if title, ok := rec.String("title"); ok && title != "" {
		return title
	}
	return locationUnknown
}

// mismatchedFields lists the fields whose values differ between rows that should
// be identical.
func mismatchedFields(rows []record.Record) []string {
	seen := map[string]*record.Set{}
	for _, r := range rows {
		for k, v := range r {
			if seen[k] == nil {
				seen[k] = record.NewSet()
			}
			seen[k].Add(v)
		}
	}
	var out []string
	for k, s := range seen {
		if s.Len() > 1 {
			out = append(out, k)
			continue
		}
		for _, r := range rows {
			if _, ok := r[k]; !ok {
				out = append(out, k)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// FileError reports an upload that could not be read as a table.
func FileError(name string, err error) ErrorInfo {
	return ErrorInfo{
		Scope:    ScopeFile,
		Location: name,
		Message:  msgUnreadableFile,
		Extras:   map[string]any{"error": err.Error()},
	}
}
