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

package publish

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/mimiro-io/catalogue-api/internal/asset"
	"github.com/mimiro-io/catalogue-api/internal/record"
)

var ErrEmptyTable = errors.New("table has no header row")

const distributionPrefix = "distribution_"

var commonColumns = []string{
	"externalIdentifier",
	"title",
	"alternativeTitle",
	"summary",
	"description",
	"keyword",
	"theme",
	"publisher",
	"creator",
	"contactPoint_contactName",
	"contactPoint_email",
	"accessRights",
	"securityClassification",
	"licence",
	"version",
	"issued",
	"modified",
	"created",
	"relatedResource",
}

var distributionColumns = []string{
	"distribution_title",
	"distribution_accessService",
	"distribution_identifier",
	"distribution_modified",
	"distribution_issued",
	"distribution_licence",
	"distribution_byteSize",
	"distribution_mediaType",
}

// DatasetColumns and DataServiceColumns are the header rows expected in uploads.
var (
	DatasetColumns     = concat(commonColumns, []string{"updateFrequency"}, distributionColumns)
	DataServiceColumns = concat(commonColumns, []string{"endpointDescription", "endpointURL", "servesData", "serviceStatus", "serviceType"})
)

var (
	renames = map[string]string{
		"creator":         "creatorID",
		"publisher":       "organisationID",
		"relatedResource": "relatedAssets",
		"servesData":      "servesDataset",
	}
	distributionRenames = map[string]string{
		"identifier": "externalIdentifier",
	}
	dateFields = map[string]bool{"issued": true, "modified": true, "created": true}
	listFields = map[string]bool{
		"alternativeTitle": true,
		"theme":            true,
		"keyword":          true,
		"relatedAssets":    true,
		"servesDataset":    true,
		"creatorID":        true,
	}
	ukDateLayouts = []string{"02/01/2006", "2/1/2006", "02-01-2006"}
)

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Table is one uploaded CSV file.
type Table struct {
	Name   string
	Type   string
	Header []string
	Rows   [][]string
}

// ReadTable reads a CSV upload. The first line is a description for humans and is
// skipped; the second line is the header.
func ReadTable(name, assetType string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", name, err)
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, name)
	}
	header := make([]string, len(all[1]))
	for i, h := range all[1] {
		header[i] = strings.TrimSpace(h)
	}
	return &Table{Name: name, Type: assetType, Header: header, Rows: all[2:]}, nil
}

// Expected returns the column contract for the table's asset type.
func (t *Table) Expected() []string {
	if t.Type == asset.TypeDataService {
		return DataServiceColumns
	}
	return DatasetColumns
}

// CheckColumns compares the header with the expected columns as sets.
func (t *Table) CheckColumns() *ErrorInfo {
	have := map[string]bool{}
	for _, h := range t.Header {
		have[h] = true
	}
	want := map[string]bool{}
	var missing, unexpected []string
	for _, c := range t.Expected() {
		want[c] = true
		if !have[c] {
			missing = append(missing, c)
		}
	}
	for _, h := range t.Header {
		if !want[h] {
			unexpected = append(unexpected, h)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	return &ErrorInfo{
		Scope:    ScopeFile,
		Location: t.Name,
		Message:  msgInvalidColumns,
		Extras: map[string]any{
			extraMissingColumns: missing,
			extraUnexpectedCols: unexpected,
		},
	}
}

// rawRecords zips the header with every non-blank row.
func (t *Table) rawRecords() []record.Record {
	var out []record.Record
	for _, row := range t.Rows {
		r := record.Record{}
		blank := true
		for i, h := range t.Header {
			if i >= len(row) {
				break
			}
			v := strings.TrimSpace(row[i])
			if v != "" {
				blank = false
			}
			r[h] = v
		}
		if !blank {
			out = append(out, r)
		}
	}
	return out
}

// Records transforms the rows into asset records. Dataset rows sharing a non-empty
// external identifier become one record with a distributions list; groups whose
// other columns disagree are reported as asset errors.
func (t *Table) Records() ([]record.Record, []ErrorInfo) {
	raw := t.rawRecords()
	if t.Type == asset.TypeDataService {
		out := make([]record.Record, len(raw))
		for i, r := range raw {
			out[i] = cleanup(r, asset.TypeDataService)
		}
		return out, nil
	}

	var (
		groups [][]record.Record
		index  = map[string]int{}
		out    []record.Record
		errs   []ErrorInfo
	)
	for _, r := range raw {
		id, _ := r.String("externalIdentifier")
		if id == "" {
			// rows without an identifier cannot be matched up, so each stands alone
			groups = append(groups, []record.Record{r})
			continue
		}
		if i, ok := index[id]; ok {
			groups[i] = append(groups[i], r)
			continue
		}
		index[id] = len(groups)
		groups = append(groups, []record.Record{r})
	}
	for _, rows := range groups {
		assetRows := make([]record.Record, len(rows))
		for i, r := range rows {
			assetRows[i] = r.Without(distributionColumns...)
		}
		if mismatched := mismatchedFields(assetRows); len(mismatched) > 0 {
			errs = append(errs, ErrorInfo{
				Scope:    ScopeAsset,
				Location: assetLocation(assetRows[0]),
				Message:  msgInconsistentRows,
				Extras:   map[string]any{extraMismatched: mismatched},
			})
			continue
		}
		rec := cleanup(assetRows[0], asset.TypeDataset)
		dists := make([]any, 0, len(rows))
		for _, r := range rows {
			if d := distribution(r); len(d) > 0 {
				dists = append(dists, d)
			}
		}
		if len(dists) > 0 {
			rec["distributions"] = dists
		}
		out = append(out, rec)
	}
	return out, errs
}

// cleanup drops empty values, renames legacy columns, parses dates, splits list
// columns and assembles the contact point.
func cleanup(raw record.Record, assetType string) record.Record {
	out := record.Record{"type": assetType}
	contact := record.Record{}
	for k, v := range raw {
		s, _ := v.(string)
		if s == "" {
			continue
		}
		switch k {
		case "contactPoint_contactName":
			contact["name"] = s
			continue
		case "contactPoint_email":
			contact["email"] = s
			continue
		}
		if renamed, ok := renames[k]; ok {
			k = renamed
		}
		out[k] = convertValue(k, s)
	}
	if len(contact) > 0 {
		out["contactPoint"] = contact
	}
	return out
}

func distribution(row record.Record) record.Record {
	out := record.Record{}
	for _, col := range distributionColumns {
		s, _ := row.String(col)
		if s == "" {
			continue
		}
		k := strings.TrimPrefix(col, distributionPrefix)
		if renamed, ok := distributionRenames[k]; ok {
			k = renamed
		}
		if k == "byteSize" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				out[k] = n
				continue
			}
		}
		out[k] = convertValue(k, s)
	}
	return out
}

func convertValue(field, s string) any {
	switch {
	case dateFields[field]:
		if t, ok := parseDate(s); ok {
			return t
		}
		return s
	case listFields[field]:
		var items []any
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				items = append(items, p)
			}
		}
		return items
	}
	return s
}

// parseDate tries ISO first, then day-first numeric dates, then free text. A value
// that cannot be parsed is left for schema validation to report.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range append([]string{"2006-01-02", time.RFC3339}, ukDateLayouts...) {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}
