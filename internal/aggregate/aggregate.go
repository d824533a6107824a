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

// Package aggregate folds flat query result rows into one record per entity.
package aggregate

import (
	"github.com/mimiro-io/catalogue-api/internal/record"
)

// ByKey partitions rows into contiguous runs of equal groupKey and merges each run
// into one record. Rows must already be ordered by groupKey; a key that appears in
// two separate runs yields two records.
//
// A run of one row is returned unmodified. Otherwise a field that shows more than
// one distinct value becomes a *record.Set holding every distinct value seen.
func ByKey(rows []record.Record, groupKey string) []record.Record {
	var out []record.Record
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i < len(rows) && record.Equal(rows[i][groupKey], rows[start][groupKey]) {
			continue
		}
		out = append(out, merge(rows[start:i]))
		start = i
	}
	return out
}

func merge(group []record.Record) record.Record {
	if len(group) == 1 {
		return group[0]
	}
	acc := group[0].Copy()
	for _, row := range group[1:] {
		for field, v := range row {
			current, ok := acc[field]
			switch {
			case !ok:
				acc[field] = v
			case isSet(current):
				current.(*record.Set).Add(v)
			case !record.Equal(current, v):
				acc[field] = record.NewSet(current, v)
			}
		}
	}
	return acc
}

func isSet(v any) bool {
	_, ok := v.(*record.Set)
	return ok
}
