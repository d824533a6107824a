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

package store

import (
	"context"
	"sync"

	"github.com/mimiro-io/catalogue-api/internal/record"
)

// Call is one recorded executor invocation.
type Call struct {
	Template string
	Bindings Bindings
}

// Recorder is an in-memory Executor for tests. It serves canned rows per template
// and records every call.
type Recorder struct {
	mu sync.Mutex

	// Results holds the rows returned for each template.
	Results map[string][]record.Record
	// QueryFunc, when set, overrides Results.
	QueryFunc func(template string, bindings Bindings) ([]record.Record, error)
	// Err fails every call.
	Err error
	// UpdateErr fails updates only.
	UpdateErr error

	Queries []Call
	Updates []Call
}

func NewRecorder() *Recorder {
	return &Recorder{Results: map[string][]record.Record{}}
}

// On sets the rows returned for a template.
func (r *Recorder) On(template string, rows ...record.Record) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results[template] = rows
	return r
}

func (r *Recorder) Query(_ context.Context, template string, bindings Bindings) ([]record.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queries = append(r.Queries, Call{Template: template, Bindings: bindings})
	if r.Err != nil {
		return nil, r.Err
	}
	if r.QueryFunc != nil {
		return r.QueryFunc(template, bindings)
	}
	rows := r.Results[template]
	out := make([]record.Record, len(rows))
	for i, row := range rows {
		out[i] = row.Copy()
	}
	return out, nil
}

func (r *Recorder) Update(_ context.Context, template string, bindings Bindings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updates = append(r.Updates, Call{Template: template, Bindings: bindings})
	if r.Err != nil {
		return r.Err
	}
	return r.UpdateErr
}

// QueryCount returns how many queries used the template.
func (r *Recorder) QueryCount(template string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Queries {
		if c.Template == template {
			n++
		}
	}
	return n
}
