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

// Package refdata validates controlled vocabulary values (media types, update
// frequencies and themes) against the triple store.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/knakk/rdf"
	"github.com/rs/zerolog"

	"github.com/mimiro-io/catalogue-api/internal/store"
	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

var (
	ErrInvalidValue      = errors.New("invalid value")
	ErrMalformedNotation = errors.New("malformed notation")
)

const freqPrefix = "freq:"

// InvalidValueError names the field and the value that failed validation.
type InvalidValueError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	if errors.Is(e.Err, ErrMalformedNotation) {
		return fmt.Sprintf("Frequency should be of the format freq:<frequency> - %s", e.Value)
	}
	switch e.Field {
	case "updateFrequency":
		return fmt.Sprintf("Invalid update frequency: %s", e.Value)
	case "mediaType":
		return fmt.Sprintf("Invalid media type: %s", e.Value)
	case "theme":
		return fmt.Sprintf("Invalid theme: %s", e.Value)
	}
	return fmt.Sprintf("Invalid %s: %s", e.Field, e.Value)
}

func (e *InvalidValueError) Unwrap() error { return e.Err }

// Validator resolves vocabulary values to their canonical IRIs.
//
// Media types and update frequencies are loaded from the store on first use and
// kept for the lifetime of the process. Two requests racing on an empty cache
// both load it; the loads are identical reads so the last store wins. Themes are
// an open vocabulary and are checked against the store on every call.
type Validator struct {
	exec   store.Executor
	logger zerolog.Logger

	mediaTypes  atomic.Pointer[map[string]rdf.IRI]
	frequencies atomic.Pointer[map[string]rdf.IRI]
}

func NewValidator(exec store.Executor, logger zerolog.Logger) *Validator {
	return &Validator{
		exec:   exec,
		logger: logger.With().Str("logger", "refdata").Logger(),
	}
}

// EnsureLoaded populates both cached vocabularies if they are not already loaded.
func (v *Validator) EnsureLoaded(ctx context.Context) error {
	if _, err := v.loadMediaTypes(ctx); err != nil {
		return err
	}
	_, err := v.loadFrequencies(ctx)
	return err
}

func (v *Validator) loadMediaTypes(ctx context.Context) (map[string]rdf.IRI, error) {
	if m := v.mediaTypes.Load(); m != nil {
		return *m, nil
	}
	rows, err := v.exec.Query(ctx, "all_mimetypes", nil)
	if err != nil {
		return nil, fmt.Errorf("unable to load media types: %w", err)
	}
	m := make(map[string]rdf.IRI, len(rows))
	for _, r := range rows {
		label, _ := r.String("mimetypeLabel")
		uri, _ := r.String("mimetypeUri")
		iri, err := rdf.NewIRI(uri)
		if err != nil {
			v.logger.Warn().Str("uri", uri).Msg("skipping media type with invalid uri")
			continue
		}
		m[label] = iri
	}
	v.mediaTypes.Store(&m)
	v.logger.Debug().Int("count", len(m)).Msg("media types loaded")
	return m, nil
}

func (v *Validator) loadFrequencies(ctx context.Context) (map[string]rdf.IRI, error) {
	if m := v.frequencies.Load(); m != nil {
		return *m, nil
	}
	rows, err := v.exec.Query(ctx, "all_update_frequencies", nil)
	if err != nil {
		return nil, fmt.Errorf("unable to load update frequencies: %w", err)
	}
	m := make(map[string]rdf.IRI, len(rows))
	for _, r := range rows {
		uri, _ := r.String("updateFrequency")
		iri, err := rdf.NewIRI(uri)
		if err != nil {
			continue
		}
		m[uri] = iri
	}
	v.frequencies.Store(&m)
	v.logger.Debug().Int("count", len(m)).Msg("update frequencies loaded")
	return m, nil
}

// MediaType resolves a media type label such as "CSV".
func (v *Validator) MediaType(ctx context.Context, label string) (rdf.IRI, error) {
	m, err := v.loadMediaTypes(ctx)
	if err != nil {
		return rdf.IRI{}, err
	}
	if iri, ok := m[label]; ok {
		return iri, nil
	}
	return rdf.IRI{}, &InvalidValueError{Field: "mediaType", Value: label, Err: ErrInvalidValue}
}

// UpdateFrequency resolves a notation such as "freq:monthly".
func (v *Validator) UpdateFrequency(ctx context.Context, notation string) (rdf.IRI, error) {
	m, err := v.loadFrequencies(ctx)
	if err != nil {
		return rdf.IRI{}, err
	}
	name, ok := strings.CutPrefix(notation, freqPrefix)
	if !ok || name == "" {
		return rdf.IRI{}, &InvalidValueError{Field: "updateFrequency", Value: notation, Err: ErrMalformedNotation}
	}
	if iri, ok := m[vocab.Freq+name]; ok {
		return iri, nil
	}
	return rdf.IRI{}, &InvalidValueError{Field: "updateFrequency", Value: notation, Err: ErrInvalidValue}
}

// Theme checks that the theme uri carries a label in the store.
func (v *Validator) Theme(ctx context.Context, uri string) (rdf.IRI, error) {
	iri, err := rdf.NewIRI(uri)
	if err != nil {
		return rdf.IRI{}, &InvalidValueError{Field: "theme", Value: uri, Err: ErrInvalidValue}
	}
	ref, _ := store.IRI(uri)
	rows, err := v.exec.Query(ctx, "get_label", store.Bindings{"uri": ref})
	if err != nil {
		return rdf.IRI{}, fmt.Errorf("unable to check theme %s: %w", uri, err)
	}
	if len(rows) == 0 {
		return rdf.IRI{}, &InvalidValueError{Field: "theme", Value: uri, Err: ErrInvalidValue}
	}
	return iri, nil
}

// MediaTypeLabels lists the known media type labels, sorted.
func (v *Validator) MediaTypeLabels(ctx context.Context) ([]string, error) {
	m, err := v.loadMediaTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for label := range m {
		out = append(out, label)
	}
	sort.Strings(out)
	return out, nil
}
