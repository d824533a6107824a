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
	"context"
	"errors"
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"

	"github.com/mimiro-io/catalogue-api/internal/asset"
	"github.com/mimiro-io/catalogue-api/internal/enrich"
	"github.com/mimiro-io/catalogue-api/internal/mapping"
	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/refdata"
	"github.com/mimiro-io/catalogue-api/internal/schema"
)

// Result is the outcome of a batch: the assets that passed every check and one
// entry per problem found.
type Result struct {
	Errors []ErrorInfo    `json:"errors"`
	Data   []asset.Asset `json:"data"`
}

func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Validator runs the batch ingestion checks.
type Validator struct {
	refs    mapping.ReferenceResolver
	orgs    enrich.OrganisationLookup
	schema  *schema.Validator
	logger  zerolog.Logger
	metrics statsd.ClientInterface
}

func NewValidator(refs mapping.ReferenceResolver, directory enrich.OrganisationLookup, sv *schema.Validator, logger zerolog.Logger, metrics statsd.ClientInterface) *Validator {
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	return &Validator{
		refs:    refs,
		orgs:    directory,
		schema:  sv,
		logger:  logger.With().Str("logger", "publish").Logger(),
		metrics: metrics,
	}
}

// ParseTables validates every table. A table with the wrong columns is reported
// and skipped; every other table is processed record by record. The error return
// is reserved for failures to reach the store.
func (v *Validator) ParseTables(ctx context.Context, tables []*Table) (Result, error) {
	errs := &ErrorCollector{}
	data := []asset.Asset{}
	for _, t := range tables {
		if fileErr := t.CheckColumns(); fileErr != nil {
			v.logger.Info().Str("file", t.Name).Msg("rejecting file with unexpected columns")
			errs.Add(*fileErr)
			continue
		}
		recs, rowErrs := t.Records()
		errs.Add(rowErrs...)
		valid, err := v.validate(ctx, recs, errs)
		if err != nil {
			return Result{}, err
		}
		data = append(data, valid...)
	}
	return Result{Errors: errs.Errors(), Data: data}, nil
}

// ValidateRecords runs the cross reference and schema checks on records that did
// not come from a table, such as a create-assets request body.
func (v *Validator) ValidateRecords(ctx context.Context, recs []record.Record) (Result, error) {
	errs := &ErrorCollector{}
	normalized := make([]record.Record, len(recs))
	for i, r := range recs {
		normalized[i] = record.Normalize(r).(record.Record)
	}
	data, err := v.validate(ctx, normalized, errs)
	if err != nil {
		return Result{}, err
	}
	return Result{Errors: errs.Errors(), Data: data}, nil
}

func (v *Validator) validate(ctx context.Context, recs []record.Record, errs *ErrorCollector) ([]asset.Asset, error) {
	out := []asset.Asset{}
	for _, rec := range recs {
		sub, err := v.crossReferences(ctx, rec)
		if err != nil {
			return nil, err
		}
		for _, fe := range v.schema.Validate(rec) {
			sub = append(sub, fieldError(fe))
		}
		if len(sub) == 0 {
			a, err := asset.FromRecord(rec)
			if err != nil {
				sub = append(sub, ErrorInfo{Scope: ScopeField, Location: "(root)", Message: err.Error(), Value: ""})
			} else {
				out = append(out, a)
			}
		}
		if len(sub) > 0 {
			errs.Add(assetError(assetLocation(rec), sub))
			_ = v.metrics.Incr("publish.assets.invalid", nil, 1)
			continue
		}
		_ = v.metrics.Incr("publish.assets.valid", nil, 1)
	}
	return out, nil
}

// crossReferences checks organisations and vocabulary values against the
// directory and the store. Each bad value is one field error.
func (v *Validator) crossReferences(ctx context.Context, rec record.Record) ([]ErrorInfo, error) {
	var sub []ErrorInfo

	if id, ok := rec.String("organisationID"); ok && id != "" {
		if _, err := v.orgs.Lookup(id); err != nil {
			sub = append(sub, noMatchingRecord("organisationID", id))
		}
	}
	for _, c := range list(rec["creatorID"]) {
		if id, ok := c.(string); ok {
			if _, err := v.orgs.Lookup(id); err != nil {
				sub = append(sub, noMatchingRecord("creatorID", id))
			}
		}
	}

	check := func(field string, value any, resolve func(context.Context, string) error) error {
		s, ok := value.(string)
		if !ok || s == "" {
			return nil
		}
		err := resolve(ctx, s)
		var ive *refdata.InvalidValueError
		switch {
		case err == nil:
		case errors.As(err, &ive) && errors.Is(err, refdata.ErrMalformedNotation):
			sub = append(sub, ErrorInfo{Scope: ScopeField, Location: field, Message: ive.Error(), Value: s})
		case errors.As(err, &ive):
			sub = append(sub, noMatchingRecord(field, s))
		default:
			return fmt.Errorf("unable to validate %s: %w", field, err)
		}
		return nil
	}

	if err := check("updateFrequency", rec["updateFrequency"], func(ctx context.Context, s string) error {
		_, err := v.refs.UpdateFrequency(ctx, s)
		return err
	}); err != nil {
		return nil, err
	}
	for _, theme := range list(rec["theme"]) {
		if err := check("theme", theme, func(ctx context.Context, s string) error {
			_, err := v.refs.Theme(ctx, s)
			return err
		}); err != nil {
			return nil, err
		}
	}
	for i, d := range list(rec["distributions"]) {
		dist, ok := d.(record.Record)
		if !ok {
			continue
		}
		field := fmt.Sprintf("distributions.%d.mediaType", i)
		if err := check(field, dist["mediaType"], func(ctx context.Context, s string) error {
			_, err := v.refs.MediaType(ctx, s)
			return err
		}); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func list(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return []any{v}
}
