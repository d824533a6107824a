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
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/google/uuid"
	"github.com/knakk/rdf"
	"github.com/rs/zerolog"

	"github.com/mimiro-io/catalogue-api/internal/asset"
	"github.com/mimiro-io/catalogue-api/internal/enrich"
	"github.com/mimiro-io/catalogue-api/internal/mapping"
	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/store"
	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

// Creator mints identifiers for validated assets and writes them to the store.
type Creator struct {
	exec    store.Executor
	table   *mapping.Registry
	orgs    enrich.OrganisationLookup
	logger  zerolog.Logger
	metrics statsd.ClientInterface
	now     func() time.Time
}

func NewCreator(exec store.Executor, table *mapping.Registry, directory enrich.OrganisationLookup, logger zerolog.Logger, metrics statsd.ClientInterface) *Creator {
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	return &Creator{
		exec:    exec,
		table:   table,
		orgs:    directory,
		logger:  logger.With().Str("logger", "creator").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
}

// CreateAssets stores a batch. Every asset is mapped before anything is written;
// if any asset cannot be mapped the batch is rejected with one error per failing
// asset. A failed write is reported as a single batch error.
func (c *Creator) CreateAssets(ctx context.Context, assets []asset.Asset) Result {
	errs := &ErrorCollector{}
	var (
		triples  []rdf.Triple
		prepared []record.Record
	)
	for _, a := range assets {
		rec, t, err := c.build(ctx, a)
		if err != nil {
			errs.Add(ErrorInfo{
				Scope:    ScopeAsset,
				Location: assetLocation(asset.ToRecord(a)),
				Message:  msgCannotStore,
				Extras:   map[string]any{"error": err.Error()},
			})
			continue
		}
		triples = append(triples, t...)
		prepared = append(prepared, rec)
	}
	if errs.HasErrors() {
		return Result{Errors: errs.Errors(), Data: []asset.Asset{}}
	}

	if err := c.exec.Update(ctx, "create_asset", store.Bindings{"triples": mapping.Render(triples)}); err != nil {
		c.logger.Error().Err(err).Int("assets", len(assets)).Msg("failed to store assets")
		return Result{
			Errors: []ErrorInfo{{
				Scope:    ScopeBatch,
				Location: locationUnknown,
				Message:  msgFailedToSave,
				Extras:   map[string]any{"internal_error": err.Error()},
			}},
			Data: []asset.Asset{},
		}
	}
	_ = c.metrics.Count("publish.assets.created", int64(len(prepared)), nil, 1)

	data := make([]asset.Asset, 0, len(prepared))
	for _, rec := range prepared {
		a, err := asset.FromRecord(rec)
		if err != nil {
			c.logger.Warn().Err(err).Msg("stored asset could not be decoded")
			continue
		}
		data = append(data, a)
	}
	return Result{Errors: []ErrorInfo{}, Data: data}
}

// CreateAsset stores one asset and fails on the first problem.
func (c *Creator) CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	rec, triples, err := c.build(ctx, a)
	if err != nil {
		return nil, err
	}
	if err := c.exec.Update(ctx, "create_asset", store.Bindings{"triples": mapping.Render(triples)}); err != nil {
		return nil, err
	}
	_ = c.metrics.Incr("publish.assets.created", nil, 1)
	return asset.FromRecord(rec)
}

func (c *Creator) build(ctx context.Context, a asset.Asset) (record.Record, []rdf.Triple, error) {
	rec, err := c.prepare(a)
	if err != nil {
		return nil, nil, err
	}
	uri, _ := rec.String("resourceUri")
	subject, err := rdf.NewIRI(uri)
	if err != nil {
		return nil, nil, err
	}
	triples, err := c.table.Triples(ctx, subject, rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, triples, nil
}

// prepare resolves organisations and adds identifiers, resource uris and
// catalogue timestamps.
func (c *Creator) prepare(a asset.Asset) (record.Record, error) {
	rec := asset.ToRecord(a)

	orgID, _ := rec.String("organisationID")
	org, err := c.orgs.Lookup(orgID)
	if err != nil {
		return nil, err
	}
	var creators []any
	for _, id := range list(rec["creatorID"]) {
		s, _ := id.(string)
		o, err := c.orgs.Lookup(s)
		if err != nil {
			return nil, fmt.Errorf("creator: %w", err)
		}
		creators = append(creators, o)
	}
	rec = rec.Without("organisationID", "creatorID")
	rec["organisation"] = org
	if len(creators) > 0 {
		rec["creator"] = creators
	}

	id := uuid.NewString()
	now := c.now()
	rec["identifier"] = id
	rec["resourceUri"] = vocab.AssetURI(id)
	rec["catalogueCreated"] = now
	rec["catalogueModified"] = now

	if dists, ok := rec["distributions"].([]any); ok {
		out := make([]any, len(dists))
		for i, d := range dists {
			dr := d.(record.Record).Copy()
			did := uuid.NewString()
			dr["identifier"] = did
			dr["distribution"] = vocab.DistributionURI(did)
			out[i] = dr
		}
		rec["distributions"] = out
	}
	return rec, nil
}
