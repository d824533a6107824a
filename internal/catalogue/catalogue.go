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

// Package catalogue is the read side of the catalogue: search, asset detail,
// organisations and entity export.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/google/uuid"
	"github.com/juliangruber/go-intersect"
	"github.com/rs/zerolog"

	"github.com/mimiro-io/catalogue-api/internal/aggregate"
	"github.com/mimiro-io/catalogue-api/internal/asset"
	"github.com/mimiro-io/catalogue-api/internal/enrich"
	"github.com/mimiro-io/catalogue-api/internal/mapping"
	"github.com/mimiro-io/catalogue-api/internal/orgs"
	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/store"
)

var (
	ErrNotFound  = errors.New("asset not found")
	ErrInvalidID = errors.New("invalid asset identifier")
	ErrAmbiguous = errors.New("more than one asset with identifier")
)

// Query narrows a search. Empty filters match everything; a zero Limit means no limit.
type Query struct {
	Text          string
	Topics        []string
	Organisations []string
	AssetTypes    []string
	Limit         int
	Offset        int
}

type SearchResult struct {
	Total  int           `json:"total"`
	Data   []asset.Asset `json:"data"`
	Facets Facets        `json:"facets"`
}

// Facets are the filter values present in a search result, before paging.
type Facets struct {
	Topics        []string `json:"topics"`
	Organisations []string `json:"organisations"`
	AssetTypes    []string `json:"assetTypes"`
}

type Service struct {
	exec     store.Executor
	table    *mapping.Registry
	orgs     *orgs.Directory
	enricher *enrich.Enricher
	logger   zerolog.Logger
	metrics  statsd.ClientInterface
}

func NewService(exec store.Executor, table *mapping.Registry, directory *orgs.Directory, logger zerolog.Logger, metrics statsd.ClientInterface) *Service {
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	return &Service{
		exec:     exec,
		table:    table,
		orgs:     directory,
		enricher: enrich.New(directory),
		logger:   logger.With().Str("logger", "catalogue").Logger(),
		metrics:  metrics,
	}
}

// Search returns summaries of the assets matching q, ordered by identifier.
func (s *Service) Search(ctx context.Context, q Query) (SearchResult, error) {
	start := time.Now()
	defer func() {
		_ = s.metrics.Timing("catalogue.search.time", time.Since(start), nil, 1)
	}()

	recs, err := s.summaries(ctx, q.Text, enrich.Summary)
	if err != nil {
		return SearchResult{}, err
	}

	var (
		matched []record.Record
		data    []asset.Asset
	)
	for _, rec := range recs {
		if !q.matches(rec) {
			continue
		}
		a, err := asset.FromRecord(rec)
		if err != nil {
			s.logger.Warn().Err(err).Str("identifier", fmt.Sprint(rec["identifier"])).Msg("skipping undecodable asset")
			continue
		}
		matched = append(matched, rec)
		data = append(data, a)
	}

	data = page(data, q.Offset, q.Limit)
	if data == nil {
		data = []asset.Asset{}
	}
	return SearchResult{Total: len(matched), Data: data, Facets: facetsOf(matched)}, nil
}

// summaries runs the search query and returns one enriched record per asset.
// An organisation missing from the directory fails the whole query.
func (s *Service) summaries(ctx context.Context, text string, p enrich.Projection) ([]record.Record, error) {
	bindings := store.Bindings{"q": ""}
	if text != "" {
		bindings["q"] = store.Literal(text)
	}
	rows, err := s.exec.Query(ctx, "asset_search", bindings)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	for i, row := range rows {
		row = s.table.Revert(row)
		if label, ok := row["mediaTypeLabel"]; ok {
			row["mediaType"] = label
			delete(row, "mediaTypeLabel")
		}
		rows[i] = row
	}

	var out []record.Record
	for _, rec := range aggregate.ByKey(rows, "identifier") {
		enriched, err := s.enricher.Enrich(rec, p)
		if err != nil {
			return nil, fmt.Errorf("asset %v: %w", rec["identifier"], err)
		}
		out = append(out, enriched)
	}
	return out, nil
}

func (q Query) matches(rec record.Record) bool {
	if len(q.Topics) > 0 && len(intersect.Simple(q.Topics, stringList(rec["theme"]))) == 0 {
		return false
	}
	if len(q.Organisations) > 0 {
		org, _ := rec["organisation"].(orgs.Organisation)
		if len(intersect.Simple(q.Organisations, []string{org.Slug})) == 0 {
			return false
		}
	}
	if len(q.AssetTypes) > 0 {
		t, _ := rec.String("type")
		if len(intersect.Simple(q.AssetTypes, []string{t})) == 0 {
			return false
		}
	}
	return true
}

func facetsOf(recs []record.Record) Facets {
	topics, organisations, types := record.NewSet(), record.NewSet(), record.NewSet()
	for _, rec := range recs {
		for _, t := range stringList(rec["theme"]) {
			topics.Add(t)
		}
		if org, ok := rec["organisation"].(orgs.Organisation); ok {
			organisations.Add(org.Slug)
		}
		if t, ok := rec.String("type"); ok {
			types.Add(t)
		}
	}
	return Facets{
		Topics:        stringList(topics),
		Organisations: stringList(organisations),
		AssetTypes:    stringList(types),
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Detail returns the full asset with the given identifier.
func (s *Service) Detail(ctx context.Context, id string) (asset.Asset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	rows, err := s.exec.Query(ctx, "asset_detail", store.Bindings{"asset_id": store.Literal(id)})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch asset %s: %w", id, err)
	}
	for i, row := range rows {
		rows[i] = s.table.Revert(row)
	}

	recs := aggregate.ByKey(rows, "resourceUri")
	switch len(recs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return nil, fmt.Errorf("%w %s: %d records", ErrAmbiguous, id, len(recs))
	}

	rec, err := s.enricher.Enrich(contactPoint(recs[0]), enrich.Detail)
	if err != nil {
		return nil, err
	}
	rec["identifier"] = id
	if t, _ := rec.String("type"); t == asset.TypeDataset {
		dists, err := s.distributions(ctx, rec["distribution"])
		if err != nil {
			return nil, err
		}
		if len(dists) > 0 {
			rec["distributions"] = dists
		}
	}
	delete(rec, "distribution")
	return asset.FromRecord(rec)
}

var contactFields = map[string]string{
	"contactName":      "name",
	"contactEmail":     "email",
	"contactTelephone": "telephone",
	"contactAddress":   "address",
}

// contactPoint folds the flattened contact columns into a contactPoint record.
func contactPoint(rec record.Record) record.Record {
	out := rec.Without("contact")
	cp := record.Record{}
	for column, field := range contactFields {
		if v, ok := out[column]; ok {
			cp[field] = v
			delete(out, column)
		}
	}
	if len(cp) > 0 {
		out["contactPoint"] = cp
	}
	return out
}

func (s *Service) distributions(ctx context.Context, v any) ([]any, error) {
	uris := stringList(v)
	if len(uris) == 0 {
		return nil, nil
	}
	values, err := store.IRIs(uris)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.Query(ctx, "distribution_detail", store.Bindings{"distributions": values})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch distributions: %w", err)
	}
	merged := aggregate.ByKey(rows, "distribution")
	out := make([]any, len(merged))
	for i, d := range merged {
		out[i] = d.Without("distribution")
	}
	return out, nil
}

// Organisations lists the organisation directory.
func (s *Service) Organisations() []orgs.Organisation {
	return s.orgs.All()
}

func stringList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case nil:
	case string:
		out = append(out, t)
	case []string:
		out = t
	case *record.Set:
		for _, el := range t.Sorted() {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
	case []any:
		for _, el := range t {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
