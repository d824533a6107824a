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

package catalogue

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bfontaine/jsons"
	egdm "github.com/mimiro-io/entity-graph-data-model"

	"github.com/mimiro-io/catalogue-api/internal/asset"
	"github.com/mimiro-io/catalogue-api/internal/enrich"
	"github.com/mimiro-io/catalogue-api/internal/orgs"
	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

// referenceFields hold IRIs and are exported as entity references.
var referenceFields = map[string]bool{
	"type":                true,
	"theme":               true,
	"licence":             true,
	"relatedAssets":       true,
	"servesDataset":       true,
	"endpointDescription": true,
	"distribution":        true,
}

var typeReferences = map[string]string{
	asset.TypeDataset:     vocab.DCATDataset.String(),
	asset.TypeDataService: vocab.DCATService.String(),
}

// Entities returns every asset as an entity graph entity. It reads the whole
// catalogue before anything is written, so a store failure never leaves a
// partial export behind.
func (s *Service) Entities(ctx context.Context) ([]*egdm.Entity, error) {
	start := time.Now()
	recs, err := s.summaries(ctx, "", enrich.Detail)
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	entities := make([]*egdm.Entity, 0, len(recs))
	for _, rec := range recs {
		entities = append(entities, s.toEntity(rec))
	}
	s.logger.Info().Int("entities", len(entities)).Dur("took", time.Since(start)).Msg("exported catalogue")
	return entities, nil
}

func (s *Service) toEntity(rec record.Record) *egdm.Entity {
	entity := egdm.NewEntity()
	entity.ID = curie(fmt.Sprint(rec["resourceUri"]))
	for field, v := range rec {
		key := s.propertyKey(field)
		if key == "" {
			continue
		}
		if field == "type" {
			if t, ok := typeReferences[fmt.Sprint(v)]; ok {
				entity.References[key] = curie(t)
			}
			continue
		}
		if referenceFields[field] {
			entity.References[key] = references(v)
			continue
		}
		entity.Properties[key] = propertyValue(v)
	}
	return entity
}

func (s *Service) propertyKey(field string) string {
	switch field {
	case "resourceUri":
		return ""
	case "mediaType":
		return curie(vocab.DCAT + "mediaType")
	}
	attr, ok := s.table.Lookup(field)
	if !ok {
		return ""
	}
	return curie(attr.Predicate().String())
}

func propertyValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case orgs.Organisation:
		return t.Slug
	case *record.Set:
		return propertyValue(t.Sorted())
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = propertyValue(el)
		}
		return out
	}
	return v
}

func references(v any) any {
	refs := stringList(v)
	if len(refs) == 1 {
		if _, isList := v.([]any); !isList {
			return curie(refs[0])
		}
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = curie(r)
	}
	return out
}

// curie shortens iri with the longest matching namespace prefix.
func curie(iri string) string {
	best := ""
	for prefix, ns := range vocab.Prefixes {
		if strings.HasPrefix(iri, ns) && len(ns) > len(vocab.Prefixes[best]) {
			best = prefix
		}
	}
	if best == "" {
		return iri
	}
	return best + ":" + strings.TrimPrefix(iri, vocab.Prefixes[best])
}

// Context is the namespace declaration written before the entities.
func Context() map[string]any {
	namespaces := make(map[string]string, len(vocab.Prefixes))
	for p, ns := range vocab.Prefixes {
		namespaces[p] = ns
	}
	return map[string]any{"id": "@context", "namespaces": namespaces}
}

// WriteNDJson writes the namespace context followed by one entity per line.
func WriteNDJson(w io.Writer, entities []*egdm.Entity) error {
	j := jsons.NewWriter(w)
	if err := j.Add(Context()); err != nil {
		return err
	}
	for _, entity := range entities {
		if err := j.Add(entity); err != nil {
			return err
		}
	}
	return nil
}

func WriteAsGzippedNDJson(w io.Writer, entities []*egdm.Entity) error {
	zipWriter := gzip.NewWriter(w)
	if err := WriteNDJson(zipWriter, entities); err != nil {
		return err
	}

	// flush and close
	return zipWriter.Close()
}
