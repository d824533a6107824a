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

package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/knakk/rdf"

	"github.com/mimiro-io/catalogue-api/internal/orgs"
	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

// ReferenceResolver validates controlled vocabulary values and returns their
// canonical references.
type ReferenceResolver interface {
	MediaType(ctx context.Context, label string) (rdf.IRI, error)
	UpdateFrequency(ctx context.Context, notation string) (rdf.IRI, error)
	Theme(ctx context.Context, uri string) (rdf.IRI, error)
}

const (
	TypeDataset     = "Dataset"
	TypeDataService = "DataService"
)

var typeIRIs = map[string]rdf.IRI{
	TypeDataset:     vocab.DCATDataset,
	TypeDataService: vocab.DCATService,
}

// AssetTable builds the predicate table for datasets and data services.
func AssetTable(refs ReferenceResolver) *Registry {
	iri := func(ns, local string) rdf.IRI { return vocab.MustIRI(ns + local) }

	contactPoint := NewRegistry(
		Field{"name", Simple{Pred: iri(vocab.VCard, "fn")}},
		Field{"email", Simple{Pred: iri(vocab.VCard, "hasEmail")}},
		Field{"telephone", Simple{Pred: iri(vocab.VCard, "hasTelephone")}},
		Field{"address", Simple{Pred: iri(vocab.VCard, "hasAddress")}},
	)

	distribution := NewRegistry(
		Field{"title", Simple{Pred: iri(vocab.DCTerms, "title")}},
		Field{"modified", Simple{Pred: iri(vocab.DCTerms, "modified"), Convert: AsDate}},
		Field{"mediaType", Simple{Pred: iri(vocab.DCAT, "mediaType"), Convert: stringConverter(refs.MediaType)}},
		Field{"identifier", Simple{Pred: iri(vocab.DCTerms, "identifier")}},
		Field{"accessService", Simple{Pred: iri(vocab.DCAT, "accessService")}},
		Field{"issued", Simple{Pred: iri(vocab.Asset, "issued"), Convert: AsDate}},
		Field{"licence", Simple{Pred: iri(vocab.DCTerms, "license"), Convert: AsIRI}},
		Field{"byteSize", Simple{Pred: iri(vocab.DCAT, "byteSize")}},
		Field{"externalIdentifier", Simple{Pred: iri(vocab.SKOS, "notation")}},
	)

	return NewRegistry(
		Field{"catalogueCreated", Simple{Pred: iri(vocab.Asset, "created"), Convert: AsDate}},
		Field{"catalogueModified", Simple{Pred: iri(vocab.Asset, "modified"), Convert: AsDate}},
		Field{"created", Simple{Pred: iri(vocab.DCTerms, "created"), Convert: AsDate}},
		Field{"modified", Simple{Pred: iri(vocab.DCTerms, "modified"), Convert: AsDate}},
		Field{"summary", Simple{Pred: iri(vocab.RDFS, "comment")}},
		Field{"title", Simple{Pred: iri(vocab.DCTerms, "title")}},
		Field{"type", Simple{Pred: vocab.RDFType, Convert: assetType, Revert: IRIReverter(assetTypeName)}},
		Field{"accessRights", Simple{Pred: iri(vocab.DCTerms, "accessRights")}},
		Field{"alternativeTitle", List{Pred: iri(vocab.DCTerms, "alternative")}},
		Field{"contactPoint", Object{
			Pred:       iri(vocab.DCAT, "contactPoint"),
			Attributes: contactPoint,
			Type:       vocab.VCardKind,
		}},
		Field{"description", Simple{Pred: iri(vocab.DCTerms, "description")}},
		Field{"issued", Simple{Pred: iri(vocab.Asset, "issued"), Convert: AsDate}},
		Field{"keyword", List{Pred: iri(vocab.DCAT, "keyword")}},
		Field{"licence", Simple{Pred: iri(vocab.DCTerms, "license"), Convert: AsIRI}},
		Field{"relatedAssets", List{Pred: iri(vocab.DCTerms, "relation"), Convert: AsIRI}},
		Field{"securityClassification", Simple{Pred: iri(vocab.CGMEM, "securityClassification")}},
		Field{"theme", List{Pred: iri(vocab.DCAT, "theme"), Convert: stringConverter(refs.Theme)}},
		Field{"version", Simple{Pred: iri(vocab.DCAT, "version")}},
		Field{"identifier", Simple{Pred: iri(vocab.DCTerms, "identifier")}},
		Field{"distributions", ObjectList{Object{
			Pred:       iri(vocab.DCAT, "distribution"),
			Attributes: distribution,
			ID:         IDFromField("distribution"),
			Type:       vocab.DCATDistType,
		}}},
		Field{"updateFrequency", Simple{
			Pred:    iri(vocab.DCTerms, "accrualPeriodicity"),
			Convert: stringConverter(refs.UpdateFrequency),
			Revert:  IRIReverter(frequencyNotation),
		}},
		Field{"endpointDescription", Simple{Pred: iri(vocab.DCAT, "endpointDescription"), Convert: AsIRI}},
		Field{"endpointURL", Simple{Pred: iri(vocab.DCAT, "endpointURL"), Convert: AsIRI}},
		Field{"servesDataset", List{Pred: iri(vocab.DCAT, "servesDataset"), Convert: AsIRI}},
		Field{"serviceStatus", Simple{Pred: iri(vocab.ADMS, "status")}},
		Field{"serviceType", Simple{Pred: iri(vocab.DCTerms, "type")}},
		Field{"externalIdentifier", Simple{Pred: iri(vocab.SKOS, "notation")}},
		Field{"organisation", Simple{Pred: iri(vocab.DCTerms, "publisher"), Convert: organisationSlug}},
		Field{"creator", List{Pred: iri(vocab.DCTerms, "creator"), Convert: organisationSlug}},
	)
}

func stringConverter(fn func(ctx context.Context, s string) (rdf.IRI, error)) Converter {
	return func(ctx context.Context, v any) (rdf.Object, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string, got %T", ErrUnsupportedValue, v)
		}
		return fn(ctx, s)
	}
}

func assetType(_ context.Context, v any) (rdf.Object, error) {
	s, _ := v.(string)
	if t, ok := typeIRIs[s]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: asset type %v", ErrUnsupportedValue, v)
}

func assetTypeName(iri string) string {
	for name, t := range typeIRIs {
		if t.String() == iri {
			return name
		}
	}
	return iri
}

func frequencyNotation(iri string) string {
	if local, ok := strings.CutPrefix(iri, vocab.Freq); ok {
		return "freq:" + local
	}
	return iri
}

// organisationSlug stores organisations by slug. Plain strings are taken as slugs.
func organisationSlug(_ context.Context, v any) (rdf.Object, error) {
	switch t := v.(type) {
	case orgs.Organisation:
		return rdf.NewLiteral(t.Slug)
	case *orgs.Organisation:
		return rdf.NewLiteral(t.Slug)
	case map[string]any:
		if slug, ok := t["slug"].(string); ok {
			return rdf.NewLiteral(slug)
		}
	case record.Record:
		if slug, ok := t["slug"].(string); ok {
			return rdf.NewLiteral(slug)
		}
	case string:
		return rdf.NewLiteral(t)
	}
	return nil, fmt.Errorf("%w: organisation %T", ErrUnsupportedValue, v)
}
