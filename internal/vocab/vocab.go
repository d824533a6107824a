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

// Package vocab holds the namespace IRIs used by the catalogue graph and mints the
// subject references of assets and distributions.
package vocab

import (
	"fmt"

	"github.com/knakk/rdf"
)

// Standard namespaces
const (
	RDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS    = "http://www.w3.org/2000/01/rdf-schema#"
	XSD     = "http://www.w3.org/2001/XMLSchema#"
	DCTerms = "http://purl.org/dc/terms/"
	DCAT    = "http://www.w3.org/ns/dcat#"
	SKOS    = "http://www.w3.org/2004/02/skos/core#"
	VCard   = "http://www.w3.org/2006/vcard/ns#"
	ADMS    = "https://www.w3.org/ns/adms#"
	Freq    = "http://purl.org/cld/freq/"
)

// Catalogue namespaces
const (
	Asset        = "http://marketplace.cddo.gov.uk/asset/"
	Distribution = "http://marketplace.cddo.gov.uk/asset/distribution/"
	CGMEM        = "https://w3id.org/co-cddo/uk-cross-government-metadata-exchange-model/"
)

// Prefixes maps the conventional prefix of each namespace to its IRI.
var Prefixes = map[string]string{
	"rdf":   RDF,
	"rdfs":  RDFS,
	"xsd":   XSD,
	"dct":   DCTerms,
	"dcat":  DCAT,
	"skos":  SKOS,
	"vcard": VCard,
	"adms":  ADMS,
	"freq":  Freq,
	"cddo":  Asset,
	"cgmem": CGMEM,
}

// Frequently used terms
var (
	RDFType      = MustIRI(RDF + "type")
	RDFSLabel    = MustIRI(RDFS + "label")
	XSDDate      = MustIRI(XSD + "date")
	XSDDateTime  = MustIRI(XSD + "dateTime")
	DCATDataset  = MustIRI(DCAT + "Dataset")
	DCATService  = MustIRI(DCAT + "DataService")
	DCATDistType = MustIRI(DCAT + "Distribution")
	VCardKind    = MustIRI(VCard + "Kind")
)

// MustIRI builds an IRI and panics if it is malformed. Only use it for constants.
func MustIRI(s string) rdf.IRI {
	iri, err := rdf.NewIRI(s)
	if err != nil {
		panic(fmt.Sprintf("vocab: invalid iri %q: %v", s, err))
	}
	return iri
}

// AssetURI is the subject reference of the asset with the given identifier.
func AssetURI(identifier string) string {
	return Asset + identifier
}

// DistributionURI is the subject reference of the distribution with the given identifier.
func DistributionURI(identifier string) string {
	return Distribution + identifier
}
