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

// Package asset holds the typed Dataset and DataService records used at the API
// boundary, and their conversion to and from the flat record form.
package asset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mimiro-io/catalogue-api/internal/orgs"
	"github.com/mimiro-io/catalogue-api/internal/record"
)

var ErrUnknownType = errors.New("unknown asset type")

const (
	TypeDataset     = "Dataset"
	TypeDataService = "DataService"
)

const dateLayout = "2006-01-02"

// Date is a calendar date. It accepts ISO dates and RFC3339 timestamps, and
// always writes ISO dates.
type Date struct {
	time.Time
}

func NewDate(t time.Time) *Date {
	if t.IsZero() {
		return nil
	}
	return &Date{Time: t}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range []string{dateLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

type ContactPoint struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Telephone string `json:"telephone,omitempty"`
	Address   string `json:"address,omitempty"`
}

type Distribution struct {
	Identifier         string `json:"identifier,omitempty"`
	Distribution       string `json:"distribution,omitempty"`
	Title              string `json:"title"`
	Modified           *Date  `json:"modified,omitempty"`
	MediaType          string `json:"mediaType"`
	AccessService      string `json:"accessService,omitempty"`
	ExternalIdentifier string `json:"externalIdentifier"`
	Issued             *Date  `json:"issued,omitempty"`
	Licence            string `json:"licence"`
	ByteSize           *int64 `json:"byteSize,omitempty"`
}

// Common carries the fields shared by every asset type.
type Common struct {
	Identifier             string              `json:"identifier,omitempty"`
	ResourceURI            string              `json:"resourceUri,omitempty"`
	Type                   string              `json:"type"`
	Title                  string              `json:"title"`
	Summary                string              `json:"summary,omitempty"`
	Description            string              `json:"description,omitempty"`
	Created                *Date               `json:"created,omitempty"`
	Modified               *Date               `json:"modified,omitempty"`
	Issued                 *Date               `json:"issued,omitempty"`
	CatalogueCreated       *Date               `json:"catalogueCreated,omitempty"`
	CatalogueModified      *Date               `json:"catalogueModified,omitempty"`
	Theme                  []string            `json:"theme,omitempty"`
	Keyword                []string            `json:"keyword,omitempty"`
	AlternativeTitle       []string            `json:"alternativeTitle,omitempty"`
	AccessRights           string              `json:"accessRights,omitempty"`
	ContactPoint           *ContactPoint       `json:"contactPoint,omitempty"`
	Licence                string              `json:"licence,omitempty"`
	RelatedAssets          []string            `json:"relatedAssets,omitempty"`
	SecurityClassification string              `json:"securityClassification,omitempty"`
	Version                string              `json:"version,omitempty"`
	ExternalIdentifier     string              `json:"externalIdentifier,omitempty"`
	OrganisationID         string              `json:"organisationID,omitempty"`
	CreatorID              []string            `json:"creatorID,omitempty"`
	Organisation           *orgs.Organisation  `json:"organisation,omitempty"`
	Creator                []orgs.Organisation `json:"creator,omitempty"`
	MediaType              []string            `json:"mediaType,omitempty"`
}

type Dataset struct {
	Common
	UpdateFrequency string         `json:"updateFrequency,omitempty"`
	Distributions   []Distribution `json:"distributions,omitempty"`
}

type DataService struct {
	Common
	EndpointDescription string   `json:"endpointDescription,omitempty"`
	EndpointURL         string   `json:"endpointURL,omitempty"`
	ServesDataset       []string `json:"servesDataset,omitempty"`
	ServiceStatus       string   `json:"serviceStatus,omitempty"`
	ServiceType         string   `json:"serviceType,omitempty"`
}

// Asset is a *Dataset or a *DataService.
type Asset interface {
	Base() *Common
}

func (d *Dataset) Base() *Common     { return &d.Common }
func (d *DataService) Base() *Common { return &d.Common }

// FromRecord builds the typed asset for rec, discriminating on its type field.
func FromRecord(rec record.Record) (Asset, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	t, _ := rec.String("type")
	return decode(t, b)
}

func decode(assetType string, b []byte) (Asset, error) {
	var a Asset
	switch assetType {
	case TypeDataset:
		a = &Dataset{}
	case TypeDataService:
		a = &DataService{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, assetType)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(a); err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", strings.ToLower(assetType), err)
	}
	return a, nil
}

// ToRecord flattens a typed asset into a record holding only the non-empty fields.
func ToRecord(a Asset) record.Record {
	c := a.Base()
	r := record.Record{}
	put := func(field string, v any) {
		if !record.IsEmpty(v) {
			r[field] = v
		}
	}
	putDate := func(field string, d *Date) {
		if d != nil && !d.IsZero() {
			r[field] = d.Time
		}
	}
	putList := func(field string, l []string) {
		if len(l) > 0 {
			out := make([]any, len(l))
			for i, s := range l {
				out[i] = s
			}
			r[field] = out
		}
	}

	put("identifier", c.Identifier)
	put("resourceUri", c.ResourceURI)
	put("type", c.Type)
	put("title", c.Title)
	put("summary", c.Summary)
	put("description", c.Description)
	putDate("created", c.Created)
	putDate("modified", c.Modified)
	putDate("issued", c.Issued)
	putDate("catalogueCreated", c.CatalogueCreated)
	putDate("catalogueModified", c.CatalogueModified)
	putList("theme", c.Theme)
	putList("keyword", c.Keyword)
	putList("alternativeTitle", c.AlternativeTitle)
	put("accessRights", c.AccessRights)
	if cp := c.ContactPoint; cp != nil {
		contact := record.Record{}
		for k, v := range map[string]string{"name": cp.Name, "email": cp.Email, "telephone": cp.Telephone, "address": cp.Address} {
			if v != "" {
				contact[k] = v
			}
		}
		put("contactPoint", contact)
	}
	put("licence", c.Licence)
	putList("relatedAssets", c.RelatedAssets)
	put("securityClassification", c.SecurityClassification)
	put("version", c.Version)
	put("externalIdentifier", c.ExternalIdentifier)
	put("organisationID", c.OrganisationID)
	putList("creatorID", c.CreatorID)
	if c.Organisation != nil {
		r["organisation"] = *c.Organisation
	}
	if len(c.Creator) > 0 {
		creators := make([]any, len(c.Creator))
		for i, o := range c.Creator {
			creators[i] = o
		}
		r["creator"] = creators
	}

	switch t := a.(type) {
	case *Dataset:
		put("updateFrequency", t.UpdateFrequency)
		if len(t.Distributions) > 0 {
			dists := make([]any, len(t.Distributions))
			for i, d := range t.Distributions {
				dists[i] = distributionRecord(d)
			}
			r["distributions"] = dists
		}
	case *DataService:
		put("endpointDescription", t.EndpointDescription)
		put("endpointURL", t.EndpointURL)
		putList("servesDataset", t.ServesDataset)
		put("serviceStatus", t.ServiceStatus)
		put("serviceType", t.ServiceType)
	}
	return r
}

func distributionRecord(d Distribution) record.Record {
	r := record.Record{}
	for k, v := range map[string]string{
		"identifier":         d.Identifier,
		"distribution":       d.Distribution,
		"title":              d.Title,
		"mediaType":          d.MediaType,
		"accessService":      d.AccessService,
		"externalIdentifier": d.ExternalIdentifier,
		"licence":            d.Licence,
	} {
		if v != "" {
			r[k] = v
		}
	}
	if d.Modified != nil {
		r["modified"] = d.Modified.Time
	}
	if d.Issued != nil {
		r["issued"] = d.Issued.Time
	}
	if d.ByteSize != nil {
		r["byteSize"] = *d.ByteSize
	}
	return r
}
