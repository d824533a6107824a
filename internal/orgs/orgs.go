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

// Package orgs is the organisation directory: a fixed set of publishing
// organisations keyed by id.
package orgs

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var ErrUnknownOrganisation = errors.New("organisation does not exist")

//go:embed organisations.yaml
var defaultDirectory []byte

type Organisation struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Abbreviation string `json:"abbreviation,omitempty" yaml:"abbreviation"`
	Slug         string `json:"slug" yaml:"slug"`
	Format       string `json:"format" yaml:"format"`
	WebURL       string `json:"web_url" yaml:"web_url"`
}

// Directory is read only after construction and safe for concurrent use.
type Directory struct {
	byID map[string]Organisation
}

// Load reads a YAML list of organisations.
func Load(r io.Reader) (*Directory, error) {
	var list []Organisation
	if err := yaml.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("unable to decode organisation directory: %w", err)
	}
	d := &Directory{byID: make(map[string]Organisation, len(list))}
	for _, o := range list {
		if o.ID == "" {
			return nil, errors.New("organisation without id in directory")
		}
		if o.Slug == "" {
			o.Slug = o.ID
		}
		d.byID[o.ID] = o
	}
	return d, nil
}

func LoadFile(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Default returns the built in directory.
func Default() *Directory {
	d, err := Load(bytes.NewReader(defaultDirectory))
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup finds an organisation by id, falling back to its slug, which is what
// the store holds.
func (d *Directory) Lookup(id string) (Organisation, error) {
	if o, ok := d.byID[id]; ok {
		return o, nil
	}
	for _, o := range d.byID {
		if o.Slug == id {
			return o, nil
		}
	}
	return Organisation{}, fmt.Errorf("%w: %s", ErrUnknownOrganisation, id)
}

// All returns every organisation sorted by id.
func (d *Directory) All() []Organisation {
	out := make([]Organisation, 0, len(d.byID))
	for _, o := range d.byID {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
