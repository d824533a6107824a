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
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/knakk/rdf"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/mimiro-io/catalogue-api/internal/aggregate"
	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/refdata"
	"github.com/mimiro-io/catalogue-api/internal/store"
	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

func TestMapping(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Mapping Suite")
}

const healthTheme = "http://marketplace.cddo.gov.uk/theme/health"

func testResolver(frequencies ...string) *refdata.Validator {
	rec := store.NewRecorder().On("all_mimetypes",
		record.Record{"mimetypeLabel": "CSV", "mimetypeUri": "http://www.iana.org/assignments/media-types/text/csv"})
	var freqRows []record.Record
	for _, f := range frequencies {
		freqRows = append(freqRows, record.Record{"updateFrequency": vocab.Freq + f})
	}
	rec.On("all_update_frequencies", freqRows...)
	rec.QueryFunc = func(template string, b store.Bindings) ([]record.Record, error) {
		if template == "get_label" {
			if b["uri"] == "<"+healthTheme+">" {
				return []record.Record{{"label": "Health"}}, nil
			}
			return nil, nil
		}
		return rec.Results[template], nil
	}
	return refdata.NewValidator(rec, zerolog.Nop())
}

func objects(triples []rdf.Triple, pred rdf.IRI) []rdf.Object {
	var out []rdf.Object
	for _, t := range triples {
		if t.Pred == pred {
			out = append(out, t.Obj)
		}
	}
	return out
}

var (
	subject = vocab.MustIRI(vocab.AssetURI("0d7e2f8e-9f5a-4f57-9b0c-3a4f2f4c1a11"))
	title   = vocab.MustIRI(vocab.DCTerms + "title")
	keyword = vocab.MustIRI(vocab.DCAT + "keyword")
	contact = vocab.MustIRI(vocab.DCAT + "contactPoint")
	fn      = vocab.MustIRI(vocab.VCard + "fn")
)

var _ = Describe("The attribute mapping engine", func() {
	ctx := context.Background()

	var registry *Registry
	BeforeEach(func() {
		registry = NewRegistry(
			Field{"title", Simple{Pred: title}},
			Field{"keyword", List{Pred: keyword}},
			Field{"contactPoint", Object{
				Pred:       contact,
				Attributes: NewRegistry(Field{"name", Simple{Pred: fn}}),
				Type:       vocab.VCardKind,
			}},
		)
	})

	It("should emit one triple for a simple attribute", func() {
		triples, err := registry.Triples(ctx, subject, record.Record{"title": "Postcodes"})
		Expect(err).NotTo(HaveOccurred())
		Expect(triples).To(HaveLen(1))
		Expect(triples[0].Subj).To(Equal(rdf.Subject(subject)))
		Expect(triples[0].Obj.(rdf.Literal).String()).To(Equal("Postcodes"))
	})

	It("should emit one triple per list element with the same subject and predicate", func() {
		triples, err := registry.Triples(ctx, subject, record.Record{"keyword": []any{"maps", "addresses"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(triples).To(HaveLen(2))
		for _, t := range triples {
			Expect(t.Subj).To(Equal(rdf.Subject(subject)))
			Expect(t.Pred).To(Equal(rdf.Predicate(keyword)))
		}
	})

	It("should give nested objects a blank node subject and type", func() {
		triples, err := registry.Triples(ctx, subject, record.Record{
			"contactPoint": record.Record{"name": "Data team", "email": ""},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(triples).To(HaveLen(3))

		node, ok := triples[0].Obj.(rdf.Blank)
		Expect(ok).To(BeTrue())
		Expect(triples[1]).To(Equal(rdf.Triple{Subj: node, Pred: vocab.RDFType, Obj: vocab.VCardKind}))
		Expect(triples[2].Subj).To(Equal(rdf.Subject(node)))
		Expect(triples[2].Pred).To(Equal(rdf.Predicate(fn)))
	})

	It("should mint a fresh node for every element of an object list", func() {
		list := NewRegistry(Field{"contacts", ObjectList{Object{
			Pred:       contact,
			Attributes: NewRegistry(Field{"name", Simple{Pred: fn}}),
		}}})
		triples, err := list.Triples(ctx, subject, record.Record{"contacts": []any{
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
		}})
		Expect(err).NotTo(HaveOccurred())
		nodes := objects(triples, contact)
		Expect(nodes).To(HaveLen(2))
		Expect(nodes[0]).NotTo(Equal(nodes[1]))
	})

	It("should skip unknown and empty fields", func() {
		triples, err := registry.Triples(ctx, subject, record.Record{
			"title":     "",
			"keyword":   []any{},
			"unmapped":  "value",
			"extraNote": nil,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(triples).To(BeEmpty())
	})

	It("should not catch converter failures", func() {
		boom := errors.New("boom")
		failing := NewRegistry(Field{"title", Simple{Pred: title, Convert: func(context.Context, any) (rdf.Object, error) {
			return nil, boom
		}}})
		_, err := failing.Triples(ctx, subject, record.Record{"title": "x"})
		Expect(err).To(MatchError(boom))
		Expect(err.Error()).To(ContainSubstring("field title"))
	})

	It("should fail objects without a required identifier", func() {
		withID := NewRegistry(Field{"d", Object{Pred: contact, ID: IDFromField("distribution")}})
		_, err := withID.Triples(ctx, subject, record.Record{"d": record.Record{"title": "x"}})
		Expect(errors.Is(err, ErrMissingIdentifier)).To(BeTrue())
	})
})

var _ = Describe("Rendering", func() {
	It("should render dates without time of day, quoted strings, iris and blank nodes", func() {
		node, err := rdf.NewBlank("b1")
		Expect(err).NotTo(HaveOccurred())
		date, err := Term(time.Date(2024, 2, 29, 17, 45, 0, 0, time.UTC))
		Expect(err).NotTo(HaveOccurred())
		str, err := Term(`Postcodes "PAF"`)
		Expect(err).NotTo(HaveOccurred())
		uri, err := AsIRI(context.Background(), "https://example.gov.uk/licence")
		Expect(err).NotTo(HaveOccurred())

		out := Render([]rdf.Triple{
			{Subj: subject, Pred: title, Obj: str},
			{Subj: subject, Pred: vocab.MustIRI(vocab.DCTerms + "modified"), Obj: date},
			{Subj: subject, Pred: vocab.MustIRI(vocab.DCTerms + "license"), Obj: uri},
			{Subj: subject, Pred: contact, Obj: node},
		})
		lines := strings.Split(strings.TrimSpace(out), "\n")
		Expect(lines).To(HaveLen(4))
		for _, l := range lines {
			Expect(l).To(HavePrefix("<" + subject.String() + "> "))
			Expect(l).To(HaveSuffix(" ."))
		}
		Expect(lines[0]).To(ContainSubstring(`Postcodes \"PAF\"`))
		Expect(lines[1]).To(ContainSubstring(`"2024-02-29"^^<http://www.w3.org/2001/XMLSchema#date>`))
		Expect(lines[1]).NotTo(ContainSubstring("17:45"))
		Expect(lines[2]).To(ContainSubstring("<https://example.gov.uk/licence>"))
		Expect(lines[3]).To(HaveSuffix("_:b1 ."))
	})

	It("should parse iso date strings", func() {
		obj, err := AsDate(context.Background(), "2023-11-01")
		Expect(err).NotTo(HaveOccurred())
		Expect(obj.(rdf.Literal).DataType).To(Equal(vocab.XSDDate))

		_, err = AsDate(context.Background(), "first of may")
		Expect(errors.Is(err, ErrUnsupportedValue)).To(BeTrue())
	})
})

var _ = Describe("The asset table", func() {
	ctx := context.Background()
	updateFrequency := vocab.MustIRI(vocab.DCTerms + "accrualPeriodicity")

	postcodes := func() record.Record {
		return record.Record{
			"title":           "Postcodes",
			"type":            "Dataset",
			"updateFrequency": "freq:monthly",
			"theme":           []any{healthTheme},
		}
	}

	It("should map a known update frequency to its iri", func() {
		table := AssetTable(testResolver("monthly", "daily"))
		triples, err := table.Triples(ctx, subject, postcodes())
		Expect(err).NotTo(HaveOccurred())
		Expect(objects(triples, updateFrequency)).To(ConsistOf(rdf.Object(vocab.MustIRI(vocab.Freq + "monthly"))))
		Expect(objects(triples, vocab.RDFType)).To(ConsistOf(rdf.Object(vocab.DCATDataset)))
		Expect(objects(triples, vocab.MustIRI(vocab.DCAT+"theme"))).To(ConsistOf(rdf.Object(vocab.MustIRI(healthTheme))))
	})

	It("should fail with an invalid update frequency error naming the value", func() {
		table := AssetTable(testResolver("daily"))
		_, err := table.Triples(ctx, subject, postcodes())
		Expect(err).To(HaveOccurred())
		var ive *refdata.InvalidValueError
		Expect(errors.As(err, &ive)).To(BeTrue())
		Expect(ive.Value).To(Equal("freq:monthly"))
		Expect(err.Error()).To(ContainSubstring("Invalid update frequency: freq:monthly"))
	})

	It("should fail on unknown themes and media types", func() {
		table := AssetTable(testResolver("monthly"))
		r := postcodes()
		r["theme"] = []any{"http://marketplace.cddo.gov.uk/theme/nope"}
		_, err := table.Triples(ctx, subject, r)
		Expect(errors.Is(err, refdata.ErrInvalidValue)).To(BeTrue())

		r = postcodes()
		r["distributions"] = []any{record.Record{
			"distribution": vocab.DistributionURI("d1"),
			"title":        "Download",
			"mediaType":    "XLS",
		}}
		_, err = table.Triples(ctx, subject, r)
		Expect(errors.Is(err, refdata.ErrInvalidValue)).To(BeTrue())
	})

	It("should map distributions to their own subjects", func() {
		table := AssetTable(testResolver("monthly"))
		r := postcodes()
		r["distributions"] = []any{
			record.Record{"distribution": vocab.DistributionURI("d1"), "title": "CSV download", "mediaType": "CSV", "byteSize": 2048},
			record.Record{"distribution": vocab.DistributionURI("d2"), "title": "Bulk", "mediaType": "CSV"},
		}
		triples, err := table.Triples(ctx, subject, r)
		Expect(err).NotTo(HaveOccurred())

		dists := objects(triples, vocab.MustIRI(vocab.DCAT+"distribution"))
		Expect(dists).To(ConsistOf(
			rdf.Object(vocab.MustIRI(vocab.DistributionURI("d1"))),
			rdf.Object(vocab.MustIRI(vocab.DistributionURI("d2"))),
		))
		var d1Titles []string
		for _, t := range triples {
			if t.Subj == rdf.Subject(vocab.MustIRI(vocab.DistributionURI("d1"))) && t.Pred == rdf.Predicate(title) {
				d1Titles = append(d1Titles, t.Obj.String())
			}
		}
		Expect(d1Titles).To(Equal([]string{"CSV download"}))
	})

	It("should store organisations by slug", func() {
		table := AssetTable(testResolver("monthly"))
		triples, err := table.Triples(ctx, subject, record.Record{
			"organisation": map[string]any{"id": "ordnance-survey", "slug": "ordnance-survey"},
			"creator":      []any{"ordnance-survey", "nhs-digital"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(triples).To(HaveLen(3))
		Expect(triples[0].Obj.String()).To(Equal("ordnance-survey"))
	})

	It("should read back what it wrote", func() {
		table := AssetTable(testResolver("monthly"))
		in := record.Record{
			"identifier":       "0d7e2f8e-9f5a-4f57-9b0c-3a4f2f4c1a11",
			"title":            "Postcodes",
			"type":             "Dataset",
			"updateFrequency":  "freq:monthly",
			"theme":            []any{healthTheme},
			"keyword":          []any{"addresses", "maps", "postcodes"},
			"alternativeTitle": []any{"PAF"},
			"licence":          "https://www.nationalarchives.gov.uk/doc/open-government-licence/version/3/",
			"created":          time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
			"modified":         time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
		}
		triples, err := table.Triples(ctx, subject, in)
		Expect(err).NotTo(HaveOccurred())

		// one row per stored statement, as a query without joins would return them
		var rows []record.Record
		for _, t := range triples {
			field, ok := table.FieldFor(t.Pred.String())
			Expect(ok).To(BeTrue())
			var v any = t.Obj.String()
			if l, isLit := t.Obj.(rdf.Literal); isLit && l.DataType == vocab.XSDDate {
				v, err = time.Parse("2006-01-02", l.String())
				Expect(err).NotTo(HaveOccurred())
			}
			rows = append(rows, table.Revert(record.Record{"resourceUri": subject.String(), field: v}))
		}

		out := aggregate.ByKey(rows, "resourceUri")
		Expect(out).To(HaveLen(1))
		got := out[0].Without("resourceUri")
		Expect(got).To(HaveLen(len(in)))
		for field, want := range in {
			switch w := want.(type) {
			case []any:
				Expect(asSortedList(got[field])).To(Equal(w), field)
			default:
				Expect(record.Equal(got[field], w)).To(BeTrue(), field)
			}
		}
	})
})

func asSortedList(v any) []any {
	if s, ok := v.(*record.Set); ok {
		return s.Sorted()
	}
	out := []any{v}
	sort.Slice(out, func(i, j int) bool { return record.Key(out[i]) < record.Key(out[j]) })
	return out
}
