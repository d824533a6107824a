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

package internal

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mimiro-io/catalogue-api/internal/orgs"
	"github.com/mimiro-io/catalogue-api/internal/publish"
	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/store"
	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

func TestHttp(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Catalogue API Suite")
}

const (
	healthTheme = "http://marketplace.cddo.gov.uk/theme/health"
	ogl         = "https://www.nationalarchives.gov.uk/doc/open-government-licence/version/3/"
)

func testRecorder() *store.Recorder {
	rec := store.NewRecorder().
		On("all_mimetypes",
			record.Record{"mimetypeLabel": "CSV", "mimetypeUri": "http://www.iana.org/assignments/media-types/text/csv"}).
		On("all_update_frequencies",
			record.Record{"updateFrequency": vocab.Freq + "monthly"}).
		On("asset_search",
			record.Record{"identifier": "a1", "resourceUri": vocab.AssetURI("a1"), "type": vocab.DCAT + "Dataset",
				"title": "Roads", "description": "Road network", "organisation": "ordnance-survey", "mediaTypeLabel": "CSV",
				"modified": time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
			record.Record{"identifier": "b2", "resourceUri": vocab.AssetURI("b2"), "type": vocab.DCAT + "DataService",
				"title": "Census API", "organisation": "office-for-national-statistics"})
	rec.QueryFunc = func(template string, b store.Bindings) ([]record.Record, error) {
		if template == "get_label" {
			if b["uri"] == "<"+healthTheme+">" {
				return []record.Record{{"label": "Health"}}, nil
			}
			return nil, nil
		}
		return rec.Results[template], nil
	}
	return rec
}

func datasetCSV(rows ...map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString("Add one row per distribution\n")
	w := csv.NewWriter(&buf)
	_ = w.Write(publish.DatasetColumns)
	for _, values := range rows {
		row := make([]string, len(publish.DatasetColumns))
		for i, c := range publish.DatasetColumns {
			row[i] = values[c]
		}
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}

func validDatasetRow() map[string]string {
	return map[string]string{
		"externalIdentifier":       "D1",
		"title":                    "Roads",
		"description":              "Road network",
		"theme":                    healthTheme,
		"publisher":                "ordnance-survey",
		"creator":                  "ordnance-survey",
		"contactPoint_contactName": "Data team",
		"contactPoint_email":       "data@os.gov.uk",
		"securityClassification":   "OFFICIAL",
		"licence":                  ogl,
		"updateFrequency":          "freq:monthly",
		"distribution_title":       "Download",
		"distribution_identifier":  "D1-csv",
		"distribution_modified":    "05/01/2023",
		"distribution_licence":     ogl,
		"distribution_mediaType":   "CSV",
	}
}

const validService = `{
	"type": "DataService", "title": "API", "description": "An API",
	"contactPoint": {"name": "API team", "email": "api@os.gov.uk"},
	"licence": "` + ogl + `", "securityClassification": "OFFICIAL",
	"externalIdentifier": "S1", "organisationID": "ordnance-survey", "creatorID": ["ordnance-survey"],
	"endpointDescription": "https://api.os.gov.uk/docs", "servesDataset": [],
	"serviceStatus": "LIVE", "serviceType": "REST"
}`

const validServiceBody = `{"data": [` + validService + `]}`

var _ = Describe("The web server", func() {
	var (
		rec *store.Recorder
		ts  *httptest.Server
	)
	BeforeEach(func() {
		rec = testRecorder()
		memoryStats = func() Memory { return Memory{} }
		server, err := newServer(&Config{ServiceName: "test"}, rec, orgs.Default(), &Metrics{Statsd: &statsd.NoOpClient{}})
		Expect(err).NotTo(HaveOccurred())
		ts = httptest.NewServer(server.E)
	})
	AfterEach(func() {
		ts.Close()
		memoryStats = ReadMemoryStats
	})

	get := func(path string) (*http.Response, []byte) {
		resp, err := http.Get(ts.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, body
	}

	upload := func(field, name string, content []byte) (*http.Response, map[string]any) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile(field, name)
		Expect(err).NotTo(HaveOccurred())
		_, err = fw.Write(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(mw.Close()).To(Succeed())

		resp, err := http.Post(ts.URL+"/publish/parse", mw.FormDataContentType(), &buf)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var out map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return resp, out
	}

	post := func(path, body string) (*http.Response, map[string]any) {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var out map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return resp, out
	}

	It("should report health", func() {
		resp, body := get("/health")
		Expect(resp.StatusCode).To(Equal(200))
		Expect(string(body)).To(Equal("UP"))
	})

	It("should list organisations", func() {
		resp, body := get("/organisations")
		Expect(resp.StatusCode).To(Equal(200))
		var list []map[string]any
		Expect(json.Unmarshal(body, &list)).To(Succeed())
		Expect(list).To(HaveLen(6))
	})

	It("should list the known media types", func() {
		resp, body := get("/publish/media-types")
		Expect(resp.StatusCode).To(Equal(200))
		Expect(string(body)).To(Equal("[\"CSV\"]\n"))
	})

	Context("when searching", func() {
		It("should filter by asset type", func() {
			resp, body := get("/catalogue?assetType=DataService")
			Expect(resp.StatusCode).To(Equal(200))
			var res map[string]any
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res["total"]).To(BeEquivalentTo(1))
			data := res["data"].([]any)
			Expect(data[0].(map[string]any)["title"]).To(Equal("Census API"))
		})

		It("should reject a bad limit", func() {
			resp, body := get("/catalogue?limit=lots")
			Expect(resp.StatusCode).To(Equal(400))
			Expect(string(body)).To(ContainSubstring("limit must be a non-negative integer"))
		})

		It("should return 500 when the store fails", func() {
			rec.Err = store.ErrStore
			resp, body := get("/catalogue")
			Expect(resp.StatusCode).To(Equal(500))
			Expect(string(body)).To(Equal("{\"message\":\"Failed to query triple store\"}\n"))
		})

		It("should fail when an asset names an unknown organisation", func() {
			rec.Results["asset_search"] = append(rec.Results["asset_search"],
				record.Record{"identifier": "c3", "resourceUri": vocab.AssetURI("c3"), "type": vocab.DCAT + "Dataset",
					"title": "Spells", "organisation": "ministry-of-magic"})
			resp, body := get("/catalogue")
			Expect(resp.StatusCode).To(Equal(500))
			Expect(string(body)).To(ContainSubstring("organisation does not exist"))
		})
	})

	Context("when fetching an asset", func() {
		It("should return 400 for identifiers that are not uuids", func() {
			resp, _ := get("/catalogue/not-a-uuid")
			Expect(resp.StatusCode).To(Equal(400))
		})

		It("should return 404 for unknown assets", func() {
			resp, body := get("/catalogue/5b7f1c2e-8a3d-4f6e-9b0a-1c2d3e4f5a6b")
			Expect(resp.StatusCode).To(Equal(404))
			Expect(string(body)).To(Equal("{\"message\":\"Asset not found\"}\n"))
		})
	})

	It("should export entities as ndjson", func() {
		resp, body := get("/catalogue/export")
		Expect(resp.StatusCode).To(Equal(200))
		Expect(resp.Header.Get("Content-Type")).To(Equal("application/x-ndjson"))
		var lines int
		scanner := bufio.NewScanner(bytes.NewReader(body))
		for scanner.Scan() {
			lines++
		}
		Expect(lines).To(Equal(3))
	})

	It("should answer a failed export with an error instead of a partial stream", func() {
		rec.Err = store.ErrStore
		resp, body := get("/catalogue/export")
		Expect(resp.StatusCode).To(Equal(500))
		Expect(resp.Header.Get("Content-Type")).NotTo(Equal("application/x-ndjson"))
		Expect(string(body)).To(Equal("{\"message\":\"Failed to query triple store\"}\n"))
	})

	Context("when parsing uploads", func() {
		It("should return valid assets", func() {
			resp, out := upload("dataset", "datasets.csv", datasetCSV(validDatasetRow()))
			Expect(resp.StatusCode).To(Equal(200))
			Expect(out["errors"]).To(BeEmpty())
			Expect(out["data"]).To(HaveLen(1))
			ds := out["data"].([]any)[0].(map[string]any)
			Expect(ds["organisationID"]).To(Equal("ordnance-survey"))
			dist := ds["distributions"].([]any)[0].(map[string]any)
			Expect(dist["modified"]).To(Equal("2023-01-05"))
		})

		It("should report files that cannot be read", func() {
			resp, out := upload("dataservice", "services.csv", []byte("only a description\n"))
			Expect(resp.StatusCode).To(Equal(200))
			errs := out["errors"].([]any)
			Expect(errs).To(HaveLen(1))
			Expect(errs[0].(map[string]any)["scope"]).To(Equal("FILE"))
			Expect(errs[0].(map[string]any)["location"]).To(Equal("services.csv"))
		})

		It("should reject requests without files", func() {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			Expect(mw.WriteField("note", "nothing here")).To(Succeed())
			Expect(mw.Close()).To(Succeed())
			resp, err := http.Post(ts.URL+"/publish/parse", mw.FormDataContentType(), &buf)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(400))
		})

		It("should refuse uploads when memory is short", func() {
			memoryStats = func() Memory { return Memory{Max: 600 * 1000 * 1000, Current: 550 * 1000 * 1000} }
			resp, _ := upload("dataset", "datasets.csv", datasetCSV(validDatasetRow()))
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Context("when creating assets", func() {
		It("should store valid assets", func() {
			resp, out := post("/publish/assets", validServiceBody)
			Expect(resp.StatusCode).To(Equal(201))
			Expect(out["errors"]).To(BeEmpty())
			created := out["data"].([]any)[0].(map[string]any)
			Expect(created["identifier"]).NotTo(BeEmpty())
			Expect(created["organisation"].(map[string]any)["slug"]).To(Equal("ordnance-survey"))
			Expect(rec.Updates).To(HaveLen(1))
		})

		It("should store nothing when validation fails", func() {
			resp, out := post("/publish/assets", strings.Replace(validServiceBody, `"serviceType": "REST"`, `"serviceType": "GRPC"`, 1))
			Expect(resp.StatusCode).To(Equal(400))
			errs := out["errors"].([]any)
			Expect(errs).To(HaveLen(1))
			Expect(errs[0].(map[string]any)["scope"]).To(Equal("ASSET"))
			Expect(rec.Updates).To(BeEmpty())
		})

		It("should report a failed write", func() {
			rec.UpdateErr = store.ErrStore
			resp, out := post("/publish/assets", validServiceBody)
			Expect(resp.StatusCode).To(Equal(500))
			errs := out["errors"].([]any)
			Expect(errs[0].(map[string]any)["scope"]).To(Equal("BATCH"))
		})

		It("should reject malformed bodies", func() {
			resp, err := http.Post(ts.URL+"/publish/assets", "application/json", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(400))
		})
	})

	Context("when creating a single asset", func() {
		It("should store it", func() {
			resp, out := post("/publish/asset", validService)
			Expect(resp.StatusCode).To(Equal(201))
			created := out["asset"].(map[string]any)
			Expect(created["identifier"]).NotTo(BeEmpty())
			Expect(created["type"]).To(Equal("DataService"))
			Expect(rec.Updates).To(HaveLen(1))
		})

		It("should report only the first problem", func() {
			body := strings.Replace(validService, `"serviceType": "REST"`, `"serviceType": "GRPC"`, 1)
			body = strings.Replace(body, `"serviceStatus": "LIVE"`, `"serviceStatus": "GONE"`, 1)
			resp, out := post("/publish/asset", body)
			Expect(resp.StatusCode).To(Equal(400))
			Expect(out["scope"]).To(Equal("ASSET"))
			Expect(out["sub_errors"]).NotTo(BeEmpty())
			Expect(rec.Updates).To(BeEmpty())
		})

		It("should return 500 when the write fails", func() {
			rec.UpdateErr = store.ErrStore
			resp, out := post("/publish/asset", validService)
			Expect(resp.StatusCode).To(Equal(500))
			Expect(out["message"]).To(Equal("Failed to query triple store"))
		})
	})
})
