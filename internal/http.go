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
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mimiro-io/catalogue-api/internal/asset"
	"github.com/mimiro-io/catalogue-api/internal/catalogue"
	"github.com/mimiro-io/catalogue-api/internal/mapping"
	"github.com/mimiro-io/catalogue-api/internal/orgs"
	"github.com/mimiro-io/catalogue-api/internal/publish"
	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/refdata"
	"github.com/mimiro-io/catalogue-api/internal/schema"
	"github.com/mimiro-io/catalogue-api/internal/store"
)

const defaultSearchLimit = 100

// memoryStats is replaced in tests.
var memoryStats = ReadMemoryStats

type Server struct {
	E       *echo.Echo
	metrics *Metrics
}

// NewServer wires the catalogue against the configured triple store.
func NewServer(cfg *Config) (*Server, error) {
	m, err := NewMetrics(cfg)
	if err != nil {
		return nil, err
	}
	client, err := store.NewClient(cfg.QueryURL(), cfg.UpdateURL(), cfg.Timeout(), Logger("store"), m.Statsd)
	if err != nil {
		return nil, err
	}
	directory := orgs.Default()
	if cfg.OrganisationsFile != "" {
		directory, err = orgs.LoadFile(cfg.OrganisationsFile)
		if err != nil {
			return nil, err
		}
	}
	return newServer(cfg, client, directory, m)
}

func newServer(cfg *Config, exec store.Executor, directory *orgs.Directory, m *Metrics) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = false
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		LOG.Error().Err(fmt.Errorf("request failed: %w", err)).Msg(err.Error())

		if c.Response().Committed {
			return
		}

		he, ok := err.(*echo.HTTPError)
		if ok {
			if he.Internal != nil {
				if herr, ok := he.Internal.(*echo.HTTPError); ok {
					he = herr
				}
			}
		} else {
			he = ToHttpError(err)
		}

		code := he.Code
		message := he.Message
		if m, ok := he.Message.(string); ok {
			message = echo.Map{"message": m}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(code, message)
		}
		if err != nil {
			LOG.Error().Err(err).Msg(err.Error())
		}
	}

	h, err := newHandler(exec, directory, m)
	if err != nil {
		return nil, err
	}

	e.GET("/health", health)

	e.Use(DefaultLoggerFilter(cfg, m.Statsd))
	e.GET("/organisations", h.organisations)
	e.GET("/catalogue", h.search)
	e.GET("/catalogue/export", h.export)
	e.GET("/catalogue/:id", h.detail)
	e.GET("/publish/media-types", h.mediaTypes)

	guard := MemoryGuard(cfg.MemoryHeadroom, memoryStats)
	e.POST("/publish/parse", h.parse, guard)
	e.POST("/publish/assets", h.createAssets, guard)
	e.POST("/publish/asset", h.createAsset)

	return &Server{E: e, metrics: m}, nil
}

// Close releases the metrics client.
func (s *Server) Close() error {
	return s.metrics.Close()
}

type handler struct {
	refs      *refdata.Validator
	catalogue *catalogue.Service
	validator *publish.Validator
	creator   *publish.Creator
}

func newHandler(exec store.Executor, directory *orgs.Directory, m *Metrics) (*handler, error) {
	sv, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	refs := refdata.NewValidator(exec, Logger("refdata"))
	table := mapping.AssetTable(refs)
	return &handler{
		refs:      refs,
		catalogue: catalogue.NewService(exec, table, directory, LOG, m.Statsd),
		validator: publish.NewValidator(refs, directory, sv, LOG, m.Statsd),
		creator:   publish.NewCreator(exec, table, directory, LOG, m.Statsd),
	}, nil
}

func (h *handler) organisations(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalogue.Organisations())
}

func (h *handler) mediaTypes(c echo.Context) error {
	labels, err := h.refs.MediaTypeLabels(c.Request().Context())
	if err != nil {
		return ToHttpError(err)
	}
	return c.JSON(http.StatusOK, labels)
}

func (h *handler) search(c echo.Context) error {
	params := c.QueryParams()
	q := catalogue.Query{
		Text:          params.Get("query"),
		Topics:        params["topic"],
		Organisations: params["organisation"],
		AssetTypes:    params["assetType"],
	}
	var err error
	if q.Limit, err = intParam(c, "limit", defaultSearchLimit); err != nil {
		return err
	}
	if q.Offset, err = intParam(c, "offset", 0); err != nil {
		return err
	}
	res, err := h.catalogue.Search(c.Request().Context(), q)
	if err != nil {
		return ToHttpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, ToHttpError(fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, name))
	}
	return n, nil
}

func (h *handler) detail(c echo.Context) error {
	a, err := h.catalogue.Detail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return ToHttpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"asset": a})
}

func (h *handler) export(c echo.Context) error {
	compress := strings.Contains(c.Request().Header.Get(echo.HeaderAcceptEncoding), "gzip")
	entities, err := h.catalogue.Entities(c.Request().Context())
	if err != nil {
		return ToHttpError(err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	if compress {
		res.Header().Set(echo.HeaderContentEncoding, "gzip")
	}
	res.WriteHeader(http.StatusOK)
	if compress {
		err = catalogue.WriteAsGzippedNDJson(res, entities)
	} else {
		err = catalogue.WriteNDJson(res, entities)
	}
	if err != nil {
		LOG.Error().Err(err).Msg("failed to write export")
	}
	return nil
}

var uploadTypes = []struct{ field, assetType string }{
	{"dataset", asset.TypeDataset},
	{"dataservice", asset.TypeDataService},
}

func (h *handler) parse(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return ToHttpError(fmt.Errorf("%w: %v", ErrBadRequest, err))
	}
	var (
		tables   []*publish.Table
		fileErrs []publish.ErrorInfo
	)
	for _, upload := range uploadTypes {
		for _, fh := range form.File[upload.field] {
			f, err := fh.Open()
			if err != nil {
				fileErrs = append(fileErrs, publish.FileError(fh.Filename, err))
				continue
			}
			t, err := publish.ReadTable(fh.Filename, upload.assetType, f)
			_ = f.Close()
			if err != nil {
				fileErrs = append(fileErrs, publish.FileError(fh.Filename, err))
				continue
			}
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 && len(fileErrs) == 0 {
		return ToHttpError(fmt.Errorf("%w: upload a dataset or dataservice file", ErrBadRequest))
	}

	res, err := h.validator.ParseTables(c.Request().Context(), tables)
	if err != nil {
		return ToHttpError(err)
	}
	res.Errors = append(fileErrs, res.Errors...)
	return c.JSON(http.StatusOK, res)
}

type createAssetsRequest struct {
	Data []map[string]any `json:"data"`
}

func (h *handler) createAssets(c echo.Context) error {
	var body createAssetsRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return ToHttpError(fmt.Errorf("%w: %v", ErrBadRequest, err))
	}
	recs := make([]record.Record, len(body.Data))
	for i, d := range body.Data {
		recs[i] = d
	}

	ctx := c.Request().Context()
	validated, err := h.validator.ValidateRecords(ctx, recs)
	if err != nil {
		return ToHttpError(err)
	}
	if !validated.OK() {
		return c.JSON(http.StatusBadRequest, publish.Result{Errors: validated.Errors, Data: []asset.Asset{}})
	}

	res := h.creator.CreateAssets(ctx, validated.Data)
	switch {
	case res.OK():
		return c.JSON(http.StatusCreated, res)
	case res.Errors[0].Scope == publish.ScopeBatch:
		return c.JSON(http.StatusInternalServerError, res)
	}
	return c.JSON(http.StatusBadRequest, res)
}

// createAsset stores a single asset and reports only the first problem found.
func (h *handler) createAsset(c echo.Context) error {
	var body map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return ToHttpError(fmt.Errorf("%w: %v", ErrBadRequest, err))
	}
	ctx := c.Request().Context()
	validated, err := h.validator.ValidateRecords(ctx, []record.Record{body})
	if err != nil {
		return ToHttpError(err)
	}
	if !validated.OK() {
		return c.JSON(http.StatusBadRequest, validated.Errors[0])
	}
	a, err := h.creator.CreateAsset(ctx, validated.Data[0])
	if err != nil {
		return ToHttpError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"asset": a})
}

func health(c echo.Context) error {
	return c.String(http.StatusOK, "UP")
}
