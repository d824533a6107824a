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
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mimiro-io/catalogue-api/internal/asset"
	"github.com/mimiro-io/catalogue-api/internal/catalogue"
	"github.com/mimiro-io/catalogue-api/internal/publish"
	"github.com/mimiro-io/catalogue-api/internal/refdata"
	"github.com/mimiro-io/catalogue-api/internal/store"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrHeadroom   = errors.New("not enough memory headroom")
)

func ToHttpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, catalogue.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Asset not found").SetInternal(err)
	case errors.Is(err, catalogue.ErrInvalidID),
		errors.Is(err, publish.ErrEmptyTable),
		errors.Is(err, asset.ErrUnknownType),
		errors.Is(err, refdata.ErrInvalidValue),
		errors.Is(err, ErrBadRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, ErrHeadroom):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Not enough memory to process request").SetInternal(err)
	case errors.Is(err, store.ErrStore):
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to query triple store").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}
