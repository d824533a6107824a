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

package refdata

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/store"
)

func testStore() *store.Recorder {
	return store.NewRecorder().
		On("all_mimetypes",
			record.Record{"mimetypeLabel": "CSV", "mimetypeUri": "http://www.iana.org/assignments/media-types/text/csv"},
			record.Record{"mimetypeLabel": "JSON", "mimetypeUri": "http://www.iana.org/assignments/media-types/application/json"},
		).
		On("all_update_frequencies",
			record.Record{"updateFrequency": "http://purl.org/cld/freq/monthly"},
			record.Record{"updateFrequency": "http://purl.org/cld/freq/daily"},
		)
}

func TestMediaType(t *testing.T) {
	rec := testStore()
	v := NewValidator(rec, zerolog.Nop())
	ctx := context.Background()

	iri, err := v.MediaType(ctx, "CSV")
	require.NoError(t, err)
	assert.Equal(t, "http://www.iana.org/assignments/media-types/text/csv", iri.String())

	_, err = v.MediaType(ctx, "XLS")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
	var ive *InvalidValueError
	require.True(t, errors.As(err, &ive))
	assert.Equal(t, "mediaType", ive.Field)
	assert.Equal(t, "XLS", ive.Value)
	assert.Equal(t, "Invalid media type: XLS", err.Error())

	labels, err := v.MediaTypeLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CSV", "JSON"}, labels)

	assert.Equal(t, 1, rec.QueryCount("all_mimetypes"), "media types are loaded once")
}

func TestUpdateFrequency(t *testing.T) {
	rec := testStore()
	v := NewValidator(rec, zerolog.Nop())
	ctx := context.Background()

	iri, err := v.UpdateFrequency(ctx, "freq:monthly")
	require.NoError(t, err)
	assert.Equal(t, "http://purl.org/cld/freq/monthly", iri.String())

	_, err = v.UpdateFrequency(ctx, "monthly")
	assert.ErrorIs(t, err, ErrMalformedNotation)
	assert.NotErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, "Frequency should be of the format freq:<frequency> - monthly", err.Error())

	_, err = v.UpdateFrequency(ctx, "freq:fortnightly")
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, "Invalid update frequency: freq:fortnightly", err.Error())

	assert.Equal(t, 1, rec.QueryCount("all_update_frequencies"))
}

func TestUpdateFrequencyNotInStore(t *testing.T) {
	rec := store.NewRecorder().On("all_update_frequencies",
		record.Record{"updateFrequency": "http://purl.org/cld/freq/daily"})
	v := NewValidator(rec, zerolog.Nop())

	_, err := v.UpdateFrequency(context.Background(), "freq:monthly")
	var ive *InvalidValueError
	require.True(t, errors.As(err, &ive))
	assert.Equal(t, "freq:monthly", ive.Value)
}

func TestTheme(t *testing.T) {
	rec := testStore()
	known := "http://marketplace.cddo.gov.uk/theme/health"
	rec.QueryFunc = func(template string, b store.Bindings) ([]record.Record, error) {
		if template == "get_label" && b["uri"] == "<"+known+">" {
			return []record.Record{{"label": "Health"}}, nil
		}
		return nil, nil
	}
	v := NewValidator(rec, zerolog.Nop())
	ctx := context.Background()

	iri, err := v.Theme(ctx, known)
	require.NoError(t, err)
	assert.Equal(t, known, iri.String())

	_, err = v.Theme(ctx, known)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.QueryCount("get_label"), "themes are checked on every call")

	_, err = v.Theme(ctx, "http://marketplace.cddo.gov.uk/theme/unknown")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = v.Theme(ctx, "not a uri")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestStoreFailureIsNotAnInvalidValue(t *testing.T) {
	rec := store.NewRecorder()
	rec.Err = store.ErrStore
	v := NewValidator(rec, zerolog.Nop())

	_, err := v.MediaType(context.Background(), "CSV")
	assert.ErrorIs(t, err, store.ErrStore)
	assert.NotErrorIs(t, err, ErrInvalidValue)
	assert.Error(t, v.EnsureLoaded(context.Background()))
}

func TestConcurrentFirstUse(t *testing.T) {
	rec := testStore()
	v := NewValidator(rec, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.MediaType(context.Background(), "JSON")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.NoError(t, v.EnsureLoaded(context.Background()))
	assert.GreaterOrEqual(t, rec.QueryCount("all_mimetypes"), 1)
}
