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

package store

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/knakk/rdf"
	"github.com/knakk/sparql"
	"github.com/rs/zerolog"

	"github.com/mimiro-io/catalogue-api/internal/record"
	"github.com/mimiro-io/catalogue-api/internal/vocab"
)

//go:embed queries/*.sparql
var queries embed.FS

// Client speaks the SPARQL 1.1 protocol to a query and an update endpoint.
type Client struct {
	queryURL  string
	updateURL string
	http      *http.Client
	templates *template.Template
	logger    zerolog.Logger
	metrics   statsd.ClientInterface
}

func NewClient(queryURL, updateURL string, timeout time.Duration, logger zerolog.Logger, metrics statsd.ClientInterface) (*Client, error) {
	tmpl, err := template.New("queries").Option("missingkey=error").ParseFS(queries, "queries/*.sparql")
	if err != nil {
		return nil, fmt.Errorf("unable to parse query templates: %w", err)
	}
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	return &Client{
		queryURL:  queryURL,
		updateURL: updateURL,
		http:      &http.Client{Timeout: timeout},
		templates: tmpl,
		logger:    logger.With().Str("logger", "store").Logger(),
		metrics:   metrics,
	}, nil
}

func (c *Client) render(name string, bindings Bindings) (string, error) {
	t := c.templates.Lookup(name + ".sparql")
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	if bindings == nil {
		bindings = Bindings{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]string(bindings)); err != nil {
		return "", fmt.Errorf("unable to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (c *Client) Query(ctx context.Context, name string, bindings Bindings) ([]record.Record, error) {
	q, err := c.render(name, bindings)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	body, err := c.post(ctx, c.queryURL, "query", q, "application/sparql-results+json")
	_ = c.metrics.Timing("store.query.time", time.Since(start), []string{"template:" + name}, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStore, name, err)
	}
	defer body.Close()

	res, err := sparql.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: unable to parse results: %w", ErrStore, name, err)
	}
	solutions := res.Solutions()
	rows := make([]record.Record, 0, len(solutions))
	for _, s := range solutions {
		row := make(record.Record, len(s))
		for k, term := range s {
			row[k] = Value(term)
		}
		rows = append(rows, row)
	}
	c.logger.Debug().Str("template", name).Int("rows", len(rows)).Msg("query complete")
	return rows, nil
}

func (c *Client) Update(ctx context.Context, name string, bindings Bindings) error {
	u, err := c.render(name, bindings)
	if err != nil {
		return err
	}
	start := time.Now()
	body, err := c.post(ctx, c.updateURL, "update", u, "*/*")
	_ = c.metrics.Timing("store.update.time", time.Since(start), []string{"template:" + name}, 1)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStore, name, err)
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

func (c *Client) post(ctx context.Context, endpoint, param, statement, accept string) (io.ReadCloser, error) {
	form := url.Values{param: {statement}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.logger.Warn().Int("status", resp.StatusCode).Str("body", string(msg)).Msg("store rejected request")
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Value converts a result term into a record value. Date literals become
// time.Time and integers int64; everything else is its lexical form.
func Value(term rdf.Term) any {
	l, ok := term.(rdf.Literal)
	if !ok {
		return term.String()
	}
	switch l.DataType {
	case vocab.XSDDate:
		if t, err := time.Parse("2006-01-02", l.String()); err == nil {
			return t
		}
	case vocab.XSDDateTime:
		if t, err := time.Parse(time.RFC3339Nano, l.String()); err == nil {
			return t
		}
	case xsdInteger:
		if n, err := strconv.ParseInt(l.String(), 10, 64); err == nil {
			return n
		}
	}
	return l.String()
}

var xsdInteger = vocab.MustIRI(vocab.XSD + "integer")
