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
	"fmt"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

var LoggerSkipper = func(e echo.Context) bool {
	return e.Request().URL.Path == "/health"
}

type LoggerConfig struct {
	// Skipper defines a function to skip middleware.
	Skipper middleware.Skipper

	// BeforeFunc defines a function which is executed just before the middleware.
	BeforeFunc middleware.BeforeFunc

	ServiceName string

	log zerolog.Logger
	m   statsd.ClientInterface
}

func DefaultLoggerFilter(cfg *Config, m statsd.ClientInterface) echo.MiddlewareFunc {
	return LoggerFilter(LoggerConfig{
		Skipper:     LoggerSkipper,
		ServiceName: cfg.ServiceName,
		m:           m,
		log:         Logger("http"),
	})
}

// LoggerFilter logs every request and reports count, time and size to statsd.
// Requests are tagged with the route pattern, not the raw uri.
func LoggerFilter(config LoggerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			if config.BeforeFunc != nil {
				config.BeforeFunc(c)
			}

			start := time.Now()
			req := c.Request()
			res := c.Response()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			timed := time.Since(start)
			tags := []string{
				fmt.Sprintf("application:%s", config.ServiceName),
				fmt.Sprintf("method:%s", strings.ToLower(req.Method)),
				fmt.Sprintf("url:%s", strings.ToLower(c.Path())),
				fmt.Sprintf("status:%d", res.Status),
			}

			_ = config.m.Incr("http.count", tags, 1)
			_ = config.m.Timing("http.time", timed, tags, 1)
			_ = config.m.Gauge("http.size", float64(res.Size), tags, 1)

			msg := fmt.Sprintf(
				"%d - %s %s (time: %s, size: %d, user_agent: %s)",
				res.Status,
				req.Method,
				req.RequestURI,
				timed.String(),
				res.Size,
				req.UserAgent(),
			)

			l := config.log.Debug()
			if res.Status >= 500 {
				l = config.log.Warn()
			}
			l = l.Str("time", timed.String()).
				Str("request", fmt.Sprintf("%s %s", req.Method, req.RequestURI)).
				Int("status", res.Status).
				Int64("size", res.Size).
				Str("user_agent", req.UserAgent())

			if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
				l = l.Str("request_id", id)
			} else if id := res.Header().Get(echo.HeaderXRequestID); id != "" {
				l = l.Str("request_id", id)
			}
			l.Msg(msg)

			// already handled by c.Error
			return nil
		}
	}
}
