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

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mimiro-io/catalogue-api/internal"
)

func main() {
	var cfg *internal.Config = &internal.Config{}
	if err := cfg.ServerFlags().Parse(os.Args[1:]); err != nil {
		panic(err)
	}
	if err := cfg.LoadEnv(); err != nil {
		panic(err)
	}

	internal.LoadLogger(cfg.LogType, cfg.ServiceName, cfg.LogLevel)
	internal.LOG.Trace().Any("With config", cfg).Msg("Configuration")

	if err := cfg.Validate(); err != nil {
		internal.LOG.Panic().Err(err).Msg("invalid configuration")
	}

	s, err := internal.NewServer(cfg)
	if err != nil {
		internal.LOG.Panic().Err(err).Msg("unable to start server")
	}
	// Start server
	go func() {
		internal.LOG.Info().Int("port", cfg.Port).Str("store", cfg.QueryURL()).Msg("Starting catalogue api")
		if err := s.E.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			internal.LOG.Fatal().Err(err).Msg("unexpected termination")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server with a timeout of 10 seconds.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.E.Shutdown(ctx); err != nil {
		internal.LOG.Error().Err(err).Msg("shutdown failed")
	}
	if err := s.Close(); err != nil {
		internal.LOG.Warn().Err(err).Msg("failed to close metrics")
	}
}
