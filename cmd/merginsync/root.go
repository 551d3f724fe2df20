// Copyright 2025 walteh LLC
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
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/cmd/merginsync/opts"
	"github.com/walteh/merginsync/pkg/catalog"
	"github.com/walteh/merginsync/pkg/config"
	"github.com/walteh/merginsync/pkg/log"
	"github.com/walteh/merginsync/pkg/metrics"
	"github.com/walteh/merginsync/pkg/remote"
	_ "github.com/walteh/merginsync/pkg/remote/mergin"
)

var (
	// Flags
	configFile  string
	debugLogs   bool
	metricsAddr string

	metricsServer *http.Server
)

func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: merginsync.{yaml,hcl,json} in the working directory)")
	cmd.PersistentFlags().BoolVarP(&debugLogs, "debug", "d", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while the command runs")
}

func setupLogging() zerolog.Logger {
	if debugLogs {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

func setup(cmd *cobra.Command, rootOpts *opts.RootOpts) error {
	logger := setupLogging()
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.Load(ctx, configFile)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}
	logger.Debug().Str("config", cfg.String()).Msg("configuration loaded")

	console := log.New(os.Stdout, logger)
	ctx = log.NewContext(ctx, console)

	m := metrics.New(nil)
	if metricsAddr != "" {
		if err := serveMetrics(ctx, m); err != nil {
			return err
		}
	}

	rootOpts.Config = cfg
	rootOpts.Console = console
	rootOpts.Metrics = m
	rootOpts.Open = func(ctx context.Context, notify func(catalog.Event)) (*catalog.Catalog, error) {
		api, err := remote.New(ctx, cfg.Provider, remote.Options{
			APIRoot: cfg.APIRoot,
			Token:   cfg.Token,
			Tags:    cfg.Tags,
		})
		if err != nil {
			return nil, errors.Errorf("creating provider: %w", err)
		}

		cat, err := catalog.New(ctx, catalog.Options{
			API:          api,
			Fs:           afero.NewOsFs(),
			DataDir:      cfg.DataDir,
			Ignore:       cfg.Ignore,
			DeletePolicy: catalog.DeletePolicy(cfg.DeletePolicy),
			ChunkSize:    cfg.ChunkSize,
			Metrics:      m,
			Notify:       notify,
		})
		if err != nil {
			return nil, errors.Errorf("opening catalog: %w", err)
		}
		return cat, nil
	}

	cmd.SetContext(ctx)
	return nil
}

func serveMetrics(ctx context.Context, m *metrics.Metrics) error {
	ln, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		return errors.Errorf("listening on %s: %w", metricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("metrics server stopped")
		}
	}()
	zerolog.Ctx(ctx).Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return nil
}

func teardown(ctx context.Context) error {
	if metricsServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		return errors.Errorf("stopping metrics server: %w", err)
	}
	return nil
}
