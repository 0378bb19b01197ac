// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
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
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/googlegenomics/nwalign/api"
	"github.com/googlegenomics/nwalign/internal/analytics"
	"github.com/googlegenomics/nwalign/internal/source"
)

const shutdownTimeout = 30 * time.Second

var (
	servePort       int
	serveSecure     bool
	serveHTTPSCert  string
	serveHTTPSKey   string
	serveBuckets    []string
	serveTrackUsage bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the alignment API over HTTP",
	Long: `Serve the alignment API over HTTP.

In secure mode the server only accepts HTTPS connections and reads gs://
locations with the bearer token presented by each client.  Otherwise storage
is read anonymously.

Each alignment is bounded by the align.max_cells setting (2^28 score matrix
cells by default, about 16,000 residues per sequence).  Larger requests are
answered with a RuntimeFault error.

If usage tracking is enabled, anonymous information about requests handled by
the server is sent to Google Analytics.  No user identifying information is
ever sent.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.IntVarP(&servePort, "port", "p", 0, "HTTP service port (default from configuration)")
	flags.BoolVar(&serveSecure, "secure", false, "serve in HTTPS-only mode and forward client bearer tokens")
	flags.StringVar(&serveHTTPSCert, "https-cert", "", "HTTPS certificate file")
	flags.StringVar(&serveHTTPSKey, "https-key", "", "HTTPS key file")
	flags.StringSliceVar(&serveBuckets, "buckets", nil, "if set, restricts reads to these buckets")
	flags.BoolVar(&serveTrackUsage, "track-usage", false, "anonymous usage tracking")

	rootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("secure") {
		cfg.Server.Secure = serveSecure
	}
	if flags.Changed("https-cert") {
		cfg.Server.HTTPSCert = serveHTTPSCert
	}
	if flags.Changed("https-key") {
		cfg.Server.HTTPSKey = serveHTTPSKey
	}
	if flags.Changed("buckets") {
		cfg.Server.Buckets = serveBuckets
	}
	if flags.Changed("track-usage") {
		cfg.Server.TrackUsage = serveTrackUsage
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := applyServeFlags(cmd); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	newStorageClient := source.NewPublicClient
	if cfg.Server.Secure {
		newStorageClient = source.NewClientFromBearerToken
	}

	server := api.NewServer(api.Options{
		Scoring:          cfg.Align.Scoring,
		MaxLength:        cfg.Align.MaxLength,
		MaxCells:         cfg.Align.MaxCells,
		JobRetention:     cfg.Server.JobRetention,
		NewStorageClient: newStorageClient,
		Logger:           logger,
	})
	defer server.Close()
	server.Whitelist(cfg.Server.Buckets)

	handler := server.Handler()
	if cfg.Server.TrackUsage {
		logger.Info("Enabling anonymous usage tracking")

		client := analytics.NewClient(cfg.Server.AnalyticsProperty, uuid.New().String(), cfg.Server.AnalyticsEndpoint)
		handler = analytics.TrackingHandler(handler, func(hits []analytics.Hit) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Send(ctx, hits); err != nil {
				logger.Warn("Failed to send hits to analytics", zap.Int("hits", len(hits)), zap.Error(err))
			}
		})
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Serving", zap.String("address", httpServer.Addr), zap.Bool("secure", cfg.Server.Secure))
		if cfg.Server.Secure {
			errc <- httpServer.ListenAndServeTLS(cfg.Server.HTTPSCert, cfg.Server.HTTPSKey)
		} else {
			errc <- httpServer.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server returned an error: %v", err)
	case <-cmd.Context().Done():
	}

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down: %v", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
