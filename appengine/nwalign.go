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

// This binary serves the alignment API on App Engine.
package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/appengine"

	"github.com/googlegenomics/nwalign/api"
	"github.com/googlegenomics/nwalign/internal/config"
	"github.com/googlegenomics/nwalign/internal/logging"
	"github.com/googlegenomics/nwalign/internal/source"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(api.Options{
		Scoring:          cfg.Align.Scoring,
		MaxLength:        cfg.Align.MaxLength,
		MaxCells:         cfg.Align.MaxCells,
		JobRetention:     cfg.Server.JobRetention,
		NewStorageClient: newAppEngineClient,
		Logger:           logger,
	})
	defer server.Close()
	server.Whitelist(cfg.Server.Buckets)

	http.Handle("/", server.Handler())
	appengine.Main()
}

func newAppEngineClient(req *http.Request) (source.StorageClient, error) {
	return source.NewClientFromBearerToken(req.WithContext(appengine.NewContext(req)))
}
