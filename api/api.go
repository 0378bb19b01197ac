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

// Package api implements the HTTP interface of the alignment service.
//
// POST /align aligns two sequences and replies with the result.  POST /jobs
// starts the same computation in the background and replies with a job ID
// that can be polled with GET /jobs/:id and cancelled with DELETE /jobs/:id.
// Every computation runs in its own worker (see package worker).
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/googlegenomics/nwalign/align"
	"github.com/googlegenomics/nwalign/internal/analytics"
	"github.com/googlegenomics/nwalign/internal/source"
	"github.com/googlegenomics/nwalign/sequence"
	"github.com/googlegenomics/nwalign/worker"
)

const (
	alignPath  = "/align"
	jobsPath   = "/jobs"
	healthPath = "/healthz"
)

var errNoStorage = errors.New("storage locations are not supported by this server")

// Options configures a Server.
type Options struct {
	// Scoring supplies values for scoring fields omitted from a request.
	Scoring align.Scoring
	// MaxLength is the longest sequence accepted; zero selects
	// sequence.DefaultMaxLength.
	MaxLength int
	// MaxCells bounds the score matrix of a single alignment; zero means no
	// bound.
	MaxCells int64
	// MaxBytes bounds the size of a sequence read from storage.
	MaxBytes int64
	// JobRetention is how long finished jobs remain queryable; zero keeps them
	// until they are deleted.
	JobRetention time.Duration
	// NewStorageClient is called for requests that name storage locations.  If
	// nil, such requests are rejected.
	NewStorageClient source.NewStorageClientFunc
	Logger           *zap.Logger
}

// Server provides the alignment API.  Must be created with NewServer.
type Server struct {
	opts      Options
	logger    *zap.Logger
	whitelist map[string]bool
	jobs      *jobStore
}

// NewServer returns a new Server configured with opts.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:      opts,
		logger:    logger,
		whitelist: make(map[string]bool),
		jobs:      newJobStore(opts.JobRetention),
	}
}

// Whitelist adds buckets to the set of buckets which the server is allowed to
// read sequences from.  If Whitelist is never called then reads from any
// bucket are allowed.
func (server *Server) Whitelist(buckets []string) {
	for _, bucket := range buckets {
		server.whitelist[bucket] = true
	}
}

// Export registers the API endpoints with r.
func (server *Server) Export(r gin.IRoutes) {
	r.Use(forwardOrigin)
	r.POST(alignPath, server.serveAlign)
	r.POST(jobsPath, server.serveStartJob)
	r.GET(jobsPath+"/:id", server.serveJobStatus)
	r.DELETE(jobsPath+"/:id", server.serveCancelJob)
	r.GET(healthPath, func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	for _, path := range []string{alignPath, jobsPath, jobsPath + "/:id"} {
		r.OPTIONS(path, preflight)
	}
}

// Handler returns a complete HTTP handler serving the API.
func (server *Server) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), server.logRequests)
	server.Export(engine)
	return engine
}

// Close terminates all running jobs and waits for them to exit.
func (server *Server) Close() {
	server.jobs.close()
}

func (server *Server) workerOptions() []worker.Option {
	return []worker.Option{
		worker.WithLogger(server.logger),
		worker.WithMaxCells(server.opts.MaxCells),
	}
}

// alignRequest is the request message.  Sequences are given either inline
// or as storage locations.  Omitted scoring fields take the server defaults.
type alignRequest struct {
	Seq1            string `json:"seq1"`
	Seq2            string `json:"seq2"`
	Seq1Location    string `json:"seq1_location"`
	Seq2Location    string `json:"seq2_location"`
	MatchScore      *int64 `json:"match_score"`
	MismatchPenalty *int64 `json:"mismatch_penalty"`
	GapPenalty      *int64 `json:"gap_penalty"`
}

func (req *alignRequest) scoring(defaults align.Scoring) align.Scoring {
	scoring := defaults
	if req.MatchScore != nil {
		scoring.Match = *req.MatchScore
	}
	if req.MismatchPenalty != nil {
		scoring.Mismatch = *req.MismatchPenalty
	}
	if req.GapPenalty != nil {
		scoring.Gap = *req.GapPenalty
	}
	return scoring
}

// parseRequest decodes, loads and normalizes the request carried by c.
func (server *Server) parseRequest(c *gin.Context) (worker.Request, error) {
	var req alignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return worker.Request{}, newInvalidInputError("decoding request", err)
	}

	raw1, raw2 := req.Seq1, req.Seq2
	if req.Seq1Location != "" || req.Seq2Location != "" {
		var err error
		if raw1, raw2, err = server.loadSources(c.Request, &req); err != nil {
			return worker.Request{}, err
		}
	}

	seq1, seq2, err := sequence.NormalizePair(raw1, raw2, server.opts.MaxLength)
	if err != nil {
		return worker.Request{}, newSequenceError(err)
	}
	return worker.Request{Seq1: seq1, Seq2: seq2, Scoring: req.scoring(server.opts.Scoring)}, nil
}

func (server *Server) loadSources(httpReq *http.Request, req *alignRequest) (string, string, error) {
	if (req.Seq1 != "" && req.Seq1Location != "") || (req.Seq2 != "" && req.Seq2Location != "") {
		return "", "", newInvalidInputError("parsing request", errors.New("a sequence and its location are mutually exclusive"))
	}
	if req.Seq1Location == "" || req.Seq2Location == "" {
		return "", "", newInvalidInputError("parsing request", errors.New("both sequences must be given as locations"))
	}
	for _, location := range []string{req.Seq1Location, req.Seq2Location} {
		if !source.IsRemote(location) {
			return "", "", newInvalidInputError("parsing request", fmt.Errorf("unsupported location %q", location))
		}
		if _, _, err := source.ParseObject(location); err != nil {
			return "", "", newInvalidInputError("parsing request", err)
		}
	}
	if server.opts.NewStorageClient == nil {
		return "", "", newInvalidInputError("parsing request", errNoStorage)
	}

	client, err := server.opts.NewStorageClient(httpReq)
	if err != nil {
		return "", "", newSourceError("creating storage client", err)
	}
	loader := source.Loader{
		Storage:   client,
		MaxBytes:  server.opts.MaxBytes,
		Whitelist: server.whitelist,
	}
	raw1, raw2, err := loader.LoadPair(httpReq.Context(), req.Seq1Location, req.Seq2Location)
	if err != nil {
		return "", "", newSourceError("loading sequences", err)
	}
	return raw1, raw2, nil
}

func (server *Server) serveAlign(c *gin.Context) {
	ctx := c.Request.Context()
	track := analytics.TrackerFromContext(ctx)
	track(analytics.Event(analytics.CategoryAlign, analytics.ActionReceived, "", nil))

	req, err := server.parseRequest(c)
	if err != nil {
		track(analytics.Event(analytics.CategoryAlign, analytics.ActionInputError, "", nil))
		writeError(c, err)
		return
	}

	result, err := worker.Run(ctx, req, server.workerOptions()...)
	if err != nil {
		if ctx.Err() != nil {
			server.logger.Info("Client went away before the alignment finished", zap.Error(ctx.Err()))
			return
		}
		track(analytics.Event(analytics.CategoryAlign, analytics.ActionFault, "", nil))
		writeError(c, newRuntimeFaultError(err))
		return
	}

	c.JSON(http.StatusOK, result.Response())

	cells := align.Cells(len(req.Seq1), len(req.Seq2))
	track(analytics.Event(analytics.CategoryAlign, analytics.ActionCells, "", &cells))
	track(analytics.Event(analytics.CategoryAlign, analytics.ActionCompleted, "", nil))
}

func (server *Server) serveStartJob(c *gin.Context) {
	track := analytics.TrackerFromContext(c.Request.Context())
	track(analytics.Event(analytics.CategoryJobs, analytics.ActionReceived, "", nil))

	req, err := server.parseRequest(c)
	if err != nil {
		track(analytics.Event(analytics.CategoryJobs, analytics.ActionInputError, "", nil))
		writeError(c, err)
		return
	}

	j, err := server.jobs.start(req, server.workerOptions()...)
	if err != nil {
		writeError(c, err)
		return
	}
	server.logger.Info("Job started", zap.String("job", j.id))

	c.Header("Location", jobsPath+"/"+j.id)
	c.JSON(http.StatusAccepted, gin.H{"job_id": j.id})
}

func (server *Server) serveJobStatus(c *gin.Context) {
	j, err := server.jobs.get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j.status())
}

func (server *Server) serveCancelJob(c *gin.Context) {
	if err := server.jobs.cancel(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (server *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	server.logger.Info("Request handled",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("elapsed", time.Since(start)))
}

func forwardOrigin(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Next()
}

func preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodDelete}, ", "))
	c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
	c.Status(http.StatusNoContent)
}
