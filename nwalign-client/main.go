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

// This binary provides a client for the alignment API that supports Google
// authentication.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/googlegenomics/nwalign/align"
	"github.com/googlegenomics/nwalign/internal/logging"
	"github.com/googlegenomics/nwalign/internal/source"
)

const (
	scope = "https://www.googleapis.com/auth/devstorage.read_only"
)

var (
	serverURL  string
	token      string
	googleAuth bool
	async      bool
	poll       time.Duration
	literal    bool
	jsonOutput bool
	width      int
	scoring    align.Scoring
)

var rootCmd = &cobra.Command{
	Use:   "nwalign-client <seq1> <seq2>",
	Short: "Align two sequences with an alignment server",
	Long: `Align two sequences with an alignment server.

Each argument is a local file, "-" for standard input or a gs://bucket/object
location.  Local files are uploaded; storage locations are read by the server
with the client's credentials.  With --literal the arguments are the
sequences.`,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&serverURL, "server", "s", "http://localhost:8080", "alignment server URL")
	flags.StringVar(&token, "token", "", "OAuth2 access token to forward to the server")
	flags.BoolVar(&googleAuth, "google-auth", false, "authenticate with application default credentials")
	flags.BoolVar(&async, "async", false, "run the alignment as a job and poll for its result")
	flags.DurationVar(&poll, "poll", time.Second, "job polling interval")
	flags.BoolVarP(&literal, "literal", "l", false, "treat the arguments as sequences")
	flags.BoolVar(&jsonOutput, "json", false, "print the server response as JSON")
	flags.IntVarP(&width, "width", "w", align.DefaultLineWidth, "line width of text output")
	flags.Int64Var(&scoring.Match, "match", align.DefaultScoring.Match, "score for identical residues")
	flags.Int64Var(&scoring.Mismatch, "mismatch", align.DefaultScoring.Mismatch, "score for differing residues")
	flags.Int64Var(&scoring.Gap, "gap", align.DefaultScoring.Gap, "score for each gap column")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// request is the body of an alignment request.  Scoring fields left nil take
// the server's defaults.
type request struct {
	Seq1            string `json:"seq1,omitempty"`
	Seq2            string `json:"seq2,omitempty"`
	Seq1Location    string `json:"seq1_location,omitempty"`
	Seq2Location    string `json:"seq2_location,omitempty"`
	MatchScore      *int64 `json:"match_score,omitempty"`
	MismatchPenalty *int64 `json:"mismatch_penalty,omitempty"`
	GapPenalty      *int64 `json:"gap_penalty,omitempty"`
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := logging.New("info", "text")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, err := withCABundle(cmd.Context(), logger)
	if err != nil {
		return err
	}
	httpClient, err := newHTTPClient(ctx)
	if err != nil {
		return fmt.Errorf("creating client: %v", err)
	}

	req, err := buildRequest(ctx, cmd, args)
	if err != nil {
		return err
	}

	c := &client{http: httpClient, server: strings.TrimSuffix(serverURL, "/"), poll: poll, logger: logger}
	var response align.Response
	if async {
		response, err = c.alignJob(ctx, req)
	} else {
		response, err = c.align(ctx, req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return json.NewEncoder(out).Encode(response)
	}
	return align.Format(out, response.Result(), width)
}

// withCABundle installs the standard cURL certificate authority override from
// the environment, for compatibility with other tools.
func withCABundle(ctx context.Context, logger *zap.Logger) (context.Context, error) {
	bundle := os.Getenv("CURL_CA_BUNDLE")
	if bundle == "" {
		return ctx, nil
	}
	pem, err := os.ReadFile(bundle)
	if err != nil {
		return nil, fmt.Errorf("reading CA override file %q: %v", bundle, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("initializing system certificate pool: %v", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("adding certificates from bundle %q", bundle)
	}
	logger.Info("Using CA override bundle", zap.String("bundle", bundle))
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: pool,
			}},
	}), nil
}

func newHTTPClient(ctx context.Context) (*http.Client, error) {
	switch {
	case token != "" && googleAuth:
		return nil, errors.New("--token and --google-auth are mutually exclusive")
	case token != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})), nil
	case googleAuth:
		return google.DefaultClient(ctx, scope)
	}
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return c, nil
	}
	return http.DefaultClient, nil
}

func buildRequest(ctx context.Context, cmd *cobra.Command, args []string) (*request, error) {
	req := &request{}
	flags := cmd.Flags()
	if flags.Changed("match") {
		req.MatchScore = &scoring.Match
	}
	if flags.Changed("mismatch") {
		req.MismatchPenalty = &scoring.Mismatch
	}
	if flags.Changed("gap") {
		req.GapPenalty = &scoring.Gap
	}

	if literal {
		req.Seq1, req.Seq2 = args[0], args[1]
		return req, nil
	}

	remote1, remote2 := source.IsRemote(args[0]), source.IsRemote(args[1])
	switch {
	case remote1 && remote2:
		req.Seq1Location, req.Seq2Location = args[0], args[1]
		return req, nil
	case remote1 || remote2:
		return nil, errors.New("storage locations cannot be mixed with local files")
	case args[0] == "-" && args[1] == "-":
		return nil, errors.New("only one sequence can be read from standard input")
	}

	loader := source.Loader{Stdin: cmd.InOrStdin()}
	var err error
	if req.Seq1, req.Seq2, err = loader.LoadPair(ctx, args[0], args[1]); err != nil {
		return nil, fmt.Errorf("loading sequences: %v", err)
	}
	return req, nil
}
