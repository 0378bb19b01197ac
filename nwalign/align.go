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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/googlegenomics/nwalign/align"
	"github.com/googlegenomics/nwalign/internal/source"
	"github.com/googlegenomics/nwalign/sequence"
	"github.com/googlegenomics/nwalign/worker"
)

var (
	alignScoring  align.Scoring
	alignLiteral  bool
	alignOutput   string
	alignWidth    int
	alignToken    string
	alignTimeout  time.Duration
	alignProfile  string
	alignProfiles = map[string]func(*profile.Profile){
		"cpu": profile.CPUProfile,
		"mem": profile.MemProfile,
	}
)

var alignCmd = &cobra.Command{
	Use:   "align <seq1> <seq2>",
	Short: "Align two sequences",
	Long: `Align two sequences and print the result.

Each argument is a local file, "-" for standard input or a gs://bucket/object
location.  Files may be FASTA or plain text and are decompressed when their
name ends in ".gz".  With --literal the arguments are the sequences.

The score matrix is bounded by the align.max_cells setting (2^28 cells by
default, about 16,000 residues per sequence).  Larger pairs fail with a
runtime fault before any memory is allocated; set max_cells to 0 to remove
the bound.`,
	Args: cobra.ExactArgs(2),
	RunE: runAlign,
}

func init() {
	bindAlignFlags(alignCmd)
	rootCmd.AddCommand(alignCmd)
}

func bindAlignFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int64Var(&alignScoring.Match, "match", align.DefaultScoring.Match, "score for identical residues")
	flags.Int64Var(&alignScoring.Mismatch, "mismatch", align.DefaultScoring.Mismatch, "score for differing residues")
	flags.Int64Var(&alignScoring.Gap, "gap", align.DefaultScoring.Gap, "score for each gap column")
	flags.BoolVarP(&alignLiteral, "literal", "l", false, "treat the arguments as sequences")
	flags.StringVarP(&alignOutput, "output", "o", "text", "output format (text, json)")
	flags.IntVarP(&alignWidth, "width", "w", 0, "line width of text output (default from configuration)")
	flags.StringVar(&alignToken, "token", "", "OAuth2 access token for gs:// locations")
	flags.DurationVar(&alignTimeout, "timeout", 0, "abandon the alignment after this long")
	flags.StringVar(&alignProfile, "profile", "", "write a pprof profile of the run (cpu, mem)")
}

func runAlign(cmd *cobra.Command, args []string) error {
	if alignOutput != "text" && alignOutput != "json" {
		return fmt.Errorf("unknown output format %q", alignOutput)
	}
	if alignProfile != "" {
		mode, ok := alignProfiles[alignProfile]
		if !ok {
			return fmt.Errorf("unknown profile mode %q", alignProfile)
		}
		defer profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	}

	ctx := cmd.Context()
	if alignTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, alignTimeout)
		defer cancel()
	}

	raw1, raw2 := args[0], args[1]
	if !alignLiteral {
		loader, err := newLoader(ctx, cmd, args)
		if err != nil {
			return err
		}
		if raw1, raw2, err = loader.LoadPair(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("loading sequences: %v", err)
		}
	}

	seq1, seq2, err := sequence.NormalizePair(raw1, raw2, cfg.Align.MaxLength)
	if err != nil {
		return err
	}

	req := worker.Request{Seq1: seq1, Seq2: seq2, Scoring: scoringFromFlags(cmd)}
	logger.Debug("Aligning", zap.Int("seq1_length", len(seq1)), zap.Int("seq2_length", len(seq2)), zap.Stringer("scoring", req.Scoring))
	result, err := worker.Run(ctx, req, worker.WithLogger(logger), worker.WithMaxCells(cfg.Align.MaxCells))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if alignOutput == "json" {
		return json.NewEncoder(out).Encode(result)
	}
	width := cfg.Align.LineWidth
	if alignWidth > 0 {
		width = alignWidth
	}
	return align.Format(out, result, width)
}

// scoringFromFlags returns the configured scoring overridden by any scoring
// flags given on the command line.
func scoringFromFlags(cmd *cobra.Command) align.Scoring {
	scoring := cfg.Align.Scoring
	if cmd.Flags().Changed("match") {
		scoring.Match = alignScoring.Match
	}
	if cmd.Flags().Changed("mismatch") {
		scoring.Mismatch = alignScoring.Mismatch
	}
	if cmd.Flags().Changed("gap") {
		scoring.Gap = alignScoring.Gap
	}
	return scoring
}

func newLoader(ctx context.Context, cmd *cobra.Command, locations []string) (*source.Loader, error) {
	loader := &source.Loader{
		Whitelist: cfg.BucketWhitelist(),
		Stdin:     cmd.InOrStdin(),
	}

	var stdin, remote bool
	for _, location := range locations {
		if location == "-" {
			if stdin {
				return nil, errors.New("only one sequence can be read from standard input")
			}
			stdin = true
		}
		remote = remote || source.IsRemote(location)
	}
	if !remote {
		return loader, nil
	}

	var err error
	if alignToken != "" {
		loader.Storage, err = source.NewClientFromToken(ctx, alignToken)
	} else {
		loader.Storage, err = source.NewDefaultClient(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %v", err)
	}
	return loader, nil
}
