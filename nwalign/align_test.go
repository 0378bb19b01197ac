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
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/nwalign/align"
	"github.com/googlegenomics/nwalign/internal/config"
)

// newAlignCommand returns a fresh align command with default flag values.
func newAlignCommand(t *testing.T) *cobra.Command {
	cfg = config.Default()
	t.Cleanup(func() { cfg = nil })

	cmd := &cobra.Command{Use: "align", Args: cobra.ExactArgs(2), RunE: runAlign}
	bindAlignFlags(cmd)
	return cmd
}

func TestScoringFromFlags(t *testing.T) {
	configured := align.Scoring{Match: 2, Mismatch: -3, Gap: -4}
	testCases := []struct {
		name string
		args []string
		want align.Scoring
	}{
		{"no flags", nil, configured},
		{"gap only", []string{"--gap=-7"}, align.Scoring{Match: 2, Mismatch: -3, Gap: -7}},
		{"all", []string{"--match=5", "--mismatch=0", "--gap=-1"}, align.Scoring{Match: 5, Mismatch: 0, Gap: -1}},
		{"flag equal to its default", []string{"--match=1"}, align.Scoring{Match: 1, Mismatch: -3, Gap: -4}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newAlignCommand(t)
			cfg.Align.Scoring = configured
			require.NoError(t, cmd.ParseFlags(tc.args))
			assert.Equal(t, tc.want, scoringFromFlags(cmd))
		})
	}
}

func TestNewLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("two stdin locations", func(t *testing.T) {
		_, err := newLoader(ctx, newAlignCommand(t), []string{"-", "-"})
		assert.Error(t, err)
	})

	t.Run("local and stdin", func(t *testing.T) {
		cmd := newAlignCommand(t)
		cfg.Server.Buckets = []string{"refs"}
		cmd.SetIn(strings.NewReader(">s\nACGT\n"))

		loader, err := newLoader(ctx, cmd, []string{"a.fa", "-"})
		require.NoError(t, err)
		assert.Nil(t, loader.Storage)
		assert.Equal(t, map[string]bool{"refs": true}, loader.Whitelist)

		text, err := loader.Load(ctx, "-")
		require.NoError(t, err)
		assert.Equal(t, ">s\nACGT\n", text)
	})

	t.Run("remote with token", func(t *testing.T) {
		cmd := newAlignCommand(t)
		require.NoError(t, cmd.ParseFlags([]string{"--token", "secret"}))

		loader, err := newLoader(ctx, cmd, []string{"gs://refs/a.fa", "gs://refs/b.fa"})
		require.NoError(t, err)
		assert.NotNil(t, loader.Storage)
	})
}

func TestRunAlignLiteral(t *testing.T) {
	cmd := newAlignCommand(t)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--literal", "--output", "json", "gattaca", "GCATGCU"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var got align.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, align.Response{
		AlignmentScore:  0,
		IdentityPercent: "50.00",
		Gaps:            2,
		Align1:          "G-ATTACA",
		Align2:          "GCA-TGCU",
	}, got)
}

func TestRunAlignMaxCells(t *testing.T) {
	cmd := newAlignCommand(t)
	cfg.Align.MaxCells = 10
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--literal", "GATTACA", "GCATGCU"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime fault")
}

func TestHelpDescribesMaxCells(t *testing.T) {
	for _, cmd := range []*cobra.Command{alignCmd, serveCmd} {
		assert.Contains(t, cmd.Long, "max_cells", "%s help", cmd.Name())
	}
}
