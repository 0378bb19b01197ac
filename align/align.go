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

// Package align implements Needleman-Wunsch global alignment of two
// sequences under a linear gap penalty.
//
// Residues are compared byte by byte and match only when they are identical;
// there is no substitution matrix.  Callers are expected to pass non-empty,
// normalized sequences (see package sequence).
package align

import (
	"context"
	"fmt"
)

// GapChar is the character inserted into an aligned sequence opposite a residue
// of the other sequence.
const GapChar = '-'

// Scoring holds the flat scoring scheme of an alignment.
type Scoring struct {
	// Match is added when the aligned residues are equal.
	Match int64 `json:"match_score" yaml:"match_score"`
	// Mismatch is added when the aligned residues differ.
	Mismatch int64 `json:"mismatch_penalty" yaml:"mismatch_penalty"`
	// Gap is added for every gap character in either sequence.
	Gap int64 `json:"gap_penalty" yaml:"gap_penalty"`
}

// DefaultScoring is the scheme used when none is configured.
var DefaultScoring = Scoring{Match: 1, Mismatch: -1, Gap: -1}

func (s Scoring) String() string {
	return fmt.Sprintf("[match:%d, mismatch:%d, gap:%d]", s.Match, s.Mismatch, s.Gap)
}

func (s Scoring) substitution(a, b byte) int64 {
	if a == b {
		return s.Match
	}
	return s.Mismatch
}

// Align computes the optimal global alignment of seq1 and seq2.
func Align(seq1, seq2 string, scoring Scoring) Result {
	result, _ := AlignContext(context.Background(), seq1, seq2, scoring)
	return result
}

// AlignContext is like Align but abandons the computation when ctx is done.
// Cancellation is observed between rows of the matrix fill, in which case the
// partially filled matrix is discarded and ctx.Err() is returned.
func AlignContext(ctx context.Context, seq1, seq2 string, scoring Scoring) (Result, error) {
	dp, err := fill(ctx, seq1, seq2, scoring)
	if err != nil {
		return Result{}, err
	}
	return traceback(dp, seq1, seq2, scoring), nil
}

func fill(ctx context.Context, seq1, seq2 string, scoring Scoring) (*Matrix, error) {
	n, m := len(seq1), len(seq2)
	dp := NewMatrix(n, m)

	for i := 0; i <= n; i++ {
		dp.set(i, 0, int64(i)*scoring.Gap)
	}
	for j := 0; j <= m; j++ {
		dp.set(0, j, int64(j)*scoring.Gap)
	}

	done := ctx.Done()
	for i := 1; i <= n; i++ {
		if done != nil {
			select {
			case <-done:
				return nil, ctx.Err()
			default:
			}
		}
		for j := 1; j <= m; j++ {
			best := dp.At(i-1, j-1) + scoring.substitution(seq1[i-1], seq2[j-1])
			if up := dp.At(i-1, j) + scoring.Gap; up > best {
				best = up
			}
			if left := dp.At(i, j-1) + scoring.Gap; left > best {
				best = left
			}
			dp.set(i, j, best)
		}
	}
	return dp, nil
}

// step is a traceback move.  The order of the constants is the order in
// which moves are tried.
type step int

const (
	diagonal step = iota
	up            // seq1 residue against a gap
	left          // gap against a seq2 residue
)

var stepPriority = [...]step{diagonal, up, left}

// from reports whether cell (i, j) of dp was reached by s.
func (s step) from(dp *Matrix, i, j int, seq1, seq2 string, scoring Scoring) bool {
	score := dp.At(i, j)
	switch s {
	case diagonal:
		return i > 0 && j > 0 && score == dp.At(i-1, j-1)+scoring.substitution(seq1[i-1], seq2[j-1])
	case up:
		return i > 0 && score == dp.At(i-1, j)+scoring.Gap
	case left:
		return j > 0 && score == dp.At(i, j-1)+scoring.Gap
	}
	return false
}

func traceback(dp *Matrix, seq1, seq2 string, scoring Scoring) Result {
	i, j := len(seq1), len(seq2)

	// The path is built back to front and reversed once at the end.
	a1 := make([]byte, 0, i+j)
	a2 := make([]byte, 0, i+j)
	var gaps, identities int

	for i > 0 || j > 0 {
		s := left
		for _, candidate := range stepPriority {
			if candidate.from(dp, i, j, seq1, seq2, scoring) {
				s = candidate
				break
			}
		}

		switch s {
		case diagonal:
			a1 = append(a1, seq1[i-1])
			a2 = append(a2, seq2[j-1])
			if seq1[i-1] == seq2[j-1] {
				identities++
			}
			i--
			j--
		case up:
			a1 = append(a1, seq1[i-1])
			a2 = append(a2, GapChar)
			gaps++
			i--
		default:
			a1 = append(a1, GapChar)
			a2 = append(a2, seq2[j-1])
			gaps++
			j--
		}
	}
	reverse(a1)
	reverse(a2)

	rows, cols := dp.Dims()
	return Result{
		Score:      dp.At(rows-1, cols-1),
		Align1:     string(a1),
		Align2:     string(a2),
		Gaps:       gaps,
		Identities: identities,
	}
}

func reverse(b []byte) {
	for l, r := 0, len(b)-1; l < r; l, r = l+1, r-1 {
		b[l], b[r] = b[r], b[l]
	}
}
