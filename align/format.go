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

package align

import (
	"bufio"
	"fmt"
	"io"
)

// DefaultLineWidth is the number of alignment columns printed per line.
const DefaultLineWidth = 80

// MatchLine derives the annotation shown between two aligned sequences: '|'
// where the residues are equal, ' ' where either side is a gap and '.'
// otherwise.  a1 and a2 must have the same length.
func MatchLine(a1, a2 string) string {
	line := make([]byte, len(a1))
	for i := range line {
		switch {
		case a1[i] == a2[i]:
			line[i] = '|'
		case a1[i] == GapChar || a2[i] == GapChar:
			line[i] = ' '
		default:
			line[i] = '.'
		}
	}
	return string(line)
}

// Format writes a summary of r followed by the alignment in blocks of width
// columns.  A width that is not positive selects DefaultLineWidth.
func Format(w io.Writer, r Result, width int) error {
	if width <= 0 {
		width = DefaultLineWidth
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Alignment Score: %d\n", r.Score)
	fmt.Fprintf(bw, "Identity: %s%%\n", r.IdentityPercent())
	fmt.Fprintf(bw, "Gaps: %d\n\n", r.Gaps)

	match := MatchLine(r.Align1, r.Align2)
	for i := 0; i < r.Len(); i += width {
		end := i + width
		if end > r.Len() {
			end = r.Len()
		}
		fmt.Fprintf(bw, "Seq1: %s\n", r.Align1[i:end])
		fmt.Fprintf(bw, "      %s\n", match[i:end])
		fmt.Fprintf(bw, "Seq2: %s\n\n", r.Align2[i:end])
	}
	return bw.Flush()
}
