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
	"encoding/json"
	"fmt"
	"math/big"
)

// Result is a completed global alignment.  Align1 and Align2 always have the
// same length.
type Result struct {
	Score          int64
	Align1, Align2 string
	Gaps           int
	// Identities is the number of columns holding the same residue in both
	// sequences.
	Identities int
}

// Len returns the number of columns in the alignment.
func (r Result) Len() int {
	return len(r.Align1)
}

// IdentityPercent returns identities/columns*100 with exactly two decimals.
// The percentage is computed in float64 and the exact binary value is
// rounded to the nearest hundredth, ties going up, so the text matches
// what browsers print for the same alignment.
func (r Result) IdentityPercent() string {
	n := r.Len()
	if n == 0 {
		return "0.00"
	}
	pct := float64(r.Identities) / float64(n) * 100

	// Hundredths of a percent: floor(pct*100 + 1/2), evaluated exactly.
	v := new(big.Rat).SetFloat64(pct)
	v.Mul(v, big.NewRat(100, 1)).Add(v, big.NewRat(1, 2))
	h := new(big.Int).Quo(v.Num(), v.Denom()).Int64()
	return fmt.Sprintf("%d.%02d", h/100, h%100)
}

// Response is the wire representation of a Result.
type Response struct {
	AlignmentScore  int64  `json:"alignmentScore"`
	IdentityPercent string `json:"identityPercent"`
	Gaps            int    `json:"gaps"`
	Align1          string `json:"align1"`
	Align2          string `json:"align2"`
}

// Response converts r to its wire representation.
func (r Result) Response() Response {
	return Response{
		AlignmentScore:  r.Score,
		IdentityPercent: r.IdentityPercent(),
		Gaps:            r.Gaps,
		Align1:          r.Align1,
		Align2:          r.Align2,
	}
}

// MarshalJSON encodes r using the wire representation.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Response())
}

// Result converts a wire representation back to a Result.  Identities are
// recounted from the aligned strings.
func (resp Response) Result() Result {
	identities := 0
	for i := 0; i < len(resp.Align1) && i < len(resp.Align2); i++ {
		if resp.Align1[i] == resp.Align2[i] {
			identities++
		}
	}
	return Result{
		Score:      resp.AlignmentScore,
		Align1:     resp.Align1,
		Align2:     resp.Align2,
		Gaps:       resp.Gaps,
		Identities: identities,
	}
}
