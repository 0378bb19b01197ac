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

// Package sequence converts raw user input into residue sequences suitable
// for alignment.
//
// Input may be bare residues or a single FASTA record.  Whitespace is removed
// and residues are uppercased; no alphabet checking is performed, so any
// character is carried through to the aligner unchanged.
package sequence

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DefaultMaxLength is the largest sequence accepted when no explicit limit is
// configured.
const DefaultMaxLength = 50000

// ErrEmpty is returned when the input contains no residues.
var ErrEmpty = errors.New("sequence is empty")

// LengthError reports a sequence that exceeds the configured maximum length.
type LengthError struct {
	Length, Max int
}

func (err *LengthError) Error() string {
	return fmt.Sprintf("sequence too long: %d residues exceeds the maximum of %d", err.Length, err.Max)
}

// IsInputError reports whether err was caused by invalid user input rather
// than a failure of the system.
func IsInputError(err error) bool {
	var lengthErr *LengthError
	return errors.Is(err, ErrEmpty) || errors.As(err, &lengthErr)
}

// Normalize returns the residues contained in raw.  If the trimmed input
// starts with a FASTA header marker ('>'), the first line is discarded.  All
// whitespace is removed and the result is uppercased.  A maxLength that is
// not positive selects DefaultMaxLength.
func Normalize(raw string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, ">") {
		if i := strings.IndexByte(body, '\n'); i >= 0 {
			body = body[i+1:]
		} else {
			body = ""
		}
	}

	var b strings.Builder
	b.Grow(len(body))
	for _, r := range body {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}

	seq := b.String()
	if seq == "" {
		return "", ErrEmpty
	}
	if n := len(seq); n > maxLength {
		return "", &LengthError{n, maxLength}
	}
	return seq, nil
}

// NormalizePair normalizes both inputs of a pairwise alignment.  Errors are
// prefixed with the position of the offending sequence.
func NormalizePair(raw1, raw2 string, maxLength int) (string, string, error) {
	seq1, err := Normalize(raw1, maxLength)
	if err != nil {
		return "", "", fmt.Errorf("sequence 1: %w", err)
	}
	seq2, err := Normalize(raw2, maxLength)
	if err != nil {
		return "", "", fmt.Errorf("sequence 2: %w", err)
	}
	return seq1, seq2, nil
}
