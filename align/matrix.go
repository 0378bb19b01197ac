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

// Matrix is a dense score table with rows+1 by cols+1 cells stored row-major
// in a single buffer.
type Matrix struct {
	rows, cols int
	cells      []int64
}

// NewMatrix allocates the score table for sequences of length n and m.
func NewMatrix(n, m int) *Matrix {
	return &Matrix{n + 1, m + 1, make([]int64, (n+1)*(m+1))}
}

// Cells returns the number of cells required to align sequences of length n
// and m.
func Cells(n, m int) int64 {
	return int64(n+1) * int64(m+1)
}

// At returns the score at row i, column j.
func (mat *Matrix) At(i, j int) int64 {
	return mat.cells[i*mat.cols+j]
}

func (mat *Matrix) set(i, j int, v int64) {
	mat.cells[i*mat.cols+j] = v
}

// Dims returns the number of rows and columns.
func (mat *Matrix) Dims() (int, int) {
	return mat.rows, mat.cols
}
