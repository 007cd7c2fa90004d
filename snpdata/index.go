// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpdata

// IndexTable maps (row, col) sample pairs to offsets in a mismatch
// vector, so a full distance row can be gathered from the
// upper-triangular storage without building an n×n matrix per
// pattern. It depends only on the number of samples.
type IndexTable struct {
	n       int
	offsets []int // n*n, row-major; diagonal entries are -1
}

// blockStart returns the offset of the first entry of block i
// (distances from sample i to samples i+1..n-1).
func blockStart(n, i int) int {
	return i*(n-1) - i*(i-1)/2
}

func NewIndexTable(n int) *IndexTable {
	t := &IndexTable{n: n, offsets: make([]int, n*n)}
	for r := 0; r < n; r++ {
		row := t.offsets[r*n : (r+1)*n]
		// Columns left of the diagonal are found in earlier
		// blocks, at position r within block c.
		j := r - 1
		for c := 0; c < r; c++ {
			row[c] = j
			j += n - (c + 2)
		}
		row[r] = -1
		start := blockStart(n, r)
		for c := r + 1; c < n; c++ {
			row[c] = start + c - r - 1
		}
	}
	return t
}

func (t *IndexTable) Samples() int { return t.n }

// Offset returns the position of distance(row, col) in a mismatch
// vector, or -1 if row == col.
func (t *IndexTable) Offset(row, col int) int {
	return t.offsets[row*t.n+col]
}

// Row returns the offsets for one sample. The caller must not modify
// the returned slice.
func (t *IndexTable) Row(r int) []int {
	return t.offsets[r*t.n : (r+1)*t.n]
}

// ExtractRow returns the distances from sample to every sample
// (including itself, which is set to Unreachable), reconstructed from
// the mismatch vector vec. It does not modify vec and is safe for
// concurrent use.
func (t *IndexTable) ExtractRow(vec []Distance, sample int) []Distance {
	out := make([]Distance, t.n)
	for c, off := range t.Row(sample) {
		if off < 0 {
			out[c] = Unreachable
		} else {
			out[c] = vec[off]
		}
	}
	return out
}
