// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpdata

// Distance between the calls of two samples at one site.
type Distance uint16

const (
	Match         Distance = 0
	Indeterminate Distance = 1
	Mismatch      Distance = 2

	// Unreachable is larger than any real distance. ExtractRow
	// puts it in the sample's own position so a nearest-neighbor
	// search never picks a sample as its own neighbor.
	Unreachable Distance = 1<<16 - 1
)

// VectorLen returns the length of a mismatch vector for n samples:
// one entry per unordered pair.
func VectorLen(n int) int {
	return n * (n - 1) / 2
}

// ComputeVector returns the upper-triangular pairwise distances
// (diagonal excluded) for a site distribution pattern. Block i of the
// result holds the distances from sample i to samples i+1..n-1.
func ComputeVector(pattern string) []Distance {
	n := len(pattern)
	// Distance from a major call (fromMajor) or a minor call
	// (fromMinor) to each sample.
	fromMajor := make([]Distance, n)
	fromMinor := make([]Distance, n)
	for i := 0; i < n; i++ {
		switch Symbol(pattern[i]) {
		case Minor, ImputedMinor:
			fromMajor[i], fromMinor[i] = Mismatch, Match
		case Major, ImputedMajor:
			fromMajor[i], fromMinor[i] = Match, Mismatch
		default:
			fromMajor[i], fromMinor[i] = Indeterminate, Indeterminate
		}
	}
	vec := make([]Distance, 0, VectorLen(n))
	for i := 0; i < n; i++ {
		switch {
		case fromMajor[i] == Match:
			vec = append(vec, fromMajor[i+1:]...)
		case fromMinor[i] == Match:
			vec = append(vec, fromMinor[i+1:]...)
		default:
			for j := i + 1; j < n; j++ {
				vec = append(vec, Indeterminate)
			}
		}
	}
	return vec
}

// VectorSet holds one mismatch vector per distinct pattern of a
// matrix. Vectors are never modified after NewVectorSet returns, so
// callers must treat returned slices as read-only.
type VectorSet struct {
	matrix    *Matrix
	vectors   [][]Distance
	byPattern map[string][]Distance
}

// NewVectorSet computes the mismatch vector of every distinct pattern
// in m, using up to parallelism goroutines.
func NewVectorSet(m *Matrix, parallelism int) *VectorSet {
	patterns := m.Patterns()
	vs := &VectorSet{
		matrix:    m,
		vectors:   make([][]Distance, len(patterns)),
		byPattern: make(map[string][]Distance, len(patterns)),
	}
	thr := throttle{Max: parallelism}
	for id, pattern := range patterns {
		id, pattern := id, pattern
		thr.Go(func() {
			vs.vectors[id] = ComputeVector(pattern)
		})
	}
	thr.Wait()
	for id, pattern := range patterns {
		vs.byPattern[pattern] = vs.vectors[id]
	}
	return vs
}

// Vector returns the mismatch vector for pattern, or false if the
// pattern does not occur in the matrix.
func (vs *VectorSet) Vector(pattern string) ([]Distance, bool) {
	vec, ok := vs.byPattern[pattern]
	return vec, ok
}

// ForSite returns the mismatch vector shared by all sites with the
// same pattern as site.
func (vs *VectorSet) ForSite(site int) []Distance {
	return vs.vectors[vs.matrix.PatternID(site)]
}

// ByID returns the vector for the pattern at index id in
// Matrix.Patterns().
func (vs *VectorSet) ByID(id int) []Distance {
	return vs.vectors[id]
}

// Len returns the number of distinct patterns.
func (vs *VectorSet) Len() int {
	return len(vs.vectors)
}
