// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpdata

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// bases lists the candidate alleles in tie-breaking priority order.
var bases = [4]byte{'A', 'C', 'G', 'T'}

// FormatError reports an input line that cannot be encoded. Site is
// the 0-based index of the offending line.
type FormatError struct {
	Site   int
	Want   int
	Got    int
	Char   byte
	Sample int
}

func (e *FormatError) Error() string {
	if e.Char != 0 {
		return fmt.Sprintf("site %d: invalid allele %q at sample %d", e.Site, e.Char, e.Sample)
	}
	if e.Want == 0 && e.Got == 0 {
		return fmt.Sprintf("site %d: blank line", e.Site)
	}
	return fmt.Sprintf("site %d: inconsistent number of samples: got %d, expected %d", e.Site, e.Got, e.Want)
}

// Matrix is an encoded genotype matrix with one row per site.
type Matrix struct {
	samples int
	rows    [][]Symbol
	alleles []Alleles

	// pattern (as loaded, before any changes are applied) of each
	// site, as an index into patterns
	patternID []int
	patterns  []string
}

// Read loads a matrix with one site per line. Commas and whitespace
// are ignored, so each line reduces to one character per sample.
// Every line must have the same number of samples as the first.
// A blank line is an error, except for a whitespace-only fragment
// after the last newline.
func Read(r io.Reader) (*Matrix, error) {
	m := &Matrix{samples: -1}
	patternIdx := map[string]int{}
	rdr := bufio.NewReaderSize(r, 1<<20)
	for {
		line, readErr := rdr.ReadBytes('\n')
		if readErr == io.EOF && len(line) == 0 {
			break
		} else if readErr != nil && readErr != io.EOF {
			return nil, readErr
		}
		line = removeExtraChars(line)
		site := len(m.rows)
		if len(line) == 0 {
			if readErr == io.EOF {
				break
			}
			want := m.samples
			if want < 0 {
				want = 0
			}
			return nil, &FormatError{Site: site, Want: want}
		}
		if m.samples < 0 {
			m.samples = len(line)
		} else if len(line) != m.samples {
			return nil, &FormatError{Site: site, Want: m.samples, Got: len(line)}
		}
		row, alleles, ferr := encodeSite(line)
		if ferr != nil {
			ferr.Site = site
			return nil, ferr
		}
		m.rows = append(m.rows, row)
		m.alleles = append(m.alleles, alleles)

		key := string(symbolBytes(row))
		id, ok := patternIdx[key]
		if !ok {
			id = len(m.patterns)
			patternIdx[key] = id
			m.patterns = append(m.patterns, key)
		}
		m.patternID = append(m.patternID, id)
		if readErr == io.EOF {
			break
		}
	}
	if m.samples < 0 {
		m.samples = 0
	}
	return m, nil
}

func removeExtraChars(line []byte) []byte {
	out := line[:0]
	for _, c := range line {
		switch c {
		case ',', ' ', '\t', '\r', '\n':
		default:
			out = append(out, c)
		}
	}
	return out
}

// getAlleles returns the most and second most frequent of A, C, G, T
// in line (which must already be upper case). Ties go to the base
// that comes first in A, C, G, T order.
func getAlleles(line []byte) Alleles {
	var counts [4]int
	for _, c := range line {
		switch c {
		case 'A':
			counts[0]++
		case 'C':
			counts[1]++
		case 'G':
			counts[2]++
		case 'T':
			counts[3]++
		}
	}
	major := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[major] {
			major = i
		}
	}
	minor := -1
	for i := range counts {
		if i != major && (minor < 0 || counts[i] > counts[minor]) {
			minor = i
		}
	}
	return Alleles{Major: bases[major], Minor: bases[minor]}
}

func encodeSite(line []byte) ([]Symbol, Alleles, *FormatError) {
	for i, c := range line {
		line[i] = toUpper(c)
	}
	alleles := getAlleles(line)
	row := make([]Symbol, len(line))
	for i, c := range line {
		switch {
		case c == alleles.Major:
			row[i] = Major
		case c == alleles.Minor:
			row[i] = Minor
		case c == UnknownChar:
			row[i] = Unknown
		case c >= 'A' && c <= 'Z':
			row[i] = Literal(c)
		default:
			return nil, alleles, &FormatError{Char: c, Sample: i}
		}
	}
	return row, alleles, nil
}

func symbolBytes(row []Symbol) []byte {
	buf := make([]byte, len(row))
	for i, s := range row {
		buf[i] = byte(s)
	}
	return buf
}

func (m *Matrix) Samples() int { return m.samples }

func (m *Matrix) Sites() int { return len(m.rows) }

func (m *Matrix) Alleles(site int) Alleles { return m.alleles[site] }

func (m *Matrix) At(site, sample int) Symbol { return m.rows[site][sample] }

// Pattern returns the site distribution pattern of the given site as
// it was loaded. Applying changes does not alter a site's pattern.
func (m *Matrix) Pattern(site int) string {
	return m.patterns[m.patternID[site]]
}

// PatternID returns the index of the site's pattern in Patterns().
func (m *Matrix) PatternID(site int) int {
	return m.patternID[site]
}

// Patterns returns the distinct site distribution patterns, in order
// of first appearance.
func (m *Matrix) Patterns() []string {
	return m.patterns
}

// Count returns the number of samples at site whose symbol is s.
func (m *Matrix) Count(site int, s Symbol) int {
	n := 0
	for _, x := range m.rows[site] {
		if x == s {
			n++
		}
	}
	return n
}

// WriteTo writes one comma-separated line per site, decoding each
// symbol with the site's alleles. Imputed calls are written in lower
// case.
func (m *Matrix) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var buf bytes.Buffer
	for site, row := range m.rows {
		buf.Reset()
		alleles := m.alleles[site]
		for i, s := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte(alleles.decode(s))
		}
		buf.WriteByte('\n')
		n, err := w.Write(buf.Bytes())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
