// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpdata

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Cell identifies one call in a matrix.
type Cell struct {
	Site   int
	Sample int
}

// Change is one imputed value. Raw is the value as written in the
// changes file, kept so that values other than major or minor can be
// reported as given.
type Change struct {
	Value Symbol
	Raw   string
}

// ChangeWarning describes a change that was not applied, either
// because its value was neither Major nor Minor or because its cell
// is outside the matrix.
type ChangeWarning struct {
	Cell    Cell
	Value   Symbol
	Raw     string
	Outside bool
}

func (w ChangeWarning) String() string {
	if w.Outside {
		return fmt.Sprintf("change at (%d, %d) is outside the matrix", w.Cell.Site, w.Cell.Sample)
	}
	val := w.Raw
	if val == "" {
		val = w.Value.String()
	}
	return fmt.Sprintf("unknown imputed allele %q at (%d, %d)", val, w.Cell.Site, w.Cell.Sample)
}

// ApplyChanges replaces the calls named in changes with ImputedMajor
// or ImputedMinor markers. An entry whose value is not Major or Minor,
// or whose cell is outside the matrix, is logged, returned as a
// warning, and otherwise ignored; the remaining entries are still
// applied. Applying the same changes again has no further effect.
// Use CheckChanges first to treat out-of-range cells as an error.
//
// ApplyChanges must not run concurrently with WriteTo or any other
// reader of m.
func (m *Matrix) ApplyChanges(changes map[Cell]Change) []ChangeWarning {
	cells := make([]Cell, 0, len(changes))
	for cell := range changes {
		cells = append(cells, cell)
	}
	// Sorted so warnings come out in a stable order.
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Site != cells[j].Site {
			return cells[i].Site < cells[j].Site
		}
		return cells[i].Sample < cells[j].Sample
	})
	var warnings []ChangeWarning
	for _, cell := range cells {
		change := changes[cell]
		w := ChangeWarning{Cell: cell, Value: change.Value, Raw: change.Raw}
		var imputed Symbol
		ok := false
		switch {
		case !m.inside(cell):
			w.Outside = true
		case change.Value == Major:
			imputed, ok = ImputedMajor, true
		case change.Value == Minor:
			imputed, ok = ImputedMinor, true
		}
		if !ok {
			log.Warn(w.String())
			warnings = append(warnings, w)
			continue
		}
		m.rows[cell.Site][cell.Sample] = imputed
	}
	return warnings
}

func (m *Matrix) inside(cell Cell) bool {
	return cell.Site >= 0 && cell.Site < len(m.rows) && cell.Sample >= 0 && cell.Sample < m.samples
}

// ReadChanges parses a changes list with one "site,sample,value" entry
// per line. Value is "0" or "MAJ" for the major allele, "1" or "MIN"
// for the minor allele. Any other value is kept (with Value Unknown)
// so ApplyChanges can report it. Blank lines and lines starting with
// "#" are ignored.
func ReadChanges(r io.Reader) (map[Cell]Change, error) {
	changes := map[Cell]Change{}
	scanner := bufio.NewScanner(r)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == '\t' || r == ' ' })
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields (site,sample,value), got %d", lineno, len(fields))
		}
		site, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: site: %w", lineno, err)
		}
		sample, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: sample: %w", lineno, err)
		}
		change := Change{Value: Unknown, Raw: fields[2]}
		switch strings.ToUpper(fields[2]) {
		case "0", "MAJ":
			change.Value = Major
		case "1", "MIN":
			change.Value = Minor
		}
		changes[Cell{Site: site, Sample: sample}] = change
	}
	return changes, scanner.Err()
}

// CheckChanges returns an error if any change refers to a cell
// outside m.
func (m *Matrix) CheckChanges(changes map[Cell]Change) error {
	for cell := range changes {
		if !m.inside(cell) {
			return fmt.Errorf("change at (%d, %d) is outside the %d×%d matrix", cell.Site, cell.Sample, m.Sites(), m.samples)
		}
	}
	return nil
}
